// Package localstore is the fallback persistence used when no database is
// reachable: a directory of JSON documents, one per (feature, identity) pair.
//
// Unreadable or corrupt documents load as empty documents; the failure is
// logged and never returned to the caller.
package localstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const ext = ".json"

var (
	unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)
	safeName    = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
)

// Key names one document.
type Key struct {
	Feature  string
	Identity string
}

func (k Key) filename() string {
	return encode(k.Feature) + "__" + encode(k.Identity) + ext
}

// encode maps s to a file name fragment. Values made only of safe characters
// are used as is. Anything else is sanitized and suffixed with a digest of
// the raw value, so two distinct values never share a document.
func encode(s string) string {
	if safeName.MatchString(s) {
		return s
	}
	sum := sha256.Sum256([]byte(s))
	return sanitize(s) + "~" + hex.EncodeToString(sum[:8])
}

func sanitize(s string) string {
	s = unsafeChars.ReplaceAllString(strings.TrimSpace(s), "_")
	if s == "" {
		return "_"
	}
	return s
}

// Store reads and writes documents under a single directory.
type Store struct {
	dir    string
	logger zerolog.Logger
	mu     sync.RWMutex
}

// Open creates dir if needed and returns a Store rooted there.
func Open(dir string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create local store dir %s: %w", dir, err)
	}
	return &Store{dir: dir, logger: logger.With().Str("component", "localstore").Logger()}, nil
}

func (s *Store) Dir() string { return s.dir }

// Path is the file that holds the document at k.
func (s *Store) Path(k Key) string { return filepath.Join(s.dir, k.filename()) }

// Load decodes the document at k into v. A missing, unreadable or corrupt
// document leaves v untouched and reports found=false.
func (s *Store) Load(k Key, v interface{}) (found bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load(k, v)
}

func (s *Store) load(k Key, v interface{}) bool { return s.loadPath(k.filename(), v) }

func (s *Store) loadPath(name string, v interface{}) bool {
	b, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn().Err(err).Str("document", name).Msg("unreadable document treated as empty")
		}
		return false
	}
	if len(b) == 0 {
		return false
	}
	if err := json.Unmarshal(b, v); err != nil {
		s.logger.Warn().Err(err).Str("document", name).Msg("corrupt document treated as empty")
		return false
	}
	return true
}

// LoadName is Load for a file name returned by Documents.
func (s *Store) LoadName(name string, v interface{}) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if filepath.Base(name) != name || !strings.HasSuffix(name, ext) {
		return false
	}
	return s.loadPath(name, v)
}

// Save replaces the document at k with v. The write goes to a temporary file
// that is renamed into place.
func (s *Store) Save(k Key, v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(k, v)
}

func (s *Store) save(k Key, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", k.filename(), err)
	}
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", k.filename(), err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", k.filename(), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", k.filename(), err)
	}
	if err := os.Rename(tmp.Name(), s.Path(k)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", k.filename(), err)
	}
	return nil
}

// Update loads the document at k into v, applies fn and saves the result,
// holding the store lock throughout. If fn returns an error nothing is
// written.
func (s *Store) Update(k Key, v interface{}, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load(k, v)
	if err := fn(); err != nil {
		return err
	}
	return s.save(k, v)
}

// Delete removes the document at k. Deleting a missing document is not an error.
func (s *Store) Delete(k Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.Path(k)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", k.filename(), err)
	}
	return nil
}

// Documents lists the document file names, optionally filtered by feature.
func (s *Store) Documents(feature string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.documents(feature)
}

func (s *Store) documents(feature string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.dir, err)
	}
	prefix := ""
	if feature != "" {
		prefix = encode(feature) + "__"
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ext) || !strings.HasPrefix(name, prefix) {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// Purge removes every document of the given feature, or all documents when
// feature is empty, and returns how many were removed.
func (s *Store) Purge(feature string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names, err := s.documents(feature)
	if err != nil {
		return 0, err
	}
	for i, name := range names {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return i, fmt.Errorf("purge %s: %w", name, err)
		}
	}
	return len(names), nil
}

// DocumentUsage is the size of one stored document.
type DocumentUsage struct {
	Name          string `json:"name"`
	Size          int64  `json:"size"`
	SizeFormatted string `json:"size_formatted"`
}

// Usage summarizes how much space the store occupies.
type Usage struct {
	Total          int64           `json:"total"`
	TotalFormatted string          `json:"total_formatted"`
	Breakdown      []DocumentUsage `json:"breakdown"`
}

// Usage reports the size of every document.
func (s *Store) Usage() (*Usage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names, err := s.documents("")
	if err != nil {
		return nil, err
	}
	u := &Usage{Breakdown: make([]DocumentUsage, 0, len(names))}
	for _, name := range names {
		info, err := os.Stat(filepath.Join(s.dir, name))
		if err != nil {
			continue
		}
		u.Total += info.Size()
		u.Breakdown = append(u.Breakdown, DocumentUsage{
			Name:          name,
			Size:          info.Size(),
			SizeFormatted: FormatBytes(info.Size()),
		})
	}
	u.TotalFormatted = FormatBytes(u.Total)
	return u, nil
}

// FormatBytes renders n with a binary unit, e.g. "1.5 KB".
func FormatBytes(n int64) string {
	if n <= 0 {
		return "0 Bytes"
	}
	units := []string{"Bytes", "KB", "MB", "GB"}
	i := int(math.Floor(math.Log(float64(n)) / math.Log(1024)))
	if i >= len(units) {
		i = len(units) - 1
	}
	v := float64(n) / math.Pow(1024, float64(i))
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64) + " " + units[i]
}
