// Package intake sanitizes and validates the patient name and phone entered
// at the front desk. Every booking or patient write goes through Check first.
package intake

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/clinic/frontdesk/internal/platform/apperr"
)

const (
	ReasonNameTooShort   = "Name must be at least 2 characters long"
	ReasonNameCharset    = "Name can only contain letters, spaces, dots, and hyphens"
	ReasonPhoneTooShort  = "Phone number must be at least 10 digits"
	ReasonPhoneCharset   = "Phone number can only contain numbers, spaces, hyphens, plus signs, and parentheses"
	ReasonPhoneDigits    = "Phone number must contain at least 10 digits"
	ReasonLikelyTestData = "Please enter a valid patient name (no test data allowed)"

	minNameLen     = 2
	minPhoneLen    = 10
	minPhoneDigits = 10
)

var (
	nameCharset  = regexp.MustCompile(`^[a-zA-Z\s.-]+$`)
	phoneCharset = regexp.MustCompile(`^[0-9\s\-+()]+$`)
	whitespace   = regexp.MustCompile(`\s+`)

	testPrefix   = regexp.MustCompile(`(?i)^(test|dummy|sample|example)`)
	lowerLetters = regexp.MustCompile(`^[a-z]{3,}$`)
	digitsOnly   = regexp.MustCompile(`^[0-9]+$`)
	noLetters    = regexp.MustCompile(`^[^a-zA-Z]*$`)
)

// Result is the outcome of Validate. Reasons keeps rule order.
type Result struct {
	Valid   bool     `json:"valid"`
	Reasons []string `json:"reasons"`
}

// Sanitize trims the name and collapses its inner whitespace, and strips all
// whitespace from the phone. Other punctuation is left alone.
func Sanitize(name, phone string) (string, string) {
	name = whitespace.ReplaceAllString(strings.TrimSpace(name), " ")
	phone = whitespace.ReplaceAllString(strings.TrimSpace(phone), "")
	return name, phone
}

// Validate applies every rule and accumulates all failures.
func Validate(name, phone string) Result {
	var reasons []string
	n := strings.TrimSpace(name)
	p := strings.TrimSpace(phone)

	if len([]rune(n)) < minNameLen {
		reasons = append(reasons, ReasonNameTooShort)
	}
	if n != "" && !nameCharset.MatchString(n) {
		reasons = append(reasons, ReasonNameCharset)
	}
	if len([]rune(p)) < minPhoneLen {
		reasons = append(reasons, ReasonPhoneTooShort)
	}
	if p != "" && !phoneCharset.MatchString(p) {
		reasons = append(reasons, ReasonPhoneCharset)
	}
	if countDigits(phone) < minPhoneDigits {
		reasons = append(reasons, ReasonPhoneDigits)
	}
	return Result{Valid: len(reasons) == 0, Reasons: reasons}
}

// IsLikelyTestData flags names that look like placeholder input. It is a
// heuristic: short real names such as "Jo" are flagged too.
func IsLikelyTestData(name, _ string) bool {
	switch {
	case testPrefix.MatchString(name),
		lowerLetters.MatchString(name),
		digitsOnly.MatchString(name),
		noLetters.MatchString(name),
		len([]rune(name)) <= 2:
		return true
	}
	return false
}

// Check sanitizes the input and returns it when it passes validation and the
// test-data heuristic. Otherwise it returns a ValidationError with every
// failing reason.
func Check(name, phone string) (string, string, error) {
	name, phone = Sanitize(name, phone)
	res := Validate(name, phone)
	reasons := res.Reasons
	if IsLikelyTestData(name, phone) {
		reasons = append(reasons, ReasonLikelyTestData)
	}
	if len(reasons) > 0 {
		return "", "", apperr.NewValidation(reasons...)
	}
	return name, phone, nil
}

// Matches reports whether query hits the name (case-insensitive) or the phone.
// A blank query matches nothing.
func Matches(query, name, phone string) bool {
	q := strings.TrimSpace(query)
	if q == "" {
		return false
	}
	return strings.Contains(strings.ToLower(name), strings.ToLower(q)) ||
		strings.Contains(phone, q)
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) && r <= unicode.MaxASCII {
			n++
		}
	}
	return n
}
