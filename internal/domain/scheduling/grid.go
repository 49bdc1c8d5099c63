package scheduling

import (
	"fmt"
	"strconv"
	"strings"
)

const minutesPerDay = 24 * 60

// ClockTime is a wall-clock time of day in minutes after midnight.
type ClockTime int

// NewClockTime builds a ClockTime from hours and minutes.
func NewClockTime(hour, minute int) ClockTime { return ClockTime(hour*60 + minute) }

// ParseClockTime parses "HH:MM".
func ParseClockTime(s string) (ClockTime, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock time %q: expected HH:MM", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid clock time %q: bad hour", s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 || len(m) != 2 {
		return 0, fmt.Errorf("invalid clock time %q: bad minute", s)
	}
	return NewClockTime(hour, minute), nil
}

func (t ClockTime) Hour() int   { return int(t) / 60 }
func (t ClockTime) Minute() int { return int(t) % 60 }

func (t ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t ClockTime) Add(minutes int) ClockTime { return t + ClockTime(minutes) }

// Break is a pause inserted before the slot at index AfterSlot.
type Break struct {
	AfterSlot int `json:"after_slot"`
	Minutes   int `json:"minutes"`
}

// GridConfig describes a doctor's working day.
type GridConfig struct {
	Count       int       `json:"count"`
	SlotMinutes int       `json:"slot_minutes"`
	Start       ClockTime `json:"-"`
	Breaks      []Break   `json:"breaks"`
}

// DefaultGridConfig is the clinic's day: seventy six-minute slots from 10:30
// with two one-hour breaks.
func DefaultGridConfig() GridConfig {
	return GridConfig{
		Count:       70,
		SlotMinutes: 6,
		Start:       NewClockTime(10, 30),
		Breaks:      []Break{{AfterSlot: 23, Minutes: 60}, {AfterSlot: 46, Minutes: 60}},
	}
}

// ParseBreaks parses a list such as "23:60,46:60". An empty string yields no
// breaks.
func ParseBreaks(s string) ([]Break, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []Break
	for _, part := range strings.Split(s, ",") {
		idx, mins, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("invalid break %q: expected INDEX:MINUTES", part)
		}
		i, err := strconv.Atoi(idx)
		if err != nil {
			return nil, fmt.Errorf("invalid break %q: %w", part, err)
		}
		m, err := strconv.Atoi(mins)
		if err != nil {
			return nil, fmt.Errorf("invalid break %q: %w", part, err)
		}
		out = append(out, Break{AfterSlot: i, Minutes: m})
	}
	return out, nil
}

// Validate rejects configurations that cannot produce a single-day grid.
func (c GridConfig) Validate() error {
	if c.Count <= 0 {
		return fmt.Errorf("slot count must be positive, got %d", c.Count)
	}
	if c.SlotMinutes <= 0 {
		return fmt.Errorf("slot length must be positive, got %d", c.SlotMinutes)
	}
	if c.Start < 0 || c.Start >= minutesPerDay {
		return fmt.Errorf("start time out of range: %d", c.Start)
	}
	total := c.Count * c.SlotMinutes
	for _, b := range c.Breaks {
		if b.Minutes < 0 {
			return fmt.Errorf("break at slot %d has negative length", b.AfterSlot)
		}
		if b.AfterSlot < 0 || b.AfterSlot >= c.Count {
			return fmt.Errorf("break index %d outside 0..%d", b.AfterSlot, c.Count-1)
		}
		total += b.Minutes
	}
	if int(c.Start)+total > minutesPerDay {
		return fmt.Errorf("grid of %d slots starting %s runs past midnight", c.Count, c.Start)
	}
	return nil
}

// Slot is one bookable interval of the daily grid.
type Slot struct {
	Index int       `json:"index"`
	Start ClockTime `json:"-"`
	End   ClockTime `json:"-"`
	Label string    `json:"label"`
}

// GenerateDailySlots lays out the grid. The result depends only on cfg.
func GenerateDailySlots(cfg GridConfig) []Slot {
	pause := make(map[int]int, len(cfg.Breaks))
	for _, b := range cfg.Breaks {
		pause[b.AfterSlot] += b.Minutes
	}
	slots := make([]Slot, 0, cfg.Count)
	clock := cfg.Start
	for i := 0; i < cfg.Count; i++ {
		clock = clock.Add(pause[i])
		end := clock.Add(cfg.SlotMinutes)
		slots = append(slots, Slot{
			Index: i,
			Start: clock,
			End:   end,
			Label: clock.String() + " - " + end.String(),
		})
		clock = end
	}
	return slots
}

// Grid is a validated, precomputed daily grid shared by every date and doctor.
type Grid struct {
	cfg     GridConfig
	slots   []Slot
	byLabel map[string]int
}

// NewGrid validates cfg and generates its slots.
func NewGrid(cfg GridConfig) (*Grid, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	slots := GenerateDailySlots(cfg)
	g := &Grid{cfg: cfg, slots: slots, byLabel: make(map[string]int, len(slots))}
	for i, s := range slots {
		g.byLabel[s.Label] = i
	}
	return g, nil
}

// MustNewGrid is NewGrid for configurations known to be valid.
func MustNewGrid(cfg GridConfig) *Grid {
	g, err := NewGrid(cfg)
	if err != nil {
		panic(err)
	}
	return g
}

func (g *Grid) Config() GridConfig { return g.cfg }

// Slots returns a copy of the slots in grid order.
func (g *Grid) Slots() []Slot {
	out := make([]Slot, len(g.slots))
	copy(out, g.slots)
	return out
}

func (g *Grid) Len() int { return len(g.slots) }

func (g *Grid) Lookup(label string) (Slot, bool) {
	i, ok := g.byLabel[label]
	if !ok {
		return Slot{}, false
	}
	return g.slots[i], true
}

func (g *Grid) Contains(label string) bool {
	_, ok := g.byLabel[label]
	return ok
}
