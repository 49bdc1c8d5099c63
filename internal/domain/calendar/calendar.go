// Package calendar decides which days the clinic is closed by default.
//
// A day is closed when it is a Sunday, when its month-day matches a fixed
// annual holiday, or when it appears in the hand-maintained table of dated
// holidays. Closure is advisory: callers warn but do not refuse bookings.
package calendar

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed holidays.yaml
var defaultTable []byte

// Table is the on-disk shape of the holiday data.
type Table struct {
	Fixed map[string]string `yaml:"fixed"`
	Dated map[string]string `yaml:"dated"`
}

// Holiday is a named closed date.
type Holiday struct {
	Date Date   `json:"date"`
	Name string `json:"name"`
}

// Closure describes why a day is closed, if it is.
type Closure struct {
	Closed      bool   `json:"closed"`
	Sunday      bool   `json:"sunday"`
	HolidayName string `json:"holiday_name,omitempty"`
}

// Warning is the text shown next to a booking made on a closed day.
func (c Closure) Warning() string {
	switch {
	case !c.Closed:
		return ""
	case c.Sunday:
		return "Sunday (Closed): you can still add patients if the doctor is available"
	default:
		return fmt.Sprintf("Holiday (Closed): %s. You can still add patients if the doctor is available", c.HolidayName)
	}
}

// Calendar answers closure questions from an immutable holiday table.
type Calendar struct {
	fixed map[string]string
	dated map[Date]string
}

// Default returns the calendar built from the embedded table.
func Default() *Calendar {
	cal, err := Parse(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("calendar: embedded holiday table: %v", err))
	}
	return cal
}

// Load reads a YAML holiday table from path. An empty path yields Default().
func Load(path string) (*Calendar, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read holiday table %s: %w", path, err)
	}
	return Parse(b)
}

// Parse builds a Calendar from YAML bytes, rejecting malformed keys.
func Parse(b []byte) (*Calendar, error) {
	var t Table
	if err := yaml.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("decode holiday table: %w", err)
	}
	return New(t)
}

// New validates a Table and builds a Calendar from it.
func New(t Table) (*Calendar, error) {
	cal := &Calendar{
		fixed: make(map[string]string, len(t.Fixed)),
		dated: make(map[Date]string, len(t.Dated)),
	}
	for md, name := range t.Fixed {
		// 2000 is a leap year, so 02-29 is accepted.
		parsed, err := time.Parse("2006-01-02", "2000-"+md)
		if err != nil {
			return nil, fmt.Errorf("fixed holiday %q: expected MM-DD", md)
		}
		cal.fixed[DateOf(parsed).MonthDay()] = name
	}
	for ds, name := range t.Dated {
		d, err := ParseDate(ds)
		if err != nil {
			return nil, fmt.Errorf("dated holiday %q: %w", ds, err)
		}
		cal.dated[d] = name
	}
	return cal, nil
}

// HolidayName returns the holiday falling on d. The dated table is consulted
// before the fixed one.
func (c *Calendar) HolidayName(d Date) (string, bool) {
	if name, ok := c.dated[d]; ok {
		return name, true
	}
	if name, ok := c.fixed[d.MonthDay()]; ok {
		return name, true
	}
	return "", false
}

// IsClosed reports whether d is a Sunday or a holiday.
func (c *Calendar) IsClosed(d Date) bool {
	return c.Closure(d).Closed
}

func (c *Calendar) Closure(d Date) Closure {
	var cl Closure
	if d.Weekday() == time.Sunday {
		cl.Closed = true
		cl.Sunday = true
	}
	if name, ok := c.HolidayName(d); ok {
		cl.Closed = true
		cl.HolidayName = name
	}
	return cl
}

// Holidays lists the named holidays of a year in date order.
func (c *Calendar) Holidays(year int) []Holiday {
	seen := make(map[Date]bool)
	var out []Holiday
	for d, name := range c.dated {
		if d.Year == year {
			out = append(out, Holiday{Date: d, Name: name})
			seen[d] = true
		}
	}
	for md, name := range c.fixed {
		d, err := ParseDate(fmt.Sprintf("%04d-%s", year, md))
		if err != nil || seen[d] {
			// 02-29 in a non-leap year, or overridden by a dated entry.
			continue
		}
		out = append(out, Holiday{Date: d, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
