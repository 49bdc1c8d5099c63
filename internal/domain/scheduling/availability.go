package scheduling

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clinic/frontdesk/internal/domain/calendar"
	"github.com/clinic/frontdesk/internal/platform/apperr"
)

// OccupancyView is the read side the availability figures are computed from.
type OccupancyView interface {
	CountForDay(ctx context.Context, key DayKey) (int, error)
	CountsForMonth(ctx context.Context, doctorID string, year int, month time.Month) (map[calendar.Date]int, error)
}

// DayAvailability is slotsPerDay minus booked. It is never clamped; a
// negative result means the day is over capacity.
func DayAvailability(slotsPerDay, booked int) int {
	return slotsPerDay - booked
}

// DaySummary is the availability of one day.
type DaySummary struct {
	Date        calendar.Date `json:"date"`
	Booked      int           `json:"booked"`
	Available   int           `json:"available"`
	Closed      bool          `json:"closed"`
	HolidayName string        `json:"holiday_name,omitempty"`
	Warning     string        `json:"warning,omitempty"`
	Overbooked  bool          `json:"overbooked,omitempty"`
}

// MonthView is the availability of every day of a month.
type MonthView struct {
	Year      int          `json:"year"`
	Month     time.Month   `json:"month"`
	DoctorID  string       `json:"doctor_id,omitempty"`
	Available int          `json:"available"`
	Days      []DaySummary `json:"days"`
}

// MonthTotal is one entry of a YearView.
type MonthTotal struct {
	Month     time.Month `json:"month"`
	Available int        `json:"available"`
}

type YearView struct {
	Year      int          `json:"year"`
	DoctorID  string       `json:"doctor_id"`
	Available int          `json:"available"`
	Months    []MonthTotal `json:"months"`
}

func summarize(cal *calendar.Calendar, d calendar.Date, slotsPerDay, booked int) DaySummary {
	cl := cal.Closure(d)
	s := DaySummary{
		Date:        d,
		Booked:      booked,
		Closed:      cl.Closed,
		HolidayName: cl.HolidayName,
		Warning:     cl.Warning(),
	}
	if !cl.Closed {
		s.Available = DayAvailability(slotsPerDay, booked)
		s.Overbooked = s.Available < 0
	}
	return s
}

// MonthAvailability sums the availability of the open days of a month.
// Closed days contribute zero. Dates in counts outside the month are ignored.
func MonthAvailability(cal *calendar.Calendar, year int, month time.Month, slotsPerDay int, counts map[calendar.Date]int) MonthView {
	dates := calendar.MonthDates(year, month)
	v := MonthView{Year: year, Month: month, Days: make([]DaySummary, 0, len(dates))}
	for _, d := range dates {
		s := summarize(cal, d, slotsPerDay, counts[d])
		v.Available += s.Available
		v.Days = append(v.Days, s)
	}
	return v
}

// Availability answers capacity questions for the calendar views.
type Availability struct {
	view OccupancyView
	grid *Grid
	cal  *calendar.Calendar
}

func NewAvailability(view OccupancyView, grid *Grid, cal *calendar.Calendar) *Availability {
	return &Availability{view: view, grid: grid, cal: cal}
}

func (a *Availability) Day(ctx context.Context, date calendar.Date, doctorID string) (DaySummary, error) {
	n, err := a.view.CountForDay(ctx, DayKey{Date: date, DoctorID: doctorID})
	if err != nil {
		return DaySummary{}, apperr.Store("count day", err)
	}
	return summarize(a.cal, date, a.grid.Len(), n), nil
}

func (a *Availability) Month(ctx context.Context, year int, month time.Month, doctorID string) (MonthView, error) {
	if month < time.January || month > time.December {
		return MonthView{}, apperr.NewValidation("month must be between 1 and 12")
	}
	counts, err := a.view.CountsForMonth(ctx, doctorID, year, month)
	if err != nil {
		return MonthView{}, apperr.Store("count month", err)
	}
	v := MonthAvailability(a.cal, year, month, a.grid.Len(), counts)
	v.DoctorID = doctorID
	return v, nil
}

// Year returns the twelve monthly totals of a year, fetched concurrently.
func (a *Availability) Year(ctx context.Context, year int, doctorID string) (YearView, error) {
	months := make([]MonthTotal, 12)
	g, ctx := errgroup.WithContext(ctx)
	for i := range months {
		m := time.Month(i + 1)
		g.Go(func() error {
			v, err := a.Month(ctx, year, m, doctorID)
			if err != nil {
				return err
			}
			months[m-1] = MonthTotal{Month: m, Available: v.Available}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return YearView{}, err
	}
	yv := YearView{Year: year, DoctorID: doctorID, Months: months}
	for _, m := range months {
		yv.Available += m.Available
	}
	return yv, nil
}
