package patient

import (
	"strconv"
	"strings"
	"time"

	"github.com/clinic/frontdesk/internal/domain/calendar"
)

// PatientRecord is a dashboard patient entry. ID is chosen by the front desk
// or generated when left blank.
type PatientRecord struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Age       int           `json:"age"`
	Gender    string        `json:"gender"`
	Contact   string        `json:"contact"`
	VisitDate calendar.Date `json:"date"`
	Doctor    *string       `json:"doctor,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// PatientFields is the replaceable part of a record.
type PatientFields struct {
	Name      string
	Age       int
	Gender    string
	Contact   string
	VisitDate calendar.Date
	Doctor    *string
}

func (p *PatientRecord) apply(f PatientFields) {
	p.Name = f.Name
	p.Age = f.Age
	p.Gender = f.Gender
	p.Contact = f.Contact
	p.VisitDate = f.VisitDate
	p.Doctor = f.Doctor
}

func (p *PatientRecord) clone() *PatientRecord {
	c := *p
	if p.Doctor != nil {
		d := *p.Doctor
		c.Doctor = &d
	}
	return &c
}

// Matches reports whether query occurs, case-insensitively, in any field.
func (p *PatientRecord) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	fields := []string{p.Name, p.ID, strconv.Itoa(p.Age), p.Gender, p.Contact, p.VisitDate.String()}
	if p.Doctor != nil {
		fields = append(fields, *p.Doctor)
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}
