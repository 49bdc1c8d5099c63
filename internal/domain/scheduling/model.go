package scheduling

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinic/frontdesk/internal/domain/calendar"
)

// DayKey identifies one doctor's day. Bookings are unique per
// (DayKey, SlotLabel).
type DayKey struct {
	Date     calendar.Date `json:"date"`
	DoctorID string        `json:"doctor_id"`
}

func (k DayKey) String() string { return k.Date.String() + "/" + k.DoctorID }

// less orders keys by date, then doctor.
func (k DayKey) less(o DayKey) bool {
	if k.Date != o.Date {
		return k.Date.Before(o.Date)
	}
	return k.DoctorID < o.DoctorID
}

// Booking is one patient occupying one slot.
type Booking struct {
	ID           uuid.UUID     `json:"id"`
	PatientName  string        `json:"patient_name"`
	PatientPhone string        `json:"patient_phone"`
	Date         calendar.Date `json:"date"`
	DoctorID     string        `json:"doctor_id"`
	SlotLabel    string        `json:"slot_label"`
	Warning      string        `json:"warning,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

func (b *Booking) Key() DayKey { return DayKey{Date: b.Date, DoctorID: b.DoctorID} }

func (b *Booking) clone() *Booking {
	c := *b
	return &c
}

// BookingFields is the full replacement state written by SlotStore.Update.
type BookingFields struct {
	PatientName  string
	PatientPhone string
	Date         calendar.Date
	DoctorID     string
	SlotLabel    string
}

func (f BookingFields) Key() DayKey { return DayKey{Date: f.Date, DoctorID: f.DoctorID} }

// SlotOccupancy pairs a grid slot with its booking, if any.
type SlotOccupancy struct {
	Slot
	Booking *Booking `json:"booking,omitempty"`
}

// DaySchedule is the full grid of one doctor's day.
type DaySchedule struct {
	Date      calendar.Date   `json:"date"`
	DoctorID  string          `json:"doctor_id"`
	Closed    bool            `json:"closed"`
	Warning   string          `json:"warning,omitempty"`
	Booked    int             `json:"booked"`
	Available int             `json:"available"`
	Slots     []SlotOccupancy `json:"slots"`
}
