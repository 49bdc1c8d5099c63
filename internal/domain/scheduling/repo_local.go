package scheduling

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/frontdesk/internal/domain/calendar"
	"github.com/clinic/frontdesk/internal/domain/intake"
	"github.com/clinic/frontdesk/internal/platform/localstore"
)

const scheduleFeature = "schedule"

// scheduleDoc is one doctor's bookings keyed by ISO date.
type scheduleDoc struct {
	Doctor string                `json:"doctor"`
	Days   map[string][]*Booking `json:"days"`
}

func (d *scheduleDoc) find(id uuid.UUID) (string, int) {
	for date, items := range d.Days {
		for i, b := range items {
			if b.ID == id {
				return date, i
			}
		}
	}
	return "", -1
}

func (d *scheduleDoc) taken(date, label string, except uuid.UUID) bool {
	for _, b := range d.bookings(date) {
		if b.SlotLabel == label && b.ID != except {
			return true
		}
	}
	return false
}

type slotStoreLocal struct {
	docs *localstore.Store
	now  func() time.Time
}

// NewSlotStoreLocal keeps bookings in one local document per doctor.
func NewSlotStoreLocal(docs *localstore.Store) SlotStore {
	return &slotStoreLocal{docs: docs, now: time.Now}
}

func docKey(doctorID string) localstore.Key {
	return localstore.Key{Feature: scheduleFeature, Identity: doctorID}
}

// load returns the doctor's document. A document recorded for another
// doctor reads as empty.
func (r *slotStoreLocal) load(doctorID string) *scheduleDoc {
	doc := &scheduleDoc{}
	if !r.docs.Load(docKey(doctorID), doc) || doc.Doctor != doctorID {
		return &scheduleDoc{Doctor: doctorID}
	}
	return doc
}

// bookings returns the doctor's bookings on date.
func (d *scheduleDoc) bookings(date string) []*Booking {
	var out []*Booking
	for _, b := range d.Days[date] {
		if b.DoctorID == d.Doctor {
			out = append(out, b)
		}
	}
	return out
}

func (r *slotStoreLocal) update(doctorID string, fn func(doc *scheduleDoc) error) error {
	doc := &scheduleDoc{}
	return r.docs.Update(docKey(doctorID), doc, func() error {
		if doc.Doctor != "" && doc.Doctor != doctorID {
			return fmt.Errorf("schedule document for %q holds doctor %q", doctorID, doc.Doctor)
		}
		doc.Doctor = doctorID
		if doc.Days == nil {
			doc.Days = make(map[string][]*Booking)
		}
		return fn(doc)
	})
}

func copyAll(items []*Booking) []*Booking {
	out := make([]*Booking, 0, len(items))
	for _, b := range items {
		out = append(out, b.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlotLabel < out[j].SlotLabel })
	return out
}

func (r *slotStoreLocal) ListForDateDoctor(_ context.Context, key DayKey) ([]*Booking, error) {
	return copyAll(r.load(key.DoctorID).bookings(key.Date.String())), nil
}

// Get scans every doctor's document.
func (r *slotStoreLocal) Get(_ context.Context, id uuid.UUID) (*Booking, error) {
	names, err := r.docs.Documents(scheduleFeature)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		var doc scheduleDoc
		if !r.docs.LoadName(name, &doc) {
			continue
		}
		if date, i := doc.find(id); i >= 0 {
			return doc.Days[date][i].clone(), nil
		}
	}
	return nil, ErrBookingNotFound
}

func (r *slotStoreLocal) Insert(_ context.Context, b *Booking) error {
	return r.update(b.DoctorID, func(doc *scheduleDoc) error {
		date := b.Date.String()
		if doc.taken(date, b.SlotLabel, uuid.Nil) {
			return ErrSlotTaken
		}
		doc.Days[date] = append(doc.Days[date], b.clone())
		return nil
	})
}

// Update rewrites the doctor's document once, so a move frees the old slot in
// the same write that takes the new one. Bookings cannot change doctor.
func (r *slotStoreLocal) Update(ctx context.Context, id uuid.UUID, f BookingFields) (*Booking, error) {
	var out *Booking
	err := r.update(f.DoctorID, func(doc *scheduleDoc) error {
		oldDate, i := doc.find(id)
		if i < 0 {
			return ErrBookingNotFound
		}
		newDate := f.Date.String()
		if doc.taken(newDate, f.SlotLabel, id) {
			return ErrSlotTaken
		}
		b := doc.Days[oldDate][i]
		doc.Days[oldDate] = append(doc.Days[oldDate][:i], doc.Days[oldDate][i+1:]...)
		if len(doc.Days[oldDate]) == 0 {
			delete(doc.Days, oldDate)
		}
		b.PatientName = f.PatientName
		b.PatientPhone = f.PatientPhone
		b.Date = f.Date
		b.SlotLabel = f.SlotLabel
		b.UpdatedAt = r.now().UTC()
		doc.Days[newDate] = append(doc.Days[newDate], b)
		out = b.clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *slotStoreLocal) Delete(ctx context.Context, id uuid.UUID) error {
	b, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return r.update(b.DoctorID, func(doc *scheduleDoc) error {
		date, i := doc.find(id)
		if i < 0 {
			return ErrBookingNotFound
		}
		doc.Days[date] = append(doc.Days[date][:i], doc.Days[date][i+1:]...)
		if len(doc.Days[date]) == 0 {
			delete(doc.Days, date)
		}
		return nil
	})
}

func (r *slotStoreLocal) CountsForMonth(_ context.Context, doctorID string, year int, month time.Month) (map[calendar.Date]int, error) {
	counts := make(map[calendar.Date]int)
	doc := r.load(doctorID)
	for date := range doc.Days {
		d, err := calendar.ParseDate(date)
		if err != nil || d.Year != year || d.Month != month {
			continue
		}
		if n := len(doc.bookings(date)); n > 0 {
			counts[d] = n
		}
	}
	return counts, nil
}

func (r *slotStoreLocal) Search(_ context.Context, doctorID, query string, limit int) ([]*Booking, error) {
	var out []*Booking
	doc := r.load(doctorID)
	for date := range doc.Days {
		for _, b := range doc.bookings(date) {
			if intake.Matches(query, b.PatientName, b.PatientPhone) {
				out = append(out, b.clone())
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].SlotLabel < out[j].SlotLabel
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
