package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/frontdesk/internal/domain/calendar"
)

var (
	// ErrSlotTaken is returned by a SlotStore when the (date, doctor, slot)
	// key is already occupied by another booking.
	ErrSlotTaken = errors.New("slot already taken")
	// ErrBookingNotFound is returned by a SlotStore for an unknown booking id.
	ErrBookingNotFound = errors.New("booking not found")
)

// SlotStore persists bookings. Implementations must reject a second booking
// for the same (date, doctor, slot) with ErrSlotTaken, and Update must be a
// single atomic write.
type SlotStore interface {
	ListForDateDoctor(ctx context.Context, key DayKey) ([]*Booking, error)
	Get(ctx context.Context, id uuid.UUID) (*Booking, error)
	Insert(ctx context.Context, b *Booking) error
	Update(ctx context.Context, id uuid.UUID, f BookingFields) (*Booking, error)
	Delete(ctx context.Context, id uuid.UUID) error
	CountsForMonth(ctx context.Context, doctorID string, year int, month time.Month) (map[calendar.Date]int, error)
	Search(ctx context.Context, doctorID, query string, limit int) ([]*Booking, error)
}

// StoreOccupancy serves an OccupancyView straight from a SlotStore.
type StoreOccupancy struct {
	Store SlotStore
}

func (o StoreOccupancy) CountForDay(ctx context.Context, key DayKey) (int, error) {
	items, err := o.Store.ListForDateDoctor(ctx, key)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

func (o StoreOccupancy) CountsForMonth(ctx context.Context, doctorID string, year int, month time.Month) (map[calendar.Date]int, error) {
	return o.Store.CountsForMonth(ctx, doctorID, year, month)
}
