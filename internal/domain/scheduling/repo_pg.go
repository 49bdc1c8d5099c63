package scheduling

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinic/frontdesk/internal/domain/calendar"
	"github.com/clinic/frontdesk/internal/platform/db"
)

type slotStorePG struct{ db db.DBTX }

// NewSlotStorePG stores bookings in the schedule_slots table, whose unique
// constraint on (date, doctor_name, slot_time) backs ErrSlotTaken.
func NewSlotStorePG(conn db.DBTX) SlotStore { return &slotStorePG{db: conn} }

const bookingCols = `id, patient_name, patient_phone, date, doctor_name, slot_time, created_at, updated_at`

func (r *slotStorePG) scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var date time.Time
	if err := row.Scan(&b.ID, &b.PatientName, &b.PatientPhone, &date, &b.DoctorID, &b.SlotLabel,
		&b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.Date = calendar.DateOf(date)
	return &b, nil
}

func (r *slotStorePG) scanAll(rows pgx.Rows) ([]*Booking, error) {
	defer rows.Close()
	var items []*Booking
	for rows.Next() {
		b, err := r.scanBooking(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

func (r *slotStorePG) ListForDateDoctor(ctx context.Context, key DayKey) ([]*Booking, error) {
	rows, err := r.db.Query(ctx, `SELECT `+bookingCols+` FROM schedule_slots
		WHERE date = $1 AND doctor_name = $2 ORDER BY slot_time`, key.Date.Time(), key.DoctorID)
	if err != nil {
		return nil, err
	}
	return r.scanAll(rows)
}

func (r *slotStorePG) Get(ctx context.Context, id uuid.UUID) (*Booking, error) {
	b, err := r.scanBooking(r.db.QueryRow(ctx, `SELECT `+bookingCols+` FROM schedule_slots WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	return b, err
}

func (r *slotStorePG) Insert(ctx context.Context, b *Booking) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO schedule_slots (id, patient_name, patient_phone, date, doctor_name, slot_time, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		b.ID, b.PatientName, b.PatientPhone, b.Date.Time(), b.DoctorID, b.SlotLabel, b.CreatedAt, b.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrSlotTaken
	}
	return err
}

func (r *slotStorePG) Update(ctx context.Context, id uuid.UUID, f BookingFields) (*Booking, error) {
	b, err := r.scanBooking(r.db.QueryRow(ctx, `
		UPDATE schedule_slots SET patient_name=$2, patient_phone=$3, date=$4, doctor_name=$5, slot_time=$6,
			updated_at=NOW()
		WHERE id = $1
		RETURNING `+bookingCols,
		id, f.PatientName, f.PatientPhone, f.Date.Time(), f.DoctorID, f.SlotLabel))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, ErrBookingNotFound
	case db.IsUniqueViolation(err):
		return nil, ErrSlotTaken
	}
	return b, err
}

func (r *slotStorePG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM schedule_slots WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBookingNotFound
	}
	return nil
}

func (r *slotStorePG) CountsForMonth(ctx context.Context, doctorID string, year int, month time.Month) (map[calendar.Date]int, error) {
	first := calendar.NewDate(year, month, 1)
	next := first.AddDays(calendar.DaysIn(year, month))
	rows, err := r.db.Query(ctx, `SELECT date, COUNT(*) FROM schedule_slots
		WHERE doctor_name = $1 AND date >= $2 AND date < $3
		GROUP BY date`, doctorID, first.Time(), next.Time())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[calendar.Date]int)
	for rows.Next() {
		var d time.Time
		var n int
		if err := rows.Scan(&d, &n); err != nil {
			return nil, err
		}
		counts[calendar.DateOf(d)] = n
	}
	return counts, rows.Err()
}

func (r *slotStorePG) Search(ctx context.Context, doctorID, query string, limit int) ([]*Booking, error) {
	q := strings.TrimSpace(query)
	rows, err := r.db.Query(ctx, `SELECT `+bookingCols+` FROM schedule_slots
		WHERE doctor_name = $1 AND (LOWER(patient_name) LIKE $2 OR patient_phone LIKE $3)
		ORDER BY date DESC, slot_time LIMIT $4`,
		doctorID, db.LikeContains(strings.ToLower(q)), db.LikeContains(q), limit)
	if err != nil {
		return nil, err
	}
	return r.scanAll(rows)
}
