package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/clinic/frontdesk/internal/domain/calendar"
	"github.com/clinic/frontdesk/internal/domain/intake"
	"github.com/clinic/frontdesk/internal/platform/apperr"
	"github.com/clinic/frontdesk/internal/platform/metrics"
)

var tracer = otel.Tracer("frontdesk.internal.scheduling")

const (
	defaultSearchLimit = 50
	maxSearchFetch     = 1000
	maxMoveAttempts    = 5
)

// Confirmation describes an irreversible step awaiting the operator's approval.
type Confirmation struct {
	Action  string   `json:"action"`
	Booking *Booking `json:"booking"`
	Message string   `json:"message"`
}

// Confirmer approves or declines an irreversible step.
type Confirmer interface {
	Confirm(ctx context.Context, c Confirmation) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, c Confirmation) bool

func (f ConfirmFunc) Confirm(ctx context.Context, c Confirmation) bool { return f(ctx, c) }

var (
	AlwaysConfirm Confirmer = ConfirmFunc(func(context.Context, Confirmation) bool { return true })
	NeverConfirm  Confirmer = ConfirmFunc(func(context.Context, Confirmation) bool { return false })
)

// Operation is a booking write submitted through Ledger.Submit: one of
// Create, Edit or Remove.
type Operation interface {
	operation() string
}

// Create books a patient. An empty SlotLabel takes the first free slot of
// the day. Replace overwrites the occupant of a taken slot after
// confirmation.
type Create struct {
	Date         calendar.Date `json:"date"`
	DoctorID     string        `json:"doctor_id"`
	SlotLabel    string        `json:"slot_label"`
	PatientName  string        `json:"patient_name"`
	PatientPhone string        `json:"patient_phone"`
	Replace      bool          `json:"replace"`
}

// Edit changes an existing booking. Nil fields keep their current value.
type Edit struct {
	BookingID    uuid.UUID      `json:"-"`
	PatientName  *string        `json:"patient_name"`
	PatientPhone *string        `json:"patient_phone"`
	Date         *calendar.Date `json:"date"`
	SlotLabel    *string        `json:"slot_label"`
}

// Remove deletes a booking after confirmation.
type Remove struct {
	BookingID uuid.UUID
}

func (Create) operation() string { return "book" }
func (Edit) operation() string   { return "update" }
func (Remove) operation() string { return "delete" }

// CountInvalidator drops cached occupancy counts after a write.
type CountInvalidator interface {
	Invalidate(ctx context.Context, doctorID string, year int, month time.Month) error
}

// Ledger is the single authority over which patient occupies which slot.
// Writes for one DayKey are serialized within the process; the store's
// uniqueness guarantee covers everything else.
type Ledger struct {
	store   SlotStore
	grid    *Grid
	cal     *calendar.Calendar
	cache   CountInvalidator
	metrics *metrics.Ledger
	logger  zerolog.Logger
	locks   keyLocks
	now     func() time.Time
}

func NewLedger(store SlotStore, grid *Grid, cal *calendar.Calendar, logger zerolog.Logger) *Ledger {
	return &Ledger{
		store:  store,
		grid:   grid,
		cal:    cal,
		logger: logger.With().Str("component", "ledger").Logger(),
		now:    time.Now,
	}
}

func (l *Ledger) WithCache(c CountInvalidator) *Ledger {
	l.cache = c
	return l
}

func (l *Ledger) WithMetrics(m *metrics.Ledger) *Ledger {
	l.metrics = m
	return l
}

func (l *Ledger) Grid() *Grid { return l.grid }

// Submit dispatches a tagged operation.
func (l *Ledger) Submit(ctx context.Context, op Operation, confirm Confirmer) (*Booking, error) {
	switch o := op.(type) {
	case Create:
		return l.Book(ctx, o, confirm)
	case Edit:
		return l.Update(ctx, o)
	case Remove:
		b, err := l.store.Get(ctx, o.BookingID)
		if err != nil {
			return nil, l.mapStoreErr("get booking", o.BookingID.String(), err)
		}
		if err := l.Delete(ctx, o.BookingID, confirm); err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported operation %T", op)
	}
}

// ListSlotOccupants returns the bookings of one doctor's day keyed by slot label.
func (l *Ledger) ListSlotOccupants(ctx context.Context, date calendar.Date, doctorID string) (map[string]*Booking, error) {
	key, err := dayKey(date, doctorID)
	if err != nil {
		return nil, err
	}
	items, err := l.store.ListForDateDoctor(ctx, key)
	if err != nil {
		return nil, apperr.Store("list bookings", err)
	}
	out := make(map[string]*Booking, len(items))
	for _, b := range items {
		out[b.SlotLabel] = b
	}
	return out, nil
}

// FindFirstAvailable returns the earliest free slot of the day in grid order.
func (l *Ledger) FindFirstAvailable(ctx context.Context, date calendar.Date, doctorID string) (string, bool, error) {
	occ, err := l.ListSlotOccupants(ctx, date, doctorID)
	if err != nil {
		return "", false, err
	}
	label, ok := l.firstFree(occ)
	return label, ok, nil
}

func (l *Ledger) firstFree(occ map[string]*Booking) (string, bool) {
	for _, s := range l.grid.slots {
		if _, taken := occ[s.Label]; !taken {
			return s.Label, true
		}
	}
	return "", false
}

// NextFreeDay scans forward from date for the first open day with a free
// slot, looking at most days ahead.
func (l *Ledger) NextFreeDay(ctx context.Context, from calendar.Date, doctorID string, days int) (calendar.Date, string, bool, error) {
	for i := 0; i < days; i++ {
		d := from.AddDays(i)
		if l.cal.IsClosed(d) {
			continue
		}
		label, ok, err := l.FindFirstAvailable(ctx, d, doctorID)
		if err != nil {
			return calendar.Date{}, "", false, err
		}
		if ok {
			return d, label, true, nil
		}
	}
	return calendar.Date{}, "", false, nil
}

// Book places a patient into a slot.
func (l *Ledger) Book(ctx context.Context, c Create, confirm Confirmer) (b *Booking, err error) {
	ctx, span := tracer.Start(ctx, "scheduling.Book", trace.WithAttributes(
		attribute.String("frontdesk.doctor_id", c.DoctorID),
		attribute.String("frontdesk.date", c.Date.String()),
		attribute.String("frontdesk.slot", c.SlotLabel),
	))
	defer l.finish(span, "book", time.Now(), &err)

	key, err := dayKey(c.Date, c.DoctorID)
	if err != nil {
		return nil, err
	}
	name, phone, err := intake.Check(c.PatientName, c.PatientPhone)
	if err != nil {
		return nil, err
	}
	if c.SlotLabel != "" && !l.grid.Contains(c.SlotLabel) {
		return nil, unknownSlot(c.SlotLabel)
	}

	unlock := l.locks.lock(key)
	defer unlock()

	occ, err := l.ListSlotOccupants(ctx, key.Date, key.DoctorID)
	if err != nil {
		return nil, err
	}
	label := c.SlotLabel
	if label == "" {
		var ok bool
		if label, ok = l.firstFree(occ); !ok {
			return nil, &apperr.ConflictError{
				Resource: "day",
				Key:      key.String(),
				Reason:   fmt.Sprintf("No free slot left on %s for %s", key.Date, key.DoctorID),
			}
		}
	}

	if existing, taken := occ[label]; taken {
		if !c.Replace {
			return nil, slotTaken(key, label, existing.ID)
		}
		if !orNever(confirm).Confirm(ctx, Confirmation{
			Action:  "replace",
			Booking: existing,
			Message: fmt.Sprintf("Replace %s in slot %s?", existing.PatientName, label),
		}) {
			return nil, apperr.ErrCancelled
		}
		b, err = l.store.Update(ctx, existing.ID, BookingFields{
			PatientName: name, PatientPhone: phone, Date: key.Date, DoctorID: key.DoctorID, SlotLabel: label,
		})
		if err != nil {
			return nil, l.mapWriteErr("replace booking", key, label, existing.ID, err)
		}
	} else {
		now := l.now().UTC()
		b = &Booking{
			ID:           uuid.New(),
			PatientName:  name,
			PatientPhone: phone,
			Date:         key.Date,
			DoctorID:     key.DoctorID,
			SlotLabel:    label,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := l.store.Insert(ctx, b); err != nil {
			return nil, l.mapWriteErr("insert booking", key, label, uuid.Nil, err)
		}
	}

	b.Warning = l.cal.Closure(key.Date).Warning()
	l.invalidate(ctx, key)
	l.logger.Info().Str("booking_id", b.ID.String()).Str("day", key.String()).Str("slot", label).Msg("booking created")
	return b, nil
}

// Update edits or moves a booking. A move checks the target slot and
// writes the new key in a single store update.
func (l *Ledger) Update(ctx context.Context, e Edit) (b *Booking, err error) {
	ctx, span := tracer.Start(ctx, "scheduling.Update", trace.WithAttributes(
		attribute.String("frontdesk.booking_id", e.BookingID.String()),
	))
	defer l.finish(span, "update", time.Now(), &err)

	for attempt := 0; attempt < maxMoveAttempts; attempt++ {
		cur, err := l.store.Get(ctx, e.BookingID)
		if err != nil {
			return nil, l.mapStoreErr("get booking", e.BookingID.String(), err)
		}
		fields, err := l.applyEdit(cur, e)
		if err != nil {
			return nil, err
		}
		oldKey, newKey := cur.Key(), fields.Key()

		unlock := l.locks.lock(oldKey, newKey)
		b, retry, err := l.updateLocked(ctx, cur, fields)
		unlock()
		if retry {
			continue
		}
		if err != nil {
			return nil, err
		}
		b.Warning = l.cal.Closure(newKey.Date).Warning()
		l.invalidate(ctx, oldKey)
		if !newKey.Date.SameMonth(oldKey.Date) {
			l.invalidate(ctx, newKey)
		}
		l.logger.Info().Str("booking_id", b.ID.String()).Str("from", oldKey.String()).Str("to", newKey.String()).
			Str("slot", b.SlotLabel).Msg("booking updated")
		return b, nil
	}
	return nil, &apperr.ConflictError{
		Resource: "booking",
		Key:      e.BookingID.String(),
		Reason:   "booking is being changed concurrently, please retry",
	}
}

// updateLocked runs with both keys held. retry is set when the booking moved
// between the unlocked read and acquiring the locks.
func (l *Ledger) updateLocked(ctx context.Context, cur *Booking, f BookingFields) (*Booking, bool, error) {
	fresh, err := l.store.Get(ctx, cur.ID)
	if err != nil {
		return nil, false, l.mapStoreErr("get booking", cur.ID.String(), err)
	}
	if fresh.Key() != cur.Key() || fresh.SlotLabel != cur.SlotLabel {
		return nil, true, nil
	}
	newKey := f.Key()
	if newKey != cur.Key() || f.SlotLabel != cur.SlotLabel {
		occ, err := l.ListSlotOccupants(ctx, newKey.Date, newKey.DoctorID)
		if err != nil {
			return nil, false, err
		}
		if other, taken := occ[f.SlotLabel]; taken && other.ID != cur.ID {
			return nil, false, slotTaken(newKey, f.SlotLabel, other.ID)
		}
	}
	b, err := l.store.Update(ctx, cur.ID, f)
	if err != nil {
		return nil, false, l.mapWriteErr("update booking", newKey, f.SlotLabel, cur.ID, err)
	}
	return b, false, nil
}

func (l *Ledger) applyEdit(cur *Booking, e Edit) (BookingFields, error) {
	f := BookingFields{
		PatientName:  cur.PatientName,
		PatientPhone: cur.PatientPhone,
		Date:         cur.Date,
		DoctorID:     cur.DoctorID,
		SlotLabel:    cur.SlotLabel,
	}
	if e.PatientName != nil {
		f.PatientName = *e.PatientName
	}
	if e.PatientPhone != nil {
		f.PatientPhone = *e.PatientPhone
	}
	if e.Date != nil {
		if e.Date.IsZero() {
			return f, apperr.NewValidation("date is required")
		}
		f.Date = *e.Date
	}
	if e.SlotLabel != nil {
		f.SlotLabel = *e.SlotLabel
	}
	if !l.grid.Contains(f.SlotLabel) {
		return f, unknownSlot(f.SlotLabel)
	}
	name, phone, err := intake.Check(f.PatientName, f.PatientPhone)
	if err != nil {
		return f, err
	}
	f.PatientName, f.PatientPhone = name, phone
	return f, nil
}

// Delete removes a booking once confirm approves it.
func (l *Ledger) Delete(ctx context.Context, id uuid.UUID, confirm Confirmer) (err error) {
	ctx, span := tracer.Start(ctx, "scheduling.Delete", trace.WithAttributes(
		attribute.String("frontdesk.booking_id", id.String()),
	))
	defer l.finish(span, "delete", time.Now(), &err)

	b, err := l.store.Get(ctx, id)
	if err != nil {
		return l.mapStoreErr("get booking", id.String(), err)
	}
	if !orNever(confirm).Confirm(ctx, Confirmation{
		Action:  "delete",
		Booking: b,
		Message: fmt.Sprintf("Delete the booking of %s at %s on %s?", b.PatientName, b.SlotLabel, b.Date),
	}) {
		return apperr.ErrCancelled
	}

	key := b.Key()
	unlock := l.locks.lock(key)
	defer unlock()
	if err := l.store.Delete(ctx, id); err != nil {
		return l.mapStoreErr("delete booking", id.String(), err)
	}
	l.invalidate(ctx, key)
	l.logger.Info().Str("booking_id", id.String()).Str("day", key.String()).Msg("booking deleted")
	return nil
}

// Search finds a doctor's bookings by patient name or phone, skipping
// entries that look like test data. A blank query returns nothing.
func (l *Ledger) Search(ctx context.Context, doctorID, query string, limit int) ([]*Booking, error) {
	if doctorID == "" {
		return nil, apperr.NewValidation("doctor is required")
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchFetch {
		limit = maxSearchFetch
	}
	results := []*Booking{}
	if isBlank(query) {
		return results, nil
	}
	// Test-like entries are dropped after the store applies its limit, so
	// widen the fetch until a full page survives or the store runs dry.
	for fetch := limit; ; fetch *= 4 {
		if fetch > maxSearchFetch {
			fetch = maxSearchFetch
		}
		items, err := l.store.Search(ctx, doctorID, query, fetch)
		if err != nil {
			return nil, apperr.Store("search bookings", err)
		}
		results = results[:0]
		for _, b := range items {
			if intake.IsLikelyTestData(b.PatientName, b.PatientPhone) {
				continue
			}
			results = append(results, b)
		}
		if len(results) >= limit || len(items) < fetch || fetch == maxSearchFetch {
			break
		}
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// DayView returns the whole grid of a day with its occupants.
func (l *Ledger) DayView(ctx context.Context, date calendar.Date, doctorID string) (*DaySchedule, error) {
	occ, err := l.ListSlotOccupants(ctx, date, doctorID)
	if err != nil {
		return nil, err
	}
	cl := l.cal.Closure(date)
	v := &DaySchedule{
		Date:      date,
		DoctorID:  doctorID,
		Closed:    cl.Closed,
		Warning:   cl.Warning(),
		Booked:    len(occ),
		Available: DayAvailability(l.grid.Len(), len(occ)),
		Slots:     make([]SlotOccupancy, 0, l.grid.Len()),
	}
	for _, s := range l.grid.slots {
		v.Slots = append(v.Slots, SlotOccupancy{Slot: s, Booking: occ[s.Label]})
	}
	return v, nil
}

func (l *Ledger) invalidate(ctx context.Context, key DayKey) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Invalidate(ctx, key.DoctorID, key.Date.Year, key.Date.Month); err != nil {
		l.logger.Warn().Err(err).Str("day", key.String()).Msg("count cache invalidation failed")
	}
}

func (l *Ledger) finish(span trace.Span, op string, start time.Time, errp *error) {
	err := *errp
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome(err))
		if apperr.IsStore(err) {
			l.logger.Error().Err(err).Str("operation", op).Msg("store failure")
		}
	}
	span.End()
	l.metrics.ObserveOperation(op, outcome(err), time.Since(start))
}

func (l *Ledger) mapStoreErr(op, id string, err error) error {
	if errors.Is(err, ErrBookingNotFound) {
		return &apperr.NotFoundError{Resource: "booking", ID: id}
	}
	return apperr.Store(op, err)
}

func (l *Ledger) mapWriteErr(op string, key DayKey, label string, id uuid.UUID, err error) error {
	switch {
	case errors.Is(err, ErrSlotTaken):
		return slotTaken(key, label, uuid.Nil)
	case errors.Is(err, ErrBookingNotFound):
		return &apperr.NotFoundError{Resource: "booking", ID: id.String()}
	}
	return apperr.Store(op, err)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case apperr.IsValidation(err):
		return "invalid"
	case apperr.IsConflict(err):
		return "conflict"
	case apperr.IsNotFound(err):
		return "not_found"
	case errors.Is(err, apperr.ErrCancelled):
		return "cancelled"
	case apperr.IsStore(err):
		return "store_error"
	}
	return "error"
}

func dayKey(date calendar.Date, doctorID string) (DayKey, error) {
	var reasons []string
	if date.IsZero() {
		reasons = append(reasons, "date is required")
	}
	if isBlank(doctorID) {
		reasons = append(reasons, "doctor is required")
	}
	if len(reasons) > 0 {
		return DayKey{}, apperr.NewValidation(reasons...)
	}
	return DayKey{Date: date, DoctorID: doctorID}, nil
}

func slotTaken(key DayKey, label string, existing uuid.UUID) error {
	ce := &apperr.ConflictError{
		Resource: "slot",
		Key:      label + " on " + key.String(),
		Reason:   "This slot is already taken on the selected date",
	}
	if existing != uuid.Nil {
		ce.ExistingID = existing.String()
	}
	return ce
}

func unknownSlot(label string) error {
	return apperr.NewValidation(fmt.Sprintf("Unknown slot %q", label))
}

func orNever(c Confirmer) Confirmer {
	if c == nil {
		return NeverConfirm
	}
	return c
}

func isBlank(s string) bool { return strings.TrimSpace(s) == "" }

// keyLocks hands out one mutex per DayKey. Entries are dropped when no
// holder or waiter remains.
type keyLocks struct {
	mu    sync.Mutex
	locks map[DayKey]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// lock acquires the locks of keys in a fixed order and returns the release
// function.
func (k *keyLocks) lock(keys ...DayKey) func() {
	uniq := make([]DayKey, 0, len(keys))
	seen := make(map[DayKey]bool, len(keys))
	for _, key := range keys {
		if !seen[key] {
			seen[key] = true
			uniq = append(uniq, key)
		}
	}
	sort.Slice(uniq, func(i, j int) bool { return uniq[i].less(uniq[j]) })

	held := make([]*keyLock, 0, len(uniq))
	for _, key := range uniq {
		kl := k.acquire(key)
		kl.mu.Lock()
		held = append(held, kl)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			k.release(uniq[i])
		}
	}
}

func (k *keyLocks) acquire(key DayKey) *keyLock {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.locks == nil {
		k.locks = make(map[DayKey]*keyLock)
	}
	kl, ok := k.locks[key]
	if !ok {
		kl = &keyLock{}
		k.locks[key] = kl
	}
	kl.refs++
	return kl
}

func (k *keyLocks) release(key DayKey) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if kl, ok := k.locks[key]; ok {
		kl.refs--
		if kl.refs == 0 {
			delete(k.locks, key)
		}
	}
}
