package patient

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/frontdesk/internal/domain/calendar"
	"github.com/clinic/frontdesk/internal/domain/intake"
	"github.com/clinic/frontdesk/internal/platform/apperr"
	"github.com/clinic/frontdesk/pkg/pagination"
)

const (
	ReasonAllFieldsRequired = "All fields are required."
	ReasonAgeRange          = "Age must be between 0 and 150"
	ReasonDuplicateID       = "ID already exists. Please use a unique ID."

	maxAge = 150
)

// Input is a create or edit form. Every field except ID and Doctor is
// required; a blank ID is replaced with a generated one on create.
type Input struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Age       *int           `json:"age"`
	Gender    string         `json:"gender"`
	Contact   string         `json:"contact"`
	VisitDate *calendar.Date `json:"date"`
	Doctor    *string        `json:"doctor"`
}

// Confirmer approves an update or delete of p before it is applied.
type Confirmer interface {
	Confirm(ctx context.Context, action string, p *PatientRecord) bool
}

type ConfirmFunc func(ctx context.Context, action string, p *PatientRecord) bool

func (f ConfirmFunc) Confirm(ctx context.Context, action string, p *PatientRecord) bool {
	return f(ctx, action, p)
}

type Service struct {
	store  PatientStore
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(store PatientStore, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With().Str("component", "patients").Logger(),
		now:    time.Now,
	}
}

func (s *Service) fields(in Input) (PatientFields, error) {
	gender := strings.TrimSpace(in.Gender)
	if strings.TrimSpace(in.Name) == "" || in.Age == nil || gender == "" ||
		strings.TrimSpace(in.Contact) == "" || in.VisitDate == nil || in.VisitDate.IsZero() {
		return PatientFields{}, apperr.NewValidation(ReasonAllFieldsRequired)
	}

	var reasons []string
	name, contact, err := intake.Check(in.Name, in.Contact)
	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		reasons = append(reasons, ve.Reasons...)
	}
	if *in.Age < 0 || *in.Age > maxAge {
		reasons = append(reasons, ReasonAgeRange)
	}
	if len(reasons) > 0 {
		return PatientFields{}, apperr.NewValidation(reasons...)
	}

	var doctor *string
	if in.Doctor != nil {
		if d := strings.TrimSpace(*in.Doctor); d != "" {
			doctor = &d
		}
	}
	return PatientFields{Name: name, Age: *in.Age, Gender: gender, Contact: contact,
		VisitDate: *in.VisitDate, Doctor: doctor}, nil
}

func (s *Service) mapStoreErr(op, id string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrDuplicateID):
		return &apperr.ConflictError{Resource: "patient", Key: id, Reason: ReasonDuplicateID}
	case errors.Is(err, ErrPatientNotFound):
		return &apperr.NotFoundError{Resource: "patient", ID: id}
	}
	s.logger.Error().Err(err).Str("op", op).Str("patient_id", id).Msg("patient store failed")
	return apperr.Store(op, err)
}

func (s *Service) Add(ctx context.Context, in Input) (*PatientRecord, error) {
	f, err := s.fields(in)
	if err != nil {
		return nil, err
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}
	now := s.now().UTC()
	p := &PatientRecord{ID: id, CreatedAt: now, UpdatedAt: now}
	p.apply(f)
	if err := s.store.Add(ctx, p); err != nil {
		return nil, s.mapStoreErr("add", id, err)
	}
	s.logger.Info().Str("patient_id", id).Msg("patient added")
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (*PatientRecord, error) {
	p, err := s.store.Get(ctx, id)
	return p, s.mapStoreErr("get", id, err)
}

// List returns one page of records, filtered by query when it is not blank.
func (s *Service) List(ctx context.Context, query string, pg pagination.Params) ([]*PatientRecord, int, error) {
	var (
		items []*PatientRecord
		err   error
	)
	if strings.TrimSpace(query) == "" {
		items, err = s.store.List(ctx)
	} else {
		items, err = s.store.Search(ctx, query)
	}
	if err != nil {
		return nil, 0, s.mapStoreErr("list", "", err)
	}
	start, end := pg.Window(len(items))
	return items[start:end], len(items), nil
}

func (s *Service) Update(ctx context.Context, id string, in Input, confirm Confirmer) (*PatientRecord, error) {
	f, err := s.fields(in)
	if err != nil {
		return nil, err
	}
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if confirm == nil || !confirm.Confirm(ctx, "update", cur) {
		return nil, apperr.ErrCancelled
	}
	p, err := s.store.Update(ctx, id, f)
	if err != nil {
		return nil, s.mapStoreErr("update", id, err)
	}
	return p, nil
}

func (s *Service) Delete(ctx context.Context, id string, confirm Confirmer) error {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if confirm == nil || !confirm.Confirm(ctx, "delete", cur) {
		return apperr.ErrCancelled
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return s.mapStoreErr("delete", id, err)
	}
	s.logger.Info().Str("patient_id", id).Msg("patient deleted")
	return nil
}
