package patient

import (
	"context"
	"errors"
)

var (
	ErrDuplicateID     = errors.New("patient id already exists")
	ErrPatientNotFound = errors.New("patient not found")
)

// PatientStore persists dashboard patient records. List and Search return
// records ordered by visit date, newest first, then by name.
type PatientStore interface {
	List(ctx context.Context) ([]*PatientRecord, error)
	Get(ctx context.Context, id string) (*PatientRecord, error)
	Add(ctx context.Context, p *PatientRecord) error
	Update(ctx context.Context, id string, f PatientFields) (*PatientRecord, error)
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, query string) ([]*PatientRecord, error)
}
