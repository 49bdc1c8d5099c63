package patient

import (
	"context"
	"sort"
	"time"

	"github.com/clinic/frontdesk/internal/platform/localstore"
)

const patientsFeature = "patients"

var recordsKey = localstore.Key{Feature: patientsFeature, Identity: "records"}

type patientStoreLocal struct {
	docs *localstore.Store
	now  func() time.Time
}

// NewPatientStoreLocal keeps every record in a single local document.
func NewPatientStoreLocal(docs *localstore.Store) PatientStore {
	return &patientStoreLocal{docs: docs, now: time.Now}
}

func (r *patientStoreLocal) load() []*PatientRecord {
	var items []*PatientRecord
	r.docs.Load(recordsKey, &items)
	return items
}

func indexOf(items []*PatientRecord, id string) int {
	for i, p := range items {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func sorted(items []*PatientRecord) []*PatientRecord {
	out := make([]*PatientRecord, 0, len(items))
	for _, p := range items {
		out = append(out, p.clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].VisitDate != out[j].VisitDate {
			return out[j].VisitDate.Before(out[i].VisitDate)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (r *patientStoreLocal) List(context.Context) ([]*PatientRecord, error) {
	return sorted(r.load()), nil
}

func (r *patientStoreLocal) Get(_ context.Context, id string) (*PatientRecord, error) {
	items := r.load()
	i := indexOf(items, id)
	if i < 0 {
		return nil, ErrPatientNotFound
	}
	return items[i].clone(), nil
}

func (r *patientStoreLocal) Add(_ context.Context, p *PatientRecord) error {
	var items []*PatientRecord
	return r.docs.Update(recordsKey, &items, func() error {
		if indexOf(items, p.ID) >= 0 {
			return ErrDuplicateID
		}
		items = append(items, p.clone())
		return nil
	})
}

func (r *patientStoreLocal) Update(_ context.Context, id string, f PatientFields) (*PatientRecord, error) {
	var items []*PatientRecord
	var out *PatientRecord
	err := r.docs.Update(recordsKey, &items, func() error {
		i := indexOf(items, id)
		if i < 0 {
			return ErrPatientNotFound
		}
		items[i].apply(f)
		items[i].UpdatedAt = r.now().UTC()
		out = items[i].clone()
		return nil
	})
	return out, err
}

func (r *patientStoreLocal) Delete(_ context.Context, id string) error {
	var items []*PatientRecord
	return r.docs.Update(recordsKey, &items, func() error {
		i := indexOf(items, id)
		if i < 0 {
			return ErrPatientNotFound
		}
		items = append(items[:i], items[i+1:]...)
		return nil
	})
}

func (r *patientStoreLocal) Search(_ context.Context, query string) ([]*PatientRecord, error) {
	var out []*PatientRecord
	for _, p := range r.load() {
		if p.Matches(query) {
			out = append(out, p)
		}
	}
	return sorted(out), nil
}
