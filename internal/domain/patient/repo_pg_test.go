package patient

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinic/frontdesk/internal/domain/calendar"
)

var patientColumns = []string{"id", "name", "age", "gender", "contact", "date", "doctor", "created_at", "updated_at"}

func newPGStore(t *testing.T) (PatientStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPatientStorePG(mock), mock
}

func TestPatientStorePG_AddDuplicate(t *testing.T) {
	s, mock := newPGStore(t)
	now := time.Now()
	p := &PatientRecord{ID: "P1", Name: "Asha Rao", Age: 34, Gender: "Female", Contact: "9876543210",
		VisitDate: calendar.MustParseDate("2025-03-03"), CreatedAt: now, UpdatedAt: now}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO patients")).
		WithArgs("P1", "Asha Rao", 34, "Female", "9876543210", p.VisitDate.Time(), p.Doctor, now, now).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	assert.ErrorIs(t, s.Add(context.Background(), p), ErrDuplicateID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientStorePG_GetAndNotFound(t *testing.T) {
	s, mock := newPGStore(t)
	now := time.Now()
	doctor := "Aditi Mam"
	visit := calendar.MustParseDate("2025-03-03")

	mock.ExpectQuery("FROM patients WHERE id").WithArgs("P1").
		WillReturnRows(pgxmock.NewRows(patientColumns).
			AddRow("P1", "Asha Rao", 34, "Female", "9876543210", visit.Time(), &doctor, now, now))
	mock.ExpectQuery("FROM patients WHERE id").WithArgs("P2").WillReturnError(pgx.ErrNoRows)

	p, err := s.Get(context.Background(), "P1")
	require.NoError(t, err)
	assert.Equal(t, visit, p.VisitDate)
	require.NotNil(t, p.Doctor)
	assert.Equal(t, doctor, *p.Doctor)

	_, err = s.Get(context.Background(), "P2")
	assert.ErrorIs(t, err, ErrPatientNotFound)
}

func TestPatientStorePG_UpdateDelete(t *testing.T) {
	s, mock := newPGStore(t)
	f := PatientFields{Name: "Asha Rao", Age: 35, Gender: "Female", Contact: "9876543210",
		VisitDate: calendar.MustParseDate("2025-03-04")}

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE patients SET")).
		WithArgs("P9", f.Name, f.Age, f.Gender, f.Contact, f.VisitDate.Time(), f.Doctor).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM patients")).WithArgs("P9").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	_, err := s.Update(context.Background(), "P9", f)
	assert.ErrorIs(t, err, ErrPatientNotFound)
	assert.ErrorIs(t, s.Delete(context.Background(), "P9"), ErrPatientNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientStorePG_Search(t *testing.T) {
	s, mock := newPGStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("LOWER(COALESCE(doctor, '')) LIKE $1")).
		WithArgs("%asha%").
		WillReturnRows(pgxmock.NewRows(patientColumns))

	items, err := s.Search(context.Background(), " Asha ")
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NoError(t, mock.ExpectationsWereMet())
}
