package patient

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/clinic/frontdesk/internal/domain/calendar"
	"github.com/clinic/frontdesk/internal/platform/db"
)

type patientStorePG struct{ db db.DBTX }

func NewPatientStorePG(conn db.DBTX) PatientStore { return &patientStorePG{db: conn} }

const patientCols = `id, name, age, gender, contact, date, doctor, created_at, updated_at`

func (r *patientStorePG) scanPatient(row pgx.Row) (*PatientRecord, error) {
	var p PatientRecord
	var date time.Time
	if err := row.Scan(&p.ID, &p.Name, &p.Age, &p.Gender, &p.Contact, &date, &p.Doctor,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.VisitDate = calendar.DateOf(date)
	return &p, nil
}

func (r *patientStorePG) scanAll(rows pgx.Rows) ([]*PatientRecord, error) {
	defer rows.Close()
	var items []*PatientRecord
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *patientStorePG) List(ctx context.Context) ([]*PatientRecord, error) {
	rows, err := r.db.Query(ctx, `SELECT `+patientCols+` FROM patients ORDER BY date DESC, name`)
	if err != nil {
		return nil, err
	}
	return r.scanAll(rows)
}

func (r *patientStorePG) Get(ctx context.Context, id string) (*PatientRecord, error) {
	p, err := r.scanPatient(r.db.QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPatientNotFound
	}
	return p, err
}

func (r *patientStorePG) Add(ctx context.Context, p *PatientRecord) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO patients (id, name, age, gender, contact, date, doctor, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		p.ID, p.Name, p.Age, p.Gender, p.Contact, p.VisitDate.Time(), p.Doctor, p.CreatedAt, p.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrDuplicateID
	}
	return err
}

func (r *patientStorePG) Update(ctx context.Context, id string, f PatientFields) (*PatientRecord, error) {
	p, err := r.scanPatient(r.db.QueryRow(ctx, `
		UPDATE patients SET name=$2, age=$3, gender=$4, contact=$5, date=$6, doctor=$7, updated_at=NOW()
		WHERE id = $1
		RETURNING `+patientCols,
		id, f.Name, f.Age, f.Gender, f.Contact, f.VisitDate.Time(), f.Doctor))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPatientNotFound
	}
	return p, err
}

func (r *patientStorePG) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

func (r *patientStorePG) Search(ctx context.Context, query string) ([]*PatientRecord, error) {
	pattern := db.LikeContains(strings.ToLower(strings.TrimSpace(query)))
	rows, err := r.db.Query(ctx, `SELECT `+patientCols+` FROM patients
		WHERE LOWER(name) LIKE $1 OR LOWER(id) LIKE $1 OR age::text LIKE $1 OR LOWER(gender) LIKE $1
			OR LOWER(contact) LIKE $1 OR to_char(date, 'YYYY-MM-DD') LIKE $1 OR LOWER(COALESCE(doctor, '')) LIKE $1
		ORDER BY date DESC, name`, pattern)
	if err != nil {
		return nil, err
	}
	return r.scanAll(rows)
}
