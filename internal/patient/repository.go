package patient

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("patient not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) List(ctx context.Context) ([]Patient, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, medical_record_number, full_name, date_of_birth, phone, created_at, updated_at
		FROM patients
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	patients := make([]Patient, 0)
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patients: %w", err)
	}

	return patients, nil
}

func (r *Repository) Get(ctx context.Context, id string) (Patient, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, medical_record_number, full_name, date_of_birth, phone, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)

	p, err := scanPatient(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Patient{}, ErrNotFound
		}
		return Patient{}, err
	}

	return p, nil
}

func (r *Repository) Create(ctx context.Context, input Input) (Patient, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Patient{}, fmt.Errorf("generate patient id: %w", err)
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO patients (id, medical_record_number, full_name, date_of_birth, phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, id.String(), input.MedicalRecordNumber, input.FullName, input.DateOfBirth, input.Phone, now)
	if err != nil {
		return Patient{}, fmt.Errorf("insert patient: %w", err)
	}

	return r.Get(ctx, id.String())
}

func (r *Repository) Update(ctx context.Context, id string, input Input) (Patient, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE patients
		SET medical_record_number = $2, full_name = $3, date_of_birth = $4, phone = $5, updated_at = $6
		WHERE id = $1
	`, id, input.MedicalRecordNumber, input.FullName, input.DateOfBirth, input.Phone, time.Now().UTC())
	if err != nil {
		return Patient{}, fmt.Errorf("update patient: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return Patient{}, fmt.Errorf("update patient rows affected: %w", err)
	}
	if affected == 0 {
		return Patient{}, ErrNotFound
	}

	return r.Get(ctx, id)
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete patient rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPatient(row rowScanner) (Patient, error) {
	var p Patient
	var dateOfBirth sql.NullTime

	err := row.Scan(&p.ID, &p.MedicalRecordNumber, &p.FullName, &dateOfBirth, &p.Phone, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Patient{}, err
		}
		return Patient{}, fmt.Errorf("scan patient: %w", err)
	}

	if dateOfBirth.Valid {
		value := dateOfBirth.Time.UTC()
		p.DateOfBirth = &value
	}

	return p, nil
}
