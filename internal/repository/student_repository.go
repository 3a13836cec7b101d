package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/admissions-sync-api/internal/models"
)

// StudentRepository stores student records as a JSON document keyed by id.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

type studentRow struct {
	ID        string    `db:"id"`
	Record    []byte    `db:"record"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Upsert inserts or replaces the student document.
func (r *StudentRepository) Upsert(ctx context.Context, student models.Student) error {
	if r.db == nil {
		return fmt.Errorf("upsert student: %w", sql.ErrConnDone)
	}
	record, err := json.Marshal(student)
	if err != nil {
		return fmt.Errorf("encode student: %w", err)
	}
	updatedAt := student.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO students (id, record, updated_at) VALUES ($1, $2, $3)
	ON CONFLICT (id) DO UPDATE SET record = EXCLUDED.record, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, student.ID, record, updatedAt); err != nil {
		return fmt.Errorf("upsert student: %w", err)
	}
	return nil
}

// List returns every student row in the shape the normalizer expects.
func (r *StudentRepository) List(ctx context.Context) ([]models.RawRow, error) {
	if r.db == nil {
		return nil, fmt.Errorf("list students: %w", sql.ErrConnDone)
	}
	var rows []studentRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT id, record, updated_at FROM students ORDER BY updated_at DESC`); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	out := make([]models.RawRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.RawRow{"id": row.ID, "record": row.Record, "updated_at": row.UpdatedAt})
	}
	return out, nil
}

// Delete removes a student by id.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	if r.db == nil {
		return fmt.Errorf("delete student: %w", sql.ErrConnDone)
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
