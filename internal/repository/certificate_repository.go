package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/admissions-sync-api/internal/models"
)

const certificateColumns = `id, student_id, batch_id, course_id, certificate_type, requester_name, requester_email,
       requested_at, status, approved_by, approved_at, printing_started_at, ready_at, delivered_at, cancelled_at,
       notes, COALESCE(metadata, '{}'::jsonb) AS metadata, COALESCE(status_history, '[]'::jsonb) AS status_history,
       created_at, updated_at`

// CertificateRepository persists certificate requests.
type CertificateRepository struct {
	db *sqlx.DB
}

// NewCertificateRepository constructs the repository.
func NewCertificateRepository(db *sqlx.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

// Create inserts a new certificate request.
func (r *CertificateRepository) Create(ctx context.Context, req *models.CertificateRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if req.RequestedAt.IsZero() {
		req.RequestedAt = now
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	if req.UpdatedAt.IsZero() {
		req.UpdatedAt = req.CreatedAt
	}
	if len(req.StatusHistory) == 0 {
		req.StatusHistory = []byte("[]")
	}
	const query = `INSERT INTO certificates
	(id, student_id, batch_id, course_id, certificate_type, requester_name, requester_email, requested_at, status,
	 notes, metadata, status_history, created_at, updated_at)
	VALUES (:id, :student_id, :batch_id, :course_id, :certificate_type, :requester_name, :requester_email, :requested_at, :status,
	 :notes, :metadata, :status_history, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}
	return nil
}

// GetByID fetches a certificate request.
func (r *CertificateRepository) GetByID(ctx context.Context, id string) (*models.CertificateRequest, error) {
	var req models.CertificateRequest
	if err := r.db.GetContext(ctx, &req, `SELECT `+certificateColumns+` FROM certificates WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// List returns certificate requests newest first.
func (r *CertificateRepository) List(ctx context.Context, filter models.CertificateFilter) ([]models.CertificateRequest, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(`SELECT ` + certificateColumns + ` FROM certificates`)

	conditions := make([]string, 0, 2)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY requested_at DESC")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		builder.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		builder.WriteString(fmt.Sprintf(" OFFSET $%d", len(args)))
	}

	var out []models.CertificateRequest
	if err := r.db.SelectContext(ctx, &out, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	return out, nil
}

// UpdateStatus persists a status change with its timestamps and history.
func (r *CertificateRepository) UpdateStatus(ctx context.Context, req *models.CertificateRequest) error {
	const query = `UPDATE certificates SET status = :status, approved_by = :approved_by, approved_at = :approved_at,
	printing_started_at = :printing_started_at, ready_at = :ready_at, delivered_at = :delivered_at,
	cancelled_at = :cancelled_at, notes = :notes, status_history = :status_history, updated_at = :updated_at
	WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, req)
	if err != nil {
		return fmt.Errorf("update certificate status: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a certificate request.
func (r *CertificateRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM certificates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete certificate: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
