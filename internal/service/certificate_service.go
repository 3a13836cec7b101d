package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/admissions-sync-api/internal/dto"
	"github.com/noah-isme/admissions-sync-api/internal/models"
	appErrors "github.com/noah-isme/admissions-sync-api/pkg/errors"
)

type certificateRepository interface {
	Create(ctx context.Context, req *models.CertificateRequest) error
	GetByID(ctx context.Context, id string) (*models.CertificateRequest, error)
	List(ctx context.Context, filter models.CertificateFilter) ([]models.CertificateRequest, error)
	UpdateStatus(ctx context.Context, req *models.CertificateRequest) error
	Delete(ctx context.Context, id string) error
}

type studentLookup interface {
	Get(id string) (*models.Student, error)
}

// CertificateService handles certificate requests and their lifecycle.
type CertificateService struct {
	repo      certificateRepository
	students  studentLookup
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewCertificateService constructs the certificate service. students may be
// nil; when set it fills requester details from the student record.
func NewCertificateService(repo certificateRepository, students studentLookup, validate *validator.Validate, logger *zap.Logger) *CertificateService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CertificateService{
		repo:      repo,
		students:  students,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create opens a request in the requested state.
func (s *CertificateService) Create(ctx context.Context, req dto.CreateCertificateRequest, actor string) (*models.CertificateRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation, "studentId or requesterName is required")
	}
	if len(req.Metadata) > 0 && !json.Valid(req.Metadata) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "metadata must be valid JSON")
	}
	if req.StudentID != "" && s.students != nil {
		if st, err := s.students.Get(req.StudentID); err == nil {
			req.RequesterName = firstNonEmpty(req.RequesterName, st.Name)
			req.RequesterEmail = firstNonEmpty(req.RequesterEmail, st.Email)
			req.CourseID = firstNonEmpty(req.CourseID, st.Admission.Course)
			req.BatchID = firstNonEmpty(req.BatchID, st.Admission.Batch)
		}
	}

	now := s.now()
	cert := &models.CertificateRequest{
		StudentID:       optional(req.StudentID),
		BatchID:         optional(req.BatchID),
		CourseID:        optional(req.CourseID),
		CertificateType: optional(req.CertificateType),
		RequesterName:   optional(req.RequesterName),
		RequesterEmail:  optional(req.RequesterEmail),
		Notes:           optional(req.Notes),
		Metadata:        models.JSONColumn(req.Metadata),
		RequestedAt:     now,
		Status:          models.CertificateStatusRequested,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	history := []models.CertificateHistoryEntry{{Status: models.CertificateStatusRequested, At: now, By: firstNonEmpty(actor, req.RequesterName)}}
	raw, err := marshalJSON(history)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to encode status history")
	}
	cert.StatusHistory = raw

	if err := s.repo.Create(ctx, cert); err != nil {
		return nil, storeError(err, "certificate not found")
	}
	s.logger.Info("certificate requested", zap.String("id", cert.ID))
	return cert, nil
}

// List returns requests newest first.
func (s *CertificateService) List(ctx context.Context, filter models.CertificateFilter) ([]models.CertificateRequest, error) {
	if filter.Status != "" && !CertificateLifecycle.Known(filter.Status) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown certificate status")
	}
	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, storeError(err, "certificate not found")
	}
	if items == nil {
		items = []models.CertificateRequest{}
	}
	return items, nil
}

// Get returns one request.
func (s *CertificateService) Get(ctx context.Context, id string) (*models.CertificateRequest, error) {
	cert, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "certificate not found")
	}
	return cert, nil
}

// UpdateStatus advances a request, stamping the matching timestamp and
// appending to its history. A same-state update is a no-op.
func (s *CertificateService) UpdateStatus(ctx context.Context, id string, req dto.UpdateCertificateStatusRequest, actor string) (*models.CertificateRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation, "status is required")
	}
	cert, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	changed, err := CertificateLifecycle.Check(cert.Status, req.Status)
	if err != nil {
		return nil, err
	}
	if !changed {
		return cert, nil
	}
	if err := StampCertificate(cert, req.Status, actor, strings.TrimSpace(req.Note), s.now()); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to record status history")
	}
	if note := strings.TrimSpace(req.Note); note != "" {
		cert.Notes = &note
	}
	if err := s.repo.UpdateStatus(ctx, cert); err != nil {
		return nil, storeError(err, "certificate not found")
	}
	s.logger.Info("certificate status changed", zap.String("id", id), zap.String("status", string(req.Status)), zap.String("by", actor))
	return cert, nil
}

// Delete removes a request.
func (s *CertificateService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return storeError(err, "certificate not found")
	}
	return nil
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
