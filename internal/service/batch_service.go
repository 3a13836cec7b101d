package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/admissions-sync-api/internal/dto"
	"github.com/noah-isme/admissions-sync-api/internal/models"
	appErrors "github.com/noah-isme/admissions-sync-api/pkg/errors"
	"github.com/noah-isme/admissions-sync-api/pkg/realtime"
)

const batchesTable = "batches"

// BatchService lists and creates course cohorts. Batches live only in the
// relational store: creating one while it is unreachable fails.
type BatchService struct {
	view       *ViewStore[models.Batch]
	store      rowInserter
	normalizer *Normalizer
	publisher  realtime.Publisher
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// BatchOption configures optional collaborators.
type BatchOption func(*BatchService)

// WithBatchPublisher broadcasts created batches.
func WithBatchPublisher(p realtime.Publisher) BatchOption {
	return func(s *BatchService) { s.publisher = publisherOrNoop(p) }
}

// WithBatchClock overrides the clock.
func WithBatchClock(now func() time.Time) BatchOption {
	return func(s *BatchService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewBatchService constructs the service.
func NewBatchService(view *ViewStore[models.Batch], store rowInserter, normalizer *Normalizer, validate *validator.Validate, logger *zap.Logger, opts ...BatchOption) *BatchService {
	if validate == nil {
		validate = validator.New()
	}
	if normalizer == nil {
		normalizer = NewNormalizer(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &BatchService{
		view:       view,
		store:      store,
		normalizer: normalizer,
		publisher:  noopPublisher{},
		validator:  validate,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// List filters batches by status, campus and free text, newest first.
func (s *BatchService) List(filter models.ListFilter) ([]models.Batch, *models.Pagination) {
	all := s.view.List()
	out := make([]models.Batch, 0, len(all))
	for _, b := range all {
		if !equalFoldOrEmpty(filter.Status, b.Status) || !equalFoldOrEmpty(filter.Campus, b.Campus) {
			continue
		}
		if !containsFold(filter.Search, b.ID, b.Code, b.Course, b.Instructor) {
			continue
		}
		out = append(out, b)
	}
	return page(out, filter)
}

// Create inserts a batch. A duplicate code is a conflict.
func (s *BatchService) Create(ctx context.Context, req dto.CreateBatchRequest) (*models.Batch, error) {
	req.Course = strings.TrimSpace(req.Course)
	req.Campus = strings.TrimSpace(req.Campus)
	req.Code = strings.TrimSpace(req.Code)
	req.Instructor = strings.TrimSpace(req.Instructor)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation, "course, campus, code, dates, instructor and capacity are required")
	}
	if req.EndDate < req.StartDate {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date must not be before start date")
	}
	if s.store == nil {
		return nil, appErrors.Clone(appErrors.ErrNetworkUnavailable, "batch store is not configured")
	}

	row := models.RawRow{
		"course_name":      req.Course,
		"campus_name":      req.Campus,
		"batch_code":       req.Code,
		"start_date":       req.StartDate,
		"end_date":         req.EndDate,
		"instructor":       req.Instructor,
		"max_students":     req.MaxStudents,
		"current_students": req.CurrentStudents,
	}
	saved, err := s.store.Insert(ctx, row)
	if err != nil {
		classified := storeError(err, "batch not found")
		if appErrors.IsKind(classified, appErrors.KindUniqueConflict) {
			return nil, appErrors.Wrap(err, appErrors.ErrConflict, "Batch code already exists")
		}
		return nil, classified
	}

	rec := s.normalizer.Batch(saved)
	if rec.CreatedAt.IsZero() {
		now := s.now()
		rec.CreatedAt, rec.UpdatedAt = now, now
	}
	if rec.ID != "" {
		s.view.Put(rec)
	}
	change := realtime.Change{Table: batchesTable, Type: realtime.ChangeInsert, Record: map[string]any(saved), At: s.now()}
	if err := s.publisher.Publish(ctx, change); err != nil {
		s.logger.Warn("publish batch insert failed", zap.String("code", rec.Code), zap.Error(err))
	}
	s.logger.Info("batch created", zap.String("id", rec.ID), zap.String("code", rec.Code))
	return &rec, nil
}
