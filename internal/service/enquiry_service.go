package service

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/admissions-sync-api/internal/dto"
	"github.com/noah-isme/admissions-sync-api/internal/models"
	"github.com/noah-isme/admissions-sync-api/internal/repository"
	appErrors "github.com/noah-isme/admissions-sync-api/pkg/errors"
	"github.com/noah-isme/admissions-sync-api/pkg/importer"
	"github.com/noah-isme/admissions-sync-api/pkg/realtime"
)

const unassignedBatch = "UNASSIGNED"

// EnquiryService manages leads and their conversion into students.
type EnquiryService struct {
	view       *ViewStore[models.Enquiry]
	store      rowStore
	buffer     localBuffer
	students   *StudentService
	normalizer *Normalizer
	publisher  realtime.Publisher
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// EnquiryOption configures optional collaborators.
type EnquiryOption func(*EnquiryService)

// WithEnquiryPublisher broadcasts enquiry writes.
func WithEnquiryPublisher(p realtime.Publisher) EnquiryOption {
	return func(s *EnquiryService) { s.publisher = publisherOrNoop(p) }
}

// WithEnquiryClock overrides the clock.
func WithEnquiryClock(now func() time.Time) EnquiryOption {
	return func(s *EnquiryService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewEnquiryService constructs the enquiry service.
func NewEnquiryService(view *ViewStore[models.Enquiry], store rowStore, buffer localBuffer, students *StudentService, normalizer *Normalizer, validate *validator.Validate, logger *zap.Logger, opts ...EnquiryOption) *EnquiryService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if normalizer == nil {
		normalizer = NewNormalizer(nil)
	}
	s := &EnquiryService{
		view:       view,
		store:      store,
		buffer:     buffer,
		students:   students,
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

// List filters enquiries by status, campus and free text.
func (s *EnquiryService) List(filter models.ListFilter) ([]models.Enquiry, *models.Pagination) {
	all := s.view.List()
	out := make([]models.Enquiry, 0, len(all))
	for _, enq := range all {
		if !equalFoldOrEmpty(filter.Status, string(enq.Status)) || !equalFoldOrEmpty(filter.Campus, enq.Campus) {
			continue
		}
		if !containsFold(filter.Search, enq.ID, enq.Name, enq.Contact, enq.Email, enq.Course, enq.City) {
			continue
		}
		out = append(out, enq)
	}
	return page(out, filter)
}

// Get returns one enquiry.
func (s *EnquiryService) Get(id string) (*models.Enquiry, error) {
	enq, ok := s.view.Get(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "enquiry not found")
	}
	return &enq, nil
}

// Create records a new enquiry, buffering it when the store is unreachable.
func (s *EnquiryService) Create(ctx context.Context, req dto.CreateEnquiryRequest) (*models.Enquiry, error) {
	req = trimEnquiry(req)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation, "name, course and contact are required")
	}
	if req.Stage == "" {
		req.Stage = models.EnquiryStageProspective
	}
	if !ValidEnquiryStage(req.Stage) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown enquiry stage "+strconv.Quote(string(req.Stage)))
	}

	now := s.now()
	enq := models.Enquiry{
		Name:         req.Name,
		Course:       req.Course,
		Contact:      req.Contact,
		Email:        req.Email,
		City:         req.City,
		Sources:      append([]string{}, req.Sources...),
		Stage:        req.Stage,
		Status:       models.EnquiryStatusPending,
		NextFollowUp: req.NextFollowUp,
		Probability:  req.Probability,
		Remarks:      req.Remarks,
		Campus:       req.Campus,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if s.store != nil {
		row, err := s.store.Insert(ctx, EnquiryRow(enq))
		if err == nil {
			rec := s.normalizer.Enquiry(row, models.ProvenanceEnquiries)
			if rec.CreatedAt.IsZero() {
				rec.CreatedAt, rec.UpdatedAt = now, now
			}
			s.view.Put(rec)
			s.publish(ctx, realtime.ChangeInsert, EnquiryRow(rec))
			return &rec, nil
		}
		if !unreachable(err) {
			return nil, storeError(err, "enquiry not found")
		}
		s.logger.Warn("enquiry store unreachable, buffering", zap.Error(err))
	}
	enq.ID = localIDPrefix + uuid.NewString()
	return s.bufferEdit(enq)
}

// Import creates one enquiry per spreadsheet row. Invalid rows are skipped
// and reported; an unreachable store still buffers each row.
func (s *EnquiryService) Import(ctx context.Context, r io.Reader, filename string) (*dto.ImportResult, error) {
	rows, err := importer.Parse(r, filename)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation, "could not read import file")
	}
	result := &dto.ImportResult{Skipped: []dto.ImportIssue{}}
	for _, row := range rows {
		req, err := enquiryFromImport(row)
		if err == nil {
			_, err = s.Create(ctx, req)
		}
		if err != nil {
			result.Skipped = append(result.Skipped, dto.ImportIssue{Line: row.Line, Reason: appErrors.HumanMessage(err)})
			continue
		}
		result.Imported++
	}
	s.logger.Info("enquiries imported", zap.String("file", filename), zap.Int("imported", result.Imported), zap.Int("skipped", len(result.Skipped)))
	return result, nil
}

func enquiryFromImport(row importer.Row) (dto.CreateEnquiryRequest, error) {
	f := row.Fields
	req := dto.CreateEnquiryRequest{
		Name:    f["name"],
		Course:  f["course"],
		Contact: f["contact"],
		Email:   f["email"],
		City:    f["city"],
		Stage:   models.EnquiryStage(f["stage"]),
		Remarks: f["remarks"],
		Campus:  f["campus"],
	}
	for _, src := range strings.FieldsFunc(f["sources"], func(r rune) bool { return r == ',' || r == ';' || r == '|' }) {
		if src = strings.TrimSpace(src); src != "" {
			req.Sources = append(req.Sources, src)
		}
	}
	if raw := strings.TrimSpace(f["probability"]); raw != "" {
		p, err := strconv.Atoi(strings.TrimSuffix(raw, "%"))
		if err != nil {
			return req, appErrors.Clone(appErrors.ErrValidation, "probability must be a number")
		}
		req.Probability = p
	}
	if raw := strings.TrimSpace(f["next_follow_up"]); raw != "" {
		next, ok := rowTime(models.RawRow{"d": raw}, "d")
		if !ok {
			return req, appErrors.Clone(appErrors.ErrValidation, "next follow-up is not a date")
		}
		req.NextFollowUp = &next
	}
	return req, nil
}

// UpdateStage moves the enquiry to another pipeline stage.
func (s *EnquiryService) UpdateStage(ctx context.Context, id string, req dto.UpdateEnquiryStageRequest) (*models.Enquiry, error) {
	if err := s.validator.Struct(req); err != nil || !ValidEnquiryStage(req.Stage) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown enquiry stage "+strconv.Quote(string(req.Stage)))
	}
	return s.edit(ctx, id, func(enq *models.Enquiry) (bool, error) {
		if enq.Stage == req.Stage {
			return false, nil
		}
		enq.Stage = req.Stage
		return true, nil
	})
}

// ScheduleFollowUp sets the next contact date and optional remarks.
func (s *EnquiryService) ScheduleFollowUp(ctx context.Context, id string, req dto.ScheduleFollowUpRequest) (*models.Enquiry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation, "next follow-up date is required")
	}
	return s.edit(ctx, id, func(enq *models.Enquiry) (bool, error) {
		next := req.NextFollowUp.UTC()
		enq.NextFollowUp = &next
		if r := strings.TrimSpace(req.Remarks); r != "" {
			enq.Remarks = r
		}
		return true, nil
	})
}

// UpdateStatus closes the enquiry.
func (s *EnquiryService) UpdateStatus(ctx context.Context, id string, req dto.UpdateEnquiryStatusRequest) (*models.Enquiry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation, "status is required")
	}
	return s.edit(ctx, id, func(enq *models.Enquiry) (bool, error) {
		return EnquiryLifecycle.Check(enq.Status, req.Status)
	}, func(enq *models.Enquiry) { enq.Status = req.Status })
}

// Convert enrolls the enquiry and creates its student. Converting an
// enquiry already linked to a student returns the existing pair.
func (s *EnquiryService) Convert(ctx context.Context, id string, req dto.ConvertEnquiryRequest) (*models.Enquiry, *models.Student, error) {
	enq, err := s.Get(id)
	if err != nil {
		return nil, nil, err
	}
	if enq.StudentID != "" {
		var student *models.Student
		if s.students != nil {
			student, _ = s.students.Get(enq.StudentID)
		}
		return enq, student, nil
	}
	if _, err := EnquiryLifecycle.Check(enq.Status, models.EnquiryStatusEnrolled); err != nil {
		return nil, nil, err
	}
	if s.students == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrInternal, "student store is not configured")
	}

	now := s.now()
	studentID := GenerateStudentID(enq.Name, now)
	if existing, ok := s.students.PromotedFrom("", enq.ID); ok {
		studentID = existing.ID
	}
	student, err := s.students.Promote(ctx, PromotionFromEnquiry(*enq, studentID, strings.TrimSpace(req.Batch), strings.TrimSpace(req.Campus), now))
	if err != nil {
		return nil, nil, err
	}
	next := enq.Clone()
	next.Status = models.EnquiryStatusEnrolled
	next.StudentID = student.ID
	saved, err := s.save(ctx, next)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("enquiry converted", zap.String("id", id), zap.String("student_id", student.ID))
	return saved, student, nil
}

// edit runs check on a copy, then the optional apply steps, and saves.
func (s *EnquiryService) edit(ctx context.Context, id string, check func(*models.Enquiry) (bool, error), apply ...func(*models.Enquiry)) (*models.Enquiry, error) {
	current, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	next := current.Clone()
	changed, err := check(&next)
	if err != nil {
		return nil, err
	}
	if !changed {
		return current, nil
	}
	for _, fn := range apply {
		fn(&next)
	}
	return s.save(ctx, next)
}

func (s *EnquiryService) save(ctx context.Context, enq models.Enquiry) (*models.Enquiry, error) {
	enq.UpdatedAt = s.now()
	if enq.Origin().IsLocal() || s.store == nil {
		return s.bufferEdit(enq)
	}
	_, err := s.store.Update(ctx, enq.ID, enquiryPatch(enq))
	switch {
	case err == nil:
		s.view.Put(enq)
		s.publish(ctx, realtime.ChangeUpdate, EnquiryRow(enq))
		return &enq, nil
	case unreachable(err):
		s.logger.Warn("enquiry store unreachable, edit buffered", zap.String("id", enq.ID), zap.Error(err))
		return s.bufferEdit(enq)
	default:
		return nil, storeError(err, "enquiry not found")
	}
}

func (s *EnquiryService) bufferEdit(enq models.Enquiry) (*models.Enquiry, error) {
	if s.buffer == nil {
		return nil, appErrors.Clone(appErrors.ErrNetworkUnavailable, "enquiry store unreachable and no local buffer configured")
	}
	enq.Provenance = models.ProvenanceLocalEnquiries
	enq.SyncState = models.SyncStatePending
	if err := s.buffer.Put(repository.CollectionEnquiries, enq.ID, enq); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to buffer enquiry")
	}
	s.view.Put(enq)
	return &enq, nil
}

func (s *EnquiryService) publish(ctx context.Context, kind realtime.ChangeType, row map[string]any) {
	if err := s.publisher.Publish(ctx, realtime.Change{Table: "enquiries", Type: kind, Record: row, At: s.now()}); err != nil {
		s.logger.Warn("publish enquiry change failed", zap.Error(err))
	}
}

func enquiryPatch(enq models.Enquiry) models.RawRow {
	return models.RawRow{
		"stage":          string(enq.Stage),
		"status":         string(enq.Status),
		"next_follow_up": nullableTime(enq.NextFollowUp),
		"remarks":        nullable(enq.Remarks),
		"probability":    enq.Probability,
		"student_id":     nullable(enq.StudentID),
		"updated_at":     enq.UpdatedAt,
	}
}

func nullableTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}

// EnquiryRow is the enquiries table row for a record. Empty ids are left
// for the store to assign.
func EnquiryRow(enq models.Enquiry) models.RawRow {
	row := enquiryPatch(enq)
	row["name"] = enq.Name
	row["course"] = enq.Course
	row["contact"] = enq.Contact
	row["email"] = nullable(enq.Email)
	row["city"] = enq.City
	row["sources"] = append([]string{}, enq.Sources...)
	row["campus"] = nullable(enq.Campus)
	row["created_at"] = enq.CreatedAt
	if enq.ID != "" && !strings.HasPrefix(enq.ID, localIDPrefix) {
		row["id"] = enq.ID
	}
	return row
}

func trimEnquiry(req dto.CreateEnquiryRequest) dto.CreateEnquiryRequest {
	req.Name = strings.TrimSpace(req.Name)
	req.Course = strings.TrimSpace(req.Course)
	req.Contact = strings.TrimSpace(req.Contact)
	req.Email = strings.TrimSpace(req.Email)
	req.City = strings.TrimSpace(req.City)
	req.Remarks = strings.TrimSpace(req.Remarks)
	req.Campus = strings.TrimSpace(req.Campus)
	return req
}
