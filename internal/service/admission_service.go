package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/admissions-sync-api/internal/dto"
	"github.com/noah-isme/admissions-sync-api/internal/models"
	"github.com/noah-isme/admissions-sync-api/internal/repository"
	appErrors "github.com/noah-isme/admissions-sync-api/pkg/errors"
	"github.com/noah-isme/admissions-sync-api/pkg/export"
	"github.com/noah-isme/admissions-sync-api/pkg/realtime"
)

type admissionIngester interface {
	Submit(ctx context.Context, sub dto.AdmissionSubmission) (*IngestResult, error)
}

// AdmissionTables are the writable stores an admission may live in.
// Missing entries are simply not written to.
type AdmissionTables struct {
	Applications rowStore
	Admissions   rowStore
	Public       rowStore
}

func (t AdmissionTables) forSource(source models.Provenance) rowStore {
	switch source {
	case models.ProvenanceApplications:
		return t.Applications
	case models.ProvenanceAdmissions:
		return t.Admissions
	case models.ProvenancePublicApplications:
		return t.Public
	}
	return nil
}

func (t AdmissionTables) all() []rowStore {
	out := make([]rowStore, 0, 3)
	for _, store := range []rowStore{t.Applications, t.Admissions, t.Public} {
		if store != nil {
			out = append(out, store)
		}
	}
	return out
}

// AdmissionService drives applications through their lifecycle.
type AdmissionService struct {
	view      *ViewStore[models.Admission]
	students  *StudentService
	ingest    admissionIngester
	tables    AdmissionTables
	buffer    localBuffer
	publisher realtime.Publisher
	archive   exportArchive
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

type exportArchive interface {
	Save(filename string, data []byte) (string, error)
}

// AdmissionOption configures optional collaborators.
type AdmissionOption func(*AdmissionService)

// WithAdmissionPublisher broadcasts edits to other instances.
func WithAdmissionPublisher(p realtime.Publisher) AdmissionOption {
	return func(s *AdmissionService) { s.publisher = publisherOrNoop(p) }
}

// WithExportArchive keeps a copy of every rendered export.
func WithExportArchive(archive exportArchive) AdmissionOption {
	return func(s *AdmissionService) { s.archive = archive }
}

// WithAdmissionClock overrides the clock.
func WithAdmissionClock(now func() time.Time) AdmissionOption {
	return func(s *AdmissionService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewAdmissionService constructs the service.
func NewAdmissionService(view *ViewStore[models.Admission], ingest admissionIngester, tables AdmissionTables, students *StudentService, buffer localBuffer, validate *validator.Validate, logger *zap.Logger, opts ...AdmissionOption) *AdmissionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AdmissionService{
		view:      view,
		students:  students,
		ingest:    ingest,
		tables:    tables,
		buffer:    buffer,
		publisher: noopPublisher{},
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// List filters the merged view and returns one page.
func (s *AdmissionService) List(filter models.ListFilter) ([]models.Admission, *models.Pagination) {
	return page(s.filter(filter), filter)
}

func (s *AdmissionService) filter(filter models.ListFilter) []models.Admission {
	all := s.view.List()
	out := make([]models.Admission, 0, len(all))
	for _, rec := range all {
		if !equalFoldOrEmpty(filter.Status, string(rec.Status)) || !equalFoldOrEmpty(filter.Campus, rec.Campus) {
			continue
		}
		if !containsFold(filter.Search, rec.ID, rec.Student.Name, rec.Student.Email, rec.Student.Phone, rec.Course, rec.Batch) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Get returns one admission by canonical id.
func (s *AdmissionService) Get(id string) (*models.Admission, error) {
	rec, ok := s.view.Get(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "admission not found")
	}
	return &rec, nil
}

// Submit hands a new application to the ingest cascade.
func (s *AdmissionService) Submit(ctx context.Context, sub dto.AdmissionSubmission) (*IngestResult, error) {
	if s.ingest == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "ingest is not configured")
	}
	return s.ingest.Submit(ctx, sub)
}

// PublicItems renders the merged view in the REST surface item shape.
func (s *AdmissionService) PublicItems() []map[string]any {
	all := s.view.List()
	out := make([]map[string]any, 0, len(all))
	for _, rec := range all {
		out = append(out, PublicItem(rec))
	}
	return out
}

// PublicItem is the camelCase item returned by the public endpoints.
func PublicItem(rec models.Admission) map[string]any {
	item := map[string]any{
		"id":        rec.ID,
		"createdAt": rec.CreatedAt,
		"name":      rec.Student.Name,
		"email":     rec.Student.Email,
		"phone":     rec.Student.Phone,
		"course":    rec.Course,
		"status":    rec.Status,
		"syncState": rec.Sync(),
	}
	if rec.PreferredStart != "" {
		item["preferredStart"] = rec.PreferredStart
	}
	return item
}

// Approve verifies an application and promotes it to a student. Approving
// an already verified application returns it unchanged.
func (s *AdmissionService) Approve(ctx context.Context, id string) (*models.Admission, *models.Student, error) {
	rec, err := s.Get(id)
	if err != nil {
		return nil, nil, err
	}
	changed, err := AdmissionLifecycle.Check(rec.Status, models.AdmissionStatusVerified)
	if err != nil {
		return nil, nil, err
	}
	if !changed {
		var student *models.Student
		if s.students != nil && rec.StudentID != "" {
			student, _ = s.students.Get(rec.StudentID)
		}
		return rec, student, nil
	}

	now := s.now()
	studentID := rec.StudentID
	if studentID == "" && s.students != nil {
		if existing, ok := s.students.PromotedFrom(rec.ID, ""); ok {
			studentID = existing.ID
		}
	}
	if studentID == "" {
		studentID = GenerateStudentID(rec.Student.Name, now)
	}
	var student *models.Student
	if s.students != nil {
		student, err = s.students.Promote(ctx, PromotionFromAdmission(*rec, studentID, now))
		if err != nil {
			return nil, nil, err
		}
	}

	next := rec.Clone()
	next.Status = models.AdmissionStatusVerified
	next.StudentID = studentID
	saved, err := s.save(ctx, next)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("admission approved", zap.String("id", id), zap.String("student_id", studentID))
	return saved, student, nil
}

// Reject closes an application with a mandatory reason.
func (s *AdmissionService) Reject(ctx context.Context, id string, req dto.RejectAdmissionRequest) (*models.Admission, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation, "rejection reason is required")
	}
	return s.transition(ctx, id, models.AdmissionStatusRejected, func(rec *models.Admission) {
		rec.RejectedReason = req.Reason
	})
}

// Suspend parks a pending application.
func (s *AdmissionService) Suspend(ctx context.Context, id string) (*models.Admission, error) {
	return s.transition(ctx, id, models.AdmissionStatusSuspended, nil)
}

// Cancel withdraws a pending application.
func (s *AdmissionService) Cancel(ctx context.Context, id string) (*models.Admission, error) {
	return s.transition(ctx, id, models.AdmissionStatusCancelled, nil)
}

func (s *AdmissionService) transition(ctx context.Context, id string, to models.AdmissionStatus, mutate func(*models.Admission)) (*models.Admission, error) {
	rec, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	changed, err := AdmissionLifecycle.Check(rec.Status, to)
	if err != nil {
		return nil, err
	}
	if !changed {
		return rec, nil
	}
	next := rec.Clone()
	next.Status = to
	if mutate != nil {
		mutate(&next)
	}
	return s.save(ctx, next)
}

// Transfer moves an application to another batch or campus.
func (s *AdmissionService) Transfer(ctx context.Context, id string, req dto.TransferAdmissionRequest) (*models.Admission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation, "batch or campus is required")
	}
	rec, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	next := rec.Clone()
	if b := strings.TrimSpace(req.Batch); b != "" {
		next.Batch = b
	}
	if c := strings.TrimSpace(req.Campus); c != "" {
		next.Campus = c
	}
	return s.save(ctx, next)
}

// MarkPaid settles every outstanding installment.
func (s *AdmissionService) MarkPaid(ctx context.Context, id string) (*models.Admission, error) {
	rec, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	next := rec.Clone()
	next.Fee = MarkAllPaid(next.Fee, s.now())
	return s.save(ctx, next)
}

// Delete removes an application from its store, the buffer and the view.
func (s *AdmissionService) Delete(ctx context.Context, id string) error {
	rec, err := s.Get(id)
	if err != nil {
		return err
	}
	if rec.Origin().IsLocal() {
		if s.buffer != nil {
			if err := s.buffer.Remove(repository.CollectionAdmissions, rec.ID); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal, "failed to remove buffered admission")
			}
			_ = s.buffer.Remove(repository.CollectionSubmissions, rec.ID)
		}
	} else if table := s.tables.forSource(rec.Provenance); table != nil {
		if err := table.Delete(ctx, rec.ID); err != nil {
			return storeError(err, "admission not found")
		}
		s.publish(ctx, table.Table(), realtime.ChangeDelete, map[string]any{"app_id": rec.ID, "id": rec.ID})
	} else {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s admissions cannot be deleted here", rec.Provenance))
	}
	s.view.Delete(rec.ID)
	return nil
}

// Export renders the filtered admissions as csv, xlsx or pdf.
func (s *AdmissionService) Export(format string, filter models.ListFilter) ([]byte, export.Renderer, error) {
	renderer, err := export.ForFormat(format)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation, "unsupported export format")
	}
	now := s.now()
	records := s.filter(filter)
	data := export.Dataset{
		Title:   "Admissions",
		Headers: []string{"ID", "Name", "Email", "Phone", "Course", "Batch", "Campus", "Status", "Fee Total", "Payment", "Student ID", "Created", "Source"},
		Rows:    make([]map[string]string, 0, len(records)),
	}
	for _, rec := range records {
		data.Rows = append(data.Rows, map[string]string{
			"ID":         rec.ID,
			"Name":       rec.Student.Name,
			"Email":      rec.Student.Email,
			"Phone":      rec.Student.Phone,
			"Course":     rec.Course,
			"Batch":      rec.Batch,
			"Campus":     rec.Campus,
			"Status":     string(rec.Status),
			"Fee Total":  fmt.Sprintf("%d", rec.Fee.Total),
			"Payment":    string(PaymentStatus(rec.Fee, now)),
			"Student ID": rec.StudentID,
			"Created":    rec.CreatedAt.Format(time.RFC3339),
			"Source":     string(rec.Provenance),
		})
	}
	out, err := renderer.Render(data)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to render export")
	}
	if s.archive != nil {
		name := fmt.Sprintf("admissions/admissions-%s.%s", now.Format("20060102-150405"), renderer.Extension())
		if _, err := s.archive.Save(name, out); err != nil {
			s.logger.Warn("archive export", zap.String("file", name), zap.Error(err))
		}
	}
	return out, renderer, nil
}

// save writes an edited admission to the store it came from. When that
// store is unreachable, or the record only exists locally, the edit is
// buffered as a pending local record.
func (s *AdmissionService) save(ctx context.Context, rec models.Admission) (*models.Admission, error) {
	rec.UpdatedAt = s.now()
	if !rec.Origin().IsLocal() {
		table := s.tables.forSource(rec.Provenance)
		if table == nil {
			return s.bufferEdit(rec)
		}
		err := pushAdmission(ctx, table, rec)
		switch {
		case err == nil:
			s.view.Put(rec)
			s.publish(ctx, table.Table(), realtime.ChangeUpdate, AdmissionRow(rec))
			return &rec, nil
		case unreachable(err):
			s.logger.Warn("admission store unreachable, edit buffered", zap.String("id", rec.ID), zap.Error(err))
			return s.bufferEdit(rec)
		default:
			return nil, storeError(err, "admission not found")
		}
	}
	return s.bufferEdit(rec)
}

func (s *AdmissionService) bufferEdit(rec models.Admission) (*models.Admission, error) {
	if s.buffer == nil {
		return nil, appErrors.Clone(appErrors.ErrNetworkUnavailable, "remote store unreachable and no local buffer configured")
	}
	rec.Provenance = models.ProvenanceLocal
	rec.SyncState = models.SyncStatePending
	if err := s.buffer.Put(repository.CollectionAdmissions, rec.ID, rec); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to buffer admission")
	}
	s.view.Put(rec)
	return &rec, nil
}

func (s *AdmissionService) publish(ctx context.Context, table string, kind realtime.ChangeType, record map[string]any) {
	change := realtime.Change{Table: table, Type: kind, Record: record, At: s.now()}
	if kind == realtime.ChangeDelete {
		change.Record, change.OldRecord = nil, record
	}
	if err := s.publisher.Publish(ctx, change); err != nil {
		s.logger.Warn("publish admission change failed", zap.String("table", table), zap.Error(err))
	}
}

// pushAdmission updates the row with the full patch, falling back to the
// status-only patch when the table rejects the wider shape.
func pushAdmission(ctx context.Context, table rowStore, rec models.Admission) error {
	_, err := table.Update(ctx, rec.ID, admissionPatch(rec, table.Table()))
	if err != nil && schemaRejected(err) {
		_, err = table.Update(ctx, rec.ID, models.RawRow{"status": string(rec.Status)})
	}
	return err
}

func admissionPatch(rec models.Admission, table string) models.RawRow {
	if table == string(models.ProvenancePublicApplications) {
		return models.RawRow{"status": string(rec.Status)}
	}
	return models.RawRow{
		"status":           string(rec.Status),
		"batch":            rec.Batch,
		"campus":           rec.Campus,
		"student_id":       nullable(rec.StudentID),
		"rejected_reason":  nullable(rec.RejectedReason),
		"fee_total":        rec.Fee.Total,
		"fee_installments": installmentRows(rec.Fee),
		"updated_at":       rec.UpdatedAt,
	}
}

// AdmissionRow is the snake_case row published for an admission change.
func AdmissionRow(rec models.Admission) map[string]any {
	row := admissionPatch(rec, "")
	row["app_id"] = rec.ID
	row["name"] = rec.Student.Name
	row["email"] = rec.Student.Email
	row["phone"] = rec.Student.Phone
	row["course"] = rec.Course
	row["notes"] = rec.Notes
	row["created_at"] = rec.CreatedAt
	return row
}
