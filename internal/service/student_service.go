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

const studentsTable = "students"

// StudentService manages enrolled students and their fee ledgers.
type StudentService struct {
	view      *ViewStore[models.Student]
	store     studentStore
	buffer    localBuffer
	publisher realtime.Publisher
	invoices  *export.PDFExporter
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// StudentOption configures optional collaborators.
type StudentOption func(*StudentService)

// WithStudentPublisher broadcasts student writes.
func WithStudentPublisher(p realtime.Publisher) StudentOption {
	return func(s *StudentService) { s.publisher = publisherOrNoop(p) }
}

// WithStudentClock overrides the clock.
func WithStudentClock(now func() time.Time) StudentOption {
	return func(s *StudentService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStudentService constructs the student service.
func NewStudentService(view *ViewStore[models.Student], store studentStore, buffer localBuffer, validate *validator.Validate, logger *zap.Logger, opts ...StudentOption) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &StudentService{
		view:      view,
		store:     store,
		buffer:    buffer,
		publisher: noopPublisher{},
		invoices:  export.NewPDFExporter(),
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

// List filters students by status, campus and free text.
func (s *StudentService) List(filter models.ListFilter) ([]models.Student, *models.Pagination) {
	all := s.view.List()
	out := make([]models.Student, 0, len(all))
	for _, st := range all {
		if !equalFoldOrEmpty(filter.Status, string(st.Status)) || !equalFoldOrEmpty(filter.Campus, st.Admission.Campus) {
			continue
		}
		if !containsFold(filter.Search, st.ID, st.Name, st.Email, st.Phone, st.Admission.Course, st.Admission.Batch) {
			continue
		}
		out = append(out, st)
	}
	return page(out, filter)
}

// Get returns one student.
func (s *StudentService) Get(id string) (*models.Student, error) {
	st, ok := s.view.Get(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return &st, nil
}

// PromotedFrom returns the student already promoted from the given admission
// or enquiry id, so a retried promotion reuses it instead of minting another.
func (s *StudentService) PromotedFrom(admissionID, enquiryID string) (*models.Student, bool) {
	for _, st := range s.view.List() {
		if (admissionID != "" && st.AdmissionID == admissionID) || (enquiryID != "" && st.EnquiryID == enquiryID) {
			return &st, true
		}
	}
	return nil, false
}

// PromotionFromAdmission builds the student created when an admission is verified.
func PromotionFromAdmission(rec models.Admission, studentID string, now time.Time) models.Student {
	return models.Student{
		ID:     studentID,
		Name:   rec.Student.Name,
		Email:  rec.Student.Email,
		Phone:  rec.Student.Phone,
		Status: models.StudentStatusCurrent,
		Admission: models.Placement{
			Course: rec.Course,
			Batch:  rec.Batch,
			Campus: rec.Campus,
			Date:   now,
		},
		Fee:             rec.Fee.Clone(),
		Attendance:      []models.AttendanceEntry{},
		Documents:       append([]models.Document{}, rec.Documents...),
		Communications:  []models.Communication{},
		EnrolledCourses: []string{rec.Course},
		AdmissionID:     rec.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// PromotionFromEnquiry builds the student created when an enquiry converts.
func PromotionFromEnquiry(enq models.Enquiry, studentID, batch, campus string, now time.Time) models.Student {
	return models.Student{
		ID:     studentID,
		Name:   enq.Name,
		Email:  enq.Email,
		Phone:  enq.Contact,
		Status: models.StudentStatusCurrent,
		Admission: models.Placement{
			Course: enq.Course,
			Batch:  firstNonEmpty(batch, unassignedBatch),
			Campus: firstNonEmpty(campus, enq.Campus, models.DefaultCampus),
			Date:   now,
		},
		Fee:             models.Fee{Installments: []models.Installment{}},
		Attendance:      []models.AttendanceEntry{},
		Documents:       []models.Document{},
		Communications:  []models.Communication{},
		EnrolledCourses: []string{enq.Course},
		EnquiryID:       enq.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Promote stores a newly promoted student. A student that already exists
// is returned as is, so promoting twice yields one record.
func (s *StudentService) Promote(ctx context.Context, st models.Student) (*models.Student, error) {
	if existing, ok := s.view.Get(st.ID); ok {
		return &existing, nil
	}
	if st.Status == "" {
		st.Status = models.StudentStatusCurrent
	}
	saved, err := s.save(ctx, st, realtime.ChangeInsert)
	if err != nil {
		return nil, err
	}
	s.logger.Info("student promoted", zap.String("id", st.ID), zap.String("admission_id", st.AdmissionID), zap.String("enquiry_id", st.EnquiryID))
	return saved, nil
}

// UpdateStatus moves a student through its lifecycle.
func (s *StudentService) UpdateStatus(ctx context.Context, id string, req dto.UpdateStudentStatusRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation, "status is required")
	}
	return s.edit(ctx, id, func(st *models.Student) (bool, error) {
		changed, err := StudentLifecycle.Check(st.Status, req.Status)
		if err != nil || !changed {
			return false, err
		}
		st.Status = req.Status
		return true, nil
	})
}

// AddInstallment schedules a new installment on the student's ledger.
func (s *StudentService) AddInstallment(ctx context.Context, id string, req dto.AddInstallmentRequest) (*dto.InstallmentResponse, error) {
	due := s.now()
	if req.DueDate != nil && !req.DueDate.IsZero() {
		due = req.DueDate.UTC()
	}
	var result InstallmentResult
	st, err := s.edit(ctx, id, func(st *models.Student) (bool, error) {
		res, err := AddInstallment(st.Fee, req.Amount, due)
		if err != nil {
			return false, err
		}
		result = res
		st.Fee = res.Fee
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &dto.InstallmentResponse{Student: *st, Requested: result.Requested, Applied: result.Installment.Amount, Clamped: result.Clamped}, nil
}

// Collect marks the next unpaid installment as paid.
func (s *StudentService) Collect(ctx context.Context, id string) (*models.Student, error) {
	return s.edit(ctx, id, func(st *models.Student) (bool, error) {
		fee, _, err := CollectNext(st.Fee, s.now())
		if err != nil {
			return false, err
		}
		st.Fee = fee
		return true, nil
	})
}

// ApplyDiscount sets the discount percentage on the ledger.
func (s *StudentService) ApplyDiscount(ctx context.Context, id string, req dto.ApplyDiscountRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation, "discount must be between 0 and 100")
	}
	return s.edit(ctx, id, func(st *models.Student) (bool, error) {
		fee, err := ApplyDiscount(st.Fee, req.Percent)
		if err != nil {
			return false, err
		}
		st.Fee = fee
		return true, nil
	})
}

// MarkPaid settles every outstanding installment.
func (s *StudentService) MarkPaid(ctx context.Context, id string) (*models.Student, error) {
	return s.edit(ctx, id, func(st *models.Student) (bool, error) {
		st.Fee = MarkAllPaid(st.Fee, s.now())
		return true, nil
	})
}

// RecordAttendance sets presence for a day, replacing an earlier mark.
func (s *StudentService) RecordAttendance(ctx context.Context, id string, req dto.AttendanceRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation, "date must be YYYY-MM-DD")
	}
	return s.edit(ctx, id, func(st *models.Student) (bool, error) {
		for i, entry := range st.Attendance {
			if entry.Date == req.Date {
				if entry.Present == req.Present {
					return false, nil
				}
				st.Attendance[i].Present = req.Present
				return true, nil
			}
		}
		st.Attendance = append(st.Attendance, models.AttendanceEntry{Date: req.Date, Present: req.Present})
		return true, nil
	})
}

// Transfer moves a student to another batch and/or campus.
func (s *StudentService) Transfer(ctx context.Context, id string, req dto.TransferStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation, "batch or campus is required")
	}
	return s.edit(ctx, id, func(st *models.Student) (bool, error) {
		move := models.Transfer{
			FromBatch:  st.Admission.Batch,
			ToBatch:    firstNonEmpty(strings.TrimSpace(req.Batch), st.Admission.Batch),
			FromCampus: st.Admission.Campus,
			ToCampus:   firstNonEmpty(strings.TrimSpace(req.Campus), st.Admission.Campus),
			Note:       req.Note,
			At:         s.now(),
		}
		if move.FromBatch == move.ToBatch && move.FromCampus == move.ToCampus {
			return false, nil
		}
		st.Admission.Batch = move.ToBatch
		st.Admission.Campus = move.ToCampus
		st.Transfers = append(st.Transfers, move)
		return true, nil
	})
}

// EnrollCourses adds courses the student is not enrolled in yet. Fees are
// left untouched; installments are added explicitly.
func (s *StudentService) EnrollCourses(ctx context.Context, id string, req dto.EnrollCoursesRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation, "at least one course is required")
	}
	return s.edit(ctx, id, func(st *models.Student) (bool, error) {
		seen := make(map[string]struct{}, len(st.EnrolledCourses))
		for _, c := range st.EnrolledCourses {
			seen[strings.ToLower(c)] = struct{}{}
		}
		added := false
		for _, c := range req.Courses {
			c = strings.TrimSpace(c)
			if _, ok := seen[strings.ToLower(c)]; ok || c == "" {
				continue
			}
			seen[strings.ToLower(c)] = struct{}{}
			st.EnrolledCourses = append(st.EnrolledCourses, c)
			added = true
		}
		return added, nil
	})
}

// LogCommunication records an outreach, newest first.
func (s *StudentService) LogCommunication(ctx context.Context, id string, req dto.CommunicationRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation, "channel and note are required")
	}
	return s.edit(ctx, id, func(st *models.Student) (bool, error) {
		entry := models.Communication{Channel: req.Channel, Note: req.Note, At: s.now()}
		st.Communications = append([]models.Communication{entry}, st.Communications...)
		return true, nil
	})
}

// Invoice renders the student's fee statement as a PDF.
func (s *StudentService) Invoice(id string) ([]byte, string, error) {
	st, err := s.Get(id)
	if err != nil {
		return nil, "", err
	}
	now := s.now()
	summary := Summarize(st.Fee, now)
	inv := export.Invoice{
		Number:    fmt.Sprintf("INV-%s-%s", st.ID, now.Format("20060102")),
		IssuedOn:  now.Format("2006-01-02"),
		Student:   st.Name,
		StudentID: st.ID,
		Course:    st.Admission.Course,
	}
	for _, inst := range st.Fee.Installments {
		status := "Unpaid"
		if inst.Paid() {
			status = "Paid " + inst.PaidAt.Format("2006-01-02")
		} else if !inst.DueDate.IsZero() && inst.DueDate.Before(now) {
			status = "Overdue"
		}
		inv.Lines = append(inv.Lines, export.InvoiceLine{Label: inst.ID, Due: inst.DueDate.Format("2006-01-02"), Status: status, Amount: money(inst.Amount)})
	}
	inv.Totals = []export.InvoiceLine{
		{Label: "Total", Amount: money(summary.Total)},
		{Label: fmt.Sprintf("Discount (%g%%)", summary.DiscountPercent), Amount: money(summary.DiscountAmount)},
		{Label: "Total after discount", Amount: money(summary.DiscountedTotal)},
		{Label: "Paid", Amount: money(summary.Paid)},
		{Label: "Pending", Amount: money(summary.Pending)},
		{Label: "Status", Amount: string(summary.Status)},
	}
	out, err := s.invoices.RenderInvoice(inv)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal, "failed to render invoice")
	}
	return out, fmt.Sprintf("invoice-%s.pdf", st.ID), nil
}

func money(v int64) string { return fmt.Sprintf("%d", v) }

// Delete removes a student from the store, the buffer and the view.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	st, err := s.Get(id)
	if err != nil {
		return err
	}
	if st.Origin().IsLocal() {
		if s.buffer != nil {
			if err := s.buffer.Remove(repository.CollectionStudents, st.ID); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal, "failed to remove buffered student")
			}
		}
	} else if s.store != nil {
		if err := s.store.Delete(ctx, st.ID); err != nil {
			return storeError(err, "student not found")
		}
		s.publish(ctx, realtime.ChangeDelete, map[string]any{"id": st.ID})
	}
	s.view.Delete(st.ID)
	return nil
}

// edit applies mutate to a copy of the student and saves it when changed.
func (s *StudentService) edit(ctx context.Context, id string, mutate func(*models.Student) (bool, error)) (*models.Student, error) {
	current, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	next := current.Clone()
	changed, err := mutate(&next)
	if err != nil {
		return nil, err
	}
	if !changed {
		return current, nil
	}
	return s.save(ctx, next, realtime.ChangeUpdate)
}

// save upserts the student remotely; an unreachable store buffers it as a
// pending local record.
func (s *StudentService) save(ctx context.Context, st models.Student, kind realtime.ChangeType) (*models.Student, error) {
	st.UpdatedAt = s.now()
	if s.store != nil && !(st.Origin().IsLocal() && st.Sync() == models.SyncStatePending) {
		err := s.store.Upsert(ctx, st)
		if err == nil {
			st.Provenance = models.ProvenanceStudents
			st.SyncState = models.SyncStateSynced
			st.RemoteID = ""
			s.view.Put(st)
			s.publish(ctx, kind, StudentRow(st))
			return &st, nil
		}
		if !unreachable(err) {
			return nil, storeError(err, "student not found")
		}
		s.logger.Warn("student store unreachable, buffering", zap.String("id", st.ID), zap.Error(err))
	}
	if s.buffer == nil {
		return nil, appErrors.Clone(appErrors.ErrNetworkUnavailable, "student store unreachable and no local buffer configured")
	}
	st.Provenance = models.ProvenanceLocalStudents
	st.SyncState = models.SyncStatePending
	if err := s.buffer.Put(repository.CollectionStudents, st.ID, st); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to buffer student")
	}
	s.view.Put(st)
	return &st, nil
}

func (s *StudentService) publish(ctx context.Context, kind realtime.ChangeType, row map[string]any) {
	change := realtime.Change{Table: studentsTable, Type: kind, Record: row, At: s.now()}
	if kind == realtime.ChangeDelete {
		change.Record, change.OldRecord = nil, row
	}
	if err := s.publisher.Publish(ctx, change); err != nil {
		s.logger.Warn("publish student change failed", zap.Error(err))
	}
}

// StudentRow is the students table row shape: id, record and updated_at.
func StudentRow(st models.Student) map[string]any {
	record, _ := rowFromRecord(st)
	return map[string]any{"id": st.ID, "record": map[string]any(record), "updated_at": st.UpdatedAt}
}
