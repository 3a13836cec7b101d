package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/admissions-sync-api/internal/models"
	"github.com/noah-isme/admissions-sync-api/pkg/realtime"
)

// Outcomes recorded per applied change.
const (
	realtimeApplied = "applied"
	realtimeIgnored = "ignored"
	realtimeDropped = "dropped"
)

var admissionTables = map[string]models.Provenance{
	"admissions":          models.ProvenanceAdmissions,
	"applications":        models.ProvenanceApplications,
	"public_applications": models.ProvenancePublicApplications,
	"public_api":          models.ProvenancePublicAPI,
}

// RealtimeSync applies pushed row changes to the merged views.
type RealtimeSync struct {
	subscriber realtime.Subscriber
	normalizer *Normalizer
	admissions *ViewStore[models.Admission]
	enquiries  *ViewStore[models.Enquiry]
	students   *ViewStore[models.Student]
	batches    *ViewStore[models.Batch]
	metrics    *MetricsService
	logger     *zap.Logger

	mu     sync.Mutex
	sub    realtime.Subscription
	closed bool
}

// NewRealtimeSync wires a subscriber to the views. Nil views ignore their tables.
func NewRealtimeSync(subscriber realtime.Subscriber, normalizer *Normalizer, admissions *ViewStore[models.Admission], enquiries *ViewStore[models.Enquiry], students *ViewStore[models.Student], metrics *MetricsService, logger *zap.Logger) *RealtimeSync {
	if normalizer == nil {
		normalizer = NewNormalizer(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RealtimeSync{
		subscriber: subscriber,
		normalizer: normalizer,
		admissions: admissions,
		enquiries:  enquiries,
		students:   students,
		metrics:    metrics,
		logger:     logger,
	}
}

// WatchBatches applies changes on the batches table to view.
func (s *RealtimeSync) WatchBatches(view *ViewStore[models.Batch]) *RealtimeSync {
	s.batches = view
	return s
}

// Start opens the subscription. Calling it twice is a no-op.
func (s *RealtimeSync) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("realtime sync closed")
	}
	if s.sub != nil || s.subscriber == nil {
		return nil
	}
	sub, err := s.subscriber.Subscribe(ctx, s.Apply)
	if err != nil {
		return fmt.Errorf("subscribe realtime: %w", err)
	}
	s.sub = sub
	return nil
}

// Close releases the subscription. It is safe to call more than once.
func (s *RealtimeSync) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub == nil {
		return nil
	}
	return sub.Close()
}

func (s *RealtimeSync) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Apply merges one change into the matching view. Inserts only add absent
// records. Updates and deletes from a table that ranks below the stored
// record's source are ignored, as are stale updates and unknown ids.
func (s *RealtimeSync) Apply(_ context.Context, change realtime.Change) {
	if s.isClosed() {
		return
	}
	result := realtimeDropped
	switch {
	case admissionTables[change.Table] != "":
		result = s.applyAdmission(change, admissionTables[change.Table])
	case change.Table == "enquiries":
		result = s.applyEnquiry(change)
	case change.Table == "students":
		result = s.applyStudent(change)
	case change.Table == batchesTable:
		result = s.applyBatch(change)
	default:
		s.logger.Debug("change for unwatched table", zap.String("table", change.Table))
	}
	s.metrics.RecordRealtimeEvent(change.Table, string(change.Type), result)
}

func (s *RealtimeSync) applyAdmission(change realtime.Change, source models.Provenance) string {
	if s.admissions == nil {
		return realtimeDropped
	}
	if change.Type == realtime.ChangeDelete {
		id := CanonicalID(models.RawRow(change.Subject()), noID)
		return outcome(s.admissions.DeleteFrom(id, source))
	}
	rec := s.normalizer.Admission(models.RawRow(change.Record), source)
	return applyRecord(s.admissions, change.Type, rec)
}

func (s *RealtimeSync) applyEnquiry(change realtime.Change) string {
	if s.enquiries == nil {
		return realtimeDropped
	}
	if change.Type == realtime.ChangeDelete {
		id := CanonicalID(models.RawRow(change.Subject()), noID)
		return outcome(s.enquiries.DeleteFrom(id, models.ProvenanceEnquiries))
	}
	rec := s.normalizer.Enquiry(models.RawRow(change.Record), models.ProvenanceEnquiries)
	return applyRecord(s.enquiries, change.Type, rec)
}

func (s *RealtimeSync) applyStudent(change realtime.Change) string {
	if s.students == nil {
		return realtimeDropped
	}
	if change.Type == realtime.ChangeDelete {
		return outcome(s.students.DeleteFrom(rowString(models.RawRow(change.Subject()), "id"), models.ProvenanceStudents))
	}
	rec, err := s.normalizer.Student(models.RawRow(change.Record))
	if err != nil {
		s.logger.Warn("student change dropped", zap.Error(err))
		return realtimeDropped
	}
	rec.Provenance = models.ProvenanceStudents
	rec.SyncState = models.SyncStateSynced
	return applyRecord(s.students, change.Type, rec)
}

// applyBatch keeps one entry per batch id: a repeated insert of a batch
// already loaded or created locally is ignored.
func (s *RealtimeSync) applyBatch(change realtime.Change) string {
	if s.batches == nil {
		return realtimeDropped
	}
	if change.Type == realtime.ChangeDelete {
		return outcome(s.batches.DeleteFrom(rowString(models.RawRow(change.Subject()), "batch_id", "id"), models.ProvenanceBatches))
	}
	rec := s.normalizer.Batch(models.RawRow(change.Record))
	if rec.ID == "" {
		return realtimeDropped
	}
	return applyRecord(s.batches, change.Type, rec)
}

func applyRecord[T Mergeable](view *ViewStore[T], kind realtime.ChangeType, rec T) string {
	if kind == realtime.ChangeInsert {
		return outcome(view.Insert(rec))
	}
	return outcome(view.Upsert(rec))
}

func outcome(applied bool) string {
	if applied {
		return realtimeApplied
	}
	return realtimeIgnored
}

// noID leaves rows without any identifier unmatched.
func noID() string { return "" }
