package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/admissions-sync-api/internal/dto"
	"github.com/noah-isme/admissions-sync-api/internal/models"
	"github.com/noah-isme/admissions-sync-api/internal/repository"
	appErrors "github.com/noah-isme/admissions-sync-api/pkg/errors"
	"github.com/noah-isme/admissions-sync-api/pkg/realtime"
)

type admissionPersister interface {
	Persist(ctx context.Context, sub dto.AdmissionSubmission) (*IngestResult, error)
}

// BufferSync pushes pending local records to the remote stores. A pass
// stops at the first connectivity failure; everything else is retried on
// the next pass.
type BufferSync struct {
	ingest     admissionPersister
	tables     AdmissionTables
	enquiries  rowStore
	students   studentStore
	buffer     localBuffer
	normalizer *Normalizer
	admView    *ViewStore[models.Admission]
	enqView    *ViewStore[models.Enquiry]
	stuView    *ViewStore[models.Student]
	publisher  realtime.Publisher
	metrics    *MetricsService
	logger     *zap.Logger
	now        func() time.Time

	mu sync.Mutex
}

// BufferSyncDeps groups the stores drained by BufferSync.
type BufferSyncDeps struct {
	Ingest      admissionPersister
	Tables      AdmissionTables
	Enquiries   rowStore
	Students    studentStore
	Buffer      localBuffer
	Normalizer  *Normalizer
	Admissions  *ViewStore[models.Admission]
	EnquiryView *ViewStore[models.Enquiry]
	StudentView *ViewStore[models.Student]
	Publisher   realtime.Publisher
	Metrics     *MetricsService
}

// NewBufferSync constructs the drainer.
func NewBufferSync(deps BufferSyncDeps, logger *zap.Logger) *BufferSync {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Normalizer == nil {
		deps.Normalizer = NewNormalizer(nil)
	}
	return &BufferSync{
		ingest:     deps.Ingest,
		tables:     deps.Tables,
		enquiries:  deps.Enquiries,
		students:   deps.Students,
		buffer:     deps.Buffer,
		normalizer: deps.Normalizer,
		admView:    deps.Admissions,
		enqView:    deps.EnquiryView,
		stuView:    deps.StudentView,
		publisher:  publisherOrNoop(deps.Publisher),
		metrics:    deps.Metrics,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type drainState struct {
	report  dto.BufferSyncReport
	stopped bool
}

// Drain runs one pass over every buffered collection.
func (b *BufferSync) Drain(ctx context.Context) dto.BufferSyncReport {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := &drainState{}
	if b.buffer == nil {
		return state.report
	}
	b.drainAdmissions(ctx, state)
	b.drainEnquiries(ctx, state)
	b.drainStudents(ctx, state)

	if state.report.Attempted > 0 {
		b.logger.Info("buffer drained",
			zap.Int("attempted", state.report.Attempted),
			zap.Int("synced", state.report.Synced),
			zap.Int("remaining", state.report.Remaining))
	}
	return state.report
}

// Run adapts Drain to the scheduler.
func (b *BufferSync) Run(ctx context.Context) {
	b.Drain(ctx)
}

// attempt records one push and reports whether the pass may continue.
func (b *BufferSync) attempt(state *drainState, collection, id string, err error) bool {
	state.report.Attempted++
	if err == nil {
		state.report.Synced++
		return true
	}
	state.report.Remaining++
	if unreachable(err) {
		b.logger.Info("remote unreachable, buffer drain paused", zap.String("collection", collection), zap.Error(err))
		state.stopped = true
		return false
	}
	b.logger.Warn("buffered record not synced", zap.String("collection", collection), zap.String("id", id), zap.Error(err))
	return true
}

func (b *BufferSync) drainAdmissions(ctx context.Context, state *drainState) {
	records, err := b.buffer.Admissions()
	if err != nil {
		b.logger.Warn("read buffered admissions", zap.Error(err))
		return
	}
	submissions := b.submissions()
	pending := 0
	for _, rec := range records {
		if rec.Sync() != models.SyncStatePending {
			continue
		}
		if state.stopped {
			pending++
			state.report.Remaining++
			continue
		}
		var err error
		if strings.HasPrefix(rec.ID, localIDPrefix) && rec.RemoteID == "" {
			sub, ok := submissions[rec.ID]
			if !ok {
				sub = submissionFromAdmission(rec)
			}
			err = b.replayAdmission(ctx, rec, sub)
		} else {
			err = b.pushAdmissionEdit(ctx, rec)
		}
		if err != nil {
			pending++
		}
		b.attempt(state, repository.CollectionAdmissions, rec.ID, err)
	}
	b.metrics.SetBufferPending(repository.CollectionAdmissions, pending)
}

func (b *BufferSync) submissions() map[string]dto.AdmissionSubmission {
	rows, err := b.buffer.Rows(repository.CollectionSubmissions)
	if err != nil {
		b.logger.Warn("read buffered submissions", zap.Error(err))
		return nil
	}
	out := make(map[string]dto.AdmissionSubmission, len(rows))
	for _, row := range rows {
		raw, err := json.Marshal(row)
		if err != nil {
			continue
		}
		var buffered BufferedSubmission
		if err := json.Unmarshal(raw, &buffered); err != nil || buffered.ID == "" {
			continue
		}
		out[buffered.ID] = buffered.Submission
	}
	return out
}

func submissionFromAdmission(rec models.Admission) dto.AdmissionSubmission {
	sub := dto.AdmissionSubmission{
		Name:      rec.Student.Name,
		Email:     rec.Student.Email,
		Phone:     rec.Student.Phone,
		Course:    rec.Course,
		Campus:    rec.Campus,
		Batch:     rec.Batch,
		FeeTotal:  rec.Fee.Total,
		Notes:     rec.Notes,
		StartDate: rec.PreferredStart,
	}
	return sub
}

// replayAdmission runs a buffered submission through the cascade again.
// On success the local copy is kept as synced, aliased to the remote id,
// until a refresh sees the remote row. Status changes made while offline
// are pushed to the new row, then reflected in the view and broadcast.
func (b *BufferSync) replayAdmission(ctx context.Context, rec models.Admission, sub dto.AdmissionSubmission) error {
	if b.ingest == nil {
		return appErrors.Clone(appErrors.ErrNetworkUnavailable, "ingest is not configured")
	}
	result, err := b.ingest.Persist(ctx, sub)
	if err != nil {
		return err
	}
	remoteID := result.Admission.ID
	if rec.Status != models.AdmissionStatusPending || rec.StudentID != "" {
		b.applyOfflineEdit(ctx, rec, result.Admission)
	}

	rec.SyncState = models.SyncStateSynced
	rec.RemoteID = remoteID
	rec.UpdatedAt = b.now()
	if err := b.buffer.Put(repository.CollectionAdmissions, rec.ID, rec); err != nil {
		b.logger.Warn("mark buffered admission synced", zap.String("id", rec.ID), zap.Error(err))
	}
	_ = b.buffer.Remove(repository.CollectionSubmissions, rec.ID)
	if b.admView != nil {
		b.admView.Delete(rec.ID)
	}
	return nil
}

// applyOfflineEdit carries the lifecycle fields of a buffered admission onto
// the row created for it by replay.
func (b *BufferSync) applyOfflineEdit(ctx context.Context, local, created models.Admission) {
	table := b.tables.forSource(created.Provenance)
	if table == nil {
		return
	}
	remote := local.Clone()
	remote.ID = created.ID
	remote.CreatedAt = created.CreatedAt
	remote.UpdatedAt = b.now()
	remote.Provenance = created.Provenance
	remote.SyncState = models.SyncStateSynced
	remote.RemoteID = ""
	if err := pushAdmission(ctx, table, remote); err != nil {
		b.logger.Warn("offline status change not applied", zap.String("id", remote.ID), zap.Error(err))
		return
	}
	if b.admView != nil {
		b.admView.Put(remote)
	}
	change := realtime.Change{Table: table.Table(), Type: realtime.ChangeUpdate, Record: AdmissionRow(remote), At: remote.UpdatedAt}
	if err := b.publisher.Publish(ctx, change); err != nil {
		b.logger.Warn("publish replayed admission failed", zap.String("id", remote.ID), zap.Error(err))
	}
}

// pushAdmissionEdit writes an offline edit of a remote admission to the
// first table that holds the row.
func (b *BufferSync) pushAdmissionEdit(ctx context.Context, rec models.Admission) error {
	tables := b.tables.all()
	if len(tables) == 0 {
		return appErrors.Clone(appErrors.ErrNetworkUnavailable, "no admission store configured")
	}
	var last error
	for _, table := range tables {
		err := pushAdmission(ctx, table, rec)
		if err == nil {
			if err := b.buffer.Remove(repository.CollectionAdmissions, rec.ID); err != nil {
				b.logger.Warn("remove synced admission", zap.String("id", rec.ID), zap.Error(err))
			}
			if b.admView != nil {
				synced := rec
				synced.Provenance = models.Provenance(table.Table())
				synced.SyncState = models.SyncStateSynced
				b.admView.Put(synced)
			}
			return nil
		}
		if unreachable(err) {
			return err
		}
		last = storeError(err, "admission not found")
	}
	return last
}

func (b *BufferSync) drainEnquiries(ctx context.Context, state *drainState) {
	records, err := b.buffer.Enquiries()
	if err != nil {
		b.logger.Warn("read buffered enquiries", zap.Error(err))
		return
	}
	pending := 0
	for _, enq := range records {
		if enq.Sync() != models.SyncStatePending {
			continue
		}
		if state.stopped || b.enquiries == nil {
			pending++
			state.report.Remaining++
			continue
		}
		err := b.pushEnquiry(ctx, enq)
		if err != nil {
			pending++
		}
		b.attempt(state, repository.CollectionEnquiries, enq.ID, err)
	}
	b.metrics.SetBufferPending(repository.CollectionEnquiries, pending)
}

func (b *BufferSync) pushEnquiry(ctx context.Context, enq models.Enquiry) error {
	if strings.HasPrefix(enq.ID, localIDPrefix) && enq.RemoteID == "" {
		row, err := b.enquiries.Insert(ctx, EnquiryRow(enq))
		if err != nil {
			return err
		}
		remote := b.normalizer.Enquiry(row, models.ProvenanceEnquiries)
		enq.SyncState = models.SyncStateSynced
		enq.RemoteID = remote.ID
		if err := b.buffer.Put(repository.CollectionEnquiries, enq.ID, enq); err != nil {
			b.logger.Warn("mark buffered enquiry synced", zap.String("id", enq.ID), zap.Error(err))
		}
		if b.enqView != nil {
			b.enqView.Delete(enq.ID)
			b.enqView.Put(remote)
		}
		return nil
	}
	if _, err := b.enquiries.Update(ctx, enq.ID, enquiryPatch(enq)); err != nil {
		return err
	}
	if err := b.buffer.Remove(repository.CollectionEnquiries, enq.ID); err != nil {
		b.logger.Warn("remove synced enquiry", zap.String("id", enq.ID), zap.Error(err))
	}
	if b.enqView != nil {
		enq.Provenance = models.ProvenanceEnquiries
		enq.SyncState = models.SyncStateSynced
		b.enqView.Put(enq)
	}
	return nil
}

func (b *BufferSync) drainStudents(ctx context.Context, state *drainState) {
	records, err := b.buffer.Students()
	if err != nil {
		b.logger.Warn("read buffered students", zap.Error(err))
		return
	}
	pending := 0
	for _, st := range records {
		if st.Sync() != models.SyncStatePending {
			continue
		}
		if state.stopped || b.students == nil {
			pending++
			state.report.Remaining++
			continue
		}
		st.Provenance = models.ProvenanceStudents
		st.SyncState = models.SyncStateSynced
		err := b.students.Upsert(ctx, st)
		if err == nil {
			if rmErr := b.buffer.Remove(repository.CollectionStudents, st.ID); rmErr != nil {
				b.logger.Warn("remove synced student", zap.String("id", st.ID), zap.Error(rmErr))
			}
			if b.stuView != nil {
				b.stuView.Put(st)
			}
		} else {
			pending++
		}
		b.attempt(state, repository.CollectionStudents, st.ID, err)
	}
	b.metrics.SetBufferPending(repository.CollectionStudents, pending)
}
