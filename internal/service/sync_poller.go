package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/admissions-sync-api/internal/dto"
	"github.com/noah-isme/admissions-sync-api/internal/models"
	"github.com/noah-isme/admissions-sync-api/internal/repository"
)

// SourceFetcher is one remote source of raw rows.
type SourceFetcher struct {
	Source models.Provenance
	Lister rowLister
}

// SyncSources lists the remote sources per entity.
type SyncSources struct {
	Admissions []SourceFetcher
	Enquiries  []SourceFetcher
	Students   []SourceFetcher
	Batches    []SourceFetcher
}

// SyncPoller refetches every source, merges the snapshots with the local
// buffer and replaces the views.
type SyncPoller struct {
	sources    SyncSources
	reconciler *Reconciler
	buffer     localBuffer
	admissions *ViewStore[models.Admission]
	enquiries  *ViewStore[models.Enquiry]
	students   *ViewStore[models.Student]
	batches    *ViewStore[models.Batch]
	metrics    *MetricsService
	logger     *zap.Logger
	timeout    time.Duration
	now        func() time.Time

	mu sync.Mutex
}

// SyncPollerOption configures optional poller behaviour.
type SyncPollerOption func(*SyncPoller)

// WithPollMetrics records fetch and merge metrics.
func WithPollMetrics(m *MetricsService) SyncPollerOption {
	return func(p *SyncPoller) { p.metrics = m }
}

// WithBatchView refreshes the batch view from SyncSources.Batches.
func WithBatchView(view *ViewStore[models.Batch]) SyncPollerOption {
	return func(p *SyncPoller) { p.batches = view }
}

// WithFetchTimeout bounds every source fetch.
func WithFetchTimeout(d time.Duration) SyncPollerOption {
	return func(p *SyncPoller) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithPollClock overrides the clock used for fetch timestamps.
func WithPollClock(now func() time.Time) SyncPollerOption {
	return func(p *SyncPoller) {
		if now != nil {
			p.now = now
		}
	}
}

// NewSyncPoller constructs the poller.
func NewSyncPoller(sources SyncSources, reconciler *Reconciler, buffer localBuffer, admissions *ViewStore[models.Admission], enquiries *ViewStore[models.Enquiry], students *ViewStore[models.Student], logger *zap.Logger, opts ...SyncPollerOption) *SyncPoller {
	if reconciler == nil {
		reconciler = NewReconciler(DefaultMergePolicy(), nil, logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &SyncPoller{
		sources:    sources,
		reconciler: reconciler,
		buffer:     buffer,
		admissions: admissions,
		enquiries:  enquiries,
		students:   students,
		logger:     logger,
		timeout:    10 * time.Second,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Refresh runs one full fetch and merge. Failed sources are reported and
// contribute nothing; refreshes never overlap.
func (p *SyncPoller) Refresh(ctx context.Context) dto.SyncReport {
	p.mu.Lock()
	defer p.mu.Unlock()

	fetchedAt := p.now()
	report := dto.SyncReport{FetchedAt: fetchedAt, Sources: []dto.SourceReport{}}

	var (
		wg                                     sync.WaitGroup
		admSnaps, enqSnaps, stuSnaps, batSnaps []Snapshot
	)
	wg.Add(4)
	go func() { defer wg.Done(); admSnaps = p.fetchAll(ctx, p.sources.Admissions) }()
	go func() { defer wg.Done(); enqSnaps = p.fetchAll(ctx, p.sources.Enquiries) }()
	go func() { defer wg.Done(); stuSnaps = p.fetchAll(ctx, p.sources.Students) }()
	go func() { defer wg.Done(); batSnaps = p.fetchAll(ctx, p.sources.Batches) }()
	wg.Wait()

	report.Sources = append(report.Sources, sourceReports("admissions", admSnaps)...)
	report.Sources = append(report.Sources, sourceReports("enquiries", enqSnaps)...)
	report.Sources = append(report.Sources, sourceReports("students", stuSnaps)...)
	report.Sources = append(report.Sources, sourceReports("batches", batSnaps)...)

	if p.admissions != nil {
		local := p.localAdmissions()
		start := time.Now()
		merged := p.reconciler.Admissions(admSnaps, local)
		p.metrics.ObserveMerge("admissions", time.Since(start))
		p.admissions.Replace(merged, fetchedAt)
		pruneSynced(p, repository.CollectionAdmissions, local, merged)
		report.Admissions = p.admissions.Len()
		p.metrics.SetViewSize("admissions", report.Admissions)
	}
	if p.enquiries != nil {
		local := p.localEnquiries()
		start := time.Now()
		merged := p.reconciler.Enquiries(enqSnaps, local)
		p.metrics.ObserveMerge("enquiries", time.Since(start))
		p.enquiries.Replace(merged, fetchedAt)
		pruneSynced(p, repository.CollectionEnquiries, local, merged)
		report.Enquiries = p.enquiries.Len()
		p.metrics.SetViewSize("enquiries", report.Enquiries)
	}
	if p.students != nil {
		local := p.localStudents()
		start := time.Now()
		merged := p.reconciler.Students(stuSnaps, local)
		p.metrics.ObserveMerge("students", time.Since(start))
		p.students.Replace(merged, fetchedAt)
		pruneSynced(p, repository.CollectionStudents, local, merged)
		report.Students = p.students.Len()
		p.metrics.SetViewSize("students", report.Students)
	}

	if p.batches != nil {
		start := time.Now()
		merged := p.reconciler.Batches(batSnaps)
		p.metrics.ObserveMerge("batches", time.Since(start))
		p.batches.Replace(merged, fetchedAt)
		report.Batches = p.batches.Len()
		p.metrics.SetViewSize("batches", report.Batches)
	}

	p.logger.Debug("views refreshed",
		zap.Int("admissions", report.Admissions),
		zap.Int("enquiries", report.Enquiries),
		zap.Int("students", report.Students),
		zap.Int("batches", report.Batches))
	return report
}

// Run adapts Refresh to the scheduler.
func (p *SyncPoller) Run(ctx context.Context) {
	p.Refresh(ctx)
}

func (p *SyncPoller) fetchAll(ctx context.Context, sources []SourceFetcher) []Snapshot {
	snaps := make([]Snapshot, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src SourceFetcher) {
			defer wg.Done()
			fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()
			rows, err := src.Lister.List(fetchCtx)
			p.metrics.RecordSourceFetch(string(src.Source), err)
			if err != nil {
				p.logger.Warn("source fetch failed", zap.String("source", string(src.Source)), zap.Error(err))
			}
			snaps[i] = Snapshot{Source: src.Source, Rows: rows, Err: err}
		}(i, src)
	}
	wg.Wait()
	return snaps
}

func sourceReports(entity string, snaps []Snapshot) []dto.SourceReport {
	out := make([]dto.SourceReport, 0, len(snaps))
	for _, snap := range snaps {
		r := dto.SourceReport{Entity: entity, Source: string(snap.Source), Rows: len(snap.Rows)}
		if snap.Err != nil {
			r.Error = snap.Err.Error()
		}
		out = append(out, r)
	}
	return out
}

func (p *SyncPoller) localAdmissions() []models.Admission {
	if p.buffer == nil {
		return nil
	}
	recs, err := p.buffer.Admissions()
	if err != nil {
		p.logger.Warn("read buffered admissions", zap.Error(err))
		return nil
	}
	return recs
}

func (p *SyncPoller) localEnquiries() []models.Enquiry {
	if p.buffer == nil {
		return nil
	}
	recs, err := p.buffer.Enquiries()
	if err != nil {
		p.logger.Warn("read buffered enquiries", zap.Error(err))
		return nil
	}
	return recs
}

func (p *SyncPoller) localStudents() []models.Student {
	if p.buffer == nil {
		return nil
	}
	recs, err := p.buffer.Students()
	if err != nil {
		p.logger.Warn("read buffered students", zap.Error(err))
		return nil
	}
	return recs
}

// pruneSynced drops buffered copies that are synced and whose remote id is
// now served by a remote source.
func pruneSynced[T Mergeable](p *SyncPoller, collection string, local, merged []T) {
	remote := make(map[string]struct{}, len(merged))
	for _, rec := range merged {
		if !rec.Origin().IsLocal() {
			remote[rec.Key()] = struct{}{}
		}
	}
	pending := 0
	for _, rec := range local {
		if rec.Sync() == models.SyncStatePending {
			pending++
			continue
		}
		if _, ok := remote[rec.Remote()]; !ok {
			continue
		}
		if err := p.buffer.Remove(collection, rec.Key()); err != nil {
			p.logger.Warn("prune buffered record", zap.String("collection", collection), zap.String("id", rec.Key()), zap.Error(err))
		}
	}
	p.metrics.SetBufferPending(collection, pending)
}
