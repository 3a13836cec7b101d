package service

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/admissions-sync-api/internal/models"
	"github.com/noah-isme/admissions-sync-api/pkg/config"
)

// Mergeable is implemented by every canonical record held in a view.
type Mergeable interface {
	Key() string
	Created() time.Time
	Version() time.Time
	Origin() models.Provenance
	Sync() models.SyncState
	Remote() string
}

// MergePolicy decides which record survives when several sources share an id.
type MergePolicy struct {
	Ranks            map[models.Provenance]int
	LocalPendingWins bool
}

// DefaultMergePolicy ranks authoritative tables above the public fallback
// and lets pending local edits win until they are synced.
func DefaultMergePolicy() MergePolicy {
	return MergePolicy{
		Ranks: map[models.Provenance]int{
			models.ProvenanceApplications:       30,
			models.ProvenanceEnquiries:          30,
			models.ProvenanceStudents:           30,
			models.ProvenanceBatches:            30,
			models.ProvenanceAdmissions:         20,
			models.ProvenanceRealtime:           20,
			models.ProvenancePublicAPI:          10,
			models.ProvenancePublicApplications: 10,
			models.ProvenanceLocal:              0,
			models.ProvenanceLocalEnquiries:     0,
			models.ProvenanceLocalStudents:      0,
		},
		LocalPendingWins: true,
	}
}

// MergePolicyFromConfig overlays configured ranks on the defaults.
func MergePolicyFromConfig(cfg config.MergeConfig) MergePolicy {
	policy := DefaultMergePolicy()
	policy.LocalPendingWins = cfg.LocalPendingWins
	for source, rank := range cfg.SourceRanks {
		policy.Ranks[models.Provenance(source)] = rank
	}
	return policy
}

func (p MergePolicy) rank(r Mergeable) int {
	return p.Ranks[r.Origin()]
}

func pendingLocal(r Mergeable) bool {
	return r.Origin().IsLocal() && r.Sync() == models.SyncStatePending
}

// Beats reports whether candidate should replace current. Equal rank falls
// back to the newer version; a full tie keeps the first occurrence.
func (p MergePolicy) Beats(candidate, current Mergeable) bool {
	if p.LocalPendingWins {
		if c, u := pendingLocal(candidate), pendingLocal(current); c != u {
			return c
		}
	}
	if rc, ru := p.rank(candidate), p.rank(current); rc != ru {
		return rc > ru
	}
	return candidate.Version().After(current.Version())
}

// mergeKey returns the dedup key. A synced local record is aliased to the id
// the remote store assigned so it collapses onto the remote copy.
func mergeKey(r Mergeable) string {
	if r.Origin().IsLocal() && r.Sync() == models.SyncStateSynced && r.Remote() != "" {
		return r.Remote()
	}
	return r.Key()
}

// Merge deduplicates records from every source by canonical id and orders
// them newest first (id ascending on equal creation time).
func Merge[T Mergeable](policy MergePolicy, sources ...[]T) []T {
	winners := make(map[string]T)
	for _, source := range sources {
		for _, rec := range source {
			key := mergeKey(rec)
			if key == "" {
				continue
			}
			current, exists := winners[key]
			if !exists || policy.Beats(rec, current) {
				winners[key] = rec
			}
		}
	}

	out := make([]T, 0, len(winners))
	for _, rec := range winners {
		out = append(out, rec)
	}
	sortRecords(out)
	return out
}

func sortRecords[T Mergeable](records []T) {
	sort.SliceStable(records, func(i, j int) bool {
		ci, cj := records[i].Created(), records[j].Created()
		if !ci.Equal(cj) {
			return ci.After(cj)
		}
		return mergeKey(records[i]) < mergeKey(records[j])
	})
}

// Snapshot is one source's rows from a single fetch. A failed fetch carries
// Err and contributes nothing.
type Snapshot struct {
	Source models.Provenance
	Rows   []models.RawRow
	Err    error
}

// Reconciler normalizes snapshots through the per-source adapters and merges
// them under a single policy.
type Reconciler struct {
	policy     MergePolicy
	normalizer *Normalizer
	logger     *zap.Logger
}

// NewReconciler constructs the merger.
func NewReconciler(policy MergePolicy, normalizer *Normalizer, logger *zap.Logger) *Reconciler {
	if normalizer == nil {
		normalizer = NewNormalizer(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{policy: policy, normalizer: normalizer, logger: logger}
}

// Policy exposes the merge policy for callers that merge typed records directly.
func (r *Reconciler) Policy() MergePolicy { return r.policy }

// Normalizer exposes the adapters.
func (r *Reconciler) Normalizer() *Normalizer { return r.normalizer }

// Admissions merges admission snapshots with already-typed local records.
func (r *Reconciler) Admissions(snapshots []Snapshot, local []models.Admission) []models.Admission {
	sources := make([][]models.Admission, 0, len(snapshots)+1)
	for _, snap := range snapshots {
		if snap.Err != nil {
			r.logger.Warn("admission source skipped", zap.String("source", string(snap.Source)), zap.Error(snap.Err))
			continue
		}
		records := make([]models.Admission, 0, len(snap.Rows))
		for _, row := range snap.Rows {
			records = append(records, r.normalizer.Admission(row, snap.Source))
		}
		sources = append(sources, records)
	}
	sources = append(sources, local)
	return Merge(r.policy, sources...)
}

// Enquiries merges enquiry snapshots with local records under the same policy.
func (r *Reconciler) Enquiries(snapshots []Snapshot, local []models.Enquiry) []models.Enquiry {
	sources := make([][]models.Enquiry, 0, len(snapshots)+1)
	for _, snap := range snapshots {
		if snap.Err != nil {
			r.logger.Warn("enquiry source skipped", zap.String("source", string(snap.Source)), zap.Error(snap.Err))
			continue
		}
		records := make([]models.Enquiry, 0, len(snap.Rows))
		for _, row := range snap.Rows {
			records = append(records, r.normalizer.Enquiry(row, snap.Source))
		}
		sources = append(sources, records)
	}
	sources = append(sources, local)
	return Merge(r.policy, sources...)
}

// Students decodes student rows and merges them with local records.
func (r *Reconciler) Students(snapshots []Snapshot, local []models.Student) []models.Student {
	sources := make([][]models.Student, 0, len(snapshots)+1)
	for _, snap := range snapshots {
		if snap.Err != nil {
			r.logger.Warn("student source skipped", zap.String("source", string(snap.Source)), zap.Error(snap.Err))
			continue
		}
		records := make([]models.Student, 0, len(snap.Rows))
		for _, row := range snap.Rows {
			rec, err := r.normalizer.Student(row)
			if err != nil {
				r.logger.Warn("student row skipped", zap.Error(err))
				continue
			}
			rec.Provenance = snap.Source
			rec.RemoteID = ""
			rec.SyncState = models.SyncStateSynced
			records = append(records, rec)
		}
		sources = append(sources, records)
	}
	sources = append(sources, local)
	return Merge(r.policy, sources...)
}

// Batches merges batch snapshots. Batches are never buffered locally.
func (r *Reconciler) Batches(snapshots []Snapshot) []models.Batch {
	sources := make([][]models.Batch, 0, len(snapshots))
	for _, snap := range snapshots {
		if snap.Err != nil {
			r.logger.Warn("batch source skipped", zap.String("source", string(snap.Source)), zap.Error(snap.Err))
			continue
		}
		records := make([]models.Batch, 0, len(snap.Rows))
		for _, row := range snap.Rows {
			if rec := r.normalizer.Batch(row); rec.ID != "" {
				records = append(records, rec)
			}
		}
		sources = append(sources, records)
	}
	return Merge(r.policy, sources...)
}
