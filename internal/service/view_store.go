package service

import (
	"sync"
	"time"

	"github.com/noah-isme/admissions-sync-api/internal/models"
)

// ViewStore owns the merged, deduplicated records of one entity. Readers get
// copies. Pushed and polled records are checked against the stored copy with
// the merge policy, so a lower-ranked source or a stale poll cannot replace
// it. Once closed, writes are dropped.
type ViewStore[T Mergeable] struct {
	name   string
	policy MergePolicy

	mu       sync.RWMutex
	records  []T
	loadedAt time.Time
	closed   bool
}

// NewViewStore constructs an empty store.
func NewViewStore[T Mergeable](name string) *ViewStore[T] {
	return &ViewStore[T]{name: name, policy: DefaultMergePolicy()}
}

// UsePolicy sets the policy used to arbitrate incoming records.
func (v *ViewStore[T]) UsePolicy(policy MergePolicy) *ViewStore[T] {
	v.mu.Lock()
	v.policy = policy
	v.mu.Unlock()
	return v
}

// Name identifies the entity held by the store.
func (v *ViewStore[T]) Name() string { return v.name }

// List returns a copy of the ordered records.
func (v *ViewStore[T]) List() []T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]T, len(v.records))
	copy(out, v.records)
	return out
}

// Len returns the number of records.
func (v *ViewStore[T]) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.records)
}

// LoadedAt returns when the last full replace was applied.
func (v *ViewStore[T]) LoadedAt() time.Time {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.loadedAt
}

// Get looks a record up by canonical id or by the remote id it is aliased to.
func (v *ViewStore[T]) Get(id string) (T, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if i := v.indexOf(id); i >= 0 {
		return v.records[i], true
	}
	var zero T
	return zero, false
}

// Replace swaps in a freshly merged snapshot fetched at fetchedAt. A stored
// record is kept over its incoming copy only when it beats it under the
// policy (higher rank, or a newer version at equal rank). Records written
// after the fetch began that the snapshot could not have seen are kept too.
func (v *ViewStore[T]) Replace(records []T, fetchedAt time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return false
	}

	current := make(map[string]T, len(v.records))
	for _, rec := range v.records {
		current[mergeKey(rec)] = rec
	}

	next := make([]T, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		key := mergeKey(rec)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if existing, ok := current[key]; ok && v.policy.Beats(existing, rec) {
			rec = existing
		}
		next = append(next, rec)
	}
	for key, rec := range current {
		if _, ok := seen[key]; ok {
			continue
		}
		if rec.Version().After(fetchedAt) {
			next = append(next, rec)
		}
	}

	sortRecords(next)
	v.records = next
	v.loadedAt = time.Now()
	return true
}

// Insert adds rec only if its id is absent.
func (v *ViewStore[T]) Insert(rec T) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || v.indexOf(mergeKey(rec)) >= 0 {
		return false
	}
	v.records = append(v.records, rec)
	sortRecords(v.records)
	return true
}

// Upsert fully replaces the record with the same id, or inserts it when
// absent. The incoming record is ignored when the stored one beats it.
func (v *ViewStore[T]) Upsert(rec T) bool {
	return v.write(rec, true)
}

// Put stores a record this process has just written, replacing any stored
// copy regardless of source rank.
func (v *ViewStore[T]) Put(rec T) bool {
	return v.write(rec, false)
}

func (v *ViewStore[T]) write(rec T, arbitrate bool) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return false
	}
	if i := v.indexOf(mergeKey(rec)); i >= 0 {
		if arbitrate && v.policy.Beats(v.records[i], rec) {
			return false
		}
		v.records[i] = rec
	} else {
		v.records = append(v.records, rec)
	}
	sortRecords(v.records)
	return true
}

// Delete removes the record with id. Deleting an absent id is a no-op.
func (v *ViewStore[T]) Delete(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return false
	}
	i := v.indexOf(id)
	if i < 0 {
		return false
	}
	v.records = append(v.records[:i:i], v.records[i+1:]...)
	return true
}

// DeleteFrom removes the record with id on behalf of source. A stored
// record that outranks source, or a pending local edit the policy protects,
// is left in place.
func (v *ViewStore[T]) DeleteFrom(id string, source models.Provenance) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return false
	}
	i := v.indexOf(id)
	if i < 0 {
		return false
	}
	stored := v.records[i]
	if v.policy.LocalPendingWins && pendingLocal(stored) {
		return false
	}
	if v.policy.Ranks[stored.Origin()] > v.policy.Ranks[source] {
		return false
	}
	v.records = append(v.records[:i:i], v.records[i+1:]...)
	return true
}

// Close tears the store down. Late writes are discarded afterwards.
func (v *ViewStore[T]) Close() {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
}

// Closed reports whether the store has been torn down.
func (v *ViewStore[T]) Closed() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.closed
}

func (v *ViewStore[T]) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i, rec := range v.records {
		if mergeKey(rec) == id || rec.Key() == id {
			return i
		}
	}
	return -1
}
