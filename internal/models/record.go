package models

import "time"

// Provenance names the source a canonical record was normalized from.
type Provenance string

const (
	ProvenanceAdmissions         Provenance = "admissions"
	ProvenanceApplications       Provenance = "applications"
	ProvenancePublicApplications Provenance = "public_applications"
	ProvenancePublicAPI          Provenance = "public_api"
	ProvenanceLocal              Provenance = "local"
	ProvenanceEnquiries          Provenance = "enquiries"
	ProvenanceLocalEnquiries     Provenance = "local_enquiries"
	ProvenanceStudents           Provenance = "students"
	ProvenanceLocalStudents      Provenance = "local_students"
	ProvenanceRealtime           Provenance = "realtime"
	ProvenanceBatches            Provenance = "batches"
)

// IsLocal reports whether the provenance refers to the on-disk buffer.
func (p Provenance) IsLocal() bool {
	return p == ProvenanceLocal || p == ProvenanceLocalEnquiries || p == ProvenanceLocalStudents
}

// SyncState tracks whether a locally held record still awaits remote persistence.
type SyncState string

const (
	SyncStateSynced  SyncState = "synced"
	SyncStatePending SyncState = "pending"
)

// RawRow is an untyped row as returned by a table, REST payload or buffer file.
type RawRow map[string]any

// RecordMeta carries merge bookkeeping shared by every canonical record.
type RecordMeta struct {
	Provenance Provenance `json:"provenance"`
	SyncState  SyncState  `json:"syncState"`
	RemoteID   string     `json:"remoteId,omitempty"`
}

// Origin returns the record provenance.
func (m RecordMeta) Origin() Provenance { return m.Provenance }

// Sync returns the record sync state, defaulting to synced.
func (m RecordMeta) Sync() SyncState {
	if m.SyncState == "" {
		return SyncStateSynced
	}
	return m.SyncState
}

// Remote returns the id assigned by the remote store once synced.
func (m RecordMeta) Remote() string { return m.RemoteID }

// Pagination describes a page of results.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// ListFilter is the shared query contract for merged views.
type ListFilter struct {
	Status   string
	Search   string
	Campus   string
	Page     int
	PageSize int
}

// Window normalises page values and returns slice bounds for total items.
func (f ListFilter) Window(total int) (start, end int, page Pagination) {
	size := f.PageSize
	if size <= 0 || size > 500 {
		size = 50
	}
	p := f.Page
	if p <= 0 {
		p = 1
	}
	start = (p - 1) * size
	if start > total {
		start = total
	}
	end = start + size
	if end > total {
		end = total
	}
	return start, end, Pagination{Page: p, PageSize: size, TotalCount: total}
}

func orZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
