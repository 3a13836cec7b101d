package dto

import "time"

// SourceReport describes one source fetch during a refresh.
type SourceReport struct {
	Entity string `json:"entity"`
	Source string `json:"source"`
	Rows   int    `json:"rows"`
	Error  string `json:"error,omitempty"`
}

// SyncReport is returned by a manual refresh.
type SyncReport struct {
	FetchedAt  time.Time      `json:"fetchedAt"`
	Admissions int            `json:"admissions"`
	Enquiries  int            `json:"enquiries"`
	Students   int            `json:"students"`
	Batches    int            `json:"batches"`
	Sources    []SourceReport `json:"sources"`
}

// BufferSyncReport is returned by a manual buffer drain.
type BufferSyncReport struct {
	Attempted int `json:"attempted"`
	Synced    int `json:"synced"`
	Remaining int `json:"remaining"`
}
