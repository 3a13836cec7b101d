package models

import "time"

// AdmissionStatus enumerates the admission lifecycle states.
type AdmissionStatus string

const (
	AdmissionStatusPending   AdmissionStatus = "Pending"
	AdmissionStatusVerified  AdmissionStatus = "Verified"
	AdmissionStatusRejected  AdmissionStatus = "Rejected"
	AdmissionStatusSuspended AdmissionStatus = "Suspended"
	AdmissionStatusCancelled AdmissionStatus = "Cancelled"
)

// Defaults applied when a source omits placement details.
const (
	DefaultBatch  = "TBD"
	DefaultCampus = "Main"
)

// Contact identifies the applicant.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Document is an uploaded supporting file.
type Document struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Verified bool   `json:"verified"`
}

// Admission is the canonical admission application.
type Admission struct {
	ID             string          `json:"id"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	Status         AdmissionStatus `json:"status"`
	Student        Contact         `json:"student"`
	Course         string          `json:"course"`
	Batch          string          `json:"batch"`
	Campus         string          `json:"campus"`
	Fee            Fee             `json:"fee"`
	Documents      []Document      `json:"documents"`
	Notes          string          `json:"notes,omitempty"`
	PreferredStart string          `json:"preferredStart,omitempty"`
	StudentID      string          `json:"studentId,omitempty"`
	RejectedReason string          `json:"rejectedReason,omitempty"`
	RecordMeta
}

// Key returns the canonical id.
func (a Admission) Key() string { return a.ID }

// Created returns the creation time used for ordering.
func (a Admission) Created() time.Time { return a.CreatedAt }

// Version returns the timestamp compared on conflicting writes.
func (a Admission) Version() time.Time {
	if a.UpdatedAt.IsZero() {
		return a.CreatedAt
	}
	return a.UpdatedAt
}

// Clone deep-copies slices so the copy can be mutated.
func (a Admission) Clone() Admission {
	out := a
	out.Fee = a.Fee.Clone()
	out.Documents = append([]Document(nil), a.Documents...)
	return out
}
