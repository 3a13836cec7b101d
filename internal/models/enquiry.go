package models

import "time"

// EnquiryStage is informational and may move freely.
type EnquiryStage string

const (
	EnquiryStageProspective  EnquiryStage = "Prospective"
	EnquiryStageNeedAnalysis EnquiryStage = "NeedAnalysis"
	EnquiryStageProposal     EnquiryStage = "Proposal"
	EnquiryStageNegotiation  EnquiryStage = "Negotiation"
)

// EnquiryStatus enumerates enquiry outcomes.
type EnquiryStatus string

const (
	EnquiryStatusPending       EnquiryStatus = "Pending"
	EnquiryStatusEnrolled      EnquiryStatus = "Enrolled"
	EnquiryStatusNotInterested EnquiryStatus = "NotInterested"
)

// Enquiry is a prospective student's initial expression of interest.
type Enquiry struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Course       string        `json:"course"`
	Contact      string        `json:"contact"`
	Email        string        `json:"email,omitempty"`
	City         string        `json:"city"`
	Sources      []string      `json:"sources"`
	Stage        EnquiryStage  `json:"stage"`
	Status       EnquiryStatus `json:"status"`
	NextFollowUp *time.Time    `json:"nextFollowUp,omitempty"`
	StudentID    string        `json:"studentId,omitempty"`
	Probability  int           `json:"probability"`
	Remarks      string        `json:"remarks,omitempty"`
	Campus       string        `json:"campus,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	RecordMeta
}

// Key returns the canonical id.
func (e Enquiry) Key() string { return e.ID }

// Created returns the creation time used for ordering.
func (e Enquiry) Created() time.Time { return e.CreatedAt }

// Version returns the timestamp compared on conflicting writes.
func (e Enquiry) Version() time.Time {
	if e.UpdatedAt.IsZero() {
		return e.CreatedAt
	}
	return e.UpdatedAt
}

// Clone deep-copies slices and pointers.
func (e Enquiry) Clone() Enquiry {
	out := e
	out.Sources = append([]string(nil), e.Sources...)
	if e.NextFollowUp != nil {
		next := *e.NextFollowUp
		out.NextFollowUp = &next
	}
	return out
}

// NextFollowUpOrZero is used when sorting and exporting.
func (e Enquiry) NextFollowUpOrZero() time.Time { return orZero(e.NextFollowUp) }
