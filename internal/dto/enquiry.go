package dto

import (
	"time"

	"github.com/noah-isme/admissions-sync-api/internal/models"
)

// CreateEnquiryRequest captures a new lead.
type CreateEnquiryRequest struct {
	Name         string              `json:"name" validate:"required"`
	Course       string              `json:"course" validate:"required"`
	Contact      string              `json:"contact" validate:"required"`
	Email        string              `json:"email" validate:"omitempty,email"`
	City         string              `json:"city"`
	Sources      []string            `json:"sources"`
	Stage        models.EnquiryStage `json:"stage"`
	NextFollowUp *time.Time          `json:"nextFollowUp"`
	Probability  int                 `json:"probability" validate:"gte=0,lte=100"`
	Remarks      string              `json:"remarks"`
	Campus       string              `json:"campus"`
}

// UpdateEnquiryStageRequest moves an enquiry through the sales pipeline.
type UpdateEnquiryStageRequest struct {
	Stage models.EnquiryStage `json:"stage" validate:"required"`
}

// ScheduleFollowUpRequest sets the next contact date.
type ScheduleFollowUpRequest struct {
	NextFollowUp time.Time `json:"nextFollowUp" validate:"required"`
	Remarks      string    `json:"remarks"`
}

// UpdateEnquiryStatusRequest closes or reopens an enquiry.
type UpdateEnquiryStatusRequest struct {
	Status models.EnquiryStatus `json:"status" validate:"required"`
}

// ConvertEnquiryRequest optionally places the converted student.
type ConvertEnquiryRequest struct {
	Batch  string `json:"batch"`
	Campus string `json:"campus"`
}

// ImportIssue explains why a spreadsheet line was skipped.
type ImportIssue struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// ImportResult summarises an enquiry spreadsheet import.
type ImportResult struct {
	Imported int           `json:"imported"`
	Skipped  []ImportIssue `json:"skipped"`
}
