package dto

import (
	"encoding/json"

	"github.com/noah-isme/admissions-sync-api/internal/models"
)

// CreateCertificateRequest opens a certificate request.
type CreateCertificateRequest struct {
	StudentID       string          `json:"studentId" validate:"required_without=RequesterName"`
	BatchID         string          `json:"batchId"`
	CourseID        string          `json:"courseId"`
	CertificateType string          `json:"certificateType"`
	RequesterName   string          `json:"requesterName"`
	RequesterEmail  string          `json:"requesterEmail" validate:"omitempty,email"`
	Notes           string          `json:"notes"`
	Metadata        json.RawMessage `json:"metadata"`
}

// UpdateCertificateStatusRequest advances a certificate request.
type UpdateCertificateStatusRequest struct {
	Status models.CertificateStatus `json:"status" validate:"required"`
	Note   string                   `json:"note"`
}
