package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// CertificateStatus enumerates certificate request states.
type CertificateStatus string

const (
	CertificateStatusRequested          CertificateStatus = "requested"
	CertificateStatusPendingApproval    CertificateStatus = "pending_approval"
	CertificateStatusApproved           CertificateStatus = "approved"
	CertificateStatusPrinting           CertificateStatus = "printing"
	CertificateStatusReadyForCollection CertificateStatus = "ready_for_collection"
	CertificateStatusDelivered          CertificateStatus = "delivered"
	CertificateStatusCancelled          CertificateStatus = "cancelled"
)

// CertificateHistoryEntry is appended on every status change.
type CertificateHistoryEntry struct {
	Status CertificateStatus `json:"status"`
	At     time.Time         `json:"at"`
	By     string            `json:"by,omitempty"`
	Note   string            `json:"note,omitempty"`
}

// CertificateRequest tracks a certificate from request to delivery.
type CertificateRequest struct {
	ID                string            `db:"id" json:"id"`
	StudentID         *string           `db:"student_id" json:"studentId,omitempty"`
	BatchID           *string           `db:"batch_id" json:"batchId,omitempty"`
	CourseID          *string           `db:"course_id" json:"courseId,omitempty"`
	CertificateType   *string           `db:"certificate_type" json:"certificateType,omitempty"`
	RequesterName     *string           `db:"requester_name" json:"requesterName,omitempty"`
	RequesterEmail    *string           `db:"requester_email" json:"requesterEmail,omitempty"`
	RequestedAt       time.Time         `db:"requested_at" json:"requestedAt"`
	Status            CertificateStatus `db:"status" json:"status"`
	ApprovedBy        *string           `db:"approved_by" json:"approvedBy,omitempty"`
	ApprovedAt        *time.Time        `db:"approved_at" json:"approvedAt,omitempty"`
	PrintingStartedAt *time.Time        `db:"printing_started_at" json:"printingStartedAt,omitempty"`
	ReadyAt           *time.Time        `db:"ready_at" json:"readyAt,omitempty"`
	DeliveredAt       *time.Time        `db:"delivered_at" json:"deliveredAt,omitempty"`
	CancelledAt       *time.Time        `db:"cancelled_at" json:"cancelledAt,omitempty"`
	Notes             *string           `db:"notes" json:"notes,omitempty"`
	Metadata          JSONColumn        `db:"metadata" json:"metadata,omitempty"`
	StatusHistory     JSONColumn        `db:"status_history" json:"statusHistory"`
	CreatedAt         time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time         `db:"updated_at" json:"updatedAt"`
}

// JSONColumn is a json/jsonb column. SQL NULL scans to an empty value and an
// empty value is written as NULL.
type JSONColumn []byte

// Scan implements sql.Scanner.
func (j *JSONColumn) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = JSONColumn(v)
	default:
		return fmt.Errorf("scan json column: unsupported type %T", src)
	}
	return nil
}

// Value implements driver.Valuer.
func (j JSONColumn) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return []byte(j), nil
}

// MarshalJSON emits the stored document, or null when empty.
func (j JSONColumn) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON keeps the raw document.
func (j *JSONColumn) UnmarshalJSON(data []byte) error {
	*j = append((*j)[:0], data...)
	return nil
}

// History decodes the stored status history.
func (c CertificateRequest) History() []CertificateHistoryEntry {
	var out []CertificateHistoryEntry
	if len(c.StatusHistory) > 0 {
		_ = json.Unmarshal(c.StatusHistory, &out)
	}
	return out
}

// CertificateFilter constrains listing queries.
type CertificateFilter struct {
	Status    CertificateStatus
	StudentID string
	Limit     int
	Offset    int
}
