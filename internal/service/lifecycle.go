package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/noah-isme/admissions-sync-api/internal/models"
	appErrors "github.com/noah-isme/admissions-sync-api/pkg/errors"
)

// Transitions is an allowed-move table keyed by the current state.
type Transitions[S ~string] struct {
	entity string
	moves  map[S][]S
	known  map[S]struct{}
}

// NewTransitions builds a table for the named entity.
func NewTransitions[S ~string](entity string, moves map[S][]S) Transitions[S] {
	known := make(map[S]struct{})
	for from, targets := range moves {
		known[from] = struct{}{}
		for _, to := range targets {
			known[to] = struct{}{}
		}
	}
	return Transitions[S]{entity: entity, moves: moves, known: known}
}

// Known reports whether s is a state of this lifecycle.
func (t Transitions[S]) Known(s S) bool {
	_, ok := t.known[s]
	return ok
}

// Check validates from→to. It returns changed=false for a same-state move,
// a validation error for unknown states and InvalidTransition otherwise.
func (t Transitions[S]) Check(from, to S) (changed bool, err error) {
	if !t.Known(to) {
		return false, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown %s status %q", t.entity, to))
	}
	if from == to {
		return false, nil
	}
	for _, allowed := range t.moves[from] {
		if allowed == to {
			return true, nil
		}
	}
	return false, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot move %s from %s to %s", t.entity, from, to))
}

var (
	// EnquiryLifecycle: Enrolled and NotInterested are terminal.
	EnquiryLifecycle = NewTransitions("enquiry", map[models.EnquiryStatus][]models.EnquiryStatus{
		models.EnquiryStatusPending: {models.EnquiryStatusEnrolled, models.EnquiryStatusNotInterested},
	})

	// AdmissionLifecycle only leaves Pending.
	AdmissionLifecycle = NewTransitions("admission", map[models.AdmissionStatus][]models.AdmissionStatus{
		models.AdmissionStatusPending: {
			models.AdmissionStatusVerified,
			models.AdmissionStatusRejected,
			models.AdmissionStatusSuspended,
			models.AdmissionStatusCancelled,
		},
	})

	// StudentLifecycle allows reinstatement to Current from every state.
	StudentLifecycle = NewTransitions("student", map[models.StudentStatus][]models.StudentStatus{
		models.StudentStatusCurrent: {
			models.StudentStatusFreeze,
			models.StudentStatusSuspended,
			models.StudentStatusConcluded,
			models.StudentStatusAlumni,
			models.StudentStatusNotCompleted,
		},
		models.StudentStatusFreeze:       {models.StudentStatusCurrent},
		models.StudentStatusSuspended:    {models.StudentStatusCurrent},
		models.StudentStatusConcluded:    {models.StudentStatusCurrent},
		models.StudentStatusAlumni:       {models.StudentStatusCurrent},
		models.StudentStatusNotCompleted: {models.StudentStatusCurrent},
	})

	CertificateLifecycle = NewTransitions("certificate", map[models.CertificateStatus][]models.CertificateStatus{
		models.CertificateStatusRequested: {
			models.CertificateStatusPendingApproval,
			models.CertificateStatusApproved,
			models.CertificateStatusCancelled,
		},
		models.CertificateStatusPendingApproval:    {models.CertificateStatusApproved, models.CertificateStatusCancelled},
		models.CertificateStatusApproved:           {models.CertificateStatusPrinting, models.CertificateStatusCancelled},
		models.CertificateStatusPrinting:           {models.CertificateStatusReadyForCollection, models.CertificateStatusCancelled},
		models.CertificateStatusReadyForCollection: {models.CertificateStatusDelivered, models.CertificateStatusCancelled},
	})
)

// ValidEnquiryStage reports whether stage is one of the four informational stages.
func ValidEnquiryStage(stage models.EnquiryStage) bool {
	switch stage {
	case models.EnquiryStageProspective, models.EnquiryStageNeedAnalysis, models.EnquiryStageProposal, models.EnquiryStageNegotiation:
		return true
	}
	return false
}

// GenerateStudentID builds STU-<INITIALS>-<base36 epoch millis>.
func GenerateStudentID(name string, now time.Time) string {
	var initials strings.Builder
	for _, word := range strings.Fields(name) {
		for _, r := range word {
			if unicode.IsLetter(r) {
				initials.WriteRune(unicode.ToUpper(r))
				break
			}
		}
		if initials.Len() >= 3 {
			break
		}
	}
	if initials.Len() == 0 {
		initials.WriteString("X")
	}
	stamp := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
	return fmt.Sprintf("STU-%s-%s", initials.String(), stamp)
}

// StampCertificate applies the timestamp column owned by the target status
// and appends a history entry. The caller has already validated the move.
func StampCertificate(req *models.CertificateRequest, to models.CertificateStatus, by, note string, now time.Time) error {
	at := now
	switch to {
	case models.CertificateStatusApproved:
		req.ApprovedAt = &at
		if by != "" {
			req.ApprovedBy = &by
		}
	case models.CertificateStatusPrinting:
		req.PrintingStartedAt = &at
	case models.CertificateStatusReadyForCollection:
		req.ReadyAt = &at
	case models.CertificateStatusDelivered:
		req.DeliveredAt = &at
	case models.CertificateStatusCancelled:
		req.CancelledAt = &at
	}
	history := append(req.History(), models.CertificateHistoryEntry{Status: to, At: now, By: by, Note: note})
	raw, err := marshalJSON(history)
	if err != nil {
		return err
	}
	req.StatusHistory = raw
	req.Status = to
	req.UpdatedAt = now
	return nil
}
