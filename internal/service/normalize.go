package service

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/admissions-sync-api/internal/models"
)

// Identifier fields in the order they are trusted.
var (
	explicitIDKeys  = []string{"app_id", "application_id", "appId", "appID"}
	secondaryIDKeys = []string{"id", "uuid", "enquiry_id"}
	createdKeys     = []string{"created_at", "createdAt"}
	updatedKeys     = []string{"updated_at", "updatedAt"}
)

const defaultDueOffset = 7 * 24 * time.Hour

// preferredStartKeys name the columns carrying an applicant's chosen start date.
var preferredStartKeys = []string{"preferred_start", "preferredStart", "start_date", "startDate"}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// IDGenerator produces the last-resort canonical id.
type IDGenerator func() string

func defaultIDGenerator() string { return uuid.NewString() }

// CanonicalID derives the dedup key for a raw row: explicit application id,
// then a secondary id, then the creation timestamp, then a fresh token.
func CanonicalID(row models.RawRow, gen IDGenerator) string {
	if id := rowString(row, explicitIDKeys...); id != "" {
		return id
	}
	if id := rowString(row, secondaryIDKeys...); id != "" {
		return id
	}
	if created := rowString(row, createdKeys...); created != "" {
		return created
	}
	if gen == nil {
		gen = defaultIDGenerator
	}
	return gen()
}

// Normalizer maps raw rows from every source into canonical records.
type Normalizer struct {
	newID IDGenerator
}

// NewNormalizer builds a normalizer; a nil generator uses random UUIDs.
func NewNormalizer(gen IDGenerator) *Normalizer {
	if gen == nil {
		gen = defaultIDGenerator
	}
	return &Normalizer{newID: gen}
}

// Admission adapts rows from admissions, applications, the REST surface,
// realtime payloads and the local buffer. public_applications rows go
// through PublicApplication instead.
func (n *Normalizer) Admission(row models.RawRow, source models.Provenance) models.Admission {
	if source == models.ProvenancePublicApplications {
		return n.PublicApplication(row, source)
	}

	created, _ := rowTime(row, createdKeys...)
	updated, ok := rowTime(row, updatedKeys...)
	if !ok {
		updated = created
	}

	nested := rowMap(row, "student")
	contact := models.Contact{
		Name:  firstNonEmpty(rowString(nested, "name"), rowString(row, "name", "full_name", "student_name")),
		Email: firstNonEmpty(rowString(nested, "email"), rowString(row, "email")),
		Phone: firstNonEmpty(rowString(nested, "phone"), rowString(row, "phone", "contact")),
	}

	feeMap := rowMap(row, "fee")
	total := rowInt(row, "fee_total", "feeTotal")
	if total == 0 {
		total = rowInt(feeMap, "total")
	}
	discount := rowFloat(row, "fee_discount", "discount_percent", "discountPercent")
	if discount == 0 {
		discount = rowFloat(feeMap, "discountPercent", "discount_percent")
	}
	rawInstallments := rowList(row, "fee_installments", "installments")
	if len(rawInstallments) == 0 {
		rawInstallments = rowList(feeMap, "installments")
	}
	installments := normalizeInstallments(rawInstallments, created)
	if len(installments) == 0 {
		due, ok := rowTime(row, "next_due_date", "nextDueDate")
		if !ok {
			due = created.Add(defaultDueOffset)
		}
		installments = []models.Installment{{ID: "due", Amount: total, DueDate: due}}
	}

	rec := models.Admission{
		ID:             CanonicalID(row, n.newID),
		CreatedAt:      created,
		UpdatedAt:      updated,
		Status:         parseAdmissionStatus(rowString(row, "status")),
		Student:        contact,
		Course:         rowString(row, "course", "course_name", "program"),
		Batch:          firstNonEmpty(rowString(row, "batch", "batch_code"), models.DefaultBatch),
		Campus:         firstNonEmpty(rowString(row, "campus"), models.DefaultCampus),
		Fee:            models.Fee{Total: total, DiscountPercent: discount, Installments: installments},
		Documents:      normalizeDocuments(rowList(row, "documents")),
		Notes:          rowString(row, "notes"),
		StudentID:      rowString(row, "student_id", "studentId"),
		RejectedReason: rowString(row, "rejected_reason", "rejectedReason"),
		PreferredStart: rowDate(row, preferredStartKeys...),
		RecordMeta:     metaFor(row, source),
	}
	return rec
}

// PublicApplication adapts the reduced public_applications shape.
func (n *Normalizer) PublicApplication(row models.RawRow, source models.Provenance) models.Admission {
	created, _ := rowTime(row, createdKeys...)
	updated, ok := rowTime(row, updatedKeys...)
	if !ok {
		updated = created
	}
	preferred := rowDate(row, preferredStartKeys...)
	due, ok := rowTime(row, preferredStartKeys...)
	if !ok {
		due = created.Add(defaultDueOffset)
	}
	status := parseAdmissionStatus(rowString(row, "status"))

	rec := models.Admission{
		ID:        CanonicalID(row, n.newID),
		CreatedAt: created,
		UpdatedAt: updated,
		Status:    status,
		Student: models.Contact{
			Name:  rowString(row, "name"),
			Email: rowString(row, "email"),
			Phone: rowString(row, "phone"),
		},
		Course:     rowString(row, "course"),
		Batch:      models.DefaultBatch,
		Campus:     models.DefaultCampus,
		Fee:        models.Fee{Installments: []models.Installment{{ID: "due", Amount: 0, DueDate: due}}},
		Documents:  []models.Document{},
		RecordMeta: metaFor(row, source),
	}
	if preferred != "" {
		rec.PreferredStart = preferred
		rec.Notes = "Preferred start: " + preferred
	}
	return rec
}

// Batch adapts rows from the batches table and realtime payloads. Rows
// without batch_id or id are dropped by returning an empty id.
func (n *Normalizer) Batch(row models.RawRow) models.Batch {
	created, _ := rowTime(row, createdKeys...)
	updated, ok := rowTime(row, updatedKeys...)
	if !ok {
		updated = created
	}
	return models.Batch{
		ID:              rowString(row, "batch_id", "id"),
		Code:            rowString(row, "batch_code", "code"),
		Course:          rowString(row, "course_name", "course"),
		Campus:          firstNonEmpty(rowString(row, "campus_name", "campus"), models.DefaultCampus),
		StartDate:       rowDate(row, "start_date", "startDate"),
		EndDate:         rowDate(row, "end_date", "endDate"),
		Instructor:      rowString(row, "instructor"),
		MaxStudents:     int(rowInt(row, "max_students", "maxStudents")),
		CurrentStudents: int(rowInt(row, "current_students", "currentStudents")),
		Status:          firstNonEmpty(rowString(row, "status"), "active"),
		CreatedAt:       created,
		UpdatedAt:       updated,
		RecordMeta:      models.RecordMeta{Provenance: models.ProvenanceBatches, SyncState: models.SyncStateSynced},
	}
}

// Enquiry adapts rows from the enquiries table, realtime payloads and the buffer.
func (n *Normalizer) Enquiry(row models.RawRow, source models.Provenance) models.Enquiry {
	created, _ := rowTime(row, createdKeys...)
	updated, ok := rowTime(row, updatedKeys...)
	if !ok {
		updated = created
	}
	stage := models.EnquiryStage(rowString(row, "stage"))
	if !ValidEnquiryStage(stage) {
		stage = models.EnquiryStageProspective
	}
	status := models.EnquiryStatus(rowString(row, "status"))
	if !EnquiryLifecycle.Known(status) {
		status = models.EnquiryStatusPending
	}

	rec := models.Enquiry{
		ID:          CanonicalID(row, n.newID),
		Name:        rowString(row, "name"),
		Course:      rowString(row, "course"),
		Contact:     rowString(row, "contact", "phone"),
		Email:       rowString(row, "email"),
		City:        rowString(row, "city"),
		Sources:     rowStrings(row, "sources", "source"),
		Stage:       stage,
		Status:      status,
		StudentID:   rowString(row, "student_id", "studentId"),
		Probability: clampProbability(rowInt(row, "probability")),
		Remarks:     rowString(row, "remarks"),
		Campus:      rowString(row, "campus"),
		CreatedAt:   created,
		UpdatedAt:   updated,
		RecordMeta:  metaFor(row, source),
	}
	if next, ok := rowTime(row, "next_follow", "nextFollow", "nextFollowUp", "next_follow_up", "preferred_start"); ok {
		rec.NextFollowUp = &next
	}
	return rec
}

// Student decodes a students table row ({id, record jsonb, updated_at}) or a
// bare student object.
func (n *Normalizer) Student(row models.RawRow) (models.Student, error) {
	var rec models.Student
	payload := row["record"]
	if payload == nil {
		payload = map[string]any(row)
	}
	raw, err := toJSON(payload)
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, fmt.Errorf("decode student record: %w", err)
	}
	if id := rowString(row, "id"); id != "" {
		rec.ID = id
	}
	if rec.ID == "" {
		return rec, fmt.Errorf("student record without id")
	}
	if updated, ok := rowTime(row, updatedKeys...); ok && updated.After(rec.UpdatedAt) {
		rec.UpdatedAt = updated
	}
	if rec.Status == "" {
		rec.Status = models.StudentStatusCurrent
	}
	return rec, nil
}

func metaFor(row models.RawRow, source models.Provenance) models.RecordMeta {
	meta := models.RecordMeta{Provenance: source, SyncState: models.SyncStateSynced}
	if source.IsLocal() {
		if state := models.SyncState(rowString(row, "syncState", "sync_state")); state != "" {
			meta.SyncState = state
		} else {
			meta.SyncState = models.SyncStatePending
		}
		meta.RemoteID = rowString(row, "remoteId", "remote_id")
	}
	return meta
}

func parseAdmissionStatus(raw string) models.AdmissionStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "verified", "approved":
		return models.AdmissionStatusVerified
	case "rejected":
		return models.AdmissionStatusRejected
	case "suspended":
		return models.AdmissionStatusSuspended
	case "cancelled", "canceled":
		return models.AdmissionStatusCancelled
	default:
		return models.AdmissionStatusPending
	}
}

func normalizeInstallments(items []any, created time.Time) []models.Installment {
	out := make([]models.Installment, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		row := models.RawRow(m)
		due, ok := rowTime(row, "due_date", "dueDate")
		if !ok {
			due = created
		}
		inst := models.Installment{
			ID:      firstNonEmpty(rowString(row, "id"), fmt.Sprintf("I%d", i+1)),
			Amount:  rowInt(row, "amount"),
			DueDate: due,
		}
		if inst.Amount < 0 {
			inst.Amount = 0
		}
		if paid, ok := rowTime(row, "paid_at", "paidAt"); ok {
			inst.PaidAt = &paid
		}
		out = append(out, inst)
	}
	return out
}

func normalizeDocuments(items []any) []models.Document {
	out := make([]models.Document, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		row := models.RawRow(m)
		out = append(out, models.Document{
			Name:     firstNonEmpty(rowString(row, "name"), fmt.Sprintf("Document %d", i+1)),
			URL:      firstNonEmpty(rowString(row, "url"), "#"),
			Verified: rowBool(row, "verified"),
		})
	}
	return out
}

func clampProbability(p int64) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return int(p)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// rowString returns the first non-empty value among keys rendered as text.
func rowString(row models.RawRow, keys ...string) string {
	for _, key := range keys {
		v, ok := row[key]
		if !ok || v == nil {
			continue
		}
		var s string
		switch val := v.(type) {
		case string:
			s = val
		case []byte:
			s = string(val)
		case time.Time:
			s = val.UTC().Format(time.RFC3339Nano)
		case float64:
			s = strconv.FormatFloat(val, 'f', -1, 64)
		case int64:
			s = strconv.FormatInt(val, 10)
		case int:
			s = strconv.Itoa(val)
		case json.Number:
			s = val.String()
		case bool:
			s = strconv.FormatBool(val)
		default:
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

func rowFloat(row models.RawRow, keys ...string) float64 {
	for _, key := range keys {
		switch val := row[key].(type) {
		case float64:
			return val
		case float32:
			return float64(val)
		case int64:
			return float64(val)
		case int:
			return float64(val)
		case json.Number:
			if f, err := val.Float64(); err == nil {
				return f
			}
		case string, []byte:
			if f, err := strconv.ParseFloat(rowString(row, key), 64); err == nil {
				return f
			}
		}
	}
	return 0
}

func rowInt(row models.RawRow, keys ...string) int64 {
	return int64(math.Round(rowFloat(row, keys...)))
}

func rowBool(row models.RawRow, key string) bool {
	switch val := row[key].(type) {
	case bool:
		return val
	case string:
		b, _ := strconv.ParseBool(val)
		return b
	}
	return false
}

func rowTime(row models.RawRow, keys ...string) (time.Time, bool) {
	for _, key := range keys {
		switch val := row[key].(type) {
		case time.Time:
			if !val.IsZero() {
				return val.UTC(), true
			}
		case float64:
			if val > 0 {
				return time.UnixMilli(int64(val)).UTC(), true
			}
		case int64:
			if val > 0 {
				return time.UnixMilli(val).UTC(), true
			}
		default:
			if s := rowString(row, key); s != "" {
				for _, layout := range timeLayouts {
					if t, err := time.Parse(layout, s); err == nil && !t.IsZero() {
						return t.UTC(), true
					}
				}
			}
		}
	}
	return time.Time{}, false
}

// rowDate renders a date-valued column as YYYY-MM-DD, or "" when absent.
func rowDate(row models.RawRow, keys ...string) string {
	t, ok := rowTime(row, keys...)
	if !ok {
		return ""
	}
	return t.Format("2006-01-02")
}

// rowList decodes JSON arrays that may arrive already decoded, as jsonb bytes or as text.
func rowList(row models.RawRow, keys ...string) []any {
	for _, key := range keys {
		switch val := row[key].(type) {
		case []any:
			if len(val) > 0 {
				return val
			}
		case []string:
			out := make([]any, len(val))
			for i, v := range val {
				out[i] = v
			}
			if len(out) > 0 {
				return out
			}
		case []map[string]any:
			out := make([]any, len(val))
			for i, m := range val {
				out[i] = m
			}
			if len(out) > 0 {
				return out
			}
		case []byte, string:
			var out []any
			if err := json.Unmarshal([]byte(rowString(row, key)), &out); err == nil && len(out) > 0 {
				return out
			}
		}
	}
	return nil
}

func rowMap(row models.RawRow, key string) models.RawRow {
	switch val := row[key].(type) {
	case map[string]any:
		return val
	case models.RawRow:
		return val
	case []byte, string:
		var out map[string]any
		if err := json.Unmarshal([]byte(rowString(row, key)), &out); err == nil {
			return out
		}
	}
	return models.RawRow{}
}

// rowStrings reads a list of strings from a JSON array, a Postgres text array
// literal or a comma separated value.
func rowStrings(row models.RawRow, keys ...string) []string {
	for _, key := range keys {
		if list := rowList(row, key); len(list) > 0 {
			out := make([]string, 0, len(list))
			for _, item := range list {
				if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
					out = append(out, strings.TrimSpace(s))
				}
			}
			return out
		}
		if s := rowString(row, key); s != "" {
			s = strings.TrimSuffix(strings.TrimPrefix(s, "{"), "}")
			out := make([]string, 0)
			for _, part := range strings.Split(s, ",") {
				if part = strings.Trim(strings.TrimSpace(part), `"`); part != "" {
					out = append(out, part)
				}
			}
			return out
		}
	}
	return []string{}
}

func toJSON(v any) ([]byte, error) {
	switch val := v.(type) {
	case []byte:
		return val, nil
	case string:
		return []byte(val), nil
	default:
		return marshalJSON(val)
	}
}

// rowFromRecord turns a canonical record into a RawRow, used for realtime
// payloads and buffer files that already carry canonical field names.
func rowFromRecord(v any) (models.RawRow, error) {
	raw, err := marshalJSON(v)
	if err != nil {
		return nil, err
	}
	var row models.RawRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, fmt.Errorf("decode record row: %w", err)
	}
	return row, nil
}
