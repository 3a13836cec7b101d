package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admissions-sync-api/internal/models"
)

func TestCanonicalIDPriority(t *testing.T) {
	gen := fixedIDs("generated")
	assert.Equal(t, "A-1", CanonicalID(models.RawRow{"app_id": "A-1", "id": 5}, gen))
	assert.Equal(t, "A-2", CanonicalID(models.RawRow{"appId": "A-2", "uuid": "u"}, gen))
	assert.Equal(t, "42", CanonicalID(models.RawRow{"id": int64(42)}, gen))
	assert.Equal(t, "u-1", CanonicalID(models.RawRow{"uuid": "u-1"}, gen))
	assert.Equal(t, "2024-01-01T00:00:00Z", CanonicalID(models.RawRow{"created_at": "2024-01-01T00:00:00Z"}, gen))
	assert.Equal(t, "generated", CanonicalID(models.RawRow{"name": "x"}, gen))

	row := models.RawRow{"application_id": "X", "id": "Y"}
	assert.Equal(t, CanonicalID(row, nil), CanonicalID(row, nil))
}

func TestNormalizeAdmissionDefaultsInstallment(t *testing.T) {
	n := NewNormalizer(nil)
	rec := n.Admission(models.RawRow{
		"id":         "APP-1",
		"name":       "Asha",
		"fee_total":  "12000",
		"status":     "approved",
		"created_at": time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		"documents":  []byte(`[{"url":"https://x/doc.pdf","verified":true},{"name":"ID"}]`),
	}, models.ProvenanceAdmissions)

	assert.Equal(t, models.AdmissionStatusVerified, rec.Status)
	assert.Equal(t, int64(12000), rec.Fee.Total)
	require.Len(t, rec.Fee.Installments, 1)
	assert.Equal(t, "due", rec.Fee.Installments[0].ID)
	assert.Equal(t, int64(12000), rec.Fee.Installments[0].Amount)
	assert.Equal(t, time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), rec.Fee.Installments[0].DueDate)
	assert.Equal(t, []models.Document{
		{Name: "Document 1", URL: "https://x/doc.pdf", Verified: true},
		{Name: "ID", URL: "#"},
	}, rec.Documents)
	assert.Equal(t, models.SyncStateSynced, rec.SyncState)
}

func TestNormalizeAdmissionInstallmentsAndCamelCase(t *testing.T) {
	n := NewNormalizer(nil)
	rec := n.Admission(models.RawRow{
		"appId":     "APP-7",
		"createdAt": "2024-02-01T09:30:00Z",
		"student":   map[string]any{"name": "Ravi", "email": "ravi@example.com"},
		"fee": map[string]any{"total": 9000.0, "installments": []any{
			map[string]any{"amount": 4500.0, "dueDate": "2024-03-01", "paidAt": "2024-02-20T00:00:00Z"},
			map[string]any{"id": "I2", "amount": 4500.0},
		}},
		"studentId": "STU-R-1",
	}, models.ProvenancePublicAPI)

	assert.Equal(t, "APP-7", rec.ID)
	assert.Equal(t, "Ravi", rec.Student.Name)
	assert.Equal(t, "STU-R-1", rec.StudentID)
	require.Len(t, rec.Fee.Installments, 2)
	assert.Equal(t, "I1", rec.Fee.Installments[0].ID)
	assert.NotNil(t, rec.Fee.Installments[0].PaidAt)
	assert.Equal(t, rec.CreatedAt, rec.Fee.Installments[1].DueDate)
}

func TestNormalizeLocalRecordKeepsSyncState(t *testing.T) {
	n := NewNormalizer(nil)
	original := models.Admission{
		ID:         "local-1",
		CreatedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Status:     models.AdmissionStatusPending,
		Student:    models.Contact{Name: "Asha"},
		Batch:      "B2",
		Campus:     "North",
		Fee:        models.Fee{Total: 100, Installments: []models.Installment{{ID: "I1", Amount: 100, DueDate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)}}},
		RecordMeta: models.RecordMeta{Provenance: models.ProvenanceLocal, SyncState: models.SyncStateSynced, RemoteID: "APP-9"},
	}
	row, err := rowFromRecord(original)
	require.NoError(t, err)

	rec := n.Admission(row, models.ProvenanceLocal)
	assert.Equal(t, "local-1", rec.ID)
	assert.Equal(t, "APP-9", rec.RemoteID)
	assert.Equal(t, models.SyncStateSynced, rec.SyncState)
	assert.Equal(t, original.Fee.Installments, rec.Fee.Installments)
	assert.Equal(t, "North", rec.Campus)
}
