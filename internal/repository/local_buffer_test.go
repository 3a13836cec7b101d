package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admissions-sync-api/internal/models"
	"github.com/noah-isme/admissions-sync-api/pkg/storage"
)

func TestLocalBufferRoundTrip(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	buffer := NewLocalBuffer(store)

	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := models.Admission{
		ID:         "local/1",
		CreatedAt:  created,
		Status:     models.AdmissionStatusPending,
		Student:    models.Contact{Name: "Asha"},
		Fee:        models.Fee{Total: 100, Installments: []models.Installment{{ID: "due", Amount: 100, DueDate: created}}},
		RecordMeta: models.RecordMeta{Provenance: models.ProvenanceLocal, SyncState: models.SyncStatePending},
	}
	require.NoError(t, buffer.Put(CollectionAdmissions, rec.ID, rec))

	got, err := buffer.Admissions()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.ID, got[0].ID)
	assert.Equal(t, models.SyncStatePending, got[0].SyncState)
	assert.Equal(t, rec.Fee, got[0].Fee)

	rows, err := buffer.Rows(CollectionAdmissions)
	require.NoError(t, err)
	assert.Equal(t, "local/1", rows[0]["id"])

	rec.SyncState = models.SyncStateSynced
	rec.RemoteID = "APP-1"
	require.NoError(t, buffer.Put(CollectionAdmissions, rec.ID, rec))
	got, err = buffer.Admissions()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "APP-1", got[0].RemoteID)

	require.NoError(t, buffer.Remove(CollectionAdmissions, rec.ID))
	got, err = buffer.Admissions()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLocalBufferRejectsEmptyID(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, NewLocalBuffer(store).Put(CollectionEnquiries, "", models.Enquiry{}))

	enquiries, err := NewLocalBuffer(store).Enquiries()
	require.NoError(t, err)
	assert.Empty(t, enquiries)
}
