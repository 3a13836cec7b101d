package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admissions-sync-api/internal/models"
	"github.com/noah-isme/admissions-sync-api/pkg/config"
)

func fixedIDs(ids ...string) IDGenerator {
	i := 0
	return func() string {
		id := ids[i%len(ids)]
		i++
		return id
	}
}

func admissionSnapshots() []Snapshot {
	return []Snapshot{
		{Source: models.ProvenanceApplications, Rows: []models.RawRow{
			{"app_id": "APP-1", "id": 7, "name": "Asha Rao", "course": "Data Science", "batch": "B1", "fee_total": 30000.0, "created_at": "2024-01-02T10:00:00Z"},
			{"id": "APP-2", "name": "Ravi", "course": "Design", "created_at": "2024-01-03T10:00:00Z"},
		}},
		{Source: models.ProvenancePublicApplications, Rows: []models.RawRow{
			{"id": "APP-1", "name": "Asha (public)", "course": "Data Science", "preferred_start": "2024-02-01", "created_at": "2024-01-02T10:00:00Z"},
			{"id": "PUB-9", "name": "Meera", "course": "Art", "preferred_start": "2024-03-01", "created_at": "2024-01-01T08:00:00Z"},
		}},
	}
}

func TestReconcilerAuthoritativeWinsOverPublic(t *testing.T) {
	r := NewReconciler(DefaultMergePolicy(), NewNormalizer(fixedIDs("rand")), nil)
	merged := r.Admissions(admissionSnapshots(), nil)

	require.Len(t, merged, 3)
	assert.Equal(t, []string{"APP-2", "APP-1", "PUB-9"}, admissionIDs(merged))
	assert.Equal(t, "Asha Rao", merged[1].Student.Name)
	assert.Equal(t, models.ProvenanceApplications, merged[1].Provenance)
	assert.Equal(t, "B1", merged[1].Batch)
	assert.Equal(t, "Preferred start: 2024-03-01", merged[2].Notes)
	assert.Equal(t, models.DefaultBatch, merged[2].Batch)
	assert.Equal(t, models.DefaultCampus, merged[2].Campus)
}

func TestReconcilerIsIdempotent(t *testing.T) {
	r := NewReconciler(DefaultMergePolicy(), NewNormalizer(fixedIDs("rand")), nil)
	once := r.Admissions(admissionSnapshots(), nil)
	twice := Merge(r.Policy(), once)
	assert.Equal(t, once, twice)

	doubled := append(admissionSnapshots(), admissionSnapshots()...)
	assert.Equal(t, once, r.Admissions(doubled, nil))
}

func TestReconcilerToleratesFailedSource(t *testing.T) {
	r := NewReconciler(DefaultMergePolicy(), nil, nil)
	snaps := admissionSnapshots()
	snaps[0].Err = errors.New("timeout")
	merged := r.Admissions(snaps, nil)
	assert.Equal(t, []string{"APP-1", "PUB-9"}, admissionIDs(merged))
	assert.Equal(t, "Asha (public)", merged[0].Student.Name)
}

func TestMergeLocalPendingPrecedence(t *testing.T) {
	created := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	remote := models.Admission{ID: "APP-1", CreatedAt: created, Student: models.Contact{Name: "Remote"},
		RecordMeta: models.RecordMeta{Provenance: models.ProvenanceApplications, SyncState: models.SyncStateSynced}}
	pending := models.Admission{ID: "APP-1", CreatedAt: created, Student: models.Contact{Name: "Local edit"},
		RecordMeta: models.RecordMeta{Provenance: models.ProvenanceLocal, SyncState: models.SyncStatePending}}

	merged := Merge(DefaultMergePolicy(), []models.Admission{remote}, []models.Admission{pending})
	require.Len(t, merged, 1)
	assert.Equal(t, "Local edit", merged[0].Student.Name)

	synced := pending
	synced.ID = "local-abc"
	synced.SyncState = models.SyncStateSynced
	synced.RemoteID = "APP-1"
	merged = Merge(DefaultMergePolicy(), []models.Admission{synced}, []models.Admission{remote})
	require.Len(t, merged, 1)
	assert.Equal(t, "Remote", merged[0].Student.Name)

	policy := DefaultMergePolicy()
	policy.LocalPendingWins = false
	merged = Merge(policy, []models.Admission{pending}, []models.Admission{remote})
	assert.Equal(t, "Remote", merged[0].Student.Name)
}

func TestMergeEqualRankPrefersNewerVersion(t *testing.T) {
	created := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	older := models.Enquiry{ID: "E1", Name: "old", CreatedAt: created, UpdatedAt: created,
		RecordMeta: models.RecordMeta{Provenance: models.ProvenanceEnquiries}}
	newer := older
	newer.Name = "new"
	newer.UpdatedAt = created.Add(time.Hour)

	merged := Merge(DefaultMergePolicy(), []models.Enquiry{newer, older})
	assert.Equal(t, "new", merged[0].Name)
	merged = Merge(DefaultMergePolicy(), []models.Enquiry{older, newer})
	assert.Equal(t, "new", merged[0].Name)
}

func TestMergePolicyFromConfig(t *testing.T) {
	policy := MergePolicyFromConfig(config.MergeConfig{
		LocalPendingWins: false,
		SourceRanks:      map[string]int{"public_applications": 50},
	})
	assert.False(t, policy.LocalPendingWins)
	assert.Equal(t, 50, policy.Ranks[models.ProvenancePublicApplications])
	assert.Equal(t, 30, policy.Ranks[models.ProvenanceApplications])
}

func TestReconcilerEnquiriesAndStudents(t *testing.T) {
	r := NewReconciler(DefaultMergePolicy(), nil, nil)
	enquiries := r.Enquiries([]Snapshot{{Source: models.ProvenanceEnquiries, Rows: []models.RawRow{
		{"id": "E1", "name": "Kiran", "sources": "{Walk-in,Referral}", "stage": "Proposal", "probability": 140.0, "next_follow": "2024-05-01", "created_at": "2024-04-01T00:00:00Z"},
	}}}, []models.Enquiry{{ID: "E2", Name: "Local", CreatedAt: time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC),
		RecordMeta: models.RecordMeta{Provenance: models.ProvenanceLocalEnquiries, SyncState: models.SyncStatePending}}})
	require.Len(t, enquiries, 2)
	assert.Equal(t, "E2", enquiries[0].ID)
	assert.Equal(t, []string{"Walk-in", "Referral"}, enquiries[1].Sources)
	assert.Equal(t, 100, enquiries[1].Probability)
	assert.Equal(t, models.EnquiryStageProposal, enquiries[1].Stage)
	require.NotNil(t, enquiries[1].NextFollowUp)

	students := r.Students([]Snapshot{{Source: models.ProvenanceStudents, Rows: []models.RawRow{
		{"id": "STU-A-1", "record": []byte(`{"name":"Asha","status":"Current","fee":{"total":100,"installments":[]}}`)},
		{"id": "", "record": []byte(`{}`)},
	}}}, nil)
	require.Len(t, students, 1)
	assert.Equal(t, "STU-A-1", students[0].ID)
	assert.Equal(t, models.ProvenanceStudents, students[0].Provenance)
}

func admissionIDs(records []models.Admission) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}
