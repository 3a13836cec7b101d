package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admissions-sync-api/internal/models"
)

func admissionAt(id string, created, updated time.Time, name string) models.Admission {
	return models.Admission{
		ID:         id,
		CreatedAt:  created,
		UpdatedAt:  updated,
		Student:    models.Contact{Name: name},
		RecordMeta: models.RecordMeta{Provenance: models.ProvenanceApplications, SyncState: models.SyncStateSynced},
	}
}

func TestViewStoreRealtimeRules(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewViewStore[models.Admission]("admissions")

	assert.True(t, store.Insert(admissionAt("A", base, base, "first")))
	assert.False(t, store.Insert(admissionAt("A", base, base.Add(time.Minute), "dup")), "insert of a present id is ignored")

	assert.True(t, store.Upsert(admissionAt("B", base.Add(time.Hour), base.Add(time.Hour), "update-as-insert")))
	assert.Equal(t, 2, store.Len())

	assert.True(t, store.Upsert(admissionAt("A", base, base.Add(2*time.Minute), "replaced")))
	got, ok := store.Get("A")
	require.True(t, ok)
	assert.Equal(t, "replaced", got.Student.Name)

	assert.False(t, store.Upsert(admissionAt("A", base, base.Add(time.Minute), "stale")))
	got, _ = store.Get("A")
	assert.Equal(t, "replaced", got.Student.Name)

	assert.False(t, store.Delete("missing"))
	assert.True(t, store.Delete("A"))
	_, ok = store.Get("A")
	assert.False(t, ok)
}

func TestViewStoreReplaceKeepsNewerRecords(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fetchedAt := base.Add(time.Hour)
	store := NewViewStore[models.Admission]("admissions")

	require.True(t, store.Replace([]models.Admission{
		admissionAt("A", base, base, "a0"),
		admissionAt("B", base.Add(time.Second), base, "b0"),
	}, base))

	store.Upsert(admissionAt("A", base, fetchedAt.Add(time.Minute), "a-pushed"))
	store.Insert(admissionAt("C", fetchedAt.Add(time.Minute), fetchedAt.Add(time.Minute), "c-pushed"))

	require.True(t, store.Replace([]models.Admission{
		admissionAt("A", base, base.Add(30*time.Minute), "a-polled"),
	}, fetchedAt))

	list := store.List()
	require.Len(t, list, 2)
	assert.Equal(t, "C", list[0].ID)
	assert.Equal(t, "a-pushed", list[1].Student.Name)
}

func TestViewStoreClosedDiscardsWrites(t *testing.T) {
	store := NewViewStore[models.Admission]("admissions")
	store.Close()
	assert.True(t, store.Closed())
	assert.False(t, store.Replace([]models.Admission{admissionAt("A", time.Now(), time.Now(), "late")}, time.Now()))
	assert.False(t, store.Upsert(admissionAt("A", time.Now(), time.Now(), "late")))
	assert.Zero(t, store.Len())
}

func TestViewStoreListReturnsCopy(t *testing.T) {
	store := NewViewStore[models.Admission]("admissions")
	store.Insert(admissionAt("A", time.Now(), time.Now(), "a"))
	list := store.List()
	list[0].Student.Name = "mutated"
	got, _ := store.Get("A")
	assert.Equal(t, "a", got.Student.Name)
}

func TestViewStoreConcurrentWriters(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewViewStore[models.Admission]("admissions")
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store.Upsert(admissionAt("A", base, base.Add(time.Duration(i)*time.Second), "v"))
			_ = store.List()
		}(i)
	}
	wg.Wait()
	got, ok := store.Get("A")
	require.True(t, ok)
	assert.Equal(t, base.Add(19*time.Second), got.UpdatedAt)
}
