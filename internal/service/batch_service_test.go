package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admissions-sync-api/internal/dto"
	"github.com/noah-isme/admissions-sync-api/internal/models"
	appErrors "github.com/noah-isme/admissions-sync-api/pkg/errors"
	"github.com/noah-isme/admissions-sync-api/pkg/middleware/requestid"
	"github.com/noah-isme/admissions-sync-api/pkg/realtime"
)

type batchStoreStub struct {
	inserted []models.RawRow
	err      error
}

func (s *batchStoreStub) Insert(_ context.Context, row models.RawRow) (models.RawRow, error) {
	s.inserted = append(s.inserted, row)
	if s.err != nil {
		return nil, s.err
	}
	out := models.RawRow{"batch_id": fmt.Sprintf("B-%d", len(s.inserted)), "created_at": testNow.Format(time.RFC3339)}
	for k, v := range row {
		out[k] = v
	}
	return out, nil
}

func validBatchRequest() dto.CreateBatchRequest {
	return dto.CreateBatchRequest{
		Course:      " UX Design ",
		Campus:      "North",
		Code:        "UX-2024-06",
		StartDate:   "2024-06-01",
		EndDate:     "2024-09-01",
		Instructor:  "Mira",
		MaxStudents: 20,
	}
}

func TestBatchCreateStoresAndPublishes(t *testing.T) {
	store := &batchStoreStub{}
	view := NewViewStore[models.Batch]("batches")
	pub := &publisherStub{}
	svc := NewBatchService(view, store, nil, nil, nil, WithBatchPublisher(pub), WithBatchClock(fixedClock()))

	batch, err := svc.Create(context.Background(), validBatchRequest())
	require.NoError(t, err)
	assert.Equal(t, "B-1", batch.ID)
	assert.Equal(t, "UX Design", batch.Course)
	assert.Equal(t, "2024-06-01", batch.StartDate)
	assert.Equal(t, 20, batch.Seats())
	assert.Equal(t, "active", batch.Status)

	require.Len(t, store.inserted, 1)
	assert.Equal(t, "UX-2024-06", store.inserted[0]["batch_code"])

	stored, ok := view.Get("B-1")
	require.True(t, ok)
	assert.Equal(t, "UX-2024-06", stored.Code)

	changes := pub.published()
	require.Len(t, changes, 1)
	assert.Equal(t, realtime.ChangeInsert, changes[0].Type)
	assert.Equal(t, batchesTable, changes[0].Table)
}

func TestBatchCreateDuplicateCodeIsConflict(t *testing.T) {
	store := &batchStoreStub{err: &pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"}}
	view := NewViewStore[models.Batch]("batches")
	svc := NewBatchService(view, store, nil, nil, nil)

	_, err := svc.Create(context.Background(), validBatchRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.KindUniqueConflict, appErrors.KindOf(err))
	appErr := appErrors.FromError(err)
	assert.Equal(t, 409, appErr.Status)
	assert.Equal(t, "Batch code already exists", appErr.Message)
	assert.Equal(t, 0, view.Len())
}

func TestBatchCreateValidation(t *testing.T) {
	svc := NewBatchService(NewViewStore[models.Batch]("batches"), &batchStoreStub{}, nil, nil, nil)

	missing := validBatchRequest()
	missing.Instructor = "  "
	_, err := svc.Create(context.Background(), missing)
	assert.Equal(t, appErrors.KindValidation, appErrors.KindOf(err))

	reversed := validBatchRequest()
	reversed.EndDate = "2024-05-01"
	_, err = svc.Create(context.Background(), reversed)
	require.Error(t, err)
	assert.Equal(t, "end date must not be before start date", appErrors.FromError(err).Message)

	overfull := validBatchRequest()
	overfull.CurrentStudents = 21
	_, err = svc.Create(context.Background(), overfull)
	assert.Equal(t, appErrors.KindValidation, appErrors.KindOf(err))
}

func TestBatchCreateWithoutStoreIsUnavailable(t *testing.T) {
	svc := NewBatchService(NewViewStore[models.Batch]("batches"), nil, nil, nil, nil)
	_, err := svc.Create(context.Background(), validBatchRequest())
	assert.Equal(t, appErrors.KindNetworkUnavailable, appErrors.KindOf(err))
}

func TestBatchCreateUnreachableStore(t *testing.T) {
	store := &batchStoreStub{err: errors.New("dial tcp 10.0.0.1:5432: connect: connection refused")}
	svc := NewBatchService(NewViewStore[models.Batch]("batches"), store, nil, nil, nil)
	_, err := svc.Create(context.Background(), validBatchRequest())
	assert.Equal(t, appErrors.KindNetworkUnavailable, appErrors.KindOf(err))
}

func TestBatchListFilters(t *testing.T) {
	view := NewViewStore[models.Batch]("batches")
	view.Put(models.Batch{ID: "B1", Code: "UX-1", Course: "UX Design", Campus: "North", Status: "active", CreatedAt: testNow})
	view.Put(models.Batch{ID: "B2", Code: "DA-1", Course: "Data Analytics", Campus: "South", Status: "active", CreatedAt: testNow.Add(time.Hour)})
	view.Put(models.Batch{ID: "B3", Code: "UX-0", Course: "UX Design", Campus: "North", Status: "completed", CreatedAt: testNow.Add(-time.Hour)})
	svc := NewBatchService(view, nil, nil, nil, nil)

	items, pagination := svc.List(models.ListFilter{Campus: "north"})
	require.Len(t, items, 2)
	assert.Equal(t, 2, pagination.TotalCount)

	items, _ = svc.List(models.ListFilter{Status: "active", Search: "ux"})
	require.Len(t, items, 1)
	assert.Equal(t, "B1", items[0].ID)
}

func TestRealtimeBatchInsertIsDeduplicated(t *testing.T) {
	rs, sub, _, _, _ := newRealtimeFixture(t)
	batches := NewViewStore[models.Batch]("batches")
	rs.WatchBatches(batches)
	ctx := context.Background()
	row := map[string]any{"batch_id": "B1", "batch_code": "UX-1", "course_name": "UX Design", "created_at": testNow.Format(time.RFC3339)}

	sub.handler(ctx, realtime.Change{Table: "batches", Type: realtime.ChangeInsert, Record: row})
	renamed := map[string]any{"batch_id": "B1", "batch_code": "UX-1", "course_name": "Renamed", "created_at": testNow.Format(time.RFC3339)}
	sub.handler(ctx, realtime.Change{Table: "batches", Type: realtime.ChangeInsert, Record: renamed})

	require.Equal(t, 1, batches.Len())
	got, _ := batches.Get("B1")
	assert.Equal(t, "UX Design", got.Course)

	sub.handler(ctx, realtime.Change{Table: "batches", Type: realtime.ChangeDelete, OldRecord: map[string]any{"batch_id": "B1"}})
	assert.Equal(t, 0, batches.Len())
}

func TestSyncPollerRefreshesBatches(t *testing.T) {
	table := newTableStub("batches",
		models.RawRow{"batch_id": "B1", "batch_code": "UX-1", "start_date": "2024-06-01T00:00:00Z", "max_students": int64(12), "created_at": "2024-04-01T10:00:00Z"},
		models.RawRow{"batch_code": "orphan"},
	)
	view := NewViewStore[models.Batch]("batches")
	poller := NewSyncPoller(SyncSources{Batches: []SourceFetcher{{Source: models.ProvenanceBatches, Lister: table}}}, nil, nil, nil, nil, nil, nil,
		WithPollClock(fixedClock()), WithBatchView(view))

	report := poller.Refresh(context.Background())
	assert.Equal(t, 1, report.Batches)
	got, ok := view.Get("B1")
	require.True(t, ok)
	assert.Equal(t, "2024-06-01", got.StartDate)
	assert.Equal(t, 12, got.MaxStudents)
}

func TestBatchCreateChangeCarriesRequestID(t *testing.T) {
	pub := &publisherStub{}
	svc := NewBatchService(NewViewStore[models.Batch]("batches"), &batchStoreStub{}, nil, nil, nil, WithBatchPublisher(pub))

	ctx := requestid.WithContext(context.Background(), "req-7")
	_, err := svc.Create(ctx, validBatchRequest())
	require.NoError(t, err)

	changes := pub.published()
	require.Len(t, changes, 1)
	assert.Equal(t, "req-7", changes[0].RequestID)
}
