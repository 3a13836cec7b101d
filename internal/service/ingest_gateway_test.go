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
	"github.com/noah-isme/admissions-sync-api/pkg/jobs"
	"github.com/noah-isme/admissions-sync-api/pkg/realtime"
)

var (
	errUndefinedColumn = &pq.Error{Code: "42703", Message: `column "fee_installments" does not exist`}
	errUndefinedTable  = &pq.Error{Code: "42P01", Hint: "create the table first"}
	errUnreachable     = errors.New("dial tcp 10.0.0.1:5432: connect: connection refused")
)

func validSubmission() dto.AdmissionSubmission {
	return dto.AdmissionSubmission{Name: " Asha Rao ", Email: "asha@example.com", Phone: "555-0100", Course: "Data Science", FeeTotal: 30000, StartDate: "2024-06-01"}
}

type gatewayFixture struct {
	apps      *tableStub
	public    *tableStub
	api       *tableStub
	companion *tableStub
	buffer    *memBuffer
	view      *ViewStore[models.Admission]
	publisher *publisherStub
	gateway   *IngestGateway
}

func newGatewayFixture(opts ...IngestGatewayOption) *gatewayFixture {
	f := &gatewayFixture{
		apps:      newTableStub("applications"),
		public:    newTableStub("public_applications"),
		api:       newTableStub("public_api"),
		companion: newTableStub("admission_tracking"),
		buffer:    newMemBuffer(),
		view:      NewViewStore[models.Admission]("admissions"),
		publisher: &publisherStub{},
	}
	base := []IngestGatewayOption{
		WithIngestClock(fixedClock()),
		WithIngestView(f.view),
		WithIngestPublisher(f.publisher),
		WithCompanion(f.companion, jobs.QueueConfig{Workers: 1, RetryDelay: time.Millisecond}),
	}
	f.gateway = NewIngestGateway(DefaultStrategies(f.apps, f.public, f.api), f.buffer, NewNormalizer(nil), nil, nil, append(base, opts...)...)
	return f
}

func TestIngestValidationFailsFast(t *testing.T) {
	f := newGatewayFixture()
	sub := validSubmission()
	sub.Phone = "  "

	_, err := f.gateway.Submit(context.Background(), sub)
	require.Error(t, err)
	assert.Equal(t, appErrors.KindValidation, appErrors.KindOf(err))
	assert.Zero(t, f.apps.insertCount())
	assert.Zero(t, f.buffer.count("admissions"))

	sub = validSubmission()
	sub.Email = "not-an-email"
	_, err = f.gateway.Submit(context.Background(), sub)
	assert.Equal(t, appErrors.KindValidation, appErrors.KindOf(err))
}

func TestIngestFullShapeSucceeds(t *testing.T) {
	f := newGatewayFixture()
	f.gateway.Start(context.Background())

	res, err := f.gateway.Submit(context.Background(), validSubmission())
	require.NoError(t, err)
	f.gateway.Stop()

	assert.Equal(t, OutcomeCreated, res.Outcome)
	assert.Equal(t, StrategyFull, res.Strategy)
	assert.Equal(t, "applications-1", res.Admission.ID)
	assert.Equal(t, "Asha Rao", res.Admission.Student.Name)
	assert.Equal(t, models.ProvenanceApplications, res.Admission.Provenance)
	assert.Equal(t, "Main", res.Admission.Campus)
	require.Len(t, res.Admission.Fee.Installments, 1)
	assert.Equal(t, int64(30000), res.Admission.Fee.Installments[0].Amount)

	stored, ok := f.view.Get("applications-1")
	require.True(t, ok)
	assert.Equal(t, models.SyncStateSynced, stored.Sync())

	changes := f.publisher.published()
	require.Len(t, changes, 1)
	assert.Equal(t, "applications", changes[0].Table)
	assert.Equal(t, realtime.ChangeInsert, changes[0].Type)

	require.Equal(t, 1, f.companion.insertCount())
	assert.Equal(t, "applications-1", f.companion.inserted[0]["app_id"])
	assert.Zero(t, f.public.insertCount())
}

func TestIngestFallsThroughSchemaRejections(t *testing.T) {
	f := newGatewayFixture()
	f.apps.errs = []error{errUndefinedColumn, errUndefinedColumn}

	res, err := f.gateway.Submit(context.Background(), validSubmission())
	require.NoError(t, err)
	assert.Equal(t, StrategyPublicMinimal, res.Strategy)
	assert.Equal(t, models.ProvenancePublicApplications, res.Admission.Provenance)
	assert.Equal(t, "Preferred start: 2024-06-01", res.Admission.Notes)
	assert.Equal(t, 2, f.apps.insertCount())
	assert.Contains(t, f.apps.inserted[0], "fee_installments")
	assert.NotContains(t, f.apps.inserted[1], "fee_installments")
	assert.Zero(t, f.api.insertCount())
}

func TestIngestNetworkFailureSkipsToRESTFallback(t *testing.T) {
	f := newGatewayFixture()
	f.apps.errs = []error{errUnreachable}
	f.gateway.Start(context.Background())

	res, err := f.gateway.Submit(context.Background(), validSubmission())
	require.NoError(t, err)
	f.gateway.Stop()

	assert.Equal(t, StrategyPublicAPI, res.Strategy)
	assert.Equal(t, models.ProvenancePublicAPI, res.Admission.Provenance)
	assert.Equal(t, 1, f.apps.insertCount(), "minimal shape is skipped once the store is unreachable")
	assert.Zero(t, f.public.insertCount())
	assert.Equal(t, "2024-06-01", f.api.inserted[0]["preferredStart"])
	assert.Zero(t, f.companion.insertCount(), "REST inserts have no companion row")
}

func TestIngestBuffersWhenEverythingIsUnreachable(t *testing.T) {
	f := newGatewayFixture()
	f.apps.errs = []error{errUnreachable}
	f.api.errs = []error{appErrors.Clone(appErrors.ErrNetworkUnavailable, "public api unreachable")}

	res, err := f.gateway.Submit(context.Background(), validSubmission())
	require.NoError(t, err)
	assert.Equal(t, OutcomeBuffered, res.Outcome)
	assert.Equal(t, "Saved locally, pending sync", res.Message)
	assert.Equal(t, models.ProvenanceLocal, res.Admission.Provenance)
	assert.Equal(t, models.SyncStatePending, res.Admission.Sync())
	assert.Equal(t, 1, f.buffer.count("admissions"))
	assert.Equal(t, 1, f.buffer.count("submissions"))

	_, ok := f.view.Get(res.Admission.ID)
	assert.True(t, ok)
	assert.Empty(t, f.publisher.published())
}

func TestIngestRejectedEverywhereBuffersAndReportsRemoteMessage(t *testing.T) {
	f := newGatewayFixture()
	f.apps.errs = []error{errUndefinedColumn, errUndefinedColumn}
	f.public.errs = []error{errUndefinedTable}

	res, err := f.gateway.Submit(context.Background(), validSubmission())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, appErrors.KindSchemaRejection, appErrors.KindOf(err))
	assert.Equal(t, "create the table first", appErrors.HumanMessage(err))
	assert.Equal(t, "create the table first", appErrors.FromError(err).Message)
	var remote *appErrors.RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, "42P01", remote.Code, "the last attempt leads the joined causes")
	assert.Equal(t, 1, f.buffer.count("admissions"))
	assert.Zero(t, f.api.insertCount())
}

func TestIngestConflictPropagatesImmediately(t *testing.T) {
	f := newGatewayFixture()
	f.apps.errs = []error{&pq.Error{Code: "23505", Message: "duplicate key"}}

	_, err := f.gateway.Submit(context.Background(), validSubmission())
	require.Error(t, err)
	assert.Equal(t, appErrors.KindUniqueConflict, appErrors.KindOf(err))
	assert.Equal(t, "already exists", appErrors.FromError(err).Message)
	assert.Equal(t, 1, f.apps.insertCount())
	assert.Zero(t, f.buffer.count("admissions"))
}

func TestIngestBufferFailureSurfacesError(t *testing.T) {
	f := newGatewayFixture()
	f.apps.errs = []error{errUnreachable}
	f.api.errs = []error{errUnreachable}
	f.buffer.putErr = errors.New("disk full")

	_, err := f.gateway.Submit(context.Background(), validSubmission())
	assert.Equal(t, appErrors.KindNetworkUnavailable, appErrors.KindOf(err))
}

// Every combination of rejected relational shapes ends in exactly one
// outcome: the first shape that succeeds, or a rejection once all fail.
func TestIngestCascadeIsExhaustive(t *testing.T) {
	for mask := 0; mask < 8; mask++ {
		mask := mask
		t.Run(fmt.Sprintf("mask_%03b", mask), func(t *testing.T) {
			f := newGatewayFixture()
			fail := func(bit int) error {
				if mask&(1<<bit) != 0 {
					return errUndefinedColumn
				}
				return nil
			}
			f.apps.errs = []error{fail(0), fail(1)}
			f.public.errs = []error{fail(2)}

			res, err := f.gateway.Submit(context.Background(), validSubmission())
			switch {
			case mask&1 == 0:
				require.NoError(t, err)
				assert.Equal(t, StrategyFull, res.Strategy)
			case mask&2 == 0:
				require.NoError(t, err)
				assert.Equal(t, StrategyMinimal, res.Strategy)
			case mask&4 == 0:
				require.NoError(t, err)
				assert.Equal(t, StrategyPublicMinimal, res.Strategy)
			default:
				assert.Equal(t, appErrors.KindSchemaRejection, appErrors.KindOf(err))
				assert.Equal(t, 1, f.buffer.count("admissions"))
			}
			assert.Zero(t, f.api.insertCount())
		})
	}
}

func TestStartDateDefaultsToAWeekOut(t *testing.T) {
	assert.Equal(t, testNow.Add(7*24*time.Hour), startDate("", testNow))
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), startDate("2024-06-01", testNow))
}
