package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/admissions-sync-api/internal/dto"
	"github.com/noah-isme/admissions-sync-api/internal/models"
	"github.com/noah-isme/admissions-sync-api/internal/repository"
	"github.com/noah-isme/admissions-sync-api/pkg/database"
	appErrors "github.com/noah-isme/admissions-sync-api/pkg/errors"
	"github.com/noah-isme/admissions-sync-api/pkg/jobs"
	"github.com/noah-isme/admissions-sync-api/pkg/publicapi"
	"github.com/noah-isme/admissions-sync-api/pkg/realtime"
)

// Insert strategy names, in cascade order.
const (
	StrategyFull          = "full"
	StrategyMinimal       = "minimal"
	StrategyPublicMinimal = "public-minimal"
	StrategyPublicAPI     = "public-api"
)

// IngestOutcome is where a submission ended up.
type IngestOutcome string

const (
	OutcomeCreated  IngestOutcome = "created"
	OutcomeBuffered IngestOutcome = "buffered"
	OutcomeRejected IngestOutcome = "rejected"
	OutcomeInvalid  IngestOutcome = "invalid"
)

const (
	bufferedMessage   = "Saved locally, pending sync"
	companionJobType  = "admission_tracking"
	localIDPrefix     = "local-"
	defaultStartDelay = 7 * 24 * time.Hour
)

// InsertStrategy is one row shape tried against one target. Fallback
// strategies only run once the relational store proved unreachable.
type InsertStrategy struct {
	Name     string
	Table    string
	Source   models.Provenance
	Fallback bool
	Target   rowInserter
	Shape    func(sub dto.AdmissionSubmission, now time.Time) models.RawRow
}

// BufferedSubmission is the replayable payload kept for a local admission.
type BufferedSubmission struct {
	ID         string                  `json:"id"`
	Submission dto.AdmissionSubmission `json:"submission"`
	BufferedAt time.Time               `json:"bufferedAt"`
}

// IngestResult reports a processed submission.
type IngestResult struct {
	Outcome   IngestOutcome    `json:"outcome"`
	Strategy  string           `json:"strategy,omitempty"`
	Message   string           `json:"message,omitempty"`
	Admission models.Admission `json:"admission"`
	Row       models.RawRow    `json:"-"`
}

type admissionView interface {
	Put(rec models.Admission) bool
}

// IngestGateway persists new applications through an ordered list of
// insert strategies and buffers them locally when every strategy fails.
type IngestGateway struct {
	strategies []InsertStrategy
	buffer     localBuffer
	view       admissionView
	normalizer *Normalizer
	publisher  realtime.Publisher
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time

	defaultCampus string
	companion     rowInserter
	queue         *jobs.Queue
	queueCfg      jobs.QueueConfig
}

// IngestGatewayOption configures the gateway.
type IngestGatewayOption func(*IngestGateway)

// WithIngestPublisher broadcasts successful inserts.
func WithIngestPublisher(p realtime.Publisher) IngestGatewayOption {
	return func(g *IngestGateway) {
		if p != nil {
			g.publisher = publisherOrNoop(p)
		}
	}
}

// WithIngestMetrics records attempts and outcomes.
func WithIngestMetrics(m *MetricsService) IngestGatewayOption {
	return func(g *IngestGateway) { g.metrics = m }
}

// WithIngestView pushes created and buffered admissions into the merged view.
func WithIngestView(view admissionView) IngestGatewayOption {
	return func(g *IngestGateway) { g.view = view }
}

// WithCompanion writes a tracking row for every remote insert through a background queue.
func WithCompanion(target rowInserter, cfg jobs.QueueConfig) IngestGatewayOption {
	return func(g *IngestGateway) {
		g.companion = target
		g.queueCfg = cfg
	}
}

// WithIngestClock overrides the time source.
func WithIngestClock(now func() time.Time) IngestGatewayOption {
	return func(g *IngestGateway) {
		if now != nil {
			g.now = now
		}
	}
}

// WithDefaultCampus sets the campus used when a submission names none.
func WithDefaultCampus(campus string) IngestGatewayOption {
	return func(g *IngestGateway) {
		if strings.TrimSpace(campus) != "" {
			g.defaultCampus = campus
		}
	}
}

// NewIngestGateway constructs the gateway.
func NewIngestGateway(strategies []InsertStrategy, buffer localBuffer, normalizer *Normalizer, validate *validator.Validate, logger *zap.Logger, opts ...IngestGatewayOption) *IngestGateway {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if normalizer == nil {
		normalizer = NewNormalizer(nil)
	}
	g := &IngestGateway{
		strategies:    strategies,
		buffer:        buffer,
		normalizer:    normalizer,
		publisher:     noopPublisher{},
		validator:     validate,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
		defaultCampus: models.DefaultCampus,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	if g.companion != nil {
		cfg := g.queueCfg
		if cfg.Logger == nil {
			cfg.Logger = logger
		}
		cfg.OnResult = func(job jobs.Job, err error) {
			g.metrics.RecordCompanionWrite(err == nil)
			if err != nil {
				g.logger.Warn("companion insert failed", zap.String("app_id", job.ID), zap.Error(err))
			}
		}
		g.queue = jobs.NewQueue(companionJobType, g.insertCompanion, cfg)
	}
	return g
}

// Start launches the companion queue.
func (g *IngestGateway) Start(ctx context.Context) {
	if g.queue != nil {
		g.queue.Start(ctx)
	}
}

// Stop drains the companion queue.
func (g *IngestGateway) Stop() {
	if g.queue != nil {
		g.queue.Stop()
	}
}

// DefaultStrategies builds the cascade: the full and minimal application
// shapes, the reduced public shape, then the REST surface. Nil targets are
// left out.
func DefaultStrategies(applications, public rowInserter, api rowInserter) []InsertStrategy {
	if p, ok := api.(*PublicAPIInserter); ok && p == nil {
		api = nil
	}
	var out []InsertStrategy
	if applications != nil {
		out = append(out,
			InsertStrategy{Name: StrategyFull, Table: tableOf(applications, "applications"), Source: models.ProvenanceApplications, Target: applications, Shape: FullShape},
			InsertStrategy{Name: StrategyMinimal, Table: tableOf(applications, "applications"), Source: models.ProvenanceApplications, Target: applications, Shape: MinimalShape},
		)
	}
	if public != nil {
		out = append(out, InsertStrategy{Name: StrategyPublicMinimal, Table: tableOf(public, "public_applications"), Source: models.ProvenancePublicApplications, Target: public, Shape: PublicMinimalShape})
	}
	if api != nil {
		out = append(out, InsertStrategy{Name: StrategyPublicAPI, Table: string(models.ProvenancePublicAPI), Source: models.ProvenancePublicAPI, Fallback: true, Target: api, Shape: PublicAPIShape})
	}
	return out
}

func tableOf(target rowInserter, fallback string) string {
	if named, ok := target.(interface{ Table() string }); ok && named.Table() != "" {
		return named.Table()
	}
	return fallback
}

// FullShape writes every application column.
func FullShape(sub dto.AdmissionSubmission, now time.Time) models.RawRow {
	due := startDate(sub.StartDate, now)
	return models.RawRow{
		"name":             sub.Name,
		"email":            nullable(sub.Email),
		"phone":            sub.Phone,
		"course":           sub.Course,
		"campus":           sub.Campus,
		"batch":            firstNonEmpty(sub.Batch, models.DefaultBatch),
		"status":           string(models.AdmissionStatusPending),
		"fee_total":        sub.FeeTotal,
		"fee_installments": []map[string]any{{"id": "due", "amount": sub.FeeTotal, "due_date": due.Format(time.RFC3339)}},
		"documents":        []map[string]any{},
		"notes":            nullable(sub.Notes),
		"start_date":       nullable(sub.StartDate),
	}
}

// MinimalShape writes the columns every applications table carries.
func MinimalShape(sub dto.AdmissionSubmission, _ time.Time) models.RawRow {
	return models.RawRow{
		"name":       sub.Name,
		"email":      nullable(sub.Email),
		"phone":      sub.Phone,
		"course":     sub.Course,
		"start_date": nullable(sub.StartDate),
		"status":     string(models.AdmissionStatusPending),
	}
}

// PublicMinimalShape writes the reduced public_applications row.
func PublicMinimalShape(sub dto.AdmissionSubmission, _ time.Time) models.RawRow {
	return models.RawRow{
		"name":            sub.Name,
		"email":           nullable(sub.Email),
		"phone":           sub.Phone,
		"course":          sub.Course,
		"preferred_start": nullable(sub.StartDate),
		"status":          string(models.AdmissionStatusPending),
	}
}

// PublicAPIShape is the body posted to the REST surface.
func PublicAPIShape(sub dto.AdmissionSubmission, _ time.Time) models.RawRow {
	return models.RawRow{
		"name":           sub.Name,
		"email":          sub.Email,
		"phone":          sub.Phone,
		"course":         sub.Course,
		"preferredStart": sub.StartDate,
	}
}

func nullable(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func startDate(raw string, now time.Time) time.Time {
	if t, ok := rowTime(models.RawRow{"d": raw}, "d"); ok {
		return t
	}
	return now.Add(defaultStartDelay)
}

type publicClient interface {
	Submit(ctx context.Context, sub publicapi.Submission) (map[string]any, error)
	List(ctx context.Context) ([]map[string]any, error)
}

// PublicAPIInserter adapts the REST client to the strategy target and
// poller source contracts.
type PublicAPIInserter struct {
	client publicClient
}

// NewPublicAPIInserter wraps client. A disabled client yields nil so the
// strategy is left out.
func NewPublicAPIInserter(client *publicapi.Client) *PublicAPIInserter {
	if !client.Enabled() {
		return nil
	}
	return &PublicAPIInserter{client: client}
}

// Insert posts the row as a public submission.
func (p *PublicAPIInserter) Insert(ctx context.Context, row models.RawRow) (models.RawRow, error) {
	item, err := p.client.Submit(ctx, publicapi.Submission{
		Name:           rowString(row, "name"),
		Email:          rowString(row, "email"),
		Phone:          rowString(row, "phone"),
		Course:         rowString(row, "course"),
		PreferredStart: rowString(row, "preferredStart", "preferred_start"),
	})
	if err != nil {
		return nil, err
	}
	return models.RawRow(item), nil
}

// List fetches the applications exposed by the REST surface.
func (p *PublicAPIInserter) List(ctx context.Context) ([]models.RawRow, error) {
	items, err := p.client.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.RawRow, 0, len(items))
	for _, item := range items {
		out = append(out, models.RawRow(item))
	}
	return out, nil
}

// Submit validates and persists a new application. Connectivity failures
// end buffered without an error; when the remote rejected every shape the
// payload is still buffered and a SchemaRejection is returned.
func (g *IngestGateway) Submit(ctx context.Context, sub dto.AdmissionSubmission) (*IngestResult, error) {
	sub = trimSubmission(sub)
	if err := g.validator.Struct(sub); err != nil {
		g.metrics.RecordIngestOutcome(string(OutcomeInvalid))
		return nil, appErrors.Wrap(err, appErrors.ErrValidation, "name, phone and course are required")
	}
	if sub.Campus == "" {
		sub.Campus = g.defaultCampus
	}

	result, err := g.Persist(ctx, sub)
	if err == nil {
		g.metrics.RecordIngestOutcome(string(OutcomeCreated))
		return result, nil
	}

	switch appErrors.KindOf(err) {
	case appErrors.KindUniqueConflict, appErrors.KindValidation:
		g.metrics.RecordIngestOutcome(string(OutcomeRejected))
		return nil, err
	}

	rec, bufErr := g.bufferSubmission(sub)
	if bufErr != nil {
		g.logger.Error("buffering submission failed", zap.Error(bufErr))
		g.metrics.RecordIngestOutcome(string(OutcomeRejected))
		if appErrors.IsKind(err, appErrors.KindSchemaRejection) {
			return nil, err
		}
		return nil, appErrors.Wrap(errors.Join(err, bufErr), appErrors.ErrNetworkUnavailable, "remote store unreachable and local buffer unavailable")
	}

	if appErrors.IsKind(err, appErrors.KindSchemaRejection) {
		g.metrics.RecordIngestOutcome(string(OutcomeRejected))
		g.logger.Warn("submission rejected by every shape, buffered locally", zap.String("id", rec.ID), zap.Error(err))
		return nil, err
	}

	g.metrics.RecordIngestOutcome(string(OutcomeBuffered))
	g.logger.Info("submission buffered", zap.String("id", rec.ID), zap.Error(err))
	return &IngestResult{Outcome: OutcomeBuffered, Message: bufferedMessage, Admission: rec}, nil
}

// Persist runs the cascade without buffering. The returned error is typed:
// NetworkUnavailable when any attempt could not reach its target,
// SchemaRejection when every reachable target rejected its shape, or the
// conflict/validation error that stopped the cascade.
func (g *IngestGateway) Persist(ctx context.Context, sub dto.AdmissionSubmission) (*IngestResult, error) {
	now := g.now()
	var (
		rejections  []error
		lastReject  error
		unreachable error
	)
	relational := true

	for _, st := range g.strategies {
		if st.Target == nil || st.Shape == nil {
			continue
		}
		if st.Fallback == relational {
			continue
		}
		row, err := st.Target.Insert(ctx, st.Shape(sub, now))
		if err == nil {
			g.metrics.RecordIngestAttempt(st.Name, "success")
			return g.created(ctx, st, row, sub, now), nil
		}

		classified := database.Classify(err)
		kind := appErrors.KindOf(classified)
		g.metrics.RecordIngestAttempt(st.Name, strings.ToLower(string(kind)))
		g.logger.Debug("insert strategy failed", zap.String("strategy", st.Name), zap.String("kind", string(kind)), zap.Error(err))

		switch kind {
		case appErrors.KindUniqueConflict, appErrors.KindValidation:
			return nil, classified
		case appErrors.KindNetworkUnavailable:
			unreachable = classified
			// The relational store is down: skip its remaining shapes and move to the fallbacks.
			relational = false
		default:
			rejections = append(rejections, classified)
			lastReject = classified
		}
		if ctx.Err() != nil {
			return nil, appErrors.Wrap(ctx.Err(), appErrors.ErrNetworkUnavailable, "submission cancelled")
		}
	}

	switch {
	case unreachable != nil:
		return nil, unreachable
	case lastReject != nil:
		// The final attempt leads so HumanMessage and FromError both report it.
		earlier := rejections[:len(rejections)-1]
		return nil, appErrors.Wrap(errors.Join(append([]error{lastReject}, earlier...)...), appErrors.ErrSchemaRejection, appErrors.HumanMessage(lastReject))
	default:
		return nil, appErrors.Clone(appErrors.ErrNetworkUnavailable, "no remote store configured")
	}
}

func (g *IngestGateway) created(ctx context.Context, st InsertStrategy, row models.RawRow, sub dto.AdmissionSubmission, now time.Time) *IngestResult {
	if row == nil {
		row = st.Shape(sub, now)
	}
	rec := g.normalizer.Admission(row, st.Source)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	if rec.Campus == models.DefaultCampus && sub.Campus != "" {
		rec.Campus = sub.Campus
	}
	rec.SyncState = models.SyncStateSynced

	if g.view != nil {
		g.view.Put(rec)
	}
	if !st.Fallback {
		g.enqueueCompanion(rec)
	}
	change := realtime.Change{Table: st.Table, Type: realtime.ChangeInsert, Record: map[string]any(row), At: now}
	if err := g.publisher.Publish(ctx, change); err != nil {
		g.logger.Warn("publish insert failed", zap.String("id", rec.ID), zap.Error(err))
	}

	g.logger.Info("submission persisted", zap.String("id", rec.ID), zap.String("strategy", st.Name))
	return &IngestResult{Outcome: OutcomeCreated, Strategy: st.Name, Admission: rec, Row: row}
}

func (g *IngestGateway) enqueueCompanion(rec models.Admission) {
	if g.queue == nil {
		return
	}
	row := models.RawRow{
		"app_id":     rec.ID,
		"name":       rec.Student.Name,
		"email":      nullable(rec.Student.Email),
		"phone":      rec.Student.Phone,
		"course":     rec.Course,
		"status":     string(rec.Status),
		"created_at": rec.CreatedAt,
	}
	if err := g.queue.Enqueue(jobs.Job{ID: rec.ID, Type: companionJobType, Payload: row}); err != nil {
		g.logger.Warn("companion insert not queued", zap.String("app_id", rec.ID), zap.Error(err))
	}
}

func (g *IngestGateway) insertCompanion(ctx context.Context, job jobs.Job) error {
	row, ok := job.Payload.(models.RawRow)
	if !ok {
		return fmt.Errorf("companion job %s: unexpected payload %T", job.ID, job.Payload)
	}
	_, err := g.companion.Insert(ctx, row)
	return err
}

// LocalAdmission builds the pending record kept for a submission that has
// not reached the remote store.
func (g *IngestGateway) LocalAdmission(sub dto.AdmissionSubmission, id string, now time.Time) models.Admission {
	due := startDate(sub.StartDate, now)
	return models.Admission{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		Status:    models.AdmissionStatusPending,
		Student:   models.Contact{Name: sub.Name, Email: sub.Email, Phone: sub.Phone},
		Course:    sub.Course,
		Batch:     firstNonEmpty(sub.Batch, models.DefaultBatch),
		Campus:    firstNonEmpty(sub.Campus, g.defaultCampus),
		Fee: models.Fee{
			Total:        sub.FeeTotal,
			Installments: []models.Installment{{ID: "due", Amount: sub.FeeTotal, DueDate: due}},
		},
		Documents:      []models.Document{},
		Notes:          sub.Notes,
		PreferredStart: rowDate(models.RawRow{"d": sub.StartDate}, "d"),
		RecordMeta:     models.RecordMeta{Provenance: models.ProvenanceLocal, SyncState: models.SyncStatePending},
	}
}

func (g *IngestGateway) bufferSubmission(sub dto.AdmissionSubmission) (models.Admission, error) {
	if g.buffer == nil {
		return models.Admission{}, fmt.Errorf("no local buffer configured")
	}
	now := g.now()
	rec := g.LocalAdmission(sub, localIDPrefix+uuid.NewString(), now)
	if err := g.buffer.Put(repository.CollectionSubmissions, rec.ID, BufferedSubmission{ID: rec.ID, Submission: sub, BufferedAt: now}); err != nil {
		return models.Admission{}, err
	}
	if err := g.buffer.Put(repository.CollectionAdmissions, rec.ID, rec); err != nil {
		_ = g.buffer.Remove(repository.CollectionSubmissions, rec.ID)
		return models.Admission{}, err
	}
	if g.view != nil {
		g.view.Put(rec)
	}
	return rec, nil
}

func trimSubmission(sub dto.AdmissionSubmission) dto.AdmissionSubmission {
	sub.Name = strings.TrimSpace(sub.Name)
	sub.Email = strings.TrimSpace(sub.Email)
	sub.Phone = strings.TrimSpace(sub.Phone)
	sub.Course = strings.TrimSpace(sub.Course)
	sub.Campus = strings.TrimSpace(sub.Campus)
	sub.Batch = strings.TrimSpace(sub.Batch)
	sub.StartDate = strings.TrimSpace(sub.StartDate)
	sub.Notes = strings.TrimSpace(sub.Notes)
	return sub
}
