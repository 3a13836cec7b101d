package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admissions-sync-api/internal/dto"
	"github.com/noah-isme/admissions-sync-api/internal/models"
	appErrors "github.com/noah-isme/admissions-sync-api/pkg/errors"
)

type certificateRepoStub struct {
	items   map[string]*models.CertificateRequest
	updates int
	err     error
}

func newCertificateRepoStub() *certificateRepoStub {
	return &certificateRepoStub{items: map[string]*models.CertificateRequest{}}
}

func (r *certificateRepoStub) Create(_ context.Context, req *models.CertificateRequest) error {
	if r.err != nil {
		return r.err
	}
	req.ID = fmt.Sprintf("cert-%d", len(r.items)+1)
	cp := *req
	r.items[req.ID] = &cp
	return nil
}

func (r *certificateRepoStub) GetByID(_ context.Context, id string) (*models.CertificateRequest, error) {
	if r.err != nil {
		return nil, r.err
	}
	item, ok := r.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *item
	return &cp, nil
}

func (r *certificateRepoStub) List(context.Context, models.CertificateFilter) ([]models.CertificateRequest, error) {
	if r.err != nil {
		return nil, r.err
	}
	return nil, nil
}

func (r *certificateRepoStub) UpdateStatus(_ context.Context, req *models.CertificateRequest) error {
	r.updates++
	cp := *req
	r.items[req.ID] = &cp
	return nil
}

func (r *certificateRepoStub) Delete(_ context.Context, id string) error {
	if _, ok := r.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.items, id)
	return nil
}

type studentLookupStub map[string]models.Student

func (s studentLookupStub) Get(id string) (*models.Student, error) {
	st, ok := s[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return &st, nil
}

func newCertificateFixture() (*CertificateService, *certificateRepoStub) {
	repo := newCertificateRepoStub()
	students := studentLookupStub{"STU-1": currentStudent("STU-1")}
	svc := NewCertificateService(repo, students, nil, nil)
	svc.now = fixedClock()
	return svc, repo
}

func TestCertificateCreateFillsFromStudent(t *testing.T) {
	svc, _ := newCertificateFixture()

	_, err := svc.Create(context.Background(), dto.CreateCertificateRequest{}, "admin")
	assert.Equal(t, appErrors.KindValidation, appErrors.KindOf(err))
	_, err = svc.Create(context.Background(), dto.CreateCertificateRequest{StudentID: "STU-1", Metadata: json.RawMessage(`{bad`)}, "admin")
	assert.Equal(t, appErrors.KindValidation, appErrors.KindOf(err))

	cert, err := svc.Create(context.Background(), dto.CreateCertificateRequest{StudentID: "STU-1", CertificateType: "completion"}, "admin")
	require.NoError(t, err)
	assert.Equal(t, "cert-1", cert.ID)
	assert.Equal(t, models.CertificateStatusRequested, cert.Status)
	require.NotNil(t, cert.RequesterName)
	assert.Equal(t, "Ravi Kumar", *cert.RequesterName)
	require.NotNil(t, cert.CourseID)
	assert.Equal(t, "Design", *cert.CourseID)
	assert.Nil(t, cert.Notes)

	history := cert.History()
	require.Len(t, history, 1)
	assert.Equal(t, "admin", history[0].By)
}

func TestCertificateStatusLifecycle(t *testing.T) {
	svc, repo := newCertificateFixture()
	ctx := context.Background()
	cert, err := svc.Create(ctx, dto.CreateCertificateRequest{RequesterName: "Walk-in"}, "")
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, cert.ID, dto.UpdateCertificateStatusRequest{Status: models.CertificateStatusDelivered}, "admin")
	assert.Equal(t, appErrors.KindInvalidTransition, appErrors.KindOf(err))
	_, err = svc.UpdateStatus(ctx, cert.ID, dto.UpdateCertificateStatusRequest{Status: "lost"}, "admin")
	assert.Equal(t, appErrors.KindValidation, appErrors.KindOf(err))

	updated, err := svc.UpdateStatus(ctx, cert.ID, dto.UpdateCertificateStatusRequest{Status: models.CertificateStatusApproved, Note: "ok"}, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.CertificateStatusApproved, updated.Status)
	require.NotNil(t, updated.ApprovedAt)
	assert.Equal(t, testNow, *updated.ApprovedAt)
	require.NotNil(t, updated.ApprovedBy)
	assert.Equal(t, "admin", *updated.ApprovedBy)
	require.Len(t, updated.History(), 2)
	assert.Equal(t, "ok", updated.History()[1].Note)

	same, err := svc.UpdateStatus(ctx, cert.ID, dto.UpdateCertificateStatusRequest{Status: models.CertificateStatusApproved}, "admin")
	require.NoError(t, err)
	assert.Len(t, same.History(), 2)
	assert.Equal(t, 1, repo.updates)

	_, err = svc.UpdateStatus(ctx, "missing", dto.UpdateCertificateStatusRequest{Status: models.CertificateStatusApproved}, "admin")
	assert.Equal(t, appErrors.KindNotFound, appErrors.KindOf(err))
}

func TestCertificateListAndDelete(t *testing.T) {
	svc, repo := newCertificateFixture()

	_, err := svc.List(context.Background(), models.CertificateFilter{Status: "lost"})
	assert.Equal(t, appErrors.KindValidation, appErrors.KindOf(err))

	items, err := svc.List(context.Background(), models.CertificateFilter{})
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)

	repo.err = errUnreachable
	_, err = svc.List(context.Background(), models.CertificateFilter{})
	assert.Equal(t, appErrors.KindNetworkUnavailable, appErrors.KindOf(err))
	repo.err = nil

	err = svc.Delete(context.Background(), "missing")
	assert.Equal(t, appErrors.KindNotFound, appErrors.KindOf(err))
}
