package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admissions-sync-api/internal/models"
)

var certificateColumnNames = []string{"id", "student_id", "batch_id", "course_id", "certificate_type", "requester_name", "requester_email",
	"requested_at", "status", "approved_by", "approved_at", "printing_started_at", "ready_at", "delivered_at", "cancelled_at",
	"notes", "metadata", "status_history", "created_at", "updated_at"}

func TestCertificateRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO certificates")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	student := "STU-A-1"
	req := &models.CertificateRequest{StudentID: &student, Status: models.CertificateStatusRequested}
	require.NoError(t, repo.Create(context.Background(), req))
	require.NotEmpty(t, req.ID)
	assert.Equal(t, "[]", string(req.StatusHistory))

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id")).
		WithArgs(req.ID).
		WillReturnRows(sqlmock.NewRows(certificateColumnNames).
			AddRow(req.ID, student, nil, nil, nil, nil, nil, now, "requested", nil, nil, nil, nil, nil, nil, nil, nil, []byte("[]"), now, now))
	found, err := repo.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CertificateStatusRequested, found.Status)
	assert.Equal(t, student, *found.StudentID)
	assert.Empty(t, found.Metadata)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateRepositoryListToleratesNullJSONColumns(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("COALESCE(metadata, '{}'::jsonb) AS metadata")).
		WillReturnRows(sqlmock.NewRows(certificateColumnNames).
			AddRow("c1", nil, nil, nil, nil, nil, nil, now, "requested", nil, nil, nil, nil, nil, nil, nil, nil, nil, now, now).
			AddRow("c2", nil, nil, nil, nil, nil, nil, now, "approved", nil, nil, nil, nil, nil, nil, nil, []byte(`{"copies":2}`), []byte(`[{"status":"approved"}]`), now, now))
	out, err := repo.List(context.Background(), models.CertificateFilter{})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Empty(t, out[0].Metadata)
	assert.Empty(t, out[0].History())
	assert.JSONEq(t, `{"copies":2}`, string(out[1].Metadata))
	require.Len(t, out[1].History(), 1)

	body, err := json.Marshal(out[0])
	require.NoError(t, err)
	assert.NotContains(t, string(body), `"metadata"`)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM certificates WHERE status = $1 AND student_id = $2 ORDER BY requested_at DESC LIMIT $3")).
		WithArgs(models.CertificateStatusPrinting, "STU-1", 10).
		WillReturnRows(sqlmock.NewRows(certificateColumnNames))
	out, err := repo.List(context.Background(), models.CertificateFilter{Status: models.CertificateStatusPrinting, StudentID: "STU-1", Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, out)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateRepositoryUpdateMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE certificates SET status")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.UpdateStatus(context.Background(), &models.CertificateRequest{ID: "nope", Status: models.CertificateStatusApproved})
	assert.ErrorIs(t, err, sql.ErrNoRows)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM certificates WHERE id = $1")).
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), "c1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
