package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admissions-sync-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestTableRepositoryRejectsBadIdentifiers(t *testing.T) {
	_, err := NewTableRepository(nil, "applications; drop table x")
	assert.Error(t, err)

	repo, err := NewTableRepository(nil, "applications")
	require.NoError(t, err)
	_, err = repo.Insert(context.Background(), models.RawRow{"name": "x"})
	assert.ErrorIs(t, err, sql.ErrConnDone)

	_, _, err = columnsAndArgs(models.RawRow{"Bad-Column": 1})
	assert.Error(t, err)
}

func TestTableRepositoryInsertReturnsStoredRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo, err := NewTableRepository(db, "applications")
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"app_id", "name", "fee_installments"}).
		AddRow("APP-1", "Asha", []byte(`[{"id":"I1","amount":100}]`))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO applications (fee_installments, name) VALUES ($1, $2) RETURNING *")).
		WithArgs([]byte(`[{"amount":100}]`), "Asha").
		WillReturnRows(rows)

	out, err := repo.Insert(context.Background(), models.RawRow{
		"name":             "Asha",
		"fee_installments": []map[string]any{{"amount": 100}},
	})
	require.NoError(t, err)
	assert.Equal(t, "APP-1", out["app_id"])
	assert.Equal(t, []any{map[string]any{"id": "I1", "amount": float64(100)}}, out["fee_installments"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTableRepositoryInsertSurfacesDriverError(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo, err := NewTableRepository(db, "applications")
	require.NoError(t, err)

	mock.ExpectQuery("INSERT INTO applications").
		WillReturnError(&pq.Error{Code: "42703", Message: `column "batch" does not exist`})

	_, err = repo.Insert(context.Background(), models.RawRow{"batch": "B1"})
	var pqErr *pq.Error
	require.True(t, errors.As(err, &pqErr))
	assert.Equal(t, pq.ErrorCode("42703"), pqErr.Code)
}

func TestTableRepositoryUpdateFallsBackToID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo, err := NewTableRepository(db, "applications")
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE applications SET status = $1 WHERE app_id::text = $2 RETURNING *")).
		WithArgs("Verified", "17").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE applications SET status = $1 WHERE id::text = $2 RETURNING *")).
		WithArgs("Verified", "17").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow(int64(17), "Verified"))

	out, err := repo.Update(context.Background(), "17", models.RawRow{"status": "Verified"})
	require.NoError(t, err)
	assert.Equal(t, int64(17), out["id"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTableRepositoryUpdateNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo, err := NewTableRepository(db, "public_applications")
	require.NoError(t, err)

	mock.ExpectQuery("UPDATE public_applications .* WHERE app_id").
		WillReturnError(&pq.Error{Code: "42703", Message: `column "app_id" does not exist`})
	mock.ExpectQuery("UPDATE public_applications .* WHERE id").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = repo.Update(context.Background(), "missing", models.RawRow{"status": "Cancelled"})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTableRepositoryUpdateUnknownField(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo, err := NewTableRepository(db, "admissions")
	require.NoError(t, err)

	undefined := &pq.Error{Code: "42703", Message: `column "student_id" does not exist`}
	mock.ExpectQuery("UPDATE admissions .* WHERE app_id").WillReturnError(undefined)
	mock.ExpectQuery("UPDATE admissions .* WHERE id").WillReturnError(undefined)

	_, err = repo.Update(context.Background(), "A-1", models.RawRow{"student_id": "STU-A-1"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, sql.ErrNoRows))
	var pqErr *pq.Error
	require.True(t, errors.As(err, &pqErr))
	assert.Equal(t, pq.ErrorCode("42703"), pqErr.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTableRepositoryListAndDelete(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo, err := NewTableRepository(db, "enquiries")
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM enquiries")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "sources"}).
			AddRow("E1", "Kiran", []byte("{Walk-in,Referral}")).
			AddRow("E2", "Lata", nil))
	rows, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "{Walk-in,Referral}", rows[0]["sources"])

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM enquiries WHERE app_id::text = $1")).
		WithArgs("E1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM enquiries WHERE id::text = $1")).
		WithArgs("E1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), "E1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
