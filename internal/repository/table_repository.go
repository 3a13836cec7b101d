package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/admissions-sync-api/internal/models"
)

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// idColumns are tried in order when addressing a row whose schema is not known.
var idColumns = []string{"app_id", "id"}

// TableRepository reads and writes untyped rows in a table whose columns may
// drift from what the service expects. Every write uses RETURNING * so the
// caller sees exactly what the store persisted.
type TableRepository struct {
	db    *sqlx.DB
	table string
}

// NewTableRepository constructs the repository. The table name must be a plain identifier.
func NewTableRepository(db *sqlx.DB, table string) (*TableRepository, error) {
	if !identifierPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &TableRepository{db: db, table: table}, nil
}

// Table returns the table name.
func (r *TableRepository) Table() string { return r.table }

// Insert writes row and returns the stored row.
func (r *TableRepository) Insert(ctx context.Context, row models.RawRow) (models.RawRow, error) {
	if r.db == nil {
		return nil, fmt.Errorf("insert into %s: %w", r.table, sql.ErrConnDone)
	}
	columns, args, err := columnsAndArgs(row)
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", r.table, err)
	}
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		r.table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	out := models.RawRow{}
	if err := r.db.QueryRowxContext(ctx, query, args...).MapScan(out); err != nil {
		return nil, fmt.Errorf("insert into %s: %w", r.table, err)
	}
	return decodeRow(out), nil
}

// List returns every row, newest first when the table has created_at.
func (r *TableRepository) List(ctx context.Context) ([]models.RawRow, error) {
	if r.db == nil {
		return nil, fmt.Errorf("list %s: %w", r.table, sql.ErrConnDone)
	}
	rows, err := r.db.QueryxContext(ctx, fmt.Sprintf("SELECT * FROM %s", r.table))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.table, err)
	}
	defer rows.Close()

	out := make([]models.RawRow, 0)
	for rows.Next() {
		row := models.RawRow{}
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("scan %s: %w", r.table, err)
		}
		out = append(out, decodeRow(row))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", r.table, err)
	}
	return out, nil
}

// Update applies fields to the row addressed by id, matching app_id first
// and falling back to id. sql.ErrNoRows means neither column matched.
func (r *TableRepository) Update(ctx context.Context, id string, fields models.RawRow) (models.RawRow, error) {
	if r.db == nil {
		return nil, fmt.Errorf("update %s: %w", r.table, sql.ErrConnDone)
	}
	columns, args, err := columnsAndArgs(fields)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", r.table, err)
	}
	sets := make([]string, len(columns))
	for i, column := range columns {
		sets[i] = fmt.Sprintf("%s = $%d", column, i+1)
	}
	args = append(args, id)

	notFound := false
	var undefinedColumn error
	for _, idColumn := range idColumns {
		query := fmt.Sprintf("UPDATE %s SET %s WHERE %s::text = $%d RETURNING *",
			r.table, strings.Join(sets, ", "), idColumn, len(args))
		out := models.RawRow{}
		err := r.db.QueryRowxContext(ctx, query, args...).MapScan(out)
		switch {
		case err == nil:
			return decodeRow(out), nil
		case errors.Is(err, sql.ErrNoRows):
			notFound = true
		case retryWithNextIDColumn(err):
			undefinedColumn = err
		default:
			return nil, fmt.Errorf("update %s: %w", r.table, err)
		}
	}
	// Every attempt hitting an undefined column means a written field is unknown to the table.
	if !notFound && undefinedColumn != nil {
		return nil, fmt.Errorf("update %s: %w", r.table, undefinedColumn)
	}
	return nil, fmt.Errorf("update %s %s: %w", r.table, id, sql.ErrNoRows)
}

// Delete removes the row addressed by id using the same column fallback as Update.
func (r *TableRepository) Delete(ctx context.Context, id string) error {
	if r.db == nil {
		return fmt.Errorf("delete %s: %w", r.table, sql.ErrConnDone)
	}
	for _, idColumn := range idColumns {
		query := fmt.Sprintf("DELETE FROM %s WHERE %s::text = $1", r.table, idColumn)
		res, err := r.db.ExecContext(ctx, query, id)
		if err != nil {
			if retryWithNextIDColumn(err) {
				continue
			}
			return fmt.Errorf("delete %s: %w", r.table, err)
		}
		if affected, err := res.RowsAffected(); err == nil && affected > 0 {
			return nil
		}
	}
	return fmt.Errorf("delete %s %s: %w", r.table, id, sql.ErrNoRows)
}

func retryWithNextIDColumn(err error) bool {
	if errors.Is(err, sql.ErrNoRows) {
		return true
	}
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "42703"
}

func columnsAndArgs(row models.RawRow) ([]string, []interface{}, error) {
	if len(row) == 0 {
		return nil, nil, fmt.Errorf("no columns to write")
	}
	columns := make([]string, 0, len(row))
	for column := range row {
		if !identifierPattern.MatchString(column) {
			return nil, nil, fmt.Errorf("invalid column name %q", column)
		}
		columns = append(columns, column)
	}
	sort.Strings(columns)

	args := make([]interface{}, len(columns))
	for i, column := range columns {
		value, err := encodeValue(row[column])
		if err != nil {
			return nil, nil, fmt.Errorf("encode %s: %w", column, err)
		}
		args[i] = value
	}
	return columns, args, nil
}

// encodeValue turns composite values into JSON for json/jsonb columns.
func encodeValue(v any) (any, error) {
	switch val := v.(type) {
	case nil, string, bool, int, int32, int64, float32, float64, time.Time, []byte:
		return val, nil
	case *time.Time:
		if val == nil {
			return nil, nil
		}
		return *val, nil
	case []string:
		return pq.Array(val), nil
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		return raw, nil
	}
}

// decodeRow converts driver values so JSON columns come back as decoded data.
func decodeRow(row models.RawRow) models.RawRow {
	for key, value := range row {
		raw, ok := value.([]byte)
		if !ok {
			continue
		}
		trimmed := strings.TrimSpace(string(raw))
		if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{\"") || trimmed == "{}" {
			var decoded any
			if err := json.Unmarshal(raw, &decoded); err == nil {
				row[key] = decoded
				continue
			}
		}
		row[key] = string(raw)
	}
	return row
}
