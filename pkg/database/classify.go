package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/lib/pq"

	appErrors "github.com/noah-isme/admissions-sync-api/pkg/errors"
)

// SQLSTATE codes that decide how the ingest cascade proceeds.
const (
	codeUniqueViolation   = "23505"
	codeNotNullViolation  = "23502"
	codeCheckViolation    = "23514"
	codeUndefinedColumn   = "42703"
	codeUndefinedTable    = "42P01"
	codeDatatypeMismatch  = "42804"
	codeInvalidText       = "22P02"
	codeAdminShutdown     = "57P01"
	codeCannotConnectNow  = "57P03"
	connectionClassPrefix = "08"
)

var networkMarkers = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"i/o timeout",
	"network is unreachable",
	"broken pipe",
	"failed to fetch",
}

// Classify maps a driver or transport error onto the typed error kinds.
// Unknown remote failures are treated as schema rejections so the cascade
// keeps trying narrower shapes.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var typed *appErrors.Error
	if errors.As(err, &typed) {
		return err
	}

	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrNotFound, "")
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return classifyPQ(pqErr)
	}

	if IsNetwork(err) {
		return appErrors.Wrap(err, appErrors.ErrNetworkUnavailable, "")
	}

	var remote *appErrors.RemoteError
	if errors.As(err, &remote) {
		return appErrors.Wrap(err, appErrors.ErrSchemaRejection, appErrors.HumanMessage(remote))
	}

	return appErrors.Wrap(err, appErrors.ErrSchemaRejection, err.Error())
}

func classifyPQ(pqErr *pq.Error) error {
	remote := &appErrors.RemoteError{
		Message: pqErr.Message,
		Hint:    pqErr.Hint,
		Details: pqErr.Detail,
		Code:    string(pqErr.Code),
	}
	code := string(pqErr.Code)

	switch {
	case code == codeUniqueViolation:
		return appErrors.Wrap(remote, appErrors.ErrConflict, "already exists")
	case code == codeNotNullViolation, code == codeCheckViolation:
		return appErrors.Wrap(remote, appErrors.ErrValidation, appErrors.HumanMessage(remote))
	case strings.HasPrefix(code, connectionClassPrefix), code == codeAdminShutdown, code == codeCannotConnectNow:
		return appErrors.Wrap(remote, appErrors.ErrNetworkUnavailable, "")
	default:
		// 42703, 42P01, 42804, 22P02 and anything else the server rejects.
		return appErrors.Wrap(remote, appErrors.ErrSchemaRejection, appErrors.HumanMessage(remote))
	}
}

// IsNetwork reports whether err means the store could not be reached at all.
func IsNetwork(err error) bool {
	if err == nil {
		return false
	}
	if appErrors.IsKind(err, appErrors.KindNetworkUnavailable) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range networkMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsSchemaRejection reports whether err is one a narrower insert shape may avoid.
func IsSchemaRejection(err error) bool {
	switch string(codeOf(err)) {
	case codeUndefinedColumn, codeUndefinedTable, codeDatatypeMismatch, codeInvalidText:
		return true
	}
	return appErrors.IsKind(err, appErrors.KindSchemaRejection)
}

func codeOf(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}
