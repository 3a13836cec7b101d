package service

import (
	"strings"

	"github.com/noah-isme/admissions-sync-api/internal/models"
	"github.com/noah-isme/admissions-sync-api/pkg/database"
	appErrors "github.com/noah-isme/admissions-sync-api/pkg/errors"
)

// storeError converts a repository failure into a typed error.
func storeError(err error, notFound string) error {
	classified := database.Classify(err)
	if appErrors.IsKind(classified, appErrors.KindNotFound) {
		return appErrors.Wrap(err, appErrors.ErrNotFound, notFound)
	}
	return classified
}

func unreachable(err error) bool {
	return appErrors.IsKind(database.Classify(err), appErrors.KindNetworkUnavailable)
}

func schemaRejected(err error) bool {
	return appErrors.IsKind(database.Classify(err), appErrors.KindSchemaRejection)
}

// page slices records to the window described by filter.
func page[T any](records []T, filter models.ListFilter) ([]T, *models.Pagination) {
	start, end, p := filter.Window(len(records))
	out := make([]T, end-start)
	copy(out, records[start:end])
	return out, &p
}

func containsFold(needle string, haystack ...string) bool {
	needle = strings.ToLower(strings.TrimSpace(needle))
	if needle == "" {
		return true
	}
	for _, h := range haystack {
		if strings.Contains(strings.ToLower(h), needle) {
			return true
		}
	}
	return false
}

func equalFoldOrEmpty(filter, value string) bool {
	return filter == "" || strings.EqualFold(filter, value)
}

func installmentRows(fee models.Fee) []map[string]any {
	out := make([]map[string]any, 0, len(fee.Installments))
	for _, inst := range fee.Installments {
		row := map[string]any{"id": inst.ID, "amount": inst.Amount, "due_date": inst.DueDate}
		if inst.PaidAt != nil {
			row["paid_at"] = *inst.PaidAt
		}
		out = append(out, row)
	}
	return out
}
