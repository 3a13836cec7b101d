package repository

import (
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"sync"

	"github.com/noah-isme/admissions-sync-api/internal/models"
	"github.com/noah-isme/admissions-sync-api/pkg/storage"
)

// Buffer collections.
const (
	CollectionAdmissions = "admissions"
	CollectionEnquiries  = "enquiries"
	CollectionStudents   = "students"

	// CollectionSubmissions keeps the original payload of buffered admissions
	// so the insert cascade can be replayed.
	CollectionSubmissions = "submissions"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// LocalBuffer keeps records that could not reach the remote store, and
// locally edited records awaiting sync, as one JSON file per record.
type LocalBuffer struct {
	store *storage.LocalStorage
	mu    sync.Mutex
}

// NewLocalBuffer wraps a storage root.
func NewLocalBuffer(store *storage.LocalStorage) *LocalBuffer {
	return &LocalBuffer{store: store}
}

// Put writes record under collection/id, replacing any previous copy.
func (b *LocalBuffer) Put(collection, id string, record any) error {
	if id == "" {
		return fmt.Errorf("buffer %s: record id is required", collection)
	}
	raw, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode buffered %s: %w", collection, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.store.Save(fileFor(collection, id), raw); err != nil {
		return fmt.Errorf("buffer %s %s: %w", collection, id, err)
	}
	return nil
}

// Rows returns every buffered record of collection as raw rows.
func (b *LocalBuffer) Rows(collection string) ([]models.RawRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	names, err := b.store.List(collection, ".json")
	if err != nil {
		return nil, fmt.Errorf("list buffered %s: %w", collection, err)
	}
	out := make([]models.RawRow, 0, len(names))
	for _, name := range names {
		data, err := b.store.Read(name)
		if err != nil {
			return nil, fmt.Errorf("read buffered %s: %w", name, err)
		}
		row := models.RawRow{}
		if err := json.Unmarshal(data, &row); err != nil {
			return nil, fmt.Errorf("decode buffered %s: %w", name, err)
		}
		out = append(out, row)
	}
	return out, nil
}

// Remove deletes collection/id. Missing records are ignored.
func (b *LocalBuffer) Remove(collection, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.Delete(fileFor(collection, id))
}

// Admissions decodes the buffered admissions.
func (b *LocalBuffer) Admissions() ([]models.Admission, error) {
	return decodeCollection[models.Admission](b, CollectionAdmissions)
}

// Enquiries decodes the buffered enquiries.
func (b *LocalBuffer) Enquiries() ([]models.Enquiry, error) {
	return decodeCollection[models.Enquiry](b, CollectionEnquiries)
}

// Students decodes the buffered students.
func (b *LocalBuffer) Students() ([]models.Student, error) {
	return decodeCollection[models.Student](b, CollectionStudents)
}

func decodeCollection[T any](b *LocalBuffer, collection string) ([]T, error) {
	rows, err := b.Rows(collection)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		raw, err := json.Marshal(row)
		if err != nil {
			return nil, fmt.Errorf("encode buffered %s: %w", collection, err)
		}
		var rec T
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode buffered %s: %w", collection, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func fileFor(collection, id string) string {
	return path.Join(collection, unsafeFileChars.ReplaceAllString(id, "_")+".json")
}
