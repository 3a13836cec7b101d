package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/admissions-sync-api/internal/models"
	"github.com/noah-isme/admissions-sync-api/pkg/realtime"
)

var testNow = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func fixedClock() func() time.Time { return func() time.Time { return testNow } }

// tableStub is an in-memory rowStore. errs are returned by successive
// Insert calls before falling back to storing the row.
type tableStub struct {
	mu        sync.Mutex
	table     string
	rows      []models.RawRow
	inserted  []models.RawRow
	errs      []error
	listErr   error
	updateErr error
	nextID    int
}

func newTableStub(table string, rows ...models.RawRow) *tableStub {
	return &tableStub{table: table, rows: rows}
}

func (s *tableStub) Table() string { return s.table }

func (s *tableStub) Insert(_ context.Context, row models.RawRow) (models.RawRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, row)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	s.nextID++
	out := models.RawRow{"app_id": fmt.Sprintf("%s-%d", s.table, s.nextID), "created_at": testNow.Format(time.RFC3339)}
	for k, v := range row {
		out[k] = v
	}
	s.rows = append(s.rows, out)
	return out, nil
}

func (s *tableStub) List(context.Context) ([]models.RawRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]models.RawRow(nil), s.rows...), nil
}

func (s *tableStub) Update(_ context.Context, id string, fields models.RawRow) (models.RawRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	for _, row := range s.rows {
		if fmt.Sprint(row["app_id"]) == id || fmt.Sprint(row["id"]) == id {
			for k, v := range fields {
				row[k] = v
			}
			return row, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *tableStub) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	for i, row := range s.rows {
		if fmt.Sprint(row["app_id"]) == id || fmt.Sprint(row["id"]) == id {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *tableStub) insertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inserted)
}

// memBuffer is an in-memory localBuffer storing JSON like the file buffer.
type memBuffer struct {
	mu     sync.Mutex
	data   map[string]map[string][]byte
	putErr error
}

func newMemBuffer() *memBuffer {
	return &memBuffer{data: map[string]map[string][]byte{}}
}

func (b *memBuffer) Put(collection, id string, record any) error {
	if b.putErr != nil {
		return b.putErr
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data[collection] == nil {
		b.data[collection] = map[string][]byte{}
	}
	b.data[collection][id] = raw
	return nil
}

func (b *memBuffer) Rows(collection string) ([]models.RawRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.data[collection]))
	for id := range b.data[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]models.RawRow, 0, len(ids))
	for _, id := range ids {
		row := models.RawRow{}
		if err := json.Unmarshal(b.data[collection][id], &row); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

func (b *memBuffer) Remove(collection, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data[collection], id)
	return nil
}

func (b *memBuffer) count(collection string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data[collection])
}

func (b *memBuffer) Admissions() ([]models.Admission, error) {
	return decodeMem[models.Admission](b, "admissions")
}

func (b *memBuffer) Enquiries() ([]models.Enquiry, error) {
	return decodeMem[models.Enquiry](b, "enquiries")
}

func (b *memBuffer) Students() ([]models.Student, error) {
	return decodeMem[models.Student](b, "students")
}

func decodeMem[T any](b *memBuffer, collection string) ([]T, error) {
	rows, err := b.Rows(collection)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		raw, _ := json.Marshal(row)
		var rec T
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

type publisherStub struct {
	mu      sync.Mutex
	changes []realtime.Change
	err     error
}

func (p *publisherStub) Publish(_ context.Context, change realtime.Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, change)
	return p.err
}

func (p *publisherStub) published() []realtime.Change {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]realtime.Change(nil), p.changes...)
}

type studentStoreStub struct {
	mu       sync.Mutex
	students map[string]models.Student
	err      error
	upserts  int
}

func newStudentStoreStub() *studentStoreStub {
	return &studentStoreStub{students: map[string]models.Student{}}
}

func (s *studentStoreStub) Upsert(_ context.Context, student models.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if s.err != nil {
		return s.err
	}
	s.students[student.ID] = student
	return nil
}

func (s *studentStoreStub) List(context.Context) ([]models.RawRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	ids := make([]string, 0, len(s.students))
	for id := range s.students {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]models.RawRow, 0, len(ids))
	for _, id := range ids {
		raw, _ := json.Marshal(s.students[id])
		out = append(out, models.RawRow{"id": id, "record": raw})
	}
	return out, nil
}

func (s *studentStoreStub) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if _, ok := s.students[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.students, id)
	return nil
}
