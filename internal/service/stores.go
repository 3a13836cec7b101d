package service

import (
	"context"

	"github.com/noah-isme/admissions-sync-api/internal/models"
	"github.com/noah-isme/admissions-sync-api/pkg/middleware/requestid"
	"github.com/noah-isme/admissions-sync-api/pkg/realtime"
)

type rowInserter interface {
	Insert(ctx context.Context, row models.RawRow) (models.RawRow, error)
}

type rowLister interface {
	List(ctx context.Context) ([]models.RawRow, error)
}

type rowStore interface {
	rowInserter
	rowLister
	Update(ctx context.Context, id string, fields models.RawRow) (models.RawRow, error)
	Delete(ctx context.Context, id string) error
	Table() string
}

type localBuffer interface {
	Put(collection, id string, record any) error
	Rows(collection string) ([]models.RawRow, error)
	Remove(collection, id string) error
	Admissions() ([]models.Admission, error)
	Enquiries() ([]models.Enquiry, error)
	Students() ([]models.Student, error)
}

type studentStore interface {
	Upsert(ctx context.Context, student models.Student) error
	List(ctx context.Context) ([]models.RawRow, error)
	Delete(ctx context.Context, id string) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, realtime.Change) error { return nil }

func publisherOrNoop(p realtime.Publisher) realtime.Publisher {
	if p == nil {
		return noopPublisher{}
	}
	return requestPublisher{next: p}
}

// requestPublisher stamps changes with the id of the request that caused them.
type requestPublisher struct {
	next realtime.Publisher
}

func (p requestPublisher) Publish(ctx context.Context, change realtime.Change) error {
	if change.RequestID == "" {
		change.RequestID = requestid.FromContext(ctx)
	}
	return p.next.Publish(ctx, change)
}
