package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ChangeType is the kind of row change carried by a notification.
type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// Change is one row-level notification for a watched table.
type Change struct {
	Table     string         `json:"table"`
	Type      ChangeType     `json:"type"`
	Record    map[string]any `json:"record,omitempty"`
	OldRecord map[string]any `json:"old_record,omitempty"`
	At        time.Time      `json:"at"`
	RequestID string         `json:"request_id,omitempty"`
}

// Handler consumes decoded changes. It is called from the transport's
// delivery goroutine, one change at a time.
type Handler func(ctx context.Context, change Change)

// Subscription is a live stream of changes. Close is idempotent.
type Subscription interface {
	Close() error
}

// Subscriber opens change streams.
type Subscriber interface {
	Subscribe(ctx context.Context, handler Handler) (Subscription, error)
}

// Publisher broadcasts changes made by this instance.
type Publisher interface {
	Publish(ctx context.Context, change Change) error
}

// Transport is a realtime driver able to both publish and subscribe.
type Transport interface {
	Subscriber
	Publisher
	Name() string
	Close() error
}

// wireChange accepts both the native shape and trigger payloads that use
// eventType/op and new/old naming.
type wireChange struct {
	Table     string          `json:"table"`
	Type      string          `json:"type"`
	EventType string          `json:"eventType"`
	Op        string          `json:"op"`
	Record    json.RawMessage `json:"record"`
	New       json.RawMessage `json:"new"`
	OldRecord json.RawMessage `json:"old_record"`
	Old       json.RawMessage `json:"old"`
	At        *time.Time      `json:"at"`
	CommitTS  *time.Time      `json:"commit_timestamp"`
	RequestID string          `json:"request_id"`
}

// Decode parses a notification payload into a Change.
func Decode(payload []byte) (Change, error) {
	var wire wireChange
	if err := json.Unmarshal(payload, &wire); err != nil {
		return Change{}, fmt.Errorf("decode change: %w", err)
	}

	change := Change{Table: strings.TrimSpace(wire.Table), RequestID: wire.RequestID}
	if change.Table == "" {
		return Change{}, fmt.Errorf("decode change: missing table")
	}

	kind, err := parseChangeType(firstNonEmpty(wire.Type, wire.EventType, wire.Op))
	if err != nil {
		return Change{}, err
	}
	change.Type = kind

	if change.Record, err = decodeRecord(firstRaw(wire.Record, wire.New)); err != nil {
		return Change{}, fmt.Errorf("decode change record: %w", err)
	}
	if change.OldRecord, err = decodeRecord(firstRaw(wire.OldRecord, wire.Old)); err != nil {
		return Change{}, fmt.Errorf("decode change old record: %w", err)
	}

	switch {
	case wire.At != nil:
		change.At = wire.At.UTC()
	case wire.CommitTS != nil:
		change.At = wire.CommitTS.UTC()
	default:
		change.At = time.Now().UTC()
	}

	if change.Type == ChangeDelete && change.OldRecord == nil && change.Record == nil {
		return Change{}, fmt.Errorf("decode change: delete without record")
	}
	if change.Type != ChangeDelete && change.Record == nil {
		return Change{}, fmt.Errorf("decode change: %s without record", change.Type)
	}
	return change, nil
}

// Encode renders a change in the native wire shape.
func Encode(change Change) ([]byte, error) {
	if change.At.IsZero() {
		change.At = time.Now().UTC()
	}
	payload, err := json.Marshal(change)
	if err != nil {
		return nil, fmt.Errorf("encode change: %w", err)
	}
	return payload, nil
}

// Subject returns the record identifying the changed row: the new image
// for inserts and updates, the old image for deletes when present.
func (c Change) Subject() map[string]any {
	if c.Type == ChangeDelete && c.OldRecord != nil {
		return c.OldRecord
	}
	return c.Record
}

func parseChangeType(raw string) (ChangeType, error) {
	switch ChangeType(strings.ToLower(strings.TrimSpace(raw))) {
	case ChangeInsert:
		return ChangeInsert, nil
	case ChangeUpdate:
		return ChangeUpdate, nil
	case ChangeDelete:
		return ChangeDelete, nil
	}
	return "", fmt.Errorf("decode change: unknown type %q", raw)
}

func decodeRecord(raw json.RawMessage) (map[string]any, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	var record map[string]any
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, err
	}
	if len(record) == 0 {
		return nil, nil
	}
	return record, nil
}

func firstRaw(values ...json.RawMessage) json.RawMessage {
	for _, v := range values {
		if s := strings.TrimSpace(string(v)); s != "" && s != "null" {
			return v
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
