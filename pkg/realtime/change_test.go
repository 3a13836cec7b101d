package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/admissions-sync-api/pkg/config"
)

func TestDecodeNativeShape(t *testing.T) {
	change, err := Decode([]byte(`{"table":"applications","type":"update","record":{"app_id":"APP-1","status":"Verified"},"at":"2024-05-01T10:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, "applications", change.Table)
	assert.Equal(t, ChangeUpdate, change.Type)
	assert.Equal(t, "APP-1", change.Record["app_id"])
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), change.At)
	assert.Equal(t, change.Record, change.Subject())
}

func TestDecodeTriggerShape(t *testing.T) {
	change, err := Decode([]byte(`{"table":"enquiries","eventType":"INSERT","new":{"id":"E1"},"old":null,"commit_timestamp":"2024-05-01T10:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, ChangeInsert, change.Type)
	assert.Equal(t, "E1", change.Record["id"])
	assert.Nil(t, change.OldRecord)

	deleted, err := Decode([]byte(`{"table":"applications","op":"DELETE","record":null,"old_record":{"id":7}}`))
	require.NoError(t, err)
	assert.Equal(t, ChangeDelete, deleted.Type)
	assert.Equal(t, float64(7), deleted.Subject()["id"])
	assert.False(t, deleted.At.IsZero())
}

func TestDecodeRejectsMalformedPayloads(t *testing.T) {
	cases := map[string]string{
		"not json":       `nope`,
		"missing table":  `{"type":"insert","record":{"id":1}}`,
		"unknown type":   `{"table":"applications","type":"truncate","record":{"id":1}}`,
		"insert no row":  `{"table":"applications","type":"insert"}`,
		"delete no row":  `{"table":"applications","type":"delete","record":{}}`,
		"record not obj": `{"table":"applications","type":"insert","record":[1,2]}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(payload))
			assert.Error(t, err)
		})
	}
}

func TestEncodeProducesDecodablePayload(t *testing.T) {
	payload, err := Encode(Change{Table: "students", Type: ChangeInsert, Record: map[string]any{"id": "STU-A-1"}})
	require.NoError(t, err)

	change, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, "STU-A-1", change.Record["id"])
	assert.False(t, change.At.IsZero())
}

func TestDispatchDropsMalformedPayload(t *testing.T) {
	var got []Change
	handler := func(_ context.Context, c Change) { got = append(got, c) }

	dispatch(context.Background(), zap.NewNop(), handler, []byte(`{"table":""}`))
	dispatch(context.Background(), zap.NewNop(), handler, []byte(`{"table":"applications","type":"insert","record":{"id":"A"}}`))

	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].Record["id"])
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	releases := 0
	sub := newSubscription(func() error {
		releases++
		return errors.New("already gone")
	})
	stopped := make(chan struct{})
	sub.run(func(done <-chan struct{}) {
		<-done
		close(stopped)
	})

	err := sub.Close()
	assert.EqualError(t, err, "already gone")
	assert.EqualError(t, sub.Close(), "already gone")
	assert.Equal(t, 1, releases)
	<-stopped
}

func TestOpenSelectsDriver(t *testing.T) {
	transport, err := Open(config.RealtimeConfig{Driver: config.RealtimeDriverNone}, Deps{})
	require.NoError(t, err)
	assert.Equal(t, "none", transport.Name())

	sub, err := transport.Subscribe(context.Background(), func(context.Context, Change) {})
	require.NoError(t, err)
	assert.NoError(t, sub.Close())
	assert.NoError(t, transport.Publish(context.Background(), Change{}))

	pg, err := Open(config.RealtimeConfig{Driver: config.RealtimeDriverPostgres, Channel: "admissions_changes"}, Deps{DSN: "postgres://localhost/db"})
	require.NoError(t, err)
	assert.Equal(t, "postgres", pg.Name())

	_, err = Open(config.RealtimeConfig{Driver: config.RealtimeDriverRedis}, Deps{})
	assert.Error(t, err)
	_, err = Open(config.RealtimeConfig{Driver: config.RealtimeDriverPostgres}, Deps{})
	assert.Error(t, err)
	_, err = Open(config.RealtimeConfig{Driver: "kafka"}, Deps{})
	assert.Error(t, err)
}

func TestQoSLevelClamps(t *testing.T) {
	assert.Equal(t, byte(0), qosLevel(-1))
	assert.Equal(t, byte(1), qosLevel(1))
	assert.Equal(t, byte(2), qosLevel(7))
}

func TestDecodeKeepsRequestID(t *testing.T) {
	change, err := Decode([]byte(`{"table":"batches","type":"insert","record":{"batch_id":"B1"},"request_id":"req-9"}`))
	require.NoError(t, err)
	assert.Equal(t, "req-9", change.RequestID)
}
