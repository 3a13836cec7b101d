package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

const listenerPingInterval = 90 * time.Second

// PostgresTransport delivers changes over LISTEN/NOTIFY.
type PostgresTransport struct {
	dsn     string
	db      *sqlx.DB
	channel string
	minGap  time.Duration
	maxGap  time.Duration
	logger  *zap.Logger
}

// NewPostgres builds a LISTEN/NOTIFY transport. The listener dials dsn on
// its own connection; db is used for pg_notify when publishing.
func NewPostgres(dsn string, db *sqlx.DB, channel string, minGap, maxGap time.Duration, logger *zap.Logger) *PostgresTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	if minGap <= 0 {
		minGap = 10 * time.Second
	}
	if maxGap < minGap {
		maxGap = minGap
	}
	return &PostgresTransport{dsn: dsn, db: db, channel: channel, minGap: minGap, maxGap: maxGap, logger: logger}
}

// Name implements Transport.
func (t *PostgresTransport) Name() string { return "postgres" }

// Subscribe starts listening on the configured channel.
func (t *PostgresTransport) Subscribe(ctx context.Context, handler Handler) (Subscription, error) {
	listener := pq.NewListener(t.dsn, t.minGap, t.maxGap, func(event pq.ListenerEventType, err error) {
		switch event {
		case pq.ListenerEventDisconnected, pq.ListenerEventConnectionAttemptFailed:
			t.logger.Warn("realtime listener disconnected", zap.String("channel", t.channel), zap.Error(err))
		case pq.ListenerEventReconnected:
			t.logger.Info("realtime listener reconnected", zap.String("channel", t.channel))
		}
	})
	if err := listener.Listen(t.channel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("listen %s: %w", t.channel, err)
	}

	sub := newSubscription(listener.Close)
	sub.run(func(done <-chan struct{}) {
		ticker := time.NewTicker(listenerPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := listener.Ping(); err != nil {
					t.logger.Warn("realtime listener ping failed", zap.Error(err))
				}
			case n, ok := <-listener.Notify:
				if !ok {
					return
				}
				// A nil notification marks a reconnect; missed events are recovered by polling.
				if n == nil {
					continue
				}
				dispatch(ctx, t.logger, handler, []byte(n.Extra))
			}
		}
	})
	return sub, nil
}

// Publish sends the change through pg_notify.
func (t *PostgresTransport) Publish(ctx context.Context, change Change) error {
	if t.db == nil {
		return fmt.Errorf("publish %s: no database", t.channel)
	}
	payload, err := Encode(change)
	if err != nil {
		return err
	}
	if _, err := t.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", t.channel, string(payload)); err != nil {
		return fmt.Errorf("publish %s: %w", t.channel, err)
	}
	return nil
}

// Close implements Transport. Listeners are owned by their subscriptions.
func (t *PostgresTransport) Close() error { return nil }

// dispatch decodes one payload and hands it to the handler. Malformed
// payloads are logged and dropped.
func dispatch(ctx context.Context, logger *zap.Logger, handler Handler, payload []byte) {
	change, err := Decode(payload)
	if err != nil {
		logger.Warn("realtime payload dropped", zap.Error(err))
		return
	}
	handler(ctx, change)
}
