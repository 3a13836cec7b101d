package realtime

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/admissions-sync-api/pkg/config"
)

// Deps carries the connections a driver may reuse.
type Deps struct {
	DSN    string
	DB     *sqlx.DB
	Redis  *redis.Client
	Logger *zap.Logger
}

// Open selects the transport named by cfg.Driver.
func Open(cfg config.RealtimeConfig, deps Deps) (Transport, error) {
	switch cfg.Driver {
	case "", config.RealtimeDriverNone:
		return Noop{}, nil
	case config.RealtimeDriverPostgres:
		if deps.DSN == "" {
			return nil, fmt.Errorf("realtime postgres driver requires a database dsn")
		}
		return NewPostgres(deps.DSN, deps.DB, cfg.Channel, cfg.ReconnectMinGap, cfg.ReconnectMaxGap, deps.Logger), nil
	case config.RealtimeDriverRedis:
		if deps.Redis == nil {
			return nil, fmt.Errorf("realtime redis driver requires a redis client")
		}
		return NewRedis(deps.Redis, cfg.Channel, deps.Logger), nil
	case config.RealtimeDriverMQTT:
		return NewMQTT(cfg.MQTT, cfg.Channel, deps.Logger)
	}
	return nil, fmt.Errorf("unknown realtime driver %q", cfg.Driver)
}
