package config

import (
	"errors"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Realtime drivers accepted by REALTIME_DRIVER.
const (
	RealtimeDriverNone     = "none"
	RealtimeDriverPostgres = "postgres"
	RealtimeDriverRedis    = "redis"
	RealtimeDriverMQTT     = "mqtt"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Ingest   IngestConfig
	Buffer   BufferConfig
	Sync     SyncConfig
	Merge    MergeConfig
	Realtime RealtimeConfig
	Exports  ExportsConfig
}

type DatabaseConfig struct {
	Enabled      bool
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig only carries what is needed to attribute actions to a bearer token.
type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// IngestConfig drives the cascading insert of new applications.
type IngestConfig struct {
	ApplicationsTable string
	PublicTable       string
	CompanionTable    string
	CompanionWorkers  int
	CompanionRetries  int
	PublicAPIURL      string
	PublicAPITimeout  time.Duration
	DefaultCampus     string
}

// BufferConfig locates the on-disk buffer for records awaiting sync.
type BufferConfig struct {
	Dir string
}

// SyncConfig tunes periodic refetching and buffer draining.
type SyncConfig struct {
	PollInterval   time.Duration
	BufferInterval time.Duration
	FetchTimeout   time.Duration
}

// MergeConfig is the single source precedence policy for every entity.
type MergeConfig struct {
	LocalPendingWins bool
	SourceRanks      map[string]int
}

// RealtimeConfig selects the push transport feeding the merged view.
type RealtimeConfig struct {
	Driver          string
	Channel         string
	ReconnectMinGap time.Duration
	ReconnectMaxGap time.Duration
	MQTT            MQTTConfig
}

// MQTTConfig configures the MQTT realtime transport.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      int
}

// ExportsConfig controls where rendered exports are archived and for how long.
type ExportsConfig struct {
	Dir string
	TTL time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Enabled:      v.GetBool("DB_ENABLED"),
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Ingest = IngestConfig{
		ApplicationsTable: v.GetString("INGEST_APPLICATIONS_TABLE"),
		PublicTable:       v.GetString("INGEST_PUBLIC_TABLE"),
		CompanionTable:    v.GetString("INGEST_COMPANION_TABLE"),
		CompanionWorkers:  v.GetInt("INGEST_COMPANION_WORKERS"),
		CompanionRetries:  v.GetInt("INGEST_COMPANION_RETRIES"),
		PublicAPIURL:      strings.TrimRight(v.GetString("PUBLIC_API_URL"), "/"),
		PublicAPITimeout:  parseDuration(v.GetString("PUBLIC_API_TIMEOUT"), 10*time.Second),
		DefaultCampus:     v.GetString("INGEST_DEFAULT_CAMPUS"),
	}

	cfg.Buffer = BufferConfig{Dir: v.GetString("BUFFER_DIR")}

	cfg.Sync = SyncConfig{
		PollInterval:   parseDuration(v.GetString("SYNC_POLL_INTERVAL"), 5*time.Second),
		BufferInterval: parseDuration(v.GetString("SYNC_BUFFER_INTERVAL"), time.Minute),
		FetchTimeout:   parseDuration(v.GetString("SYNC_FETCH_TIMEOUT"), 10*time.Second),
	}

	cfg.Merge = MergeConfig{
		LocalPendingWins: v.GetBool("MERGE_LOCAL_PENDING_WINS"),
		SourceRanks:      parseRanks(v.GetString("MERGE_SOURCE_RANKS")),
	}

	cfg.Realtime = RealtimeConfig{
		Driver:          strings.ToLower(v.GetString("REALTIME_DRIVER")),
		Channel:         v.GetString("REALTIME_CHANNEL"),
		ReconnectMinGap: parseDuration(v.GetString("REALTIME_RECONNECT_MIN"), 10*time.Second),
		ReconnectMaxGap: parseDuration(v.GetString("REALTIME_RECONNECT_MAX"), time.Minute),
		MQTT: MQTTConfig{
			Broker:   v.GetString("MQTT_BROKER"),
			ClientID: v.GetString("MQTT_CLIENT_ID"),
			Username: v.GetString("MQTT_USERNAME"),
			Password: v.GetString("MQTT_PASSWORD"),
			QoS:      v.GetInt("MQTT_QOS"),
		},
	}

	cfg.Exports = ExportsConfig{
		Dir: v.GetString("EXPORT_DIR"),
		TTL: parseDuration(v.GetString("EXPORT_TTL"), 7*24*time.Hour),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_ENABLED", true)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "admissions")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("INGEST_APPLICATIONS_TABLE", "applications")
	v.SetDefault("INGEST_PUBLIC_TABLE", "public_applications")
	v.SetDefault("INGEST_COMPANION_TABLE", "admission_tracking")
	v.SetDefault("INGEST_COMPANION_WORKERS", 1)
	v.SetDefault("INGEST_COMPANION_RETRIES", 2)
	v.SetDefault("PUBLIC_API_URL", "")
	v.SetDefault("PUBLIC_API_TIMEOUT", "10s")
	v.SetDefault("INGEST_DEFAULT_CAMPUS", "Main")

	v.SetDefault("BUFFER_DIR", "./data/buffer")

	v.SetDefault("SYNC_POLL_INTERVAL", "5s")
	v.SetDefault("SYNC_BUFFER_INTERVAL", "1m")
	v.SetDefault("SYNC_FETCH_TIMEOUT", "10s")

	v.SetDefault("MERGE_LOCAL_PENDING_WINS", true)
	v.SetDefault("MERGE_SOURCE_RANKS", "")

	v.SetDefault("REALTIME_DRIVER", RealtimeDriverNone)
	v.SetDefault("REALTIME_CHANNEL", "admissions_changes")
	v.SetDefault("REALTIME_RECONNECT_MIN", "10s")
	v.SetDefault("REALTIME_RECONNECT_MAX", "1m")
	v.SetDefault("MQTT_BROKER", "tcp://localhost:1883")
	v.SetDefault("MQTT_CLIENT_ID", "admissions-sync-api")
	v.SetDefault("MQTT_USERNAME", "")
	v.SetDefault("MQTT_PASSWORD", "")
	v.SetDefault("MQTT_QOS", 1)

	v.SetDefault("EXPORT_DIR", "./exports")
	v.SetDefault("EXPORT_TTL", "168h")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// parseRanks reads "applications=30,admissions=20" into a rank map. Malformed pairs are skipped.
func parseRanks(raw string) map[string]int {
	pairs := splitAndTrim(raw)
	if len(pairs) == 0 {
		return nil
	}
	ranks := make(map[string]int, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		rank, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			continue
		}
		ranks[strings.TrimSpace(key)] = rank
	}
	return ranks
}
