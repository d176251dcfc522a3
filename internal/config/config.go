package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// ServerConfig captures all tunable parameters for the HTTP API process.
// Values come from the environment, optionally seeded from a .env file, with
// defaults that let the binary run locally without setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RoadsFile  string
	PlacesFile string
	DataDir    string

	StorageBackend string
	PGDSN          string
	RunMigrations  bool

	RedisAddr        string
	RedisPassword    string
	RedisGeoKey      string
	RedisSnapshotKey string

	KafkaBrokers []string
	KafkaTopic   string

	MatchWebhookURL string

	MaxRequests   int
	MaxPathLength int
	DefaultTopK   int

	LogLevel        string
	CORSAllowOrigin string
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:         ":8080",
		ReadTimeout:      5 * time.Second,
		WriteTimeout:     10 * time.Second,
		IdleTimeout:      120 * time.Second,
		ShutdownTimeout:  15 * time.Second,
		RoadsFile:        "roads.txt",
		PlacesFile:       "places.csv",
		DataDir:          ".",
		StorageBackend:   BackendFile,
		RedisGeoKey:      "places_geo",
		RedisSnapshotKey: "ride_sharing:world",
		KafkaTopic:       "ride-matches",
		MaxRequests:      1000,
		MaxPathLength:    100,
		DefaultTopK:      10,
		LogLevel:         "info",
		CORSAllowOrigin:  "*",
	}
}

// LoadServerConfig reads .env when present and then the process environment.
// Every invalid value is reported, not just the first.
func LoadServerConfig() (ServerConfig, error) {
	_ = godotenv.Load()

	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	setStringFromEnv(&cfg.RoadsFile, "ROADS_FILE")
	setStringFromEnv(&cfg.PlacesFile, "PLACES_FILE")
	setStringFromEnv(&cfg.DataDir, "DATA_DIR")

	setStringFromEnv(&cfg.StorageBackend, "STORAGE_BACKEND")
	cfg.StorageBackend = strings.ToLower(cfg.StorageBackend)
	cfg.PGDSN = os.Getenv("PG_DSN")
	setBoolFromEnv(&cfg.RunMigrations, "MIGRATE", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")
	setStringFromEnv(&cfg.RedisSnapshotKey, "REDIS_SNAPSHOT_KEY")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = SplitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")
	cfg.MatchWebhookURL = strings.TrimSpace(os.Getenv("MATCH_WEBHOOK_URL"))

	setIntFromEnv(&cfg.MaxRequests, "MAX_REQUESTS", &errs)
	setIntFromEnv(&cfg.MaxPathLength, "MAX_PATH_LENGTH", &errs)
	setIntFromEnv(&cfg.DefaultTopK, "DEFAULT_TOP_K", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	setStringFromEnv(&cfg.CORSAllowOrigin, "CORS_ALLOW_ORIGIN")

	if cfg.MaxRequests <= 0 {
		errs = append(errs, fmt.Errorf("MAX_REQUESTS must be > 0"))
	}
	if cfg.MaxPathLength < 0 {
		errs = append(errs, fmt.Errorf("MAX_PATH_LENGTH must be >= 0"))
	}
	if cfg.DefaultTopK <= 0 {
		errs = append(errs, fmt.Errorf("DEFAULT_TOP_K must be > 0"))
	}
	switch cfg.StorageBackend {
	case BackendFile:
	case BackendPostgres:
		if cfg.PGDSN == "" {
			errs = append(errs, fmt.Errorf("STORAGE_BACKEND=postgres requires PG_DSN"))
		}
	case BackendRedis:
		if cfg.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("STORAGE_BACKEND=redis requires REDIS_ADDR"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend))
	}

	return cfg, errors.Join(errs...)
}

// ConsumerConfig configures the match event consumer.
type ConsumerConfig struct {
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string
	RedisAddr    string
	MetricsAddr  string
	LogLevel     string
}

func LoadConsumerConfig() (ConsumerConfig, error) {
	_ = godotenv.Load()

	cfg := ConsumerConfig{
		KafkaBrokers: []string{"localhost:9092"},
		KafkaTopic:   "ride-matches",
		KafkaGroup:   "ride-sharing-history",
		RedisAddr:    "localhost:6379",
		MetricsAddr:  ":2112",
		LogLevel:     "info",
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = SplitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")
	setStringFromEnv(&cfg.RedisAddr, "REDIS_ADDR")
	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if len(cfg.KafkaBrokers) == 0 {
		return cfg, fmt.Errorf("KAFKA_BROKERS is empty")
	}
	return cfg, nil
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		d, err := cast.ToDurationE(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		i, err := cast.ToIntE(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setBoolFromEnv(target *bool, key string, errs *[]error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		b, err := cast.ToBoolE(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = b
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

// SplitAndTrim splits a comma separated list and drops empty items.
func SplitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
