package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	AIModeFunction = "function"
	AIModeText     = "text"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Store         StoreConfig
	AI            AIConfig
	Pipeline      PipelineConfig
	History       HistoryConfig
	ObjectStore   ObjectStoreConfig
	UI            UIConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name    string
	Version string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	CORSOrigins  string
}

type StoreConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
	Seed            bool
}

type AIConfig struct {
	Mode        string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

type PipelineConfig struct {
	Timeout        time.Duration
	AllowMutations bool
}

type HistoryConfig struct {
	Enabled         bool
	Capacity        int
	ArchiveEnabled  bool
	ArchiveInterval time.Duration
	ArchiveMaxBatch int
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type UIConfig struct {
	Enabled bool
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("APP_ENV"); ok {
		profile = profileFromAppEnv(raw)
	}
	if raw, ok := lookup("SQLPILOT_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid SQLPILOT_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if err := applyLegacy(lookup, &cfg); err != nil {
		return Config{}, err
	}

	steps := []func() error{
		func() error { return applyString(lookup, "SQLPILOT_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "SQLPILOT_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "SQLPILOT_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "SQLPILOT_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "SQLPILOT_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyString(lookup, "SQLPILOT_HTTP_CORS_ORIGINS", &cfg.HTTP.CORSOrigins) },
		func() error { return applyString(lookup, "SQLPILOT_STORE_DRIVER", &cfg.Store.Driver) },
		func() error { return applyString(lookup, "SQLPILOT_STORE_DSN", &cfg.Store.DSN) },
		func() error { return applyInt(lookup, "SQLPILOT_STORE_MAX_OPEN_CONNS", &cfg.Store.MaxOpenConns) },
		func() error { return applyInt(lookup, "SQLPILOT_STORE_MAX_IDLE_CONNS", &cfg.Store.MaxIdleConns) },
		func() error {
			return applyDuration(lookup, "SQLPILOT_STORE_CONN_MAX_IDLE_TIME", &cfg.Store.ConnMaxIdleTime)
		},
		func() error {
			return applyDuration(lookup, "SQLPILOT_STORE_CONN_MAX_LIFETIME", &cfg.Store.ConnMaxLifetime)
		},
		func() error { return applyBool(lookup, "SQLPILOT_STORE_AUTO_MIGRATE", &cfg.Store.AutoMigrate) },
		func() error { return applyBool(lookup, "SQLPILOT_STORE_SEED", &cfg.Store.Seed) },
		func() error { return applyString(lookup, "SQLPILOT_AI_MODE", &cfg.AI.Mode) },
		func() error { return applyString(lookup, "SQLPILOT_AI_BASE_URL", &cfg.AI.BaseURL) },
		func() error { return applyString(lookup, "SQLPILOT_AI_API_KEY", &cfg.AI.APIKey) },
		func() error { return applyString(lookup, "SQLPILOT_AI_MODEL", &cfg.AI.Model) },
		func() error { return applyFloat(lookup, "SQLPILOT_AI_TEMPERATURE", &cfg.AI.Temperature) },
		func() error { return applyDuration(lookup, "SQLPILOT_AI_TIMEOUT", &cfg.AI.Timeout) },
		func() error { return applyDuration(lookup, "SQLPILOT_PIPELINE_TIMEOUT", &cfg.Pipeline.Timeout) },
		func() error { return applyBool(lookup, "SQLPILOT_PIPELINE_ALLOW_MUTATIONS", &cfg.Pipeline.AllowMutations) },
		func() error { return applyBool(lookup, "SQLPILOT_HISTORY_ENABLED", &cfg.History.Enabled) },
		func() error { return applyInt(lookup, "SQLPILOT_HISTORY_CAPACITY", &cfg.History.Capacity) },
		func() error { return applyBool(lookup, "SQLPILOT_HISTORY_ARCHIVE_ENABLED", &cfg.History.ArchiveEnabled) },
		func() error {
			return applyDuration(lookup, "SQLPILOT_HISTORY_ARCHIVE_INTERVAL", &cfg.History.ArchiveInterval)
		},
		func() error { return applyInt(lookup, "SQLPILOT_HISTORY_ARCHIVE_MAX_BATCH", &cfg.History.ArchiveMaxBatch) },
		func() error { return applyString(lookup, "SQLPILOT_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "SQLPILOT_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "SQLPILOT_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket) },
		func() error { return applyString(lookup, "SQLPILOT_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID) },
		func() error {
			return applyString(lookup, "SQLPILOT_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey)
		},
		func() error { return applyBool(lookup, "SQLPILOT_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "SQLPILOT_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error {
			return applyBool(lookup, "SQLPILOT_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket)
		},
		func() error { return applyBool(lookup, "SQLPILOT_UI_ENABLED", &cfg.UI.Enabled) },
		func() error { return applyBool(lookup, "SQLPILOT_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "SQLPILOT_LOG_LEVEL", &cfg.Observability.LogLevel) },
		func() error { return applyBool(lookup, "SQLPILOT_AUTH_REQUIRED", &cfg.Auth.Required) },
		func() error { return applyString(lookup, "SQLPILOT_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return Config{}, err
		}
	}

	cfg.Store.Driver = strings.ToLower(cfg.Store.Driver)
	cfg.AI.Mode = strings.ToLower(cfg.AI.Mode)

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	switch cfg.Store.Driver {
	case "sqlite", "postgres", "duckdb":
	default:
		return Config{}, fmt.Errorf("invalid SQLPILOT_STORE_DRIVER: %q", cfg.Store.Driver)
	}
	switch cfg.AI.Mode {
	case AIModeFunction, AIModeText:
	default:
		return Config{}, fmt.Errorf("invalid SQLPILOT_AI_MODE: %q", cfg.AI.Mode)
	}
	if cfg.History.Capacity <= 0 {
		return Config{}, fmt.Errorf("history capacity must be > 0")
	}
	return cfg, nil
}

// applyLegacy honours the variable names used by earlier deployments of the
// service. SQLPILOT_* values applied afterwards take precedence.
func applyLegacy(lookup LookupFunc, cfg *Config) error {
	if raw, ok := lookup("DATABASE_URL"); ok && strings.TrimSpace(raw) != "" {
		driver, dsn, err := ParseDatabaseURL(raw)
		if err != nil {
			return fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		cfg.Store.Driver = driver
		cfg.Store.DSN = dsn
	}
	if err := applyString(lookup, "OPENAI_API_KEY", &cfg.AI.APIKey); err != nil {
		return err
	}
	var useLocal bool
	if err := applyBool(lookup, "USE_LOCAL_AI", &useLocal); err != nil {
		return err
	}
	if useLocal {
		cfg.AI.Mode = AIModeText
		cfg.AI.BaseURL = "http://localhost:8080/v1"
		cfg.AI.Model = "mistral"
		if err := applyString(lookup, "LOCAL_AI_BASE_URL", &cfg.AI.BaseURL); err != nil {
			return err
		}
	}
	return nil
}

// ParseDatabaseURL maps a connection URL onto a store driver and the DSN that
// driver expects. sqlite:///./app.db becomes the file path ./app.db.
func ParseDatabaseURL(raw string) (string, string, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "sqlite://"):
		dsn := strings.TrimPrefix(raw, "sqlite://")
		dsn = strings.TrimPrefix(dsn, "/")
		if dsn == "" || dsn == ":memory:" {
			return "sqlite", ":memory:", nil
		}
		return "sqlite", dsn, nil
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		return "postgres", raw, nil
	case strings.HasPrefix(raw, "duckdb://"):
		return "duckdb", strings.TrimPrefix(strings.TrimPrefix(raw, "duckdb://"), "/"), nil
	default:
		return "", "", fmt.Errorf("unsupported scheme in %q", raw)
	}
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "sqlpilot-api", Version: "0.1.0"},
		HTTP: HTTPConfig{
			Address:      ":8000",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  60 * time.Second,
			CORSOrigins:  "*",
		},
		Store: StoreConfig{
			Driver:          "sqlite",
			DSN:             "./app.db",
			MaxOpenConns:    1,
			MaxIdleConns:    1,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
			AutoMigrate:     true,
			Seed:            true,
		},
		AI: AIConfig{
			Mode:        AIModeFunction,
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-3.5-turbo-1106",
			Temperature: 0,
			Timeout:     30 * time.Second,
		},
		Pipeline: PipelineConfig{
			Timeout:        60 * time.Second,
			AllowMutations: true,
		},
		History: HistoryConfig{
			Enabled:         true,
			Capacity:        200,
			ArchiveEnabled:  false,
			ArchiveInterval: 5 * time.Minute,
			ArchiveMaxBatch: 1000,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "sqlpilot",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			Prefix:           "history",
			AutoCreateBucket: true,
		},
		UI: UIConfig{
			Enabled: true,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
		Auth: AuthConfig{
			Required:   false,
			StaticKeys: "",
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18000"
		cfg.Store.DSN = ":memory:"
		cfg.Store.Seed = false
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Auth.Required = false
	case ProfileProd:
		cfg.HTTP.CORSOrigins = ""
		cfg.Store.Seed = false
		cfg.Pipeline.AllowMutations = false
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func profileFromAppEnv(raw string) Profile {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return ProfileProd
	case "test", "testing":
		return ProfileTest
	default:
		return ProfileDev
	}
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
