// Package config provides configuration loading and management using koanf.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/jsamuelsen/quotevault/internal/platform/retry"
)

// Default configuration values.
const (
	// DefaultServerPort is the default HTTP server port.
	DefaultServerPort = 8080

	// DefaultMaxRequestSize is the default maximum request body size (1MB).
	DefaultMaxRequestSize = 1 << 20

	// DefaultLogFileMaxSizeMB is the default max log file size in megabytes.
	DefaultLogFileMaxSizeMB = 100

	// DefaultLogFileMaxBackups is the default number of old log files to retain.
	DefaultLogFileMaxBackups = 3

	// DefaultLogFileMaxAgeDays is the default max days to retain old log files.
	DefaultLogFileMaxAgeDays = 28

	// DefaultCandidateLimit bounds duplicate candidates read per author bucket.
	DefaultCandidateLimit = 500

	// DefaultSearchBudget bounds quotes scanned by one search request.
	DefaultSearchBudget = 2000

	// DefaultCascadeConcurrency bounds parallel quote rewrites in a tag cascade.
	DefaultCascadeConcurrency = 8

	// DefaultPipelineWorkers is the number of pipeline shards.
	DefaultPipelineWorkers = 4

	// DefaultPipelineBatchSize is the number of outbox events read per poll.
	DefaultPipelineBatchSize = 100
)

// Config is the root configuration structure.
type Config struct {
	App       AppConfig       `koanf:"app"       validate:"required"`
	Server    ServerConfig    `koanf:"server"    validate:"required"`
	Log       LogConfig       `koanf:"log"       validate:"required"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Auth      AuthConfig      `koanf:"auth"      validate:"required"`
	Store     StoreConfig     `koanf:"store"     validate:"required"`
	Retry     RetryConfig     `koanf:"retry"     validate:"required"`
	Detector  DetectorConfig  `koanf:"detector"  validate:"required"`
	Tags      TagsConfig      `koanf:"tags"      validate:"required"`
	Pipeline  PipelineConfig  `koanf:"pipeline"  validate:"required"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	Name        string `koanf:"name"        validate:"required"`
	Version     string `koanf:"version"     validate:"required"`
	Environment string `koanf:"environment" validate:"required,oneof=local dev qa prod test"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `koanf:"port"             validate:"required,min=1,max=65535"`
	Host            string        `koanf:"host"             validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout"     validate:"required,min=1s"`
	WriteTimeout    time.Duration `koanf:"write_timeout"    validate:"required,min=1s"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"     validate:"required,min=1s"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"required,min=1s"`
	RequestTimeout  time.Duration `koanf:"request_timeout"  validate:"required,min=100ms"`
	MaxRequestSize  int64         `koanf:"max_request_size" validate:"required,min=1"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string        `koanf:"level"  validate:"required,oneof=trace debug info warn error"`
	Format string        `koanf:"format" validate:"required,oneof=json text pretty"`
	File   LogFileConfig `koanf:"file"`
}

// LogFileConfig contains rolling log file settings.
type LogFileConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Path       string `koanf:"path"        validate:"required_if=Enabled true"`
	MaxSizeMB  int    `koanf:"max_size"    validate:"omitempty,min=1,max=1024"`
	MaxBackups int    `koanf:"max_backups" validate:"omitempty,min=0,max=100"`
	MaxAgeDays int    `koanf:"max_age"     validate:"omitempty,min=0,max=365"`
	Compress   bool   `koanf:"compress"`
}

// TelemetryConfig contains OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	Endpoint     string  `koanf:"endpoint"      validate:"required_if=Enabled true,omitempty,url"`
	ServiceName  string  `koanf:"service_name"  validate:"required_if=Enabled true"`
	SamplingRate float64 `koanf:"sampling_rate" validate:"min=0,max=1"`
	Insecure     bool    `koanf:"insecure"`
}

// AuthConfig names the gateway headers that carry the caller identity.
// Callers holding any of PrivilegedRoles may change the catalogue.
type AuthConfig struct {
	SubjectHeader   string   `koanf:"subject_header"   validate:"required"`
	RolesHeader     string   `koanf:"roles_header"     validate:"required"`
	PrivilegedRoles []string `koanf:"privileged_roles" validate:"required,min=1,dive,required"`
}

// StoreConfig contains embedded database settings.
type StoreConfig struct {
	Path           string        `koanf:"path"             validate:"required_if=InMemory false"`
	InMemory       bool          `koanf:"in_memory"`
	SyncWrites     bool          `koanf:"sync_writes"`
	GCInterval     time.Duration `koanf:"gc_interval"      validate:"omitempty,min=1m"`
	GCDiscardRatio float64       `koanf:"gc_discard_ratio" validate:"gt=0,lt=1"`
	EncryptionKey  string        `koanf:"encryption_key"   validate:"omitempty,len=16|len=24|len=32"`
	RateLimit      float64       `koanf:"rate_limit"       validate:"min=0"`
	RateBurst      int           `koanf:"rate_burst"       validate:"min=0"`
}

// RetryConfig bounds retries of store conflicts and throttling.
type RetryConfig struct {
	MaxAttempts     int           `koanf:"max_attempts"     validate:"required,min=1,max=20"`
	InitialInterval time.Duration `koanf:"initial_interval" validate:"required,min=1ms"`
	MaxInterval     time.Duration `koanf:"max_interval"     validate:"required,min=10ms"`
	Multiplier      float64       `koanf:"multiplier"       validate:"required,min=1.1,max=10"`
	JitterFactor    float64       `koanf:"jitter_factor"    validate:"min=0,max=1"`
}

// Policy converts the section to a retry.Policy.
func (r RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		MaxAttempts:     r.MaxAttempts,
		InitialInterval: r.InitialInterval,
		MaxInterval:     r.MaxInterval,
		Multiplier:      r.Multiplier,
		JitterFactor:    r.JitterFactor,
	}
}

// DetectorConfig contains duplicate detection settings.
type DetectorConfig struct {
	CandidateLimit int `koanf:"candidate_limit" validate:"required,min=1,max=10000"`
	SearchBudget   int `koanf:"search_budget"   validate:"required,min=1"`
}

// TagsConfig contains tag metadata settings.
type TagsConfig struct {
	CacheTTL           time.Duration `koanf:"cache_ttl"           validate:"required,min=100ms"`
	CascadeConcurrency int           `koanf:"cascade_concurrency" validate:"required,min=1,max=256"`
}

// PipelineConfig contains change aggregation settings.
type PipelineConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Workers         int           `koanf:"workers"           validate:"required,min=1,max=64"`
	PollInterval    time.Duration `koanf:"poll_interval"     validate:"required,min=10ms"`
	BatchSize       int           `koanf:"batch_size"        validate:"required,min=1,max=10000"`
	MaxAttempts     int           `koanf:"max_attempts"      validate:"required,min=1,max=50"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"  validate:"required,min=1s"`
	BreakerFailures int           `koanf:"breaker_failures"  validate:"min=0"`
	BreakerCooldown time.Duration `koanf:"breaker_cooldown"  validate:"required_with=BreakerFailures"`
}

// Policy returns the per-event retry policy: the shared backoff shape with
// the pipeline's own attempt budget.
func (p PipelineConfig) Policy(shared RetryConfig) retry.Policy {
	policy := shared.Policy()
	policy.MaxAttempts = p.MaxAttempts

	return policy
}

// defaults returns the default configuration values.
func defaults() map[string]any {
	return map[string]any{
		"app.name":        "quotevault",
		"app.version":     "dev",
		"app.environment": "local",

		"server.port":             DefaultServerPort,
		"server.host":             "0.0.0.0",
		"server.read_timeout":     "30s",
		"server.write_timeout":    "30s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "10s",
		"server.request_timeout":  "15s",
		"server.max_request_size": DefaultMaxRequestSize,

		"log.level":            "info",
		"log.format":           "json",
		"log.file.enabled":     false,
		"log.file.path":        "./logs/quotevault.log",
		"log.file.max_size":    DefaultLogFileMaxSizeMB,
		"log.file.max_backups": DefaultLogFileMaxBackups,
		"log.file.max_age":     DefaultLogFileMaxAgeDays,
		"log.file.compress":    true,

		"telemetry.enabled":       false,
		"telemetry.endpoint":      "",
		"telemetry.service_name":  "quotevault",
		"telemetry.sampling_rate": 1.0,
		"telemetry.insecure":      false,

		"auth.subject_header":   "X-User-ID",
		"auth.roles_header":     "X-User-Roles",
		"auth.privileged_roles": []string{"admin"},

		"store.path":             "./data/quotevault",
		"store.in_memory":        false,
		"store.sync_writes":      true,
		"store.gc_interval":      "10m",
		"store.gc_discard_ratio": 0.5,
		"store.encryption_key":   "",
		"store.rate_limit":       0.0,
		"store.rate_burst":       0,

		"retry.max_attempts":     retry.DefaultMaxAttempts,
		"retry.initial_interval": "20ms",
		"retry.max_interval":     "1s",
		"retry.multiplier":       retry.DefaultMultiplier,
		"retry.jitter_factor":    retry.DefaultJitterFactor,

		"detector.candidate_limit": DefaultCandidateLimit,
		"detector.search_budget":   DefaultSearchBudget,

		"tags.cache_ttl":           "30s",
		"tags.cascade_concurrency": DefaultCascadeConcurrency,

		"pipeline.enabled":          true,
		"pipeline.workers":          DefaultPipelineWorkers,
		"pipeline.poll_interval":    "500ms",
		"pipeline.batch_size":       DefaultPipelineBatchSize,
		"pipeline.max_attempts":     8,
		"pipeline.shutdown_timeout": "15s",
		"pipeline.breaker_failures": 5,
		"pipeline.breaker_cooldown": "30s",
	}
}

// Load loads configuration with the following precedence (highest to lowest):
//  1. Environment variables (APP_ prefix)
//  2. Profile config file (configs/{profile}.yaml)
//  3. Base config file (configs/base.yaml)
//  4. Default values
func Load(profile string) (*Config, error) {
	return LoadFrom("configs", profile)
}

// LoadFrom is Load with an explicit config directory.
func LoadFrom(dir, profile string) (*Config, error) {
	k := koanf.New(".")

	err := k.Load(confmap.Provider(defaults(), "."), nil)
	if err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	err = loadFileIfExists(k, dir+"/base.yaml")
	if err != nil {
		return nil, fmt.Errorf("loading base config: %w", err)
	}

	if profile != "" {
		err := loadFileIfExists(k, fmt.Sprintf("%s/%s.yaml", dir, profile))
		if err != nil {
			return nil, fmt.Errorf("loading profile config %q: %w", profile, err)
		}
	}

	// APP_STORE_IN__MEMORY maps to store.in_memory: a double underscore
	// keeps a literal underscore inside a key.
	err = k.Load(env.Provider("APP_", ".", envKey), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	var cfg Config

	err = k.Unmarshal("", &cfg)
	if err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return &cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, "APP_"))
	s = strings.ReplaceAll(s, "__", "\x00")
	s = strings.ReplaceAll(s, "_", ".")

	return strings.ReplaceAll(s, "\x00", "_")
}

// loadFileIfExists loads a YAML config file if it exists.
// Returns nil if the file doesn't exist, error only for parse/read failures.
func loadFileIfExists(k *koanf.Koanf, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return k.Load(file.Provider(path), yaml.Parser())
}
