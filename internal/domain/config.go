package domain

import "time"

// Config holds the complete CardioRisk configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Tier selects the default infrastructure stack
	Tier Tier `json:"tier" mapstructure:"tier"`

	// Model artifacts and the inference pipeline
	Artifacts ArtifactConfig `json:"artifacts" mapstructure:"artifacts"`
	Pipeline  PipelineConfig `json:"pipeline" mapstructure:"pipeline"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" mapstructure:"repository"`
	Cache      CacheConfig      `json:"cache" mapstructure:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" mapstructure:"eventBus"`
	Worker     WorkerConfig     `json:"worker" mapstructure:"worker"`

	// Observability
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string `json:"host" mapstructure:"host"`
	Port           int    `json:"port" mapstructure:"port"`
	ReadTimeout    int    `json:"readTimeout" mapstructure:"readTimeout"`   // seconds
	WriteTimeout   int    `json:"writeTimeout" mapstructure:"writeTimeout"` // seconds
	MaxUploadBytes int64  `json:"maxUploadBytes" mapstructure:"maxUploadBytes"`
}

// ArtifactConfig locates the trained model artifacts.
type ArtifactConfig struct {
	Dir string `json:"dir" mapstructure:"dir"`

	// EncodingFile overrides the built-in categorical encoding table.
	EncodingFile string `json:"encodingFile" mapstructure:"encodingFile"`
}

// PipelineConfig tunes the inference pipeline.
type PipelineConfig struct {
	// Workers bounds per-row preparation concurrency in a batch.
	Workers int `json:"workers" mapstructure:"workers"`

	// HighRiskThreshold is the probability (percent) above which a result is High.
	HighRiskThreshold float64 `json:"highRiskThreshold" mapstructure:"highRiskThreshold"`
}

// WorkerConfig controls the asynchronous scoring worker.
type WorkerConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	ServiceName string `json:"serviceName" mapstructure:"serviceName"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite, channels and an in-process LRU.
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL, NATS and Redis.
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           5000,
			ReadTimeout:    30,
			WriteTimeout:   30,
			MaxUploadBytes: 10 << 20,
		},
		Tier: TierCommunity,
		Artifacts: ArtifactConfig{
			Dir: "./artifacts",
		},
		Pipeline: PipelineConfig{
			Workers:           8,
			HighRiskThreshold: 50,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./cardiorisk.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Worker: WorkerConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "cardiorisk",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "cardiorisk",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
		NATSQueueGroup:    "cardiorisk-scorers",
	}
	cfg.Tracing.Enabled = true
	return cfg
}
