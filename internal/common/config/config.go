// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App          AppConfig               `mapstructure:"app"`
	Camunda      CamundaConfig           `mapstructure:"camunda"`
	Database     DatabaseConfig          `mapstructure:"database"`
	Workers      map[string]WorkerConfig `mapstructure:"workers"`
	Admission    AdmissionConfig         `mapstructure:"admission"`
	Payment      PaymentConfig           `mapstructure:"payment"`
	API          APIConfig               `mapstructure:"api"`
	Integrations IntegrationConfig       `mapstructure:"integrations"`
	Logging      LoggingConfig           `mapstructure:"logging"`
	Tracing      TracingConfig           `mapstructure:"tracing"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	Addresses       []string `mapstructure:"addresses"`
	Username        string   `mapstructure:"username"`
	Password        string   `mapstructure:"password"`
	AdmissionsIndex string   `mapstructure:"admissions_index"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// --- Admission pipeline ---

// AdmissionConfig holds draft lifecycle settings.
type AdmissionConfig struct {
	DraftCacheTTL int           `mapstructure:"draft_cache_ttl"` // milliseconds, 0 disables caching
	Sections      SectionConfig `mapstructure:"sections"`
	Reaper        ReaperConfig  `mapstructure:"reaper"`
}

type SectionConfig struct {
	RegistryPath string `mapstructure:"registry_path"` // optional JSON schema registry
}

type ReaperConfig struct {
	Retention int `mapstructure:"retention"` // milliseconds
	Interval  int `mapstructure:"interval"`  // milliseconds, 0 runs once
}

// PaymentConfig holds the gateway client settings.
type PaymentConfig struct {
	Gateway       GatewayConfig `mapstructure:"gateway"`
	FallbackToken string        `mapstructure:"fallback_token"` // sandbox only
}

type GatewayConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	SecretKey string `mapstructure:"secret_key"`
	Timeout   int    `mapstructure:"timeout"` // milliseconds
}

// APIConfig holds the HTTP API settings.
type APIConfig struct {
	Address        string `mapstructure:"address"`
	DisableReqLogs bool   `mapstructure:"disable_request_logs"`
}

// IntegrationConfig holds settings for AWS notification channels.
type IntegrationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
		SES    struct {
			Enabled   bool   `mapstructure:"enabled"`
			FromEmail string `mapstructure:"from_email"`
		} `mapstructure:"ses"`
		SNS struct {
			Enabled        bool   `mapstructure:"enabled"`
			IntegrityTopic string `mapstructure:"integrity_topic_arn"`
		} `mapstructure:"sns"`
	} `mapstructure:"aws"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// TracingConfig selects the span exporter: "none" (spans are recorded but not exported),
// "stdout" or "otlp". An empty value means "none".
type TracingConfig struct {
	Exporter    string  `mapstructure:"exporter"`
	Endpoint    string  `mapstructure:"endpoint"` // otlp collector, host:port
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"` // 0 samples everything
}
