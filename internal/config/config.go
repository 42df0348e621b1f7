// Package config provides stockqa configuration loaded from environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const logPrefix = "config:LoadConfig"

// History store backends.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Market-data transports.
const (
	TransportProcess = "process"
	TransportNATS    = "nats"
	TransportNone    = "none"
)

// Config holds stockqa configuration.
type Config struct {
	// COMMS: connect to standalone NATS at COMMSURL.
	COMMSURL  string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName string `envconfig:"SERVICE_NAME" default:"stockqa"`

	// History store
	Store         string `envconfig:"STOCKQA_STORE" default:"sqlite"`
	SQLitePath    string `envconfig:"SQLITE_PATH" default:"chat_history.db"`
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	// MigrationPath is a directory of .sql files; empty uses the embedded migrations.
	MigrationPath string `envconfig:"MIGRATION_PATH"`
	HistoryWindow int    `envconfig:"HISTORY_WINDOW" default:"10"`

	// Local knowledge
	DatasetPath string `envconfig:"DATASET_PATH" default:"stock_market_data.csv"`
	SymbolsFile string `envconfig:"SYMBOLS_FILE"`
	// PreferQuery makes the resolver look at the current query before the history.
	PreferQuery      bool `envconfig:"RESOLVER_PREFER_QUERY" default:"false"`
	MaxDocumentChars int  `envconfig:"MAX_DOCUMENT_CHARS" default:"12000"`

	// Language model
	LLMProvider    string        `envconfig:"LLM_PROVIDER" default:"groq"`
	GroqAPIKey     string        `envconfig:"GROQ_API_KEY"`
	OpenAIAPIKey   string        `envconfig:"OPENAI_API_KEY"`
	GeminiAPIKey   string        `envconfig:"GEMINI_API_KEY"`
	LLMBaseURL     string        `envconfig:"LLM_BASE_URL"`
	LLMModel       string        `envconfig:"LLM_MODEL"`
	LLMTemperature float64       `envconfig:"LLM_TEMPERATURE" default:"0.7"`
	LLMMaxTokens   int           `envconfig:"LLM_MAX_TOKENS" default:"500"`
	LLMTimeout     time.Duration `envconfig:"LLM_TIMEOUT" default:"60s"`

	// Market-data service
	MarketDataTransport string        `envconfig:"MARKETDATA_TRANSPORT" default:"process"`
	MarketDataCommand   string        `envconfig:"MARKETDATA_COMMAND" default:"marketdata stdio"`
	MarketDataSubject   string        `envconfig:"MARKETDATA_SUBJECT" default:"stockqa.marketdata.v1"`
	MarketDataTimeout   time.Duration `envconfig:"MARKETDATA_TIMEOUT" default:"30s"`
	MarketDataVersion   string        `envconfig:"MARKETDATA_VERSION" default:"^1.0.0"`
	YahooBaseURL        string        `envconfig:"YAHOO_BASE_URL" default:"https://query1.finance.yahoo.com"`
	ProviderTimeout     time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"20s"`

	// Route events
	EventsEnabled bool   `envconfig:"EVENTS_ENABLED" default:"false"`
	EventSubject  string `envconfig:"STOCKQA_EVENT_SUBJECT"`

	// HTTP API (HTTP_ADDR preferred, e.g. "0.0.0.0:8080")
	HTTPAddr           string        `envconfig:"HTTP_ADDR"`
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`
	MaxUploadBytes     int64         `envconfig:"MAX_UPLOAD_BYTES" default:"20971520"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	c.Store = strings.ToLower(c.Store)
	c.LLMProvider = strings.ToLower(c.LLMProvider)
	c.MarketDataTransport = strings.ToLower(c.MarketDataTransport)
	return &c, nil
}

// LLMAPIKey returns the key for the selected provider.
func (c *Config) LLMAPIKey() string {
	switch c.LLMProvider {
	case "openai":
		return c.OpenAIAPIKey
	case "gemini":
		return c.GeminiAPIKey
	default:
		return c.GroqAPIKey
	}
}

// ListenAddr returns HTTP_ADDR, or all interfaces on HTTP_PORT.
func (c *Config) ListenAddr() string {
	if c.HTTPAddr != "" {
		return c.HTTPAddr
	}
	return fmt.Sprintf("0.0.0.0:%d", c.HTTPPort)
}

// ValidateForAsk checks the config needed to route queries (ask, chat).
func (c *Config) ValidateForAsk() error {
	switch c.Store {
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%s - SQLITE_PATH is required for the sqlite store", logPrefix)
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%s - DATABASE_URL is required for the postgres store", logPrefix)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("%s - STOCKQA_STORE must be sqlite, postgres or memory, got %q", logPrefix, c.Store)
	}

	switch c.LLMProvider {
	case "groq", "openai", "gemini":
	default:
		return fmt.Errorf("%s - LLM_PROVIDER must be groq, openai or gemini, got %q", logPrefix, c.LLMProvider)
	}
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("%s - LLM_TIMEOUT must be positive", logPrefix)
	}
	if c.HistoryWindow <= 0 {
		return fmt.Errorf("%s - HISTORY_WINDOW must be positive", logPrefix)
	}

	switch c.MarketDataTransport {
	case TransportProcess:
		if strings.TrimSpace(c.MarketDataCommand) == "" {
			return fmt.Errorf("%s - MARKETDATA_COMMAND is required for the process transport", logPrefix)
		}
	case TransportNATS:
		if c.COMMSURL == "" || c.MarketDataSubject == "" {
			return fmt.Errorf("%s - COMMS_URL and MARKETDATA_SUBJECT are required for the nats transport", logPrefix)
		}
	case TransportNone:
	default:
		return fmt.Errorf("%s - MARKETDATA_TRANSPORT must be process, nats or none, got %q", logPrefix, c.MarketDataTransport)
	}
	if c.MarketDataTimeout <= 0 {
		return fmt.Errorf("%s - MARKETDATA_TIMEOUT must be positive", logPrefix)
	}
	if c.EventsEnabled && c.COMMSURL == "" {
		return fmt.Errorf("%s - COMMS_URL is required when EVENTS_ENABLED is set", logPrefix)
	}
	return nil
}

// ValidateForServe checks required config when running the HTTP API.
func (c *Config) ValidateForServe() error {
	if err := c.ValidateForAsk(); err != nil {
		return err
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("%s - MAX_UPLOAD_BYTES must be positive", logPrefix)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}

// ValidateForMarketData checks the config of the market-data service process.
func (c *Config) ValidateForMarketData(mode string) error {
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("%s - PROVIDER_TIMEOUT must be positive", logPrefix)
	}
	if mode == TransportNATS && (c.COMMSURL == "" || c.MarketDataSubject == "") {
		return fmt.Errorf("%s - COMMS_URL and MARKETDATA_SUBJECT are required for nats mode", logPrefix)
	}
	return nil
}
