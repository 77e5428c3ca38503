package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/JaimeStill/invoiceflow/internal/checkpoints"
	"github.com/JaimeStill/invoiceflow/internal/notify"
	"github.com/JaimeStill/invoiceflow/internal/workflow"
	"github.com/JaimeStill/invoiceflow/pkg/database"
	"github.com/JaimeStill/invoiceflow/pkg/serialization"
	"github.com/JaimeStill/invoiceflow/pkg/storage"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvInvoiceflowEnv             = "INVOICEFLOW_ENV"
	EnvInvoiceflowShutdownTimeout = "INVOICEFLOW_SHUTDOWN_TIMEOUT"
	EnvInvoiceflowVersion         = "INVOICEFLOW_VERSION"
)

var databaseEnv = &database.Env{
	Driver:          "INVOICEFLOW_DB_DRIVER",
	Path:            "INVOICEFLOW_DB_PATH",
	Host:            "INVOICEFLOW_DB_HOST",
	Port:            "INVOICEFLOW_DB_PORT",
	Name:            "INVOICEFLOW_DB_NAME",
	User:            "INVOICEFLOW_DB_USER",
	Password:        "INVOICEFLOW_DB_PASSWORD",
	SSLMode:         "INVOICEFLOW_DB_SSL_MODE",
	MaxOpenConns:    "INVOICEFLOW_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "INVOICEFLOW_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "INVOICEFLOW_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "INVOICEFLOW_DB_CONN_TIMEOUT",
}

var storageEnv = &storage.Env{
	Provider:         "INVOICEFLOW_STORAGE_PROVIDER",
	ContainerName:    "INVOICEFLOW_STORAGE_CONTAINER_NAME",
	ConnectionString: "INVOICEFLOW_STORAGE_CONNECTION_STRING",
	ServiceURL:       "INVOICEFLOW_STORAGE_SERVICE_URL",
}

var engineEnv = &workflow.ConfigEnv{
	MatchThreshold:   "INVOICEFLOW_ENGINE_MATCH_THRESHOLD",
	MaxAttempts:      "INVOICEFLOW_ENGINE_MAX_ATTEMPTS",
	BaseBackoff:      "INVOICEFLOW_ENGINE_BASE_BACKOFF",
	MaxBackoff:       "INVOICEFLOW_ENGINE_MAX_BACKOFF",
	ToolTimeout:      "INVOICEFLOW_ENGINE_TOOL_TIMEOUT",
	AutoApproveLimit: "INVOICEFLOW_ENGINE_AUTO_APPROVE_LIMIT",
	EscalationMode:   "INVOICEFLOW_ENGINE_ESCALATION_MODE",
	ReviewBaseURL:    "INVOICEFLOW_ENGINE_REVIEW_BASE_URL",
	PaymentTermsDays: "INVOICEFLOW_ENGINE_PAYMENT_TERMS_DAYS",
	DefaultCurrency:  "INVOICEFLOW_ENGINE_DEFAULT_CURRENCY",
}

var checkpointsEnv = &checkpoints.Env{
	Backend: "INVOICEFLOW_CHECKPOINTS_BACKEND",
	Serialization: &serialization.Env{
		Codec:         "INVOICEFLOW_CHECKPOINTS_CODEC",
		Compression:   "INVOICEFLOW_CHECKPOINTS_COMPRESSION",
		EncryptionKey: "INVOICEFLOW_CHECKPOINTS_ENCRYPTION_KEY",
	},
}

var notifyEnv = &notify.Env{
	Endpoint: "INVOICEFLOW_NOTIFY_ENDPOINT",
	Source:   "INVOICEFLOW_NOTIFY_SOURCE",
	Timeout:  "INVOICEFLOW_NOTIFY_TIMEOUT",
}

// Config is the root configuration for the invoiceflow service and CLI.
type Config struct {
	Server          ServerConfig       `toml:"server"`
	Database        database.Config    `toml:"database"`
	Storage         storage.Config     `toml:"storage"`
	API             APIConfig          `toml:"api"`
	Engine          workflow.Config    `toml:"engine"`
	Checkpoints     checkpoints.Config `toml:"checkpoints"`
	Tools           ToolsConfig        `toml:"tools"`
	Notify          notify.Config      `toml:"notify"`
	Logging         LoggingConfig      `toml:"logging"`
	ShutdownTimeout string             `toml:"shutdown_timeout"`
	Version         string             `toml:"version"`
}

// Env returns the INVOICEFLOW_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvInvoiceflowEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// UsesDatabase reports whether run state is kept in the SQL database.
func (c *Config) UsesDatabase() bool {
	return c.Checkpoints.Backend == checkpoints.BackendDatabase
}

// Load reads the base config (if present), applies any environment overlay,
// and finalizes all values. If no config.toml exists, defaults and environment
// variables provide all configuration.
func Load() (*Config, error) {
	return LoadFile(BaseConfigFile)
}

// LoadFile is Load with an explicit base config path. The overlay is looked
// up next to the working directory as with Load.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(path); err == nil {
		loaded, err := load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if overlay := overlayPath(); overlay != "" {
		o, err := load(overlay)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", overlay, err)
		}
		cfg.Merge(o)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Server.Merge(&overlay.Server)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.API.Merge(&overlay.API)
	c.Engine.Merge(&overlay.Engine)
	c.Checkpoints.Merge(&overlay.Checkpoints)
	c.Tools.Merge(&overlay.Tools)
	c.Notify.Merge(&overlay.Notify)
	c.Logging.Merge(&overlay.Logging)
}

func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Checkpoints.Finalize(checkpointsEnv); err != nil {
		return fmt.Errorf("checkpoints: %w", err)
	}
	if c.UsesDatabase() {
		if err := c.Database.Finalize(databaseEnv); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if err := c.Storage.Finalize(storageEnv); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.API.Finalize(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if err := c.Engine.Finalize(engineEnv); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if err := c.Tools.Finalize(); err != nil {
		return fmt.Errorf("tools: %w", err)
	}
	if err := c.Notify.Finalize(notifyEnv); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	if err := c.Logging.Finalize(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvInvoiceflowShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvInvoiceflowVersion); v != "" {
		c.Version = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func overlayPath() string {
	if env := os.Getenv(EnvInvoiceflowEnv); env != "" {
		path := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
