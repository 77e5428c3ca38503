package checkpoints

import (
	"fmt"
	"os"

	"github.com/JaimeStill/invoiceflow/pkg/serialization"
)

// Store backends.
const (
	BackendDatabase = "database"
	BackendMemory   = "memory"
)

// Config selects the store backend and how run state is encoded at rest.
type Config struct {
	Backend       string               `toml:"backend"`
	Serialization serialization.Config `toml:"serialization"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Backend       string
	Serialization *serialization.Env
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()

	var serEnv *serialization.Env
	if env != nil {
		c.loadEnv(env)
		serEnv = env.Serialization
	}

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Serialization.Finalize(serEnv); err != nil {
		return fmt.Errorf("serialization: %w", err)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.Backend != "" {
		c.Backend = overlay.Backend
	}
	c.Serialization.Merge(&overlay.Serialization)
}

func (c *Config) loadDefaults() {
	if c.Backend == "" {
		c.Backend = BackendDatabase
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Backend != "" {
		if v := os.Getenv(env.Backend); v != "" {
			c.Backend = v
		}
	}
}

func (c *Config) validate() error {
	switch c.Backend {
	case BackendDatabase, BackendMemory:
		return nil
	default:
		return fmt.Errorf("unsupported backend %q: must be %s or %s", c.Backend, BackendDatabase, BackendMemory)
	}
}
