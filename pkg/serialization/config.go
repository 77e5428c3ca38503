package serialization

import (
	"encoding/hex"
	"fmt"
	"os"
)

// Config selects the codec, compression, and optional encryption key used
// to encode snapshots. EncryptionKey is hex encoded (32 bytes for AES-256).
type Config struct {
	Codec         string `toml:"codec"`
	Compression   string `toml:"compression"`
	EncryptionKey string `toml:"encryption_key"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Codec         string
	Compression   string
	EncryptionKey string
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.Codec != "" {
		c.Codec = overlay.Codec
	}
	if overlay.Compression != "" {
		c.Compression = overlay.Compression
	}
	if overlay.EncryptionKey != "" {
		c.EncryptionKey = overlay.EncryptionKey
	}
}

// Key decodes EncryptionKey. It returns nil when no key is configured.
func (c *Config) Key() []byte {
	if c.EncryptionKey == "" {
		return nil
	}
	key, _ := hex.DecodeString(c.EncryptionKey)
	return key
}

func (c *Config) loadDefaults() {
	if c.Codec == "" {
		c.Codec = CodecMsgPack
	}
	if c.Compression == "" {
		c.Compression = string(CompressionZstd)
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Codec != "" {
		if v := os.Getenv(env.Codec); v != "" {
			c.Codec = v
		}
	}
	if env.Compression != "" {
		if v := os.Getenv(env.Compression); v != "" {
			c.Compression = v
		}
	}
	if env.EncryptionKey != "" {
		if v := os.Getenv(env.EncryptionKey); v != "" {
			c.EncryptionKey = v
		}
	}
}

func (c *Config) validate() error {
	if _, err := codecByName(c.Codec); err != nil {
		return err
	}
	switch Compression(c.Compression) {
	case CompressionNone, CompressionGzip, CompressionZstd:
	default:
		return fmt.Errorf("unsupported compression: %s", c.Compression)
	}
	if c.EncryptionKey != "" {
		key, err := hex.DecodeString(c.EncryptionKey)
		if err != nil {
			return fmt.Errorf("invalid encryption_key: %w", err)
		}
		switch len(key) {
		case 16, 24, 32:
		default:
			return fmt.Errorf("encryption_key must be 16, 24, or 32 bytes, got %d", len(key))
		}
	}
	return nil
}
