package config

import (
	"fmt"
	"os"

	"github.com/JaimeStill/invoiceflow/internal/tools"
)

const EnvToolsFile = "INVOICEFLOW_TOOLS_FILE"

// ToolsConfig locates the tool registry file. Without a file the builtin
// tool set is registered.
type ToolsConfig struct {
	File string `toml:"file"`
}

// Descriptors loads the configured registry file or returns the builtin set.
func (c *ToolsConfig) Descriptors() ([]tools.Descriptor, error) {
	if c.File == "" {
		return tools.Defaults(), nil
	}
	return tools.LoadFile(c.File)
}

// Finalize applies environment variable overrides and validation.
func (c *ToolsConfig) Finalize() error {
	if v := os.Getenv(EnvToolsFile); v != "" {
		c.File = v
	}
	if c.File == "" {
		return nil
	}
	if _, err := os.Stat(c.File); err != nil {
		return fmt.Errorf("registry file: %w", err)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay.
func (c *ToolsConfig) Merge(overlay *ToolsConfig) {
	if overlay.File != "" {
		c.File = overlay.File
	}
}
