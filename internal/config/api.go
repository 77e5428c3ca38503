package config

import (
	"fmt"
	"os"

	"github.com/JaimeStill/invoiceflow/pkg/formatting"
	"github.com/JaimeStill/invoiceflow/pkg/middleware"
	"github.com/JaimeStill/invoiceflow/pkg/openapi"
	"github.com/JaimeStill/invoiceflow/pkg/pagination"
)

var corsEnv = &middleware.CORSEnv{
	Enabled:          "INVOICEFLOW_CORS_ENABLED",
	Origins:          "INVOICEFLOW_CORS_ORIGINS",
	AllowedMethods:   "INVOICEFLOW_CORS_ALLOWED_METHODS",
	AllowedHeaders:   "INVOICEFLOW_CORS_ALLOWED_HEADERS",
	AllowCredentials: "INVOICEFLOW_CORS_ALLOW_CREDENTIALS",
	MaxAge:           "INVOICEFLOW_CORS_MAX_AGE",
}

var paginationEnv = &pagination.ConfigEnv{
	DefaultPageSize: "INVOICEFLOW_PAGINATION_DEFAULT_PAGE_SIZE",
	MaxPageSize:     "INVOICEFLOW_PAGINATION_MAX_PAGE_SIZE",
}

var authEnv = &middleware.AuthEnv{
	Enabled:  "INVOICEFLOW_AUTH_ENABLED",
	Issuer:   "INVOICEFLOW_AUTH_ISSUER",
	ClientID: "INVOICEFLOW_AUTH_CLIENT_ID",
	JWKSURL:  "INVOICEFLOW_AUTH_JWKS_URL",
}

var openapiEnv = &openapi.ConfigEnv{
	Title:       "INVOICEFLOW_OPENAPI_TITLE",
	Description: "INVOICEFLOW_OPENAPI_DESCRIPTION",
}

// APIConfig holds API routing, CORS, auth, pagination, and OpenAPI settings.
type APIConfig struct {
	BasePath    string                `toml:"base_path"`
	MaxBodySize string                `toml:"max_body_size"`
	CORS        middleware.CORSConfig `toml:"cors"`
	Auth        middleware.AuthConfig `toml:"auth"`
	Pagination  pagination.Config     `toml:"pagination"`
	OpenAPI     openapi.Config        `toml:"openapi"`
}

// MaxBodySizeBytes returns MaxBodySize in bytes. Invoice payloads may carry
// base64 attachments, so the limit is generous.
func (c *APIConfig) MaxBodySizeBytes() int64 {
	size, err := formatting.ParseBytes(c.MaxBodySize)
	if err != nil {
		return 50 * 1024 * 1024 // 50MB fallback
	}
	return size
}

// Finalize applies defaults, environment variable overrides, and validation
// for the API config and its nested configs.
func (c *APIConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if _, err := formatting.ParseBytes(c.MaxBodySize); err != nil {
		return fmt.Errorf("invalid max_body_size: %w", err)
	}
	if err := c.CORS.Finalize(corsEnv); err != nil {
		return fmt.Errorf("cors: %w", err)
	}
	if err := c.Auth.Finalize(authEnv); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := c.Pagination.Finalize(paginationEnv); err != nil {
		return fmt.Errorf("pagination: %w", err)
	}
	if err := c.OpenAPI.Finalize(openapiEnv); err != nil {
		return fmt.Errorf("openapi: %w", err)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay across nested configs.
func (c *APIConfig) Merge(overlay *APIConfig) {
	if overlay.BasePath != "" {
		c.BasePath = overlay.BasePath
	}
	if overlay.MaxBodySize != "" {
		c.MaxBodySize = overlay.MaxBodySize
	}

	c.CORS.Merge(&overlay.CORS)
	c.Auth.Merge(&overlay.Auth)
	c.Pagination.Merge(&overlay.Pagination)
	c.OpenAPI.Merge(&overlay.OpenAPI)
}

func (c *APIConfig) loadDefaults() {
	if c.BasePath == "" {
		c.BasePath = "/api"
	}
	if c.MaxBodySize == "" {
		c.MaxBodySize = "50MB"
	}
}

func (c *APIConfig) loadEnv() {
	if v := os.Getenv("INVOICEFLOW_API_BASE_PATH"); v != "" {
		c.BasePath = v
	}
	if v := os.Getenv("INVOICEFLOW_API_MAX_BODY_SIZE"); v != "" {
		c.MaxBodySize = v
	}
}
