// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (./config.yaml or ~/.lumen/config.yaml)
//  3. Default values
//
// Sensitive values (database password, JWT secret) are masked in MarshalJSON
// and String so the config can be logged safely. Validation is fail-fast:
// Load returns an error before the process wires anything else.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration validation.
var (
	// ErrInvalidEnvironment indicates an unknown deployment environment name.
	ErrInvalidEnvironment = errors.New("invalid environment")

	// ErrInvalidModelName indicates the model name is empty.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidStoreBackend indicates an unknown session store backend.
	ErrInvalidStoreBackend = errors.New("invalid store backend")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPort indicates the HTTP port is out of range.
	ErrInvalidPort = errors.New("invalid HTTP port")

	// ErrMissingJWTSecret indicates the JWT signing secret is not set.
	ErrMissingJWTSecret = errors.New("missing JWT secret")

	// ErrInvalidJWTSecret indicates the JWT signing secret is too short.
	ErrInvalidJWTSecret = errors.New("invalid JWT secret")

	// ErrInvalidContextWindow indicates max_context_messages is negative.
	ErrInvalidContextWindow = errors.New("invalid context window")
)

// Deployment environment identifiers used in Config.Environment.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Session store backend identifiers used in Config.Store.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// minJWTSecretLen is the minimum accepted HS256 signing secret length.
const minJWTSecretLen = 32

// Config stores application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON; when adding a new
// secret field, update MarshalJSON as well.
type Config struct {
	// Deployment environment: "development" or "production". Controls log
	// format and whether internal error details are exposed to clients.
	Environment string `mapstructure:"environment" json:"environment"`

	// HTTP server
	Port        int      `mapstructure:"port" json:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`

	// Model configuration. The Gemini API key is read from GEMINI_API_KEY
	// by the Genkit plugin directly, never via this struct.
	ModelName string `mapstructure:"model_name" json:"model_name"`

	// MaxContextMessages bounds how many prior messages are rendered into
	// the model prompt per turn. 0 disables the window (full history).
	MaxContextMessages int `mapstructure:"max_context_messages" json:"max_context_messages"`

	// Session store backend: "postgres" (default) or "memory" (dev only).
	Store string `mapstructure:"store" json:"store"`

	// PostgreSQL connection (see storage.go for DSN assembly and the
	// DATABASE_URL override).
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Auth
	GoogleClientID string `mapstructure:"google_client_id" json:"google_client_id"`
	JWTSecret      string `mapstructure:"jwt_secret" json:"jwt_secret"` // SENSITIVE
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".lumen")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(configDir)

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{".", configDir})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", EnvDevelopment)
	v.SetDefault("port", 3001)
	v.SetDefault("cors_origins", []string{"http://localhost:5173"})

	v.SetDefault("model_name", "gemini-2.5-flash")
	v.SetDefault("max_context_messages", 100)

	v.SetDefault("store", StorePostgres)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "lumen")
	v.SetDefault("postgres_password", "lumen_dev_password")
	v.SetDefault("postgres_db_name", "lumen")
	v.SetDefault("postgres_ssl_mode", "disable")
}

// bindEnvVariables binds environment variables explicitly.
// GEMINI_API_KEY is intentionally absent: the Genkit GoogleAI plugin reads
// it directly from the process environment.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a failure here is a bug.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("environment", "LUMEN_ENVIRONMENT")
	mustBind("port", "LUMEN_PORT")
	mustBind("cors_origins", "LUMEN_CORS_ORIGINS")
	mustBind("model_name", "LUMEN_MODEL_NAME")
	mustBind("max_context_messages", "LUMEN_MAX_CONTEXT_MESSAGES")
	mustBind("store", "LUMEN_STORE")
	mustBind("google_client_id", "GOOGLE_CLIENT_ID")
	mustBind("jwt_secret", "LUMEN_JWT_SECRET")
}

// Validate performs fail-fast validation of the loaded configuration.
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvProduction:
	default:
		return fmt.Errorf("%w: %q (want %q or %q)",
			ErrInvalidEnvironment, c.Environment, EnvDevelopment, EnvProduction)
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}

	if c.ModelName == "" {
		return ErrInvalidModelName
	}

	if c.MaxContextMessages < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidContextWindow, c.MaxContextMessages)
	}

	switch c.Store {
	case StorePostgres:
		if c.PostgresHost == "" {
			return ErrInvalidPostgresHost
		}
		if c.PostgresPort < 1 || c.PostgresPort > 65535 {
			return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
		}
	case StoreMemory:
		// No storage settings required.
	default:
		return fmt.Errorf("%w: %q (want %q or %q)",
			ErrInvalidStoreBackend, c.Store, StorePostgres, StoreMemory)
	}

	return nil
}

// ValidateServe checks the additional settings the HTTP server requires.
// Kept separate from Validate so offline tooling (migrations) can load a
// config without a signing secret.
func (c *Config) ValidateServe() error {
	if c.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	if len(c.JWTSecret) < minJWTSecretLen {
		return fmt.Errorf("%w: need at least %d bytes", ErrInvalidJWTSecret, minJWTSecretLen)
	}
	return nil
}

// IsDevelopment reports whether the process runs in the development
// environment, where internal error details are exposed to clients.
func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Short secrets are fully
// masked; longer ones keep the first and last two characters for debugging.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.JWTSecret = maskSecret(a.JWTSecret)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
