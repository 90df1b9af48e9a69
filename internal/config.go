package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/makepost/corenote/internal/retention"
	"github.com/makepost/corenote/internal/storage"
	"github.com/makepost/corenote/internal/transport"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Store drivers.
const (
	StoreDriverFS = "fs"
	StoreDriverS3 = "s3"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Store     StoreConfig       `yaml:"store"`
	Index     IndexConfig       `yaml:"index"`
	Auth      AuthConfig        `yaml:"auth"`
	RateLimit RateLimitConfig   `yaml:"rate_limit"`
	Client    ClientConfig      `yaml:"client"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Index.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.RateLimit.Validate(); err != nil {
		return err
	}
	return c.Client.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	// LogFile, when set, receives the logs through a rotating writer.
	LogFile string     `yaml:"log_file"`
	HTTP    HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StoreConfig selects where the server keeps note versions.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	// Path is the root directory of the fs driver.
	Path string `yaml:"path"`
	// Watch announces external edits of Path to SSE subscribers.
	Watch bool     `yaml:"watch"`
	S3    S3Config `yaml:"s3"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	if c.Driver == "" {
		c.Driver = StoreDriverFS
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(StoreDriverFS, StoreDriverS3)),
		validation.Field(&c.Path, validation.When(c.Driver == StoreDriverFS, validation.Required)),
	); err != nil {
		return err
	}
	if c.Driver == StoreDriverS3 {
		return c.S3.Validate()
	}
	return nil
}

// S3Config holds the settings of the s3 driver.
type S3Config struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
	Prefix          string `yaml:"prefix"`
}

// Validate validates the S3 configuration.
func (c *S3Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Endpoint, is.URL),
		validation.Field(&c.Region, validation.Required),
		validation.Field(&c.Bucket, validation.Required),
	)
}

// Storage converts the configuration for the storage package.
func (c *S3Config) Storage() storage.S3Config {
	return storage.S3Config{
		Endpoint:        c.Endpoint,
		Region:          c.Region,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		Bucket:          c.Bucket,
		Prefix:          c.Prefix,
		UsePathStyle:    c.UsePathStyle,
	}
}

// IndexConfig holds the SQLite search index of the server.
// An empty Path disables search.
type IndexConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the index configuration.
func (c *IndexConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Length(0, 4096)),
	)
}

// Enabled reports whether search is available.
func (c *IndexConfig) Enabled() bool {
	return c.Path != ""
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// RateLimitConfig throttles requests per client IP. RPS 0 disables it.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Validate validates the rate limit configuration.
func (c *RateLimitConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.RPS, validation.Min(0.0)),
		validation.Field(&c.Burst, validation.When(c.RPS > 0, validation.Required, validation.Min(1))),
	)
}

// Enabled reports whether requests are throttled.
func (c *RateLimitConfig) Enabled() bool {
	return c.RPS > 0
}

// ClientConfig holds the settings of the sync client.
type ClientConfig struct {
	ServerURL string `yaml:"server_url"`
	// Token is sent as a Bearer token; defaults to auth.token.
	Token     string `yaml:"token"`
	CachePath string `yaml:"cache_path"`
	// DraftPath is the file the client watches for edits.
	DraftPath   string        `yaml:"draft_path"`
	Debounce    time.Duration `yaml:"debounce"`
	UndoAge     time.Duration `yaml:"undo_age"`
	Undos       int           `yaml:"undos"`
	Retry       RetryConfig   `yaml:"retry"`
	AlertWindow time.Duration `yaml:"alert_window"`
}

// Validate validates the client configuration.
func (c *ClientConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.ServerURL, validation.Required, is.URL),
		validation.Field(&c.CachePath, validation.Required),
		validation.Field(&c.DraftPath, validation.Required),
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
		validation.Field(&c.UndoAge, validation.Min(time.Duration(0))),
		validation.Field(&c.Undos, validation.Min(0)),
		validation.Field(&c.AlertWindow, validation.Min(time.Duration(0))),
	); err != nil {
		return err
	}
	return c.Retry.Validate()
}

// Retention returns the retention policy of the client.
func (c *ClientConfig) Retention() retention.Policy {
	p := retention.DefaultPolicy()
	if c.Undos > 0 {
		p.Undos = c.Undos
	}
	if c.UndoAge > 0 {
		p.UndoAge = c.UndoAge
	}
	return p
}

// RetryConfig controls the retrying transport. Retries -1 disables retries.
type RetryConfig struct {
	Retries        int           `yaml:"retries"`
	InitialDelay   time.Duration `yaml:"initial_delay"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
}

// Validate validates the retry configuration.
func (c *RetryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Retries, validation.Min(-1), validation.Max(16)),
		validation.Field(&c.InitialDelay, validation.Min(time.Duration(0))),
		validation.Field(&c.AttemptTimeout, validation.Min(time.Duration(0))),
	)
}

// Transport converts the configuration for the transport package.
func (c *RetryConfig) Transport() transport.Config {
	return transport.Config{
		Retries:        c.Retries,
		InitialDelay:   c.InitialDelay,
		AttemptTimeout: c.AttemptTimeout,
	}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	tc := transport.DefaultConfig()
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Store: StoreConfig{
			Driver: StoreDriverFS,
			Path:   "./notes",
			Watch:  true,
			S3: S3Config{
				Region: "us-east-1",
			},
		},
		Index: IndexConfig{
			Path: "./corenote-index.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		RateLimit: RateLimitConfig{
			RPS:   20,
			Burst: 40,
		},
		Client: ClientConfig{
			ServerURL:   "http://localhost:8080",
			CachePath:   "./corenote-cache.db",
			DraftPath:   "./draft.txt",
			Debounce:    5 * time.Second,
			UndoAge:     retention.DefaultUndoAge,
			Undos:       retention.DefaultUndos,
			AlertWindow: transport.DefaultAlertWindow,
			Retry: RetryConfig{
				Retries:        tc.Retries,
				InitialDelay:   tc.InitialDelay,
				AttemptTimeout: tc.AttemptTimeout,
			},
		},
	}
}
