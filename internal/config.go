package internal

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/linkmend/internal/index"
	"github.com/starford/linkmend/internal/repair"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Workspace WorkspaceConfig   `yaml:"workspace"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Auth      AuthConfig        `yaml:"auth"`
	Search    SearchConfig      `yaml:"search"`
	Watch     WatchConfig       `yaml:"watch"`
	Scan      ScanConfig        `yaml:"scan"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{&c.App, &c.Workspace, &c.SQLite, &c.Auth, &c.Search, &c.Watch, &c.Scan} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
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

// WorkspaceConfig holds the documents root and the directory names skipped
// while walking it.
type WorkspaceConfig struct {
	Path    string   `yaml:"path"`
	Exclude []string `yaml:"exclude"`
}

// Validate validates the workspace configuration.
func (c *WorkspaceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Exclude, validation.Each(validation.Required, validation.By(plainName))),
	)
}

func plainName(value interface{}) error {
	s, _ := value.(string)
	if strings.ContainsAny(s, `/\`) {
		return validation.NewError("validation_plain_name", "must be a directory name, not a path")
	}
	return nil
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
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

// SearchConfig tunes candidate search. Formats maps a document extension to
// the alternative extensions tried for it; an empty map means the defaults.
type SearchConfig struct {
	MaxResults int                 `yaml:"max_results"`
	Formats    map[string][]string `yaml:"formats"`
}

// Validate validates the search configuration.
func (c *SearchConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.MaxResults, validation.Min(0)),
	); err != nil {
		return err
	}
	for ext, alts := range c.Formats {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("search: format %q must start with a dot", ext)
		}
		for _, alt := range alts {
			if !strings.HasPrefix(alt, ".") {
				return fmt.Errorf("search: alternative %q for %s must start with a dot", alt, ext)
			}
		}
	}
	return nil
}

// FormatMap returns the configured formats or the defaults.
func (c *SearchConfig) FormatMap() map[string][]string {
	if len(c.Formats) == 0 {
		return repair.DefaultFormats()
	}
	return c.Formats
}

// WatchConfig controls the filesystem watcher.
type WatchConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Debounce          time.Duration `yaml:"debounce"`
	UpdateLinksOnMove bool          `yaml:"update_links_on_move"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
	)
}

// ScanConfig controls the periodic broken-link scan. A zero interval
// disables it.
type ScanConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// Validate validates the scan configuration.
func (c *ScanConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Interval, validation.When(c.Interval != 0, validation.Min(time.Second))),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Workspace: WorkspaceConfig{
			Path:    "./docs",
			Exclude: []string{".git", "node_modules", ".ipynb_checkpoints"},
		},
		SQLite: SQLiteConfig{
			Path: "./linkmend.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Search: SearchConfig{
			MaxResults: repair.DefaultMaxResults,
		},
		Watch: WatchConfig{
			Enabled:           true,
			Debounce:          index.DefaultDebounce,
			UpdateLinksOnMove: true,
		},
		Scan: ScanConfig{
			Interval: 10 * time.Minute,
		},
	}
}
