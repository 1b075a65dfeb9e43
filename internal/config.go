package internal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

var (
	projectRe  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	categoryRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Memory MemoryConfig      `yaml:"memory"`
	VCS    VCSConfig         `yaml:"vcs"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Auth   AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Memory.Validate(); err != nil {
		return fmt.Errorf("memory: %w", err)
	}
	if err := c.VCS.Validate(); err != nil {
		return fmt.Errorf("vcs: %w", err)
	}
	return c.Auth.Validate()
}

// IndexPath returns the SQLite index location. An empty sqlite.path puts
// one database per project under the memory directory.
func (c *Config) IndexPath() string {
	if c.SQLite.Path != "" {
		return c.SQLite.Path
	}
	return filepath.Join(c.Memory.Dir, "index", c.Memory.Project+".db")
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

// MemoryConfig locates one project's knowledge inside the memory directory.
type MemoryConfig struct {
	Dir     string `yaml:"dir"`
	Project string `yaml:"project"`
	// Categories overrides the tracked categories at init time; later runs
	// read them from the repository.
	Categories  []string `yaml:"categories"`
	ContextFile string   `yaml:"context_file"`
}

// KnowledgeDir returns <dir>/knowledge/<project>.
func (c *MemoryConfig) KnowledgeDir() string {
	return filepath.Join(c.Dir, "knowledge", c.Project)
}

// Validate validates the memory configuration.
func (c *MemoryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
		validation.Field(&c.Project, validation.Required, validation.Match(projectRe)),
		validation.Field(&c.Categories, validation.Each(validation.Required, validation.Match(categoryRe))),
	)
}

// VCSConfig tunes the history repository.
type VCSConfig struct {
	// LockTimeout is how long a mutation waits for another process holding
	// the repository lock. Zero fails immediately.
	LockTimeout time.Duration `yaml:"lock_timeout"`
}

// Validate validates the VCS configuration.
func (c *VCSConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.LockTimeout, validation.Min(time.Duration(0))),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
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

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Memory: MemoryConfig{
			Dir:         defaultMemoryDir(),
			Project:     "default",
			ContextFile: "context.md",
		},
		VCS: VCSConfig{
			LockTimeout: 5 * time.Second,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}

func defaultMemoryDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".engram"
	}
	return filepath.Join(home, ".engram")
}
