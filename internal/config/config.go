package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// TokenEnv overrides api.token when set, so the bearer token can stay out of
// the YAML file.
const TokenEnv = "TURNOS_API_TOKEN"

const (
	defaultListen      = "127.0.0.1:8080"
	defaultTimezone    = "America/Argentina/Buenos_Aires"
	defaultRefreshCron = "*/5 * * * *"
	defaultAnchorMonth = "2025-10"
	defaultTotalPages  = 120
	defaultTimeout     = 30 * time.Second
	defaultProductID   = "-//turnos//appointments//ES"
)

// APIConfig points at the appointments backend.
type APIConfig struct {
	// BaseURL is the scheme://host[:port] of the backend; /api/appointments is appended.
	BaseURL string `yaml:"base_url" json:"base_url"`
	// Token is the bearer credential. Never logged.
	Token string `yaml:"token,omitempty" json:"-"`
	// Timeout bounds a single request.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// CalendarConfig controls the month pager.
type CalendarConfig struct {
	// AnchorMonth is page 0, formatted YYYY-MM.
	AnchorMonth string `yaml:"anchor_month" json:"anchor_month"`
	TotalPages  int    `yaml:"total_pages" json:"total_pages"`
}

// LogConfig selects the log level and output format ("text" or "json").
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// ICSConfig holds the calendar export settings.
type ICSConfig struct {
	ProductID string `yaml:"product_id" json:"product_id"`
}

// MirrorConfig points at a SQLite file that receives a copy of every settled
// appointment list for other local tools. An empty Path disables it.
type MirrorConfig struct {
	Path string `yaml:"path" json:"path"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the local API.
// PasswordHash (argon2id, see `turnos hash-password`) wins over Password.
type BasicAuthConfig struct {
	Username     string `yaml:"username" json:"username"`
	Password     string `yaml:"password,omitempty" json:"-"`
	PasswordHash string `yaml:"password_hash,omitempty" json:"-"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the local API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone that decides what "today" is.
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is a cron-style schedule (e.g. "*/5 * * * *") for
	// background refreshes. "off" disables them.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	API      APIConfig      `yaml:"api" json:"api"`
	Calendar CalendarConfig `yaml:"calendar" json:"calendar"`
	Log      LogConfig      `yaml:"log" json:"log"`
	ICS      ICSConfig      `yaml:"ics" json:"ics"`
	Mirror   MirrorConfig   `yaml:"mirror" json:"mirror"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      defaultListen,
		Timezone:    defaultTimezone,
		RefreshCron: defaultRefreshCron,
		API: APIConfig{
			BaseURL: "http://127.0.0.1:3000",
			Timeout: defaultTimeout,
		},
		Calendar: CalendarConfig{
			AnchorMonth: defaultAnchorMonth,
			TotalPages:  defaultTotalPages,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		ICS: ICSConfig{ProductID: defaultProductID},
	}
}

// Normalize fills in missing/zero values so that partially-filled configs
// still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	if c.API.Timeout <= 0 {
		c.API.Timeout = defaultTimeout
	}
	if c.Calendar.AnchorMonth == "" {
		c.Calendar.AnchorMonth = defaultAnchorMonth
	}
	if c.Calendar.TotalPages < 1 {
		c.Calendar.TotalPages = defaultTotalPages
	}
	switch strings.ToLower(c.Log.Format) {
	case "json":
		c.Log.Format = "json"
	default:
		c.Log.Format = "text"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.ICS.ProductID == "" {
		c.ICS.ProductID = defaultProductID
	}
}

// Validate reports settings that cannot be defaulted.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: api.base_url %q must be an http(s) URL", c.API.BaseURL)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	if _, err := time.Parse("2006-01", c.Calendar.AnchorMonth); err != nil {
		return fmt.Errorf("config: calendar.anchor_month %q must be YYYY-MM", c.Calendar.AnchorMonth)
	}
	if c.RefreshEnabled() {
		if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
			return fmt.Errorf("config: refresh %q: %w", c.RefreshCron, err)
		}
	}
	if b := c.BasicAuth; b != nil && (b.Username == "" || (b.Password == "" && b.PasswordHash == "")) {
		return errors.New("config: basic_auth needs a username and a password or password_hash")
	}
	return nil
}

// RefreshEnabled is false when the background refresh is switched off.
func (c *Config) RefreshEnabled() bool {
	return c.RefreshCron != "off"
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// ApplyEnv lets the environment override secrets.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if tok := strings.TrimSpace(getenv(TokenEnv)); tok != "" {
		c.API.Token = tok
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is unmarshalled and normalized.
//
// In both cases TURNOS_API_TOKEN overrides api.token.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			saveErr := Save(path, cfg)
			cfg.ApplyEnv(os.Getenv)
			return cfg, saveErr
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	cfg.ApplyEnv(os.Getenv)

	return &cfg, nil
}

// Save writes cfg to path atomically via a temp file + rename, with 0600
// permissions on the result.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".turnos-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
