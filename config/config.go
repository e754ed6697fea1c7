// Package config holds the YAML configuration of the calevents CLI.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cyp0633/calevents/recurrence"
	"gopkg.in/yaml.v3"
)

// PasswordEnv overrides the configured server password when set
const PasswordEnv = "CALEVENTS_PASSWORD"

// ServerConfig is the CalDAV account
type ServerConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password,omitempty"`
}

// CalendarConfig names one calendar collection
type CalendarConfig struct {
	// Name is how the calendar is referred to on the command line
	Name string `yaml:"name"`
	// Href is the collection URL or path, used as calendar ID
	Href string `yaml:"href"`
}

// EngineSettings tunes recurrence expansion
type EngineSettings struct {
	// Profile is "default" or "low_memory"
	Profile        string `yaml:"profile"`
	MaxOccurrences int    `yaml:"max_occurrences,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Calendars []CalendarConfig `yaml:"calendars"`

	// Addresses are the user's own email addresses. They decide whether
	// the user organizes an event or is invited to it.
	Addresses []string `yaml:"addresses"`
	// MemberID files personal data such as alarms
	MemberID string `yaml:"member_id"`

	// WeekStart is "monday" (default) or "sunday" and ends up as WKST
	WeekStart string `yaml:"week_start"`
	// Timezone is the IANA zone used to print events
	Timezone string `yaml:"timezone"`

	// RefreshCron is the cron schedule of the watch command
	RefreshCron string `yaml:"refresh"`
	// HorizonDays is how far ahead list and watch look
	HorizonDays int `yaml:"horizon_days"`

	LogLevel string         `yaml:"log_level"`
	Engine   EngineSettings `yaml:"engine"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Calendars:   []CalendarConfig{},
		Addresses:   []string{},
		MemberID:    "me",
		WeekStart:   "monday",
		Timezone:    "UTC",
		RefreshCron: "*/15 * * * *",
		HorizonDays: 7,
		LogLevel:    "info",
		Engine:      EngineSettings{Profile: "default"},
	}
}

// Normalize fills in missing values with defaults so that partially
// filled configs still behave.
func (c *Config) Normalize() {
	def := DefaultConfig()
	switch strings.ToLower(c.WeekStart) {
	case "monday", "sunday":
		c.WeekStart = strings.ToLower(c.WeekStart)
	default:
		c.WeekStart = def.WeekStart
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = def.HorizonDays
	}
	if c.MemberID == "" {
		c.MemberID = def.MemberID
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		c.LogLevel = def.LogLevel
	}
	if c.Engine.Profile != "low_memory" {
		c.Engine.Profile = def.Engine.Profile
	}
	if c.Calendars == nil {
		c.Calendars = []CalendarConfig{}
	}
	if c.Addresses == nil {
		c.Addresses = []string{}
	}
}

// Validate reports settings the server commands cannot run without
func (c *Config) Validate() error {
	var errs []error
	if c.Server.URL == "" {
		errs = append(errs, errors.New("server.url is required"))
	}
	if c.Server.Username == "" {
		errs = append(errs, errors.New("server.username is required"))
	}
	seen := make(map[string]bool, len(c.Calendars))
	for i, cal := range c.Calendars {
		if cal.Name == "" || cal.Href == "" {
			errs = append(errs, fmt.Errorf("calendars[%d]: name and href are required", i))
			continue
		}
		if seen[cal.Name] {
			errs = append(errs, fmt.Errorf("calendars[%d]: duplicate name %q", i, cal.Name))
		}
		seen[cal.Name] = true
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	return errors.Join(errs...)
}

// Calendar looks a calendar up by name, or by href
func (c *Config) Calendar(name string) (CalendarConfig, bool) {
	for _, cal := range c.Calendars {
		if cal.Name == name || cal.Href == name {
			return cal, true
		}
	}
	return CalendarConfig{}, false
}

// WeekStartDay returns the configured week start
func (c *Config) WeekStartDay() time.Weekday {
	if c.WeekStart == "sunday" {
		return time.Sunday
	}
	return time.Monday
}

// Location returns the display time zone
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Level returns the slog level of LogLevel
func (c *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// EngineConfig returns the recurrence engine settings
func (c *Config) EngineConfig() recurrence.EngineConfig {
	cfg := recurrence.DefaultEngineConfig
	if c.Engine.Profile == "low_memory" {
		cfg = recurrence.LowMemoryConfig
	}
	if c.Engine.MaxOccurrences > 0 {
		cfg.MaxOccurrences = c.Engine.MaxOccurrences
	}
	return cfg
}

// Load loads configuration from the given YAML path.
//
// A missing file is created with the default configuration and 0600
// permissions. The password may come from CALEVENTS_PASSWORD instead of
// the file.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := Save(path, cfg); err != nil {
			return cfg, err
		}
	case err != nil:
		return nil, err
	default:
		cfg = &Config{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		cfg.Normalize()
	}

	if password := os.Getenv(PasswordEnv); password != "" {
		cfg.Server.Password = password
	}
	return cfg, nil
}

// Save writes the configuration atomically with 0600 permissions.
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

	tmp, err := os.CreateTemp(dir, ".calevents-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
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

// DefaultPath returns the config location under the user config directory
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "calevents.yaml"
	}
	return filepath.Join(dir, "calevents", "config.yaml")
}
