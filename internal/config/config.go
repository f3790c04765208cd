// Package config loads the CalDAV connection and task settings from the
// environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/teemow/tasksync/internal/logging"
	"github.com/teemow/tasksync/internal/refcache"
)

// Environment variables read by FromEnv.
const (
	EnvURL      = "CALDAV_URL"
	EnvUsername = "CALDAV_USERNAME"
	EnvPassword = "CALDAV_PASSWORD"
	EnvToken    = "CALDAV_TOKEN"
	EnvCalendar = "CALDAV_CALENDAR"
	EnvTimeout  = "CALDAV_TIMEOUT"
	EnvRefTTL   = "TASK_REF_TTL"
	EnvTimezone = "TASK_TIMEZONE"

	// EnvHTTPToken is the bearer token required by the streamable HTTP
	// transport.
	EnvHTTPToken = "MCP_HTTP_TOKEN"

	// Nextcloud-style variables are accepted when the CALDAV_ ones are unset.
	EnvNextcloudURL      = "NEXTCLOUD_URL"
	EnvNextcloudUser     = "NEXTCLOUD_USER"
	EnvNextcloudPassword = "NEXTCLOUD_PASSWORD"

	// NextcloudDAVPath is appended to NEXTCLOUD_URL.
	NextcloudDAVPath = "/remote.php/dav"
)

// DefaultTimeout bounds each CalDAV request.
const DefaultTimeout = 15 * time.Second

// CalDAV holds the remote calendar connection settings.
type CalDAV struct {
	URL      string
	Username string
	Password string
	Token    string
	Calendar string
	Timeout  time.Duration
}

// Config is the complete runtime configuration.
type Config struct {
	CalDAV CalDAV
	// RefTTL is how long listed task numbers stay valid.
	RefTTL time.Duration
	// Timezone names the location that defines "today"; empty means local.
	Timezone string
	Location *time.Location
	// HTTPToken guards the MCP HTTP endpoint; empty disables the check.
	HTTPToken string
}

// Load reads the given .env files (missing files are skipped) and then the
// environment. Variables already set in the environment win over .env values.
func Load(envFiles ...string) (*Config, error) {
	var existing []string
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables.
func FromEnv() (*Config, error) {
	cfg := &Config{
		CalDAV: CalDAV{
			URL:      os.Getenv(EnvURL),
			Username: firstEnv(EnvUsername, EnvNextcloudUser),
			Password: firstEnv(EnvPassword, EnvNextcloudPassword),
			Token:    os.Getenv(EnvToken),
			Calendar: os.Getenv(EnvCalendar),
			Timeout:  DefaultTimeout,
		},
		RefTTL:    refcache.DefaultTTL,
		Timezone:  os.Getenv(EnvTimezone),
		HTTPToken: os.Getenv(EnvHTTPToken),
	}

	if cfg.CalDAV.URL == "" {
		if base := os.Getenv(EnvNextcloudURL); base != "" {
			cfg.CalDAV.URL = strings.TrimSuffix(base, "/") + NextcloudDAVPath
		}
	}

	var err error
	if cfg.CalDAV.Timeout, err = durationEnv(EnvTimeout, DefaultTimeout); err != nil {
		return nil, err
	}
	if cfg.RefTTL, err = durationEnv(EnvRefTTL, refcache.DefaultTTL); err != nil {
		return nil, err
	}
	if cfg.Location, err = loadLocation(cfg.Timezone); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration can be used to connect.
func (c *Config) Validate() error {
	if c.CalDAV.URL == "" {
		return fmt.Errorf("%s is required", EnvURL)
	}
	u, err := url.Parse(c.CalDAV.URL)
	if err != nil {
		// The parse error quotes the URL, which may carry a password.
		return fmt.Errorf("%s is not a valid URL", EnvURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https", EnvURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%s has no host", EnvURL)
	}

	hasUserinfo := u.User != nil && u.User.Username() != ""
	switch {
	case c.CalDAV.Token != "":
	case c.CalDAV.Username != "":
		if c.CalDAV.Password == "" {
			return fmt.Errorf("%s is required when %s is set", EnvPassword, EnvUsername)
		}
	case hasUserinfo:
	default:
		return errors.New("credentials are required: set CALDAV_USERNAME and CALDAV_PASSWORD, or CALDAV_TOKEN")
	}

	if c.CalDAV.Timeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvTimeout)
	}
	if c.RefTTL <= 0 {
		return fmt.Errorf("%s must be positive", EnvRefTTL)
	}
	return nil
}

// LogValue implements slog.LogValuer with secrets masked.
func (c Config) LogValue() slog.Value {
	tz := c.Timezone
	if tz == "" {
		tz = "Local"
	}
	return slog.GroupValue(
		slog.String("url", logging.RedactURL(c.CalDAV.URL)),
		slog.String("username", c.CalDAV.Username),
		slog.String("password", logging.SanitizeToken(c.CalDAV.Password)),
		slog.String("token", logging.SanitizeToken(c.CalDAV.Token)),
		slog.String("calendar", c.CalDAV.Calendar),
		slog.Duration("timeout", c.CalDAV.Timeout),
		slog.Duration("ref_ttl", c.RefTTL),
		slog.String("timezone", tz),
		slog.String("http_token", logging.SanitizeToken(c.HTTPToken)),
	)
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", EnvTimezone, err)
	}
	return loc, nil
}
