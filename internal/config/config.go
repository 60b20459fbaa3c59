package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

type (
	// Client holds settings for the quick-match terminal client
	Client struct {
		// Empty means the default origin
		BackendURL string

		UserID      string
		Category    string
		Lat         string
		Lng         string
		TesterTopic string
		AutoMatch   bool

		PingInterval time.Duration
		Interval     time.Duration
		Rows         int
		LogLevel     string
		LogFile      string
	}

	// Backend holds settings for the local backend stub
	Backend struct {
		Listen      string
		SearchDelay time.Duration
		RedisURL    string
		LogLevel    string
	}
)

const (
	DefaultOrigin       = "http://localhost:8080"
	DefaultUserID       = "u123"
	DefaultCategory     = "plumbing"
	DefaultLat          = "24.8607"
	DefaultLng          = "67.0011"
	DefaultTesterTopic  = "tasker:tsk1"
	DefaultPingInterval = 15 * time.Second
	DefaultInterval     = 500 * time.Millisecond
	DefaultRows         = 12

	DefaultListen      = ":8080"
	DefaultSearchDelay = 750 * time.Millisecond
)

var (
	ErrInvalidBackendURL   = errors.New("invalid backend url")
	ErrInvalidPingInterval = errors.New("ping interval must be positive")
	ErrInvalidInterval     = errors.New("refresh interval must be positive")
	ErrInvalidRows         = errors.New("rows must be positive")
	ErrMissingListen       = errors.New("missing listen address")
	ErrInvalidSearchDelay  = errors.New("search delay cannot be negative")
)

// NewDefaultClient returns client settings matching the demo form defaults
func NewDefaultClient() *Client {
	return &Client{
		UserID:       DefaultUserID,
		Category:     DefaultCategory,
		Lat:          DefaultLat,
		Lng:          DefaultLng,
		TesterTopic:  DefaultTesterTopic,
		PingInterval: DefaultPingInterval,
		Interval:     DefaultInterval,
		Rows:         DefaultRows,
		LogLevel:     "warn",
	}
}

// LoadFromEnv applies BACKEND_URL, LOG_LEVEL and LOG_FILE when set
func (c *Client) LoadFromEnv() {
	if v := os.Getenv("BACKEND_URL"); v != "" {
		c.BackendURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		c.LogFile = v
	}
}

// BindFlags registers flags whose defaults are the current values, so env
// values loaded first are overridden only by explicit flags
func (c *Client) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.BackendURL, "backend", c.BackendURL, "backend base url (empty = "+DefaultOrigin+")")
	fs.StringVar(&c.UserID, "user", c.UserID, "user id for the creation form and user:<id> panel")
	fs.StringVar(&c.Category, "category", c.Category, "service category")
	fs.StringVar(&c.Lat, "lat", c.Lat, "latitude")
	fs.StringVar(&c.Lng, "lng", c.Lng, "longitude")
	fs.StringVar(&c.TesterTopic, "topic", c.TesterTopic, "tester panel topic (empty disables)")
	fs.BoolVar(&c.AutoMatch, "match", c.AutoMatch, "send a quick-match request on startup")
	fs.DurationVar(&c.PingInterval, "ping", c.PingInterval, "keep-alive ping interval")
	fs.DurationVar(&c.Interval, "interval", c.Interval, "ui refresh interval")
	fs.IntVar(&c.Rows, "rows", c.Rows, "max lines shown per event panel")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug | info | warn | error")
	fs.StringVar(&c.LogFile, "log-file", c.LogFile, "append logs here (default: stderr, or nowhere while the terminal ui runs)")
}

// Origin is the effective base url for REST and stream endpoints
func (c *Client) Origin() string {
	if c.BackendURL == "" {
		return DefaultOrigin
	}
	return c.BackendURL
}

func (c *Client) Validate() error {
	if c.BackendURL != "" {
		u, err := url.Parse(c.BackendURL)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidBackendURL, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: %s", ErrInvalidBackendURL, c.BackendURL)
		}
	}
	if c.PingInterval <= 0 {
		return ErrInvalidPingInterval
	}
	if c.Interval <= 0 {
		return ErrInvalidInterval
	}
	if c.Rows <= 0 {
		return ErrInvalidRows
	}
	return nil
}

// NewDefaultBackend returns stub settings for local runs
func NewDefaultBackend() *Backend {
	return &Backend{
		Listen:      DefaultListen,
		SearchDelay: DefaultSearchDelay,
		LogLevel:    "info",
	}
}

// LoadFromEnv applies LISTEN, SEARCH_DELAY, REDIS_URL and LOG_LEVEL
func (c *Backend) LoadFromEnv() error {
	if v := os.Getenv("LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("SEARCH_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			ms, merr := strconv.Atoi(v)
			if merr != nil {
				return fmt.Errorf("invalid SEARCH_DELAY: %w", err)
			}
			d = time.Duration(ms) * time.Millisecond
		}
		c.SearchDelay = d
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return nil
}

func (c *Backend) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Listen, "listen", c.Listen, "http listen address")
	fs.DurationVar(&c.SearchDelay, "search-delay", c.SearchDelay, "delay before the scripted searching event")
	fs.StringVar(&c.RedisURL, "redis", c.RedisURL, "redis url for cross-instance fan-out (empty = local only)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug | info | warn | error")
}

func (c *Backend) Validate() error {
	if c.Listen == "" {
		return ErrMissingListen
	}
	if c.SearchDelay < 0 {
		return ErrInvalidSearchDelay
	}
	return nil
}
