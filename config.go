package tvchart

import (
	"os"
	"strconv"
	"time"

	str2duration "github.com/xhit/go-str2duration/v2"
)

const (
	defaultWebsocketURL      = "wss://prodata.tradingview.com/socket.io/websocket"
	defaultChartID           = "xnQ8g8S9"
	defaultConnectionTimeout = 30 * time.Second
	defaultDataTimeout       = 15 * time.Second
	defaultMaxRequestsPerConn = 20
)

// Config is a Connection's immutable construction-time configuration
// (§3 "Connection Configuration"), built the way the teacher repo builds
// exchange.Binance: a zero-value struct plus a chain of functional
// Options (exchange.BinanceOption there, Option here).
type Config struct {
	JWTToken string

	WebsocketURL      string
	ChartID           string
	ConnectionTimeout time.Duration
	DataTimeout       time.Duration

	// PerKindTimeout overrides DataTimeout for specific request kinds
	// (e.g. create_study's CVD default of 30s).
	PerKindTimeout map[string]time.Duration

	EnableLogging             bool
	MaxRequestsPerConnection  int
}

// Option configures a Config at construction.
type Option func(*Config)

func WithJWTToken(token string) Option { return func(c *Config) { c.JWTToken = token } }
func WithWebsocketURL(url string) Option { return func(c *Config) { c.WebsocketURL = url } }
func WithChartID(id string) Option { return func(c *Config) { c.ChartID = id } }
func WithConnectionTimeout(d time.Duration) Option {
	return func(c *Config) { c.ConnectionTimeout = d }
}
func WithDataTimeout(d time.Duration) Option { return func(c *Config) { c.DataTimeout = d } }
func WithPerKindTimeout(kind string, d time.Duration) Option {
	return func(c *Config) {
		if c.PerKindTimeout == nil {
			c.PerKindTimeout = make(map[string]time.Duration)
		}
		c.PerKindTimeout[kind] = d
	}
}
func WithLogging(enabled bool) Option { return func(c *Config) { c.EnableLogging = enabled } }
func WithMaxRequestsPerConnection(n int) Option {
	return func(c *Config) { c.MaxRequestsPerConnection = n }
}

// NewConfig builds a Config from defaults plus the given options.
func NewConfig(opts ...Option) Config {
	c := Config{
		WebsocketURL:             defaultWebsocketURL,
		ChartID:                  defaultChartID,
		ConnectionTimeout:        defaultConnectionTimeout,
		DataTimeout:              defaultDataTimeout,
		MaxRequestsPerConnection: defaultMaxRequestsPerConn,
		PerKindTimeout:           make(map[string]time.Duration),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// ConfigFromEnv layers environment-variable overrides onto base, parsing
// human-friendly duration strings ("30s", "1m") with
// xhit/go-str2duration/v2, the same library the teacher repo uses in
// exchange/csvfeed.go and download/download.go for CLI duration flags.
//
// Recognized variables: TVCHART_JWT, TVCHART_WS_URL, TVCHART_CHART_ID,
// TVCHART_CONNECTION_TIMEOUT, TVCHART_DATA_TIMEOUT, TVCHART_LOGGING,
// TVCHART_MAX_REQUESTS_PER_CONNECTION.
func ConfigFromEnv(base Config) Config {
	if v := os.Getenv("TVCHART_JWT"); v != "" {
		base.JWTToken = v
	}
	if v := os.Getenv("TVCHART_WS_URL"); v != "" {
		base.WebsocketURL = v
	}
	if v := os.Getenv("TVCHART_CHART_ID"); v != "" {
		base.ChartID = v
	}
	if v := os.Getenv("TVCHART_CONNECTION_TIMEOUT"); v != "" {
		if d, err := str2duration.ParseDuration(v); err == nil {
			base.ConnectionTimeout = d
		}
	}
	if v := os.Getenv("TVCHART_DATA_TIMEOUT"); v != "" {
		if d, err := str2duration.ParseDuration(v); err == nil {
			base.DataTimeout = d
		}
	}
	if v := os.Getenv("TVCHART_LOGGING"); v == "true" || v == "1" {
		base.EnableLogging = true
	}
	if v := os.Getenv("TVCHART_MAX_REQUESTS_PER_CONNECTION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			base.MaxRequestsPerConnection = n
		}
	}
	return base
}
