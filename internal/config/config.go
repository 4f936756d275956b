// Copyright 2025 Joseph Cumines
//
// Configuration package for the MCP server and desktop agent

package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// TransportType represents the MCP transport type
type TransportType string

const (
	// TransportStdio uses stdin/stdout for communication
	TransportStdio TransportType = "stdio"
	// TransportHTTP uses HTTP POST for communication
	TransportHTTP TransportType = "http"
)

// Backend selects what drives the desktop.
type Backend string

const (
	// BackendRemote talks to a desktop agent over gRPC.
	BackendRemote Backend = "remote"
	// BackendSim drives an in-memory simulated desktop.
	BackendSim Backend = "sim"
)

// Config holds the configuration for the MCP server
type Config struct {
	Backend          Backend       `mapstructure:"backend"`
	ServerAddr       string        `mapstructure:"server_addr"`
	ServerCertFile   string        `mapstructure:"server_cert_file"`
	SimProfile       string        `mapstructure:"sim_profile"`
	Transport        TransportType `mapstructure:"transport"`
	HTTPAddress      string        `mapstructure:"http_address"`
	HTTPSocketPath   string        `mapstructure:"http_socket"`
	CORSOrigin       string        `mapstructure:"cors_origin"`
	APIKey           string        `mapstructure:"api_key"`
	TLSCertFile      string        `mapstructure:"tls_cert_file"`
	TLSKeyFile       string        `mapstructure:"tls_key_file"`
	AuditLogFile     string        `mapstructure:"audit_log_file"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	StubGrace        time.Duration `mapstructure:"stub_grace"`
	HTTPReadTimeout  time.Duration `mapstructure:"http_read_timeout"`
	HTTPWriteTimeout time.Duration `mapstructure:"http_write_timeout"`
	RateLimit        float64       `mapstructure:"rate_limit"`
	RateBurst        int           `mapstructure:"rate_burst"`
	ServerTLS        bool          `mapstructure:"server_tls"`
	Debug            bool          `mapstructure:"debug"`
}

// setting is one configuration key, with its environment variable, default
// and command line flag.
type setting struct {
	key   string
	env   string
	flag  string
	def   any
	usage string
}

var settings = []setting{
	{"backend", "WINDOWS_USE_BACKEND", "backend", string(BackendRemote), "desktop backend: remote or sim"},
	{"server_addr", "WINDOWS_USE_SERVER_ADDR", "server-addr", "localhost:50051", "desktop agent gRPC address"},
	{"server_tls", "WINDOWS_USE_SERVER_TLS", "server-tls", false, "use TLS to reach the desktop agent"},
	{"server_cert_file", "WINDOWS_USE_SERVER_CERT_FILE", "server-cert-file", "", "certificate of the desktop agent"},
	{"sim_profile", "WINDOWS_USE_SIM_PROFILE", "sim-profile", "", "YAML profile for the simulated desktop (default: built in)"},
	{"request_timeout", "WINDOWS_USE_REQUEST_TIMEOUT", "request-timeout", "30s", "per tool call timeout (duration, or whole seconds)"},
	{"poll_interval", "WINDOWS_USE_POLL_INTERVAL", "poll-interval", "100ms", "wait_for poll interval"},
	{"stub_grace", "WINDOWS_USE_STUB_GRACE", "stub-grace", "5s", "how long a launch may take to show a window in another process"},
	{"debug", "WINDOWS_USE_DEBUG", "debug", false, "development logging"},
	{"transport", "MCP_TRANSPORT", "transport", string(TransportStdio), "MCP transport: stdio or http"},
	{"http_address", "MCP_HTTP_ADDRESS", "http-address", ":8080", "HTTP listen address"},
	{"http_socket", "MCP_HTTP_SOCKET", "http-socket", "", "serve HTTP on this unix socket instead"},
	{"cors_origin", "MCP_CORS_ORIGIN", "cors-origin", "*", "Access-Control-Allow-Origin value"},
	{"http_read_timeout", "MCP_HTTP_READ_TIMEOUT", "http-read-timeout", "30s", "HTTP read timeout"},
	{"http_write_timeout", "MCP_HTTP_WRITE_TIMEOUT", "http-write-timeout", "30s", "HTTP write timeout"},
	{"rate_limit", "MCP_RATE_LIMIT", "rate-limit", 0.0, "HTTP requests per second (0 disables)"},
	{"rate_burst", "MCP_RATE_BURST", "rate-burst", 0, "HTTP request burst (default: the rate, at least 1)"},
	{"api_key", "MCP_API_KEY", "", "", ""},
	{"tls_cert_file", "MCP_TLS_CERT_FILE", "tls-cert-file", "", "HTTPS certificate"},
	{"tls_key_file", "MCP_TLS_KEY_FILE", "tls-key-file", "", "HTTPS private key"},
	{"audit_log_file", "MCP_AUDIT_LOG_FILE", "audit-log-file", "", "write a JSON line per tool call to this file"},
}

// configFileFlag names the optional YAML config file.
const (
	configFileFlag = "config"
	configFileEnv  = "WINDOWS_USE_CONFIG"
)

// AddFlags registers the configuration flags on cmd. Secrets such as the API
// key are only read from the environment or the config file.
func AddFlags(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.String(configFileFlag, "", "YAML config file, reloaded on change (env "+configFileEnv+")")
	for _, s := range settings {
		if s.flag == "" {
			continue
		}
		usage := fmt.Sprintf("%s (env %s)", s.usage, s.env)
		switch d := s.def.(type) {
		case bool:
			fs.Bool(s.flag, d, usage)
		case int:
			fs.Int(s.flag, d, usage)
		case float64:
			fs.Float64(s.flag, d, usage)
		case string:
			fs.String(s.flag, d, usage)
		}
	}
}

// Loader resolves configuration from defaults, an optional config file,
// environment variables and flags, in increasing precedence.
type Loader struct {
	v   *viper.Viper
	cmd *cobra.Command
}

// NewLoader creates a loader reading the flags of cmd, which may be nil.
func NewLoader(cmd *cobra.Command) (*Loader, error) {
	v := viper.New()
	for _, s := range settings {
		v.SetDefault(s.key, s.def)
		if err := v.BindEnv(s.key, s.env); err != nil {
			return nil, err
		}
		if cmd == nil || s.flag == "" {
			continue
		}
		if f := cmd.Flags().Lookup(s.flag); f != nil {
			if err := v.BindPFlag(s.key, f); err != nil {
				return nil, err
			}
		}
	}
	if err := v.BindEnv("config_file", configFileEnv); err != nil {
		return nil, err
	}
	l := &Loader{v: v, cmd: cmd}
	if path := l.ConfigFile(); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
	}
	return l, nil
}

// ConfigFile returns the config file path, if one was given.
func (l *Loader) ConfigFile() string {
	if l.cmd != nil {
		if f := l.cmd.Flags().Lookup(configFileFlag); f != nil && f.Value.String() != "" {
			return f.Value.String()
		}
	}
	return l.v.GetString("config_file")
}

// Load reads the config file, if any, and returns the validated
// configuration.
func (l *Loader) Load() (*Config, error) {
	if l.ConfigFile() != "" {
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			secondsHook,
			mapstructure.StringToTimeDurationHookFunc(),
		),
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
		Result:           &cfg,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(l.v.AllSettings()); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.Transport = TransportType(strings.ToLower(string(cfg.Transport)))
	if cfg.Transport == "sse" {
		cfg.Transport = TransportHTTP
	}
	cfg.Backend = Backend(strings.ToLower(string(cfg.Backend)))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load loads the configuration for cmd.
func Load(cmd *cobra.Command) (*Config, error) {
	l, err := NewLoader(cmd)
	if err != nil {
		return nil, err
	}
	return l.Load()
}

// secondsHook accepts a bare integer as a number of seconds wherever a
// duration is expected, e.g. WINDOWS_USE_REQUEST_TIMEOUT=30.
func secondsHook(from, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeFor[time.Duration]() || from.Kind() != reflect.String {
		return data, nil
	}
	s := strings.TrimSpace(data.(string))
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return s, nil
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	switch c.Transport {
	case TransportStdio, TransportHTTP:
	default:
		errs = append(errs, fmt.Errorf("invalid transport type: %s (must be 'stdio' or 'http')", c.Transport))
	}
	switch c.Backend {
	case BackendRemote:
		if c.ServerAddr == "" {
			errs = append(errs, errors.New("server address cannot be empty"))
		}
	case BackendSim:
	default:
		errs = append(errs, fmt.Errorf("invalid backend: %s (must be 'remote' or 'sim')", c.Backend))
	}
	for name, d := range map[string]time.Duration{
		"request timeout":    c.RequestTimeout,
		"poll interval":      c.PollInterval,
		"stub grace":         c.StubGrace,
		"HTTP read timeout":  c.HTTPReadTimeout,
		"HTTP write timeout": c.HTTPWriteTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", name, d))
		}
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		errs = append(errs, errors.New("rate limit and burst cannot be negative"))
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		errs = append(errs, errors.New("TLS needs both a certificate and a key file"))
	}
	return errors.Join(errs...)
}
