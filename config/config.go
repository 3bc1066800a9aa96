// Package config loads redora CLI settings from ~/.redora/config.yaml and
// REDORA_* environment variables. Command-line flags are applied on top by
// the commands themselves.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/redoraai/redora-cli/pkg/events"
	"github.com/redoraai/redora-cli/pkg/logging"
)

// OutputFormat defines the supported output formats for CLI results.
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
	OutputFormatYAML OutputFormat = "yaml"
)

// Default configuration values.
const (
	DefaultServerAddress = "localhost:50051"
	DefaultTimeout       = 30 * time.Second
	DefaultOutputFormat  = OutputFormatText
	DefaultConfigDir     = ".redora"
	DefaultConfigFile    = "config.yaml"
	DefaultRelevancy     = 70
)

// TLSConfig holds client TLS settings.
type TLSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CACert     string `yaml:"ca_cert,omitempty"`
	ClientCert string `yaml:"client_cert,omitempty"`
	ClientKey  string `yaml:"client_key,omitempty"`

	// CertDir holds ca.crt, client.crt and client.key. It supplies any of
	// the three paths left empty.
	CertDir string `yaml:"cert_dir,omitempty"`

	SkipVerify bool `yaml:"skip_verify,omitempty"`
}

// ResolvePaths expands ~ in paths and fills defaults from CertDir.
func (c *TLSConfig) ResolvePaths() {
	if c.CertDir != "" {
		c.CertDir = expandPath(c.CertDir)
		if c.CACert == "" {
			c.CACert = filepath.Join(c.CertDir, "ca.crt")
		}
		if c.ClientCert == "" {
			c.ClientCert = filepath.Join(c.CertDir, "client.crt")
		}
		if c.ClientKey == "" {
			c.ClientKey = filepath.Join(c.CertDir, "client.key")
		}
	}
	c.CACert = expandPath(c.CACert)
	c.ClientCert = expandPath(c.ClientCert)
	c.ClientKey = expandPath(c.ClientKey)
}

// UsesClientCert reports whether mutual TLS is configured.
func (c *TLSConfig) UsesClientCert() bool {
	return c.ClientCert != "" || c.CertDir != ""
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// LeadsConfig holds triage defaults.
type LeadsConfig struct {
	// DefaultScore is the minimum relevancy score for NEW when no flag is given.
	DefaultScore int `yaml:"default_score"`

	// DefaultSubreddit restricts NEW to one subreddit; empty means all.
	DefaultSubreddit string `yaml:"default_subreddit,omitempty"`
}

// EventsConfig configures transition publishing. Publishing is off unless
// RedisAddr is set.
type EventsConfig struct {
	RedisAddr     string `yaml:"redis_addr,omitempty"`
	RedisPassword string `yaml:"redis_password,omitempty"`
	RedisDB       int    `yaml:"redis_db,omitempty"`
	Channel       string `yaml:"channel,omitempty"`
}

// Enabled reports whether a Redis address is configured.
func (e EventsConfig) Enabled() bool {
	return e.RedisAddr != ""
}

// ChannelOrDefault returns the configured channel or the standard one.
func (e EventsConfig) ChannelOrDefault() string {
	if e.Channel == "" {
		return events.ChannelLeadStatusChanged
	}
	return e.Channel
}

// LogConfig configures the CLI logger.
type LogConfig struct {
	Level string `yaml:"level,omitempty"`
	JSON  bool   `yaml:"json,omitempty"`
}

// CLIConfig holds the CLI configuration settings.
type CLIConfig struct {
	// ServerAddress is the LeadService endpoint (host:port).
	ServerAddress string `yaml:"server_address"`

	// Timeout bounds each RPC issued by a command.
	Timeout time.Duration `yaml:"timeout"`

	OutputFormat OutputFormat `yaml:"output_format"`

	// TenantID is sent as x-tenant-id on every request.
	TenantID string `yaml:"tenant_id,omitempty"`

	Debug    bool `yaml:"debug,omitempty"`
	Insecure bool `yaml:"insecure,omitempty"`

	TLS    TLSConfig    `yaml:"tls"`
	Leads  LeadsConfig  `yaml:"leads"`
	Events EventsConfig `yaml:"events"`
	Log    LogConfig    `yaml:"log"`
}

// DefaultConfig returns a CLIConfig with default values.
func DefaultConfig() *CLIConfig {
	return &CLIConfig{
		ServerAddress: DefaultServerAddress,
		Timeout:       DefaultTimeout,
		OutputFormat:  DefaultOutputFormat,
		Leads:         LeadsConfig{DefaultScore: DefaultRelevancy},
		Log:           LogConfig{Level: string(logging.LevelInfo)},
	}
}

// ConfigDir returns $REDORA_CONFIG_DIR if set, otherwise ~/.redora.
func ConfigDir() (string, error) {
	if dir := os.Getenv("REDORA_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// LoadConfig builds the configuration from defaults, then the config file
// if present, then REDORA_* environment variables, and validates it.
func LoadConfig() (*CLIConfig, error) {
	cfg, err := LoadFile()
	if err != nil {
		return nil, err
	}

	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFile returns the defaults overlaid with the config file only, without
// environment variables. It is the base that `config set` writes back.
func LoadFile() (*CLIConfig, error) {
	cfg := DefaultConfig()

	configPath, err := ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("getting config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}
	return cfg, nil
}

// DotEnvFile holds REDORA_* variables next to config.yaml. Variables already
// set in the environment win over the file.
const DotEnvFile = ".env"

func loadDotEnv() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	path := filepath.Join(dir, DotEnvFile)
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// configFile mirrors CLIConfig with the timeout as a duration string.
type configFile struct {
	ServerAddress string       `yaml:"server_address"`
	Timeout       string       `yaml:"timeout"`
	OutputFormat  OutputFormat `yaml:"output_format"`
	TenantID      string       `yaml:"tenant_id,omitempty"`
	Debug         bool         `yaml:"debug,omitempty"`
	Insecure      bool         `yaml:"insecure,omitempty"`
	TLS           TLSConfig    `yaml:"tls,omitempty"`
	Leads         *LeadsConfig `yaml:"leads,omitempty"`
	Events        EventsConfig `yaml:"events,omitempty"`
	Log           LogConfig    `yaml:"log,omitempty"`
}

func loadFromFile(cfg *CLIConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var fileCfg configFile
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	if fileCfg.ServerAddress != "" {
		cfg.ServerAddress = fileCfg.ServerAddress
	}
	if fileCfg.Timeout != "" {
		timeout, err := time.ParseDuration(fileCfg.Timeout)
		if err != nil {
			return fmt.Errorf("parsing timeout: %w", err)
		}
		cfg.Timeout = timeout
	}
	if fileCfg.OutputFormat != "" {
		cfg.OutputFormat = fileCfg.OutputFormat
	}
	if fileCfg.TenantID != "" {
		cfg.TenantID = fileCfg.TenantID
	}
	if fileCfg.Leads != nil {
		if fileCfg.Leads.DefaultScore != 0 {
			cfg.Leads.DefaultScore = fileCfg.Leads.DefaultScore
		}
		cfg.Leads.DefaultSubreddit = fileCfg.Leads.DefaultSubreddit
	}
	if fileCfg.Log.Level != "" {
		cfg.Log.Level = fileCfg.Log.Level
	}
	cfg.Log.JSON = fileCfg.Log.JSON
	cfg.Debug = fileCfg.Debug
	cfg.Insecure = fileCfg.Insecure
	cfg.TLS = fileCfg.TLS
	cfg.Events = fileCfg.Events

	return nil
}

func envBool(key string) bool {
	v := os.Getenv(key)
	return v == "true" || v == "1"
}

// loadFromEnv overlays REDORA_* variables. Malformed numbers and durations
// are ignored so a bad variable never blocks the CLI.
func loadFromEnv(cfg *CLIConfig) {
	if v := os.Getenv("REDORA_SERVER_ADDRESS"); v != "" {
		cfg.ServerAddress = v
	}
	if v := os.Getenv("REDORA_TIMEOUT"); v != "" {
		if timeout, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = timeout
		}
	}
	if v := os.Getenv("REDORA_OUTPUT_FORMAT"); v != "" {
		cfg.OutputFormat = OutputFormat(v)
	}
	if v := os.Getenv("REDORA_TENANT_ID"); v != "" {
		cfg.TenantID = v
	}
	if envBool("REDORA_DEBUG") {
		cfg.Debug = true
	}
	if envBool("REDORA_INSECURE") {
		cfg.Insecure = true
	}

	if envBool("REDORA_TLS_ENABLED") {
		cfg.TLS.Enabled = true
	}
	if v := os.Getenv("REDORA_TLS_CA_CERT"); v != "" {
		cfg.TLS.CACert = v
	}
	if v := os.Getenv("REDORA_TLS_CLIENT_CERT"); v != "" {
		cfg.TLS.ClientCert = v
	}
	if v := os.Getenv("REDORA_TLS_CLIENT_KEY"); v != "" {
		cfg.TLS.ClientKey = v
	}
	if v := os.Getenv("REDORA_TLS_CERT_DIR"); v != "" {
		cfg.TLS.CertDir = v
	}
	if envBool("REDORA_TLS_SKIP_VERIFY") {
		cfg.TLS.SkipVerify = true
	}

	if v := os.Getenv("REDORA_DEFAULT_SCORE"); v != "" {
		if score, err := strconv.Atoi(v); err == nil {
			cfg.Leads.DefaultScore = score
		}
	}
	if v := os.Getenv("REDORA_DEFAULT_SUBREDDIT"); v != "" {
		cfg.Leads.DefaultSubreddit = v
	}

	if v := os.Getenv("REDORA_REDIS_ADDR"); v != "" {
		cfg.Events.RedisAddr = v
	}
	if v := os.Getenv("REDORA_REDIS_PASSWORD"); v != "" {
		cfg.Events.RedisPassword = v
	}
	if v := os.Getenv("REDORA_EVENTS_CHANNEL"); v != "" {
		cfg.Events.Channel = v
	}

	if v := os.Getenv("REDORA_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if envBool("REDORA_LOG_JSON") {
		cfg.Log.JSON = true
	}
}

// Validate checks that the configuration is usable.
func (c *CLIConfig) Validate() error {
	if c.ServerAddress == "" {
		return fmt.Errorf("server_address is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if !c.OutputFormat.IsValid() {
		return fmt.Errorf("invalid output_format: %q (must be text, json, or yaml)", c.OutputFormat)
	}
	if c.Leads.DefaultScore < 0 || c.Leads.DefaultScore > 100 {
		return fmt.Errorf("leads.default_score must be between 0 and 100, got %d", c.Leads.DefaultScore)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level: %w", err)
	}
	return nil
}

// LoggingConfig converts the log section into a logger configuration.
// Debug forces the debug level.
func (c *CLIConfig) LoggingConfig() *logging.Config {
	lc := logging.DefaultConfig()
	if level, err := logging.ParseLevel(c.Log.Level); err == nil {
		lc.Level = level
	}
	if c.Debug {
		lc.Level = logging.LevelDebug
	}
	lc.JSONFormat = c.Log.JSON
	return lc
}

// RedisConfig converts the events section for events.NewRedisPublisherFromConfig.
func (c *CLIConfig) RedisConfig() events.RedisConfig {
	return events.RedisConfig{
		Addr:     c.Events.RedisAddr,
		Password: c.Events.RedisPassword,
		DB:       c.Events.RedisDB,
		Channel:  c.Events.ChannelOrDefault(),
	}
}

// IsValid checks if the output format is valid.
func (f OutputFormat) IsValid() bool {
	switch f {
	case OutputFormatText, OutputFormatJSON, OutputFormatYAML:
		return true
	default:
		return false
	}
}

func (f OutputFormat) String() string {
	return string(f)
}

// SaveConfig writes cfg to the config file with 0600 permissions.
func SaveConfig(cfg *CLIConfig) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath, err := ConfigPath()
	if err != nil {
		return err
	}

	leadsCfg := cfg.Leads
	fileCfg := configFile{
		ServerAddress: cfg.ServerAddress,
		Timeout:       cfg.Timeout.String(),
		OutputFormat:  cfg.OutputFormat,
		TenantID:      cfg.TenantID,
		Debug:         cfg.Debug,
		Insecure:      cfg.Insecure,
		TLS:           cfg.TLS,
		Leads:         &leadsCfg,
		Events:        cfg.Events,
		Log:           cfg.Log,
	}

	data, err := yaml.Marshal(&fileCfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// Set assigns one dotted key as used by `redora config set`.
func (c *CLIConfig) Set(key, value string) error {
	parseBool := func() (bool, error) {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return false, fmt.Errorf("%s: expected true or false, got %q", key, value)
		}
		return b, nil
	}

	switch key {
	case "server_address":
		c.ServerAddress = value
	case "timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		c.Timeout = d
	case "output_format":
		c.OutputFormat = OutputFormat(value)
	case "tenant_id":
		c.TenantID = value
	case "debug":
		b, err := parseBool()
		if err != nil {
			return err
		}
		c.Debug = b
	case "insecure":
		b, err := parseBool()
		if err != nil {
			return err
		}
		c.Insecure = b
	case "tls.enabled":
		b, err := parseBool()
		if err != nil {
			return err
		}
		c.TLS.Enabled = b
	case "tls.cert_dir":
		c.TLS.CertDir = value
	case "leads.default_score":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("leads.default_score: %w", err)
		}
		c.Leads.DefaultScore = n
	case "leads.default_subreddit":
		c.Leads.DefaultSubreddit = value
	case "events.redis_addr":
		c.Events.RedisAddr = value
	case "events.channel":
		c.Events.Channel = value
	case "log.level":
		c.Log.Level = value
	case "log.json":
		b, err := parseBool()
		if err != nil {
			return err
		}
		c.Log.JSON = b
	default:
		return fmt.Errorf("unknown config key %q (valid: %s)", key, strings.Join(SettableKeys, ", "))
	}
	return c.Validate()
}

// SettableKeys lists the keys accepted by Set.
var SettableKeys = []string{
	"server_address", "timeout", "output_format", "tenant_id", "debug", "insecure",
	"tls.enabled", "tls.cert_dir",
	"leads.default_score", "leads.default_subreddit",
	"events.redis_addr", "events.channel",
	"log.level", "log.json",
}
