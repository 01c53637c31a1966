package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ConfigFileName is looked up inside a directory passed to Load.
const ConfigFileName = "config.yaml"

// Default values
const (
	DefaultListen          = "127.0.0.1:8081"
	DefaultPath            = "/hooks"
	DefaultMaxBodySize     = "1MB"
	DefaultMetaURL         = "https://api.github.com/meta"
	DefaultMetaKey         = "hooks"
	DefaultEventHeader     = "X-GitHub-Event"
	DefaultDeliveryHeader  = "X-GitHub-Delivery"
	DefaultSignatureHeader = "X-Hub-Signature"
	DefaultRefreshInterval = time.Hour
	DefaultFetchTimeout    = 10 * time.Second
	DefaultMinRefreshGap   = 30 * time.Second
)

// Defaults returns a configuration populated with default values. It has no
// signing key, so it does not validate until one is supplied.
func Defaults() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads, interpolates, defaults and validates configuration from a file.
// If path is a directory, config.yaml inside it is used. When a .checksums
// manifest sits next to the file, the file must match it.
func Load(configPath string) (*Config, error) {
	absPath, err := ResolvePath(configPath)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", absPath, err)
	}
	if err := verifyLocked(absPath, data); err != nil {
		return nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	cfg.SourcePath = absPath
	return cfg, nil
}

// Parse decodes YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	interpolated := interpolateEnv(string(data))

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(interpolated)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	applyDefaults(cfg)
	resolveSigningKey(cfg)

	size, err := ParseSize(cfg.Server.MaxBodySize)
	if err != nil {
		return nil, fmt.Errorf("invalid server.max_body_size %q: %w", cfg.Server.MaxBodySize, err)
	}
	cfg.Server.MaxBodyBytes = size

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ResolvePath turns a file or directory argument into the absolute path of the config file.
func ResolvePath(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	if info.IsDir() {
		absPath = filepath.Join(absPath, ConfigFileName)
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but %s not found: %s", ConfigFileName, absPath)
		}
	}
	return absPath, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Service.Name == "" {
		cfg.Service.Name = "hookserver"
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = "info"
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = "json"
	}

	if cfg.Server.Listen == "" {
		cfg.Server.Listen = DefaultListen
	}
	if cfg.Server.Path == "" {
		cfg.Server.Path = DefaultPath
	}
	if cfg.Server.MaxBodySize == "" {
		cfg.Server.MaxBodySize = DefaultMaxBodySize
	}

	if cfg.Provider.Name == "" {
		cfg.Provider.Name = "GitHub"
	}
	if cfg.Provider.MetaURL == "" {
		cfg.Provider.MetaURL = DefaultMetaURL
	}
	if cfg.Provider.MetaKey == "" {
		cfg.Provider.MetaKey = DefaultMetaKey
	}
	if cfg.Provider.EventHeader == "" {
		cfg.Provider.EventHeader = DefaultEventHeader
	}
	if cfg.Provider.DeliveryHeader == "" {
		cfg.Provider.DeliveryHeader = DefaultDeliveryHeader
	}
	if cfg.Provider.SignatureHeader == "" {
		cfg.Provider.SignatureHeader = DefaultSignatureHeader
	}

	if len(cfg.Security.Algorithms) == 0 {
		cfg.Security.Algorithms = []string{"sha1", "sha256"}
	}

	if cfg.Allowlist.RefreshInterval == 0 {
		cfg.Allowlist.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.Allowlist.FetchTimeout == 0 {
		cfg.Allowlist.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.Allowlist.MinRefreshGap == 0 {
		cfg.Allowlist.MinRefreshGap = DefaultMinRefreshGap
	}
}

func resolveSigningKey(cfg *Config) {
	if cfg.Security.SigningKeyEnv == "" {
		return
	}
	if v, ok := os.LookupEnv(cfg.Security.SigningKeyEnv); ok {
		cfg.Security.SigningKey = v
	}
}

// Validate performs basic validation on the configuration.
func Validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if f := strings.ToLower(cfg.Service.LogFormat); f != "json" && f != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if !strings.HasPrefix(cfg.Server.Path, "/") {
		return fmt.Errorf("server.path must start with '/' (got %q)", cfg.Server.Path)
	}
	if cfg.Server.ProxyCount < 0 {
		return fmt.Errorf("server.proxy_count must not be negative")
	}
	if err := checkUnresolved("server.admin_token", cfg.Server.AdminToken); err != nil {
		return err
	}

	if cfg.Provider.EventHeader == "" || cfg.Provider.DeliveryHeader == "" || cfg.Provider.SignatureHeader == "" {
		return fmt.Errorf("provider headers must not be empty")
	}
	if !cfg.Security.InsecureSkipOrigin {
		u, err := url.Parse(cfg.Provider.MetaURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("provider.meta_url must be an absolute http(s) URL (got %q)", cfg.Provider.MetaURL)
		}
	}

	if err := checkUnresolved("security.signing_key", cfg.Security.SigningKey); err != nil {
		return err
	}
	switch {
	case cfg.Security.SigningKey == "" && !cfg.Security.AllowUnsigned:
		return fmt.Errorf("security.signing_key is required (set security.allow_unsigned to accept unsigned deliveries)")
	case cfg.Security.SigningKey != "" && cfg.Security.AllowUnsigned:
		return fmt.Errorf("security.allow_unsigned cannot be combined with a signing key")
	}
	for i, alg := range cfg.Security.Algorithms {
		if strings.TrimSpace(alg) == "" {
			return fmt.Errorf("security.algorithms[%d] is empty", i)
		}
	}

	if cfg.Allowlist.RefreshInterval < 0 {
		return fmt.Errorf("allowlist.refresh_interval must not be negative")
	}
	if cfg.Allowlist.FetchTimeout <= 0 {
		return fmt.Errorf("allowlist.fetch_timeout must be positive")
	}
	if cfg.Allowlist.MinRefreshGap < 0 {
		return fmt.Errorf("allowlist.min_refresh_gap must not be negative")
	}
	return nil
}

func checkUnresolved(field, value string) error {
	if matches := envVarPattern.FindStringSubmatch(value); len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return nil
}

// interpolateEnv replaces ${VAR} with the environment value.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// If not found, leave the placeholder (will fail validation if required)
		return match
	})
}

// ParseSize parses size strings like "1MB", "512KB" or "1048576" to bytes.
func ParseSize(size string) (int64, error) {
	upper := strings.ToUpper(strings.TrimSpace(size))
	multiplier := int64(1)

	switch {
	case strings.HasSuffix(upper, "KB"):
		multiplier = 1024
		upper = strings.TrimSuffix(upper, "KB")
	case strings.HasSuffix(upper, "MB"):
		multiplier = 1024 * 1024
		upper = strings.TrimSuffix(upper, "MB")
	case strings.HasSuffix(upper, "GB"):
		multiplier = 1024 * 1024 * 1024
		upper = strings.TrimSuffix(upper, "GB")
	}

	value, err := strconv.ParseInt(strings.TrimSpace(upper), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %w", err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}

	result := value * multiplier
	if result/multiplier != value {
		return 0, fmt.Errorf("size too large")
	}
	return result, nil
}
