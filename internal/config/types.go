package config

import "time"

// Config represents the complete hookserver configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Server    ServerConfig    `yaml:"server"`
	Provider  ProviderConfig  `yaml:"provider"`
	Security  SecurityConfig  `yaml:"security"`
	Allowlist AllowlistConfig `yaml:"allowlist"`

	// SourcePath is the absolute path of the file this config was loaded from.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// ServerConfig defines the inbound HTTP listener.
type ServerConfig struct {
	Listen string `yaml:"listen"`
	// Path is the URL path deliveries are POSTed to.
	Path string `yaml:"path"`
	// MaxBodySize accepts "1MB", "512KB" or a plain byte count.
	MaxBodySize string `yaml:"max_body_size,omitempty"`
	// ProxyCount is the number of trusted reverse proxies in front of the server.
	// Zero means the socket peer address is the client address.
	ProxyCount int `yaml:"proxy_count,omitempty"`
	// AdminToken guards the /admin routes. Empty disables them.
	AdminToken string `yaml:"admin_token,omitempty"`

	// MaxBodyBytes is MaxBodySize resolved to bytes.
	MaxBodyBytes int64 `yaml:"-"`
}

// ProviderConfig describes the webhook provider: where its address ranges
// are published and which headers carry the delivery metadata.
type ProviderConfig struct {
	Name            string `yaml:"name"`
	MetaURL         string `yaml:"meta_url"`
	MetaKey         string `yaml:"meta_key"`
	EventHeader     string `yaml:"event_header"`
	DeliveryHeader  string `yaml:"delivery_header"`
	SignatureHeader string `yaml:"signature_header"`
}

// SecurityConfig holds request authentication settings.
type SecurityConfig struct {
	// SigningKey is the shared HMAC secret. SigningKeyEnv names an environment
	// variable to read it from and takes precedence.
	SigningKey    string   `yaml:"signing_key,omitempty"`
	SigningKeyEnv string   `yaml:"signing_key_env,omitempty"`
	Algorithms    []string `yaml:"algorithms,omitempty"`
	// InsecureSkipOrigin disables the provider address check. Development only.
	InsecureSkipOrigin bool `yaml:"insecure_skip_origin,omitempty"`
	// AllowUnsigned must be set explicitly to run without a signing key.
	AllowUnsigned bool `yaml:"allow_unsigned,omitempty"`
}

// AllowlistConfig controls fetching and caching of provider address ranges.
type AllowlistConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout"`
	MinRefreshGap   time.Duration `yaml:"min_refresh_gap"`
	StaleFallback   *bool         `yaml:"stale_fallback,omitempty"`
	// SnapshotPath is the sqlite file holding the last good allowlist. Empty disables persistence.
	SnapshotPath string `yaml:"snapshot_path,omitempty"`
}

// UseStaleFallback reports whether a previously stored allowlist may be used
// when the provider endpoint cannot be reached.
func (a AllowlistConfig) UseStaleFallback() bool {
	return a.StaleFallback == nil || *a.StaleFallback
}

// ChecksumManifest is the on-disk format of .checksums.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}
