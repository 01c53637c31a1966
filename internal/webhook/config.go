package webhook

import (
	"fmt"
	"strings"

	"github.com/mattjoyce/hookserver/internal/config"
)

// Config holds HTTP server configuration.
type Config struct {
	Listen string
	// Path is the single hook endpoint, e.g. "/hooks".
	Path        string
	MaxBodySize int64
	// ProxyCount is the number of trusted reverse proxies in front of the
	// server. 0 means the socket peer is the client.
	ProxyCount int
	// AdminToken enables the /admin routes when non-empty.
	AdminToken string
}

// Default values
const (
	DefaultMaxBodySize = 1048576 // 1 MB
	DefaultPath        = "/hooks"
)

// FromGlobalConfig converts the loaded config to webhook.Config.
func FromGlobalConfig(cfg *config.Config) (Config, error) {
	if cfg == nil {
		return Config{}, fmt.Errorf("config is nil")
	}
	out := Config{
		Listen:      cfg.Server.Listen,
		Path:        cfg.Server.Path,
		MaxBodySize: cfg.Server.MaxBodyBytes,
		ProxyCount:  cfg.Server.ProxyCount,
		AdminToken:  cfg.Server.AdminToken,
	}
	return out.withDefaults()
}

func (c Config) withDefaults() (Config, error) {
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if !strings.HasPrefix(c.Path, "/") {
		return Config{}, fmt.Errorf("hook path %q must start with /", c.Path)
	}
	if reserved(c.Path) {
		return Config{}, fmt.Errorf("hook path %q collides with a built-in route", c.Path)
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = DefaultMaxBodySize
	}
	if c.ProxyCount < 0 {
		return Config{}, fmt.Errorf("proxy_count must not be negative")
	}
	return c, nil
}

func reserved(path string) bool {
	switch {
	case path == "/healthz", path == "/metrics":
		return true
	case path == "/admin", strings.HasPrefix(path, "/admin/"):
		return true
	}
	return false
}
