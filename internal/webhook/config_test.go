package webhook

import (
	"testing"

	"github.com/mattjoyce/hookserver/internal/config"
)

func TestFromGlobalConfig(t *testing.T) {
	cfg, err := config.Parse([]byte("server:\n  path: /github\n  proxy_count: 2\n  admin_token: adm\nsecurity:\n  signing_key: k\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	wc, err := FromGlobalConfig(cfg)
	if err != nil {
		t.Fatalf("FromGlobalConfig: %v", err)
	}
	if wc.Path != "/github" || wc.ProxyCount != 2 || wc.AdminToken != "adm" {
		t.Errorf("unexpected config: %+v", wc)
	}
	if wc.MaxBodySize != DefaultMaxBodySize {
		t.Errorf("MaxBodySize = %d, want default", wc.MaxBodySize)
	}

	if _, err := FromGlobalConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestWithDefaults(t *testing.T) {
	tests := []struct {
		name    string
		in      Config
		wantErr bool
	}{
		{name: "empty gets defaults", in: Config{}},
		{name: "relative path", in: Config{Path: "hooks"}, wantErr: true},
		{name: "admin collision", in: Config{Path: "/admin/hooks"}, wantErr: true},
		{name: "metrics collision", in: Config{Path: "/metrics"}, wantErr: true},
		{name: "admin-like but distinct", in: Config{Path: "/administer"}},
		{name: "negative proxies", in: Config{ProxyCount: -1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.withDefaults()
			if (err != nil) != tt.wantErr {
				t.Fatalf("withDefaults() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && (got.Path == "" || got.MaxBodySize <= 0) {
				t.Errorf("defaults not applied: %+v", got)
			}
		})
	}
}
