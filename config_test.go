package eventflit

import (
	"net/url"
	"testing"
	"time"
)

func TestResolveConfig_ExplicitValues(t *testing.T) {
	cfg := Config{
		Key:  "app-key",
		Host: "ws.example.com",
		Port: 6001,
	}
	resolved, err := resolveConfig(cfg)
	if err != nil {
		t.Fatalf("resolveConfig() error: %v", err)
	}
	if resolved.Key != "app-key" {
		t.Errorf("Key = %q, want %q", resolved.Key, "app-key")
	}
	if resolved.Host != "ws.example.com" {
		t.Errorf("Host = %q, want explicit value", resolved.Host)
	}
	if resolved.Port != 6001 {
		t.Errorf("Port = %d, want 6001", resolved.Port)
	}
}

func TestResolveConfig_EnvFallback(t *testing.T) {
	t.Setenv("EVENTFLIT_KEY", "env-key")
	t.Setenv("EVENTFLIT_HOST", "env-host")
	t.Setenv("EVENTFLIT_CLUSTER", "")

	resolved, err := resolveConfig(Config{})
	if err != nil {
		t.Fatalf("resolveConfig() error: %v", err)
	}
	if resolved.Key != "env-key" {
		t.Errorf("Key = %q, want env value", resolved.Key)
	}
	if resolved.Host != "env-host" {
		t.Errorf("Host = %q, want env value", resolved.Host)
	}
}

func TestResolveConfig_ExplicitOverridesEnv(t *testing.T) {
	t.Setenv("EVENTFLIT_KEY", "env-key")

	resolved, err := resolveConfig(Config{Key: "explicit-key"})
	if err != nil {
		t.Fatalf("resolveConfig() error: %v", err)
	}
	if resolved.Key != "explicit-key" {
		t.Errorf("Key = %q, want explicit value", resolved.Key)
	}
}

func TestResolveConfig_MissingKey(t *testing.T) {
	t.Setenv("EVENTFLIT_KEY", "")

	if _, err := resolveConfig(Config{}); err == nil {
		t.Fatal("resolveConfig() should error when Key is missing")
	}
}

func TestResolveConfig_Defaults(t *testing.T) {
	t.Setenv("EVENTFLIT_HOST", "")
	t.Setenv("EVENTFLIT_CLUSTER", "")

	resolved, err := resolveConfig(Config{Key: "k"})
	if err != nil {
		t.Fatalf("resolveConfig() error: %v", err)
	}
	if resolved.Host != defaultHost {
		t.Errorf("Host = %q, want %q", resolved.Host, defaultHost)
	}
	if resolved.Port != 443 {
		t.Errorf("Port = %d, want 443", resolved.Port)
	}
	if resolved.MaxReconnectGap != defaultReconnectGap {
		t.Errorf("MaxReconnectGap = %v, want %v", resolved.MaxReconnectGap, defaultReconnectGap)
	}
	if resolved.PongTimeout != defaultPongTimeout {
		t.Errorf("PongTimeout = %v, want %v", resolved.PongTimeout, defaultPongTimeout)
	}
	if _, ok := resolved.Auth.(NoAuth); !ok {
		t.Errorf("Auth = %T, want NoAuth", resolved.Auth)
	}
}

func TestResolveConfig_InsecurePort(t *testing.T) {
	resolved, err := resolveConfig(Config{Key: "k", Host: "h", Insecure: true})
	if err != nil {
		t.Fatalf("resolveConfig() error: %v", err)
	}
	if resolved.Port != 80 {
		t.Errorf("Port = %d, want 80", resolved.Port)
	}
}

func TestResolveConfig_Cluster(t *testing.T) {
	t.Setenv("EVENTFLIT_HOST", "")

	resolved, err := resolveConfig(Config{Key: "k", Cluster: "eu"})
	if err != nil {
		t.Fatalf("resolveConfig() error: %v", err)
	}
	if resolved.Host != "ws-eu.eventflit.com" {
		t.Errorf("Host = %q, want ws-eu.eventflit.com", resolved.Host)
	}

	resolved, err = resolveConfig(Config{Key: "k", Cluster: "eu", Host: "custom"})
	if err != nil {
		t.Fatalf("resolveConfig() error: %v", err)
	}
	if resolved.Host != "custom" {
		t.Errorf("Host = %q, want Host to win over Cluster", resolved.Host)
	}
}

func TestResolveConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"port too large", Config{Key: "k", Host: "h", Port: 70000}},
		{"negative port", Config{Key: "k", Host: "h", Port: -1}},
		{"negative attempts", Config{Key: "k", Host: "h", MaxReconnectAttempts: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := resolveConfig(tt.cfg); err == nil {
				t.Fatal("resolveConfig() should error")
			}
		})
	}
}

func TestResolveConfig_KeepsTimeouts(t *testing.T) {
	resolved, err := resolveConfig(Config{
		Key:             "k",
		Host:            "h",
		MaxReconnectGap: 5 * time.Second,
		PongTimeout:     2 * time.Second,
		ActivityTimeout: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("resolveConfig() error: %v", err)
	}
	if resolved.MaxReconnectGap != 5*time.Second || resolved.PongTimeout != 2*time.Second ||
		resolved.ActivityTimeout != 10*time.Second {
		t.Errorf("timeouts changed: %+v", resolved)
	}
}

func TestSocketURL(t *testing.T) {
	tests := []struct {
		name       string
		cfg        Config
		wantScheme string
		wantHost   string
	}{
		{"secure", Config{Key: "abc", Host: "ws.example.com", Port: 443}, "wss", "ws.example.com:443"},
		{"insecure", Config{Key: "abc", Host: "localhost", Port: 8080, Insecure: true}, "ws", "localhost:8080"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(socketURL(tt.cfg))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if u.Scheme != tt.wantScheme {
				t.Errorf("scheme = %q, want %q", u.Scheme, tt.wantScheme)
			}
			if u.Host != tt.wantHost {
				t.Errorf("host = %q, want %q", u.Host, tt.wantHost)
			}
			if u.Path != "/app/abc" {
				t.Errorf("path = %q, want /app/abc", u.Path)
			}
			q := u.Query()
			if q.Get("client") != ClientName || q.Get("version") != Version || q.Get("protocol") != "7" {
				t.Errorf("query = %q", u.RawQuery)
			}
		})
	}
}
