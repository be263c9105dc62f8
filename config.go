package eventflit

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

const (
	// ProtocolVersion is the wire protocol revision announced on connect.
	ProtocolVersion = 7
	// Version is the library version announced on connect.
	Version = "0.1.0"
	// ClientName identifies this library to the service.
	ClientName = "eventflit-websocket-go"

	defaultHost            = "service.eventflit.com"
	defaultActivityTimeout = 60 * time.Second
	defaultPongTimeout     = 30 * time.Second
	defaultReconnectGap    = 30 * time.Second
	initialReconnectDelay  = 1 * time.Second
)

// Config holds the configuration for an Eventflit client.
type Config struct {
	// Key is the application key.
	// Fallback: EVENTFLIT_KEY environment variable.
	Key string

	// Host is the WebSocket host. Takes precedence over Cluster.
	// Fallback: EVENTFLIT_HOST environment variable.
	Host string

	// Cluster selects the host "ws-<cluster>.eventflit.com" when Host is empty.
	// Fallback: EVENTFLIT_CLUSTER environment variable.
	Cluster string

	// Port defaults to 443, or 80 when Insecure is set.
	Port int

	// Insecure connects over ws:// instead of wss://.
	Insecure bool

	// Auth authorizes private and presence channel subscriptions.
	// Defaults to NoAuth.
	Auth AuthMethod

	// DisableAutoReconnect stops the client from reconnecting after the
	// transport drops unexpectedly.
	DisableAutoReconnect bool

	// MaxReconnectAttempts bounds consecutive reconnect attempts. Zero means unbounded.
	MaxReconnectAttempts int

	// MaxReconnectGap caps the delay between reconnect attempts (default 30s).
	MaxReconnectGap time.Duration

	// ActivityTimeout overrides the server-provided inactivity interval after
	// which the client probes the connection with a ping.
	ActivityTimeout time.Duration

	// PongTimeout is how long to wait for traffic after a ping (default 30s).
	PongTimeout time.Duration

	// RawPayloads disables JSON decoding of event data; callbacks always
	// receive the data as a string.
	RawPayloads bool
}

// resolveConfig fills empty fields from environment variables and defaults, and validates required fields.
func resolveConfig(cfg Config) (Config, error) {
	if cfg.Key == "" {
		cfg.Key = os.Getenv("EVENTFLIT_KEY")
	}
	if cfg.Host == "" {
		cfg.Host = os.Getenv("EVENTFLIT_HOST")
	}
	if cfg.Cluster == "" {
		cfg.Cluster = os.Getenv("EVENTFLIT_CLUSTER")
	}

	if cfg.Key == "" {
		return cfg, fmt.Errorf("Key is required (set in Config or EVENTFLIT_KEY env)")
	}

	if cfg.Host == "" {
		if cfg.Cluster != "" {
			cfg.Host = "ws-" + cfg.Cluster + ".eventflit.com"
		} else {
			cfg.Host = defaultHost
		}
	}
	if cfg.Port == 0 {
		if cfg.Insecure {
			cfg.Port = 80
		} else {
			cfg.Port = 443
		}
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return cfg, fmt.Errorf("Port %d is out of range", cfg.Port)
	}
	if cfg.MaxReconnectAttempts < 0 {
		return cfg, fmt.Errorf("MaxReconnectAttempts must not be negative")
	}
	if cfg.MaxReconnectGap <= 0 {
		cfg.MaxReconnectGap = defaultReconnectGap
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultPongTimeout
	}
	if cfg.Auth == nil {
		cfg.Auth = NoAuth{}
	}

	return cfg, nil
}

// socketURL builds the connection URL including the client identification query.
func socketURL(cfg Config) string {
	scheme := "wss"
	if cfg.Insecure {
		scheme = "ws"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Path:   "/app/" + cfg.Key,
	}
	q := url.Values{}
	q.Set("client", ClientName)
	q.Set("version", Version)
	q.Set("protocol", strconv.Itoa(ProtocolVersion))
	u.RawQuery = q.Encode()
	return u.String()
}
