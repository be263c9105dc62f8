package push

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const (
	// DefaultBaseURL is the push notification service endpoint.
	DefaultBaseURL = "https://push.eventflit.com"
	// DefaultPlatform is the device platform registered with the service.
	DefaultPlatform = "apns"
	// DefaultLibrary is sent in the X-Eventflit-Library header.
	DefaultLibrary = "eventflit-websocket-go 0.1.0"

	defaultMaxAttempts = 6
	defaultRetryUnit   = time.Second
)

// Option configures a Client.
type Option func(*options)

type options struct {
	baseURL     string
	platform    string
	library     string
	httpClient  *http.Client
	logger      zerolog.Logger
	maxAttempts int
	retryUnit   time.Duration
	registerer  prometheus.Registerer
}

func defaults() options {
	return options{
		baseURL:     DefaultBaseURL,
		platform:    DefaultPlatform,
		library:     DefaultLibrary,
		httpClient:  http.DefaultClient,
		logger:      zerolog.Nop(),
		maxAttempts: defaultMaxAttempts,
		retryUnit:   defaultRetryUnit,
	}
}

// WithBaseURL overrides the service endpoint.
func WithBaseURL(u string) Option {
	return func(o *options) {
		o.baseURL = u
	}
}

// WithPlatform overrides the device platform path segment.
func WithPlatform(p string) Option {
	return func(o *options) {
		o.platform = p
	}
}

// WithLibrary sets the X-Eventflit-Library header value.
func WithLibrary(nameAndVersion string) Option {
	return func(o *options) {
		o.library = nameAndVersion
	}
}

// WithHTTPClient sets the HTTP client used for every request.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMaxAttempts sets how many consecutive failures halt the queue.
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithRetryUnit scales the retry delay, which is attempts² × unit.
func WithRetryUnit(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.retryUnit = d
		}
	}
}

// WithRegisterer registers the queue's Prometheus collectors.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = r
	}
}
