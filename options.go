package eventflit

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/eventflit/eventflit-go/push"
)

// ClientOption configures optional client collaborators.
type ClientOption func(*clientOptions)

type clientOptions struct {
	transport  Transport
	logger     *zerolog.Logger
	httpClient *http.Client
	registerer prometheus.Registerer
	userData   UserDataFetcher
	push       []push.Option
}

// WithTransport replaces the default gorilla/websocket transport.
func WithTransport(t Transport) ClientOption {
	return func(o *clientOptions) {
		o.transport = t
	}
}

// WithLogger sets the logger the client writes to. By default nothing is
// written, but entries still reach OnDebugLog.
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(o *clientOptions) {
		o.logger = &logger
	}
}

// WithHTTPClient sets the HTTP client used for auth endpoints and the push
// API. The default client is instrumented with otelhttp.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *clientOptions) {
		o.httpClient = c
	}
}

// WithMetricsRegisterer registers the client's Prometheus collectors.
// Without it the collectors are kept but not registered anywhere.
func WithMetricsRegisterer(r prometheus.Registerer) ClientOption {
	return func(o *clientOptions) {
		o.registerer = r
	}
}

// WithUserDataFetcher supplies the local member for presence channels signed
// with InlineSecret.
func WithUserDataFetcher(fn UserDataFetcher) ClientOption {
	return func(o *clientOptions) {
		o.userData = fn
	}
}

// WithPush passes options to the push notification client returned by
// Client.Push.
func WithPush(opts ...push.Option) ClientOption {
	return func(o *clientOptions) {
		o.push = append(o.push, opts...)
	}
}

// SubscribeOption configures a single subscription.
type SubscribeOption func(*subscribeOptions)

type subscribeOptions struct {
	auth            *AuthData
	onMemberAdded   MemberHandler
	onMemberRemoved MemberHandler
}

// WithAuth subscribes with precomputed credentials instead of asking the
// client's AuthMethod.
func WithAuth(data AuthData) SubscribeOption {
	return func(o *subscribeOptions) {
		o.auth = &data
	}
}

// WithMemberAdded is called when a member joins a presence channel.
func WithMemberAdded(fn MemberHandler) SubscribeOption {
	return func(o *subscribeOptions) {
		o.onMemberAdded = fn
	}
}

// WithMemberRemoved is called when a member leaves a presence channel.
func WithMemberRemoved(fn MemberHandler) SubscribeOption {
	return func(o *subscribeOptions) {
		o.onMemberRemoved = fn
	}
}
