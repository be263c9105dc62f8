package eventflit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/eventflit/eventflit-go/push"
)

const defaultHTTPTimeout = 30 * time.Second

// Client is the main entry point for interacting with the Eventflit service.
// It owns one socket connection and the channels multiplexed over it.
type Client struct {
	cfg        Config
	url        string
	onError    ErrorHandler
	log        zerolog.Logger
	transport  Transport
	httpClient *http.Client
	userData   UserDataFetcher
	metrics    *metrics
	dispatcher *dispatcher
	registry   *channelRegistry
	global     *globalChannel
	push       *push.Client

	// ctx bounds auth requests and reconnect dials; cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	hooksMu              sync.RWMutex
	onStateChange        StateChangeHandler
	onSubscribed         func(channel string)
	onSubscriptionFailed func(channel string, err error)
	onDebugLog           DebugLogHandler

	mu              sync.Mutex
	state           ConnectionState
	closed          bool
	auth            AuthMethod
	conn            Conn
	gen             uint64 // bumped whenever the current connection is replaced or torn down
	socketID        string
	activityTimeout time.Duration
	activityTimer   *time.Timer
	pongTimer       *time.Timer
	reconnectTimer  *time.Timer
	backoff         *backoff
}

// NewClient creates a new Eventflit client with the given configuration.
// The onError handler is called for SDK-level errors that cannot be returned
// to a direct caller (e.g., dropped connections, unparsable frames, server
// error events). The client is not connected until Connect() is called.
func NewClient(cfg Config, onError ErrorHandler, opts ...ClientOption) (*Client, error) {
	resolved, err := resolveConfig(cfg)
	if err != nil {
		return nil, err
	}

	if onError == nil {
		return nil, errors.New("ErrorHandler must not be nil")
	}

	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	base := defaultLogger()
	if o.logger != nil {
		base = *o.logger
	}
	if o.transport == nil {
		o.transport = newWebsocketTransport()
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   defaultHTTPTimeout,
		}
	}

	m, err := newMetrics(o.registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:        resolved,
		url:        socketURL(resolved),
		onError:    onError,
		transport:  o.transport,
		httpClient: o.httpClient,
		userData:   o.userData,
		metrics:    m,
		registry:   newChannelRegistry(),
		global:     &globalChannel{},
		ctx:        ctx,
		cancel:     cancel,
		auth:       resolved.Auth,
		backoff:    newBackoff(initialReconnectDelay, resolved.MaxReconnectGap),
	}
	c.dispatcher = newDispatcher(func(v any) {
		c.onError(SDKError{
			Kind:      ErrHandlerPanic,
			Cause:     panicError(v),
			Timestamp: time.Now(),
		})
	})
	logger := base.Hook(debugHook{c: c})
	c.log = logger.With().Str("component", "eventflit").Logger()

	pushOpts := []push.Option{
		push.WithHTTPClient(o.httpClient),
		push.WithLogger(logger.With().Str("component", "push").Logger()),
		push.WithLibrary(ClientName + " " + Version),
	}
	if o.registerer != nil {
		pushOpts = append(pushOpts, push.WithRegisterer(o.registerer))
	}
	c.push = push.New(resolved.Key, append(pushOpts, o.push...)...)
	return c, nil
}

// Connect starts connecting to the service and returns without waiting for
// the connection to open. ctx bounds the initial dial only. Calling Connect
// while connecting or connected is a no-op; calling it while a reconnect is
// pending dials immediately.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	switch c.state {
	case StateConnecting, StateConnected:
		return nil
	case StateReconnecting:
		c.stopReconnectLocked()
	}
	c.backoff.reset()
	c.connectLocked(ctx)
	return nil
}

// Disconnect closes the connection. Channels stay registered and are
// subscribed again on the next Connect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectLocked()
}

// Close disconnects and releases the client. It cannot be reconnected.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.disconnectLocked()
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.push.Close()
	return nil
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SocketID returns the identifier the service assigned to the current
// connection, or "" while not connected.
func (c *Client) SocketID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.socketID
}

// SetAuthMethod replaces the auth method used for subsequent subscriptions.
// A nil method is treated as NoAuth.
func (c *Client) SetAuthMethod(m AuthMethod) {
	if m == nil {
		m = NoAuth{}
	}
	c.mu.Lock()
	c.auth = m
	c.mu.Unlock()
}

// Subscribe returns the channel with the given name, creating it if needed.
// The kind is derived from the name prefix ("private-", "presence-").
// The subscribe frame is sent immediately when connected, otherwise once the
// connection is established. Subscribing to a name that is already registered
// returns the existing channel and ignores opts; if that channel is not
// subscribed while connected, the subscribe is attempted again.
func (c *Client) Subscribe(name string, opts ...SubscribeOption) *Channel {
	var o subscribeOptions
	for _, opt := range opts {
		opt(&o)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ch, created := c.registry.add(name, func() *Channel {
		return newChannel(name, c, o)
	})
	if created {
		c.log.Debug().Str("channel", name).Str("kind", ch.kind.String()).Msg("channel registered")
	}
	if c.state == StateConnected && (created || !ch.Subscribed()) {
		c.subscribeChannelLocked(ch)
	}
	return ch
}

// SubscribePresence is Subscribe for presence channels. The name must start
// with "presence-".
func (c *Client) SubscribePresence(name string, opts ...SubscribeOption) (*PresenceChannel, error) {
	if kindOf(name) != KindPresence {
		return nil, fmt.Errorf("channel %q is not a presence channel", name)
	}
	pc, _ := c.Subscribe(name, opts...).Presence()
	return pc, nil
}

// Unsubscribe removes the channel and, when connected, tells the service.
// Unknown names are ignored.
func (c *Client) Unsubscribe(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := c.registry.remove(name)
	if ch == nil {
		return
	}
	c.releaseChannelLocked(ch)
}

// UnsubscribeAll removes every channel.
func (c *Client) UnsubscribeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ch := range c.registry.clear() {
		c.releaseChannelLocked(ch)
	}
}

// Channel returns the registered channel with the given name.
func (c *Client) Channel(name string) (*Channel, bool) {
	return c.registry.find(name)
}

// PresenceChannel returns the registered presence channel with the given name.
func (c *Client) PresenceChannel(name string) (*PresenceChannel, bool) {
	return c.registry.findPresence(name)
}

// Channels returns the registered channels in the order they were first
// subscribed.
func (c *Client) Channels() []*Channel {
	return c.registry.list()
}

// Bind registers fn for every inbound event, whatever its channel, and
// returns an id for Unbind.
func (c *Client) Bind(fn EventHandler) string {
	return c.global.bind(fn)
}

// Unbind removes the global binding with the given id.
func (c *Client) Unbind(id string) {
	c.global.unbind(id)
}

// UnbindAll removes every global binding. Channel bindings are kept.
func (c *Client) UnbindAll() {
	c.global.unbindAll()
}

// OnStateChange sets the callback invoked on every connection state change.
func (c *Client) OnStateChange(fn StateChangeHandler) {
	c.hooksMu.Lock()
	c.onStateChange = fn
	c.hooksMu.Unlock()
}

// OnSubscribed sets the callback invoked when the service confirms a
// subscription.
func (c *Client) OnSubscribed(fn func(channel string)) {
	c.hooksMu.Lock()
	c.onSubscribed = fn
	c.hooksMu.Unlock()
}

// OnSubscriptionFailed sets the callback invoked when a channel cannot be
// authorized or the service rejects the subscription. err is an *AuthError
// or a *ServerError.
func (c *Client) OnSubscriptionFailed(fn func(channel string, err error)) {
	c.hooksMu.Lock()
	c.onSubscriptionFailed = fn
	c.hooksMu.Unlock()
}

// OnDebugLog sets the callback receiving the client's log messages.
func (c *Client) OnDebugLog(fn DebugLogHandler) {
	c.hooksMu.Lock()
	c.onDebugLog = fn
	c.hooksMu.Unlock()
}

// Push returns the push notification interest client. It shares the app key
// and HTTP client with c and is closed by Close.
func (c *Client) Push() *push.Client {
	return c.push
}

// sendFrame sends an event on behalf of a channel.
func (c *Client) sendFrame(event, channel string, data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	if c.state != StateConnected {
		return ErrNotConnected
	}
	return c.sendLocked(event, channel, data)
}

// reportError routes an SDK-level error to the ErrorHandler.
func (c *Client) reportError(e SDKError) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	c.log.Warn().
		Err(e.Cause).
		Str("kind", e.Kind.String()).
		Str("channel", e.Channel).
		Str("event", e.Event).
		Msg("reporting error")
	c.dispatcher.dispatch(func() { c.onError(e) })
}
