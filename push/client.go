// Package push manages push notification interests for an Eventflit app.
//
// A device is registered once with its platform token; the service answers
// with a client id. Interest changes are queued and sent strictly one at a
// time, in order, once both the app key and the client id are known. Failed
// requests are retried after attempts² × RetryUnit; after MaxAttempts
// consecutive failures the queue halts until Resume or a new registration.
package push

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const maxResponseBody = 64 << 10

// Client talks to the push notification service.
type Client struct {
	baseURL     string
	platform    string
	library     string
	http        *http.Client
	log         zerolog.Logger
	maxAttempts int
	retryUnit   time.Duration
	metrics     *metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	hooksMu                sync.RWMutex
	onRegistered           func(clientID string)
	onRegistrationFailed   func(err error)
	onInterestSubscribed   func(interest string)
	onInterestUnsubscribed func(interest string)
	onInterestsSet         func(interests []string)
	onQueueHalted          func(task Task, err error)

	mu      sync.Mutex
	q       queue
	running bool
	closed  bool
}

// New creates a client for the app identified by appKey. An empty key may be
// supplied later with SetAppKey; queued changes wait until then.
func New(appKey string, opts ...Option) *Client {
	o := defaults()
	for _, opt := range opts {
		opt(&o)
	}

	m, err := newMetrics(o.registerer)
	if err != nil {
		o.logger.Warn().Err(err).Msg("push metrics not registered")
		m, _ = newMetrics(nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		baseURL:     strings.TrimRight(o.baseURL, "/"),
		platform:    o.platform,
		library:     o.library,
		http:        o.httpClient,
		log:         o.logger,
		maxAttempts: o.maxAttempts,
		retryUnit:   o.retryUnit,
		metrics:     m,
		ctx:         ctx,
		cancel:      cancel,
		q:           queue{appKey: appKey},
	}
}

// SetAppKey sets the app key and starts queued work if the client id is known.
func (c *Client) SetAppKey(key string) {
	c.mu.Lock()
	c.q.appKey = key
	c.mu.Unlock()
	c.kick()
}

// SetClientID sets the client id, e.g. one persisted from an earlier
// registration, and starts queued work if the app key is known.
func (c *Client) SetClientID(id string) {
	c.mu.Lock()
	c.q.clientID = id
	c.mu.Unlock()
	c.kick()
}

// ClientID returns the id issued at registration, or "" before it.
func (c *Client) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.q.clientID
}

// Ready reports whether both the app key and the client id are known.
func (c *Client) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.q.state() == ready
}

// Halted reports whether the queue stopped after too many failures.
func (c *Client) Halted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.q.halted
}

// Pending returns a copy of the queued tasks, head first.
func (c *Client) Pending() []Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.q.snapshot()
}

// Register registers the device token in the background. The result is
// reported through OnRegistered or OnRegistrationFailed; on success the queue
// starts and any halt is cleared.
func (c *Client) Register(deviceToken []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		_, _ = c.RegisterContext(c.ctx, deviceToken)
	}()
}

// RegisterContext registers the device token and waits for the client id.
// Hooks fire as for Register.
func (c *Client) RegisterContext(ctx context.Context, deviceToken []byte) (string, error) {
	id, err := c.register(ctx, deviceToken)
	if err != nil {
		c.metrics.registrations.WithLabelValues("error").Inc()
		c.log.Warn().Err(err).Msg("device registration failed")
		c.hooksMu.RLock()
		fn := c.onRegistrationFailed
		c.hooksMu.RUnlock()
		if fn != nil {
			fn(err)
		}
		return "", err
	}

	c.metrics.registrations.WithLabelValues("ok").Inc()
	c.log.Debug().Str("client_id", id).Msg("registered for push notifications")

	c.mu.Lock()
	c.q.clientID = id
	c.q.resume()
	c.mu.Unlock()

	c.hooksMu.RLock()
	fn := c.onRegistered
	c.hooksMu.RUnlock()
	if fn != nil {
		fn(id)
	}

	c.kick()
	return id, nil
}

func (c *Client) register(ctx context.Context, deviceToken []byte) (string, error) {
	if len(deviceToken) == 0 {
		return "", &RegistrationError{Err: ErrMissingToken}
	}
	c.mu.Lock()
	appKey := c.q.appKey
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return "", &RegistrationError{Err: ErrClosed}
	}
	if appKey == "" {
		return "", &RegistrationError{Err: ErrMissingAppKey}
	}

	endpoint := c.baseURL + "/device/app/" + url.PathEscape(appKey) + "/" + url.PathEscape(c.platform)
	body := map[string]any{
		"appKey": appKey,
		"token":  hex.EncodeToString(deviceToken),
	}
	status, respBody, err := c.do(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", &RegistrationError{StatusCode: status, Body: string(respBody), Err: err}
	}

	id := gjson.GetBytes(respBody, "id")
	if !gjson.ValidBytes(respBody) || id.Type != gjson.String || id.Str == "" {
		return "", &RegistrationError{StatusCode: status, Body: string(respBody), Err: ErrMissingID}
	}
	return id.Str, nil
}

// Subscribe queues a subscription to interest.
func (c *Client) Subscribe(interest string) error {
	if interest == "" {
		return ErrEmptyInterest
	}
	return c.enqueue(OpSubscribe, []string{interest})
}

// Unsubscribe queues removal of interest.
func (c *Client) Unsubscribe(interest string) error {
	if interest == "" {
		return ErrEmptyInterest
	}
	return c.enqueue(OpUnsubscribe, []string{interest})
}

// SetSubscriptions queues replacement of the whole interest set.
func (c *Client) SetSubscriptions(interests []string) error {
	for _, in := range interests {
		if in == "" {
			return ErrEmptyInterest
		}
	}
	return c.enqueue(OpReplaceAll, append([]string{}, interests...))
}

func (c *Client) enqueue(op Operation, interests []string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	t := &Task{
		ID:        uuid.NewString(),
		Op:        op,
		Interests: interests,
		Enqueued:  time.Now(),
	}
	c.q.push(t)
	state := c.q.state()
	c.mu.Unlock()

	c.log.Debug().Str("task", t.ID).Stringer("op", op).Strs("interests", interests).
		Stringer("state", state).Msg("interest change queued")
	c.kick()
	return nil
}

// Resume restarts a halted queue.
func (c *Client) Resume() {
	c.mu.Lock()
	c.q.resume()
	c.mu.Unlock()
	c.kick()
}

// Close stops the queue. Pending tasks are kept but never sent.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}

// OnRegistered sets the callback for a successful registration.
func (c *Client) OnRegistered(fn func(clientID string)) {
	c.hooksMu.Lock()
	c.onRegistered = fn
	c.hooksMu.Unlock()
}

// OnRegistrationFailed sets the callback for a failed registration. err is
// a *RegistrationError.
func (c *Client) OnRegistrationFailed(fn func(err error)) {
	c.hooksMu.Lock()
	c.onRegistrationFailed = fn
	c.hooksMu.Unlock()
}

// OnInterestSubscribed sets the callback for a completed subscription.
func (c *Client) OnInterestSubscribed(fn func(interest string)) {
	c.hooksMu.Lock()
	c.onInterestSubscribed = fn
	c.hooksMu.Unlock()
}

// OnInterestUnsubscribed sets the callback for a completed unsubscription.
func (c *Client) OnInterestUnsubscribed(fn func(interest string)) {
	c.hooksMu.Lock()
	c.onInterestUnsubscribed = fn
	c.hooksMu.Unlock()
}

// OnInterestsSet sets the callback for a completed SetSubscriptions.
func (c *Client) OnInterestsSet(fn func(interests []string)) {
	c.hooksMu.Lock()
	c.onInterestsSet = fn
	c.hooksMu.Unlock()
}

// OnQueueHalted sets the callback invoked when the queue gives up on its
// head task. err is the last *InterestRequestError.
func (c *Client) OnQueueHalted(fn func(task Task, err error)) {
	c.hooksMu.Lock()
	c.onQueueHalted = fn
	c.hooksMu.Unlock()
}

// kick starts the worker if there is runnable work and none is running.
func (c *Client) kick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running || c.closed || !c.q.runnable() {
		return
	}
	c.running = true
	c.wg.Add(1)
	go c.run()
}

// run processes the queue head by head until it is empty, halted or waiting
// for credentials.
func (c *Client) run() {
	defer c.wg.Done()

	for {
		c.mu.Lock()
		if c.closed || !c.q.runnable() {
			if !c.closed && !c.q.halted && len(c.q.tasks) > 0 {
				c.log.Debug().Msg("app key or client id not set, waiting for both")
			}
			c.running = false
			c.mu.Unlock()
			return
		}
		task := c.q.head()
		snapshot := task.clone()
		appKey, clientID := c.q.appKey, c.q.clientID
		attempt := c.q.failures + 1
		c.mu.Unlock()

		c.log.Debug().Str("task", task.ID).Int("attempt", attempt).Int("max", c.maxAttempts).
			Msg("sending interest change")
		err := c.execute(c.ctx, appKey, clientID, snapshot)

		c.mu.Lock()
		if c.closed {
			c.running = false
			c.mu.Unlock()
			return
		}
		if err == nil {
			c.q.succeed()
			c.mu.Unlock()
			c.metrics.requests.WithLabelValues(snapshot.Op.String(), "ok").Inc()
			c.completed(snapshot)
			continue
		}

		c.metrics.requests.WithLabelValues(snapshot.Op.String(), "error").Inc()
		attempts, halt := c.q.fail(c.maxAttempts)
		snapshot.Attempts = attempts
		if halt {
			c.running = false
			c.mu.Unlock()
			c.log.Warn().Err(err).Str("task", task.ID).Msg("max number of failed requests reached, queue halted")
			c.halted(snapshot, err)
			return
		}
		c.mu.Unlock()

		delay := retryDelay(attempts, c.retryUnit)
		c.metrics.retries.Inc()
		c.log.Debug().Err(err).Str("task", task.ID).Dur("delay", delay).Msg("retrying interest change")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-c.ctx.Done():
			timer.Stop()
			c.mu.Lock()
			c.running = false
			c.mu.Unlock()
			return
		}
	}
}

func (c *Client) execute(ctx context.Context, appKey, clientID string, t Task) error {
	endpoint := c.baseURL + "/device/app/" + url.PathEscape(appKey) + "/" + url.PathEscape(c.platform) +
		"/" + url.PathEscape(clientID) + "/interests/"

	body := map[string]any{"appKey": appKey}
	switch t.Op {
	case OpSubscribe, OpUnsubscribe:
		endpoint += url.PathEscape(t.Interests[0])
	case OpReplaceAll:
		body["interests"] = t.Interests
	}

	status, respBody, err := c.do(ctx, t.Op.method(), endpoint, body)
	if err != nil {
		return &InterestRequestError{
			Op:         t.Op,
			Interests:  t.Interests,
			StatusCode: status,
			Body:       string(respBody),
			Err:        err,
		}
	}
	return nil
}

func (c *Client) completed(t Task) {
	c.log.Debug().Stringer("op", t.Op).Strs("interests", t.Interests).Msg("interest change applied")

	c.hooksMu.RLock()
	defer c.hooksMu.RUnlock()
	switch t.Op {
	case OpSubscribe:
		if c.onInterestSubscribed != nil {
			c.onInterestSubscribed(t.Interests[0])
		}
	case OpUnsubscribe:
		if c.onInterestUnsubscribed != nil {
			c.onInterestUnsubscribed(t.Interests[0])
		}
	case OpReplaceAll:
		if c.onInterestsSet != nil {
			c.onInterestsSet(t.Interests)
		}
	}
}

func (c *Client) halted(t Task, err error) {
	c.hooksMu.RLock()
	fn := c.onQueueHalted
	c.hooksMu.RUnlock()
	if fn != nil {
		fn(t, fmt.Errorf("%w: %w", ErrQueueExhausted, err))
	}
}

// do sends a JSON request and returns the status and body. A non-2xx status
// is an error.
func (c *Client) do(ctx context.Context, method, endpoint string, body any) (int, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Eventflit-Library", c.library)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, respBody, errors.New("unexpected status " + resp.Status)
	}
	return resp.StatusCode, respBody, nil
}
