package eventflit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// transitionLocked moves the connection to state s. The host's state-change
// callback is queued before any other callback caused by the transition.
func (c *Client) transitionLocked(s ConnectionState) {
	old := c.state
	if old == s {
		return
	}
	c.state = s
	c.metrics.stateTransitions.WithLabelValues(s.String()).Inc()
	c.log.Debug().Str("from", old.String()).Str("to", s.String()).Msg("connection state changed")

	c.hooksMu.RLock()
	fn := c.onStateChange
	c.hooksMu.RUnlock()
	if fn != nil {
		c.dispatcher.dispatch(func() { fn(old, s) })
	}

	if s != StateConnected {
		c.markUnsubscribedLocked()
	}
}

func (c *Client) markUnsubscribedLocked() {
	for _, ch := range c.registry.list() {
		if ch.setSubscribed(false) {
			c.metrics.subscribedGauge.Dec()
		}
	}
}

// connectLocked starts a dial for a new connection generation.
func (c *Client) connectLocked(ctx context.Context) {
	c.transitionLocked(StateConnecting)
	c.gen++
	c.socketID = ""
	go c.dial(ctx, c.gen)
}

func (c *Client) dial(ctx context.Context, gen uint64) {
	c.log.Debug().Str("url", c.url).Msg("dialing")
	conn, err := c.transport.Dial(ctx, c.url)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.state != StateConnecting {
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		var transportErr *TransportError
		if !errors.As(err, &transportErr) {
			err = &TransportError{URL: c.url, Err: err}
		}
		c.connectionLostLocked(err)
		return
	}

	c.conn = conn
	c.armActivityLocked()
	conn.Listen(TransportEvents{
		OnMessage: func(frame []byte) { c.handleFrame(gen, frame) },
		OnClose:   func(err error) { c.handleClose(gen, err) },
	})
}

// teardownLocked drops the current connection and invalidates every pending
// callback tied to it.
func (c *Client) teardownLocked() {
	c.stopActivityLocked()
	c.gen++
	c.socketID = ""
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.log.Debug().Err(err).Msg("close connection")
		}
		c.conn = nil
	}
}

func (c *Client) disconnectLocked() {
	c.stopReconnectLocked()
	c.backoff.reset()

	switch c.state {
	case StateDisconnected, StateDisconnecting:
		return
	case StateReconnecting:
		c.transitionLocked(StateDisconnected)
		return
	}

	c.transitionLocked(StateDisconnecting)
	c.teardownLocked()
	c.transitionLocked(StateDisconnected)
}

func (c *Client) handleClose(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return
	}
	if err == nil {
		err = errors.New("connection closed by peer")
	}
	c.connectionLostLocked(&TransportError{URL: c.url, Err: err})
}

// connectionLostLocked handles a failed dial or an unexpected close and
// decides whether to reconnect.
func (c *Client) connectionLostLocked(err error) {
	c.teardownLocked()

	if c.closed || c.cfg.DisableAutoReconnect {
		c.transitionLocked(StateDisconnected)
		c.reportError(SDKError{Kind: ErrTransport, Cause: err})
		return
	}
	if c.backoff.exhausted(c.cfg.MaxReconnectAttempts) {
		c.transitionLocked(StateDisconnected)
		c.reportError(SDKError{Kind: ErrTransport, Cause: err})
		c.log.Warn().Int("attempts", c.backoff.attempts).Msg("giving up reconnecting")
		c.backoff.reset()
		return
	}

	c.transitionLocked(StateReconnecting)
	c.reportError(SDKError{Kind: ErrTransport, Cause: err})

	delay := c.backoff.next()
	c.metrics.reconnectAttempts.Inc()
	c.log.Debug().Dur("delay", delay).Int("attempt", c.backoff.attempts).Msg("scheduling reconnect")
	c.reconnectTimer = time.AfterFunc(delay, c.reconnect)
}

func (c *Client) reconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.state != StateReconnecting {
		return
	}
	c.reconnectTimer = nil
	c.connectLocked(c.ctx)
}

func (c *Client) stopReconnectLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

// armActivityLocked restarts the inactivity countdown and cancels a pending
// pong wait. It is called for every inbound frame.
func (c *Client) armActivityLocked() {
	c.stopActivityLocked()

	timeout := c.cfg.ActivityTimeout
	if timeout <= 0 {
		timeout = c.activityTimeout
	}
	if timeout <= 0 {
		timeout = defaultActivityTimeout
	}
	gen := c.gen
	c.activityTimer = time.AfterFunc(timeout, func() { c.activityExpired(gen) })
}

func (c *Client) stopActivityLocked() {
	if c.activityTimer != nil {
		c.activityTimer.Stop()
		c.activityTimer = nil
	}
	if c.pongTimer != nil {
		c.pongTimer.Stop()
		c.pongTimer = nil
	}
}

func (c *Client) activityExpired(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.conn == nil {
		return
	}
	c.log.Debug().Msg("no activity, sending ping")
	if err := c.sendLocked(eventPing, "", nil); err != nil {
		c.connectionLostLocked(err)
		return
	}
	c.pongTimer = time.AfterFunc(c.cfg.PongTimeout, func() { c.pongExpired(gen) })
}

func (c *Client) pongExpired(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return
	}
	c.connectionLostLocked(&TransportError{URL: c.url, Err: ErrPongTimeout})
}

// handleFrame processes one inbound frame from connection generation gen.
func (c *Client) handleFrame(gen uint64, frame []byte) {
	c.metrics.framesReceived.Inc()

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return
	}
	c.armActivityLocked()

	env, err := parseEnvelope(frame)
	if err != nil {
		c.reportError(SDKError{
			Kind:  ErrProtocol,
			Cause: &ProtocolError{Raw: frame, Err: err},
			Raw:   frame,
		})
		return
	}

	raw := env.payloadString()
	name := env.Event

	switch env.Event {
	case eventPing:
		if err := c.sendLocked(eventPong, "", nil); err != nil {
			c.reportError(SDKError{Kind: ErrTransportWrite, Event: eventPong, Cause: err})
		}
		return
	case eventPong:
		return
	case eventConnectionEstablished:
		if !c.handleConnectionEstablishedLocked(raw, frame) {
			return
		}
	case eventError:
		c.handleServerErrorLocked(raw, frame)
	case eventSubscriptionError:
		c.handleSubscriptionErrorLocked(env.Channel, raw)
	case eventInternalSubscriptionSucceeded:
		c.handleSubscriptionSucceededLocked(env.Channel, raw, frame)
		name = EventSubscriptionSucceeded
	case eventInternalMemberAdded:
		c.handleMemberAddedLocked(env.Channel, raw, frame)
		name = EventMemberAdded
	case eventInternalMemberRemoved:
		c.handleMemberRemovedLocked(env.Channel, raw, frame)
		name = EventMemberRemoved
	}

	c.routeLocked(Event{
		Name:    name,
		Channel: env.Channel,
		Data:    decodeData(raw, !c.cfg.RawPayloads),
		Raw:     raw,
	})
}

// routeLocked delivers ev to the named channel's bindings, if that channel is
// registered, and then to the global bindings.
func (c *Client) routeLocked(ev Event) {
	var ch *Channel
	if ev.Channel != "" {
		ch, _ = c.registry.find(ev.Channel)
	}
	global := c.global
	c.dispatcher.dispatch(func() {
		if ch != nil {
			ch.emit(ev)
		}
		global.emit(ev)
	})
}

func (c *Client) handleConnectionEstablishedLocked(raw string, frame []byte) bool {
	socketID := gjson.Get(raw, "socket_id")
	if socketID.Type != gjson.String || socketID.Str == "" {
		c.reportError(SDKError{
			Kind:  ErrProtocol,
			Event: eventConnectionEstablished,
			Cause: &ProtocolError{Event: eventConnectionEstablished, Raw: frame, Err: errors.New("missing socket_id")},
			Raw:   frame,
		})
		return false
	}
	if c.state != StateConnecting {
		c.log.Debug().Str("state", c.state.String()).Msg("unexpected connection_established ignored")
		return false
	}

	c.socketID = socketID.Str
	if t := gjson.Get(raw, "activity_timeout"); t.Exists() && t.Float() > 0 {
		c.activityTimeout = time.Duration(t.Float() * float64(time.Second))
	}
	c.backoff.reset()
	c.log.Debug().Str("socket_id", c.socketID).Dur("activity_timeout", c.activityTimeout).Msg("connection established")

	c.transitionLocked(StateConnected)
	c.armActivityLocked()
	for _, ch := range c.registry.list() {
		c.subscribeChannelLocked(ch)
	}
	return true
}

func (c *Client) handleServerErrorLocked(raw string, frame []byte) {
	serverErr := &ServerError{
		Code:    int(gjson.Get(raw, "code").Int()),
		Message: gjson.Get(raw, "message").String(),
	}
	if serverErr.Message == "" {
		serverErr.Message = raw
	}
	c.reportError(SDKError{
		Kind:  ErrServerReject,
		Event: eventError,
		Cause: serverErr,
		Raw:   frame,
	})
}

func (c *Client) handleSubscriptionErrorLocked(channel, raw string) {
	serverErr := &ServerError{
		Code:    int(gjson.Get(raw, "status").Int()),
		Message: gjson.Get(raw, "error").String(),
	}
	if serverErr.Message == "" {
		serverErr.Message = raw
	}
	c.log.Warn().Str("channel", channel).Err(serverErr).Msg("subscription rejected")
	c.subscriptionFailedLocked(channel, serverErr)
}

func (c *Client) handleSubscriptionSucceededLocked(channel, raw string, frame []byte) {
	ch, ok := c.registry.find(channel)
	if !ok {
		c.log.Debug().Str("channel", channel).Msg("subscription succeeded for unknown channel")
		return
	}
	if !ch.setSubscribed(true) {
		c.metrics.subscribedGauge.Inc()
	}
	if ch.presence != nil {
		if err := ch.presence.subscriptionSucceeded(raw); err != nil {
			c.reportError(SDKError{
				Kind:    ErrProtocol,
				Channel: channel,
				Event:   eventInternalSubscriptionSucceeded,
				Cause:   &ProtocolError{Event: eventInternalSubscriptionSucceeded, Raw: frame, Err: err},
				Raw:     frame,
			})
		}
	}

	c.hooksMu.RLock()
	fn := c.onSubscribed
	c.hooksMu.RUnlock()
	if fn != nil {
		c.dispatcher.dispatch(func() { fn(channel) })
	}
}

func (c *Client) handleMemberAddedLocked(channel, raw string, frame []byte) {
	ch, ok := c.registry.find(channel)
	if !ok || ch.presence == nil {
		c.log.Debug().Str("channel", channel).Msg("member_added for unknown presence channel")
		return
	}
	m, err := ch.presence.addMember(raw)
	if err != nil {
		c.reportError(SDKError{
			Kind:    ErrProtocol,
			Channel: channel,
			Event:   eventInternalMemberAdded,
			Cause:   &ProtocolError{Event: eventInternalMemberAdded, Raw: frame, Err: err},
			Raw:     frame,
		})
		return
	}
	if fn := ch.presence.onMemberAdded; fn != nil {
		c.dispatcher.dispatch(func() { fn(m) })
	}
}

func (c *Client) handleMemberRemovedLocked(channel, raw string, frame []byte) {
	ch, ok := c.registry.find(channel)
	if !ok || ch.presence == nil {
		c.log.Debug().Str("channel", channel).Msg("member_removed for unknown presence channel")
		return
	}
	m, removed, err := ch.presence.removeMember(raw)
	if err != nil {
		c.reportError(SDKError{
			Kind:    ErrProtocol,
			Channel: channel,
			Event:   eventInternalMemberRemoved,
			Cause:   &ProtocolError{Event: eventInternalMemberRemoved, Raw: frame, Err: err},
			Raw:     frame,
		})
		return
	}
	if !removed {
		c.log.Debug().Str("channel", channel).Msg("member_removed for unknown member")
		return
	}
	if fn := ch.presence.onMemberRemoved; fn != nil {
		c.dispatcher.dispatch(func() { fn(m) })
	}
}

// subscribeChannelLocked sends the subscribe frame for ch, authorizing first
// when the channel requires it.
func (c *Client) subscribeChannelLocked(ch *Channel) {
	if !ch.RequiresAuth() {
		c.sendSubscribeLocked(ch, AuthData{})
		return
	}
	if ch.auth != nil {
		c.sendSubscribeLocked(ch, *ch.auth)
		return
	}

	req := authRequest{
		key:      c.cfg.Key,
		socketID: c.socketID,
		channel:  ch.name,
		kind:     ch.kind,
		userData: c.userData,
		http:     c.httpClient,
	}
	go c.authorize(ch, c.auth, req, c.gen)
}

func (c *Client) authorize(ch *Channel, method AuthMethod, req authRequest, gen uint64) {
	data, err := method.authorize(c.ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.state != StateConnected || c.socketID != req.socketID {
		c.log.Debug().Str("channel", req.channel).Msg("dropping auth result for a previous connection")
		return
	}
	if cur, ok := c.registry.find(req.channel); !ok || cur != ch {
		c.log.Debug().Str("channel", req.channel).Msg("dropping auth result for an unsubscribed channel")
		return
	}
	if err != nil {
		c.metrics.authFailures.WithLabelValues(ch.kind.String()).Inc()
		c.reportError(SDKError{Kind: ErrAuthFailure, Channel: ch.name, Cause: err})
		c.subscriptionFailedLocked(ch.name, err)
		return
	}
	c.sendSubscribeLocked(ch, data)
}

func (c *Client) subscriptionFailedLocked(channel string, err error) {
	c.hooksMu.RLock()
	fn := c.onSubscriptionFailed
	c.hooksMu.RUnlock()
	if fn != nil {
		c.dispatcher.dispatch(func() { fn(channel, err) })
	}
}

func (c *Client) sendSubscribeLocked(ch *Channel, data AuthData) {
	if ch.presence != nil {
		ch.presence.setChannelData(data.ChannelData)
	}
	err := c.sendLocked(eventSubscribe, "", subscribeData{
		Channel:     ch.name,
		Auth:        data.Auth,
		ChannelData: data.ChannelData,
	})
	if err != nil {
		c.reportError(SDKError{Kind: ErrTransportWrite, Channel: ch.name, Event: eventSubscribe, Cause: err})
	}
}

// releaseChannelLocked finishes removing ch from the registry.
func (c *Client) releaseChannelLocked(ch *Channel) {
	if ch.setSubscribed(false) {
		c.metrics.subscribedGauge.Dec()
	}
	if ch.presence != nil {
		ch.presence.reset()
	}
	if c.state != StateConnected {
		return
	}
	if err := c.sendLocked(eventUnsubscribe, "", unsubscribeData{Channel: ch.name}); err != nil {
		c.reportError(SDKError{Kind: ErrTransportWrite, Channel: ch.name, Event: eventUnsubscribe, Cause: err})
	}
}

func (c *Client) sendLocked(event, channel string, data any) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	frame, err := marshalFrame(event, channel, data)
	if err != nil {
		return err
	}
	if err := c.conn.Send(frame); err != nil {
		return &TransportError{URL: c.url, Err: err}
	}
	c.metrics.framesSent.WithLabelValues(frameLabel(event)).Inc()
	return nil
}

// frameLabel keeps client event names out of metric labels.
func frameLabel(event string) string {
	if strings.HasPrefix(event, clientEventPrefix) {
		return "client"
	}
	return event
}
