package eventflit

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ChannelKind is the variant of a channel, fixed at creation from its name.
type ChannelKind int

const (
	KindPublic ChannelKind = iota
	KindPrivate
	KindPresence
)

const (
	privatePrefix  = "private-"
	presencePrefix = "presence-"
)

func (k ChannelKind) String() string {
	switch k {
	case KindPrivate:
		return "private"
	case KindPresence:
		return "presence"
	default:
		return "public"
	}
}

// kindOf derives a channel's kind from the naming convention.
func kindOf(name string) ChannelKind {
	switch {
	case strings.HasPrefix(name, presencePrefix):
		return KindPresence
	case strings.HasPrefix(name, privatePrefix):
		return KindPrivate
	default:
		return KindPublic
	}
}

// EventHandler is the signature for event callbacks.
type EventHandler func(Event)

type binding struct {
	id string
	fn EventHandler
}

// Channel is one named subscription stream. Channels are created and owned
// by the Client; use Client.Subscribe to obtain one.
type Channel struct {
	name   string
	kind   ChannelKind
	client *Client

	mu         sync.Mutex
	subscribed bool
	handlers   map[string][]binding // event name → bindings in bind order

	auth     *AuthData      // per-subscription override, skips the resolver
	presence *presenceState // nil unless kind == KindPresence
}

func newChannel(name string, client *Client, o subscribeOptions) *Channel {
	ch := &Channel{
		name:     name,
		kind:     kindOf(name),
		client:   client,
		handlers: make(map[string][]binding),
		auth:     o.auth,
	}
	if ch.kind == KindPresence {
		ch.presence = &presenceState{
			onMemberAdded:   o.onMemberAdded,
			onMemberRemoved: o.onMemberRemoved,
		}
	}
	return ch
}

// Name returns the channel name.
func (ch *Channel) Name() string { return ch.name }

// Kind returns the channel variant.
func (ch *Channel) Kind() ChannelKind { return ch.kind }

// RequiresAuth reports whether subscribing needs an auth signature.
func (ch *Channel) RequiresAuth() bool { return ch.kind != KindPublic }

// Subscribed reports whether the service has confirmed the subscription on
// the current connection.
func (ch *Channel) Subscribed() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.subscribed
}

// setSubscribed updates the flag and returns its previous value.
func (ch *Channel) setSubscribed(v bool) bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	old := ch.subscribed
	ch.subscribed = v
	return old
}

// Presence returns the presence view of the channel, or false if the channel
// is not a presence channel.
func (ch *Channel) Presence() (*PresenceChannel, bool) {
	if ch.kind != KindPresence {
		return nil, false
	}
	return &PresenceChannel{Channel: ch}, true
}

// Bind registers fn for eventName and returns an id for Unbind.
func (ch *Channel) Bind(eventName string, fn EventHandler) string {
	id := uuid.NewString()
	ch.mu.Lock()
	ch.handlers[eventName] = append(ch.handlers[eventName], binding{id: id, fn: fn})
	ch.mu.Unlock()
	return id
}

// Unbind removes the single binding with the given id.
func (ch *Channel) Unbind(eventName, id string) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	list := ch.handlers[eventName]
	for i, b := range list {
		if b.id == id {
			ch.handlers[eventName] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(ch.handlers[eventName]) == 0 {
		delete(ch.handlers, eventName)
	}
}

// UnbindEvent removes every binding for eventName.
func (ch *Channel) UnbindEvent(eventName string) {
	ch.mu.Lock()
	delete(ch.handlers, eventName)
	ch.mu.Unlock()
}

// UnbindAll removes every binding on the channel.
func (ch *Channel) UnbindAll() {
	ch.mu.Lock()
	ch.handlers = make(map[string][]binding)
	ch.mu.Unlock()
}

// Bindings returns the number of callbacks bound to eventName.
func (ch *Channel) Bindings(eventName string) int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.handlers[eventName])
}

// Trigger sends a client event to the other subscribers of the channel.
// Only private and presence channels accept client events, only while
// subscribed, and the event name must start with "client-".
func (ch *Channel) Trigger(eventName string, data any) error {
	if !strings.HasPrefix(eventName, clientEventPrefix) {
		return ErrClientEventName
	}
	if !ch.RequiresAuth() {
		return ErrPublicChannel
	}
	if !ch.Subscribed() {
		return ErrNotSubscribed
	}
	return ch.client.sendFrame(eventName, ch.name, data)
}

// emit calls the bindings for ev.Name in bind order.
func (ch *Channel) emit(ev Event) {
	ch.mu.Lock()
	list := append([]binding(nil), ch.handlers[ev.Name]...)
	ch.mu.Unlock()

	for _, b := range list {
		b.fn(ev)
	}
}

// globalChannel receives every inbound event regardless of target channel.
type globalChannel struct {
	mu       sync.Mutex
	bindings []binding
}

func (g *globalChannel) bind(fn EventHandler) string {
	id := uuid.NewString()
	g.mu.Lock()
	g.bindings = append(g.bindings, binding{id: id, fn: fn})
	g.mu.Unlock()
	return id
}

func (g *globalChannel) unbind(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, b := range g.bindings {
		if b.id == id {
			g.bindings = append(g.bindings[:i:i], g.bindings[i+1:]...)
			return
		}
	}
}

func (g *globalChannel) unbindAll() {
	g.mu.Lock()
	g.bindings = nil
	g.mu.Unlock()
}

func (g *globalChannel) len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.bindings)
}

func (g *globalChannel) emit(ev Event) {
	g.mu.Lock()
	list := append([]binding(nil), g.bindings...)
	g.mu.Unlock()

	for _, b := range list {
		b.fn(ev)
	}
}
