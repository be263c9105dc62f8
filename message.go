package eventflit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Reserved event names.
const (
	eventConnectionEstablished = "eventflit:connection_established"
	eventError                 = "eventflit:error"
	eventPing                  = "eventflit:ping"
	eventPong                  = "eventflit:pong"
	eventSubscribe             = "eventflit:subscribe"
	eventUnsubscribe           = "eventflit:unsubscribe"
	eventSubscriptionError     = "eventflit:subscription_error"

	eventInternalSubscriptionSucceeded = "eventflit_internal:subscription_succeeded"
	eventInternalMemberAdded           = "eventflit_internal:member_added"
	eventInternalMemberRemoved         = "eventflit_internal:member_removed"

	// EventSubscriptionSucceeded is delivered to channel and global bindings
	// once the service confirms a subscription.
	EventSubscriptionSucceeded = "eventflit:subscription_succeeded"

	// EventMemberAdded and EventMemberRemoved are delivered to presence
	// channel bindings after the roster has been updated.
	EventMemberAdded   = "eventflit:member_added"
	EventMemberRemoved = "eventflit:member_removed"

	clientEventPrefix = "client-"
)

// Event is an inbound event as delivered to bound callbacks.
type Event struct {
	Name    string
	Channel string // empty for connection-scoped events

	// Data is the decoded payload: a map[string]any or []any when the payload
	// is JSON and structured decoding is enabled, otherwise a string.
	Data any

	// Raw is the payload exactly as received: the string form of a string
	// payload, or the JSON text otherwise.
	Raw string
}

// envelope is the wire format of every frame in both directions.
type envelope struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// parseEnvelope decodes an inbound frame.
func parseEnvelope(frame []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return env, fmt.Errorf("parse envelope: %w", err)
	}
	if env.Event == "" {
		return env, errors.New("parse envelope: missing event name")
	}
	return env, nil
}

// payloadString returns the payload as text. Payloads arrive either as a
// JSON-encoded string or, from some servers, as an inline JSON value.
func (e envelope) payloadString() string {
	data := bytes.TrimSpace(e.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return ""
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			return s
		}
	}
	return string(data)
}

// decodeData turns a raw payload into the value handed to callbacks.
func decodeData(raw string, structured bool) any {
	if !structured {
		return raw
	}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
		return raw
	}
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return raw
	}
	return v
}

type subscribeData struct {
	Channel     string `json:"channel"`
	Auth        string `json:"auth,omitempty"`
	ChannelData string `json:"channel_data,omitempty"`
}

type unsubscribeData struct {
	Channel string `json:"channel"`
}

// marshalFrame serializes an outbound frame.
func marshalFrame(event, channel string, data any) ([]byte, error) {
	var payload json.RawMessage
	if data == nil {
		payload = json.RawMessage(`{}`)
	} else {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s data: %w", event, err)
		}
		payload = b
	}
	return json.Marshal(envelope{
		Event:   event,
		Channel: channel,
		Data:    payload,
	})
}
