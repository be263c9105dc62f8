package eventflit

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Sentinel errors for client and channel state.
var (
	ErrNotConnected    = errors.New("client is not connected")
	ErrClientClosed    = errors.New("client is closed")
	ErrNotSubscribed   = errors.New("channel is not subscribed")
	ErrPublicChannel   = errors.New("client events require a private or presence channel")
	ErrClientEventName = errors.New(`client event names must start with "client-"`)
	ErrNoAuthMethod    = errors.New("no auth method configured")
	ErrPongTimeout     = errors.New("no activity after ping")
)

// TransportError represents a failure to open or keep the socket connection.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error [%s]: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// AuthError is returned when a private or presence channel cannot be authorized.
// StatusCode and Body are set when the failure came from an HTTP response.
type AuthError struct {
	Channel    string
	StatusCode int
	Body       string
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("auth failed for %s: status %d: %v", e.Channel, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("auth failed for %s: %v", e.Channel, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// ProtocolError represents an inbound frame or system event payload that could not be parsed.
type ProtocolError struct {
	Event string
	Raw   []byte
	Err   error
}

func (e *ProtocolError) Error() string {
	if e.Event != "" {
		return fmt.Sprintf("protocol error (event=%s): %v", e.Event, e.Err)
	}
	return fmt.Sprintf("protocol error: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// ServerError is an error event sent by the service.
type ServerError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error [%d]: %s", e.Code, e.Message)
}

// ErrorKind classifies SDK-level errors that cannot be returned to a caller.
type ErrorKind int

const (
	ErrTransport      ErrorKind = iota // connection dropped or could not be opened
	ErrAuthFailure                     // channel authorization failed
	ErrProtocol                        // inbound frame couldn't be parsed
	ErrServerReject                    // service sent an error event
	ErrHandlerPanic                    // host callback panicked
	ErrTransportWrite                  // failed to write to connection
)

var errorKindNames = [...]string{
	ErrTransport:      "ErrTransport",
	ErrAuthFailure:    "ErrAuthFailure",
	ErrProtocol:       "ErrProtocol",
	ErrServerReject:   "ErrServerReject",
	ErrHandlerPanic:   "ErrHandlerPanic",
	ErrTransportWrite: "ErrTransportWrite",
}

func (k ErrorKind) String() string {
	if int(k) >= 0 && int(k) < len(errorKindNames) {
		return errorKindNames[k]
	}
	return fmt.Sprintf("ErrorKind(%d)", k)
}

// SDKError represents an error that the SDK could not deliver to a direct caller.
// These errors are routed to the ErrorHandler provided at client creation.
type SDKError struct {
	Kind      ErrorKind
	Channel   string // channel name, if known
	Event     string // event name, if known
	Cause     error
	Raw       []byte // raw frame (for parse failures)
	Timestamp time.Time
}

func (e *SDKError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v (channel=%s event=%s)", e.Kind, e.Cause, e.Channel, e.Event)
	}
	return fmt.Sprintf("%s (channel=%s event=%s)", e.Kind, e.Channel, e.Event)
}

func (e *SDKError) Unwrap() error {
	return e.Cause
}

// ErrorHandler is called for every SDK-level error that cannot be returned
// to a direct caller. It MUST be provided when creating a client.
type ErrorHandler func(SDKError)

// LogErrors returns an ErrorHandler that logs all SDK errors to the given logger.
func LogErrors(logger zerolog.Logger) ErrorHandler {
	return func(e SDKError) {
		logger.Error().
			Err(e.Cause).
			Str("kind", e.Kind.String()).
			Str("channel", e.Channel).
			Str("event", e.Event).
			Msg("eventflit error")
	}
}
