package eventflit

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestAuthError_Error(t *testing.T) {
	err := &AuthError{Channel: "private-a", StatusCode: 403, Err: errors.New("forbidden")}
	want := "auth failed for private-a: status 403: forbidden"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	err = &AuthError{Channel: "private-a", Err: ErrNoAuthMethod}
	if !errors.Is(err, ErrNoAuthMethod) {
		t.Error("errors.Is should see through AuthError")
	}
}

func TestTransportError_ErrorsAs(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &TransportError{URL: "wss://h/app/k", Err: ErrPongTimeout})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatal("errors.As should match TransportError")
	}
	if te.URL != "wss://h/app/k" {
		t.Errorf("URL = %q", te.URL)
	}
	if !errors.Is(err, ErrPongTimeout) {
		t.Error("errors.Is should match ErrPongTimeout")
	}
}

func TestProtocolError_Error(t *testing.T) {
	err := &ProtocolError{Event: "e", Err: errors.New("bad")}
	if got := err.Error(); got != "protocol error (event=e): bad" {
		t.Errorf("Error() = %q", got)
	}
	err = &ProtocolError{Err: errors.New("bad")}
	if got := err.Error(); got != "protocol error: bad" {
		t.Errorf("Error() = %q", got)
	}
}

func TestServerError_Error(t *testing.T) {
	err := &ServerError{Code: 4001, Message: "app does not exist"}
	if got := err.Error(); got != "server error [4001]: app does not exist" {
		t.Errorf("Error() = %q", got)
	}
}

func TestErrorKind_String(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want string
	}{
		{ErrTransport, "ErrTransport"},
		{ErrAuthFailure, "ErrAuthFailure"},
		{ErrProtocol, "ErrProtocol"},
		{ErrServerReject, "ErrServerReject"},
		{ErrHandlerPanic, "ErrHandlerPanic"},
		{ErrTransportWrite, "ErrTransportWrite"},
		{ErrorKind(99), "ErrorKind(99)"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("ErrorKind(%d).String() = %q, want %q", int(tt.kind), got, tt.want)
		}
	}
}

func TestSDKError_Unwrap(t *testing.T) {
	cause := &ServerError{Code: 1, Message: "x"}
	err := &SDKError{Kind: ErrServerReject, Cause: cause}
	var se *ServerError
	if !errors.As(err, &se) {
		t.Fatal("errors.As should reach the cause")
	}
	if !strings.Contains(err.Error(), "ErrServerReject") {
		t.Errorf("Error() = %q, want kind name", err.Error())
	}
}

func TestLogErrors(t *testing.T) {
	var buf bytes.Buffer
	handler := LogErrors(zerolog.New(&buf))

	handler(SDKError{
		Kind:      ErrAuthFailure,
		Channel:   "private-x",
		Cause:     errors.New("denied"),
		Timestamp: time.Now(),
	})

	out := buf.String()
	for _, want := range []string{`"kind":"ErrAuthFailure"`, `"channel":"private-x"`, `"error":"denied"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %s", out, want)
		}
	}
}
