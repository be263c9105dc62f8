package eventflit

import (
	"io"

	"github.com/rs/zerolog"
)

// DebugLogHandler receives the message of every log entry the client writes.
type DebugLogHandler func(message string)

func defaultLogger() zerolog.Logger {
	return zerolog.New(io.Discard).Level(zerolog.DebugLevel)
}

// debugHook forwards log entries to the host's OnDebugLog callback. Entries
// filtered out by the logger's level never reach the hook.
type debugHook struct {
	c *Client
}

func (h debugHook) Run(_ *zerolog.Event, _ zerolog.Level, message string) {
	h.c.hooksMu.RLock()
	fn := h.c.onDebugLog
	h.c.hooksMu.RUnlock()
	if fn == nil || message == "" {
		return
	}
	h.c.dispatcher.dispatch(func() { fn(message) })
}
