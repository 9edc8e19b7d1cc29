package sse

import (
	"errors"
	"fmt"
)

// Caller-fatal errors. These are always returned to the caller.
var (
	// ErrInvalidChannelName is returned when a channel name fails validation.
	ErrInvalidChannelName = errors.New("sse: invalid channel name")

	// ErrInvalidEventName is returned when an event name contains a line break.
	ErrInvalidEventName = errors.New("sse: event name must not contain line breaks")

	// ErrConfiguration is returned when a stream endpoint resolves to neither
	// a channel nor an event source.
	ErrConfiguration = errors.New("sse: endpoint requires a channel, a channel-returning handler, or a generator")

	// ErrTemplateRequiresRequest is returned when a template broadcast has no request handle.
	ErrTemplateRequiresRequest = errors.New("sse: request is required when broadcasting with a template")

	// ErrNoRenderer is returned when a template is requested but no renderer is configured.
	ErrNoRenderer = errors.New("sse: no template renderer configured")
)

// Best-effort relay errors. These never reach a broadcasting caller.
var (
	// ErrRelayUnavailable marks bus connectivity failures. Bus implementations
	// wrap connection-level errors with it so the bridge can reset its cached client.
	ErrRelayUnavailable = errors.New("sse: relay bus unavailable")

	// ErrMalformedMessage marks inbound bus messages that cannot be relayed.
	ErrMalformedMessage = errors.New("sse: malformed relay message")
)

// RelayError describes a failed relay operation. It is reported to the
// logger and the optional relay error handler, never returned from Broadcast.
type RelayError struct {
	Op      string // "start", "connect", "publish", "listen"
	Channel string
	Err     error
}

func (e *RelayError) Error() string {
	if e.Channel == "" {
		return fmt.Sprintf("sse relay %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("sse relay %s %q: %v", e.Op, e.Channel, e.Err)
}

func (e *RelayError) Unwrap() error { return e.Err }

// MalformedMessageError describes an inbound bus message that was skipped.
type MalformedMessageError struct {
	Topic  string
	Reason string
	Err    error
}

func (e *MalformedMessageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v on %s: %s: %v", ErrMalformedMessage, e.Topic, e.Reason, e.Err)
	}
	return fmt.Sprintf("%v on %s: %s", ErrMalformedMessage, e.Topic, e.Reason)
}

func (e *MalformedMessageError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMalformedMessage, e.Err}
	}
	return []error{ErrMalformedMessage}
}
