package agent

import "errors"

var (
	// ErrModelUnavailable wraps every failure to reach or read from the
	// model-serving process. A turn failing with it appends no reply.
	ErrModelUnavailable = errors.New("agent: model unavailable")

	// ErrStreamConsumed is returned when a [Stream] is read a second time.
	ErrStreamConsumed = errors.New("agent: stream already consumed")
)
