package gateway

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCancelled reports that the caller cancelled the operation. It is an
	// outcome, not a failure.
	ErrCancelled = errors.New("request cancelled")
	// ErrMalformedResponse reports a body that could not be parsed as JSON.
	ErrMalformedResponse = errors.New("server returned something we can't use")
	ErrNoEndpoint        = errors.New("no model endpoint configured")
	ErrEmptyCompletion   = errors.New("model returned no text")
)

// HTTPError is a non-2xx response from an upstream.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, body)
}

// IsCancelled reports whether err is a cancellation, either ours or the
// context's.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case IsCancelled(err):
		return "cancelled"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	default:
		return "error"
	}
}
