package remote

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidRequest indicates a malformed URL or request that could not be built.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrDecode indicates a response body that does not match the expected shape.
	ErrDecode = errors.New("undecodable response")

	// ErrRetriesExhausted wraps the last error after every attempt failed.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// IsRateLimited reports whether err is an HTTP 429 response.
func IsRateLimited(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusTooManyRequests
}

// truncateBody keeps error messages bounded.
func truncateBody(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
