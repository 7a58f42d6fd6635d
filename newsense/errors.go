package newsense

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoBaseURL is returned when a client is built without a base URL.
	ErrNoBaseURL = errors.New("newsense: base URL not set")

	// ErrNotAuthorized is returned on rejected credentials. Never retried.
	ErrNotAuthorized = errors.New("newsense: invalid credentials")
)

// APIError is a non-2xx response from the data API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("newsense: API returned status %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether the status is worth retrying.
func (e *APIError) Transient() bool {
	return e.StatusCode == 408 || e.StatusCode == 429 || e.StatusCode >= 500
}

// FetchError is returned when every chunk of a fetch failed. It carries the
// underlying cause of each chunk.
type FetchError struct {
	Causes []error
}

func (e *FetchError) Error() string {
	msgs := make([]string, len(e.Causes))
	for i, c := range e.Causes {
		msgs[i] = c.Error()
	}
	return fmt.Sprintf("newsense: all %d chunk(s) failed: %s",
		len(e.Causes), strings.Join(msgs, "; "))
}

// Unwrap exposes the per-chunk causes to errors.Is/As.
func (e *FetchError) Unwrap() []error { return e.Causes }
