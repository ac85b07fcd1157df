package imageload

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when fetching and decoding did not finish
	// within the loader's timeout.
	ErrTimeout = errors.New("imageload: timed out")

	// ErrTooLarge is wrapped by a FetchError when the body exceeds the
	// configured byte limit.
	ErrTooLarge = errors.New("imageload: image exceeds size limit")
)

// FetchError reports that the image could not be retrieved: a network
// failure, a non-2xx answer or an oversized body.
type FetchError struct {
	URL string
	// StatusCode is the HTTP status, or 0 when no response was received.
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("imageload: fetch %s: http status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("imageload: fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// DecodeError reports bytes that are not a supported image.
type DecodeError struct {
	URL    string
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Format != "" {
		return fmt.Sprintf("imageload: decode %s (%s): %v", e.URL, e.Format, e.Err)
	}
	return fmt.Sprintf("imageload: decode %s: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
