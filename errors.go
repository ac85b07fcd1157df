package vismatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/lostboard/vismatch/imageload"
	"github.com/lostboard/vismatch/model"
	"github.com/lostboard/vismatch/similarity"
)

// ErrorKind classifies every failure the matcher reports. The set is closed.
type ErrorKind int

const (
	// KindModelLoad: the feature network could not be loaded. The next call
	// retries the load.
	KindModelLoad ErrorKind = iota + 1
	// KindImageLoadTimeout: fetching or decoding the photo exceeded the
	// loader timeout.
	KindImageLoadTimeout
	// KindImageFetchFailed: network error, non-2xx answer or oversized body.
	KindImageFetchFailed
	// KindImageDecodeFailed: the bytes are not a supported image.
	KindImageDecodeFailed
	// KindDimensionMismatch: two embeddings of different length were compared.
	KindDimensionMismatch
)

func (k ErrorKind) String() string {
	switch k {
	case KindModelLoad:
		return "ModelLoad"
	case KindImageLoadTimeout:
		return "ImageLoadTimeout"
	case KindImageFetchFailed:
		return "ImageFetchFailed"
	case KindImageDecodeFailed:
		return "ImageDecodeFailed"
	case KindDimensionMismatch:
		return "DimensionMismatch"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Sentinels for errors.Is. Every *Error matches the sentinel of its kind.
var (
	ErrModelLoad         = errors.New("vismatch: model load failed")
	ErrImageLoadTimeout  = errors.New("vismatch: image load timed out")
	ErrImageFetchFailed  = errors.New("vismatch: image fetch failed")
	ErrImageDecodeFailed = errors.New("vismatch: image decode failed")
	ErrDimensionMismatch = errors.New("vismatch: dimension mismatch")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindModelLoad:
		return ErrModelLoad
	case KindImageLoadTimeout:
		return ErrImageLoadTimeout
	case KindImageFetchFailed:
		return ErrImageFetchFailed
	case KindImageDecodeFailed:
		return ErrImageDecodeFailed
	case KindDimensionMismatch:
		return ErrDimensionMismatch
	default:
		return nil
	}
}

// Error is a classified matcher failure.
//
// The original underlying error can be accessed via errors.Unwrap.
type Error struct {
	Kind ErrorKind
	// Op is the operation that failed, e.g. "ExtractEmbedding".
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("vismatch: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of e's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// Recoverable reports whether the caller may carry on without the result,
// e.g. store an item without an embedding. Image and model load failures
// are recoverable; a dimension mismatch points at corrupt data and is not.
func (e *Error) Recoverable() bool {
	return e.Kind != KindDimensionMismatch
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Recoverable reports whether err is a recoverable *Error.
func Recoverable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Recoverable()
}

// translateError classifies errors from the internal packages. Context
// cancellation and unknown errors pass through unchanged.
func translateError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if !errors.Is(err, imageload.ErrTimeout) {
			return err
		}
	}

	var le *model.LoadError
	if errors.As(err, &le) {
		return &Error{Kind: KindModelLoad, Op: op, Err: err}
	}
	if errors.Is(err, imageload.ErrTimeout) {
		return &Error{Kind: KindImageLoadTimeout, Op: op, Err: err}
	}
	var fe *imageload.FetchError
	if errors.As(err, &fe) {
		return &Error{Kind: KindImageFetchFailed, Op: op, Err: err}
	}
	var de *imageload.DecodeError
	if errors.As(err, &de) {
		return &Error{Kind: KindImageDecodeFailed, Op: op, Err: err}
	}
	var dm *similarity.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &Error{Kind: KindDimensionMismatch, Op: op, Err: err}
	}
	return err
}
