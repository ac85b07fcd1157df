package vismatch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lostboard/vismatch/imageload"
	"github.com/lostboard/vismatch/model"
	"github.com/lostboard/vismatch/similarity"
)

func TestTranslateError(t *testing.T) {
	plain := errors.New("boom")
	tests := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{"model", &model.LoadError{Err: plain}, KindModelLoad},
		{"wrapped model", fmt.Errorf("extract: %w", &model.LoadError{Err: plain}), KindModelLoad},
		{"timeout", fmt.Errorf("%w: %w", imageload.ErrTimeout, context.DeadlineExceeded), KindImageLoadTimeout},
		{"fetch", &imageload.FetchError{URL: "http://x", StatusCode: 500, Err: plain}, KindImageFetchFailed},
		{"too large", &imageload.FetchError{URL: "http://x", Err: imageload.ErrTooLarge}, KindImageFetchFailed},
		{"decode", &imageload.DecodeError{URL: "http://x", Err: plain}, KindImageDecodeFailed},
		{"dimension", &similarity.ErrDimensionMismatch{Expected: 3, Actual: 2}, KindDimensionMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := translateError("Op", tt.err)
			kind, ok := KindOf(err)
			assert.True(t, ok)
			assert.Equal(t, tt.kind, kind)
			assert.ErrorIs(t, err, tt.err, "cause stays reachable")
			assert.ErrorIs(t, err, tt.kind.sentinel())
		})
	}
}

func TestTranslateErrorPassThrough(t *testing.T) {
	assert.NoError(t, translateError("Op", nil))
	assert.Same(t, context.Canceled, translateError("Op", context.Canceled))

	plain := errors.New("boom")
	assert.Same(t, plain, translateError("Op", plain))
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Kind: KindImageFetchFailed, Op: "ExtractEmbedding", Err: errors.New("status 404")}
	assert.Equal(t, "vismatch: ExtractEmbedding: ImageFetchFailed: status 404", err.Error())
	assert.Equal(t, "ErrorKind(99)", ErrorKind(99).String())
	assert.False(t, errors.Is(err, ErrImageDecodeFailed))
}
