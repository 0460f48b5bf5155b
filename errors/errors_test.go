package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			assert.Equal(t, test.expected, test.class.String())
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection timeout", ErrConnectionTimeout, true},
		{"no connection", ErrNoConnection, true},
		{"context canceled", context.Canceled, true},
		{"invalid data", ErrInvalidData, false},
		{"network in message", fmt.Errorf("network unreachable"), true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("network")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, IsTransient(test.err))
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorFatal, Classify(ErrInvalidConfig))
	assert.Equal(t, ErrorFatal, Classify(ErrShuttingDown))
	assert.Equal(t, ErrorInvalid, Classify(ErrInvalidData))
	assert.Equal(t, ErrorTransient, Classify(fmt.Errorf("something odd")))
}

func TestWrapHelpers(t *testing.T) {
	base := errors.New("boom")

	err := WrapInvalid(base, "Processor", "Start", "parse config")
	require.Error(t, err)
	assert.Equal(t, "Processor.Start: parse config failed: boom", err.Error())
	assert.True(t, IsInvalid(err))
	assert.True(t, errors.Is(err, base))

	var ce *ClassifiedError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "Processor", ce.Component)
	assert.Equal(t, "Start", ce.Operation)

	assert.True(t, IsFatal(WrapFatal(base, "A", "B", "c")))
	assert.True(t, IsTransient(WrapTransient(base, "A", "B", "c")))
	assert.Nil(t, WrapFatal(nil, "A", "B", "c"))
	assert.Nil(t, Wrap(nil, "A", "B", "c"))
}

func TestTimeoutError(t *testing.T) {
	err := &TimeoutError{Identity: "docker.app:abc"}

	assert.Equal(t, "Timeout flush: docker.app:abc", err.Error())
	assert.True(t, errors.Is(err, ErrTimeoutFlush))
	assert.False(t, errors.Is(err, ErrInvalidData))

	var te *TimeoutError
	wrapped := fmt.Errorf("route: %w", err)
	require.True(t, errors.As(wrapped, &te))
	assert.Equal(t, "docker.app:abc", te.Identity)
}

func TestRecordError(t *testing.T) {
	panicErr := &RecordError{Tag: "docker.app", Value: "index out of range"}
	assert.Contains(t, panicErr.Error(), "panic: index out of range")
	assert.Nil(t, panicErr.Unwrap())

	cause := errors.New("bad record")
	wrapped := &RecordError{Tag: "docker.app", Err: cause}
	assert.True(t, errors.Is(wrapped, cause))
	assert.Contains(t, wrapped.Error(), `"docker.app"`)
}
