package message

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/c360/journaldconcat/errors"
)

// Error kinds carried by ErrorEvent.Kind
const (
	KindTimeout = "timeout"
	KindRecord  = "record"
)

// Entry is one timestamped record inside an EventStream.
type Entry struct {
	Time   time.Time `json:"time"`
	Record Record    `json:"record"`
}

// UnmarshalJSON accepts the time either as an RFC 3339 string or as a number
// of seconds since the epoch with an optional fractional part.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Time   json.RawMessage `json:"time"`
		Record Record          `json:"record"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	t, err := parseEventTime(raw.Time)
	if err != nil {
		return err
	}

	e.Time = t
	e.Record = raw.Record
	return nil
}

func parseEventTime(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}

	if raw[0] == '"' {
		var t time.Time
		if err := json.Unmarshal(raw, &t); err != nil {
			return time.Time{}, fmt.Errorf("entry time: %w", err)
		}
		return t, nil
	}

	secs, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("entry time: %w", err)
	}
	whole := int64(secs)
	return time.Unix(whole, int64((secs-float64(whole))*1e9)).UTC(), nil
}

// EventStream is a batch of entries delivered under one tag. It is the unit
// carried on input and output subjects.
type EventStream struct {
	ID      string  `json:"id"`
	Tag     string  `json:"tag"`
	Entries []Entry `json:"entries"`
}

// NewEventStream builds a stream with a fresh ID.
func NewEventStream(tag string, entries ...Entry) *EventStream {
	return &EventStream{
		ID:      uuid.NewString(),
		Tag:     tag,
		Entries: entries,
	}
}

// DecodeEventStream parses and validates a wire-format stream.
func DecodeEventStream(data []byte) (*EventStream, error) {
	var es EventStream
	if err := json.Unmarshal(data, &es); err != nil {
		return nil, errors.WrapInvalid(stderrors.Join(errors.ErrParsingFailed, err),
			"EventStream", "Decode", "unmarshal stream")
	}
	if es.Tag == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "EventStream", "Decode", "tag is required")
	}
	return &es, nil
}

// ErrorEvent is published on the error subject for records that failed to
// process and for timeout flushes without an override label.
type ErrorEvent struct {
	ID     string    `json:"id"`
	Tag    string    `json:"tag"`
	Time   time.Time `json:"time"`
	Record Record    `json:"record"`
	Error  string    `json:"error"`
	Kind   string    `json:"kind"`
}

// NewErrorEvent describes record and the cause that routed it to the error
// subject.
func NewErrorEvent(tag string, t time.Time, record Record, cause error) *ErrorEvent {
	ev := &ErrorEvent{
		ID:     uuid.NewString(),
		Tag:    tag,
		Time:   t,
		Record: record,
		Kind:   KindRecord,
	}
	if cause != nil {
		ev.Error = cause.Error()
		if stderrors.Is(cause, errors.ErrTimeoutFlush) {
			ev.Kind = KindTimeout
		}
	}
	return ev
}
