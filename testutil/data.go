package testutil

import (
	"encoding/json"
	"fmt"
	"time"
)

// BaseTime is a fixed instant used as the event time origin in fixtures.
var BaseTime = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

// DockerRecord builds a record as the docker journald driver emits it.
// An empty partial leaves the partial marker absent.
func DockerRecord(containerID, message, partial string) map[string]any {
	r := map[string]any{
		"container_id":   containerID,
		"container_name": "/app-" + containerID,
		"message":        message,
	}
	if partial != "" {
		r["container_partial_message"] = partial
	}
	return r
}

// SplitLine breaks a long line into docker-style fragments of at most size
// bytes: every fragment but the last is flagged partial.
func SplitLine(containerID, line string, size int) []map[string]any {
	var out []map[string]any
	for len(line) > size {
		out = append(out, DockerRecord(containerID, line[:size], "true"))
		line = line[size:]
	}
	return append(out, DockerRecord(containerID, line, ""))
}

// LongLine returns an n-byte line with a recognizable repeating pattern.
func LongLine(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = "0123456789abcdef"[i%16]
	}
	return string(b)
}

// StreamJSON renders a wire-format event stream for tag. Entries are spaced
// one second apart starting at BaseTime.
func StreamJSON(tag string, records ...map[string]any) []byte {
	buf := []byte(fmt.Sprintf(`{"id":"fixture","tag":%q,"entries":[`, tag))
	for i, r := range records {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, fmt.Sprintf(`{"time":%q,"record":%s}`,
			BaseTime.Add(time.Duration(i)*time.Second).Format(time.RFC3339Nano), mustJSON(r))...)
	}
	return append(buf, "]}"...)
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
