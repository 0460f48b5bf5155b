package partialconcat

import (
	"github.com/c360/journaldconcat/message"
)

// StreamIdentity groups records into streams: the tag and the value of key,
// joined by a colon. Records without key share the identity "<tag>:".
func StreamIdentity(tag string, record message.Record, key string) string {
	return tag + ":" + record.Text(key)
}

// IsPartial reports whether a marker value flags a record as a fragment. Only
// a value that reads exactly "true" counts.
func IsPartial(v any) bool {
	switch m := v.(type) {
	case string:
		return m == "true"
	case []byte:
		return string(m) == "true"
	case bool:
		return m
	default:
		return false
	}
}
