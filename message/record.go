package message

import (
	"fmt"

	"github.com/mohae/deepcopy"
)

// Record is a single log record: field name to decoded JSON value.
type Record map[string]any

// Clone returns a deep copy of the record so nested maps and slices are not
// shared with the original.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return deepcopy.Copy(r).(Record)
}

// Text renders a field as text. Absent and null fields render as "".
func (r Record) Text(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(v)
	}
}

// Without returns the record with key removed. The receiver is modified.
func (r Record) Without(key string) Record {
	delete(r, key)
	return r
}
