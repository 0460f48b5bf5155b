package partialconcat

import (
	"strings"
)

// flush joins the buffered fragments of identity into one record and clears
// the buffer. The result carries the first fragment's tag, time and fields,
// with the text field replaced by the joined text and the marker removed.
// Caller holds mu.
func (s *streamState) flush(identity string) (Fragment, int, bool) {
	buf, ok := s.buffers[identity]
	if !ok || len(buf.fragments) == 0 {
		return Fragment{}, 0, false
	}
	delete(s.buffers, identity)

	var text strings.Builder
	for _, f := range buf.fragments {
		text.WriteString(f.Record.Text(s.textKey))
	}

	first := buf.fragments[0]
	merged := first.Record.Clone()
	if merged == nil {
		merged = make(map[string]any, 1)
	}
	merged[s.textKey] = text.String()
	merged = merged.Without(s.markerKey)

	return Fragment{Tag: first.Tag, Time: first.Time, Record: merged}, len(buf.fragments), true
}
