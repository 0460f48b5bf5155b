package partialconcat

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/c360/journaldconcat/message"
)

// Fragment is one buffered record awaiting its completing record
type Fragment struct {
	Tag    string
	Time   time.Time
	Record message.Record
}

type streamBuffer struct {
	seq       uint64
	fragments []Fragment
}

// streamState is shared by the record path and the sweeper. mu guards every
// field.
type streamState struct {
	mu sync.Mutex

	textKey   string
	markerKey string

	buffers  map[string]*streamBuffer
	activity map[string]time.Time
	seq      uint64
	finished bool
}

func newStreamState(textKey, markerKey string) *streamState {
	return &streamState{
		textKey:   textKey,
		markerKey: markerKey,
		buffers:   make(map[string]*streamBuffer),
		activity:  make(map[string]time.Time),
	}
}

// touch records activity for identity. Caller holds mu.
func (s *streamState) touch(identity string, now time.Time) {
	s.activity[identity] = now
}

// buffer returns the buffer for identity, creating it on first use. Caller
// holds mu.
func (s *streamState) buffer(identity string) *streamBuffer {
	buf, ok := s.buffers[identity]
	if !ok {
		s.seq++
		buf = &streamBuffer{seq: s.seq}
		s.buffers[identity] = buf
	}
	return buf
}

// add appends a fragment for identity. Caller holds mu.
func (s *streamState) add(identity string, f Fragment) {
	buf := s.buffer(identity)
	buf.fragments = append(buf.fragments, f)
}

// pending reports whether identity has buffered fragments. Caller holds mu.
func (s *streamState) pending(identity string) bool {
	buf, ok := s.buffers[identity]
	return ok && len(buf.fragments) > 0
}

// pendingIdentities lists identities with buffered fragments in the order
// their sequences started. Caller holds mu.
func (s *streamState) pendingIdentities() []string {
	ids := make([]string, 0, len(s.buffers))
	for id, buf := range s.buffers {
		if len(buf.fragments) > 0 {
			ids = append(ids, id)
		}
	}
	s.sortBySeq(ids)
	return ids
}

func (s *streamState) sortBySeq(ids []string) {
	slices.SortFunc(ids, func(a, b string) int {
		sa, sb := s.bufferSeq(a), s.bufferSeq(b)
		switch {
		case sa < sb:
			return -1
		case sa > sb:
			return 1
		default:
			return strings.Compare(a, b)
		}
	})
}

func (s *streamState) bufferSeq(identity string) uint64 {
	if buf, ok := s.buffers[identity]; ok {
		return buf.seq
	}
	return 0
}

func (s *streamState) pendingCount() int {
	n := 0
	for _, buf := range s.buffers {
		if len(buf.fragments) > 0 {
			n++
		}
	}
	return n
}

// isFinished reports whether Shutdown has begun
func (s *streamState) isFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// snapshot copies activity and buffered fragment counts for inspection
func (s *streamState) snapshot() (activity map[string]time.Time, buffered map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	activity = make(map[string]time.Time, len(s.activity))
	for id, t := range s.activity {
		activity[id] = t
	}
	buffered = make(map[string]int, len(s.buffers))
	for id, buf := range s.buffers {
		if len(buf.fragments) > 0 {
			buffered[id] = len(buf.fragments)
		}
	}
	return activity, buffered
}
