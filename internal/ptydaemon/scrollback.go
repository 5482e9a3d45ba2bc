package ptydaemon

import (
	"bytes"
	"strings"
	"sync"
	"unicode/utf8"
)

// scrollback is a bounded, UTF-8-lossy byte buffer retaining at most
// capacity bytes of a session's historical output (spec §3). Overflow is
// trimmed from the front, preferring to cut at the first newline at or
// after the overflow boundary so a fresh Attach snapshot starts mid-line
// as rarely as possible.
type scrollback struct {
	mu       sync.Mutex
	capacity int
	buf      []byte
}

func newScrollback(capacity int) *scrollback {
	if capacity <= 0 {
		capacity = 1
	}
	return &scrollback{capacity: capacity}
}

// lock acquires the buffer's mutex and returns the matching unlock. Callers
// that append and also publish the same bytes to the broadcast endpoint
// must not call the returned unlock until after publishing, so the two
// operations are observed atomically by a concurrent Attach (spec §5
// "Ordering").
func (s *scrollback) lock() func() {
	s.mu.Lock()
	return s.mu.Unlock
}

// appendLocked appends data to the buffer. Caller must hold the lock
// acquired via lock().
func (s *scrollback) appendLocked(data []byte) {
	s.buf = append(s.buf, data...)
	if len(s.buf) <= s.capacity {
		return
	}

	overflow := len(s.buf) - s.capacity
	cut := overflow
	// Prefer to cut at the first newline at or after the overflow boundary so
	// the retained tail starts on a line boundary. Searching from overflow
	// onward (not within it) guarantees at least `overflow` bytes are
	// dropped; searching the overflow prefix itself can find a newline that
	// removes fewer bytes than needed, leaving the buffer over capacity.
	if nl := bytes.IndexByte(s.buf[overflow:], '\n'); nl >= 0 {
		cut = overflow + nl + 1
	}
	// Never split a multi-byte rune: if cut lands on a UTF-8 continuation
	// byte, back off to the start of that rune. This can leave the buffer a
	// few bytes over capacity, which the one-chunk slack in spec §8 allows.
	for cut > 0 && cut < len(s.buf) && isUTF8Continuation(s.buf[cut]) {
		cut--
	}
	s.buf = append([]byte(nil), s.buf[cut:]...)
}

func isUTF8Continuation(b byte) bool {
	return b&0xC0 == 0x80
}

// snapshotLocked returns a UTF-8-lossy copy of the current buffer: each run
// of invalid bytes is replaced with a single Unicode replacement character.
// Caller must hold the lock.
func (s *scrollback) snapshotLocked() string {
	if utf8.Valid(s.buf) {
		return string(s.buf)
	}
	return strings.ToValidUTF8(string(s.buf), string(utf8.RuneError))
}

func (s *scrollback) len() int {
	unlock := s.lock()
	defer unlock()
	return len(s.buf)
}
