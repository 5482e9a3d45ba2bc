package ptydaemon

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestScrollbackWithinCapacity(t *testing.T) {
	sb := newScrollback(1024)
	unlock := sb.lock()
	sb.appendLocked([]byte("hello\nworld\n"))
	got := sb.snapshotLocked()
	unlock()

	assert.Equal(t, "hello\nworld\n", got)
}

func TestScrollbackTrimsAtNewline(t *testing.T) {
	sb := newScrollback(10)
	unlock := sb.lock()
	sb.appendLocked([]byte("aaaa\nbbbb\n"))
	unlock()

	unlock = sb.lock()
	got := sb.snapshotLocked()
	unlock()
	assert.LessOrEqual(t, len(got), 10)

	unlock = sb.lock()
	sb.appendLocked([]byte("c"))
	got = sb.snapshotLocked()
	unlock()

	// Should have trimmed the "aaaa\n" prefix at the newline, not mid-line.
	assert.True(t, strings.HasPrefix(got, "bbbb\n"))
	assert.LessOrEqual(t, len(got), 11) // one chunk of slack permitted (spec §8 property 3)
}

// TestScrollbackNewlineRichOutputNeverGrowsUnbounded guards against cutting
// at a newline found within the overflow prefix instead of at-or-after the
// overflow boundary: that mistake removes fewer than `overflow` bytes
// whenever a newline lands early in the prefix, and since every append
// re-triggers a trim, the buffer creeps above capacity indefinitely on
// newline-rich input — the normal case for PTY output.
func TestScrollbackNewlineRichOutputNeverGrowsUnbounded(t *testing.T) {
	sb := newScrollback(16)
	unlock := sb.lock()
	for i := 0; i < 200; i++ {
		sb.appendLocked([]byte("a\n"))
		assert.LessOrEqual(t, len(sb.buf), 16+2, "buffer must not grow past capacity plus one chunk of slack")
	}
	unlock()
}

func TestScrollbackNeverExceedsCapacityByMuch(t *testing.T) {
	sb := newScrollback(16)
	unlock := sb.lock()
	for i := 0; i < 100; i++ {
		sb.appendLocked([]byte("0123456789"))
	}
	got := sb.snapshotLocked()
	unlock()

	assert.LessOrEqual(t, len(got), 26) // capacity + one chunk of slack
}

func TestScrollbackDoesNotSplitMultibyteRune(t *testing.T) {
	// "café" — 'é' is two bytes (0xC3 0xA9). Force the cut to land inside it.
	// With capacity 1 the 5-byte input overflows by 4, so the cut lands on
	// 0xA9; it must back off to 0xC3 and keep the whole 'é'.
	sb := newScrollback(1)
	unlock := sb.lock()
	sb.appendLocked([]byte("café"))
	got := sb.snapshotLocked()
	unlock()

	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "é", got)
}
