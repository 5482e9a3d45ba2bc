package ptydaemon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastDeliversToAllSubscribers(t *testing.T) {
	b := newBroadcast(4)
	_, ch1 := b.subscribe()
	_, ch2 := b.subscribe()

	b.publish([]byte("hi"))

	select {
	case got := <-ch1:
		assert.Equal(t, []byte("hi"), got)
	case <-time.After(time.Second):
		t.Fatal("ch1 did not receive")
	}
	select {
	case got := <-ch2:
		assert.Equal(t, []byte("hi"), got)
	case <-time.After(time.Second):
		t.Fatal("ch2 did not receive")
	}
}

func TestBroadcastLaggedSubscriberNotDisconnected(t *testing.T) {
	b := newBroadcast(2)
	id, ch := b.subscribe()

	// Overflow the subscriber's queue without ever reading.
	for i := 0; i < 10; i++ {
		b.publish([]byte{byte(i)})
	}

	require.Greater(t, b.lagOf(id), uint64(0))

	// The channel must still be open and the most recent message must be
	// among the last two delivered (queue capacity 2), never disconnected.
	var last byte
	for i := 0; i < 2; i++ {
		select {
		case v, ok := <-ch:
			require.True(t, ok)
			last = v[0]
		case <-time.After(time.Second):
			t.Fatal("lagged subscriber should still receive")
		}
	}
	assert.Equal(t, byte(9), last)
}

func TestBroadcastUnsubscribeClosesChannel(t *testing.T) {
	b := newBroadcast(4)
	id, ch := b.subscribe()
	b.unsubscribe(id)

	_, ok := <-ch
	assert.False(t, ok)
}

func TestBroadcastCloseClosesAllSubscribers(t *testing.T) {
	b := newBroadcast(4)
	_, ch1 := b.subscribe()
	_, ch2 := b.subscribe()

	b.close()

	_, ok1 := <-ch1
	_, ok2 := <-ch2
	assert.False(t, ok1)
	assert.False(t, ok2)

	// subscribe() after close returns an already-closed channel.
	_, ch3 := b.subscribe()
	_, ok3 := <-ch3
	assert.False(t, ok3)
}
