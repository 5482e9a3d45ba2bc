package ptydaemon

import "sync"

// broadcast is a single-producer, many-consumer fan-out of output chunks
// with bounded per-subscriber queues (spec §3 "Broadcast endpoint"). A
// subscriber that cannot keep up is "lagged": it is not disconnected, but
// the oldest chunks in its queue are dropped, so it keeps only the most
// recent capacity chunks.
//
// This follows the drop-oldest-on-full pattern used by
// apex-build-platform's terminal.Multiplexer, adapted to track lag
// explicitly rather than silently overwriting.
type broadcast struct {
	mu       sync.Mutex
	capacity int
	subs     map[uint64]*subscriber
	nextID   uint64
	closed   bool
}

type subscriber struct {
	ch   chan []byte
	mu   sync.Mutex
	lagN uint64
}

func newBroadcast(capacity int) *broadcast {
	if capacity <= 0 {
		capacity = 1
	}
	return &broadcast{capacity: capacity, subs: make(map[uint64]*subscriber)}
}

// subscribe registers a new subscriber and returns its id plus the receive
// channel. The channel is closed when the broadcast is closed (session
// killed) or when the subscriber is removed via unsubscribe.
func (b *broadcast) subscribe() (uint64, <-chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	sub := &subscriber{ch: make(chan []byte, b.capacity)}
	if b.closed {
		close(sub.ch)
		return id, sub.ch
	}
	b.subs[id] = sub
	return id, sub.ch
}

// unsubscribe removes a subscriber and closes its channel. Safe to call
// more than once for the same id.
func (b *broadcast) unsubscribe(id uint64) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()
	if ok {
		close(sub.ch)
	}
}

// publish delivers data to every current subscriber. A subscriber whose
// queue is full has its oldest buffered chunk dropped to make room — this
// subscriber's lag counter increases but it is never disconnected.
func (b *broadcast) publish(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		select {
		case sub.ch <- data:
		default:
			// Queue full: drop the oldest buffered chunk, then retry once.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- data:
			default:
			}
			sub.mu.Lock()
			sub.lagN++
			sub.mu.Unlock()
		}
	}
}

// lagOf reports how many chunks have been dropped for a subscriber so far.
func (b *broadcast) lagOf(id uint64) uint64 {
	b.mu.Lock()
	sub, ok := b.subs[id]
	b.mu.Unlock()
	if !ok {
		return 0
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.lagN
}

// close terminates every subscriber's channel and marks the broadcast dead;
// further publish/subscribe calls are no-ops (subscribe returns an
// already-closed channel).
func (b *broadcast) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}
