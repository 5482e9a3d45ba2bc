package ptydaemon

// connection.go - per-client-connection state: the set of attachments this
// connection currently holds, and the streaming task each attachment runs.
// Mirrors the reference daemon's one-goroutine-per-attach model (grove's
// Instance.Attach) but generalized to fan-out: several connections may
// attach to the same session concurrently, and a connection may hold at
// most one attachment per session (spec §3 "Client connection").

import (
	"log"
	"net"
	"sync"

	"github.com/ravend/raven/internal/ptyproto"
)

// cancelSignal is a single-shot cancellation channel: closing it signals
// the receiving goroutine to stop (spec §9 "Cooperative cancellation").
type cancelSignal = chan struct{}

// clientConn tracks one accepted socket connection's attachments and
// serializes writes to it — command replies and Output frames share a
// single writer mutex (spec §5 "Ordering").
type clientConn struct {
	id   string
	conn net.Conn
	enc  *ptyproto.Encoder

	writeMu sync.Mutex

	mu          sync.Mutex
	attachments map[string]cancelSignal // sessionID -> cancel
}

func newClientConn(id string, conn net.Conn) *clientConn {
	return &clientConn{
		id:          id,
		conn:        conn,
		enc:         ptyproto.NewEncoder(conn),
		attachments: make(map[string]cancelSignal),
	}
}

// send writes a single message under the writer mutex.
func (c *clientConn) send(msg ptyproto.ServerMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.enc.Encode(msg)
}

// attach starts (or restarts) streaming for sessionID on this connection.
// Any prior attachment for the same session is cancelled first (spec §3
// invariant: at most one attachment per (client, session) pair).
func (c *clientConn) attach(sess *session) error {
	c.detach(sess.id)

	buffer, rows, cols, subID, ch, alive := sess.attachSnapshot()

	if err := c.send(ptyproto.Attached(sess.id, buffer, rows, cols)); err != nil {
		sess.broadcast.unsubscribe(subID)
		return err
	}

	if !alive {
		sess.broadcast.unsubscribe(subID)
		return nil
	}

	cancel := make(cancelSignal)
	c.mu.Lock()
	c.attachments[sess.id] = cancel
	c.mu.Unlock()

	go c.streamLoop(sess, subID, ch, cancel)
	return nil
}

// streamLoop selects between cancellation and the broadcast receiver until
// one fires, per spec §5 "Suspension points".
func (c *clientConn) streamLoop(sess *session, subID uint64, ch <-chan []byte, cancel cancelSignal) {
	defer sess.broadcast.unsubscribe(subID)
	defer c.clearAttachment(sess.id, cancel)

	for {
		select {
		case <-cancel:
			return
		case data, ok := <-ch:
			if !ok {
				// Session killed: broadcast closed.
				return
			}
			if lag := sess.broadcast.lagOf(subID); lag > 0 {
				log.Printf("connection %s: attachment to %s lagged by %d chunks", c.id, sess.id, lag)
			}
			if err := c.send(ptyproto.Output(sess.id, data)); err != nil {
				return
			}
		}
	}
}

// clearAttachment removes the attachment entry if it still points at
// cancel (it may already have been replaced by a newer attach call).
func (c *clientConn) clearAttachment(sessionID string, cancel cancelSignal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.attachments[sessionID]; ok && cur == cancel {
		delete(c.attachments, sessionID)
	}
}

// detach cancels the streaming task for sessionID on this connection, if
// any. Idempotent: detaching an unknown session is a silent no-op (spec §7
// "operations that had a side-effect chance... are silently acknowledged").
func (c *clientConn) detach(sessionID string) {
	c.mu.Lock()
	cancel, ok := c.attachments[sessionID]
	if ok {
		delete(c.attachments, sessionID)
	}
	c.mu.Unlock()
	if ok {
		close(cancel)
	}
}

// closeAll cancels every attachment this connection holds, used when the
// client disconnects (spec §5 "Cancellation").
func (c *clientConn) closeAll() {
	c.mu.Lock()
	cancels := make([]cancelSignal, 0, len(c.attachments))
	for id, cancel := range c.attachments {
		cancels = append(cancels, cancel)
		delete(c.attachments, id)
	}
	c.mu.Unlock()
	for _, cancel := range cancels {
		close(cancel)
	}
}
