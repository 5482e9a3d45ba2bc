// Package ptydaemon implements ravend, the PTY multiplexer daemon: it owns
// a registry of interactive shell sessions and serves the newline-delimited
// JSON command protocol described in spec.md §4.1 over a local stream
// socket.
//
// Structurally this follows the reference daemon (grove/catherdd): a single
// accept loop handing each connection to its own goroutine, a mutex-guarded
// session map, and one reader goroutine per PTY. It generalizes the
// reference's single-attached-client-per-instance model to true fan-out:
// any number of connections may attach to the same session concurrently.
package ptydaemon

import (
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/ravend/raven/internal/ptyproto"
)

// Daemon is the central supervisor: socket listener plus session registry.
type Daemon struct {
	registry *registry

	mu       sync.Mutex
	listener net.Listener
}

// Options configures a Daemon.
type Options struct {
	Shell           string
	ScrollbackBytes int
	BroadcastDepth  int
}

// New creates a Daemon ready to Run.
func New(opts Options) *Daemon {
	shell := opts.Shell
	if shell == "" {
		shell = DefaultShell()
	}
	return &Daemon{
		registry: newRegistry(shell, opts.ScrollbackBytes, opts.BroadcastDepth),
	}
}

// DefaultShell resolves the fallback shell per spec §4.1: $SHELL, else
// /bin/zsh.
func DefaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/zsh"
}

// SocketPath resolves the daemon's listen path per spec §6: env override,
// else a per-user runtime directory, else /tmp.
func SocketPath() string {
	if p := os.Getenv("RAVEN_SOCKET_PATH"); p != "" {
		return p
	}
	if dir := runtimeDir(); dir != "" {
		return dir + "/daemon.sock"
	}
	return "/tmp/raven-daemon.sock"
}

// DefaultRuntimeDir exposes the per-user runtime directory used to resolve
// both the socket path and the default config file location.
func DefaultRuntimeDir() string {
	return runtimeDir()
}

func runtimeDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return home + "/.raven"
}

// Run listens on socketPath and blocks, serving connections until the
// listener is closed.
func (d *Daemon) Run(socketPath string) error {
	os.Remove(socketPath) // stale socket from a prior run (spec §6)

	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}

	d.mu.Lock()
	d.listener = l
	d.mu.Unlock()

	log.Printf("ravend listening on %s", socketPath)

	var connCounter uint64
	for {
		conn, err := l.Accept()
		if err != nil {
			return nil // listener closed: shutdown requested
		}
		id := fmt.Sprintf("c%d-%s", atomic.AddUint64(&connCounter, 1), uuid.NewString()[:8])
		go d.handleConn(id, conn)
	}
}

// Shutdown closes the listener and kills every live session.
func (d *Daemon) Shutdown() {
	d.mu.Lock()
	l := d.listener
	d.mu.Unlock()
	if l != nil {
		l.Close()
	}
	d.registry.killAll()
}

func (d *Daemon) handleConn(id string, netConn net.Conn) {
	c := newClientConn(id, netConn)
	defer func() {
		c.closeAll()
		netConn.Close()
	}()

	dec := ptyproto.NewDecoder(netConn)
	for {
		msg, err := dec.Decode()
		if err != nil {
			if err == io.EOF {
				return
			}
			// Malformed JSON: report and keep the connection open (spec §7
			// "Protocol decode error... keep the connection open").
			if c.send(ptyproto.Error("%s", err.Error())) != nil {
				return
			}
			continue
		}
		if cont := d.dispatch(c, msg); !cont {
			return
		}
	}
}

// dispatch handles one decoded client message. Returns false if the
// connection should be closed (write failure).
func (d *Daemon) dispatch(c *clientConn, msg ptyproto.ClientMessage) bool {
	switch msg.Type {
	case ptyproto.TypePing:
		return c.send(ptyproto.Pong()) == nil

	case ptyproto.TypeSpawn:
		return d.handleSpawn(c, msg) == nil

	case ptyproto.TypeWrite:
		return d.handleWrite(c, msg) == nil

	case ptyproto.TypeResize:
		return d.handleResize(c, msg) == nil

	case ptyproto.TypeAttach:
		return d.handleAttach(c, msg) == nil

	case ptyproto.TypeDetach:
		c.detach(msg.SessionID)
		return c.send(ptyproto.Ok()) == nil

	case ptyproto.TypeKill:
		return d.handleKill(c, msg) == nil

	case ptyproto.TypeList:
		return c.send(ptyproto.Sessions(toWireInfos(d.registry.list()))) == nil

	default:
		return c.send(ptyproto.Error("unknown command type: %s", msg.Type)) == nil
	}
}

func (d *Daemon) handleSpawn(c *clientConn, msg ptyproto.ClientMessage) error {
	if msg.SessionID == "" {
		return c.send(ptyproto.Error("session_id is required"))
	}
	s, err := d.registry.spawn(msg.SessionID, msg.Cwd, msg.Rows, msg.Cols)
	if err != nil {
		return c.send(ptyproto.Error("%s", err.Error()))
	}
	return c.send(ptyproto.Spawned(s.id))
}

func (d *Daemon) handleWrite(c *clientConn, msg ptyproto.ClientMessage) error {
	s, ok := d.registry.get(msg.SessionID)
	if !ok {
		return c.send(ptyproto.Error("session not found: %s", msg.SessionID))
	}
	if err := s.write(msg.Data); err != nil {
		return c.send(ptyproto.Error("%s", err.Error()))
	}
	return c.send(ptyproto.Ok())
}

func (d *Daemon) handleResize(c *clientConn, msg ptyproto.ClientMessage) error {
	s, ok := d.registry.get(msg.SessionID)
	if !ok {
		return c.send(ptyproto.Error("session not found: %s", msg.SessionID))
	}
	if err := s.resize(msg.Rows, msg.Cols); err != nil {
		return c.send(ptyproto.Error("%s", err.Error()))
	}
	return c.send(ptyproto.Ok())
}

func (d *Daemon) handleAttach(c *clientConn, msg ptyproto.ClientMessage) error {
	s, ok := d.registry.get(msg.SessionID)
	if !ok {
		return c.send(ptyproto.Error("session not found: %s", msg.SessionID))
	}
	return c.attach(s)
}

func (d *Daemon) handleKill(c *clientConn, msg ptyproto.ClientMessage) error {
	if !d.registry.kill(msg.SessionID) {
		return c.send(ptyproto.Error("session not found: %s", msg.SessionID))
	}
	return c.send(ptyproto.Ok())
}

func toWireInfos(snaps []sessionInfoSnapshot) []ptyproto.SessionInfo {
	out := make([]ptyproto.SessionInfo, len(snaps))
	for i, s := range snaps {
		out[i] = ptyproto.SessionInfo{ID: s.ID, Cwd: s.Cwd, Rows: s.Rows, Cols: s.Cols, Alive: s.Alive}
	}
	return out
}
