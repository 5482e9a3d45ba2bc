package ptydaemon

// session.go - per-session lifecycle: PTY allocation, shell spawn, the
// reader worker that fans output into scroll-back + broadcast, and the
// waiter that reaps the child. Modeled on the reference daemon's
// Instance/ptyReader/destroy split (grove's internal/daemon/instance.go),
// generalized from "agent in a git worktree" to "any shell session".

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// session owns one PTY-backed shell process plus the state needed to serve
// Attach/Write/Resize/Kill against it.
type session struct {
	id string

	mu    sync.Mutex
	cwd   string
	rows  uint16
	cols  uint16
	alive bool

	ptm *os.File // PTY master; nil once the session has been killed
	cmd *exec.Cmd

	// processDone is closed once, by waiter, after cmd.Wait returns.
	// Nothing else may call cmd.Wait — concurrent Wait calls on the same
	// *exec.Cmd race on cmd.ProcessState and fd teardown.
	processDone chan struct{}

	scrollback *scrollback
	broadcast  *broadcast
}

// spawnSession allocates a PTY, starts shell as a login shell inside it, and
// launches the reader worker. The critical section that touches the
// registry map is intentionally left to the caller (registry.spawn) so that
// the I/O-heavy work here — pty.StartWithSize and friends — never happens
// while holding the registry lock (spec §9 open question).
func spawnSession(id, shellPath, cwd string, rows, cols uint16, scrollbackCap, broadcastCap int) (*session, error) {
	if rows == 0 {
		rows = 24
	}
	if cols == 0 {
		cols = 80
	}

	cmd := exec.Command(shellPath, "-l")
	if cwd != "" {
		cmd.Dir = cwd
	}
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	ptm, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: rows, Cols: cols})
	if err != nil {
		return nil, fmt.Errorf("spawn shell: %w", err)
	}

	s := &session{
		id:          id,
		cwd:         cwd,
		rows:        rows,
		cols:        cols,
		alive:       true,
		ptm:         ptm,
		cmd:         cmd,
		processDone: make(chan struct{}),
		scrollback:  newScrollback(scrollbackCap),
		broadcast:   newBroadcast(broadcastCap),
	}

	go s.readerWorker()

	return s, nil
}

// readerWorker drains PTY output, appending it to scroll-back and
// publishing it to the broadcast endpoint as one atomic unit per read
// (spec §5 "Ordering"), then waits for the child to exit.
func (s *session) readerWorker() {
	buf := make([]byte, 4096)
	for {
		n, err := s.ptm.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			unlock := s.scrollback.lock()
			s.scrollback.appendLocked(chunk)
			s.broadcast.publish(chunk)
			unlock()
		}
		if err != nil {
			break
		}
	}

	s.waiter()
}

// waiter blocks on child exit, flips alive to false, and logs the status —
// addressing the REDESIGN FLAG in spec §9 ("alive is never flipped"). This
// is the only caller of cmd.Wait for this session; kill() waits on
// processDone instead of calling cmd.Wait itself.
func (s *session) waiter() {
	err := s.cmd.Wait()
	close(s.processDone)

	s.mu.Lock()
	s.alive = false
	s.mu.Unlock()

	s.broadcast.close()

	log.Printf("session %s: shell exited (%v)", s.id, err)
}

// write sends data to the shell's stdin via the PTY master and flushes.
func (s *session) write(data []byte) error {
	s.mu.Lock()
	ptm := s.ptm
	s.mu.Unlock()
	if ptm == nil {
		return fmt.Errorf("session %s: not alive", s.id)
	}
	if _, err := ptm.Write(data); err != nil {
		return fmt.Errorf("write to session %s: %w", s.id, err)
	}
	return nil
}

// resize changes the PTY's window size. Does not touch scroll-back.
func (s *session) resize(rows, cols uint16) error {
	s.mu.Lock()
	ptm := s.ptm
	s.mu.Unlock()
	if ptm == nil {
		return fmt.Errorf("session %s: not alive", s.id)
	}
	if err := pty.Setsize(ptm, &pty.Winsize{Rows: rows, Cols: cols}); err != nil {
		return fmt.Errorf("resize session %s: %w", s.id, err)
	}
	s.mu.Lock()
	s.rows, s.cols = rows, cols
	s.mu.Unlock()
	return nil
}

// kill terminates the shell's process group, falling back to SIGKILL after
// a short grace period, then drops the PTY master. This addresses the
// REDESIGN FLAG in spec §9 about relying solely on master closure to
// deliver SIGHUP.
func (s *session) kill() {
	s.mu.Lock()
	pid := 0
	if s.cmd != nil && s.cmd.Process != nil {
		pid = s.cmd.Process.Pid
	}
	ptm := s.ptm
	s.mu.Unlock()

	if pid > 0 {
		pgid, err := syscall.Getpgid(pid)
		if err != nil {
			pgid = pid
		}
		syscall.Kill(-pgid, syscall.SIGTERM)

		// Wait for waiter()'s cmd.Wait to observe exit, rather than calling
		// cmd.Wait here ourselves — only one goroutine may ever Wait on a
		// given *exec.Cmd.
		select {
		case <-s.processDone:
		case <-time.After(500 * time.Millisecond):
			syscall.Kill(-pgid, syscall.SIGKILL)
			<-s.processDone
		}
	}

	if ptm != nil {
		ptm.Close()
	}

	s.mu.Lock()
	s.ptm = nil
	s.alive = false
	s.mu.Unlock()

	s.broadcast.close()
}

// info returns a point-in-time snapshot for List.
func (s *session) info() sessionInfoSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sessionInfoSnapshot{
		ID:    s.id,
		Cwd:   s.cwd,
		Rows:  s.rows,
		Cols:  s.cols,
		Alive: s.alive,
	}
}

type sessionInfoSnapshot struct {
	ID    string
	Cwd   string
	Rows  uint16
	Cols  uint16
	Alive bool
}

// attachSnapshot captures scroll-back plus dimensions atomically with
// subscribing to the broadcast endpoint, fulfilling the Attach ordering
// guarantee from spec §8 property 2: every byte in the snapshot precedes
// every Output frame delivered on the returned channel.
func (s *session) attachSnapshot() (buffer string, rows, cols uint16, subID uint64, ch <-chan []byte, alive bool) {
	unlock := s.scrollback.lock()
	defer unlock()
	subID, ch = s.broadcast.subscribe()
	buffer = s.scrollback.snapshotLocked()

	s.mu.Lock()
	rows, cols, alive = s.rows, s.cols, s.alive
	s.mu.Unlock()
	return
}
