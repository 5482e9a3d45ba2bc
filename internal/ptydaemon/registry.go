package ptydaemon

import (
	"sort"
	"sync"
)

// registry is the process-wide session manager. A single mutex guards the
// map; per spec §5 lock hold times cover only map mutation or short
// accessor reads — the I/O-heavy work of spawning a PTY happens in
// spawnSession before the lock is ever taken, so the session is constructed
// first and inserted last (spec §9 open question).
type registry struct {
	mu       sync.Mutex
	sessions map[string]*session

	shell           string
	scrollbackBytes int
	broadcastDepth  int
}

func newRegistry(shell string, scrollbackBytes, broadcastDepth int) *registry {
	return &registry{
		sessions:        make(map[string]*session),
		shell:           shell,
		scrollbackBytes: scrollbackBytes,
		broadcastDepth:  broadcastDepth,
	}
}

// spawn creates a new session under id, replacing and killing any prior
// session with the same id (spec §3 "Re-spawning under the same id
// replaces the prior one").
func (r *registry) spawn(id, cwd string, rows, cols uint16) (*session, error) {
	shell := r.shell
	if shell == "" {
		shell = DefaultShell()
	}

	s, err := spawnSession(id, shell, cwd, rows, cols, r.scrollbackBytes, r.broadcastDepth)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	prior := r.sessions[id]
	r.sessions[id] = s
	r.mu.Unlock()

	if prior != nil {
		prior.kill()
	}

	return s, nil
}

func (r *registry) get(id string) (*session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// kill terminates and removes the session with id. Returns false if no such
// session exists.
func (r *registry) kill(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	s.kill()
	return true
}

// list returns a stable, id-sorted snapshot of every session (spec §8
// property 1: a spawned session remains listed until Kill succeeds).
func (r *registry) list() []sessionInfoSnapshot {
	r.mu.Lock()
	snaps := make([]sessionInfoSnapshot, 0, len(r.sessions))
	for _, s := range r.sessions {
		snaps = append(snaps, s.info())
	}
	r.mu.Unlock()

	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ID < snaps[j].ID })
	return snaps
}

// killAll terminates every session, used on daemon shutdown.
func (r *registry) killAll() {
	r.mu.Lock()
	sessions := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.kill()
	}
}
