package ptydaemon

// wsmirror.go - an optional, loopback-only debug endpoint that mirrors a
// session's broadcast stream over a WebSocket, independent of the NDJSON
// socket protocol. Intended for a companion GUI's developer-tools pane,
// never for input. Modeled on apex-build-platform's
// execution.TerminalManager, which exposes the same PTY output over a
// gorilla/websocket upgrade alongside its primary API.

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	// Loopback-only by construction (ListenAndServe refuses any other
	// address); origin
	// checking would be redundant defense for a debug tool nothing outside
	// localhost can reach.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// DebugMirror serves a read-only HTTP+WebSocket view of the daemon's
// sessions. It must only ever be bound to a loopback address.
type DebugMirror struct {
	d *Daemon
}

// NewDebugMirror wraps d for serving.
func NewDebugMirror(d *Daemon) *DebugMirror {
	return &DebugMirror{d: d}
}

// ListenAndServe blocks serving the debug mirror on addr. It returns an
// error without listening if addr's host is not a loopback address.
func (m *DebugMirror) ListenAndServe(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		return fmt.Errorf("debug mirror: %s is not a loopback address", addr)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/sessions", m.handleList)
	mux.HandleFunc("/sessions/", m.handleWatch)
	log.Printf("ravend debug mirror listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}

func (m *DebugMirror) handleList(w http.ResponseWriter, r *http.Request) {
	infos := toWireInfos(m.d.registry.list())
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(infos)
}

// handleWatch upgrades /sessions/{id}/ws to a WebSocket and mirrors that
// session's broadcast stream, replaying scroll-back first. It never reads
// client-sent frames beyond the control messages gorilla/websocket needs
// internally — this is a read-only mirror.
func (m *DebugMirror) handleWatch(w http.ResponseWriter, r *http.Request) {
	id := sessionIDFromPath(r.URL.Path)
	if id == "" {
		http.NotFound(w, r)
		return
	}
	s, ok := m.d.registry.get(id)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	buffer, _, _, subID, ch, alive := s.attachSnapshot()
	defer s.broadcast.unsubscribe(subID)

	if len(buffer) > 0 {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(buffer)); err != nil {
			return
		}
	}
	if !alive {
		return
	}

	for data := range ch {
		if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			return
		}
	}
}

func sessionIDFromPath(path string) string {
	const prefix = "/sessions/"
	const suffix = "/ws"
	if len(path) <= len(prefix)+len(suffix) {
		return ""
	}
	if path[:len(prefix)] != prefix {
		return ""
	}
	rest := path[len(prefix):]
	if len(rest) <= len(suffix) || rest[len(rest)-len(suffix):] != suffix {
		return ""
	}
	return rest[:len(rest)-len(suffix)]
}
