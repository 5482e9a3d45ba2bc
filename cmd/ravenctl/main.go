// ravenctl is the interactive CLI client for ravend.
//
// Usage:
//
//	ravenctl spawn <session-id> [--cwd <dir>]   create a new session and attach
//	ravenctl attach <session-id>                attach your terminal to a session
//	ravenctl list                               list sessions known to the daemon
//	ravenctl kill <session-id>                  terminate a session
//	ravenctl ping                               check the daemon is reachable
//
// Detach from an attached session with Ctrl-].
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/ravend/raven/internal/ptydaemon"
	"github.com/ravend/raven/internal/ptyproto"
	"golang.org/x/term"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "spawn":
		cmdSpawn()
	case "attach":
		cmdAttach()
	case "list":
		cmdList()
	case "kill":
		cmdKill()
	case "ping":
		cmdPing()
	default:
		fmt.Fprintf(os.Stderr, "ravenctl: unknown command %q\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `ravenctl – talk to the raven PTY daemon

  spawn <session-id> [--cwd <dir>]                         create a session and attach
  attach <session-id>                                      attach to an existing session
  list                                                      list sessions
  kill <session-id>                                         terminate a session
  ping                                                       check daemon liveness`)
}

func socketPath() string {
	return ptydaemon.SocketPath()
}

func dial() net.Conn {
	conn, err := net.Dial("unix", socketPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "ravenctl: cannot connect to ravend at %s: %v\n", socketPath(), err)
		os.Exit(1)
	}
	return conn
}

func sendMsg(conn net.Conn, msg ptyproto.ClientMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ravenctl: %v\n", err)
		os.Exit(1)
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		fmt.Fprintf(os.Stderr, "ravenctl: write: %v\n", err)
		os.Exit(1)
	}
}

func recvMsg(scanner *bufio.Scanner) ptyproto.ServerMessage {
	if !scanner.Scan() {
		fmt.Fprintf(os.Stderr, "ravenctl: connection closed: %v\n", scanner.Err())
		os.Exit(1)
	}
	var msg ptyproto.ServerMessage
	if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
		fmt.Fprintf(os.Stderr, "ravenctl: %v\n", err)
		os.Exit(1)
	}
	return msg
}

func newScanner(conn net.Conn) *bufio.Scanner {
	s := bufio.NewScanner(conn)
	s.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	return s
}

func cmdPing() {
	conn := dial()
	defer conn.Close()
	sendMsg(conn, ptyproto.ClientMessage{Type: ptyproto.TypePing})
	reply := recvMsg(newScanner(conn))
	if reply.Type != ptyproto.TypePong {
		fmt.Fprintf(os.Stderr, "ravenctl: unexpected reply %q\n", reply.Type)
		os.Exit(1)
	}
	fmt.Println("pong")
}

func cmdList() {
	conn := dial()
	defer conn.Close()
	sendMsg(conn, ptyproto.ClientMessage{Type: ptyproto.TypeList})
	reply := recvMsg(newScanner(conn))
	if reply.Type != ptyproto.TypeSessions {
		fmt.Fprintf(os.Stderr, "ravenctl: %s\n", reply.Message)
		os.Exit(1)
	}
	if len(reply.Sessions) == 0 {
		fmt.Println("no sessions")
		return
	}
	fmt.Printf("%-20s  %-6s  %-6s  %-6s  %s\n", "ID", "ROWS", "COLS", "ALIVE", "CWD")
	for _, s := range reply.Sessions {
		fmt.Printf("%-20s  %-6d  %-6d  %-6t  %s\n", s.ID, s.Rows, s.Cols, s.Alive, s.Cwd)
	}
}

func cmdKill() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: ravenctl kill <session-id>")
		os.Exit(1)
	}
	conn := dial()
	defer conn.Close()
	sendMsg(conn, ptyproto.ClientMessage{Type: ptyproto.TypeKill, SessionID: os.Args[2]})
	reply := recvMsg(newScanner(conn))
	if reply.Type != ptyproto.TypeOk {
		fmt.Fprintf(os.Stderr, "ravenctl: %s\n", reply.Message)
		os.Exit(1)
	}
	fmt.Printf("killed %s\n", os.Args[2])
}

func cmdSpawn() {
	fs := flag.NewFlagSet("spawn", flag.ExitOnError)
	cwd := fs.String("cwd", "", "working directory (default: caller's)")
	fs.Usage = func() { fmt.Fprintln(os.Stderr, "usage: ravenctl spawn <session-id> [--cwd <dir>]") }
	if len(os.Args) < 3 {
		fs.Usage()
		os.Exit(1)
	}
	sessionID := os.Args[2]
	fs.Parse(os.Args[3:])

	rows, cols := termSize()

	conn := dial()
	sendMsg(conn, ptyproto.ClientMessage{
		Type:      ptyproto.TypeSpawn,
		SessionID: sessionID,
		Cwd:       *cwd,
		Rows:      rows,
		Cols:      cols,
	})
	reply := recvMsg(newScanner(conn))
	conn.Close()
	if reply.Type != ptyproto.TypeSpawned {
		fmt.Fprintf(os.Stderr, "ravenctl: %s\n", reply.Message)
		os.Exit(1)
	}

	doAttach(sessionID)
}

func cmdAttach() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: ravenctl attach <session-id>")
		os.Exit(1)
	}
	doAttach(os.Args[2])
}

func termSize() (rows, cols uint16) {
	if w, h, err := term.GetSize(int(os.Stdin.Fd())); err == nil {
		return uint16(h), uint16(w)
	}
	return 24, 80
}

// doAttach connects, issues Attach, switches the local terminal to raw
// mode, and pumps bytes in both directions until the user detaches
// (Ctrl-]) or the session's stream ends.
func doAttach(sessionID string) {
	conn := dial()
	defer conn.Close()
	scanner := newScanner(conn)

	sendMsg(conn, ptyproto.ClientMessage{Type: ptyproto.TypeAttach, SessionID: sessionID})
	reply := recvMsg(scanner)
	if reply.Type != ptyproto.TypeAttached {
		fmt.Fprintf(os.Stderr, "ravenctl: %s\n", reply.Message)
		os.Exit(1)
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ravenctl: cannot set raw mode: %v\n", err)
		os.Exit(1)
	}
	restore := func() { term.Restore(fd, oldState) }
	defer restore()

	fmt.Fprint(os.Stdout, reply.Buffer)
	fmt.Fprintf(os.Stdout, "\r\n[ravenctl] attached to %s  (detach: Ctrl-])\r\n", sessionID)

	done := make(chan struct{}, 1)
	signalDone := func() {
		select {
		case done <- struct{}{}:
		default:
		}
	}

	// Goroutine: server → stdout (decode NDJSON Output frames).
	go func() {
		defer signalDone()
		for scanner.Scan() {
			var msg ptyproto.ServerMessage
			if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
				continue
			}
			switch msg.Type {
			case ptyproto.TypeOutput:
				os.Stdout.Write(msg.Data)
			case ptyproto.TypeExited:
				return
			}
		}
	}()

	// Goroutine: stdin → server (Write commands), watching for Ctrl-].
	go func() {
		defer signalDone()
		buf := make([]byte, 4096)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				if idx := bytes.IndexByte(buf[:n], 0x1D); idx >= 0 {
					sendMsg(conn, ptyproto.ClientMessage{Type: ptyproto.TypeDetach, SessionID: sessionID})
					return
				}
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				sendMsg(conn, ptyproto.ClientMessage{Type: ptyproto.TypeWrite, SessionID: sessionID, Data: chunk})
			}
			if err != nil {
				return
			}
		}
	}()

	winchCh := make(chan os.Signal, 1)
	signal.Notify(winchCh, syscall.SIGWINCH)
	defer signal.Stop(winchCh)
	go func() {
		for range winchCh {
			rows, cols := termSize()
			sendMsg(conn, ptyproto.ClientMessage{Type: ptyproto.TypeResize, SessionID: sessionID, Rows: rows, Cols: cols})
		}
	}()

	<-done
	restore()
	fmt.Fprintf(os.Stdout, "\n[ravenctl] detached from %s\n", sessionID)
}
