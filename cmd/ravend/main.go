// ravend is the PTY multiplexer daemon: it owns a registry of interactive
// shell sessions and serves the newline-delimited JSON command protocol
// over a local Unix domain socket.
//
// Usage:
//
//	ravend [--socket <path>] [--config <path>] [--debug-ws <addr>]
//
// ravenctl does not start ravend; the daemon must already be running for
// ravenctl to connect.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ravend/raven/internal/config"
	"github.com/ravend/raven/internal/ptydaemon"
)

func main() {
	socketPath := flag.String("socket", "", "socket path (default: config socket_path, else $RAVEN_SOCKET_PATH, else per-user runtime dir, else /tmp)")
	configPath := flag.String("config", "", "config file path (default: $RAVEN_CONFIG, else <runtime-dir>/raven.yaml)")
	debugWS := flag.String("debug-ws", "", "loopback address to serve the read-only debug WebSocket mirror on (e.g. 127.0.0.1:9292); if empty, the config file's debug_websocket setting decides")
	flag.Parse()

	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = config.ResolvePath(ptydaemon.DefaultRuntimeDir())
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("ravend: config: %v", err)
	}

	sock := *socketPath
	if sock == "" {
		sock = cfg.SocketPath
	}
	if sock == "" {
		sock = ptydaemon.SocketPath()
	}

	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = cfg.Shell
	}
	if shell == "" {
		shell = ptydaemon.DefaultShell()
	}
	scrollback := cfg.ScrollbackBytes
	if scrollback <= 0 {
		scrollback = config.DefaultScrollbackBytes
	}
	depth := cfg.BroadcastDepth
	if depth <= 0 {
		depth = config.DefaultBroadcastDepth
	}

	d := ptydaemon.New(ptydaemon.Options{
		Shell:           shell,
		ScrollbackBytes: scrollback,
		BroadcastDepth:  depth,
	})

	wsAddr := *debugWS
	enableDebugWS := *debugWS != ""
	if wsAddr == "" {
		wsAddr = cfg.DebugWebsocketAddr
		enableDebugWS = cfg.DebugWebsocket
	}
	if enableDebugWS && wsAddr != "" {
		mirror := ptydaemon.NewDebugMirror(d)
		go func() {
			if err := mirror.ListenAndServe(wsAddr); err != nil {
				log.Printf("ravend: debug mirror stopped: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("ravend: received %v, shutting down", sig)
		d.Shutdown()
		os.Exit(0)
	}()

	if err := d.Run(sock); err != nil {
		log.Fatalf("ravend: %v", err)
	}
}
