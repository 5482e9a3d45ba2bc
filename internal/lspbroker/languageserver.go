package lspbroker

import (
	"context"
	"fmt"
	"io"
	"log"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/myleshyson/lsprotocol-go/protocol"
	"github.com/sourcegraph/jsonrpc2"
)

// DefaultRequestTimeout is the per-request timeout described in spec.md
// §4.2/§5: 30 seconds unless a caller overrides it.
const DefaultRequestTimeout = 30 * time.Second

// LanguageServer owns one child language-server process and its JSON-RPC
// connection. All outgoing traffic is serialized by jsonrpc2.Conn; the
// pending-request table (id -> reply channel) that spec.md describes is
// jsonrpc2.Conn's internal call table, so correlation and timeout removal
// come from the library rather than being hand-rolled here.
type LanguageServer struct {
	id   string
	cmd  *exec.Cmd
	conn *jsonrpc2.Conn

	mu           sync.RWMutex
	capabilities *protocol.ServerCapabilities
	dead         bool
}

type stdioReadWriteCloser struct {
	io.ReadCloser
	io.WriteCloser
}

func (s stdioReadWriteCloser) Close() error {
	werr := s.WriteCloser.Close()
	rerr := s.ReadCloser.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// spawnAndInitialize launches command with args, performs the LSP
// handshake (initialize, then initialized), and returns a ready
// LanguageServer. sink receives publishDiagnostics deliveries for
// this server for as long as it runs.
func spawnAndInitialize(ctx context.Context, command string, args []string, rootURI string, sink NotificationSink) (*LanguageServer, error) {
	cmd := exec.Command(command, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("lspbroker: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("lspbroker: stdout pipe: %w", err)
	}
	cmd.Stderr = nil // discarded, per spec.md §4.2

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("lspbroker: start %s: %w", command, err)
	}

	rwc := stdioReadWriteCloser{ReadCloser: stdout, WriteCloser: stdin}
	stream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{})
	handler := &serverHandler{sink: sink}
	conn := jsonrpc2.NewConn(context.Background(), stream, handler)

	id := uuid.New().String()
	ls := &LanguageServer{id: id, cmd: cmd, conn: conn}
	log.Printf("lspbroker: server %s started (%s %v), pid %d", id, command, args, cmd.Process.Pid)

	go func() {
		<-conn.DisconnectNotify()
		ls.mu.Lock()
		ls.dead = true
		ls.mu.Unlock()
		log.Printf("lspbroker: server %s (%s) exited", id, command)
	}()

	initParams := protocol.InitializeParams{
		ProcessId: int32Ptr(int32(-1)),
		RootUri:   stringPtr(rootURI),
		Capabilities: protocol.ClientCapabilities{
			TextDocument: &protocol.TextDocumentClientCapabilities{
				Hover: &protocol.HoverClientCapabilities{
					ContentFormat: []protocol.MarkupKind{protocol.MarkupKindMarkdown, protocol.MarkupKindPlainText},
				},
				Completion: &protocol.CompletionClientCapabilities{
					CompletionItem: &protocol.ClientCompletionItemOptions{
						SnippetSupport: boolPtr(true),
					},
				},
				Definition: &protocol.DefinitionClientCapabilities{
					LinkSupport: boolPtr(true),
				},
				References: &protocol.ReferenceClientCapabilities{},
				PublishDiagnostics: &protocol.PublishDiagnosticsClientCapabilities{},
				CodeAction: &protocol.CodeActionClientCapabilities{
					CodeActionLiteralSupport: &protocol.ClientCodeActionLiteralOptions{
						CodeActionKind: protocol.ClientCodeActionKindOptions{
							ValueSet: []protocol.CodeActionKind{},
						},
					},
					ResolveSupport: &protocol.ClientCodeActionResolveOptions{
						Properties: []string{"edit"},
					},
				},
			},
		},
	}

	var initResult protocol.InitializeResult
	if err := conn.Call(ctx, "initialize", initParams, &initResult); err != nil {
		cmd.Process.Kill()
		return nil, fmt.Errorf("lspbroker: initialize: %w", err)
	}
	ls.mu.Lock()
	ls.capabilities = &initResult.Capabilities
	ls.mu.Unlock()

	if err := conn.Notify(ctx, "initialized", protocol.InitializedParams{}); err != nil {
		return nil, fmt.Errorf("lspbroker: initialized: %w", err)
	}

	return ls, nil
}

// request issues a correlated request with the default timeout and
// unmarshals the result into out.
func (ls *LanguageServer) request(ctx context.Context, method string, params, out any) error {
	return ls.requestTimeout(ctx, method, params, out, DefaultRequestTimeout)
}

func (ls *LanguageServer) requestTimeout(ctx context.Context, method string, params, out any, timeout time.Duration) error {
	if ls.isDead() {
		return fmt.Errorf("lspbroker: language server is not running")
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := ls.conn.Call(cctx, method, params, out); err != nil {
		if cctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("lspbroker: request %s timed out after %s", method, timeout)
		}
		return fmt.Errorf("lspbroker: request %s: %w", method, err)
	}
	return nil
}

func (ls *LanguageServer) notify(ctx context.Context, method string, params any) error {
	if ls.isDead() {
		return fmt.Errorf("lspbroker: language server is not running")
	}
	return ls.conn.Notify(ctx, method, params)
}

func (ls *LanguageServer) isDead() bool {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return ls.dead
}

func (ls *LanguageServer) capabilitiesSnapshot() *protocol.ServerCapabilities {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return ls.capabilities
}

// stop implements spec.md's shutdown sequence: a shutdown request (reply
// ignored), then an exit notification. The process is expected to exit on
// its own; residual pending requests are abandoned by jsonrpc2.Conn.Close.
func (ls *LanguageServer) stop(ctx context.Context) {
	var discard any
	ls.conn.Call(ctx, "shutdown", nil, &discard)
	ls.conn.Notify(ctx, "exit", nil)
	ls.conn.Close()
}

func int32Ptr(v int32) *int32   { return &v }
func stringPtr(v string) *string { return &v }
func boolPtr(v bool) *bool      { return &v }
