package lspbroker

import (
	"context"
	"encoding/json"
	"log"

	"github.com/myleshyson/lsprotocol-go/protocol"
	"github.com/sourcegraph/jsonrpc2"
)

// NotificationSink receives publishDiagnostics deliveries, one per
// project, matching spec.md's "caller-provided notification sink".
type NotificationSink chan protocol.PublishDiagnosticsParams

// serverHandler implements jsonrpc2.Handler for messages the language
// server initiates: notifications (routed to sink where recognized) and
// server-to-client requests (acknowledged or ignored; the broker never
// crashes on an unhandled one, per spec.md §4.2).
type serverHandler struct {
	sink NotificationSink
}

func (h *serverHandler) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	switch req.Method {
	case "textDocument/publishDiagnostics":
		if req.Params == nil {
			return
		}
		var params protocol.PublishDiagnosticsParams
		if err := json.Unmarshal(*req.Params, &params); err != nil {
			log.Printf("lspbroker: bad publishDiagnostics params: %v", err)
			return
		}
		if h.sink != nil {
			select {
			case h.sink <- params:
			default:
				log.Printf("lspbroker: diagnostics sink full, dropping update for %s", params.Uri)
			}
		}

	case "window/workDoneProgress/create":
		if !req.Notif {
			conn.Reply(ctx, req.ID, map[string]any{})
		}

	case "client/registerCapability", "client/unregisterCapability":
		if !req.Notif {
			conn.Reply(ctx, req.ID, map[string]any{})
		}

	case "workspace/configuration":
		if !req.Notif {
			conn.Reply(ctx, req.ID, []any{})
		}

	case "window/showMessage", "window/logMessage", "$/progress":
		// Accepted and ignored; not part of the core's named routing.

	default:
		if req.Notif {
			return
		}
		conn.ReplyWithError(ctx, req.ID, &jsonrpc2.Error{
			Code:    jsonrpc2.CodeMethodNotFound,
			Message: "method not found: " + req.Method,
		})
	}
}
