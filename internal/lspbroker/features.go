package lspbroker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/myleshyson/lsprotocol-go/protocol"
)

// capabilityError reports a feature call that the language server never
// advertised support for, per SPEC_FULL.md's capability-gated calls.
type capabilityError struct {
	feature string
}

func (e *capabilityError) Error() string {
	return fmt.Sprintf("lspbroker: server does not support %s", e.feature)
}

func textDocumentIdentifier(uri string) protocol.TextDocumentIdentifier {
	return protocol.TextDocumentIdentifier{Uri: protocol.DocumentUri(uri)}
}

func position(line, character uint32) protocol.Position {
	return protocol.Position{Line: line, Character: character}
}

// gotoDefinition flattens the three LSP response shapes for
// textDocument/definition into a single []Location, per spec.md §4.2.
func (p *Project) gotoDefinition(ctx context.Context, uri string, line, character uint32) ([]protocol.Location, error) {
	if caps := p.server.capabilitiesSnapshot(); caps != nil && caps.DefinitionProvider == nil {
		return nil, &capabilityError{feature: "goto_definition"}
	}

	var raw json.RawMessage
	params := protocol.DefinitionParams{
		TextDocument: textDocumentIdentifier(uri),
		Position:     position(line, character),
	}
	if err := p.server.request(ctx, "textDocument/definition", params, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var links []protocol.Or2[protocol.LocationLink, protocol.Location]
	if err := json.Unmarshal(raw, &links); err != nil {
		// Some servers reply with a bare Location rather than an array.
		var single protocol.Location
		if err2 := json.Unmarshal(raw, &single); err2 == nil {
			return []protocol.Location{single}, nil
		}
		return nil, fmt.Errorf("lspbroker: unmarshal definition result: %w", err)
	}

	out := make([]protocol.Location, 0, len(links))
	for _, l := range links {
		switch v := l.Value.(type) {
		case protocol.Location:
			out = append(out, v)
		case protocol.LocationLink:
			out = append(out, protocol.Location{Uri: v.TargetUri, Range: v.TargetSelectionRange})
		}
	}
	return out, nil
}

// hover normalizes Hover.contents (Markup | string | LanguageString |
// array) to a single string, per spec.md §4.2.
func (p *Project) hover(ctx context.Context, uri string, line, character uint32) (string, bool, error) {
	if caps := p.server.capabilitiesSnapshot(); caps != nil && caps.HoverProvider == nil {
		return "", false, &capabilityError{feature: "hover"}
	}

	var raw json.RawMessage
	params := protocol.HoverParams{
		TextDocument: textDocumentIdentifier(uri),
		Position:     position(line, character),
	}
	if err := p.server.request(ctx, "textDocument/hover", params, &raw); err != nil {
		return "", false, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return "", false, nil
	}

	var h protocol.Hover
	if err := json.Unmarshal(raw, &h); err != nil {
		return "", false, fmt.Errorf("lspbroker: unmarshal hover result: %w", err)
	}
	return normalizeHoverContents(h.Contents.Value), true, nil
}

func normalizeHoverContents(contents any) string {
	switch v := contents.(type) {
	case string:
		return v
	case protocol.MarkupContent:
		return v.Value
	case protocol.MarkedString:
		if v.Value != "" {
			return v.Value
		}
		return v.Language
	case []protocol.MarkedString:
		parts := make([]string, 0, len(v))
		for _, m := range v {
			if m.Value != "" {
				parts = append(parts, m.Value)
			} else {
				parts = append(parts, m.Language)
			}
		}
		return strings.Join(parts, "\n\n")
	default:
		data, _ := json.Marshal(contents)
		return string(data)
	}
}

// completion flattens CompletionList | CompletionItem[] into a flat
// []CompletionItem, per spec.md §4.2.
func (p *Project) completion(ctx context.Context, uri string, line, character uint32) ([]protocol.CompletionItem, error) {
	if caps := p.server.capabilitiesSnapshot(); caps != nil && caps.CompletionProvider == nil {
		return nil, &capabilityError{feature: "completion"}
	}

	var raw json.RawMessage
	params := protocol.CompletionParams{
		TextDocument: textDocumentIdentifier(uri),
		Position:     position(line, character),
	}
	if err := p.server.request(ctx, "textDocument/completion", params, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var list protocol.CompletionList
	if err := json.Unmarshal(raw, &list); err == nil {
		return list.Items, nil
	}

	var items []protocol.CompletionItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("lspbroker: unmarshal completion result: %w", err)
	}
	return items, nil
}

// references calls textDocument/references, per spec.md §4.2.
func (p *Project) references(ctx context.Context, uri string, line, character uint32, includeDeclaration bool) ([]protocol.Location, error) {
	if caps := p.server.capabilitiesSnapshot(); caps != nil && caps.ReferencesProvider == nil {
		return nil, &capabilityError{feature: "references"}
	}

	var result []protocol.Location
	params := protocol.ReferenceParams{
		TextDocument: textDocumentIdentifier(uri),
		Position:     position(line, character),
		Context:      protocol.ReferenceContext{IncludeDeclaration: includeDeclaration},
	}
	if err := p.server.request(ctx, "textDocument/references", params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// codeActions flattens Command | CodeAction entries into []CodeAction,
// promoting bare commands per spec.md §4.2.
func (p *Project) codeActions(ctx context.Context, uri string, rng protocol.Range, diagnostics []protocol.Diagnostic) ([]protocol.CodeAction, error) {
	if caps := p.server.capabilitiesSnapshot(); caps != nil && caps.CodeActionProvider == nil {
		return nil, &capabilityError{feature: "code_actions"}
	}

	var raw json.RawMessage
	params := protocol.CodeActionParams{
		TextDocument: textDocumentIdentifier(uri),
		Range:        rng,
		Context:      protocol.CodeActionContext{Diagnostics: diagnostics},
	}
	if err := p.server.request(ctx, "textDocument/codeAction", params, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var entries []protocol.Or2[protocol.CodeAction, protocol.Command]
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("lspbroker: unmarshal code action result: %w", err)
	}

	out := make([]protocol.CodeAction, 0, len(entries))
	for _, e := range entries {
		switch v := e.Value.(type) {
		case protocol.CodeAction:
			out = append(out, v)
		case protocol.Command:
			cmd := v
			out = append(out, protocol.CodeAction{Title: v.Title, Command: &cmd})
		}
	}
	return out, nil
}

// resolveCodeAction populates edits for a lazily-resolved action.
func (p *Project) resolveCodeAction(ctx context.Context, action protocol.CodeAction) (protocol.CodeAction, error) {
	caps := p.server.capabilitiesSnapshot()
	if caps == nil || caps.CodeActionProvider == nil {
		return protocol.CodeAction{}, &capabilityError{feature: "resolve_code_action"}
	}

	var result protocol.CodeAction
	if err := p.server.request(ctx, "codeAction/resolve", action, &result); err != nil {
		return protocol.CodeAction{}, err
	}
	return result, nil
}
