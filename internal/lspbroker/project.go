package lspbroker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/myleshyson/lsprotocol-go/protocol"
)

// Project owns exactly one LanguageServer keyed by its root path, per
// spec.md's LSP subsystem. It is created on Start and removed on Stop.
type Project struct {
	root   string
	server *LanguageServer
	docs   *documentTable

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// startProject spawns command as the language server for root, performs
// the initialize handshake, and starts a workspace file watcher
// (SPEC_FULL.md's supplemented feature) rooted at root.
func startProject(ctx context.Context, root, command string, args []string, sink NotificationSink) (*Project, error) {
	rootURI := "file://" + root

	server, err := spawnAndInitialize(ctx, command, args, rootURI, sink)
	if err != nil {
		return nil, err
	}

	p := &Project{
		root:   root,
		server: server,
		docs:   newDocumentTable(),
		done:   make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		if err := addWatcherTree(watcher, root); err != nil {
			watcher.Close()
		} else {
			p.watcher = watcher
			go p.watchLoop()
		}
	}

	return p, nil
}

// addWatcherTree registers root and every directory beneath it, matching
// fsnotify's non-recursive watch model.
func addWatcherTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			watcher.Add(path)
		}
		return nil
	})
}

// watchLoop coalesces fsnotify events over a short debounce window and
// forwards them to the language server as workspace/didChangeWatchedFiles.
func (p *Project) watchLoop() {
	var pending []protocol.FileEvent
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	const debounce = 200 * time.Millisecond

	flush := func() {
		if len(pending) == 0 {
			return
		}
		batch := pending
		pending = nil
		ctx, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
		p.server.notify(ctx, "workspace/didChangeWatchedFiles", protocol.DidChangeWatchedFilesParams{Changes: batch})
		cancel()
	}

	for {
		select {
		case ev, ok := <-p.watcher.Events:
			if !ok {
				flush()
				return
			}
			kind, ok := fileChangeKind(ev)
			if !ok {
				continue
			}
			pending = append(pending, protocol.FileEvent{
				Uri:  protocol.DocumentUri("file://" + ev.Name),
				Type: kind,
			})
			if ev.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					p.watcher.Add(ev.Name)
				}
			}
			timer.Reset(debounce)
		case <-timer.C:
			flush()
		case <-p.done:
			flush()
			return
		case _, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func fileChangeKind(ev fsnotify.Event) (protocol.FileChangeType, bool) {
	switch {
	case ev.Op&fsnotify.Create == fsnotify.Create:
		return protocol.FileChangeTypeCreated, true
	case ev.Op&fsnotify.Write == fsnotify.Write:
		return protocol.FileChangeTypeChanged, true
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		return protocol.FileChangeTypeDeleted, true
	default:
		return 0, false
	}
}

// open implements the didOpen transition from spec.md's document state
// machine: if absent, send didOpen with version=1 and insert; if
// present, no-op.
func (p *Project) open(ctx context.Context, path, content string) error {
	uri := "file://" + path
	isNew, _ := p.docs.open(uri)
	if !isNew {
		return nil
	}
	return p.server.notify(ctx, "textDocument/didOpen", protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			Uri:        protocol.DocumentUri(uri),
			LanguageId: protocol.LanguageKind(detectLanguage(path)),
			Version:    1,
			Text:       content,
		},
	})
}

// change implements didChange, transparently upgrading to didOpen on a
// miss, per spec.md's document state machine.
func (p *Project) change(ctx context.Context, path, content string) error {
	uri := "file://" + path
	needsOpen, version := p.docs.change(uri)
	if needsOpen {
		return p.open(ctx, path, content)
	}
	return p.server.notify(ctx, "textDocument/didChange", protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			Uri:     protocol.DocumentUri(uri),
			Version: version,
		},
		ContentChanges: []protocol.TextDocumentContentChangeEvent{
			{Value: protocol.TextDocumentContentChangeWholeDocument{Text: content}},
		},
	})
}

// save sends textDocument/didSave, a SPEC_FULL.md supplemented feature.
func (p *Project) save(ctx context.Context, path string, content *string) error {
	uri := "file://" + path
	if !p.docs.isOpen(uri) {
		return fmt.Errorf("lspbroker: didSave before didOpen: %s", path)
	}
	return p.server.notify(ctx, "textDocument/didSave", protocol.DidSaveTextDocumentParams{
		TextDocument: textDocumentIdentifier(uri),
		Text:         content,
	})
}

// close implements didClose: remove entry then send didClose.
func (p *Project) close(ctx context.Context, path string) error {
	uri := "file://" + path
	if !p.docs.close(uri) {
		return nil
	}
	return p.server.notify(ctx, "textDocument/didClose", protocol.DidCloseTextDocumentParams{
		TextDocument: textDocumentIdentifier(uri),
	})
}

// stop shuts down the language server and the workspace watcher.
func (p *Project) stop(ctx context.Context) {
	close(p.done)
	if p.watcher != nil {
		p.watcher.Close()
	}
	p.server.stop(ctx)
}
