// Package lspbroker embeds a Language Server Protocol client: it spawns one
// language-server child process per project root, keeps its documents and
// capabilities in sync, and exposes a small set of capability-gated feature
// calls (definition, hover, completion, references, code actions) to the
// rest of the module.
package lspbroker

import (
	"context"
	"fmt"
	"sync"
)

// ServerConfig names the command used to start a language server for a
// root, matching the command/args shape every pack LSP bridge configures
// its servers with.
type ServerConfig struct {
	Command string
	Args    []string
}

// Broker owns every running Project, keyed by its root path. A Project is
// created on first Start for a root and removed on Stop, per spec.md.
type Broker struct {
	mu       sync.Mutex
	projects map[string]*Project
}

// NewBroker returns an empty Broker.
func NewBroker() *Broker {
	return &Broker{projects: make(map[string]*Project)}
}

// Start returns the Project already running for root, or spawns cfg as a
// new one. sink receives publishDiagnostics notifications for the new
// server for as long as it runs; callers that don't care about diagnostics
// may pass a nil sink.
func (b *Broker) Start(ctx context.Context, root string, cfg ServerConfig, sink NotificationSink) (*Project, error) {
	b.mu.Lock()
	if p, ok := b.projects[root]; ok {
		b.mu.Unlock()
		return p, nil
	}
	b.mu.Unlock()

	p, err := startProject(ctx, root, cfg.Command, cfg.Args, sink)
	if err != nil {
		return nil, fmt.Errorf("lspbroker: start project at %s: %w", root, err)
	}

	b.mu.Lock()
	if existing, ok := b.projects[root]; ok {
		b.mu.Unlock()
		p.stop(ctx)
		return existing, nil
	}
	b.projects[root] = p
	b.mu.Unlock()

	return p, nil
}

// Project returns the running Project for root, if any.
func (b *Broker) Project(root string) (*Project, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.projects[root]
	return p, ok
}

// ProjectFor resolves the owning Project for an arbitrary file path by
// walking its ancestor directories for a project root marker, then looks
// that root up among running projects.
func (b *Broker) ProjectFor(path string) (*Project, bool) {
	root := findProjectRoot(path)
	return b.Project(root)
}

// Stop shuts down and forgets the project rooted at root. A no-op if no
// project is running there.
func (b *Broker) Stop(ctx context.Context, root string) {
	b.mu.Lock()
	p, ok := b.projects[root]
	if ok {
		delete(b.projects, root)
	}
	b.mu.Unlock()

	if ok {
		p.stop(ctx)
	}
}

// StopAll shuts down every running project, for use on daemon shutdown.
func (b *Broker) StopAll(ctx context.Context) {
	b.mu.Lock()
	projects := b.projects
	b.projects = make(map[string]*Project)
	b.mu.Unlock()

	for _, p := range projects {
		p.stop(ctx)
	}
}

// Roots returns the root paths of every running project.
func (b *Broker) Roots() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	roots := make([]string, 0, len(b.projects))
	for root := range b.projects {
		roots = append(roots, root)
	}
	return roots
}
