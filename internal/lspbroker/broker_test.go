package lspbroker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBrokerProjectLookup(t *testing.T) {
	b := NewBroker()
	p := &Project{root: "/work/app", docs: newDocumentTable(), done: make(chan struct{})}
	b.projects[p.root] = p

	got, ok := b.Project("/work/app")
	assert.True(t, ok)
	assert.Same(t, p, got)

	_, ok = b.Project("/work/other")
	assert.False(t, ok)
}

func TestBrokerProjectForWithoutMarkerResolvesNothing(t *testing.T) {
	b := NewBroker()
	root := t.TempDir()
	p := &Project{root: root, docs: newDocumentTable(), done: make(chan struct{})}
	b.projects[root] = p

	_, ok := b.ProjectFor(root + "/nonexistent/marker-free/file.go")
	assert.False(t, ok, "no root marker present, so no project should resolve")
}

func TestBrokerRoots(t *testing.T) {
	b := NewBroker()
	b.projects["/a"] = &Project{root: "/a", docs: newDocumentTable(), done: make(chan struct{})}
	b.projects["/b"] = &Project{root: "/b", docs: newDocumentTable(), done: make(chan struct{})}

	roots := b.Roots()
	assert.ElementsMatch(t, []string{"/a", "/b"}, roots)
}

func TestBrokerForgetsRemovedProject(t *testing.T) {
	b := NewBroker()
	b.projects["/a"] = &Project{root: "/a", docs: newDocumentTable(), done: make(chan struct{}), watcher: nil}

	// Removing bookkeeping directly, mirroring what Stop does before it
	// reaches the goroutine/process teardown that needs a live server.
	b.mu.Lock()
	delete(b.projects, "/a")
	b.mu.Unlock()

	_, ok := b.Project("/a")
	assert.False(t, ok)
}
