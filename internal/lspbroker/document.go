package lspbroker

import "sync"

// openDocument tracks the version a project's language server believes a
// uri is at, per the LSP full-text sync contract.
type openDocument struct {
	uri     string
	version int32
}

// documentTable is the per-project uri -> openDocument map described in
// spec.md's LSP subsystem: version strictly increases across changes,
// didChange before didOpen is illegal and silently upgraded to didOpen.
type documentTable struct {
	mu   sync.Mutex
	docs map[string]*openDocument
}

func newDocumentTable() *documentTable {
	return &documentTable{docs: make(map[string]*openDocument)}
}

// open inserts the document if absent and reports whether it was new.
// A document already open is a no-op; project.go's didOpen wrapper only
// notifies the language server when isNew is true.
func (t *documentTable) open(uri string) (isNew bool, version int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if doc, ok := t.docs[uri]; ok {
		return false, doc.version
	}
	t.docs[uri] = &openDocument{uri: uri, version: 1}
	return true, 1
}

// change bumps the version for uri if open, or reports that the caller
// must upgrade to an open instead.
func (t *documentTable) change(uri string) (needsOpen bool, version int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	doc, ok := t.docs[uri]
	if !ok {
		return true, 0
	}
	doc.version++
	return false, doc.version
}

// close removes uri from the table. Returns false if it was not open.
func (t *documentTable) close(uri string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.docs[uri]; !ok {
		return false
	}
	delete(t.docs, uri)
	return true
}

func (t *documentTable) isOpen(uri string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.docs[uri]
	return ok
}
