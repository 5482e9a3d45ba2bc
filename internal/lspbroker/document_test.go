package lspbroker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocumentTableOpenInsertsAtVersionOne(t *testing.T) {
	dt := newDocumentTable()

	isNew, version := dt.open("file:///a.go")
	assert.True(t, isNew)
	assert.Equal(t, int32(1), version)
	assert.True(t, dt.isOpen("file:///a.go"))
}

func TestDocumentTableOpenTwiceIsNoop(t *testing.T) {
	dt := newDocumentTable()
	dt.open("file:///a.go")

	isNew, version := dt.open("file:///a.go")
	assert.False(t, isNew)
	assert.Equal(t, int32(1), version)
}

func TestDocumentTableChangeIncrementsVersion(t *testing.T) {
	dt := newDocumentTable()
	dt.open("file:///a.go")

	needsOpen, version := dt.change("file:///a.go")
	assert.False(t, needsOpen)
	assert.Equal(t, int32(2), version)

	needsOpen, version = dt.change("file:///a.go")
	assert.False(t, needsOpen)
	assert.Equal(t, int32(3), version)
}

func TestDocumentTableChangeBeforeOpenRequestsUpgrade(t *testing.T) {
	dt := newDocumentTable()

	needsOpen, version := dt.change("file:///never-opened.go")
	assert.True(t, needsOpen)
	assert.Equal(t, int32(0), version)
	assert.False(t, dt.isOpen("file:///never-opened.go"))
}

func TestDocumentTableClose(t *testing.T) {
	dt := newDocumentTable()
	dt.open("file:///a.go")

	assert.True(t, dt.close("file:///a.go"))
	assert.False(t, dt.isOpen("file:///a.go"))
}

func TestDocumentTableCloseUnknownReturnsFalse(t *testing.T) {
	dt := newDocumentTable()
	assert.False(t, dt.close("file:///never-opened.go"))
}
