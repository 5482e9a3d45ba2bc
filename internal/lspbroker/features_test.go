package lspbroker

import (
	"testing"

	"github.com/myleshyson/lsprotocol-go/protocol"
	"github.com/stretchr/testify/assert"
)

func TestCapabilityErrorMessage(t *testing.T) {
	err := &capabilityError{feature: "hover"}
	assert.Equal(t, "lspbroker: server does not support hover", err.Error())
}

func TestNormalizeHoverContentsString(t *testing.T) {
	assert.Equal(t, "plain text", normalizeHoverContents("plain text"))
}

func TestNormalizeHoverContentsMarkupContent(t *testing.T) {
	got := normalizeHoverContents(protocol.MarkupContent{Kind: protocol.MarkupKindMarkdown, Value: "**bold**"})
	assert.Equal(t, "**bold**", got)
}

func TestNormalizeHoverContentsMarkedStringWithLanguage(t *testing.T) {
	got := normalizeHoverContents(protocol.MarkedString{Language: "go", Value: "func main() {}"})
	assert.Equal(t, "func main() {}", got)
}

func TestNormalizeHoverContentsMarkedStringLanguageOnly(t *testing.T) {
	got := normalizeHoverContents(protocol.MarkedString{Language: "go"})
	assert.Equal(t, "go", got)
}

func TestNormalizeHoverContentsMarkedStringSlice(t *testing.T) {
	got := normalizeHoverContents([]protocol.MarkedString{
		{Value: "first"},
		{Value: "second"},
	})
	assert.Equal(t, "first\n\nsecond", got)
}
