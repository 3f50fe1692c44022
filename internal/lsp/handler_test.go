package lsp_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	errs "ionbuild/internal/errors"
	"ionbuild/internal/lsp"
)

// recorder captures the diagnostics the handler publishes.
type recorder struct {
	published []*protocol.PublishDiagnosticsParams
}

func (r *recorder) context() *glsp.Context {
	return &glsp.Context{
		Notify: func(method string, params any) {
			if method == protocol.ServerTextDocumentPublishDiagnostics {
				r.published = append(r.published, params.(*protocol.PublishDiagnosticsParams))
			}
		},
	}
}

func (r *recorder) last(t *testing.T) *protocol.PublishDiagnosticsParams {
	t.Helper()
	require.NotEmpty(t, r.published)
	return r.published[len(r.published)-1]
}

func open(t *testing.T, h *lsp.IonHandler, ctx *glsp.Context, uri, text string) {
	t.Helper()
	err := h.TextDocumentDidOpen(ctx, &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: uri, LanguageID: "ionasm", Version: 1, Text: text},
	})
	require.NoError(t, err)
}

func TestTextDocumentSemanticTokensFull(t *testing.T) {
	handler := lsp.NewIonHandler()

	absPath, err := filepath.Abs(filepath.Join("../../examples", "sum.ionasm"))
	require.NoError(t, err, "Failed to get absolute path")

	uri := "file://" + filepath.ToSlash(absPath)

	var rec recorder
	params := &protocol.SemanticTokensParams{
		TextDocument: protocol.TextDocumentIdentifier{
			URI: uri,
		},
	}

	tokens, err := handler.TextDocumentSemanticTokensFull(rec.context(), params)
	require.NoError(t, err, "TextDocumentSemanticTokensFull returned error")
	require.NotNil(t, tokens, "Returned tokens should not be nil")
	require.NotEmpty(t, tokens.Data, "Returned token data should not be empty")

	decoded, err := decodeSemanticTokens(tokens.Data)
	require.NoError(t, err, "Failed to decode semantic tokens")
	require.Greater(t, len(decoded), 21)

	assertToken(t, &decoded[0], 2, 1, 9, "macro", nil)
	assertToken(t, &decoded[1], 2, 11, 3, "function", []string{"declaration"})
	assertToken(t, &decoded[2], 3, 1, 5, "macro", nil)
	assertToken(t, &decoded[3], 3, 7, 1, "number", nil)
	assertToken(t, &decoded[4], 4, 1, 7, "macro", nil)
	assertToken(t, &decoded[5], 4, 9, 1, "number", nil)
	assertToken(t, &decoded[6], 6, 9, 4, "keyword", nil)
	assertToken(t, &decoded[7], 7, 9, 8, "keyword", nil)
	assertToken(t, &decoded[8], 7, 18, 1, "number", nil)
	assertToken(t, &decoded[9], 8, 9, 3, "keyword", nil)
	assertToken(t, &decoded[13], 11, 9, 3, "keyword", nil)
	assertToken(t, &decoded[14], 11, 13, 4, "modifier", nil)
	assertToken(t, &decoded[15], 11, 18, 4, "function", nil)
	assertToken(t, &decoded[16], 11, 24, 6, "function", nil)
	assertToken(t, &decoded[17], 11, 32, 4, "function", nil)
	assertToken(t, &decoded[18], 12, 9, 4, "keyword", nil)
	assertToken(t, &decoded[19], 12, 14, 4, "function", nil)
	assertToken(t, &decoded[20], 13, 1, 3, "function", []string{"declaration"})
	assertToken(t, &decoded[21], 13, 9, 5, "keyword", nil)

	// loading from disk publishes the (empty) diagnostics too
	assert.Empty(t, rec.last(t).Diagnostics)
}

func TestDiagnosticsForAssemblyErrors(t *testing.T) {
	handler := lsp.NewIonHandler()
	var rec recorder
	ctx := rec.context()

	open(t, handler, ctx, "file:///tmp/bad.ionasm", ".function f\n        getarg 0\n        frobnicate\n        goto nowhere\n")

	published := rec.last(t)
	assert.Equal(t, "file:///tmp/bad.ionasm", published.URI)
	require.Len(t, published.Diagnostics, 2)

	unknown := published.Diagnostics[0]
	assert.Equal(t, uint32(2), unknown.Range.Start.Line)
	assert.Equal(t, uint32(8), unknown.Range.Start.Character)
	assert.Equal(t, uint32(18), unknown.Range.End.Character)
	assert.Equal(t, errs.ErrorUnknownMnemonic, unknown.Code.Value)
	assert.Equal(t, protocol.DiagnosticSeverityError, *unknown.Severity)
	assert.Equal(t, "ionasm", *unknown.Source)

	label := published.Diagnostics[1]
	assert.Equal(t, uint32(3), label.Range.Start.Line)
	assert.Equal(t, errs.ErrorUnknownLabel, label.Code.Value)
}

func TestDiagnosticsForSyntaxError(t *testing.T) {
	handler := lsp.NewIonHandler()
	var rec recorder

	open(t, handler, rec.context(), "file:///tmp/syntax.ionasm", "stop\ngetarg 0 0\n")

	published := rec.last(t)
	require.Len(t, published.Diagnostics, 1)
	d := published.Diagnostics[0]
	assert.Equal(t, uint32(1), d.Range.Start.Line)
	assert.Equal(t, uint32(9), d.Range.Start.Character)
	assert.Equal(t, errs.ErrorSyntax, d.Code.Value)
}

func TestDiagnosticsForBuildErrors(t *testing.T) {
	handler := lsp.NewIonHandler()
	var rec recorder

	open(t, handler, rec.context(), "file:///tmp/greet.ionasm", ".script greet\n\n        name \"print\"\n        stop\n")

	published := rec.last(t)
	require.Len(t, published.Diagnostics, 1)
	d := published.Diagnostics[0]
	assert.Equal(t, uint32(2), d.Range.Start.Line)
	assert.Equal(t, uint32(8), d.Range.Start.Character)
	assert.Equal(t, uint32(8+len(`name "print"`)), d.Range.End.Character)
	assert.Equal(t, errs.ErrorUnsupportedOpcode, d.Code.Value)
	assert.Equal(t, protocol.DiagnosticSeverityWarning, *d.Severity)
	assert.Equal(t, "ionbuild", *d.Source)
	assert.Contains(t, d.Message, "interpreter")
}

func TestDidChangeClearsDiagnostics(t *testing.T) {
	handler := lsp.NewIonHandler()
	var rec recorder
	ctx := rec.context()
	uri := "file:///tmp/edit.ionasm"

	open(t, handler, ctx, uri, "bogus\n")
	require.Len(t, rec.last(t).Diagnostics, 1)

	err := handler.TextDocumentDidChange(ctx, &protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: uri},
			Version:                2,
		},
		ContentChanges: []any{protocol.TextDocumentContentChangeEventWhole{Text: "        stop\n"}},
	})
	require.NoError(t, err)
	assert.Empty(t, rec.last(t).Diagnostics)
	assert.Len(t, rec.published, 2)

	require.NoError(t, handler.TextDocumentDidClose(ctx, &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
	}))
}

func TestCompletion(t *testing.T) {
	handler := lsp.NewIonHandler()

	result, err := handler.TextDocumentCompletion(&glsp.Context{}, &protocol.CompletionParams{})
	require.NoError(t, err)
	list, ok := result.(*protocol.CompletionList)
	require.True(t, ok)

	labels := map[string]bool{}
	for _, item := range list.Items {
		labels[item.Label] = true
	}
	assert.True(t, labels["getarg"])
	assert.True(t, labels["ifne"])
	assert.True(t, labels["@while"])
	assert.True(t, labels["@break2label"])
	assert.True(t, labels[".function"])
	assert.False(t, labels["@null"])
}

type DecodedToken struct {
	Index     int
	Line      uint32
	Char      uint32
	Length    uint32
	Type      string
	Modifiers []string
}

func decodeSemanticTokens(raw []uint32) ([]DecodedToken, error) {
	if len(raw)%5 != 0 {
		return nil, fmt.Errorf("raw token data length %d is not a multiple of 5", len(raw))
	}

	var (
		decoded []DecodedToken
		line    uint32
		char    uint32
	)

	for i := 0; i < len(raw); i += 5 {
		deltaLine := raw[i]
		deltaStart := raw[i+1]
		length := raw[i+2]
		tokenTypeIdx := raw[i+3]
		tokenModMask := raw[i+4]

		if deltaLine == 0 {
			char += deltaStart
		} else {
			line += deltaLine
			char = deltaStart
		}

		var modifiers []string
		for j, name := range lsp.SemanticTokenModifiers {
			if tokenModMask&(1<<j) != 0 {
				modifiers = append(modifiers, name)
			}
		}

		decoded = append(decoded, DecodedToken{
			Index:     i / 5,
			Line:      line + 1, // LSP uses 0-based indexing
			Char:      char + 1, // LSP uses 0-based indexing
			Length:    length,
			Type:      lsp.SemanticTokenTypes[tokenTypeIdx],
			Modifiers: modifiers,
		})
	}

	return decoded, nil
}

func assertToken(t *testing.T, token *DecodedToken, expectedLine, expectedChar, expectedLength uint32, expectedType string, expectedModifiers []string) {
	require.Equal(t, expectedLine, token.Line, "line mismatch (expected line %d)", expectedLine)
	require.Equal(t, expectedChar, token.Char, "char mismatch (expected char %d)", expectedChar)
	require.Equal(t, expectedLength, token.Length, "length mismatch")
	require.Equal(t, expectedType, token.Type, "type mismatch")
	require.ElementsMatch(t, expectedModifiers, token.Modifiers, "modifiers mismatch")
}
