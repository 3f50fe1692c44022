package lsp

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"ionbuild/grammar"
	"ionbuild/internal/asm"
	"ionbuild/internal/builder"
	"ionbuild/internal/bytecode"
)

var log = commonlog.GetLogger("ionbuild.lsp")

// Define the set of supported semantic token types (as required by the LSP spec)
var SemanticTokenTypes = []string{
	"namespace",
	"type",
	"typeParameter",
	"function",
	"variable",
	"parameter",
	"property",
	"keyword",
	"number",
	"operator",
	"modifier",
	"macro",
	"string",
}

// Define the set of supported semantic token modifiers (for extra tagging like declaration, readonly, etc.)
var SemanticTokenModifiers = []string{
	"declaration",
	"definition",
	"readonly",
	"static",
	"deprecated",
	"abstract",
}

// document is the last analysis of one open file. program is nil when the
// file does not parse, script when it does not assemble.
type document struct {
	content string
	program *grammar.Program
	script  *bytecode.Script
	lines   *asm.LineTable
}

// IonHandler implements the LSP server handlers for bytecode assembly
type IonHandler struct {
	mu     sync.RWMutex
	docs   map[string]*document
	oracle builder.TypeOracle
}

// NewIonHandler creates and returns a new IonHandler instance
func NewIonHandler() *IonHandler {
	return &IonHandler{
		docs: make(map[string]*document),
	}
}

// Initialize responds to the LSP client's initialize request and advertises the server's capabilities
func (h *IonHandler) Initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Info("initialize")

	return &protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: &protocol.TextDocumentSyncOptions{
				OpenClose: ptrBool(true), // notify on open/close events
				Change:    ptrSyncKind(protocol.TextDocumentSyncKindFull),
			},
			CompletionProvider: &protocol.CompletionOptions{
				ResolveProvider: ptrBool(false),
			},
			SemanticTokensProvider: &protocol.SemanticTokensOptions{
				Legend: protocol.SemanticTokensLegend{
					TokenTypes:     SemanticTokenTypes,
					TokenModifiers: SemanticTokenModifiers,
				},
				Full: ptrBool(true), // support full-document semantic token requests
			},
		},
	}, nil
}

// Initialized is called after the client receives the server's capabilities and completes initialization
func (h *IonHandler) Initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	log.Info("initialized")
	return nil
}

// Shutdown handles the LSP shutdown request
func (h *IonHandler) Shutdown(ctx *glsp.Context) error {
	log.Info("shutdown")
	protocol.SetTraceValue(protocol.TraceValueOff)
	return nil
}

// SetTrace records the trace level requested by the client
func (h *IonHandler) SetTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	protocol.SetTraceValue(params.Value)
	return nil
}

// TextDocumentDidOpen analyzes the opened document and publishes its diagnostics
func (h *IonHandler) TextDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	log.Debugf("opened %s", params.TextDocument.URI)
	return h.update(ctx, params.TextDocument.URI, params.TextDocument.Text)
}

// TextDocumentDidClose forgets the closed document
func (h *IonHandler) TextDocumentDidClose(context *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	log.Debugf("closed %s", params.TextDocument.URI)

	path, err := uriToPath(params.TextDocument.URI)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.docs, path)

	return nil
}

// TextDocumentDidChange reanalyzes the document. Only full-text sync is
// advertised, so the last whole-document change wins.
func (h *IonHandler) TextDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	log.Debugf("changed %s", params.TextDocument.URI)

	for i := len(params.ContentChanges) - 1; i >= 0; i-- {
		if whole, ok := params.ContentChanges[i].(protocol.TextDocumentContentChangeEventWhole); ok {
			return h.update(ctx, params.TextDocument.URI, whole.Text)
		}
	}
	log.Warningf("ignoring incremental change to %s", params.TextDocument.URI)
	return nil
}

// TextDocumentCompletion offers opcode mnemonics, source notes and directives
func (h *IonHandler) TextDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	var items []protocol.CompletionItem

	for _, name := range bytecode.Mnemonics() {
		op, _ := bytecode.Lookup(name)
		spec := op.Spec()
		items = append(items, protocol.CompletionItem{
			Label:  name,
			Kind:   ptrCompletionKind(protocol.CompletionItemKindKeyword),
			Detail: ptrString(fmt.Sprintf("pops %d, pushes %d, %d bytes", spec.Uses, spec.Defs, spec.Length)),
		})
	}
	for _, name := range bytecode.NoteNames() {
		items = append(items, protocol.CompletionItem{
			Label:  "@" + name,
			Kind:   ptrCompletionKind(protocol.CompletionItemKindEnumMember),
			Detail: ptrString("source note"),
		})
	}
	for _, name := range []string{".function", ".script", ".args", ".locals"} {
		items = append(items, protocol.CompletionItem{
			Label: name,
			Kind:  ptrCompletionKind(protocol.CompletionItemKindProperty),
		})
	}

	return &protocol.CompletionList{
		IsIncomplete: false,
		Items:        items,
	}, nil
}

// TextDocumentSemanticTokensFull handles semantic token requests for the entire document
func (h *IonHandler) TextDocumentSemanticTokensFull(ctx *glsp.Context, params *protocol.SemanticTokensParams) (*protocol.SemanticTokens, error) {
	doc, err := h.getOrLoad(ctx, params.TextDocument.URI)
	if err != nil {
		return nil, err
	}

	tokens := collectSemanticTokens(doc.program)

	var data []uint32
	var prevLine, prevStart uint32

	// Encode tokens into LSP wire format (using delta-line, delta-start compression)
	for _, token := range tokens {
		deltaLine := token.Line - prevLine
		var deltaStart uint32
		if deltaLine == 0 {
			deltaStart = token.StartChar - prevStart
		} else {
			deltaStart = token.StartChar
		}

		data = append(data, deltaLine, deltaStart, token.Length, uint32(token.TokenType), uint32(token.TokenModifiers))

		prevLine = token.Line
		prevStart = token.StartChar
	}

	return &protocol.SemanticTokens{
		Data: data,
	}, nil
}

// getOrLoad returns the cached analysis, reading the file from disk when
// the client never opened it.
func (h *IonHandler) getOrLoad(ctx *glsp.Context, rawURI protocol.DocumentUri) (*document, error) {
	path, err := uriToPath(rawURI)
	if err != nil {
		return nil, err
	}

	h.mu.RLock()
	doc, ok := h.docs[path]
	h.mu.RUnlock()
	if ok {
		return doc, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	if err := h.update(ctx, rawURI, string(content)); err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.docs[path], nil
}

func (h *IonHandler) update(ctx *glsp.Context, rawURI protocol.DocumentUri, content string) error {
	path, err := uriToPath(rawURI)
	if err != nil {
		return err
	}

	doc, diagnostics := h.analyze(path, content)

	h.mu.Lock()
	h.docs[path] = doc
	h.mu.Unlock()

	sendDiagnosticNotification(ctx, rawURI, diagnostics)
	return nil
}

// analyze parses, assembles and builds content, stopping at the first
// stage that fails.
func (h *IonHandler) analyze(path, content string) (*document, []protocol.Diagnostic) {
	doc := &document{content: content}

	program, err := grammar.ParseString(path, content)
	if err != nil {
		return doc, ConvertSyntaxError(err)
	}
	doc.program = program

	script, lines, err := asm.Assemble(path, program)
	if err != nil {
		return doc, ConvertBuildError(err, nil)
	}
	doc.script, doc.lines = script, lines

	if _, err := builder.Build(script, h.oracle); err != nil {
		return doc, ConvertBuildError(err, lines)
	}
	return doc, []protocol.Diagnostic{}
}

// Convert URI to platform-local file path
func uriToPath(rawURI string) (string, error) {
	u, err := url.Parse(rawURI)
	if err != nil {
		return "", fmt.Errorf("invalid URI %s: %w", rawURI, err)
	}

	path := u.Path

	// On Windows, remove leading slash (e.g., /C:/...) → C:/...
	if runtime.GOOS == "windows" && strings.HasPrefix(path, "/") && len(path) > 3 && path[2] == ':' {
		path = path[1:]
	}

	// Normalize to platform-specific separators
	return filepath.FromSlash(path), nil
}

func sendDiagnosticNotification(ctx *glsp.Context, uri protocol.URI, diagnostics []protocol.Diagnostic) {
	log.Debugf("publishing %d diagnostics for %s", len(diagnostics), uri)

	if ctx == nil || ctx.Notify == nil {
		return
	}
	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

func ptrBool(b bool) *bool {
	return &b
}

func ptrString(s string) *string {
	return &s
}

func ptrSyncKind(k protocol.TextDocumentSyncKind) *protocol.TextDocumentSyncKind {
	return &k
}

func ptrCompletionKind(k protocol.CompletionItemKind) *protocol.CompletionItemKind {
	return &k
}
