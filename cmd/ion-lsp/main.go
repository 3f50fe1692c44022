// SPDX-License-Identifier: Apache-2.0
package main

import (
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"

	"ionbuild/internal/lsp"
)

const lsName = "ionasm" // Name identifier for the language server

var (
	version = "0.1.0"        // Server version
	handler protocol.Handler // Protocol handler instance (wired up below)
)

func main() {
	// Configure debug logging (1 = debug level, nil = default logger)
	commonlog.Configure(1, nil)
	log := commonlog.GetLogger("ionbuild.lsp")

	ionHandler := lsp.NewIonHandler()

	// Wire up the handler with specific LSP method implementations
	handler = protocol.Handler{
		Initialize:                     ionHandler.Initialize,
		Initialized:                    ionHandler.Initialized,
		Shutdown:                       ionHandler.Shutdown,
		SetTrace:                       ionHandler.SetTrace,
		TextDocumentDidOpen:            ionHandler.TextDocumentDidOpen,
		TextDocumentDidClose:           ionHandler.TextDocumentDidClose,
		TextDocumentDidChange:          ionHandler.TextDocumentDidChange,
		TextDocumentCompletion:         ionHandler.TextDocumentCompletion,
		TextDocumentSemanticTokensFull: ionHandler.TextDocumentSemanticTokensFull,
	}

	// Parameters:
	// - handler: the protocol handler struct
	// - name: the language server name (shown to clients)
	// - debug: whether to enable internal GLSP debug logs
	s := server.NewServer(&handler, lsName, false)

	log.Infof("starting %s language server %s", lsName, version)

	// Start the server over standard input/output (used by most editors for LSP)
	if err := s.RunStdio(); err != nil {
		log.Errorf("language server stopped: %s", err)
		os.Exit(1)
	}
}
