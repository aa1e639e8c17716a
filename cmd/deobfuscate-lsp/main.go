package main

import (
	"log"
	"os"

	"github.com/tliron/commonlog"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"

	"github.com/deobfuscator/core/internal/config"
	"github.com/deobfuscator/core/internal/jsparser"
	"github.com/deobfuscator/core/internal/jsprinter"
	"github.com/deobfuscator/core/internal/lspintegration"
)

const lsName = "deobfuscate"

var (
	version = "0.1.0"
	handler protocol.Handler
)

func main() {
	commonlog.Configure(1, nil)

	configPath := os.Getenv("DEOBFUSCATE_CONFIG")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Println("deobfuscate-lsp: falling back to default configuration:", err)
		cfg = config.Default()
	}

	h := lspintegration.NewHandler(cfg, jsparser.New(), jsprinter.New())

	handler = protocol.Handler{
		Initialize:            h.Initialize,
		Initialized:           h.Initialized,
		Shutdown:              h.Shutdown,
		TextDocumentDidOpen:   h.TextDocumentDidOpen,
		TextDocumentDidChange: h.TextDocumentDidChange,
		TextDocumentDidClose:  h.TextDocumentDidClose,
	}

	s := server.NewServer(&handler, lsName, false)

	log.Println("Starting deobfuscate LSP server, version", version)

	if err := s.RunStdio(); err != nil {
		log.Println("Error starting deobfuscate LSP server:", err)
		os.Exit(1)
	}
}
