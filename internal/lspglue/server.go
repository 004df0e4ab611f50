// Package lspglue is the single seam between the LSP wire protocol and the
// rune-based internals of every other package: it decodes JSON-RPC
// requests/notifications, converts UTF-16 wire positions to the rune
// positions internal/mirror and internal/orchestrator expect, and encodes
// their results back into LSP response shapes.
package lspglue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"sync"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"

	"github.com/standardbeagle/lspaid/internal/config"
	"github.com/standardbeagle/lspaid/internal/crawl"
	lspaierrors "github.com/standardbeagle/lspaid/internal/errors"
	"github.com/standardbeagle/lspaid/internal/logging"
	"github.com/standardbeagle/lspaid/internal/mirror"
	"github.com/standardbeagle/lspaid/internal/orchestrator"
)

// Custom, non-standard methods this server accepts.
// methodDidRenameFiles has no protocol.Method constant in go.lsp.dev/protocol
// (a newer workspace notification), so it's matched by literal string like
// the other two.
const (
	methodGeneration       = "textDocument/generation"
	methodGenerationStream = "textDocument/generationStream"
	methodDidRenameFiles   = "workspace/didRenameFiles"
)

// GenerationParams is the params shape for the custom textDocument/generation
// request.
type GenerationParams struct {
	protocol.TextDocumentPositionParams
	Model       string                     `json:"model"`
	Parameters  map[string]interface{}     `json:"parameters,omitempty"`
	PostProcess *config.PostProcessConfig  `json:"postProcess,omitempty"`
}

// GenerationResult is the result shape for textDocument/generation.
type GenerationResult struct {
	GeneratedText string `json:"generatedText"`
}

// Server bridges the LSP transport to the Mirror and Orchestrator. The
// Orchestrator itself cannot be built until `initialize` delivers
// initializationOptions (configuration is never a file on disk, only this
// one wire message), so Server builds it lazily inside handleInitialize
// rather than receiving it from the caller.
type Server struct {
	mirror *mirror.Mirror

	orchMu  sync.Mutex
	orch    *orchestrator.Orchestrator
	crawler *crawl.Crawler

	conn    jsonrpc2.Conn
	client  protocol.Client
	cancel  context.CancelFunc
	initErr error
	runCtx  context.Context
}

// NewServer builds a Server around an already-constructed, empty Mirror.
func NewServer(m *mirror.Mirror) *Server {
	return &Server{mirror: m}
}

// getOrch returns the Orchestrator built during initialize, or nil if the
// client sent a request/notification before (or instead of) initializing.
func (s *Server) getOrch() *orchestrator.Orchestrator {
	s.orchMu.Lock()
	defer s.orchMu.Unlock()
	return s.orch
}

// stdrwc adapts stdin/stdout to an io.ReadWriteCloser for jsonrpc2's stream,
// the same adapter shape used by every stdio-based LSP server in the
// ecosystem: stdout is reserved entirely for the JSON-RPC wire, so
// internal/logging never writes there.
type stdrwc struct{}

func (stdrwc) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdrwc) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdrwc) Close() error {
	if err := os.Stdin.Close(); err != nil {
		return err
	}
	return os.Stdout.Close()
}

// Run starts the JSON-RPC stdio transport, blocking until ctx is canceled or
// the transport disconnects. The Orchestrator starts once `initialize`
// arrives. Returns a non-zero-exit-worthy error if initialize ever failed to
// build a valid configuration.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.runCtx = ctx

	stream := jsonrpc2.NewStream(stdrwc{})
	conn := jsonrpc2.NewConn(stream)
	s.conn = conn

	zapLogger, err := zap.NewProduction()
	if err != nil {
		zapLogger = zap.NewNop()
	}
	s.client = protocol.ClientDispatcher(conn, zapLogger)

	conn.Go(ctx, s.handler())

	<-ctx.Done()
	closeErr := conn.Close()
	if s.initErr != nil {
		return s.initErr
	}
	return closeErr
}

func (s *Server) handler() jsonrpc2.Handler {
	return func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
		switch req.Method() {
		case protocol.MethodInitialize:
			return s.handleInitialize(ctx, reply, req)
		case protocol.MethodInitialized:
			return reply(ctx, nil, nil)
		case protocol.MethodShutdown:
			return reply(ctx, nil, nil)
		case protocol.MethodExit:
			return s.handleExit(ctx, reply, req)
		case protocol.MethodTextDocumentDidOpen:
			return s.handleDidOpen(ctx, reply, req)
		case protocol.MethodTextDocumentDidChange:
			return s.handleDidChange(ctx, reply, req)
		case methodDidRenameFiles:
			return s.handleDidRenameFiles(ctx, reply, req)
		case protocol.MethodTextDocumentCompletion:
			return s.handleCompletion(ctx, reply, req)
		case methodGeneration:
			return s.handleGeneration(ctx, reply, req)
		case methodGenerationStream:
			return reply(ctx, nil, &jsonrpc2.Error{Code: jsonrpc2.MethodNotFound, Message: "textDocument/generationStream is accepted but not implemented"})
		default:
			return reply(ctx, nil, jsonrpc2.ErrMethodNotFound)
		}
	}
}

func (s *Server) handleInitialize(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.InitializeParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return reply(ctx, nil, &jsonrpc2.Error{Code: jsonrpc2.InvalidParams, Message: err.Error()})
	}

	rootURI := string(params.RootURI)
	if rootURI == "" && len(params.WorkspaceFolders) > 0 {
		rootURI = params.WorkspaceFolders[0].URI
	}

	cfg, err := config.Parse(params.InitializationOptions)
	if err != nil {
		s.initErr = err
		msg := reply(ctx, nil, &jsonrpc2.Error{Code: jsonrpc2.InvalidParams, Message: err.Error()})
		if s.cancel != nil {
			s.cancel()
		}
		return msg
	}

	orch, err := orchestrator.New(s.mirror, cfg)
	if err != nil {
		s.initErr = err
		msg := reply(ctx, nil, &jsonrpc2.Error{Code: jsonrpc2.InternalError, Message: err.Error()})
		if s.cancel != nil {
			s.cancel()
		}
		return msg
	}

	s.orchMu.Lock()
	s.orch = orch
	s.orchMu.Unlock()
	go orch.Run(s.runCtx)

	if fs := cfg.Memory.FileStore; fs != nil && fs.Crawl != nil {
		crawler := crawl.New(rootURI, *fs.Crawl, s.mirror)
		s.crawler = crawler
		s.mirror.SetCrawlTrigger(crawler.Trigger)
		go crawler.Bootstrap()
	}

	result := protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: protocol.TextDocumentSyncKindIncremental,
			CompletionProvider: &protocol.CompletionOptions{
				ResolveProvider: false,
			},
		},
		ServerInfo: &protocol.ServerInfo{
			Name: "lspaid",
		},
	}
	return reply(ctx, result, nil)
}

func (s *Server) handleExit(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	err := reply(ctx, nil, nil)
	if s.cancel != nil {
		s.cancel()
	}
	return err
}

func (s *Server) handleDidOpen(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidOpenTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		logging.Default().Warn("didOpen: bad params", "error", err)
		return nil
	}
	orch := s.getOrch()
	if orch == nil {
		logging.Default().Warn("didOpen before initialize", "uri", params.TextDocument.URI)
		return nil
	}
	orch.NotifyDidOpen(string(params.TextDocument.URI), params.TextDocument.Text)
	return nil
}

func (s *Server) handleDidChange(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidChangeTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		logging.Default().Warn("didChange: bad params", "error", err)
		return nil
	}

	uri := string(params.TextDocument.URI)
	doc, ok := s.mirror.Document(uri)
	if !ok {
		logging.Default().Warn("didChange: unknown document", "uri", uri)
		return nil
	}

	changes := make([]mirror.Change, 0, len(params.ContentChanges))
	for _, c := range params.ContentChanges {
		if c.Range == nil {
			changes = append(changes, mirror.Change{Range: nil, Text: c.Text})
			continue
		}
		startLine, err := doc.Rope.LineText(int(c.Range.Start.Line))
		if err != nil {
			startLine = ""
		}
		endLine, err := doc.Rope.LineText(int(c.Range.End.Line))
		if err != nil {
			endLine = startLine
		}
		r := mirror.Range{
			Start: mirror.Position{Line: int(c.Range.Start.Line), Character: utf16ToRune(startLine, int(c.Range.Start.Character))},
			End:   mirror.Position{Line: int(c.Range.End.Line), Character: utf16ToRune(endLine, int(c.Range.End.Character))},
		}
		changes = append(changes, mirror.Change{Range: &r, Text: c.Text})
	}

	orch := s.getOrch()
	if orch == nil {
		logging.Default().Warn("didChange before initialize", "uri", uri)
		return nil
	}
	orch.NotifyDidChange(uri, changes)
	return nil
}

func (s *Server) handleDidRenameFiles(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.RenameFilesParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		logging.Default().Warn("didRenameFiles: bad params", "error", err)
		return nil
	}
	orch := s.getOrch()
	if orch == nil {
		return nil
	}
	pairs := make([][2]string, 0, len(params.Files))
	for _, f := range params.Files {
		pairs = append(pairs, [2]string{f.OldURI, f.NewURI})
	}
	orch.NotifyDidRename(pairs)

	// The client's diagnostic cache is still keyed by the old URI; an empty
	// publish under that URI clears it so stale entries don't linger under a
	// path the server no longer has a Document for.
	for _, f := range params.Files {
		s.clearDiagnostics(f.OldURI)
	}
	return nil
}

// clearDiagnostics publishes an empty diagnostics list for uri. Used after a
// rename to drop whatever the client is still showing against the old path.
func (s *Server) clearDiagnostics(uri string) {
	if s.client == nil {
		return
	}
	ctx := s.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	params := &protocol.PublishDiagnosticsParams{
		URI:         protocol.DocumentURI(uri),
		Diagnostics: []protocol.Diagnostic{},
	}
	if err := s.client.PublishDiagnostics(ctx, params); err != nil {
		logging.Default().Warn("publish diagnostics failed", "uri", uri, "error", err)
	}
}

// toRunePosition converts an LSP wire position (UTF-16 columns) into the
// rune-based mirror.Position every internal component uses.
func toRunePosition(m *mirror.Mirror, uri string, pos protocol.Position) mirror.Position {
	line := ""
	if doc, ok := m.Document(uri); ok {
		if l, err := doc.Rope.LineText(int(pos.Line)); err == nil {
			line = l
		}
	}
	return mirror.Position{Line: int(pos.Line), Character: utf16ToRune(line, int(pos.Character))}
}

func (s *Server) handleCompletion(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.CompletionParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return reply(ctx, nil, &jsonrpc2.Error{Code: jsonrpc2.InvalidParams, Message: err.Error()})
	}

	orch := s.getOrch()
	if orch == nil {
		return reply(ctx, nil, &jsonrpc2.Error{Code: jsonrpc2.InternalError, Message: "server not yet initialized"})
	}

	uri := string(params.TextDocument.URI)
	pos := toRunePosition(s.mirror, uri, params.Position)

	item, err := orch.RequestCompletion(ctx, uri, pos)
	if err != nil {
		return reply(ctx, nil, lspError(err))
	}

	list := protocol.CompletionList{
		IsIncomplete: false,
		Items: []protocol.CompletionItem{
			{
				Label:      item.Label,
				Kind:       protocol.CompletionItemKindText,
				FilterText: item.FilterText,
				InsertText: item.InsertText,
				TextEdit: &protocol.TextEdit{
					Range:   protocol.Range{Start: params.Position, End: params.Position},
					NewText: item.InsertText,
				},
			},
		},
	}
	return reply(ctx, list, nil)
}

func (s *Server) handleGeneration(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params GenerationParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return reply(ctx, nil, &jsonrpc2.Error{Code: jsonrpc2.InvalidParams, Message: err.Error()})
	}

	orch := s.getOrch()
	if orch == nil {
		return reply(ctx, nil, &jsonrpc2.Error{Code: jsonrpc2.InternalError, Message: "server not yet initialized"})
	}

	uri := string(params.TextDocument.URI)
	pos := toRunePosition(s.mirror, uri, params.Position)

	text, err := orch.RequestGeneration(ctx, uri, params.Model, pos, params.Parameters, params.PostProcess)
	if err != nil {
		return reply(ctx, nil, lspError(err))
	}
	return reply(ctx, GenerationResult{GeneratedText: text}, nil)
}

// lspError builds a JSON-RPC error from an internal error, with the code
// chosen by lspaierrors.LSPCode. A ProviderError's message is the
// provider's own error body; any other error uses its Error() text.
func lspError(err error) *jsonrpc2.Error {
	msg := err.Error()
	var pe *lspaierrors.ProviderError
	if errors.As(err, &pe) {
		msg = pe.Body
	}
	return &jsonrpc2.Error{
		Code:    jsonrpc2.Code(lspaierrors.LSPCode(err)),
		Message: msg,
	}
}

var _ io.ReadWriteCloser = stdrwc{}
