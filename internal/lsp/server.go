// Package lsp serves a soarls.Workspace over JSON-RPC 2.0.
//
// One Server handles one client session. The workspace is created when the
// client sends initialize, rooted at the folder it names. Requests and
// notifications are handled in order on the read goroutine; diagnostics are
// pushed from the analysis worker as runs complete.
package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jward/soarls"
	"github.com/jward/soarls/internal/config"
	"github.com/jward/soarls/internal/document"
	"github.com/jward/soarls/internal/telemetry"
	"github.com/jward/soarls/internal/watch"
)

// ErrNoShutdown is returned by Run when the client sent exit without a
// preceding shutdown.
var ErrNoShutdown = errors.New("lsp: exit without shutdown")

// Commands accepted by workspace/executeCommand.
const (
	CommandSetEntryPoint = "set-entry-point"
	CommandLogSourceTree = "log-source-tree"
)

type handler func(ctx context.Context, params json.RawMessage) (any, error)

// Server is one client session.
type Server struct {
	conn    Conn
	logger  *slog.Logger
	root    string
	watch   bool
	version string
	wsOpts  []soarls.Option

	writeMu sync.Mutex
	diags   *publisher

	methods  map[string]handler
	ws       *soarls.Workspace
	shutdown bool
	group    *errgroup.Group
	ctx      context.Context
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithRoot is the workspace root used when initialize names none.
func WithRoot(dir string) Option {
	return func(s *Server) { s.root = dir }
}

// WithWatch refreshes closed documents from filesystem events.
func WithWatch(on bool) Option {
	return func(s *Server) { s.watch = on }
}

// WithVersion is reported in the initialize result.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithWorkspaceOptions are passed to soarls.New on initialize.
func WithWorkspaceOptions(opts ...soarls.Option) Option {
	return func(s *Server) { s.wsOpts = append(s.wsOpts, opts...) }
}

// New creates a session over conn.
func New(conn Conn, opts ...Option) *Server {
	s := &Server{
		conn:   conn,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(s)
	}
	s.diags = newPublisher(s.publishDiagnostics)
	s.methods = map[string]handler{
		"initialized": s.initialized,
		"shutdown":    s.onShutdown,

		"textDocument/didOpen":   s.didOpen,
		"textDocument/didChange": s.didChange,
		"textDocument/didSave":   s.didSave,
		"textDocument/didClose":  s.didClose,

		"workspace/didChangeConfiguration": s.didChangeConfiguration,
		"workspace/didChangeWatchedFiles":  s.didChangeWatchedFiles,
		"workspace/executeCommand":         s.executeCommand,
		"workspace/symbol":                 s.workspaceSymbol,

		"textDocument/definition":        s.definition,
		"textDocument/references":        s.references,
		"textDocument/hover":             s.hover,
		"textDocument/completion":        s.completion,
		"textDocument/signatureHelp":     s.signatureHelp,
		"textDocument/documentSymbol":    s.documentSymbol,
		"textDocument/foldingRange":      s.foldingRange,
		"textDocument/rename":            s.rename,
		"textDocument/documentHighlight": s.documentHighlight,
		"textDocument/codeLens":          s.codeLens,
	}
	return s
}

// Serve runs a default session over c. It matches ServeFunc.
func Serve(opts ...Option) ServeFunc {
	return func(ctx context.Context, c Conn) error {
		return New(c, opts...).Run(ctx)
	}
}

// Workspace returns the session's workspace, nil before initialize.
func (s *Server) Workspace() *soarls.Workspace { return s.ws }

// Run reads and handles messages until the client exits, the connection
// closes or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	s.group, s.ctx = g, gctx

	g.Go(func() error {
		<-gctx.Done()
		_ = s.conn.Close()
		return nil
	})
	g.Go(func() error {
		defer cancel()
		return s.readLoop(gctx)
	})
	err := g.Wait()
	if s.ws != nil {
		_ = s.ws.Close()
	}
	return err
}

func (s *Server) readLoop(ctx context.Context) error {
	for {
		data, err := s.conn.Read()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("malformed message", slog.String("error", err.Error()))
			s.reply(json.RawMessage("null"), nil, &Error{Code: CodeParseError, Message: err.Error()})
			continue
		}
		if msg.Method == "exit" {
			if s.shutdown {
				return nil
			}
			return ErrNoShutdown
		}
		s.handle(ctx, msg)
	}
}

func (s *Server) handle(ctx context.Context, msg message) {
	if msg.Method == "" {
		// A response; this server sends no requests.
		return
	}
	start := time.Now()
	ctx, span := telemetry.StartRequest(ctx, msg.Method)
	result, err := s.safeDispatch(ctx, msg)
	telemetry.EndRequest(ctx, span, msg.Method, time.Since(start), err)

	if msg.ID == nil {
		if err != nil {
			s.logger.Warn("notification failed", slog.String("method", msg.Method), slog.String("error", err.Error()))
		}
		return
	}
	s.logger.Debug("request", slog.String("method", msg.Method), slog.Duration("elapsed", time.Since(start)))
	s.reply(*msg.ID, result, err)
}

// safeDispatch turns a handler panic into an internal error reply so one
// bad request cannot end the session.
func (s *Server) safeDispatch(ctx context.Context, msg message) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panic",
				slog.String("method", msg.Method),
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())))
			result, err = nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("internal error in %s: %v", msg.Method, r)}
		}
	}()
	return s.dispatch(ctx, msg)
}

func (s *Server) dispatch(ctx context.Context, msg message) (any, error) {
	isRequest := msg.ID != nil
	switch {
	case s.shutdown:
		return nil, &Error{Code: CodeInvalidRequest, Message: "server is shutting down"}
	case msg.Method == "initialize":
		return s.initialize(ctx, msg.Params)
	case s.ws == nil:
		if !isRequest {
			return nil, nil
		}
		return nil, &Error{Code: CodeServerNotInitialized, Message: "server not initialized"}
	}
	h, ok := s.methods[msg.Method]
	if !ok {
		if !isRequest {
			return nil, nil
		}
		return nil, &Error{Code: CodeMethodNotFound, Message: "method not found: " + msg.Method}
	}
	return h(ctx, msg.Params)
}

func (s *Server) reply(id json.RawMessage, result any, err error) {
	resp := response{JSONRPC: Version, ID: id}
	if err != nil {
		var rpcErr *Error
		if !errors.As(err, &rpcErr) {
			rpcErr = &Error{Code: CodeInternalError, Message: err.Error()}
		}
		resp.Error = rpcErr
	} else {
		data, mErr := json.Marshal(result)
		if mErr != nil {
			resp.Error = &Error{Code: CodeInternalError, Message: mErr.Error()}
		} else {
			resp.Result = data
		}
	}
	s.write(resp)
}

func (s *Server) notify(method string, params any) {
	s.write(notification{JSONRPC: Version, Method: method, Params: params})
}

func (s *Server) write(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("marshal message", slog.String("error", err.Error()))
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.Write(data); err != nil {
		s.logger.Warn("write message", slog.String("error", err.Error()))
	}
}

// decode unmarshals params into v, reporting failures as invalid params.
func decode(params json.RawMessage, v any) error {
	if len(params) == 0 {
		return &Error{Code: CodeInvalidParams, Message: "missing params"}
	}
	if err := json.Unmarshal(params, v); err != nil {
		return &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	return nil
}

// --- Lifecycle ---

func (s *Server) initialize(_ context.Context, raw json.RawMessage) (any, error) {
	if s.ws != nil {
		return nil, &Error{Code: CodeInvalidRequest, Message: "already initialized"}
	}
	var params InitializeParams
	if len(raw) > 0 {
		if err := decode(raw, &params); err != nil {
			return nil, err
		}
	}
	root, err := s.rootFrom(params)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
	}

	opts := append([]soarls.Option{soarls.WithLogger(s.logger)}, s.wsOpts...)
	opts = append(opts, soarls.WithListener(s.diags.analysed))
	ws, err := soarls.New(root, opts...)
	if err != nil {
		return nil, fmt.Errorf("lsp: workspace: %w", err)
	}
	s.ws = ws
	s.logger.Info("initialized", slog.String("root", root), slog.Int("entry_points", len(ws.EntryPoints())))

	if len(params.InitializationOptions) > 0 {
		settings, err := config.ParseSettings(params.InitializationOptions)
		if err != nil {
			s.logger.Warn("ignoring initialization options", slog.String("error", err.Error()))
		} else {
			ws.Configure(settings)
		}
	}
	if s.watch || ws.Config().Watch {
		if err := s.startWatcher(root); err != nil {
			s.logger.Warn("file watcher not started", slog.String("error", err.Error()))
		}
	}

	return InitializeResult{
		Capabilities: ServerCapabilities{
			TextDocumentSync:          TextDocumentSyncOptions{OpenClose: true, Change: 2},
			HoverProvider:             true,
			DefinitionProvider:        true,
			ReferencesProvider:        true,
			CompletionProvider:        CompletionOptions{TriggerCharacters: []string{"$", "["}},
			SignatureHelpProvider:     SignatureHelpOptions{TriggerCharacters: []string{" "}},
			DocumentSymbolProvider:    true,
			FoldingRangeProvider:      true,
			RenameProvider:            true,
			DocumentHighlightProvider: true,
			WorkspaceSymbolProvider:   true,
			ExecuteCommandProvider: ExecuteCommandOptions{
				Commands: []string{CommandSetEntryPoint, CommandLogSourceTree},
			},
		},
		ServerInfo: ServerInfo{Name: "soarls", Version: s.version},
	}, nil
}

func (s *Server) rootFrom(p InitializeParams) (string, error) {
	uri := p.RootURI
	if uri == "" && len(p.WorkspaceFolders) > 0 {
		uri = p.WorkspaceFolders[0].URI
	}
	if uri != "" {
		return document.PathFromURI(uri)
	}
	if p.RootPath != "" {
		return p.RootPath, nil
	}
	if s.root != "" {
		return s.root, nil
	}
	return os.Getwd()
}

func (s *Server) startWatcher(root string) error {
	w, err := watch.New(root, func(paths []string) {
		uris := make([]string, len(paths))
		for i, p := range paths {
			uris[i] = document.FileURI(p)
		}
		s.ws.Refresh(uris...)
	}, watch.WithLogger(s.logger))
	if err != nil {
		return err
	}
	s.group.Go(func() error {
		if err := w.Run(s.ctx); err != nil && s.ctx.Err() == nil {
			return fmt.Errorf("lsp: watch: %w", err)
		}
		return nil
	})
	return nil
}

func (s *Server) initialized(context.Context, json.RawMessage) (any, error) {
	s.ws.Submit()
	return nil, nil
}

func (s *Server) onShutdown(context.Context, json.RawMessage) (any, error) {
	s.shutdown = true
	return nil, nil
}

// --- Document sync ---

func (s *Server) didOpen(_ context.Context, raw json.RawMessage) (any, error) {
	var p DidOpenTextDocumentParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	s.ws.Open(p.TextDocument.URI, p.TextDocument.Text, p.TextDocument.Version)
	return nil, nil
}

func (s *Server) didChange(_ context.Context, raw json.RawMessage) (any, error) {
	var p DidChangeTextDocumentParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	changes := make([]soarls.Change, len(p.ContentChanges))
	for i, c := range p.ContentChanges {
		changes[i] = soarls.Change{Range: c.Range, Text: c.Text}
	}
	if !s.ws.Change(p.TextDocument.URI, p.TextDocument.Version, changes...) {
		s.logger.Warn("change to a document that is not open", slog.String("uri", p.TextDocument.URI))
	}
	return nil, nil
}

func (s *Server) didSave(_ context.Context, raw json.RawMessage) (any, error) {
	var p DidSaveTextDocumentParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	s.ws.Save(p.TextDocument.URI)
	return nil, nil
}

func (s *Server) didClose(_ context.Context, raw json.RawMessage) (any, error) {
	var p DidCloseTextDocumentParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	s.ws.CloseDocument(p.TextDocument.URI)
	return nil, nil
}

// --- Workspace ---

func (s *Server) didChangeConfiguration(_ context.Context, raw json.RawMessage) (any, error) {
	var p DidChangeConfigurationParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	settings, err := config.ParseSettings(p.Settings)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	s.ws.Configure(settings)
	return nil, nil
}

func (s *Server) didChangeWatchedFiles(_ context.Context, raw json.RawMessage) (any, error) {
	var p DidChangeWatchedFilesParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	uris := make([]string, len(p.Changes))
	for i, c := range p.Changes {
		uris[i] = c.URI
	}
	s.ws.Refresh(uris...)
	return nil, nil
}

func (s *Server) executeCommand(_ context.Context, raw json.RawMessage) (any, error) {
	var p ExecuteCommandParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	var name string
	if len(p.Arguments) > 0 {
		if err := json.Unmarshal(p.Arguments[0], &name); err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: "argument must be an entry point name"}
		}
	}
	switch p.Command {
	case CommandSetEntryPoint:
		if err := s.ws.SetActive(name); err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
		}
		return nil, nil
	case CommandLogSourceTree:
		tree := s.ws.Query().SourceTree(name)
		s.notify("window/logMessage", LogMessageParams{Type: MessageTypeLog, Message: tree})
		return tree, nil
	}
	return nil, &Error{Code: CodeInvalidParams, Message: "unknown command: " + p.Command}
}
