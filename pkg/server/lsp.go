// Package server is a language server that reports compiler diagnostics
// to editors and describes symbols on hover.
package server

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"cscript/pkg/compiler"
	"cscript/pkg/vfs"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "cscript-lsp"

var log = commonlog.GetLogger("cscript.server")

// LspServer compiles open documents on every change. Open buffers are
// mirrored onto a ScriptDisk so that #include sees unsaved text.
type LspServer struct {
	pipeline *compiler.Pipeline
	headers  []compiler.Unit
	disk     *vfs.ScriptDisk

	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP builds a server. Includes are looked up in open buffers first,
// then through fallback, which may be nil.
func NewLSP(opts compiler.Options, headers []compiler.Unit, fallback compiler.IncludeResolver) *LspServer {
	s := &LspServer{
		headers: headers,
		disk:    vfs.NewScriptDisk(),
		docs:    make(map[string]string),
		version: "0.1.0",
	}
	chain := vfs.Chain{s.disk}
	if fallback != nil {
		chain = append(chain, fallback)
	}
	opts.Resolver = chain
	s.pipeline = compiler.NewPipeline(opts)

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentHover: s.textDocumentHover,
	}
	s.server = glspserver.NewServer(&s.handler, lspName, false)
	return s
}

// Run starts the server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Info("initializing")

	capabilities := s.handler.CreateServerCapabilities()
	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}
	capabilities.HoverProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// open records text for uri and returns the diagnostics to publish.
func (s *LspServer) open(uri protocol.DocumentUri, text string) []protocol.Diagnostic {
	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	if name := unitName(uri); vfs.ValidName(name) {
		if err := s.disk.Write(name, text); err != nil {
			log.Warningf("%s: %s", name, err)
		}
	}
	return s.diagnose(uri, text)
}

func (s *LspServer) close(uri protocol.DocumentUri) {
	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()
	if name := unitName(uri); vfs.ValidName(name) {
		_ = s.disk.Delete(name)
	}
}

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	s.publish(ctx, uri, s.open(uri, params.TextDocument.Text))
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// with Full sync the last change event holds the whole text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.publish(ctx, uri, s.open(uri, whole.Text))
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI
	s.close(uri)
	s.publish(ctx, uri, []protocol.Diagnostic{})
	return nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	uri := params.TextDocument.URI

	s.mu.Lock()
	text, ok := s.docs[string(uri)]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return s.hover(uri, text, params.Position), nil
}

func (s *LspServer) publish(ctx *glsp.Context, uri protocol.DocumentUri, diagnostics []protocol.Diagnostic) {
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

func (s *LspServer) diagnose(uri protocol.DocumentUri, text string) []protocol.Diagnostic {
	name := unitName(uri)
	insp := s.pipeline.Inspect(compiler.Unit{Name: name, Source: text}, s.headers...)
	diagnostics := []protocol.Diagnostic{}
	for _, m := range insp.Results.Messages {
		diagnostics = append(diagnostics, toDiagnostic(m, name, text))
	}
	log.Debugf("%s: %d diagnostics", name, len(diagnostics))
	return diagnostics
}

// toDiagnostic places m on its line when it belongs to unit; messages from
// headers and included scripts are reported on the first line with their
// origin in the text.
func toDiagnostic(m *compiler.Message, unit, text string) protocol.Diagnostic {
	line := 0
	msg := m.Text
	if m.Unit == unit || m.Unit == "" {
		line = max(m.Line-1, 0)
	} else {
		msg = fmt.Sprintf("%s:%d: %s", m.Unit, m.Line, m.Text)
	}
	end := 0
	if lines := strings.Split(text, "\n"); line < len(lines) {
		end = len(strings.TrimRight(lines[line], "\r"))
	}

	severity := protocol.DiagnosticSeverityError
	if m.Severity == compiler.SeverityWarning {
		severity = protocol.DiagnosticSeverityWarning
	}
	source := lspName
	return protocol.Diagnostic{
		Range: protocol.Range{
			Start: protocol.Position{Line: protocol.UInteger(line), Character: 0},
			End:   protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(end)},
		},
		Severity: &severity,
		Code:     &protocol.IntegerOrString{Value: m.Code.String()},
		Source:   &source,
		Message:  msg,
	}
}

func (s *LspServer) hover(uri protocol.DocumentUri, text string, pos protocol.Position) *protocol.Hover {
	word := extractWord(text, pos)
	if word == "" {
		return nil
	}
	insp := s.pipeline.Inspect(compiler.Unit{Name: unitName(uri), Source: text}, s.headers...)
	desc := insp.Describe(word)
	if desc == "" {
		return nil
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: "```c\n" + desc + "\n```",
		},
	}
}

// unitName is the base name of the document path, used as the unit name in
// messages and as the key on the script disk.
func unitName(uri protocol.DocumentUri) string {
	u, err := url.Parse(string(uri))
	if err != nil || u.Path == "" {
		return string(uri)
	}
	return path.Base(u.Path)
}

// extractWord returns the identifier under the cursor. A "::" joins the
// parts of a member function name.
func extractWord(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := min(int(pos.Character), len(line))

	isWord := func(i int) bool {
		ch := rune(line[i])
		return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' || ch == ':'
	}
	start := col
	for start > 0 && isWord(start-1) {
		start--
	}
	end := col
	for end < len(line) && isWord(end) {
		end++
	}
	return strings.Trim(line[start:end], ":")
}

func boolPtr(b bool) *bool {
	return &b
}
