// Package mcpserver exposes the quote engine to MCP clients.
//
// Two tools are registered:
//   - "parse_bond_quote": turns a trader utterance into a canonical quote.
//   - "list_instruments": lists the instrument codes the engine accepts.
//
// The server is served over streamable HTTP by [Server.Handler] or over
// stdin/stdout by [Server.RunStdio].
//
// Example:
//
//	srv := mcpserver.New(p)
//	mux.Handle("/mcp", srv.Handler())
package mcpserver

import (
	"context"
	"fmt"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/bondvox/internal/observe"
	"github.com/MrWong99/bondvox/internal/quote"
)

const (
	// ToolParse is the name of the quote parsing tool.
	ToolParse = "parse_bond_quote"

	// ToolInstruments is the name of the instrument listing tool.
	ToolInstruments = "list_instruments"
)

// Parser is the part of the pipeline the tools need.
type Parser interface {
	ParseText(ctx context.Context, text string) quote.Outcome
	Engine() *quote.Engine
}

// ParseInput is the argument object of [ToolParse].
type ParseInput struct {
	Text string `json:"text" jsonschema:"the transcribed or typed trader utterance, e.g. I can buy 10 million of bund March 30"`
}

// ParseOutput is the structured result of [ToolParse].
type ParseOutput struct {
	Quote   string `json:"quote" jsonschema:"the canonical quote, or the no-quote sentinel"`
	Pattern string `json:"pattern" jsonschema:"the pattern that produced the quote; empty when nothing matched"`
}

// InstrumentsInput is the (empty) argument object of [ToolInstruments].
type InstrumentsInput struct{}

// InstrumentsOutput is the structured result of [ToolInstruments].
type InstrumentsOutput struct {
	Instruments []string `json:"instruments" jsonschema:"sorted tradeable instrument codes"`
}

// Option configures a [Server].
type Option func(*Server)

// WithVersion sets the implementation version reported to clients.
// Default: "dev".
func WithVersion(v string) Option {
	return func(s *Server) {
		if v != "" {
			s.version = v
		}
	}
}

// Server wraps an MCP SDK server with the quote tools registered.
type Server struct {
	parser  Parser
	version string
	srv     *mcpsdk.Server
}

// New returns a server whose tools delegate to p.
func New(p Parser, opts ...Option) *Server {
	s := &Server{parser: p, version: "dev"}
	for _, o := range opts {
		o(s)
	}

	s.srv = mcpsdk.NewServer(&mcpsdk.Implementation{Name: "bondvox", Version: s.version}, nil)
	mcpsdk.AddTool(s.srv, &mcpsdk.Tool{
		Name:        ToolParse,
		Description: "Parse a spoken or typed government bond quote into its canonical form.",
	}, s.parse)
	mcpsdk.AddTool(s.srv, &mcpsdk.Tool{
		Name:        ToolInstruments,
		Description: "List the government bond instrument codes the parser accepts.",
	}, s.instruments)
	return s
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *mcpsdk.Server { return s.srv }

// Handler serves the tools over the MCP streamable HTTP transport.
func (s *Server) Handler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server {
		return s.srv
	}, nil)
}

// RunStdio serves a single client over stdin/stdout until ctx is cancelled
// or the client disconnects.
func (s *Server) RunStdio(ctx context.Context) error {
	if err := s.srv.Run(ctx, &mcpsdk.StdioTransport{}); err != nil {
		return fmt.Errorf("mcpserver: run stdio: %w", err)
	}
	return nil
}

func (s *Server) parse(ctx context.Context, _ *mcpsdk.CallToolRequest, in ParseInput) (*mcpsdk.CallToolResult, ParseOutput, error) {
	out := s.parser.ParseText(ctx, in.Text)
	observe.Logger(ctx).Debug("mcp tool called", "tool", ToolParse, "reason", out.Reason)

	res := ParseOutput{Quote: out.Quote, Pattern: string(out.Pattern)}
	return &mcpsdk.CallToolResult{
		Content:           []mcpsdk.Content{&mcpsdk.TextContent{Text: res.Quote}},
		StructuredContent: res,
	}, res, nil
}

func (s *Server) instruments(ctx context.Context, _ *mcpsdk.CallToolRequest, _ InstrumentsInput) (*mcpsdk.CallToolResult, InstrumentsOutput, error) {
	codes := s.parser.Engine().Lexicon().Instruments()
	observe.Logger(ctx).Debug("mcp tool called", "tool", ToolInstruments, "count", len(codes))
	return nil, InstrumentsOutput{Instruments: codes}, nil
}
