package mcpserver_test

import (
	"context"
	"encoding/json"
	"slices"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/bondvox/internal/mcpserver"
	"github.com/MrWong99/bondvox/internal/pipeline"
	"github.com/MrWong99/bondvox/internal/quote"
)

// connect returns a client session talking to srv over in-memory transports.
func connect(t *testing.T, srv *mcpserver.Server) *mcpsdk.ClientSession {
	t.Helper()
	ctx := context.Background()
	serverT, clientT := mcpsdk.NewInMemoryTransports()

	ss, err := srv.MCP().Connect(ctx, serverT, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { _ = ss.Close() })

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func newServer() *mcpserver.Server {
	return mcpserver.New(pipeline.New(quote.NewEngine()), mcpserver.WithVersion("test"))
}

func TestListTools(t *testing.T) {
	t.Parallel()
	cs := connect(t, newServer())

	res, err := cs.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
		if tool.InputSchema == nil {
			t.Errorf("tool %q has no input schema", tool.Name)
		}
	}
	for _, want := range []string{mcpserver.ToolParse, mcpserver.ToolInstruments} {
		if !slices.Contains(names, want) {
			t.Errorf("tools = %v, missing %q", names, want)
		}
	}
}

func TestParseTool(t *testing.T) {
	t.Parallel()
	cs := connect(t, newServer())

	tests := []struct {
		name    string
		text    string
		want    string
		pattern string
	}{
		{
			name:    "directional",
			text:    "I can buy 72 million of bund October 71",
			want:    "CAN BUY 72M DBR 10/71",
			pattern: string(quote.PatternDirectional),
		},
		{
			name: "no quote",
			text: "good morning desk",
			want: quote.NoQuote,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{
				Name:      mcpserver.ToolParse,
				Arguments: map[string]any{"text": tt.text},
			})
			if err != nil {
				t.Fatalf("CallTool: %v", err)
			}
			if res.IsError {
				t.Fatalf("tool returned error result: %+v", res.Content)
			}
			if len(res.Content) == 0 {
				t.Fatal("empty content")
			}
			tc, ok := res.Content[0].(*mcpsdk.TextContent)
			if !ok {
				t.Fatalf("content[0] = %T, want *TextContent", res.Content[0])
			}
			if tc.Text != tt.want {
				t.Errorf("text = %q, want %q", tc.Text, tt.want)
			}

			var out mcpserver.ParseOutput
			decodeStructured(t, res, &out)
			if out.Quote != tt.want || out.Pattern != tt.pattern {
				t.Errorf("structured = %+v, want {%q %q}", out, tt.want, tt.pattern)
			}
		})
	}
}

func TestInstrumentsTool(t *testing.T) {
	t.Parallel()
	lx := quote.NewLexicon(quote.WithInstruments("NZGB"))
	srv := mcpserver.New(pipeline.New(quote.NewEngine(quote.WithLexicon(lx))))
	cs := connect(t, srv)

	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      mcpserver.ToolInstruments,
		Arguments: map[string]any{},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}

	var out mcpserver.InstrumentsOutput
	decodeStructured(t, res, &out)
	for _, want := range []string{"DBR", "NZGB", "OAT"} {
		if !slices.Contains(out.Instruments, want) {
			t.Errorf("instruments missing %q: %v", want, out.Instruments)
		}
	}
	if !slices.IsSorted(out.Instruments) {
		t.Errorf("instruments not sorted: %v", out.Instruments)
	}
}

func decodeStructured(t *testing.T, res *mcpsdk.CallToolResult, v any) {
	t.Helper()
	if res.StructuredContent == nil {
		t.Fatal("no structured content")
	}
	data, err := json.Marshal(res.StructuredContent)
	if err != nil {
		t.Fatalf("marshal structured content: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("unmarshal structured content: %v", err)
	}
}
