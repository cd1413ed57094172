// Command mcprt-server runs a demo MCP server over STDIO or Streamable
// HTTP, registering one example tool (add) and one static resource. Grounded on
// the teacher's cmd/demoserver and cmd/mcp-server entrypoints, adapted to
// this runtime's functional-options Server/transport construction instead
// of the teacher's fluent builder chain.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/corvusruntime/mcprt/logx"
	"github.com/corvusruntime/mcprt/protocol"
	"github.com/corvusruntime/mcprt/server"
	"github.com/corvusruntime/mcprt/transport/httpmcp"
	"github.com/corvusruntime/mcprt/transport/stdio"
)

func main() {
	transportFlag := flag.String("transport", "stdio", "transport to serve on: stdio or http")
	addr := flag.String("addr", "127.0.0.1", "HTTP transport bind host")
	port := flag.Int("port", 8080, "HTTP transport bind port")
	flag.Parse()

	logger := logx.NewDefaultLogger()
	srv := server.NewServer("mcprt-demo", "0.1.0", server.WithLogger(logger))
	registerDemoTools(srv)
	registerDemoResources(srv)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch *transportFlag {
	case "stdio":
		runStdio(ctx, srv, logger)
	case "http":
		runHTTP(ctx, srv, logger, *addr, *port)
	default:
		log.Fatalf("unknown transport %q (want stdio or http)", *transportFlag)
	}
}

func runStdio(ctx context.Context, srv *server.Server, logger *logx.DefaultLogger) {
	const sessionID = "stdio"
	srv.RegisterSession(sessionID)

	t := stdio.New(logger)
	logger.Info("serving MCP over stdio")
	if err := t.Start(ctx, srv.AsMessageHandler(sessionID)); err != nil {
		log.Fatalf("stdio transport exited: %v", err)
	}
}

func runHTTP(ctx context.Context, srv *server.Server, logger *logx.DefaultLogger, host string, port int) {
	cfg := httpmcp.DefaultConfig()
	cfg.Host = host
	cfg.Port = port

	t := httpmcp.NewTransport(srv, cfg, httpmcp.WithLogger(logger))

	// Broadcast notifications and async responses route back through the
	// HTTP transport's per-session queues/SSE streams.
	srv.SetOutbound(t.Deliver)

	logger.Info("serving MCP over http on %s:%d", host, port)
	if err := t.Start(ctx); err != nil {
		log.Fatalf("http transport exited: %v", err)
	}
}

func registerDemoTools(srv *server.Server) {
	addTool := protocol.Tool{
		Name:        "add",
		Description: "Add two integers",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"a": map[string]interface{}{"type": "integer"},
				"b": map[string]interface{}{"type": "integer"},
			},
			"required": []interface{}{"a", "b"},
		},
		OutputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"sum": map[string]interface{}{"type": "integer"},
			},
		},
	}
	err := srv.RegisterTool(addTool, func(ctx *server.Context, arguments map[string]interface{}) ([]protocol.Content, map[string]interface{}, bool) {
		var args struct {
			A int `json:"a"`
			B int `json:"b"`
		}
		if err := ctx.DecodeArguments(arguments, &args); err != nil {
			return []protocol.Content{protocol.TextContent{Type: "text", Text: err.Error()}}, nil, true
		}
		sum := args.A + args.B
		text := fmt.Sprintf("%d + %d = %d", args.A, args.B, sum)
		return []protocol.Content{protocol.TextContent{Type: "text", Text: text}},
			map[string]interface{}{"sum": sum}, false
	})
	if err != nil {
		log.Fatalf("failed to register add tool: %v", err)
	}
}

func registerDemoResources(srv *server.Server) {
	resource := protocol.Resource{
		URI:         "mcprt://demo/welcome.txt",
		Name:        "welcome.txt",
		Description: "A static greeting resource",
		MimeType:    "text/plain",
	}
	err := srv.RegisterResource(resource, func(ctx *server.Context, uri string) ([]protocol.ResourceContents, error) {
		return []protocol.ResourceContents{{URI: uri, MimeType: "text/plain", Text: "hello from mcprt"}}, nil
	})
	if err != nil {
		log.Fatalf("failed to register welcome resource: %v", err)
	}
}
