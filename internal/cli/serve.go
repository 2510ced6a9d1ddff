package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/aretw0/decomp"
	"github.com/aretw0/decomp/internal/presentation/graph"
	"github.com/aretw0/decomp/pkg/adapters/mcp"
)

// Graph prints the problem's decomposition tree as a Mermaid diagram.
func Graph(w io.Writer, problemPath, configPath string, ranks int) error {
	params, err := loadParams(configPath, nil)
	if err != nil {
		return err
	}
	eng, err := decomp.New(problemPath, decomp.WithParams(params))
	if err != nil {
		return err
	}
	out, err := graph.ProblemMermaid(eng.Problem(), params, ranks)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(w, out)
	return err
}

// MCPOptions configures the MCP server command.
type MCPOptions struct {
	ConfigPath string
	Transport  string
	Port       int
	LogLevel   string
}

// ServeMCP runs the MCP server until stdin closes or the process is interrupted.
func ServeMCP(opts MCPOptions) error {
	params, err := loadParams(opts.ConfigPath, nil)
	if err != nil {
		return err
	}
	level := params.LogLevel
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	// Logs go to Stderr so they never corrupt JSON-RPC on Stdout.
	logger, err := createLogger(level)
	if err != nil {
		return err
	}
	srv := mcp.NewServer(params, logger)

	switch opts.Transport {
	case "", "stdio":
		logger.Info("Starting decomp MCP Server (Stdio)")
		return srv.ServeStdio()
	case "sse":
		ctx := NewSignalContext(context.Background())
		defer ctx.Cancel()
		logger.Info("Starting decomp MCP Server (SSE)", "port", opts.Port)
		return srv.ServeSSE(ctx, opts.Port)
	}
	return fmt.Errorf("unknown transport %q (want stdio or sse)", opts.Transport)
}
