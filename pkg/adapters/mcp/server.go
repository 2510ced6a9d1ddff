package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/decomp"
	"github.com/aretw0/decomp/internal/logging"
	"github.com/aretw0/decomp/internal/presentation/graph"
	"github.com/aretw0/decomp/pkg/config"
	"github.com/aretw0/decomp/pkg/domain"
)

// SolveResponse is the structured result of solve_problem. Infinite bounds are
// reported as absent.
type SolveResponse struct {
	Problem    string        `json:"problem" jsonschema_description:"Name of the solved problem"`
	Status     domain.Status `json:"status" jsonschema_description:"Terminal status of the root master"`
	Iterations int           `json:"iterations" jsonschema_description:"Root iterations performed"`
	Bound      *float64      `json:"bound,omitempty" jsonschema_description:"Best proven bound, absent when infinite"`
	Objective  *float64      `json:"objective,omitempty" jsonschema_description:"Objective of the returned solution, absent when infinite"`
	Solution   []float64     `json:"solution" jsonschema_description:"Values of the master variables"`
	ElapsedMS  int64         `json:"elapsed_ms" jsonschema_description:"Wall time in milliseconds"`
}

// Server exposes problem solving as MCP tools.
type Server struct {
	params    config.Params
	logger    *slog.Logger
	mcpServer *server.MCPServer

	mu   sync.Mutex
	last *SolveResponse
}

// NewServer creates a new MCP Server instance. Every solve uses params.
func NewServer(params config.Params, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		params:    params,
		logger:    logger,
		mcpServer: server.NewMCPServer("decomp-mcp", strings.TrimSpace(decomp.Version)),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and stops when ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("Shutdown signal received, shutting down MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	solveTool := mcp.NewTool("solve_problem",
		mcp.WithDescription("Solve the decomposition problem stored in a YAML file."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the problem file")),
		mcp.WithString("mode", mcp.Description("tree, hub or distributed (default tree)")),
		mcp.WithNumber("ranks", mcp.Description("In-process ranks for distributed mode (default 1)")),
		mcp.WithOutputSchema[SolveResponse](),
	)
	s.mcpServer.AddTool(solveTool, mcp.NewStructuredToolHandler(s.handleSolve))

	s.mcpServer.AddTool(mcp.NewTool("validate_problem",
		mcp.WithDescription("Check a problem file and build its tree without solving."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the problem file")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, _ := request.GetArguments()["path"].(string)
		msg, err := s.Validate(path)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(msg), nil
	})

	s.mcpServer.AddTool(mcp.NewTool("get_topology",
		mcp.WithDescription("Draw the problem's decomposition tree as a Mermaid graph."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the problem file")),
		mcp.WithNumber("ranks", mcp.Description("Colour nodes by rank for this world size")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		path, _ := args["path"].(string)
		ranks, _ := args["ranks"].(float64)
		out, err := s.Topology(path, int(ranks))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(out), nil
	})
}

func (s *Server) handleSolve(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (SolveResponse, error) {
	path, _ := args["path"].(string)
	mode, _ := args["mode"].(string)
	ranks, _ := args["ranks"].(float64)
	return s.Solve(ctx, path, mode, int(ranks))
}

// Solve loads and solves the problem at path and remembers the response for the
// status resource.
func (s *Server) Solve(ctx context.Context, path, mode string, ranks int) (SolveResponse, error) {
	if mode == "" {
		mode = string(decomp.ModeTree)
	}
	m, err := decomp.ParseMode(mode)
	if err != nil {
		return SolveResponse{}, err
	}
	eng, err := decomp.New(path, decomp.WithParams(s.params), decomp.WithLogger(s.logger))
	if err != nil {
		return SolveResponse{}, err
	}

	var res domain.Result
	if m == decomp.ModeDistributed {
		res, err = eng.RunLocal(ctx, max(ranks, 1))
	} else {
		res, err = eng.Run(ctx, m)
	}
	if err != nil {
		return SolveResponse{}, fmt.Errorf("solve failed: %w", err)
	}

	resp := SolveResponse{
		Problem:    eng.Name,
		Status:     res.Status,
		Iterations: res.Iterations,
		Bound:      finite(res.Bound),
		Objective:  finite(res.Objective),
		Solution:   res.Solution,
		ElapsedMS:  res.Elapsed.Milliseconds(),
	}
	if resp.Solution == nil {
		resp.Solution = []float64{}
	}
	s.mu.Lock()
	s.last = &resp
	s.mu.Unlock()
	return resp, nil
}

// Validate decodes the problem at path and builds its tree.
func (s *Server) Validate(path string) (string, error) {
	eng, err := decomp.New(path, decomp.WithParams(s.params))
	if err != nil {
		return "", err
	}
	p := eng.Problem()
	if _, err := p.Build(s.params); err != nil {
		return "", err
	}
	return fmt.Sprintf("Problem %q is valid: %s decomposition with %d children.",
		eng.Name, p.Decomposition, len(p.ChildIDs())), nil
}

// Topology draws the problem's tree in Mermaid syntax.
func (s *Server) Topology(path string, ranks int) (string, error) {
	eng, err := decomp.New(path, decomp.WithParams(s.params))
	if err != nil {
		return "", err
	}
	return graph.ProblemMermaid(eng.Problem(), s.params, ranks)
}

// LastResult returns the response of the most recent successful solve.
func (s *Server) LastResult() (SolveResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return SolveResponse{}, false
	}
	return *s.last, true
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource("decomp://status", "Last solve result",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		var body any = map[string]string{"status": "idle"}
		if last, ok := s.LastResult(); ok {
			body = last
		}
		jsonBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "decomp://status",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}

func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}
