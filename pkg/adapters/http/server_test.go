package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/decomp/internal/metrics"
	decomphttp "github.com/aretw0/decomp/pkg/adapters/http"
	"github.com/aretw0/decomp/pkg/domain"
)

func TestGetHealth(t *testing.T) {
	handler := decomphttp.NewHandler(&decomphttp.Server{})

	req, _ := http.NewRequest("GET", "/health", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestGetInfo(t *testing.T) {
	handler := decomphttp.NewHandler(&decomphttp.Server{Version: "1.2.3"})

	req, _ := http.NewRequest("GET", "/info", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "decomp", resp["app"])
	assert.Equal(t, "1.2.3", resp["version"])
}

func TestGetStatusAndMetrics(t *testing.T) {
	c := metrics.NewCollector()
	hooks := c.Hooks()
	ctx := context.Background()
	now := time.Now()

	hooks.OnIteration(ctx, &domain.IterationEvent{
		EventBase:  domain.EventBase{Timestamp: now, Type: domain.EventIteration, NodeID: 0},
		Iteration:  1,
		Bound:      3,
		Objective:  7,
		ActiveCuts: 2,
	})
	hooks.OnTerminate(ctx, &domain.TerminateEvent{
		EventBase:  domain.EventBase{Timestamp: now, Type: domain.EventTerminate, NodeID: 0},
		Status:     domain.StatusOptimal,
		Iterations: 1,
	})

	handler := decomphttp.NewHandler(&decomphttp.Server{Status: c, Gatherer: c.Gatherer()})

	req, _ := http.NewRequest("GET", "/status", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Nodes []metrics.NodeStatus `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Nodes, 1)
	assert.Equal(t, domain.StatusOptimal, resp.Nodes[0].Status)
	require.NotNil(t, resp.Nodes[0].Bound)
	assert.Equal(t, 3.0, *resp.Nodes[0].Bound)

	req, _ = http.NewRequest("GET", "/metrics", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `decomp_iterations_total{node_id="0"} 1`)
	assert.Contains(t, rr.Body.String(), `decomp_terminations_total{node_id="0",status="optimal"} 1`)
}

func TestGetStatus_Empty(t *testing.T) {
	handler := decomphttp.NewHandler(&decomphttp.Server{})

	req, _ := http.NewRequest("GET", "/status", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"nodes":[]}`, rr.Body.String())
}
