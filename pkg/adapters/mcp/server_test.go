package mcp_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/decomp/pkg/adapters/mcp"
	"github.com/aretw0/decomp/pkg/config"
	"github.com/aretw0/decomp/pkg/domain"
)

const capacity = "../../problem/testdata/capacity.yaml"

func TestServer_Solve(t *testing.T) {
	s := mcp.NewServer(config.Defaults(), nil)

	_, ok := s.LastResult()
	assert.False(t, ok)

	for _, mode := range []string{"", "hub", "distributed"} {
		t.Run("mode "+mode, func(t *testing.T) {
			resp, err := s.Solve(context.Background(), capacity, mode, 2)
			require.NoError(t, err)
			assert.Equal(t, "capacity", resp.Problem)
			assert.Equal(t, domain.StatusOptimal, resp.Status)
			require.NotNil(t, resp.Objective)
			require.NotNil(t, resp.Bound)
			assert.InDelta(t, *resp.Bound, *resp.Objective, 1e-4)
			assert.Len(t, resp.Solution, 1)
		})
	}

	last, ok := s.LastResult()
	require.True(t, ok)
	assert.Equal(t, domain.StatusOptimal, last.Status)
}

func TestServer_SolveErrors(t *testing.T) {
	s := mcp.NewServer(config.Defaults(), nil)

	_, err := s.Solve(context.Background(), capacity, "sideways", 1)
	assert.Error(t, err)

	_, err = s.Solve(context.Background(), "missing.yaml", "", 1)
	assert.Error(t, err)
}

func TestServer_Validate(t *testing.T) {
	s := mcp.NewServer(config.Defaults(), nil)

	msg, err := s.Validate(capacity)
	require.NoError(t, err)
	assert.Contains(t, msg, `"capacity" is valid`)
}

func TestServer_Topology(t *testing.T) {
	s := mcp.NewServer(config.Defaults(), nil)

	out, err := s.Topology(capacity, 2)
	require.NoError(t, err)
	assert.Contains(t, out, "graph TD")
	assert.Contains(t, out, "classDef rank")
}
