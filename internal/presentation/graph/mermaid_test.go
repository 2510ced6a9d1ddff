package graph_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/decomp/internal/presentation/graph"
	"github.com/aretw0/decomp/internal/tree"
	"github.com/aretw0/decomp/pkg/config"
	"github.com/aretw0/decomp/pkg/domain"
	"github.com/aretw0/decomp/pkg/problem"
)

func forest(t *testing.T) *tree.Topology {
	t.Helper()
	topo, err := tree.NewTopology([]domain.Node{
		{ID: 0, Children: []int{1, 4}, Multipliers: map[int]float64{1: 0.25, 4: 1}},
		{ID: 1, Parents: []int{0}, Children: []int{2, 3}, Groups: [][]int{{2, 3}}},
		{ID: 2, Parents: []int{1}},
		{ID: 3, Parents: []int{1}},
		{ID: 4, Parents: []int{0}},
	}, map[int]domain.CouplingMatrix{4: {Rows: 2, Cols: 1}})
	require.NoError(t, err)
	return topo
}

func TestGenerateMermaid(t *testing.T) {
	tests := []struct {
		name     string
		overlay  *graph.Overlay
		contains []string
	}{
		{
			name: "Role Shapes",
			contains: []string{
				`n0(("0"))`,
				`n1[["1"]]`,
				`n2["2"]`,
			},
		},
		{
			name: "Coupling Dimensions",
			contains: []string{
				`n4["4 <br/> 2x1"]`,
			},
		},
		{
			name: "Weighted Edges",
			contains: []string{
				`n0 -- "0.25" --> n1`,
				`n0 --> n4`,
				`n1 --> n2`,
			},
		},
		{
			name: "Grouped Slots",
			contains: []string{
				`subgraph n1_slot0 ["slot 0"]`,
			},
		},
		{
			name: "Rank Overlay",
			overlay: &graph.Overlay{
				Ranks:  map[int]int{1: 1, 4: 2},
				Status: map[int]domain.Status{0: domain.StatusOptimal, 1: domain.StatusMaxIteration},
			},
			contains: []string{
				"class n1 rank1;",
				"class n4 rank2;",
				"class n0 done;",
				"class n1 stopped;",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := graph.GenerateMermaid(forest(t), tt.overlay)
			assert.True(t, strings.HasPrefix(got, "graph TD\n"))
			for _, want := range tt.contains {
				assert.Contains(t, got, want)
			}
		})
	}
}

func TestProblemMermaid(t *testing.T) {
	p, err := problem.Load("../../../pkg/problem/testdata/capacity.yaml")
	require.NoError(t, err)

	plain, err := graph.ProblemMermaid(p, config.Defaults(), 1)
	require.NoError(t, err)
	assert.Contains(t, plain, `n0(("0"))`)
	assert.NotContains(t, plain, "classDef")

	ranked, err := graph.ProblemMermaid(p, config.Defaults(), 2)
	require.NoError(t, err)
	assert.Contains(t, ranked, "classDef rank")
}

func TestProblemMermaid_Staged(t *testing.T) {
	p, err := problem.Load("../../../pkg/problem/testdata/staged.yaml")
	require.NoError(t, err)

	out, err := graph.ProblemMermaid(p, config.Defaults(), 3)
	require.NoError(t, err)
	assert.Contains(t, out, `n1[["1 <br/> 2x1"]]`)
	assert.Contains(t, out, `n2["2 <br/> 1x2"]`)
	assert.Contains(t, out, "n1 -- \"0.5\" --> n2")
	for _, id := range []string{"n1", "n2", "n3"} {
		assert.Contains(t, out, "class "+id+" rank2;")
	}
	assert.Contains(t, out, "class n4 rank1;")
}
