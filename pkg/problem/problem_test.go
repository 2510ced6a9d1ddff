package problem_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/decomp/internal/tree"
	"github.com/aretw0/decomp/pkg/config"
	"github.com/aretw0/decomp/pkg/domain"
	"github.com/aretw0/decomp/pkg/problem"
)

func TestLoad_Benders(t *testing.T) {
	p, err := problem.Load("testdata/capacity.yaml")
	require.NoError(t, err)

	assert.Equal(t, problem.Benders, p.Decomposition)
	assert.Equal(t, []int{1, 2}, p.ChildIDs())
	assert.Equal(t, []string{"x"}, p.Master.Coupling)
}

func TestLoad_Lagrangian(t *testing.T) {
	p, err := problem.Load("testdata/sharing.yaml")
	require.NoError(t, err)

	assert.Equal(t, problem.Lagrangian, p.Decomposition)
	assert.Equal(t, []int{1, 2}, p.ChildIDs())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := problem.Load("testdata/missing.yaml")
	assert.Error(t, err)
}

func TestParse_DefaultsToBenders(t *testing.T) {
	p, err := problem.Parse([]byte(`
master:
  variables: [{name: x}]
  objectives: [{x: 1}]
  coupling: [x]
scenarios:
  - {id: 1, q: [1], w: [[1]], h: [1], t: [[1]]}
`))
	require.NoError(t, err)
	assert.Equal(t, problem.Benders, p.Decomposition)
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := problem.Parse([]byte(`
master:
  variables: [{name: x}]
  objectives: [{x: 1}]
  coupling: [x]
  colour: blue
`))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		sentinel error
		field    string
	}{
		{
			name: "multiple objectives",
			doc: `
master:
  variables: [{name: x}]
  objectives: [{x: 1}, {x: 2}]
  coupling: [x]
scenarios:
  - {id: 1, q: [1], w: [[1]], h: [1], t: [[1]]}
`,
			sentinel: domain.ErrMultipleObjectives,
			field:    "master.objectives",
		},
		{
			name: "unknown coupling variable",
			doc: `
master:
  variables: [{name: x}]
  objectives: [{x: 1}]
  coupling: [z]
scenarios:
  - {id: 1, q: [1], w: [[1]], h: [1], t: [[1]]}
`,
			sentinel: domain.ErrUnknownCouplingVariable,
			field:    "master.coupling[0]",
		},
		{
			name: "unknown objective variable",
			doc: `
master:
  variables: [{name: x}]
  objectives: [{y: 1}]
  coupling: [x]
scenarios:
  - {id: 1, q: [1], w: [[1]], h: [1], t: [[1]]}
`,
			sentinel: problem.ErrUnknownVariable,
			field:    "master.objectives[0]",
		},
		{
			name: "technology matrix width",
			doc: `
master:
  variables: [{name: x}]
  objectives: [{x: 1}]
  coupling: [x]
scenarios:
  - {id: 1, q: [1], w: [[1]], h: [1], t: [[1, 2]]}
`,
			field: "scenarios[0].t[0]",
		},
		{
			name: "duplicate scenario",
			doc: `
master:
  variables: [{name: x}]
  objectives: [{x: 1}]
  coupling: [x]
scenarios:
  - {id: 1, q: [1], w: [[1]], h: [1], t: [[1]]}
  - {id: 1, q: [1], w: [[1]], h: [1], t: [[1]]}
`,
			field: "scenarios[1].id",
		},
		{
			name: "nested technology matrix width",
			doc: `
master:
  variables: [{name: x}]
  objectives: [{x: 1}]
  coupling: [x]
scenarios:
  - id: 1
    q: [1, 1]
    w: [[1, 1]]
    h: [1]
    t: [[1]]
    children:
      - {id: 2, q: [1], w: [[1]], h: [1], t: [[1]]}
`,
			field: "scenarios[0].children[0].t[0]",
		},
		{
			name: "duplicate id across stages",
			doc: `
master:
  variables: [{name: x}]
  objectives: [{x: 1}]
  coupling: [x]
scenarios:
  - id: 1
    q: [1]
    w: [[1]]
    h: [1]
    t: [[1]]
    children:
      - {id: 1, q: [1], w: [[1]], h: [1], t: [[1]]}
`,
			field: "scenarios[0].children[0].id",
		},
		{
			name: "pinned nested scenario",
			doc: `
master:
  variables: [{name: x}]
  objectives: [{x: 1}]
  coupling: [x]
scenarios:
  - id: 1
    q: [1]
    w: [[1]]
    h: [1]
    t: [[1]]
    children:
      - {id: 2, rank: 1, q: [1], w: [[1]], h: [1], t: [[1]]}
`,
			field: "scenarios[0].children[0].rank",
		},
		{
			name: "bound on intermediate stage",
			doc: `
master:
  variables: [{name: x}]
  objectives: [{x: 1}]
  coupling: [x]
scenarios:
  - id: 1
    bound: 0
    q: [1]
    w: [[1]]
    h: [1]
    t: [[1]]
    children:
      - {id: 2, q: [1], w: [[1]], h: [1], t: [[1]]}
`,
			field: "scenarios[0].bound",
		},
		{
			name: "intermediate stage under a maximize master",
			doc: `
master:
  sense: maximize
  variables: [{name: x}]
  objectives: [{x: 1}]
  coupling: [x]
scenarios:
  - id: 1
    q: [1]
    w: [[1]]
    h: [1]
    t: [[1]]
    children:
      - {id: 2, q: [1], w: [[1]], h: [1], t: [[1]]}
`,
			field: "scenarios",
		},
		{
			name: "relaxed row type",
			doc: `
decomposition: lagrangian
relaxed: [{type: "<>", rhs: 1}]
blocks:
  - {id: 1, c: [1], a: [[1]]}
`,
			field: "relaxed[0].type",
		},
		{
			name: "block coupling rows",
			doc: `
decomposition: lagrangian
relaxed: [{type: "=", rhs: 1}]
blocks:
  - {id: 1, c: [1], a: [[1], [1]]}
`,
			field: "blocks[0].a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := problem.Parse([]byte(tt.doc))
			require.Error(t, err)

			var agg *problem.AggregateError
			require.True(t, errors.As(err, &agg), "expected AggregateError, got %T", err)

			var fields []string
			for _, e := range problem.ValidationErrors(err) {
				var ve *problem.ValidationError
				require.True(t, errors.As(e, &ve))
				fields = append(fields, ve.Field)
			}
			assert.Contains(t, fields, tt.field)
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
		})
	}
}

func TestBuild_Benders(t *testing.T) {
	p, err := problem.Load("testdata/capacity.yaml")
	require.NoError(t, err)

	inst, err := p.Build(config.Defaults())
	require.NoError(t, err)

	root := inst.Root.Node()
	assert.Equal(t, problem.RootID, root.ID)
	assert.Equal(t, []int{1, 2}, root.Children)
	assert.InDelta(t, 0.5, root.Multiplier(1), 1e-12)
	assert.Equal(t, 3, inst.Topology.Len())
	assert.Len(t, inst.Children, 2)
	assert.NotNil(t, inst.Heuristic)
	assert.Equal(t, domain.Minimize, inst.Root.Engine().Sense())

	link := inst.Topology.Link(2)
	assert.Equal(t, 1, link.Rows)
	assert.Equal(t, 1, link.Cols)

	model, coupling, err := inst.Heuristic()
	require.NoError(t, err)
	assert.Len(t, coupling, 1)
	assert.Equal(t, 1, model.NumVariables())
}

func TestBuild_SplitsMissingProbabilities(t *testing.T) {
	p, err := problem.Parse([]byte(`
master:
  variables: [{name: x}]
  objectives: [{x: 1}]
  coupling: [x]
scenarios:
  - {id: 1, probability: 0.4, q: [1], w: [[1]], h: [1], t: [[1]]}
  - {id: 2, q: [1], w: [[1]], h: [1], t: [[1]]}
  - {id: 3, q: [1], w: [[1]], h: [1], t: [[1]]}
`))
	require.NoError(t, err)

	inst, err := p.Build(config.Defaults())
	require.NoError(t, err)

	root := inst.Root.Node()
	assert.InDelta(t, 0.4, root.Multiplier(1), 1e-12)
	assert.InDelta(t, 0.3, root.Multiplier(2), 1e-12)
	assert.InDelta(t, 0.3, root.Multiplier(3), 1e-12)
}

func TestBuild_Staged(t *testing.T) {
	p, err := problem.Load("testdata/staged.yaml")
	require.NoError(t, err)
	assert.True(t, p.Staged())
	assert.Equal(t, []int{1, 4}, p.ChildIDs())

	inst, err := p.Build(config.Defaults())
	require.NoError(t, err)

	assert.Equal(t, 5, inst.Topology.Len())
	assert.Equal(t, []int{0, 1, 2, 3, 4}, inst.Topology.Subtree(problem.RootID))
	require.Len(t, inst.Children, 2)
	inner, ok := inst.Children[0].(*tree.Inner)
	require.True(t, ok, "scenario 1 has children and becomes an inner node")
	assert.IsType(t, &tree.Leaf{}, inst.Children[1])

	node := inner.Node()
	assert.Equal(t, []int{2, 3}, node.Children)
	assert.InDelta(t, 0.5, node.Multiplier(3), 1e-12, "missing conditional probability takes the remaining share")
	assert.Len(t, inner.Children(), 2)

	link := inst.Topology.Link(2)
	assert.Equal(t, 1, link.Rows)
	assert.Equal(t, 2, link.Cols, "a nested scenario links to its parent's recourse variables")

	assign, err := inst.Assign(3)
	require.NoError(t, err)
	assert.Equal(t, map[int]int{1: 2, 4: 1}, assign)
}

func TestBuild_Lagrangian(t *testing.T) {
	p, err := problem.Load("testdata/sharing.yaml")
	require.NoError(t, err)

	inst, err := p.Build(config.Defaults())
	require.NoError(t, err)

	assert.Equal(t, domain.Maximize, inst.Root.Engine().Sense())
	assert.Nil(t, inst.Heuristic)
	assert.Equal(t, 1, inst.Topology.Link(1).Rows)
}

func TestBuild_InvalidGroups(t *testing.T) {
	p, err := problem.Load("testdata/capacity.yaml")
	require.NoError(t, err)
	p.Groups = [][]int{{1}}

	_, err = p.Build(config.Defaults())
	assert.ErrorIs(t, err, domain.ErrInvalidGroups)
}

func TestBuild_InvalidParams(t *testing.T) {
	p, err := problem.Load("testdata/capacity.yaml")
	require.NoError(t, err)
	params := config.Defaults()
	params.MaxIterations = 0

	_, err = p.Build(params)
	assert.ErrorIs(t, err, config.ErrInvalidParams)
}

func TestInstance_Assign(t *testing.T) {
	p, err := problem.Parse([]byte(`
master:
  variables: [{name: x}]
  objectives: [{x: 1}]
  coupling: [x]
scenarios:
  - {id: 1, q: [1], w: [[1]], h: [1], t: [[1]]}
  - {id: 2, q: [1], w: [[1]], h: [1], t: [[1]], rank: 0}
  - {id: 3, q: [1], w: [[1]], h: [1], t: [[1]]}
  - {id: 4, q: [1], w: [[1]], h: [1], t: [[1]]}
`))
	require.NoError(t, err)
	inst, err := p.Build(config.Defaults())
	require.NoError(t, err)

	t.Run("round robin over workers", func(t *testing.T) {
		assign, err := inst.Assign(3)
		require.NoError(t, err)
		assert.Equal(t, map[int]int{1: 1, 2: 0, 3: 2, 4: 1}, assign)

		local := inst.Local(assign, 1)
		require.Len(t, local, 2)
		assert.Equal(t, 1, local[0].ID())
		assert.Equal(t, 4, local[1].ID())
	})

	t.Run("single rank keeps everything", func(t *testing.T) {
		assign, err := inst.Assign(1)
		require.NoError(t, err)
		for _, r := range assign {
			assert.Equal(t, 0, r)
		}
		assert.Len(t, inst.Local(assign, 0), 4)
	})

	t.Run("pin outside the world", func(t *testing.T) {
		p.Scenarios[1].Rank = new(int)
		*p.Scenarios[1].Rank = 7
		_, err := inst.Assign(3)
		assert.ErrorIs(t, err, domain.ErrRankAssignment)
	})
}
