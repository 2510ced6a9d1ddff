package graph

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aretw0/decomp/internal/tree"
	"github.com/aretw0/decomp/pkg/config"
	"github.com/aretw0/decomp/pkg/domain"
	"github.com/aretw0/decomp/pkg/problem"
)

// Overlay contains run data to visualize on the graph.
type Overlay struct {
	// Ranks colors each node by the rank it runs on.
	Ranks map[int]int
	// Status marks nodes whose master reached a terminal status.
	Status map[int]domain.Status
}

var rankColors = []string{"#e1f5fe", "#fff3e0", "#e8f5e9", "#fce4ec", "#ede7f6", "#f9fbe7"}

// GenerateMermaid produces a Mermaid flowchart of a decomposition forest.
// It applies semantic styling:
// - Root: ((Circle))
// - Inner: [[Subroutine]]
// - Leaf: [Rectangle]
// Edges carry the child's multiplier when it is not 1, and children sharing a master
// slot are drawn inside one subgraph.
func GenerateMermaid(topo *tree.Topology, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, id := range topo.IDs() {
		node, _ := topo.Node(id)
		opener, closer := "[", "]"
		switch node.Role() {
		case domain.RoleRoot:
			opener, closer = "((", "))"
		case domain.RoleInner:
			opener, closer = "[[", "]]"
		}
		label := strconv.Itoa(id)
		if link := topo.Link(id); link.Rows > 0 || link.Cols > 0 {
			label = fmt.Sprintf("%d <br/> %dx%d", id, link.Rows, link.Cols)
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", nodeID(id), opener, label, closer)
	}

	for _, id := range topo.IDs() {
		node, _ := topo.Node(id)
		for slot, group := range node.Groups {
			if len(group) < 2 {
				continue
			}
			fmt.Fprintf(&sb, "    subgraph %s_slot%d [\"slot %d\"]\n", nodeID(id), slot, slot)
			for _, c := range group {
				fmt.Fprintf(&sb, "        %s\n", nodeID(c))
			}
			sb.WriteString("    end\n")
		}
		for _, c := range node.Children {
			arrow := "-->"
			if w := node.Multiplier(c); w != 1 {
				arrow = fmt.Sprintf("-- \"%s\" -->", strconv.FormatFloat(w, 'g', 4, 64))
			}
			fmt.Fprintf(&sb, "    %s %s %s\n", nodeID(id), arrow, nodeID(c))
		}
	}

	if overlay != nil {
		writeOverlay(&sb, overlay)
	}
	return sb.String()
}

func writeOverlay(sb *strings.Builder, overlay *Overlay) {
	sb.WriteString("\n    %% Overlay Styles\n")
	if len(overlay.Ranks) > 0 {
		used := map[int]bool{}
		for _, r := range overlay.Ranks {
			used[r] = true
		}
		for _, r := range sortedKeys(used) {
			fmt.Fprintf(sb, "    classDef rank%d fill:%s,stroke:#01579b,color:#000;\n", r, rankColors[r%len(rankColors)])
		}
		ids := make(map[int]bool, len(overlay.Ranks))
		for id := range overlay.Ranks {
			ids[id] = true
		}
		for _, id := range sortedKeys(ids) {
			fmt.Fprintf(sb, "    class %s rank%d;\n", nodeID(id), overlay.Ranks[id])
		}
	}
	if len(overlay.Status) > 0 {
		sb.WriteString("    classDef done stroke:#2e7d32,stroke-width:4px;\n")
		sb.WriteString("    classDef stopped stroke:#c62828,stroke-width:4px;\n")
		ids := make(map[int]bool, len(overlay.Status))
		for id := range overlay.Status {
			ids[id] = true
		}
		for _, id := range sortedKeys(ids) {
			switch overlay.Status[id] {
			case domain.StatusOptimal:
				fmt.Fprintf(sb, "    class %s done;\n", nodeID(id))
			case domain.StatusNotFinished:
			default:
				fmt.Fprintf(sb, "    class %s stopped;\n", nodeID(id))
			}
		}
	}
}

func sortedKeys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func nodeID(id int) string {
	if id < 0 {
		return "nm" + strconv.Itoa(-id)
	}
	return "n" + strconv.Itoa(id)
}

// ProblemMermaid builds the problem's tree and draws it. With ranks > 1 the nodes are
// coloured by the rank they would run on; an inner node's subtree shares its rank.
func ProblemMermaid(p *problem.Problem, params config.Params, ranks int) (string, error) {
	inst, err := p.Build(params)
	if err != nil {
		return "", err
	}
	var overlay *Overlay
	if ranks > 1 {
		assign, err := inst.Assign(ranks)
		if err != nil {
			return "", err
		}
		overlay = &Overlay{Ranks: make(map[int]int)}
		for child, rank := range assign {
			for _, id := range inst.Topology.Subtree(child) {
				overlay.Ranks[id] = rank
			}
		}
	}
	return GenerateMermaid(inst.Topology, overlay), nil
}
