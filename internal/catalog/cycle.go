package catalog

import (
	"fmt"
	"slices"
	"strings"

	"github.com/saifalharthi/materialize/internal/dataflow"
)

// CycleWarning describes dataflows that depend on each other.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["a", "b", "a"]
	Message string   `json:"message"` // Human-readable description
}

// AnalyzeCycles finds dependency cycles in a set of dataflows, without
// requiring the set to be registrable. Uses of names outside the set are
// ignored.
//
// The algorithm:
//  1. Build the name → uses graph
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or a self-loop as a cycle
//
// Warnings are ordered by the smallest name in each cycle.
func AnalyzeCycles(dataflows []dataflow.Dataflow) []CycleWarning {
	graph := make(dependencyGraph, len(dataflows))
	for _, d := range dataflows {
		graph[d.Name()] = nil
	}
	for _, d := range dataflows {
		for _, use := range d.Uses() {
			if _, ok := graph[use]; ok {
				graph[d.Name()] = append(graph[d.Name()], use)
			}
		}
	}

	warnings := []CycleWarning{}
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			warnings = append(warnings, cycleWarning(scc, graph))
		}
	}
	slices.SortFunc(warnings, func(a, b CycleWarning) int {
		return strings.Compare(slices.Min(a.Path), slices.Min(b.Path))
	})
	return warnings
}

// dependencyGraph maps a dataflow name to the names it uses.
type dependencyGraph map[string][]string

func hasSelfLoop(node string, graph dependencyGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components. Nodes and edges are
// visited in sorted order so the result is deterministic.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		edges := slices.Clone(graph[v])
		slices.Sort(edges)
		for _, w := range edges {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root: pop its component
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

func cycleWarning(scc []string, graph dependencyGraph) CycleWarning {
	if len(scc) == 1 {
		name := scc[0]
		return CycleWarning{
			Path:    []string{name, name},
			Message: fmt.Sprintf("dataflow reads itself: %s → %s", name, name),
		}
	}
	path := cyclePath(scc, graph)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("dependency cycle: %s", strings.Join(path, " → ")),
	}
}

// cyclePath follows edges inside the SCC from its first member until it
// returns to the start.
func cyclePath(scc []string, graph dependencyGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)
	for {
		visited[current] = true

		edges := slices.Clone(graph[current])
		slices.Sort(edges)
		var next string
		for _, w := range edges {
			if members[w] && (!visited[w] || w == start) {
				next = w
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
