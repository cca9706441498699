package parser

import (
	"fmt"
	"sort"
	"strings"

	"github.com/me/seqflow/pkg/pipeline"
)

// DAGResult holds the result of DAG analysis.
type DAGResult struct {
	// Edges maps each step ID to the step IDs it depends on (upstream).
	Edges map[string][]string
	// Order is the topological sort of steps (execution order).
	Order []string
}

// BuildDAG constructs a directed acyclic graph from step source references.
// It uses Kahn's algorithm for topological sort and cycle detection.
//
// Source "markdup/bam" in a step's inputs creates an edge: markdup -> this
// step. Bare sources (pipeline inputs like "experiment") create no edges.
//
// Returns the dependency map and topological order, or an error if a
// cycle exists.
func BuildDAG(pl *pipeline.Pipeline) (*DAGResult, error) {
	stepIDs := make(map[string]bool, len(pl.Steps))
	for id := range pl.Steps {
		stepIDs[id] = true
	}

	// forward[A] = [B, C] means A must complete before B and C.
	// deps[B] = [A] means B depends on A.
	forward := make(map[string][]string, len(pl.Steps))
	deps := make(map[string][]string, len(pl.Steps))
	inDegree := make(map[string]int, len(pl.Steps))

	for id := range pl.Steps {
		inDegree[id] = 0
	}

	// Build edges from step input source references. Fallback sources
	// count: a consumer must wait for its fallback producers even when
	// the primary source is live.
	for stepID, step := range pl.Steps {
		seen := make(map[string]bool)
		for _, si := range step.In {
			for _, source := range append([]string{si.Source}, si.Fallbacks...) {
				if source == "" || !strings.Contains(source, "/") {
					continue
				}
				depID := strings.SplitN(source, "/", 2)[0]
				if depID == stepID {
					return nil, fmt.Errorf("pipeline contains a cycle involving steps: %s", stepID)
				}
				if stepIDs[depID] && !seen[depID] {
					seen[depID] = true
					forward[depID] = append(forward[depID], stepID)
					deps[stepID] = append(deps[stepID], depID)
					inDegree[stepID]++
				}
			}
		}
	}

	// Sort dependency lists for deterministic output.
	for id := range deps {
		sort.Strings(deps[id])
	}

	// Kahn's algorithm: BFS topological sort.
	var queue []string
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	var order []string
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		successors := forward[node]
		sort.Strings(successors)
		for _, succ := range successors {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
		sort.Strings(queue)
	}

	if len(order) != len(stepIDs) {
		var cycleNodes []string
		for id, deg := range inDegree {
			if deg > 0 {
				cycleNodes = append(cycleNodes, id)
			}
		}
		sort.Strings(cycleNodes)
		return nil, fmt.Errorf("pipeline contains a cycle involving steps: %s",
			strings.Join(cycleNodes, ", "))
	}

	return &DAGResult{
		Edges: deps,
		Order: order,
	}, nil
}

// Dependencies returns the upstream step IDs of the given step, sorted.
func (d *DAGResult) Dependencies(stepID string) []string {
	return d.Edges[stepID]
}

// Dependents computes the reverse adjacency: step ID -> steps that
// consume its outputs.
func (d *DAGResult) Dependents() map[string][]string {
	rev := make(map[string][]string, len(d.Edges))
	for stepID, deps := range d.Edges {
		for _, dep := range deps {
			rev[dep] = append(rev[dep], stepID)
		}
	}
	for id := range rev {
		sort.Strings(rev[id])
	}
	return rev
}
