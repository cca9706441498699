package parser

import (
	"strings"
	"testing"

	"github.com/me/seqflow/pkg/pipeline"
)

func makePipeline(steps map[string]pipeline.Step) *pipeline.Pipeline {
	return &pipeline.Pipeline{Name: "test", Steps: steps}
}

func TestBuildDAG_Linear(t *testing.T) {
	pl := makePipeline(map[string]pipeline.Step{
		"align": {
			Task: "align",
			In:   map[string]pipeline.StepInput{"reads": {Source: "reads"}},
			Out:  []string{"bam"},
		},
		"count": {
			Task: "count",
			In:   map[string]pipeline.StepInput{"bam": {Source: "align/bam"}},
			Out:  []string{"counts"},
		},
	})

	dag, err := BuildDAG(pl)
	if err != nil {
		t.Fatalf("BuildDAG: %v", err)
	}
	if len(dag.Order) != 2 {
		t.Fatalf("Order length = %d, want 2", len(dag.Order))
	}
	if dag.Order[0] != "align" || dag.Order[1] != "count" {
		t.Errorf("Order = %v, want [align count]", dag.Order)
	}
	if deps := dag.Edges["count"]; len(deps) != 1 || deps[0] != "align" {
		t.Errorf("count deps = %v, want [align]", deps)
	}
}

func TestBuildDAG_IndependentStepsSorted(t *testing.T) {
	pl := makePipeline(map[string]pipeline.Step{
		"c": {Task: "t", In: map[string]pipeline.StepInput{"x": {Source: "reads"}}},
		"a": {Task: "t", In: map[string]pipeline.StepInput{"x": {Source: "reads"}}},
		"b": {Task: "t", In: map[string]pipeline.StepInput{"x": {Source: "reads"}}},
	})

	dag, err := BuildDAG(pl)
	if err != nil {
		t.Fatalf("BuildDAG: %v", err)
	}
	// Ties break alphabetically so planning is deterministic.
	want := []string{"a", "b", "c"}
	for i, id := range want {
		if dag.Order[i] != id {
			t.Fatalf("Order = %v, want %v", dag.Order, want)
		}
	}
}

func TestBuildDAG_Diamond(t *testing.T) {
	pl := makePipeline(map[string]pipeline.Step{
		"src": {Task: "t", Out: []string{"f"}},
		"left": {Task: "t",
			In:  map[string]pipeline.StepInput{"x": {Source: "src/f"}},
			Out: []string{"f"}},
		"right": {Task: "t",
			In:  map[string]pipeline.StepInput{"x": {Source: "src/f"}},
			Out: []string{"f"}},
		"sink": {Task: "t",
			In: map[string]pipeline.StepInput{
				"l": {Source: "left/f"},
				"r": {Source: "right/f"},
			}},
	})

	dag, err := BuildDAG(pl)
	if err != nil {
		t.Fatalf("BuildDAG: %v", err)
	}
	pos := make(map[string]int, len(dag.Order))
	for i, id := range dag.Order {
		pos[id] = i
	}
	if pos["src"] > pos["left"] || pos["src"] > pos["right"] {
		t.Errorf("src must precede left and right: %v", dag.Order)
	}
	if pos["sink"] < pos["left"] || pos["sink"] < pos["right"] {
		t.Errorf("sink must follow left and right: %v", dag.Order)
	}
	if deps := dag.Edges["sink"]; len(deps) != 2 {
		t.Errorf("sink deps = %v, want 2", deps)
	}
}

func TestBuildDAG_Cycle(t *testing.T) {
	pl := makePipeline(map[string]pipeline.Step{
		"a": {Task: "t", In: map[string]pipeline.StepInput{"x": {Source: "b/out"}}, Out: []string{"out"}},
		"b": {Task: "t", In: map[string]pipeline.StepInput{"x": {Source: "a/out"}}, Out: []string{"out"}},
	})

	_, err := BuildDAG(pl)
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if !strings.Contains(err.Error(), "cycle") {
		t.Errorf("error = %q, want mention of cycle", err)
	}
}

func TestBuildDAG_SelfReference(t *testing.T) {
	pl := makePipeline(map[string]pipeline.Step{
		"a": {Task: "t", In: map[string]pipeline.StepInput{"x": {Source: "a/out"}}, Out: []string{"out"}},
	})

	if _, err := BuildDAG(pl); err == nil {
		t.Fatal("expected error for self-referencing step")
	}
}

func TestBuildDAG_ShippedPipeline(t *testing.T) {
	pl, err := testParser().Parse(shippedPipeline(t))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	dag, err := BuildDAG(pl)
	if err != nil {
		t.Fatalf("BuildDAG: %v", err)
	}
	if len(dag.Order) != len(pl.Steps) {
		t.Fatalf("Order covers %d steps, want %d", len(dag.Order), len(pl.Steps))
	}

	pos := make(map[string]int, len(dag.Order))
	for i, id := range dag.Order {
		pos[id] = i
	}
	if pos["align_dna"] > pos["markdup"] {
		t.Errorf("align_dna must precede markdup: %v", dag.Order)
	}
	if pos["align_rna"] > pos["count"] {
		t.Errorf("align_rna must precede count: %v", dag.Order)
	}
	if pos["align_chip"] > pos["fingerprint"] {
		t.Errorf("align_chip must precede fingerprint: %v", dag.Order)
	}
}

func TestBuildDAG_FallbackEdges(t *testing.T) {
	dag, err := BuildDAG(makePipeline(map[string]pipeline.Step{
		"trim": {In: map[string]pipeline.StepInput{"reads": {Source: "reads"}}},
		"align": {In: map[string]pipeline.StepInput{
			"reads": {Source: "trim/out", Fallbacks: []string{"reads"}},
		}},
		"cover": {In: map[string]pipeline.StepInput{
			"bam": {Source: "dedup/out", Fallbacks: []string{"align/out"}},
		}},
		"dedup": {In: map[string]pipeline.StepInput{"bam": {Source: "align/out"}}},
	}))
	if err != nil {
		t.Fatalf("BuildDAG: %v", err)
	}

	// The fallback producer is an edge too: cover waits on both dedup
	// and align.
	deps := dag.Dependencies("cover")
	if len(deps) != 2 || deps[0] != "align" || deps[1] != "dedup" {
		t.Errorf("cover deps = %v, want [align dedup]", deps)
	}

	pos := make(map[string]int, len(dag.Order))
	for i, id := range dag.Order {
		pos[id] = i
	}
	if pos["cover"] < pos["dedup"] || pos["cover"] < pos["align"] {
		t.Errorf("order %v: cover must come after align and dedup", dag.Order)
	}
}
