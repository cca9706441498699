package parser

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testParser() *Parser {
	return New(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
}

func shippedPipeline(t *testing.T) []byte {
	t.Helper()
	path := filepath.Join("..", "..", "pipelines", "sample-qc.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("load %q: %v", path, err)
	}
	return data
}

func TestParse_ShippedPipeline(t *testing.T) {
	pl, err := testParser().Parse(shippedPipeline(t))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if pl.Name != "sample-qc" {
		t.Errorf("Name = %q, want sample-qc", pl.Name)
	}
	if len(pl.Branches) != 3 {
		t.Errorf("branches = %d, want 3", len(pl.Branches))
	}

	reads, ok := pl.Inputs["reads"]
	if !ok {
		t.Fatal("missing input reads")
	}
	if reads.Type != "File" {
		t.Errorf("reads.Type = %q, want File", reads.Type)
	}

	exp, ok := pl.Inputs["experiment"]
	if !ok {
		t.Fatal("missing input experiment")
	}
	if len(exp.Enum) != 4 {
		t.Errorf("experiment enum = %v, want 4 values", exp.Enum)
	}

	depth := pl.Inputs["subsample_depth"]
	if depth.Default != 0 {
		t.Errorf("subsample_depth default = %v, want 0", depth.Default)
	}
}

func TestParse_ShippedTasks(t *testing.T) {
	pl, err := testParser().Parse(shippedPipeline(t))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	md5, ok := pl.Tasks["md5"]
	if !ok {
		t.Fatal("missing task md5")
	}
	if md5.MaxRetries != 2 {
		t.Errorf("md5.MaxRetries = %d, want 2", md5.MaxRetries)
	}
	if len(md5.Command) == 0 {
		t.Error("md5 has empty command")
	}

	fastqc := pl.Tasks["fastqc"]
	if fastqc.Resources.MemoryGB != 4 {
		t.Errorf("fastqc memory = %d GB, want 4", fastqc.Resources.MemoryGB)
	}
	if fastqc.Resources.Cores != 2 {
		t.Errorf("fastqc cores = %d, want 2", fastqc.Resources.Cores)
	}
	if fastqc.Image == "" {
		t.Error("fastqc has no image")
	}

	// Shorthand output form: glob string only.
	out, ok := fastqc.Outputs["report"]
	if !ok {
		t.Fatal("fastqc missing output report")
	}
	if out.Glob != "*_fastqc.zip" {
		t.Errorf("report glob = %q, want *_fastqc.zip", out.Glob)
	}
	if out.Type != "File" {
		t.Errorf("report type = %q, want File", out.Type)
	}
}

func TestParse_ShippedSteps(t *testing.T) {
	pl, err := testParser().Parse(shippedPipeline(t))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	markdup, ok := pl.Steps["markdup"]
	if !ok {
		t.Fatal("missing step markdup")
	}
	if markdup.Branch != "dna" {
		t.Errorf("markdup branch = %q, want dna", markdup.Branch)
	}
	if markdup.When == "" {
		t.Error("markdup has no gate")
	}
	if markdup.In["bam"].Source != "align_dna/bam" {
		t.Errorf("markdup bam source = %q, want align_dna/bam", markdup.In["bam"].Source)
	}

	checksum, ok := pl.Outputs["checksum"]
	if !ok {
		t.Fatal("missing output checksum")
	}
	if checksum.Optional {
		t.Error("checksum should be required")
	}
	if !pl.Outputs["alignment_dna"].Optional {
		t.Error("alignment_dna should be optional")
	}
}

func TestParse_Shorthand(t *testing.T) {
	doc := `
name: mini
inputs:
  reads: File
tasks:
  t1:
    command: [cat, "{reads}"]
    inputs:
      reads: File
    outputs:
      out: "*.txt"
steps:
  s1:
    task: t1
    in:
      reads: reads
    out: [out]
outputs:
  result: s1/out
`
	pl, err := testParser().Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if pl.Inputs["reads"].Type != "File" {
		t.Errorf("reads.Type = %q, want File", pl.Inputs["reads"].Type)
	}
	if pl.Outputs["result"].Source != "s1/out" {
		t.Errorf("result source = %q, want s1/out", pl.Outputs["result"].Source)
	}
}

func TestParse_MissingName(t *testing.T) {
	if _, err := testParser().Parse([]byte("doc: no name here")); err == nil {
		t.Fatal("expected error for missing name")
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	if _, err := testParser().Parse([]byte("{{not yaml")); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestParse_TaskWithoutCommand(t *testing.T) {
	doc := `
name: mini
tasks:
  t1:
    inputs:
      reads: File
`
	if _, err := testParser().Parse([]byte(doc)); err == nil {
		t.Fatal("expected error for task without command")
	}
}

func TestParse_ShippedStepFallbacks(t *testing.T) {
	pl, err := testParser().Parse(shippedPipeline(t))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	// Single-string form.
	conv := pl.Steps["convert_quality"].In["reads"]
	if conv.Source != "subsample/reads_sub" {
		t.Errorf("convert_quality reads source = %q", conv.Source)
	}
	if len(conv.Fallbacks) != 1 || conv.Fallbacks[0] != "reads" {
		t.Errorf("convert_quality fallbacks = %v, want [reads]", conv.Fallbacks)
	}

	// List form, most-processed first.
	align := pl.Steps["align_dna"].In["reads"]
	if align.Source != "cleanse/reads_clean" {
		t.Errorf("align_dna reads source = %q", align.Source)
	}
	want := []string{"convert_quality/reads_conv", "subsample/reads_sub", "reads"}
	if len(align.Fallbacks) != len(want) {
		t.Fatalf("align_dna fallbacks = %v, want %v", align.Fallbacks, want)
	}
	for i := range want {
		if align.Fallbacks[i] != want[i] {
			t.Errorf("fallback[%d] = %q, want %q", i, align.Fallbacks[i], want[i])
		}
	}
}
