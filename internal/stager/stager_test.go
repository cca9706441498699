package stager

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/me/seqflow/pkg/model"
)

func TestParseScheme(t *testing.T) {
	tests := []struct {
		input      string
		wantScheme string
		wantPath   string
	}{
		{"file:///data/s1.fastq.gz", "file", "/data/s1.fastq.gz"},
		{"s3://bucket/reads/s1.fastq.gz", "s3", "bucket/reads/s1.fastq.gz"},
		{"/data/s1.fastq.gz", "", "/data/s1.fastq.gz"},
		{"S3://bucket/key", "s3", "bucket/key"},
	}
	for _, tt := range tests {
		scheme, path := ParseScheme(tt.input)
		if scheme != tt.wantScheme || path != tt.wantPath {
			t.Errorf("ParseScheme(%q) = (%q, %q), want (%q, %q)",
				tt.input, scheme, path, tt.wantScheme, tt.wantPath)
		}
	}
}

func TestSplitS3URI(t *testing.T) {
	bucket, key, err := splitS3URI("s3://genomics-data/samples/s1.fastq.gz")
	if err != nil {
		t.Fatalf("splitS3URI returned error: %v", err)
	}
	if bucket != "genomics-data" || key != "samples/s1.fastq.gz" {
		t.Errorf("got (%q, %q)", bucket, key)
	}

	if _, _, err := splitS3URI("file:///x"); err == nil {
		t.Error("expected error for non-s3 URI")
	}
	if _, _, err := splitS3URI("s3://"); err == nil {
		t.Error("expected error for missing bucket")
	}
}

func TestFileStager_StageIn(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	if err := os.WriteFile(src, []byte("reads"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewFileStager("local")
	dest := filepath.Join(dir, "work", "dst.txt")
	if err := s.StageIn(context.Background(), "file://"+src, dest); err != nil {
		t.Fatalf("StageIn returned error: %v", err)
	}
	content, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read staged file: %v", err)
	}
	if string(content) != "reads" {
		t.Errorf("staged content = %q, want %q", content, "reads")
	}

	if err := s.StageIn(context.Background(), "s3://bucket/key", dest); err == nil {
		t.Error("file stager must reject s3 stage-in")
	}
}

func TestFileStager_StageOutLocal(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "out.bam")
	if err := os.WriteFile(src, []byte("bam"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewFileStager("local")
	loc, err := s.StageOut(context.Background(), src, "inv-1")
	if err != nil {
		t.Fatalf("StageOut returned error: %v", err)
	}
	if !strings.HasPrefix(loc, "file://") || !strings.HasSuffix(loc, "out.bam") {
		t.Errorf("location = %q, want file:// URI to out.bam", loc)
	}
}

func TestFileStager_StageOutShared(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "out.bam")
	if err := os.WriteFile(src, []byte("bam"), 0o644); err != nil {
		t.Fatal(err)
	}
	shared := filepath.Join(dir, "shared")

	s := NewFileStager("file://" + shared)
	loc, err := s.StageOut(context.Background(), src, "inv-1")
	if err != nil {
		t.Fatalf("StageOut returned error: %v", err)
	}
	want := filepath.Join(shared, "inv-1", "out.bam")
	if loc != "file://"+want {
		t.Errorf("location = %q, want %q", loc, "file://"+want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("staged copy missing: %v", err)
	}
}

// recordingStager counts stage-in calls per scheme routing test.
type recordingStager struct {
	calls int
}

func (r *recordingStager) StageIn(_ context.Context, _, destPath string) error {
	r.calls++
	return os.WriteFile(destPath, []byte("remote"), 0o644)
}

func (r *recordingStager) StageOut(_ context.Context, srcPath, _ string) (string, error) {
	return "s3://bucket/" + filepath.Base(srcPath), nil
}

func TestCompositeStager_Routes(t *testing.T) {
	s3like := &recordingStager{}
	comp := NewCompositeStager(map[string]Stager{SchemeS3: s3like}, NewFileStager("local"))

	dir := t.TempDir()
	dest := filepath.Join(dir, "staged")
	if err := comp.StageIn(context.Background(), "s3://bucket/key", dest); err != nil {
		t.Fatalf("StageIn returned error: %v", err)
	}
	if s3like.calls != 1 {
		t.Errorf("s3 handler calls = %d, want 1", s3like.calls)
	}

	src := filepath.Join(dir, "local.txt")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := comp.StageIn(context.Background(), src, filepath.Join(dir, "copy.txt")); err != nil {
		t.Fatalf("fallback StageIn returned error: %v", err)
	}
	if s3like.calls != 1 {
		t.Error("local stage-in must not hit the s3 handler")
	}
}

func TestStageSampleInputs(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "local.fastq.gz")
	if err := os.WriteFile(local, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	s3like := &recordingStager{}
	comp := NewCompositeStager(map[string]Stager{SchemeS3: s3like}, NewFileStager("local"))

	sample := &model.Sample{
		Name:       "s1",
		Experiment: model.ExperimentWGS,
		Files: map[string]model.FileRef{
			"reads":  {Location: "s3://bucket/reads/s1.fastq.gz", Kind: "FASTQ"},
			"genome": {Location: local, Kind: "FASTA"},
		},
	}

	if err := StageSampleInputs(context.Background(), comp, sample, dir); err != nil {
		t.Fatalf("StageSampleInputs returned error: %v", err)
	}

	reads := sample.Files["reads"].Location
	if strings.HasPrefix(reads, "s3://") {
		t.Errorf("reads location %q not rewritten to local copy", reads)
	}
	if _, err := os.Stat(reads); err != nil {
		t.Errorf("staged reads missing: %v", err)
	}
	if sample.Files["genome"].Location != local {
		t.Errorf("local file must stay in place, got %q", sample.Files["genome"].Location)
	}
	if s3like.calls != 1 {
		t.Errorf("s3 handler calls = %d, want 1", s3like.calls)
	}
}
