package stager

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/me/seqflow/pkg/model"
)

// Stager handles staging files in and out of task working directories.
type Stager interface {
	// StageIn downloads/copies a file from location to destPath.
	StageIn(ctx context.Context, location string, destPath string) error

	// StageOut uploads/copies a file from srcPath to the configured
	// destination and returns the new location URI.
	StageOut(ctx context.Context, srcPath string, invocationID string) (location string, err error)
}

// FileStager stages files using local filesystem operations.
// StageOut behavior depends on the mode:
//   - "local": returns a file:// URI pointing to the file in-place
//   - "file:///shared/path": copies to the shared path
type FileStager struct {
	mode string
}

// NewFileStager creates a FileStager with the given stage-out mode.
func NewFileStager(mode string) *FileStager {
	return &FileStager{mode: mode}
}

// StageIn copies a file from a file:// location to destPath.
func (s *FileStager) StageIn(_ context.Context, location string, destPath string) error {
	scheme, path := ParseScheme(location)
	switch scheme {
	case SchemeFile, "":
		return copyFile(path, destPath)
	default:
		return fmt.Errorf("file stager: unsupported scheme %q for stage-in", scheme)
	}
}

// StageOut returns a file:// URI for the given source path.
func (s *FileStager) StageOut(_ context.Context, srcPath string, invocationID string) (string, error) {
	if s.mode == "local" || s.mode == "" {
		absPath, err := filepath.Abs(srcPath)
		if err != nil {
			return "", fmt.Errorf("file stager: abs path: %w", err)
		}
		return BuildLocation(SchemeFile, absPath), nil
	}

	scheme, basePath := ParseScheme(s.mode)
	if scheme != SchemeFile {
		return "", fmt.Errorf("file stager: unsupported stage-out scheme %q", scheme)
	}

	destDir := filepath.Join(basePath, invocationID)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("file stager: mkdir %s: %w", destDir, err)
	}

	destPath := filepath.Join(destDir, filepath.Base(srcPath))
	if err := copyFile(srcPath, destPath); err != nil {
		return "", fmt.Errorf("file stager: copy to shared: %w", err)
	}
	return BuildLocation(SchemeFile, destPath), nil
}

// CompositeStager routes staging operations to scheme-specific handlers.
type CompositeStager struct {
	handlers map[string]Stager
	fallback Stager
}

// NewCompositeStager creates a CompositeStager with scheme handlers.
func NewCompositeStager(handlers map[string]Stager, fallback Stager) *CompositeStager {
	return &CompositeStager{handlers: handlers, fallback: fallback}
}

// StageIn routes to the handler registered for the location's scheme.
func (s *CompositeStager) StageIn(ctx context.Context, location string, destPath string) error {
	scheme, _ := ParseScheme(location)
	if handler, ok := s.handlers[scheme]; ok {
		return handler.StageIn(ctx, location, destPath)
	}
	if s.fallback != nil {
		return s.fallback.StageIn(ctx, location, destPath)
	}
	return fmt.Errorf("no stager registered for scheme %q", scheme)
}

// StageOut uses the fallback stager.
func (s *CompositeStager) StageOut(ctx context.Context, srcPath string, invocationID string) (string, error) {
	if s.fallback != nil {
		return s.fallback.StageOut(ctx, srcPath, invocationID)
	}
	return "", fmt.Errorf("no fallback stager configured for stage-out")
}

// StageSampleInputs downloads every remote sample file into dir and
// rewrites the sample's file references to the local copies. Local
// files are left in place.
func StageSampleInputs(ctx context.Context, s Stager, sample *model.Sample, dir string) error {
	for name, ref := range sample.Files {
		scheme, path := ParseScheme(ref.Location)
		if scheme == SchemeFile || scheme == "" {
			// Normalize to a bare path for command substitution.
			if scheme == SchemeFile {
				ref.Location = path
				sample.Files[name] = ref
			}
			continue
		}

		destPath := filepath.Join(dir, "inputs", filepath.Base(path))
		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return fmt.Errorf("stage input %s: %w", name, err)
		}
		if err := s.StageIn(ctx, ref.Location, destPath); err != nil {
			return fmt.Errorf("stage input %s: %w", name, err)
		}
		ref.Location = destPath
		sample.Files[name] = ref
	}
	return nil
}

// copyFile copies src to dst, creating parent directories as needed.
func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
