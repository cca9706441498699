package infer

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/me/seqflow/internal/executor"
	"github.com/me/seqflow/pkg/model"
)

// CommandInference binds an inference task to an external command
// line. Placeholders such as {reads} are rendered from the sample's
// files and scalars before the command runs; stdout is the raw
// inference result.
func CommandInference(argv ...string) InferenceFunc {
	return func(ctx context.Context, sample *model.Sample) (string, error) {
		rendered, err := executor.RenderCommand(argv, sample.Inputs())
		if err != nil {
			return "", fmt.Errorf("render inference command: %w", err)
		}
		if len(rendered) == 0 {
			return "", fmt.Errorf("empty inference command")
		}

		var stdout, stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, rendered[0], rendered[1:]...)
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return "", fmt.Errorf("run %s: %w (stderr: %s)",
				rendered[0], err, bytes.TrimSpace(stderr.Bytes()))
		}
		return stdout.String(), nil
	}
}
