package executor

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/me/seqflow/pkg/model"
)

// LocalExecutor runs tasks as local OS processes.
type LocalExecutor struct {
	logger  *slog.Logger
	workDir string
}

// NewLocalExecutor creates a LocalExecutor rooted at workDir.
// If workDir is empty, os.TempDir() is used.
func NewLocalExecutor(workDir string, logger *slog.Logger) *LocalExecutor {
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &LocalExecutor{
		workDir: workDir,
		logger:  logger.With("component", "local-executor"),
	}
}

// Type returns model.ExecutorTypeLocal.
func (e *LocalExecutor) Type() model.ExecutorType {
	return model.ExecutorTypeLocal
}

// Run executes the task command in a task-private working directory.
func (e *LocalExecutor) Run(ctx context.Context, task *model.Task) error {
	if len(task.Command) == 0 {
		return fmt.Errorf("task %s: command is empty", task.ID)
	}

	taskDir := filepath.Join(e.workDir, task.ID)
	if err := os.MkdirAll(taskDir, 0o755); err != nil {
		return fmt.Errorf("task %s: create work dir: %w", task.ID, err)
	}
	task.WorkDir = taskDir

	cmd := exec.CommandContext(ctx, task.Command[0], task.Command[1:]...)
	cmd.Dir = taskDir

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	runErr := cmd.Run()

	task.Stdout = stdoutBuf.String()
	task.Stderr = stderrBuf.String()

	var exitCode int
	switch err := runErr.(type) {
	case nil:
		exitCode = 0
	case *exec.ExitError:
		exitCode = err.ExitCode()
	default:
		// Non-exit errors (e.g. binary not found) are returned directly.
		return fmt.Errorf("task %s: run command: %w", task.ID, runErr)
	}
	task.ExitCode = &exitCode

	collectGlobOutputs(task, taskDir)

	e.logger.Debug("task executed",
		"task_id", task.ID,
		"command", task.Command,
		"exit_code", exitCode,
	)

	return nil
}

// collectGlobOutputs locates declared outputs in the task directory
// using the glob patterns recorded on the task.
func collectGlobOutputs(task *model.Task, taskDir string) {
	if len(task.OutputGlobs) == 0 {
		return
	}
	if task.Outputs == nil {
		task.Outputs = make(map[string]any)
	}
	for outputID, pattern := range task.OutputGlobs {
		matches, err := filepath.Glob(filepath.Join(taskDir, pattern))
		if err != nil {
			continue
		}
		if len(matches) == 1 {
			task.Outputs[outputID] = matches[0]
		} else if len(matches) > 1 {
			task.Outputs[outputID] = matches
		}
	}
}
