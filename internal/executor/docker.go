package executor

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/me/seqflow/pkg/model"
)

// CommandRunner abstracts command execution for testing.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr string, exitCode int, err error)
}

// osCommandRunner is the real implementation using os/exec.
type osCommandRunner struct{}

func (r *osCommandRunner) Run(ctx context.Context, name string, args ...string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	runErr := cmd.Run()

	stdout := stdoutBuf.String()
	stderr := stderrBuf.String()

	switch e := runErr.(type) {
	case nil:
		return stdout, stderr, 0, nil
	case *exec.ExitError:
		return stdout, stderr, e.ExitCode(), nil
	default:
		return stdout, stderr, -1, runErr
	}
}

// DockerExecutor runs tasks inside Docker containers using the Docker CLI.
type DockerExecutor struct {
	logger  *slog.Logger
	workDir string
	runner  CommandRunner
}

// NewDockerExecutor creates a DockerExecutor rooted at workDir.
// If workDir is empty, os.TempDir() is used.
func NewDockerExecutor(workDir string, logger *slog.Logger) *DockerExecutor {
	return newDockerExecutorWithRunner(workDir, logger, &osCommandRunner{})
}

// newDockerExecutorWithRunner is used by tests to inject a mock CommandRunner.
func newDockerExecutorWithRunner(workDir string, logger *slog.Logger, runner CommandRunner) *DockerExecutor {
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &DockerExecutor{
		workDir: workDir,
		logger:  logger.With("component", "docker-executor"),
		runner:  runner,
	}
}

// Type returns model.ExecutorTypeContainer.
func (e *DockerExecutor) Type() model.ExecutorType {
	return model.ExecutorTypeContainer
}

// Run executes the task synchronously inside a Docker container.
// The task work directory is bind-mounted at /work so output globs
// resolve on the host after the container exits.
func (e *DockerExecutor) Run(ctx context.Context, task *model.Task) error {
	if task.Image == "" {
		return fmt.Errorf("task %s: container image is missing", task.ID)
	}
	if len(task.Command) == 0 {
		return fmt.Errorf("task %s: command is empty", task.ID)
	}

	taskDir := filepath.Join(e.workDir, task.ID)
	if err := os.MkdirAll(taskDir, 0o755); err != nil {
		return fmt.Errorf("task %s: create work dir: %w", task.ID, err)
	}
	task.WorkDir = taskDir

	containerName := "seqflow-" + task.ID
	args := []string{
		"run", "--rm",
		"--name", containerName,
		"-v", taskDir + ":/work",
		"-w", "/work",
	}
	if task.Resources.MemoryGB > 0 {
		args = append(args, "--memory", strconv.Itoa(task.Resources.MemoryGB)+"g")
	}
	if task.Resources.Cores > 0 {
		args = append(args, "--cpus", strconv.Itoa(task.Resources.Cores))
	}
	args = append(args, task.Image)
	args = append(args, task.Command...)

	stdout, stderr, exitCode, runErr := e.runner.Run(ctx, "docker", args...)
	if runErr != nil {
		return fmt.Errorf("task %s: docker run: %w", task.ID, runErr)
	}

	task.Stdout = stdout
	task.Stderr = stderr
	task.ExitCode = &exitCode

	collectGlobOutputs(task, taskDir)

	e.logger.Debug("docker task executed",
		"task_id", task.ID,
		"image", task.Image,
		"command", task.Command,
		"exit_code", exitCode,
	)

	return nil
}
