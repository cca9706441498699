// Package engine turns a validated pipeline plus one sample into an
// invocation: it selects the active branch, resolves
// provided-or-inferred values, plans the task DAG with gated-off steps
// skipped up front, and executes the remaining tasks concurrently with
// fail-fast semantics and fixed-count retries.
package engine

import (
	"context"
	"log/slog"

	"github.com/me/seqflow/internal/branch"
	"github.com/me/seqflow/internal/executor"
	"github.com/me/seqflow/internal/expr"
	"github.com/me/seqflow/internal/infer"
	"github.com/me/seqflow/internal/parser"
	"github.com/me/seqflow/pkg/model"
	"github.com/me/seqflow/pkg/pipeline"
)

// Recorder persists invocation and task state transitions.
// A nil Recorder disables persistence.
type Recorder interface {
	RecordInvocation(ctx context.Context, inv *model.Invocation) error
	RecordTask(ctx context.Context, invocationID string, task *model.Task) error
}

// ResolverBinding attaches a provided-or-inferred resolver to the
// branches that need its value. An empty Branches list applies always.
type ResolverBinding struct {
	Resolver *infer.Resolver
	Branches []string
}

// Config configures an Engine.
type Config struct {
	Logger   *slog.Logger
	Registry *executor.Registry

	// MaxJobs bounds concurrent task executions. <= 0 means unlimited.
	MaxJobs int

	// Resolvers resolve provided-or-inferred sample properties at plan
	// time, before any pipeline task is created.
	Resolvers []ResolverBinding

	Recorder Recorder
}

// Engine plans and runs pipeline invocations.
type Engine struct {
	logger    *slog.Logger
	registry  *executor.Registry
	selector  *branch.Selector
	validator *parser.Validator
	evaluator *expr.Evaluator
	resolvers []ResolverBinding
	recorder  Recorder
	sem       *Semaphore
}

// New creates an Engine from the given configuration.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		logger:    logger.With("component", "engine"),
		registry:  cfg.Registry,
		selector:  branch.NewSelector(logger),
		validator: parser.NewValidator(logger),
		evaluator: expr.NewEvaluator(),
		resolvers: cfg.Resolvers,
		recorder:  cfg.Recorder,
		sem:       NewSemaphore(cfg.MaxJobs),
	}
}

// Execute plans and runs the pipeline against the sample. All
// validation happens before the first task executes; a validation
// failure returns an error and a nil invocation.
func (e *Engine) Execute(ctx context.Context, pl *pipeline.Pipeline, sample *model.Sample) (*model.Invocation, error) {
	inv, err := e.Plan(ctx, pl, sample)
	if err != nil {
		return nil, err
	}
	if err := e.Run(ctx, pl, inv); err != nil {
		return inv, err
	}
	return inv, nil
}

func (e *Engine) recordInvocation(ctx context.Context, inv *model.Invocation) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordInvocation(ctx, inv); err != nil {
		e.logger.Error("record invocation", "invocation_id", inv.ID, "error", err)
	}
}

func (e *Engine) recordTask(ctx context.Context, invocationID string, task *model.Task) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordTask(ctx, invocationID, task); err != nil {
		e.logger.Error("record task", "task_id", task.ID, "error", err)
	}
}
