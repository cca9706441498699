// Package branch decides which experiment-specific subgraph of a
// pipeline is active for a given sample, and validates the sample's
// scalar metadata before any task executes.
package branch

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/me/seqflow/internal/expr"
	"github.com/me/seqflow/pkg/model"
	"github.com/me/seqflow/pkg/pipeline"
)

// Branch tags used by the shipped pipelines. The three experiment
// branches are mutually exclusive; exactly one activates per invocation.
const (
	TagDNA     = "dna" // WGS and WES share a branch
	TagRNASeq  = "rnaseq"
	TagChIPSeq = "chipseq"
)

// Selector validates sample metadata and evaluates branch gates.
type Selector struct {
	evaluator *expr.Evaluator
	logger    *slog.Logger
}

// NewSelector creates a Selector with the given logger.
func NewSelector(logger *slog.Logger) *Selector {
	return &Selector{
		evaluator: expr.NewEvaluator(),
		logger:    logger.With("component", "branch"),
	}
}

// Validate fails fast on sample metadata the pipeline cannot process:
// an experiment outside the enum, a missing companion input for the
// selected mode, or an out-of-set strandedness or encoding value.
// It runs before any task executes.
func (s *Selector) Validate(pl *pipeline.Pipeline, sample *model.Sample) *model.APIError {
	var errs []model.FieldError

	if !sample.Experiment.IsValid() {
		errs = append(errs, model.FieldError{
			Field: "experiment",
			Message: fmt.Sprintf("invalid experiment %q: must be one of %v",
				sample.Experiment, model.Experiments),
		})
	}

	// RNA-Seq requires the feature annotation companion input.
	if sample.Experiment == model.ExperimentRNASeq {
		if gtf, ok := sample.File("gtf"); !ok || gtf.Location == "" {
			errs = append(errs, model.FieldError{
				Field:   "gtf",
				Message: "RNA-Seq requires a feature annotation (GTF) file",
			})
		}
	}

	if err := validateEnum("strandedness", sample.Strandedness, model.StrandednessValues); err != nil {
		errs = append(errs, *err)
	}
	if err := validateEnum("encoding", sample.Encoding, model.EncodingValues); err != nil {
		errs = append(errs, *err)
	}
	if sample.Pairing != "" && !sample.Pairing.IsValid() {
		errs = append(errs, model.FieldError{
			Field:   "pairing",
			Message: fmt.Sprintf("invalid pairing %q", sample.Pairing),
		})
	}

	// Declared input enums from the pipeline document.
	inputs := sample.Inputs()
	for id, param := range pl.Inputs {
		if len(param.Enum) == 0 {
			continue
		}
		val, ok := inputs[id]
		if !ok || val == "" {
			continue
		}
		sv := fmt.Sprintf("%v", val)
		if !contains(param.Enum, sv) {
			errs = append(errs, model.FieldError{
				Field:   id,
				Message: fmt.Sprintf("invalid value %q: must be one of %v", sv, param.Enum),
			})
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return model.NewValidationError("sample validation failed", errs...)
}

// Select evaluates every branch gate once against the sample inputs and
// returns the sorted set of activated branch tags. Gates are evaluated
// exactly once at plan time, never per node.
func (s *Selector) Select(pl *pipeline.Pipeline, sample *model.Sample) ([]string, error) {
	inputs := sample.Inputs()

	var active []string
	for tag, gate := range pl.Branches {
		on, err := s.evaluator.EvaluateBool(gate, inputs)
		if err != nil {
			return nil, fmt.Errorf("branch %q gate: %w", tag, err)
		}
		if on {
			active = append(active, tag)
		}
	}
	sort.Strings(active)

	if err := checkExclusive(active); err != nil {
		return nil, err
	}

	s.logger.Debug("branches selected", "experiment", sample.Experiment, "active", active)
	return active, nil
}

// checkExclusive enforces that at most one of the mutually exclusive
// experiment branches activated.
func checkExclusive(active []string) error {
	exclusive := map[string]bool{TagDNA: true, TagRNASeq: true, TagChIPSeq: true}
	var hits []string
	for _, tag := range active {
		if exclusive[tag] {
			hits = append(hits, tag)
		}
	}
	if len(hits) > 1 {
		return fmt.Errorf("mutually exclusive branches both activated: %v", hits)
	}
	return nil
}

// validateEnum checks membership of a provided-or-inferred value.
// Empty is always legal: it means "infer".
func validateEnum(field, value string, allowed []string) *model.FieldError {
	if value == "" {
		return nil
	}
	if contains(allowed, value) {
		return nil
	}
	return &model.FieldError{
		Field:   field,
		Message: fmt.Sprintf("invalid %s %q: must be one of %v or empty to infer", field, value, allowed),
	}
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
