// Package infer implements the provided-or-inferred value pattern: a
// sample property (strandedness, quality encoding) may be supplied
// explicitly or left empty, in which case an external inference task is
// run and its single-line text result is used instead. The same
// resolver serves both properties, parametrized by the allowed value
// set and the inference task binding.
package infer

import (
	"context"
	"fmt"
	"strings"

	"github.com/me/seqflow/pkg/model"
)

// Source records how a value was resolved.
type Source string

const (
	SourceProvided Source = "provided"
	SourceInferred Source = "inferred"
)

// Resolution is the outcome of resolving one provided-or-inferred value.
type Resolution struct {
	Value  string
	Source Source
}

// InferenceFunc runs the bound inference task against the sample and
// returns its raw single-line text output.
type InferenceFunc func(ctx context.Context, sample *model.Sample) (string, error)

// Resolver resolves one provided-or-inferred field.
type Resolver struct {
	// Field names the property, for diagnostics.
	Field string
	// Allowed is the enumerated set of legal non-empty values.
	Allowed []string
	// Infer is the inference task binding, invoked only when the
	// provided value is empty.
	Infer InferenceFunc
}

// NewResolver builds a resolver for the given field and allowed set.
func NewResolver(field string, allowed []string, infer InferenceFunc) *Resolver {
	return &Resolver{Field: field, Allowed: allowed, Infer: infer}
}

// Resolve applies the provided-or-inferred contract:
//
//   - non-empty member of the allowed set: used verbatim, inference
//     ignored for decision purposes;
//   - non-empty non-member: validation error (callers surface this
//     before task execution via branch.Selector; this path guards
//     direct use);
//   - empty: the inference task runs and its single-line output is
//     parsed, trimmed, and checked against the allowed set.
func (r *Resolver) Resolve(ctx context.Context, sample *model.Sample, provided string) (Resolution, error) {
	if provided != "" {
		if !r.allowed(provided) {
			return Resolution{}, fmt.Errorf("invalid %s %q: must be one of %v or empty to infer",
				r.Field, provided, r.Allowed)
		}
		return Resolution{Value: provided, Source: SourceProvided}, nil
	}

	raw, err := r.Infer(ctx, sample)
	if err != nil {
		return Resolution{}, fmt.Errorf("infer %s: %w", r.Field, err)
	}

	value, err := ParseSingleLine(raw)
	if err != nil {
		return Resolution{}, fmt.Errorf("infer %s: %w", r.Field, err)
	}
	if !r.allowed(value) {
		return Resolution{}, fmt.Errorf("infer %s: task produced %q, not in %v",
			r.Field, value, r.Allowed)
	}

	return Resolution{Value: value, Source: SourceInferred}, nil
}

func (r *Resolver) allowed(v string) bool {
	for _, a := range r.Allowed {
		if a == v {
			return true
		}
	}
	return false
}

// ParseSingleLine extracts the single-line text result of an inference
// task. Trailing newlines are tolerated; embedded content lines are not.
func ParseSingleLine(raw string) (string, error) {
	trimmed := strings.TrimRight(raw, "\r\n")
	if trimmed == "" {
		return "", fmt.Errorf("empty result")
	}
	if strings.ContainsAny(trimmed, "\r\n") {
		return "", fmt.Errorf("expected single-line result, got %d lines",
			strings.Count(trimmed, "\n")+1)
	}
	return strings.TrimSpace(trimmed), nil
}
