package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jsamuelsen/quotevault/internal/platform/logging"
)

// Staged writes: Validate → Check → Commit → Sync
//
//  1. VALIDATE - build typed values from caller input; nothing is read or written
//  2. CHECK    - compare against stored state (duplicates, existence)
//  3. COMMIT   - the single authoritative entity write
//  4. SYNC     - bring synchronously owned derived state (tag counts) in line
//
// A failure before COMMIT leaves the store untouched. A failure in SYNC is
// reported with the step so callers know the entity itself was written.

// ExecutionStep names a stage of a staged write.
type ExecutionStep string

const (
	StepValidate ExecutionStep = "validate"
	StepCheck    ExecutionStep = "check"
	StepCommit   ExecutionStep = "commit"
	StepSync     ExecutionStep = "sync"
)

// ExecutionError wraps errors with the step where they occurred.
// Domain errors stay reachable through errors.Is and errors.As.
type ExecutionError struct {
	Step  ExecutionStep
	Cause error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Step, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Operation defines the stages of one staged write.
// I is the caller input, P the validated value and O the committed result.
type Operation[I, P, O any] struct {
	// Name identifies this operation for logging.
	Name string

	Validate func(ctx context.Context, input I) (P, error)

	// Check may be nil.
	Check func(ctx context.Context, prepared P) error

	Commit func(ctx context.Context, prepared P) (O, error)

	// Sync may be nil.
	Sync func(ctx context.Context, committed O) error
}

// Executor runs staged writes with per-step logging.
type Executor struct {
	logger *slog.Logger
}

// NewExecutor creates a new executor with the given logger.
func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{logger: logger}
}

// Execute runs op for input.
func Execute[I, P, O any](ctx context.Context, exec *Executor, op Operation[I, P, O], input I) (O, error) {
	var zero O

	logger := logging.FromContextOr(ctx, exec.logger).With(slog.String("operation", op.Name))
	start := time.Now()

	fail := func(step ExecutionStep, err error) (O, error) {
		level := slog.LevelWarn
		if step == StepCommit || step == StepSync {
			level = slog.LevelError
		}

		logger.Log(ctx, level, "staged write failed",
			slog.String("step", string(step)),
			slog.Any("error", err),
		)

		return zero, &ExecutionError{Step: step, Cause: err}
	}

	prepared, err := op.Validate(ctx, input)
	if err != nil {
		return fail(StepValidate, err)
	}

	if op.Check != nil {
		if err := op.Check(ctx, prepared); err != nil {
			return fail(StepCheck, err)
		}
	}

	committed, err := op.Commit(ctx, prepared)
	if err != nil {
		return fail(StepCommit, err)
	}

	if op.Sync != nil {
		if err := op.Sync(ctx, committed); err != nil {
			return fail(StepSync, err)
		}
	}

	logger.InfoContext(ctx, "operation completed",
		slog.Duration("duration", time.Since(start)),
	)

	return committed, nil
}

// GetExecutionStep extracts the step from an execution error.
func GetExecutionStep(err error) (ExecutionStep, bool) {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Step, true
	}

	return "", false
}
