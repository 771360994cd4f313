package sandbox

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout is the wall-clock budget for a single run, covering
// compilation, script execution, and every outbound call the script makes.
const DefaultTimeout = 30 * time.Minute

// Status is the terminal state of a run.
type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusTimedOut  Status = "TIMEOUT"
)

// OpFunc is an operation exposed to scripts. It receives the run context
// so cancelling the run aborts any outbound call in flight.
type OpFunc func(ctx context.Context, args []interface{}) (interface{}, error)

// Ops maps script-visible names to operations. Together with the built-in
// functions it forms the complete set of callables a script can reach;
// names absent from both maps fail at compile time.
type Ops map[string]OpFunc

// Inputs are the values injected into a run's scope.
type Inputs struct {
	UserInput       string
	AttachedFileIDs []int64
}

// Outcome is the result of one run. Result is set only on completion,
// ErrorMessage only on failure or timeout. Output holds everything the
// script printed, including partial output from runs that did not finish.
type Outcome struct {
	Status       Status
	Result       string
	ErrorMessage string
	Output       string
	Elapsed      time.Duration
}

// Runner executes compiled workflow scripts under a wall-clock budget.
type Runner struct {
	timeout time.Duration
	logger  zerolog.Logger
}

func NewRunner(timeout time.Duration, logger zerolog.Logger) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{
		timeout: timeout,
		logger:  logger.With().Str("service", "sandbox").Logger(),
	}
}

type runResult struct {
	value interface{}
	err   error
}

// Execute compiles source against the given operations and runs it with
// the inputs in scope. Compilation happens per run because the operation
// bindings are per run. The error return is reserved for compile errors;
// runtime failures and timeouts are reported through the Outcome.
func (r *Runner) Execute(ctx context.Context, source string, ops Ops, inputs Inputs) (Outcome, error) {
	out := &outputBuffer{}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	functions := builtins(out)
	for name, op := range ops {
		op := op
		functions[name] = func(args ...interface{}) (interface{}, error) {
			return op(runCtx, args)
		}
	}

	start := time.Now()

	prog, err := Compile(source, functions)
	if err != nil {
		return Outcome{}, err
	}

	fileIDs := make([]interface{}, len(inputs.AttachedFileIDs))
	for i, id := range inputs.AttachedFileIDs {
		fileIDs[i] = float64(id)
	}
	// boxed so passing attached_file_ids to a builtin keeps it one value
	scope := map[string]interface{}{
		EntryParamName:      inputs.UserInput,
		"attached_file_ids": List{Items: fileIDs},
	}

	done := make(chan runResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				stack := truncateStack(debug.Stack(), 2048)
				r.logger.Error().
					Interface("panic", rec).
					Str("stack", stack).
					Msg("script run panicked")
				done <- runResult{err: fmt.Errorf("internal error: %v", rec)}
			}
		}()
		value, err := prog.Run(runCtx, scope)
		done <- runResult{value: value, err: err}
	}()

	select {
	case res := <-done:
		elapsed := time.Since(start)
		if res.err != nil {
			if isDeadline(res.err, runCtx) {
				return r.timedOut(out, elapsed), nil
			}
			r.logger.Warn().Err(res.err).Dur("elapsed", elapsed).Msg("script run failed")
			return Outcome{
				Status:       StatusFailed,
				ErrorMessage: res.err.Error(),
				Output:       out.String(),
				Elapsed:      elapsed,
			}, nil
		}
		r.logger.Info().Dur("elapsed", elapsed).Msg("script run completed")
		return Outcome{
			Status:  StatusCompleted,
			Result:  stringify(res.value),
			Output:  out.String(),
			Elapsed: elapsed,
		}, nil

	case <-runCtx.Done():
		elapsed := time.Since(start)
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return r.timedOut(out, elapsed), nil
		}
		// Caller cancelled; the run goroutine unwinds at its next
		// context check or failed outbound call.
		return Outcome{
			Status:       StatusFailed,
			ErrorMessage: runCtx.Err().Error(),
			Output:       out.String(),
			Elapsed:      elapsed,
		}, nil
	}
}

func (r *Runner) timedOut(out *outputBuffer, elapsed time.Duration) Outcome {
	r.logger.Warn().Dur("elapsed", elapsed).Dur("timeout", r.timeout).Msg("script run timed out")
	return Outcome{
		Status:       StatusTimedOut,
		ErrorMessage: fmt.Sprintf("execution exceeded the %s time limit", r.timeout),
		Output:       out.String(),
		Elapsed:      elapsed,
	}
}

func isDeadline(err error, ctx context.Context) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		(ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded))
}

func truncateStack(stack []byte, n int) string {
	if len(stack) <= n {
		return string(stack)
	}
	return string(stack[:n]) + "..."
}
