package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/nodegraph/internal/ctxkeys"
	"github.com/BaSui01/nodegraph/types"
	"github.com/BaSui01/nodegraph/workflow/expr"
	"go.uber.org/zap"
)

const retryKind = "retry"

// RetryConfig re-runs the wrapped node up to MaxAttempts times. Each attempt
// gets the input "attempt_number" (from 1). State written by a failed attempt
// is kept.
type RetryConfig struct {
	MaxAttempts int
	// RetryOnErrorCode, if set, restricts retries to failures with this code.
	RetryOnErrorCode types.ErrorCode
	// RetryOnCondition, if set, is evaluated against state after each failed
	// attempt except the last; retrying stops once it is false. Timed-out
	// attempts do not evaluate it.
	RetryOnCondition string
	// Timeout bounds each attempt. The attempt's context is cancelled when it
	// expires.
	Timeout time.Duration
	// Delay is waited between attempts, never before the first or after the last.
	Delay time.Duration
}

func (c RetryConfig) AdornmentKind() string { return retryKind }

func (c RetryConfig) SubworkflowInputs() []string { return []string{"attempt_number"} }

func (c RetryConfig) ExtraOutputs() []string { return nil }

func (c RetryConfig) Attributes() map[string]any {
	attrs := map[string]any{"max_attempts": c.MaxAttempts}
	if c.RetryOnErrorCode != "" {
		attrs["retry_on_error_code"] = string(c.RetryOnErrorCode)
	}
	if c.RetryOnCondition != "" {
		attrs["retry_on_condition"] = c.RetryOnCondition
	}
	if c.Timeout > 0 {
		attrs["timeout"] = c.Timeout.String()
	}
	if c.Delay > 0 {
		attrs["delay"] = c.Delay.String()
	}
	return attrs
}

func (c RetryConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%w: max_attempts must be at least 1, got %d", ErrInvalidNode, c.MaxAttempts)
	}
	if c.RetryOnErrorCode != "" && !c.RetryOnErrorCode.Valid() {
		return fmt.Errorf("%w: unknown retry_on_error_code %q", ErrInvalidNode, c.RetryOnErrorCode)
	}
	if c.RetryOnCondition != "" {
		if _, err := expr.Compile(c.RetryOnCondition); err != nil {
			return fmt.Errorf("%w: retry_on_condition: %v", ErrInvalidNode, err)
		}
	}
	if c.Timeout < 0 || c.Delay < 0 {
		return fmt.Errorf("%w: timeout and delay must not be negative", ErrInvalidNode)
	}
	return nil
}

func newRetryFromAttributes(attrs map[string]any) (Adornable, error) {
	cfg := RetryConfig{MaxAttempts: 3}
	if n, ok, err := intAttr(attrs, "max_attempts"); err != nil {
		return nil, err
	} else if ok {
		cfg.MaxAttempts = n
	}
	code, err := stringAttr(attrs, "retry_on_error_code")
	if err != nil {
		return nil, err
	}
	if code != "" {
		parsed, err := types.ParseErrorCode(code)
		if err != nil {
			return nil, err
		}
		cfg.RetryOnErrorCode = parsed
	}
	if cfg.RetryOnCondition, err = stringAttr(attrs, "retry_on_condition"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = durationAttr(attrs, "timeout"); err != nil {
		return nil, err
	}
	if cfg.Delay, err = durationAttr(attrs, "delay"); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Run drives the attempt loop.
func (c RetryConfig) Run(ctx context.Context, rc *RunContext) error {
	var cond *expr.Expression
	if c.RetryOnCondition != "" {
		cond = expr.MustCompile(c.RetryOnCondition)
	}
	nodeName := rc.Node().Name()

	for attempt := 1; attempt <= c.MaxAttempts; attempt++ {
		outputs, failure, timedOut := c.attempt(ctx, rc, attempt)
		if err := ctx.Err(); err != nil {
			return types.NewError(types.ErrNodeCancelled, "retry cancelled").WithCause(err)
		}

		if failure == nil {
			rc.metrics().RecordRetryAttempt(nodeName, "success")
			for _, name := range rc.Adornment().Subworkflow.OutputNames() {
				if v, ok := outputs[name]; ok {
					if err := rc.Yield(name, v); err != nil {
						return err
					}
				}
			}
			return nil
		}

		last := attempt == c.MaxAttempts
		logger := rc.Logger().With(zap.Int("attempt", attempt), zap.String("code", string(failure.Code)))

		if timedOut {
			rc.metrics().RecordRetryAttempt(nodeName, "timeout")
			if last {
				return types.Errorf(types.ErrTimeout, "Node timed out on attempt %d after %s", attempt, c.Timeout).WithCause(failure)
			}
			logger.Debug("attempt timed out, retrying", zap.Duration("timeout", c.Timeout))
		} else {
			rc.metrics().RecordRetryAttempt(nodeName, "failure")
			if c.RetryOnErrorCode != "" && failure.Code != c.RetryOnErrorCode {
				return types.Errorf(failure.Code, "Unexpected rejection on attempt %d: %s", attempt, failure.Message).WithCause(failure)
			}
			if last {
				return types.Errorf(failure.Code, "Exhausted retries, final rejection on attempt %d: %s", attempt, failure.Message).WithCause(failure)
			}
			if cond != nil {
				ok, err := cond.Eval(rc.run.exprVars(nil))
				if err != nil {
					return types.Errorf(types.ErrInvalidState, "retry_on_condition on attempt %d: %v", attempt, err).WithCause(failure)
				}
				if !ok {
					return types.Errorf(failure.Code, "Rejection on attempt %d, retry condition not met: %s", attempt, failure.Message).WithCause(failure)
				}
			}
			logger.Debug("attempt rejected, retrying", zap.String("message", failure.Message))
		}

		if c.Delay > 0 {
			timer := time.NewTimer(c.Delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return types.NewError(types.ErrNodeCancelled, "retry cancelled").WithCause(ctx.Err())
			}
		}
	}
	return types.Errorf(types.ErrInternalError, "retry loop ended without a result")
}

// attempt runs one sub-execution. It reports the outputs on success, or the
// failure and whether the attempt's deadline expired.
func (c RetryConfig) attempt(ctx context.Context, rc *RunContext, n int) (map[string]any, *types.Error, bool) {
	actx := ctxkeys.WithAttemptNumber(ctx, n)
	cancel := context.CancelFunc(func() {})
	if c.Timeout > 0 {
		actx, cancel = context.WithTimeout(actx, c.Timeout)
	}
	defer cancel()

	stream, err := rc.StreamSubworkflow(actx, map[string]any{"attempt_number": n}, rc.State())
	if err != nil {
		return nil, toExecutionError(err), false
	}

	var (
		outputs map[string]any
		failure *types.Error
		done    bool
	)
	for ev := range stream {
		switch ev.Type {
		case EventWorkflowFulfilled:
			outputs, done = ev.Outputs, true
		case EventWorkflowRejected:
			failure, done = ev.Error, true
			if failure == nil {
				failure = types.NewError(types.ErrInternalError, "rejected without an error")
			}
		case EventWorkflowPaused:
			failure, done = types.Errorf(types.ErrInvalidState, "attempt %d paused", n), true
		}
	}

	if c.Timeout > 0 && errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		if done && failure == nil {
			return outputs, nil, false
		}
		return nil, types.Errorf(types.ErrTimeout, "attempt %d exceeded %s", n, c.Timeout), true
	}
	if !done {
		return nil, types.NewError(types.ErrNodeCancelled, "attempt ended without a result"), false
	}
	return outputs, failure, false
}
