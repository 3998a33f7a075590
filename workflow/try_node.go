package workflow

import (
	"context"
	"fmt"

	"github.com/BaSui01/nodegraph/types"
	"go.uber.org/zap"
)

const tryKind = "try"

// TryErrorOutput is the output a Try wrapper adds for the caught error.
const TryErrorOutput = "error"

// TryConfig catches a rejection of the wrapped node and fulfills with the
// error in the "error" output. With OnErrorCode set, other codes re-raise.
type TryConfig struct {
	OnErrorCode types.ErrorCode
}

func (c TryConfig) AdornmentKind() string       { return tryKind }
func (c TryConfig) SubworkflowInputs() []string { return nil }
func (c TryConfig) ExtraOutputs() []string      { return []string{TryErrorOutput} }

func (c TryConfig) Attributes() map[string]any {
	if c.OnErrorCode == "" {
		return nil
	}
	return map[string]any{"on_error_code": string(c.OnErrorCode)}
}

func (c TryConfig) Validate() error {
	if c.OnErrorCode != "" && !c.OnErrorCode.Valid() {
		return fmt.Errorf("%w: unknown on_error_code %q", ErrInvalidNode, c.OnErrorCode)
	}
	return nil
}

func newTryFromAttributes(attrs map[string]any) (Adornable, error) {
	code, err := stringAttr(attrs, "on_error_code")
	if err != nil {
		return nil, err
	}
	if code == "" {
		return TryConfig{}, nil
	}
	parsed, err := types.ParseErrorCode(code)
	if err != nil {
		return nil, err
	}
	return TryConfig{OnErrorCode: parsed}, nil
}

// Run executes the wrapped node once.
func (c TryConfig) Run(ctx context.Context, rc *RunContext) error {
	stream, err := rc.StreamSubworkflow(ctx, nil, rc.State())
	if err != nil {
		return err
	}

	for ev := range stream {
		switch ev.Type {
		case EventWorkflowStreaming:
			if !ev.Final {
				_ = rc.Stream(ev.Name, ev.Delta)
			}
		case EventWorkflowFulfilled:
			for _, name := range rc.Adornment().Subworkflow.OutputNames() {
				if v, ok := ev.Outputs[name]; ok {
					if err := rc.Yield(name, v); err != nil {
						return err
					}
				}
			}
			return nil
		case EventWorkflowPaused:
			return ErrPaused
		case EventWorkflowRejected:
			failure := ev.Error
			if failure == nil {
				failure = types.NewError(types.ErrInternalError, "rejected without an error")
			}
			if c.OnErrorCode != "" && failure.Code != c.OnErrorCode {
				return failure
			}
			rc.Logger().Debug("caught rejection", zap.String("code", string(failure.Code)))
			return rc.Yield(TryErrorOutput, failure)
		}
	}

	if err := ctx.Err(); err != nil {
		return types.NewError(types.ErrNodeCancelled, "try cancelled").WithCause(err)
	}
	return types.NewError(types.ErrInternalError, "subworkflow ended without a result")
}
