package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// HandleExecutionCycle is the asynq handler behind the cycle trigger. A
// cycle-level failure (plan store unreachable) is returned to asynq so the
// trigger caller sees it; per-plan failures are already folded into the
// result list.
func (e *Engine) HandleExecutionCycle(ctx context.Context, t *asynq.Task) error {
	results, err := e.RunCycle(ctx)
	if err != nil {
		return fmt.Errorf("e.RunCycle: %w", err)
	}

	if len(results) == 0 {
		return nil
	}

	buf, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	if _, err := t.ResultWriter().Write(buf); err != nil {
		return fmt.Errorf("failed to write task result: %w", err)
	}
	return nil
}
