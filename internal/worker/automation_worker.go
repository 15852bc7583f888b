package worker

import (
	"context"

	"github.com/spec-kit/ticket-orchestrator/internal/scheduler"
)

// StartAutomationWorker launches the inactivity controller: the startup
// re-arm pass over open tickets plus the periodic unclaimed sweep.
func StartAutomationWorker(ctx context.Context, controller *scheduler.Controller) error {
	if controller == nil {
		return nil
	}
	return controller.Start(ctx)
}
