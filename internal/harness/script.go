package harness

import (
	"context"
	"fmt"

	"github.com/roach88/txsim/internal/engine"
	"github.com/roach88/txsim/internal/ir"
)

// script replays scripted outcomes by item id and attempt number.
// It is read-only after construction.
type script struct {
	outcomes map[string][]string
}

func newScript(outcomes map[string][]string) *script {
	return &script{outcomes: outcomes}
}

func (s *script) work(ctx context.Context, item ir.WorkItem, attempt int) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", engine.ErrInterrupted, context.Cause(ctx))
	}

	planned := s.outcomes[item.ID()]
	if attempt < 1 || attempt > len(planned) {
		return nil
	}

	switch planned[attempt-1] {
	case OutcomeInterrupt:
		return ErrScriptedInterrupt
	case OutcomePermanent:
		return fmt.Errorf("scripted failure of %s: %w", item.ID(), engine.ErrPermanent)
	case OutcomePanic:
		panic(fmt.Sprintf("scripted panic in %s", item.ID()))
	default:
		return nil
	}
}
