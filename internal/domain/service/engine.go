package service

import (
	"context"

	"Fractal/internal/domain/models"
)

// FocusPackBuilder runs the single-horizon analog pipeline.
type FocusPackBuilder interface {
	Build(ctx context.Context, symbol string, h models.Horizon, phase models.Phase) (*models.FocusPack, error)
}

// ConsensusResolver fuses horizon votes into one view.
type ConsensusResolver interface {
	Resolve(votes []models.VoteInput, regime models.RegimeContext) models.ConsensusResult
}

// DecisionKernel turns consensus and diagnostics into a trade recommendation.
type DecisionKernel interface {
	Decide(in models.DecisionInput) (models.DecisionOutput, error)
}
