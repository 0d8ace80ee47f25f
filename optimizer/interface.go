package optimizer

import (
	"fmt"

	"github.com/tsawler/go-vaegan/checkpoints"
	"github.com/tsawler/go-vaegan/tensor"
)

// Optimizer defines the common interface for all optimizers
// This interface enables state save/restore for checkpoint functionality
type Optimizer interface {
	// Step applies one update. grads must line up with the parameters the
	// optimizer was created with.
	Step(grads []*tensor.Tensor) error

	// GetState extracts optimizer state for checkpointing
	GetState() (*OptimizerState, error)

	// LoadState restores optimizer state from checkpoint
	LoadState(state *OptimizerState) error

	// GetStepCount returns the current optimization step number
	GetStepCount() uint64

	// UpdateLearningRate updates the learning rate
	UpdateLearningRate(lr float32)
}

// OptimizerState represents the complete state of an optimizer
// Compatible with checkpoints.OptimizerState for serialization
type OptimizerState = checkpoints.OptimizerState

// extractBufferIndex extracts the buffer index from state tensor names like "momentum_0", "variance_1"
func extractBufferIndex(name string) int {
	var idx int
	lastUnderscoreIdx := -1
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '_' {
			lastUnderscoreIdx = i
			break
		}
	}
	if lastUnderscoreIdx == -1 {
		return -1
	}
	if n, err := fmt.Sscanf(name[lastUnderscoreIdx+1:], "%d", &idx); n == 1 && err == nil {
		return idx
	}
	return -1
}

// validateStateType ensures the state type matches the optimizer
func validateStateType(optimizerType string, state *OptimizerState) error {
	if state == nil {
		return fmt.Errorf("optimizer state is nil")
	}
	if state.Type != optimizerType {
		return fmt.Errorf("state type mismatch: expected %s, got %s", optimizerType, state.Type)
	}
	return nil
}
