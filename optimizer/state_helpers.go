package optimizer

import (
	"fmt"

	"github.com/tsawler/go-vaegan/checkpoints"
	"github.com/tsawler/go-vaegan/tensor"
)

// extractBufferState copies one slot tensor for checkpointing
func extractBufferState(buffer *tensor.Tensor, name, stateType, param string) checkpoints.OptimizerTensor {
	return checkpoints.OptimizerTensor{
		Name:      name,
		Shape:     append([]int(nil), buffer.Shape...),
		Data:      append([]float32(nil), buffer.Data...),
		StateType: stateType,
		Parameter: param,
	}
}

// restoreBufferState copies checkpointed data back into a slot tensor
func restoreBufferState(buffer *tensor.Tensor, data []float32, name string) error {
	if buffer == nil {
		return fmt.Errorf("%s buffer is nil", name)
	}
	if len(data) != buffer.NumElems {
		return fmt.Errorf("data size mismatch for %s: expected %d elements, got %d",
			name, buffer.NumElems, len(data))
	}
	copy(buffer.Data, data)
	return nil
}

// extractFloat32Param safely extracts a float32 parameter from the state map
func extractFloat32Param(params map[string]interface{}, key string, defaultValue float32) float32 {
	switch val := params[key].(type) {
	case float64:
		return float32(val)
	case float32:
		return val
	}
	return defaultValue
}

// extractUint64Param safely extracts a uint64 parameter from the state map
func extractUint64Param(params map[string]interface{}, key string, defaultValue uint64) uint64 {
	switch val := params[key].(type) {
	case float64:
		return uint64(val)
	case uint64:
		return val
	case int64:
		return uint64(val)
	}
	return defaultValue
}
