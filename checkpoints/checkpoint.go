package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tsawler/go-vaegan/layers"
	"github.com/tsawler/go-vaegan/tensor"
)

// CheckpointFormat defines the serialization format
type CheckpointFormat int

const (
	FormatProto CheckpointFormat = iota
	FormatJSON
)

func (cf CheckpointFormat) String() string {
	switch cf {
	case FormatProto:
		return "Proto"
	case FormatJSON:
		return "JSON"
	default:
		return "Unknown"
	}
}

// ParseFormat maps "proto" or "json" to a CheckpointFormat.
func ParseFormat(s string) (CheckpointFormat, error) {
	switch strings.ToLower(s) {
	case "proto", "protobuf", "":
		return FormatProto, nil
	case "json":
		return FormatJSON, nil
	}
	return 0, fmt.Errorf("unknown checkpoint format %q", s)
}

// Checkpoint represents a complete model state including weights, optimizer state, and training metadata
type Checkpoint struct {
	Weights []WeightTensor `json:"weights"`

	// Training state
	TrainingState TrainingState `json:"training_state"`

	// One entry per optimized parameter group
	OptimizerStates []OptimizerState `json:"optimizer_states,omitempty"`

	// Metadata
	Metadata CheckpointMetadata `json:"metadata"`
}

// WeightTensor represents a model parameter tensor with its data
type WeightTensor struct {
	Name      string    `json:"name"`
	Shape     []int     `json:"shape"`
	Data      []float32 `json:"data"`
	Layer     string    `json:"layer"`
	Type      string    `json:"type"` // "Matrix", "w", "gamma", "moving_mean", etc.
	Trainable bool      `json:"trainable"`
}

// TrainingState captures the current training progress
type TrainingState struct {
	Epoch        int     `json:"epoch"`
	Step         int     `json:"step"`
	LearningRate float32 `json:"learning_rate"`
	TotalSteps   int     `json:"total_steps"`
}

// OptimizerState captures optimizer-specific state (momentum, variance, etc.)
type OptimizerState struct {
	Group      string                 `json:"group,omitempty"` // parameter prefix the optimizer owns
	Type       string                 `json:"type"`            // "Adam"
	Parameters map[string]interface{} `json:"parameters"`
	StateData  []OptimizerTensor      `json:"state_data"`
}

// OptimizerTensor represents optimizer state tensors (momentum, variance, etc.)
type OptimizerTensor struct {
	Name      string    `json:"name"`
	Shape     []int     `json:"shape"`
	Data      []float32 `json:"data"`
	StateType string    `json:"state_type"` // "momentum", "variance"
	Parameter string    `json:"parameter,omitempty"`
}

// CheckpointMetadata contains checkpoint metadata
type CheckpointMetadata struct {
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	RunID       string    `json:"run_id,omitempty"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
}

const (
	frameworkName    = "go-vaegan"
	frameworkVersion = "1.0.0"
)

// CheckpointSaver handles saving model checkpoints in various formats
type CheckpointSaver struct {
	format CheckpointFormat
	// halfPrecision stores weights as IEEE 754 binary16 in the proto format.
	halfPrecision bool
}

// NewCheckpointSaver creates a new checkpoint saver for the specified format
func NewCheckpointSaver(format CheckpointFormat) *CheckpointSaver {
	return &CheckpointSaver{format: format}
}

// WithHalfPrecision makes proto checkpoints store weights as float16.
// Optimizer slots keep full precision.
func (cs *CheckpointSaver) WithHalfPrecision(half bool) *CheckpointSaver {
	cs.halfPrecision = half
	return cs
}

// Format returns the format used for saving.
func (cs *CheckpointSaver) Format() CheckpointFormat {
	return cs.format
}

// SaveCheckpoint writes the checkpoint to path. The file is written to a
// temporary name first and renamed into place.
func (cs *CheckpointSaver) SaveCheckpoint(checkpoint *Checkpoint, path string) error {
	if checkpoint.Metadata.Framework == "" {
		checkpoint.Metadata.Framework = frameworkName
		checkpoint.Metadata.Version = frameworkVersion
	}
	if checkpoint.Metadata.CreatedAt.IsZero() {
		checkpoint.Metadata.CreatedAt = time.Now()
	}

	var data []byte
	var err error
	switch cs.format {
	case FormatJSON:
		data, err = json.MarshalIndent(checkpoint, "", "  ")
	case FormatProto:
		data, err = marshalCheckpoint(checkpoint, cs.halfPrecision)
	default:
		return fmt.Errorf("unsupported checkpoint format: %s", cs.format)
	}
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to move checkpoint into place: %w", err)
	}
	return nil
}

// LoadCheckpoint loads a model checkpoint. The encoding is detected from
// the file contents, so either format can be read.
func (cs *CheckpointSaver) LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	switch DetectFormat(data) {
	case FormatJSON:
		var checkpoint Checkpoint
		if err := json.Unmarshal(data, &checkpoint); err != nil {
			return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
		}
		return &checkpoint, nil
	default:
		checkpoint, err := unmarshalCheckpoint(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
		}
		return checkpoint, nil
	}
}

// DetectFormat reports JSON for data that starts with '{' after optional
// whitespace, and Proto otherwise.
func DetectFormat(data []byte) CheckpointFormat {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '{':
			return FormatJSON
		}
		return FormatProto
	}
	return FormatProto
}

// ExtractWeights copies every parameter of ps, trainable or not, in
// creation order.
func ExtractWeights(ps *layers.ParameterSet) []WeightTensor {
	var weights []WeightTensor
	for _, p := range ps.All() {
		layer, typ := p.Name, ""
		if i := strings.LastIndexByte(p.Name, '/'); i >= 0 {
			layer, typ = p.Name[:i], p.Name[i+1:]
		}
		weights = append(weights, WeightTensor{
			Name:      p.Name,
			Shape:     append([]int(nil), p.Value.Shape...),
			Data:      append([]float32(nil), p.Value.Data...),
			Layer:     layer,
			Type:      typ,
			Trainable: p.Trainable,
		})
	}
	return weights
}

// LoadWeights writes checkpointed weights back into ps. Every parameter of
// ps must be present with a matching shape.
func LoadWeights(weights []WeightTensor, ps *layers.ParameterSet) error {
	values := make(map[string]*tensor.Tensor, len(weights))
	for _, w := range weights {
		t, err := tensor.NewTensor(w.Shape, w.Data)
		if err != nil {
			return fmt.Errorf("invalid weight %s: %w", w.Name, err)
		}
		values[w.Name] = t
	}
	if err := ps.Restore(values); err != nil {
		return fmt.Errorf("failed to restore weights: %w", err)
	}
	return nil
}
