package training

import (
	"errors"
	"fmt"

	"github.com/tsawler/go-vaegan/checkpoints"
)

// Config holds the optimization, cadence and output settings of a run.
type Config struct {
	Epochs       int     `json:"epoch"`
	LearningRate float32 `json:"learning_rate"`
	Beta1        float32 `json:"beta1"`
	// TrainSize caps the images read per epoch. Zero means no cap.
	TrainSize int `json:"train_size"`

	CheckpointDir string `json:"checkpoint_dir"`
	SampleDir     string `json:"sample_dir"`
	LogDir        string `json:"log_dir"`

	// Samples are written when counter % SampleEvery == SampleOffset,
	// checkpoints when counter % CheckpointEvery == CheckpointOffset.
	SampleEvery      int `json:"sample_every"`
	SampleOffset     int `json:"sample_offset"`
	CheckpointEvery  int `json:"checkpoint_every"`
	CheckpointOffset int `json:"checkpoint_offset"`

	// SampleNum is the size of the fixed sample batch. Zero uses the
	// batch size.
	SampleNum int `json:"sample_num"`

	Format        checkpoints.CheckpointFormat `json:"format"`
	HalfPrecision bool                         `json:"half_precision"`
	MaxToKeep     int                          `json:"max_to_keep"`

	HistogramBins int `json:"histogram_bins"`
}

// DefaultConfig returns the settings of the reference training recipe.
func DefaultConfig() Config {
	return Config{
		Epochs:           25,
		LearningRate:     0.0002,
		Beta1:            0.5,
		CheckpointDir:    "checkpoint",
		SampleDir:        "samples",
		LogDir:           "logs",
		SampleEvery:      100,
		SampleOffset:     1,
		CheckpointEvery:  500,
		CheckpointOffset: 2,
		Format:           checkpoints.FormatProto,
		MaxToKeep:        checkpoints.DefaultMaxToKeep,
		HistogramBins:    30,
	}
}

// Validate checks the configuration for values the loop cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Epochs < 0 {
		errs = append(errs, fmt.Errorf("epochs must not be negative, got %d", c.Epochs))
	}
	if c.LearningRate <= 0 {
		errs = append(errs, fmt.Errorf("learning rate must be positive, got %g", c.LearningRate))
	}
	if c.Beta1 < 0 || c.Beta1 >= 1 {
		errs = append(errs, fmt.Errorf("beta1 must be in [0, 1), got %g", c.Beta1))
	}
	if c.TrainSize < 0 {
		errs = append(errs, fmt.Errorf("train size must not be negative, got %d", c.TrainSize))
	}
	if c.SampleEvery <= 0 || c.CheckpointEvery <= 0 {
		errs = append(errs, fmt.Errorf("sample and checkpoint cadences must be positive, got %d and %d",
			c.SampleEvery, c.CheckpointEvery))
	}
	if c.SampleEvery > 0 && (c.SampleOffset < 0 || c.SampleOffset >= c.SampleEvery) {
		errs = append(errs, fmt.Errorf("sample offset must be in [0, %d), got %d", c.SampleEvery, c.SampleOffset))
	}
	if c.CheckpointEvery > 0 && (c.CheckpointOffset < 0 || c.CheckpointOffset >= c.CheckpointEvery) {
		errs = append(errs, fmt.Errorf("checkpoint offset must be in [0, %d), got %d", c.CheckpointEvery, c.CheckpointOffset))
	}
	if c.SampleNum < 0 {
		errs = append(errs, fmt.Errorf("sample num must not be negative, got %d", c.SampleNum))
	}
	if c.CheckpointDir == "" || c.SampleDir == "" || c.LogDir == "" {
		errs = append(errs, errors.New("checkpoint, sample and log directories are required"))
	}
	if c.HistogramBins <= 0 {
		errs = append(errs, fmt.Errorf("histogram bins must be positive, got %d", c.HistogramBins))
	}
	return errors.Join(errs...)
}

func (c Config) sampleDue(counter int) bool {
	return counter%c.SampleEvery == c.SampleOffset
}

func (c Config) checkpointDue(counter int) bool {
	return counter%c.CheckpointEvery == c.CheckpointOffset
}
