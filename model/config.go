package model

import (
	"fmt"

	"github.com/tsawler/go-vaegan/layers"
)

// Config describes the networks and the loss weighting.
type Config struct {
	BatchSize    int `json:"batch_size"`
	OutputHeight int `json:"output_height"`
	OutputWidth  int `json:"output_width"`
	// Channels is the image depth, 1 for grayscale or 3 for color.
	Channels int `json:"c_dim"`

	ZDim int `json:"z_dim"`
	// YDim is the label dimension. Zero trains without conditioning.
	YDim int `json:"y_dim"`

	GFDim     int `json:"gf_dim"`
	DFDim     int `json:"df_dim"`
	GFCDim    int `json:"gfc_dim"`
	DFCDim    int `json:"dfc_dim"`
	HiddenDim int `json:"hidden_dim"`

	// Gamma weights the reconstruction term in the generator loss.
	Gamma float32 `json:"gamma"`
	// Seed drives parameter initialization and the per-build noise.
	Seed int64 `json:"seed"`
}

// DefaultConfig returns the standard 64x64 color architecture.
func DefaultConfig() Config {
	return Config{
		BatchSize:    64,
		OutputHeight: 64,
		OutputWidth:  64,
		Channels:     3,
		ZDim:         100,
		GFDim:        64,
		DFDim:        64,
		GFCDim:       1024,
		DFCDim:       1024,
		HiddenDim:    256,
		Gamma:        1,
		Seed:         1,
	}
}

// Conditional reports whether the networks take class labels.
func (c Config) Conditional() bool {
	return c.YDim > 0
}

// Validate checks that the configuration describes buildable networks.
func (c Config) Validate() error {
	positive := []struct {
		name  string
		value int
	}{
		{"batch_size", c.BatchSize},
		{"output_height", c.OutputHeight},
		{"output_width", c.OutputWidth},
		{"z_dim", c.ZDim},
		{"gf_dim", c.GFDim},
		{"df_dim", c.DFDim},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}
	if c.Channels != 1 && c.Channels != 3 {
		return fmt.Errorf("c_dim must be 1 or 3, got %d", c.Channels)
	}
	if c.YDim < 0 {
		return fmt.Errorf("y_dim must not be negative, got %d", c.YDim)
	}
	if c.Gamma < 0 {
		return fmt.Errorf("gamma must not be negative, got %v", c.Gamma)
	}
	if c.Conditional() {
		if c.GFCDim <= 0 || c.DFCDim <= 0 {
			return fmt.Errorf("gfc_dim and dfc_dim must be positive, got %d and %d", c.GFCDim, c.DFCDim)
		}
		// The conditional generator halves twice with integer division.
		if c.OutputHeight%4 != 0 || c.OutputWidth%4 != 0 {
			return fmt.Errorf("conditional output size %dx%d must be divisible by 4", c.OutputHeight, c.OutputWidth)
		}
	} else if c.HiddenDim <= 0 {
		return fmt.Errorf("hidden_dim must be positive, got %d", c.HiddenDim)
	}
	return nil
}

// ImageShape returns [batch, height, width, channels].
func (c Config) ImageShape() []int {
	return []int{c.BatchSize, c.OutputHeight, c.OutputWidth, c.Channels}
}

// StageSizes returns the spatial sizes of the unconditional generator,
// from the output size down through four ceil-halvings.
func StageSizes(size int) [5]int {
	var s [5]int
	s[0] = size
	for i := 1; i < len(s); i++ {
		s[i] = layers.ConvOutSizeSame(s[i-1], layers.Stride)
	}
	return s
}
