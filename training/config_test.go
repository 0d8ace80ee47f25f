package training

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative epochs", func(c *Config) { c.Epochs = -1 }},
		{"zero learning rate", func(c *Config) { c.LearningRate = 0 }},
		{"beta1 of one", func(c *Config) { c.Beta1 = 1 }},
		{"negative train size", func(c *Config) { c.TrainSize = -5 }},
		{"zero sample cadence", func(c *Config) { c.SampleEvery = 0 }},
		{"zero checkpoint cadence", func(c *Config) { c.CheckpointEvery = 0 }},
		{"sample offset at period", func(c *Config) { c.SampleOffset = c.SampleEvery }},
		{"negative sample offset", func(c *Config) { c.SampleOffset = -1 }},
		{"checkpoint offset past period", func(c *Config) { c.CheckpointEvery, c.CheckpointOffset = 10, 12 }},
		{"negative sample num", func(c *Config) { c.SampleNum = -1 }},
		{"missing log dir", func(c *Config) { c.LogDir = "" }},
		{"zero histogram bins", func(c *Config) { c.HistogramBins = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected an error for %s", tt.name)
			}
		})
	}
}

func TestCadences(t *testing.T) {
	cfg := DefaultConfig()
	var samples, saves []int
	for counter := 1; counter <= 1100; counter++ {
		if cfg.sampleDue(counter) {
			samples = append(samples, counter)
		}
		if cfg.checkpointDue(counter) {
			saves = append(saves, counter)
		}
	}
	require.Equal(t, []int{1, 101, 201, 301, 401, 501, 601, 701, 801, 901, 1001}, samples)
	require.Equal(t, []int{2, 502, 1002}, saves)
}
