package training

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/tsawler/go-vaegan/model"
	"github.com/tsawler/go-vaegan/tensor"
)

// zeroProvider serves all-zero images with cycling one-hot labels.
type zeroProvider struct {
	n, h, w, c, yDim int
}

func (p zeroProvider) Name() string { return "zeros" }
func (p zeroProvider) Len() int { return p.n }
func (p zeroProvider) Shape() (int, int, int) { return p.h, p.w, p.c }
func (p zeroProvider) LabelDim() int { return p.yDim }
func (p zeroProvider) Range() (float32, float32) { return -1, 1 }

func (p zeroProvider) Batch(start, size int) (*tensor.Tensor, *tensor.Tensor, error) {
	images, err := tensor.Zeros([]int{size, p.h, p.w, p.c})
	if err != nil {
		return nil, nil, err
	}
	if p.yDim == 0 {
		return images, nil, nil
	}
	labels, err := tensor.Zeros([]int{size, p.yDim})
	if err != nil {
		return nil, nil, err
	}
	for i := 0; i < size; i++ {
		labels.Data[i*p.yDim+(start+i)%p.yDim] = 1
	}
	return images, labels, nil
}

// recordProgress keeps every step report.
type recordProgress struct {
	steps  []StepReport
	epochs int
}

func (r *recordProgress) Step(s StepReport) { r.steps = append(r.steps, s) }
func (r *recordProgress) EndEpoch(int) { r.epochs++ }

func testConfig(t *testing.T) Config {
	t.Helper()
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.Epochs = 1
	cfg.CheckpointDir = filepath.Join(root, "checkpoint")
	cfg.SampleDir = filepath.Join(root, "samples")
	cfg.LogDir = filepath.Join(root, "logs")
	cfg.HistogramBins = 5
	return cfg
}

func testModelConfig(zDim int, conditional bool) model.Config {
	cfg := model.DefaultConfig()
	cfg.BatchSize = 4
	cfg.OutputHeight, cfg.OutputWidth = 8, 8
	cfg.Channels = 3
	cfg.ZDim = zDim
	cfg.GFDim, cfg.DFDim = 2, 2
	cfg.GFCDim, cfg.DFCDim = 8, 8
	cfg.HiddenDim = 8
	if conditional {
		cfg.Channels = 1
		cfg.YDim = 3
	}
	return cfg
}

func requireFinite(t *testing.T, losses map[string]float32, keys ...string) {
	t.Helper()
	for _, k := range keys {
		v, ok := losses[k]
		require.True(t, ok, "missing %s", k)
		require.True(t, tensor.FromScalar(v).IsFinite(), "%s = %v", k, v)
	}
}

func TestTrainerStepAndRestore(t *testing.T) {
	cfg := testConfig(t)
	mc := testModelConfig(100, false)
	data := zeroProvider{n: 8, h: 8, w: 8, c: 3}

	m, err := model.New(mc, model.Classic{})
	require.NoError(t, err)
	rec := &recordProgress{}
	tr, err := NewTrainer(cfg, m, data, rec)
	require.NoError(t, err)

	restored, err := tr.Restore()
	require.NoError(t, err)
	require.False(t, restored)
	require.Equal(t, 1, tr.Counter())

	require.NoError(t, tr.Step(0, 0, 2))
	require.Equal(t, 2, tr.Counter())
	require.Len(t, rec.steps, 1)
	requireFinite(t, rec.steps[0].Losses, "d_loss", "g_loss", "e_loss", "d_loss_real", "d_loss_fake")

	// E, G, G, D: the generator optimizer stepped twice.
	require.EqualValues(t, 1, tr.Optimizer(model.PartitionEncoder).GetStepCount())
	require.EqualValues(t, 2, tr.Optimizer(model.PartitionGenerator).GetStepCount())
	require.EqualValues(t, 1, tr.Optimizer(model.PartitionDiscriminator).GetStepCount())

	// Counter 2 hits the default checkpoint cadence.
	steps, err := tr.Manager().Steps()
	require.NoError(t, err)
	require.Equal(t, []int{2}, steps)

	c, err := tr.Checkpoint()
	require.NoError(t, err)
	_, err = tr.Manager().Save(c, 7)
	require.NoError(t, err)

	mc.Seed = 99
	fresh, err := model.New(mc, model.Classic{})
	require.NoError(t, err)
	tr2, err := NewTrainer(cfg, fresh, data, rec)
	require.NoError(t, err)
	restored, err = tr2.Restore()
	require.NoError(t, err)
	require.True(t, restored)
	require.Equal(t, 7, tr2.Counter())
	require.EqualValues(t, 2, tr2.Optimizer(model.PartitionGenerator).GetStepCount())

	want := m.Params.Snapshot()
	for name, got := range fresh.Params.Snapshot() {
		if diff := cmp.Diff(want[name].Data, got.Data); diff != "" {
			t.Fatalf("%s differs after restore (-want +got):\n%s", name, diff)
		}
	}
}

func TestTrainerTrainWritesSamples(t *testing.T) {
	cfg := testConfig(t)
	cfg.SampleEvery, cfg.SampleOffset = 1, 0
	mc := testModelConfig(4, false)
	data := zeroProvider{n: 9, h: 8, w: 8, c: 3}

	m, err := model.New(mc, model.Classic{})
	require.NoError(t, err)
	rec := &recordProgress{}
	tr, err := NewTrainer(cfg, m, data, rec)
	require.NoError(t, err)
	require.NoError(t, tr.Train())

	require.Len(t, rec.steps, 2)
	require.Equal(t, 1, rec.epochs)
	require.Equal(t, 3, tr.Counter())

	for _, name := range []string{
		"train_00_0000.png", "train_00_0000(original).png", "train_00_0000(reconstruction).png",
		"train_00_0001.png",
	} {
		_, err := os.Stat(filepath.Join(cfg.SampleDir, name))
		require.NoError(t, err, name)
	}

	logs, err := filepath.Glob(filepath.Join(cfg.LogDir, "*.jsonl"))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	f, err := os.Open(logs[0])
	require.NoError(t, err)
	defer f.Close()
	events, err := ReadEvents(f)
	require.NoError(t, err)

	tags := map[string]int{}
	for _, e := range events {
		tags[e.Tag]++
	}
	for _, tag := range []string{"d_loss", "g_loss", "e_loss", "d_loss_real", "d_loss_fake", "z", "d", "d_", "G/image/0"} {
		require.Positive(t, tags[tag], "missing %s event", tag)
	}

	// Every update writes its own losses: per batch E, G, G, D.
	require.Equal(t, 4, tags["g_loss"])
	require.Equal(t, 2, tags["e_loss"])
	require.Equal(t, 2, tags["d_loss"])
	require.Equal(t, 2, tags["d"])
	require.Equal(t, 6, tags["z"])
}

func TestTrainerWassersteinSummariesPerCriticStep(t *testing.T) {
	cfg := testConfig(t)
	mc := testModelConfig(4, true)
	data := zeroProvider{n: 4, h: 8, w: 8, c: 1, yDim: 3}

	regime := model.DefaultWasserstein()
	regime.CriticSteps = 3
	m, err := model.New(mc, regime)
	require.NoError(t, err)
	tr, err := NewTrainer(cfg, m, data, &recordProgress{})
	require.NoError(t, err)
	require.NoError(t, tr.Train())

	logs, err := filepath.Glob(filepath.Join(cfg.LogDir, "*.jsonl"))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	f, err := os.Open(logs[0])
	require.NoError(t, err)
	defer f.Close()
	events, err := ReadEvents(f)
	require.NoError(t, err)

	counts := map[string]int{}
	for _, e := range events {
		require.Equal(t, 1, e.Step, e.Tag)
		counts[e.Tag]++
	}
	require.Equal(t, 3, counts["d_loss"])
	require.Equal(t, 3, counts["w_distance"])
	require.Equal(t, 3, counts["gradient_penalty"])
	require.Equal(t, 1, counts["g_loss"])
	require.Zero(t, counts["e_loss"])
}

func TestRestoreKeepsConfiguredLearningRate(t *testing.T) {
	cfg := testConfig(t)
	mc := testModelConfig(4, false)
	data := zeroProvider{n: 4, h: 8, w: 8, c: 3}

	m, err := model.New(mc, model.Classic{})
	require.NoError(t, err)
	tr, err := NewTrainer(cfg, m, data, &recordProgress{})
	require.NoError(t, err)
	_, err = tr.Save()
	require.NoError(t, err)

	cfg.LearningRate = 0.001
	m2, err := model.New(mc, model.Classic{})
	require.NoError(t, err)
	tr2, err := NewTrainer(cfg, m2, data, &recordProgress{})
	require.NoError(t, err)
	restored, err := tr2.Restore()
	require.NoError(t, err)
	require.True(t, restored)

	st, err := tr2.Optimizer(model.PartitionGenerator).GetState()
	require.NoError(t, err)
	require.Equal(t, float32(0.001), st.Parameters["learning_rate"])
}

func TestTrainerSampleFailureIsNotFatal(t *testing.T) {
	cfg := testConfig(t)
	cfg.SampleEvery, cfg.SampleOffset = 1, 0
	cfg.SampleNum = 3
	mc := testModelConfig(4, false)
	data := zeroProvider{n: 4, h: 8, w: 8, c: 3}

	m, err := model.New(mc, model.Classic{})
	require.NoError(t, err)
	tr, err := NewTrainer(cfg, m, data, &recordProgress{})
	require.NoError(t, err)
	require.NoError(t, tr.Train())

	// Three samples do not fill a grid; the batch of four still does.
	_, err = os.Stat(filepath.Join(cfg.SampleDir, "train_00_0000.png"))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(cfg.SampleDir, "train_00_0000(original).png"))
	require.NoError(t, err)
}

func TestTrainerWassersteinConditional(t *testing.T) {
	cfg := testConfig(t)
	mc := testModelConfig(4, true)
	data := zeroProvider{n: 4, h: 8, w: 8, c: 1, yDim: 3}

	regime := model.DefaultWasserstein()
	regime.CriticSteps = 2
	m, err := model.New(mc, regime)
	require.NoError(t, err)
	rec := &recordProgress{}
	tr, err := NewTrainer(cfg, m, data, rec)
	require.NoError(t, err)
	require.NoError(t, tr.Train())

	require.Len(t, rec.steps, 1)
	requireFinite(t, rec.steps[0].Losses, "d_loss", "g_loss", "w_distance", "gradient_penalty")
	require.EqualValues(t, 2, tr.Optimizer(model.PartitionDiscriminator).GetStepCount())
	require.EqualValues(t, 1, tr.Optimizer(model.PartitionGenerator).GetStepCount())
	require.Nil(t, tr.Optimizer(model.PartitionEncoder))

	// Counter 2 is past the first sample step of the default cadence.
	_, err = os.Stat(filepath.Join(cfg.SampleDir, "train_00_0000.png"))
	require.True(t, os.IsNotExist(err), "counter 2 is not a sample step")
}

func TestNewTrainerRejectsMismatchedData(t *testing.T) {
	cfg := testConfig(t)

	m, err := model.New(testModelConfig(4, false), model.Classic{})
	require.NoError(t, err)
	_, err = NewTrainer(cfg, m, zeroProvider{n: 4, h: 16, w: 16, c: 3}, nil)
	require.Error(t, err)

	cm, err := model.New(testModelConfig(4, true), model.Classic{})
	require.NoError(t, err)
	_, err = NewTrainer(cfg, cm, zeroProvider{n: 4, h: 8, w: 8, c: 1, yDim: 10}, nil)
	require.Error(t, err)
}
