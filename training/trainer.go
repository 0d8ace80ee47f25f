package training

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/tsawler/go-vaegan/checkpoints"
	"github.com/tsawler/go-vaegan/layers"
	"github.com/tsawler/go-vaegan/model"
	"github.com/tsawler/go-vaegan/optimizer"
	"github.com/tsawler/go-vaegan/tensor"
	"github.com/tsawler/go-vaegan/vision/dataset"
	"github.com/tsawler/go-vaegan/vision/preprocessing"
)

const (
	adamEpsilon = 1e-8
	// maxImageOutputs bounds the generated images recorded per sample event.
	maxImageOutputs = 3
)

// Trainer runs the alternating update schedule of a model over a dataset,
// writing samples, summaries and checkpoints as it goes.
type Trainer struct {
	cfg        Config
	model      *model.Model
	data       dataset.Provider
	optimizers map[model.Partition]optimizer.Optimizer
	manager    *checkpoints.Manager
	summary    *SummaryWriter
	progress   Progress
	runID      string

	counter int
	epoch   int
	start   time.Time

	sampleZ      *tensor.Tensor
	sampleImages *tensor.Tensor
	sampleLabels *tensor.Tensor
}

// NewTrainer checks that data fits the model and sets up one Adam
// optimizer per partition. A nil progress logs one line per step.
func NewTrainer(cfg Config, m *model.Model, data dataset.Provider, progress Progress) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid training configuration: %w", err)
	}
	mc := m.Config
	h, w, c := data.Shape()
	if h != mc.OutputHeight || w != mc.OutputWidth || c != mc.Channels {
		return nil, fmt.Errorf("dataset %s yields %dx%dx%d images, model expects %dx%dx%d",
			data.Name(), h, w, c, mc.OutputHeight, mc.OutputWidth, mc.Channels)
	}
	if mc.Conditional() && data.LabelDim() != mc.YDim {
		return nil, fmt.Errorf("dataset %s has %d label classes, model expects %d", data.Name(), data.LabelDim(), mc.YDim)
	}
	if progress == nil {
		progress = LogProgress{}
	}

	t := &Trainer{
		cfg:        cfg,
		model:      m,
		data:       data,
		optimizers: map[model.Partition]optimizer.Optimizer{},
		progress:   progress,
		runID:      uuid.NewString(),
		counter:    1,
		start:      time.Now(),
	}
	adam := optimizer.AdamConfig{
		LearningRate: cfg.LearningRate,
		Beta1:        cfg.Beta1,
		Beta2:        float32(m.Regime.Beta2()),
		Epsilon:      adamEpsilon,
	}
	for _, p := range m.Partitions() {
		opt, err := optimizer.NewAdamOptimizer(adam, m.Params.Trainable(p.Prefix()))
		if err != nil {
			return nil, fmt.Errorf("optimizer for %s: %w", p, err)
		}
		t.optimizers[p] = opt
	}

	saver := checkpoints.NewCheckpointSaver(cfg.Format).WithHalfPrecision(cfg.HalfPrecision)
	modelDir := checkpoints.ModelDir(data.Name(), mc.BatchSize, mc.OutputHeight, mc.OutputWidth)
	t.manager = checkpoints.NewManager(cfg.CheckpointDir, modelDir, saver, cfg.MaxToKeep)
	return t, nil
}

// Counter returns the global step counter.
func (t *Trainer) Counter() int { return t.counter }

// RunID identifies this run in summaries and checkpoint metadata.
func (t *Trainer) RunID() string { return t.runID }

// Manager returns the checkpoint manager of the model directory.
func (t *Trainer) Manager() *checkpoints.Manager { return t.manager }

// Optimizer returns the optimizer owning partition p.
func (t *Trainer) Optimizer(p model.Partition) optimizer.Optimizer {
	return t.optimizers[p]
}

// Restore loads the newest checkpoint of the model directory, if any, and
// continues the counter from its step. A missing checkpoint is a fresh
// start, not an error.
func (t *Trainer) Restore() (bool, error) {
	slog.Info("reading checkpoints", "dir", t.manager.Dir())
	c, step, err := t.manager.Load()
	if errors.Is(err, checkpoints.ErrNoCheckpoint) {
		slog.Info("no checkpoint found, starting fresh")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load checkpoint: %w", err)
	}
	if err := checkpoints.LoadWeights(c.Weights, t.model.Params); err != nil {
		return false, err
	}
	for i := range c.OptimizerStates {
		st := &c.OptimizerStates[i]
		p, err := partitionForGroup(st.Group)
		if err != nil {
			return false, err
		}
		opt, ok := t.optimizers[p]
		if !ok {
			return false, fmt.Errorf("checkpoint has optimizer state for %s, which this model does not train", st.Group)
		}
		if err := opt.LoadState(st); err != nil {
			return false, fmt.Errorf("restore %s optimizer: %w", st.Group, err)
		}
		// The configured rate wins over the checkpointed one.
		opt.UpdateLearningRate(t.cfg.LearningRate)
	}
	t.counter = step
	t.epoch = c.TrainingState.Epoch
	slog.Info("loaded checkpoint", "path", t.manager.Path(step), "step", step)
	return true, nil
}

func partitionForGroup(group string) (model.Partition, error) {
	for _, p := range []model.Partition{model.PartitionEncoder, model.PartitionGenerator, model.PartitionDiscriminator} {
		if p.Prefix() == group {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown optimizer group %q", group)
}

// Checkpoint captures parameters, optimizer slots and progress.
func (t *Trainer) Checkpoint() (*checkpoints.Checkpoint, error) {
	c := &checkpoints.Checkpoint{
		Weights: checkpoints.ExtractWeights(t.model.Params),
		TrainingState: checkpoints.TrainingState{
			Epoch:        t.epoch,
			Step:         t.counter,
			LearningRate: t.cfg.LearningRate,
		},
		Metadata: checkpoints.CheckpointMetadata{
			RunID:       t.runID,
			Description: fmt.Sprintf("%s %s", t.model.Regime.Name(), t.data.Name()),
			Tags:        []string{t.model.Regime.Name(), t.data.Name()},
		},
	}
	for _, p := range t.model.Partitions() {
		st, err := t.optimizers[p].GetState()
		if err != nil {
			return nil, fmt.Errorf("%s optimizer state: %w", p, err)
		}
		st.Group = p.Prefix()
		c.OptimizerStates = append(c.OptimizerStates, *st)
	}
	return c, nil
}

// Save writes a checkpoint for the current counter.
func (t *Trainer) Save() (string, error) {
	c, err := t.Checkpoint()
	if err != nil {
		return "", err
	}
	path, err := t.manager.Save(c, t.counter)
	if err != nil {
		return "", fmt.Errorf("save checkpoint: %w", err)
	}
	slog.Info("saved checkpoint", "path", path, "step", t.counter)
	return path, nil
}

// Train runs cfg.Epochs epochs. Summaries go to a new event file in the
// log directory, which is closed on return.
func (t *Trainer) Train() (err error) {
	t.summary, err = NewSummaryWriter(t.cfg.LogDir, t.runID, t.cfg.HistogramBins)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, t.summary.Close())
		t.summary = nil
	}()
	slog.Info("writing summaries", "path", t.summary.Path())

	if err := t.prepareSamples(); err != nil {
		return err
	}
	t.start = time.Now()
	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		if r, ok := t.data.(dataset.Reloader); ok && epoch > 0 {
			if err := r.Reload(); err != nil {
				return err
			}
		}
		batches := dataset.Batches(t.data, t.model.Config.BatchSize, t.cfg.TrainSize)
		for idx := 0; idx < batches; idx++ {
			if err := t.Step(epoch, idx, batches); err != nil {
				return fmt.Errorf("epoch %d batch %d: %w", epoch, idx, err)
			}
		}
		t.progress.EndEpoch(epoch)
		if err := t.summary.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// prepareSamples fixes the noise, inputs and labels used at every sample
// event.
func (t *Trainer) prepareSamples() error {
	n := t.cfg.SampleNum
	if n == 0 {
		n = t.model.Config.BatchSize
	}
	if n > t.data.Len() {
		return fmt.Errorf("sample num %d exceeds dataset size %d", n, t.data.Len())
	}
	var err error
	if t.sampleZ, err = t.model.Noise(n); err != nil {
		return err
	}
	if t.sampleImages, t.sampleLabels, err = t.data.Batch(0, n); err != nil {
		return fmt.Errorf("sample inputs: %w", err)
	}
	return nil
}

// Step trains on batch idx of the epoch: every scheduled partition update,
// each writing its own summaries, one evaluation pass for the progress
// line, then the sample and checkpoint cadences.
func (t *Trainer) Step(epoch, idx, batches int) error {
	if t.sampleZ == nil {
		if err := t.prepareSamples(); err != nil {
			return err
		}
	}
	t.epoch = epoch
	mc := t.model.Config
	images, labels, err := t.data.Batch(idx*mc.BatchSize, mc.BatchSize)
	if err != nil {
		return err
	}
	z, err := t.model.Noise(mc.BatchSize)
	if err != nil {
		return err
	}
	batch := model.Batch{Images: images, Z: z}
	if mc.Conditional() {
		batch.Labels = labels
	}

	for _, p := range t.model.Regime.Schedule(mc.Conditional()) {
		if err := t.update(p, batch); err != nil {
			return err
		}
	}

	g, err := t.model.Build(batch, model.BuildOptions{Mode: layers.Train})
	if err != nil {
		return fmt.Errorf("evaluate losses: %w", err)
	}
	losses := g.Scalars()

	t.counter++
	t.progress.Step(StepReport{
		Epoch:   epoch,
		Index:   idx,
		Batches: batches,
		Counter: t.counter,
		Elapsed: time.Since(t.start),
		Losses:  losses,
	})

	if t.cfg.sampleDue(t.counter) {
		t.sample(epoch, idx, images)
	}
	if t.cfg.checkpointDue(t.counter) {
		if _, err := t.Save(); err != nil {
			return err
		}
	}
	return nil
}

// update rebuilds the graph with the current parameters and applies one
// Adam step to partition p.
func (t *Trainer) update(p model.Partition, batch model.Batch) error {
	g, err := t.model.Build(batch, model.BuildOptions{Mode: layers.Train, UpdateStats: true})
	if err != nil {
		return fmt.Errorf("update %s: %w", p, err)
	}
	grads, err := g.Grads(p)
	if err != nil {
		return err
	}
	t.summarize(p, g)
	if err := t.optimizers[p].Step(grads); err != nil {
		return fmt.Errorf("update %s: %w", p, err)
	}
	slog.Debug("updated partition", "partition", p.String(), "loss", g.Loss(p).Item())
	return nil
}

// partitionScalars lists the losses recorded with each partition update.
var partitionScalars = map[model.Partition][]string{
	model.PartitionDiscriminator: {"d_loss", "d_loss_real", "d_loss_fake", "w_distance", "gradient_penalty"},
	model.PartitionGenerator:     {"g_loss", "reconstruction_loss"},
	model.PartitionEncoder:       {"e_loss"},
}

// summarize records the losses and distributions seen by the update of
// partition p. Failures are logged; the stream is best effort.
func (t *Trainer) summarize(p model.Partition, g *model.Graph) {
	if t.summary == nil {
		return
	}
	step := t.counter
	logIf := func(err error) {
		if err != nil {
			slog.Warn("failed to write summary", "step", step, "error", err)
		}
	}
	all := g.Scalars()
	scalars := map[string]float32{}
	for _, k := range partitionScalars[p] {
		if v, ok := all[k]; ok {
			scalars[k] = v
		}
	}
	logIf(t.summary.Scalars(step, scalars))
	if p == model.PartitionEncoder {
		return
	}
	logIf(t.summary.Histogram(step, "z", g.Z.Value()))
	if p == model.PartitionDiscriminator {
		logIf(t.summary.Histogram(step, "d", scoreValue(g.DReal)))
	}
	logIf(t.summary.Histogram(step, "d_", scoreValue(g.DFake)))
}

// scoreValue returns the probabilities of a sigmoid discriminator and the
// raw logits of a critic.
func scoreValue(s model.Scores) *tensor.Tensor {
	if s.Prob != nil {
		return s.Prob.Value()
	}
	return s.Logits.Value()
}

// sample writes the fixed-noise sample grid, its losses and, for the
// autoencoding model, the reconstruction of the current batch. Image
// failures are logged and training continues.
func (t *Trainer) sample(epoch, idx int, images *tensor.Tensor) {
	name := fmt.Sprintf("train_%02d_%04d", epoch, idx)
	low, high := t.model.OutputRange()

	samples, err := t.model.Sample(t.sampleZ, t.sampleLabels)
	if err != nil {
		slog.Warn("failed to generate samples", "error", err)
		return
	}
	batch := model.Batch{Images: t.sampleImages, Z: t.sampleZ}
	if t.model.Config.Conditional() {
		batch.Labels = t.sampleLabels
	}
	if g, err := t.model.Build(batch, model.BuildOptions{Mode: layers.Train}); err != nil {
		slog.Warn("failed to evaluate sample losses", "error", err)
	} else {
		losses := g.Scalars()
		slog.Info("sample", "d_loss", losses["d_loss"], "g_loss", losses["g_loss"])
	}
	t.saveGrid(samples, filepath.Join(t.cfg.SampleDir, name+".png"), low, high)
	if t.summary != nil {
		if err := t.summary.Images(t.counter, "G", samples, low, high, maxImageOutputs); err != nil {
			slog.Warn("failed to write summary", "step", t.counter, "error", err)
		}
	}

	if t.model.Config.Conditional() {
		return
	}
	recon, err := t.model.Reconstruct(images)
	if err != nil {
		slog.Warn("failed to reconstruct batch", "error", err)
		return
	}
	dataLow, dataHigh := t.data.Range()
	t.saveGrid(images, filepath.Join(t.cfg.SampleDir, name+"(original).png"), dataLow, dataHigh)
	t.saveGrid(recon, filepath.Join(t.cfg.SampleDir, name+"(reconstruction).png"), low, high)
}

func (t *Trainer) saveGrid(images *tensor.Tensor, path string, low, high float32) {
	res := preprocessing.SaveImages(images, path, low, high)
	if !res.OK() {
		slog.Warn("failed to save images", "path", res.Path, "error", res.Err)
		return
	}
	slog.Debug("saved images", "path", res.Path, "grid", fmt.Sprintf("%dx%d", res.Rows, res.Cols))
}
