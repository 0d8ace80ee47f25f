package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tsawler/go-vaegan/checkpoints"
	"github.com/tsawler/go-vaegan/envconfig"
	"github.com/tsawler/go-vaegan/model"
	"github.com/tsawler/go-vaegan/tensor"
	"github.com/tsawler/go-vaegan/training"
	"github.com/tsawler/go-vaegan/vision/dataset"
)

// mnistClasses is the label dimension used for MNIST when --y_dim is unset.
const mnistClasses = 10

func newTrainCmd() *cobra.Command {
	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "Train a model on a dataset under the data root",
		Args:  cobra.ExactArgs(0),
		RunE:  TrainHandler,
	}

	mc := model.DefaultConfig()
	tc := training.DefaultConfig()
	wgan := model.DefaultWasserstein()

	flags := trainCmd.Flags()
	flags.Int("epoch", tc.Epochs, "Epochs to train")
	flags.Float32("learning_rate", tc.LearningRate, "Adam learning rate")
	flags.Float32("beta1", tc.Beta1, "Adam first-moment decay")
	flags.Float64("beta2", wgan.AdamBeta2, "Adam second-moment decay of the WGAN-GP optimizers")
	flags.Int("train_size", 0, "Cap on images read per epoch (0 for all)")
	flags.Int("batch_size", mc.BatchSize, "Images per batch")
	flags.Int("input_height", 108, "Crop height of input images")
	flags.Int("input_width", 0, "Crop width of input images (0 for input_height)")
	flags.Int("output_height", mc.OutputHeight, "Height of generated images")
	flags.Int("output_width", 0, "Width of generated images (0 for output_height)")
	flags.String("dataset", "celebA", "Dataset directory under the data root, or mnist")
	flags.String("input_fname_pattern", "*.jpg", "Glob pattern of input images")
	flags.String("checkpoint_dir", tc.CheckpointDir, "Directory for checkpoints")
	flags.String("sample_dir", tc.SampleDir, "Directory for sample grids")
	flags.String("log_dir", tc.LogDir, "Directory for summary event files")
	flags.Bool("crop", false, "Center-crop input_height x input_width before resizing")
	flags.Bool("wgan", false, "Train a critic with a gradient penalty")
	flags.Float32("lambda", wgan.Lambda, "Gradient penalty weight")
	flags.Float32("gamma", mc.Gamma, "Reconstruction loss weight")
	flags.Int("critic_num", wgan.CriticSteps, "Critic updates per batch")
	flags.Int("y_dim", 0, "Label dimension (0 trains unconditionally, mnist defaults to 10)")
	flags.Int("z_dim", mc.ZDim, "Latent dimension")
	flags.Int("gf_dim", mc.GFDim, "Generator filters in the first convolution")
	flags.Int("df_dim", mc.DFDim, "Discriminator filters in the first convolution")
	flags.Int("gfc_dim", mc.GFCDim, "Generator fully connected units")
	flags.Int("dfc_dim", mc.DFCDim, "Discriminator fully connected units")
	flags.Int("hidden_dim", mc.HiddenDim, "Encoder hidden units")
	flags.Int64("seed", mc.Seed, "Seed for initialization and noise")
	flags.Int("sample_num", 0, "Images in each sample grid (0 for batch_size)")
	flags.String("checkpoint_format", "proto", "Checkpoint encoding (proto or json)")
	flags.Bool("half_precision", envconfig.HalfPrecision(), "Store checkpoint weights as float16")
	flags.Int("max_to_keep", tc.MaxToKeep, "Checkpoints retained (0 keeps all)")

	return trainCmd
}

// trainOptions is everything the train command reads from its flags.
type trainOptions struct {
	Training training.Config
	Model    model.Config
	Regime   model.Regime

	Dataset     string
	Pattern     string
	InputHeight int
	InputWidth  int
	Crop        bool
}

// trainOptionsFromFlags maps the flags of cmd onto the training and model
// configurations. The image size of the model is filled in later from
// the dataset.
func trainOptionsFromFlags(cmd *cobra.Command) (*trainOptions, error) {
	flags := cmd.Flags()
	var errs []error
	getInt := func(name string) int {
		v, err := flags.GetInt(name)
		errs = append(errs, err)
		return v
	}
	getFloat32 := func(name string) float32 {
		v, err := flags.GetFloat32(name)
		errs = append(errs, err)
		return v
	}
	getBool := func(name string) bool {
		v, err := flags.GetBool(name)
		errs = append(errs, err)
		return v
	}
	getString := func(name string) string {
		v, err := flags.GetString(name)
		errs = append(errs, err)
		return v
	}

	opts := &trainOptions{
		Training: training.DefaultConfig(),
		Model:    model.DefaultConfig(),
	}
	tc := &opts.Training
	tc.Epochs = getInt("epoch")
	tc.LearningRate = getFloat32("learning_rate")
	tc.Beta1 = getFloat32("beta1")
	tc.TrainSize = getInt("train_size")
	tc.CheckpointDir = getString("checkpoint_dir")
	tc.SampleDir = getString("sample_dir")
	tc.LogDir = getString("log_dir")
	tc.SampleNum = getInt("sample_num")
	tc.HalfPrecision = getBool("half_precision")
	tc.MaxToKeep = getInt("max_to_keep")

	mc := &opts.Model
	mc.BatchSize = getInt("batch_size")
	mc.OutputHeight = getInt("output_height")
	mc.OutputWidth = getInt("output_width")
	if mc.OutputWidth == 0 {
		mc.OutputWidth = mc.OutputHeight
	}
	mc.YDim = getInt("y_dim")
	mc.ZDim = getInt("z_dim")
	mc.GFDim = getInt("gf_dim")
	mc.DFDim = getInt("df_dim")
	mc.GFCDim = getInt("gfc_dim")
	mc.DFCDim = getInt("dfc_dim")
	mc.HiddenDim = getInt("hidden_dim")
	mc.Gamma = getFloat32("gamma")
	seed, err := flags.GetInt64("seed")
	errs = append(errs, err)
	mc.Seed = seed

	opts.Dataset = getString("dataset")
	opts.Pattern = getString("input_fname_pattern")
	opts.InputHeight = getInt("input_height")
	opts.InputWidth = getInt("input_width")
	if opts.InputWidth == 0 {
		opts.InputWidth = opts.InputHeight
	}
	opts.Crop = getBool("crop")
	if opts.Dataset == "mnist" && mc.YDim == 0 {
		mc.YDim = mnistClasses
	}

	if getBool("wgan") {
		beta2, err := flags.GetFloat64("beta2")
		errs = append(errs, err)
		opts.Regime = model.Wasserstein{
			CriticSteps: getInt("critic_num"),
			Lambda:      getFloat32("lambda"),
			AdamBeta2:   beta2,
		}
	} else {
		opts.Regime = model.Classic{}
	}

	format, err := checkpoints.ParseFormat(getString("checkpoint_format"))
	errs = append(errs, err)
	tc.Format = format

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// openDataset returns the provider named by opts under root.
func openDataset(root string, opts *trainOptions) (dataset.Provider, error) {
	if opts.Dataset == "mnist" {
		return dataset.LoadMNIST(filepath.Join(root, opts.Dataset), opts.Model.YDim)
	}
	return dataset.NewImageFolder(dataset.ImageFolderOptions{
		Root:         root,
		Dataset:      opts.Dataset,
		Pattern:      opts.Pattern,
		InputHeight:  opts.InputHeight,
		InputWidth:   opts.InputWidth,
		OutputHeight: opts.Model.OutputHeight,
		OutputWidth:  opts.Model.OutputWidth,
		Crop:         opts.Crop,
		Workers:      envconfig.Workers(),
		CacheSize:    int(envconfig.CacheSize()),
	})
}

// TrainHandler builds the dataset and model from flags, restores the
// newest checkpoint and trains.
func TrainHandler(cmd *cobra.Command, args []string) error {
	opts, err := trainOptionsFromFlags(cmd)
	if err != nil {
		return err
	}

	tensor.SetParallelism(envconfig.Workers())
	data, err := openDataset(envconfig.DataRoot(), opts)
	if err != nil {
		return err
	}
	h, w, c := data.Shape()
	opts.Model.OutputHeight, opts.Model.OutputWidth, opts.Model.Channels = h, w, c
	slog.Info("loaded dataset", "name", data.Name(), "images", data.Len(), "shape", fmt.Sprintf("%dx%dx%d", h, w, c))

	m, err := model.New(opts.Model, opts.Regime)
	if err != nil {
		return err
	}
	training.PrintArchitecture(cmd.OutOrStdout(), m.Params.Architecture())

	var progress training.Progress = training.LogProgress{}
	if !envconfig.NoProgress() {
		progress = training.TerminalProgress(os.Stderr, opts.Training.Epochs)
	}
	trainer, err := training.NewTrainer(opts.Training, m, data, progress)
	if err != nil {
		return err
	}
	if _, err := trainer.Restore(); err != nil {
		return err
	}
	slog.Info("training", "regime", opts.Regime.Name(), "run", trainer.RunID(), "step", trainer.Counter())
	if err := trainer.Train(); err != nil {
		return err
	}
	if folder, ok := data.(*dataset.ImageFolder); ok {
		slog.Debug("image cache", "stats", folder.CacheStats().String())
	}
	return nil
}
