package cmd

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tsawler/go-vaegan/checkpoints"
	"github.com/tsawler/go-vaegan/envconfig"
	"github.com/tsawler/go-vaegan/model"
	"github.com/tsawler/go-vaegan/training"
)

func newInspectCmd() *cobra.Command {
	inspectCmd := &cobra.Command{
		Use:   "inspect [MODEL_DIR]",
		Short: "Show the newest checkpoint of a model directory",
		Long: `Show the newest checkpoint of a model directory.

Without MODEL_DIR the directory is derived from --checkpoint_dir, --dataset,
--batch_size and --output_height/--output_width, as the train command does.`,
		Args: cobra.MaximumNArgs(1),
		RunE: InspectHandler,
	}

	mc := model.DefaultConfig()
	flags := inspectCmd.Flags()
	flags.String("checkpoint_dir", training.DefaultConfig().CheckpointDir, "Directory for checkpoints")
	flags.String("dataset", "celebA", "Dataset the model was trained on")
	flags.Int("batch_size", mc.BatchSize, "Batch size of the run")
	flags.Int("output_height", mc.OutputHeight, "Height of generated images")
	flags.Int("output_width", 0, "Width of generated images (0 for output_height)")
	flags.Bool("weights", true, "List every stored tensor")
	return inspectCmd
}

// inspectManager resolves the checkpoint manager from args or flags.
func inspectManager(cmd *cobra.Command, args []string) (*checkpoints.Manager, error) {
	saver := checkpoints.NewCheckpointSaver(checkpoints.FormatProto)
	if len(args) == 1 {
		dir := filepath.Clean(args[0])
		return checkpoints.NewManager(filepath.Dir(dir), filepath.Base(dir), saver, 0), nil
	}

	flags := cmd.Flags()
	root, err := flags.GetString("checkpoint_dir")
	if err != nil {
		return nil, err
	}
	name, err := flags.GetString("dataset")
	if err != nil {
		return nil, err
	}
	batchSize, err := flags.GetInt("batch_size")
	if err != nil {
		return nil, err
	}
	height, err := flags.GetInt("output_height")
	if err != nil {
		return nil, err
	}
	width, err := flags.GetInt("output_width")
	if err != nil {
		return nil, err
	}
	if width == 0 {
		width = height
	}
	return checkpoints.NewManager(root, checkpoints.ModelDir(name, batchSize, height, width), saver, 0), nil
}

// InspectHandler prints the metadata, optimizer groups and weights of the
// newest checkpoint.
func InspectHandler(cmd *cobra.Command, args []string) error {
	manager, err := inspectManager(cmd, args)
	if err != nil {
		return err
	}
	c, step, err := manager.Load()
	if err != nil {
		return fmt.Errorf("%s: %w", manager.Dir(), err)
	}

	out := cmd.OutOrStdout()
	meta := c.Metadata
	fmt.Fprintf(out, "checkpoint:  %s\n", manager.Path(step))
	fmt.Fprintf(out, "step:        %d\n", step)
	fmt.Fprintf(out, "epoch:       %d\n", c.TrainingState.Epoch)
	if meta.RunID != "" {
		fmt.Fprintf(out, "run:         %s\n", meta.RunID)
	}
	if !meta.CreatedAt.IsZero() {
		fmt.Fprintf(out, "created:     %s\n", meta.CreatedAt.Format(time.RFC3339))
	}
	if meta.Description != "" {
		fmt.Fprintf(out, "description: %s\n", meta.Description)
	}
	if len(meta.Tags) > 0 {
		fmt.Fprintf(out, "tags:        %s\n", strings.Join(meta.Tags, ", "))
	}
	fmt.Fprintf(out, "framework:   %s %s\n", meta.Framework, meta.Version)

	for _, st := range c.OptimizerStates {
		keys := slices.Sorted(maps.Keys(st.Parameters))
		params := make([]string, 0, len(keys))
		for _, k := range keys {
			params = append(params, fmt.Sprintf("%s=%v", k, st.Parameters[k]))
		}
		fmt.Fprintf(out, "optimizer:   %s %s %s\n", st.Group, st.Type, strings.Join(params, " "))
	}

	if show, _ := cmd.Flags().GetBool("weights"); show {
		fmt.Fprintln(out)
		training.PrintWeights(out, c.Weights)
	}
	return nil
}

func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Print the environment settings in effect",
		Args:  cobra.ExactArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			vars := envconfig.AsMap()
			for _, k := range slices.Sorted(maps.Keys(vars)) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s=%v\n", k, vars[k].Value)
			}
		},
	}
}
