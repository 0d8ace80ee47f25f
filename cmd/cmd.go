// Package cmd implements the vaegan command line.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tsawler/go-vaegan/envconfig"
)

func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// setupLogging installs a text handler on stderr. verbose forces DEBUG,
// otherwise VAEGAN_DEBUG decides.
func setupLogging(verbose bool) {
	level := envconfig.LogLevel()
	if verbose && level > slog.LevelDebug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// NewCLI returns the root command with every subcommand attached.
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "vaegan",
		Short:         "Train and inspect VAE-GAN image models",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			verbose, _ := cmd.Flags().GetBool("verbose")
			setupLogging(verbose)
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(cmd.UsageString())
		},
	}
	rootCmd.PersistentFlags().Bool("verbose", false, "Log at debug level")

	trainCmd := newTrainCmd()
	inspectCmd := newInspectCmd()
	envCmd := newEnvCmd()

	envVars := envconfig.AsMap()
	appendEnvDocs(trainCmd, []envconfig.EnvVar{
		envVars["VAEGAN_DATA"],
		envVars["VAEGAN_DEBUG"],
		envVars["VAEGAN_WORKERS"],
		envVars["VAEGAN_CACHE_SIZE"],
		envVars["VAEGAN_NOPROGRESS"],
		envVars["VAEGAN_HALF_PRECISION"],
	})
	appendEnvDocs(inspectCmd, []envconfig.EnvVar{envVars["VAEGAN_DEBUG"]})

	rootCmd.AddCommand(trainCmd, inspectCmd, envCmd)
	return rootCmd
}
