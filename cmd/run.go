package cmd

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gooze.dev/pkg/schemata/internal/domain"
)

// runCmd represents the run command.
var runCmd = newRunCmd()

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [paths...]",
		Short: "Run mutation testing",
		Long:  runLongDescription,
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := parseLevel()
			if err != nil {
				return err
			}

			_, err = workflow.Test(cmd.Context(), domain.TestArgs{
				EstimateArgs: domain.EstimateArgs{
					Paths:     parsePaths(args),
					Exclude:   viper.GetStringSlice(excludeConfigKey),
					Level:     level,
					Operators: viper.GetStringSlice(operatorsConfigKey),
				},
				Run: domain.RunOptions{
					Parallel:        viper.GetInt(runParallelConfigKey),
					MutationTimeout: viper.GetDuration(mutationTimeoutKey),
					BaselineTimeout: viper.GetDuration(baselineTimeoutKey),
					TimeoutFactor:   viper.GetFloat64(timeoutFactorKey),
					TimeoutGrace:    viper.GetDuration(timeoutGraceKey),
					Rollback:        viper.GetBool(rollbackConfigKey),
				},
				SpillDir:   viper.GetString(spillDirConfigKey),
				ShowOutput: viper.GetBool(showOutputConfigKey),
			})

			return errors.Join(err, writeMetrics())
		},
	}

	configureRunFlags(cmd)

	return cmd
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func configureRunFlags(cmd *cobra.Command) {
	flags := cmd.Flags()

	flags.IntP(runParallelFlagName, "p", defaultRunParallel, "number of lanes evaluating mutants at once")
	bindFlagToConfig(flags.Lookup(runParallelFlagName), runParallelConfigKey)

	flags.Duration(mutationTimeoutFlagName, 0, "time limit for one mutant (0 derives it from the baseline)")
	bindFlagToConfig(flags.Lookup(mutationTimeoutFlagName), mutationTimeoutKey)

	flags.Float64(timeoutFactorFlagName, defaultTimeoutFactor, "multiplier applied to the baseline duration")
	bindFlagToConfig(flags.Lookup(timeoutFactorFlagName), timeoutFactorKey)

	flags.Duration(timeoutGraceFlagName, defaultTimeoutGrace, "constant added to the derived mutant timeout")
	bindFlagToConfig(flags.Lookup(timeoutGraceFlagName), timeoutGraceKey)

	flags.String(testRunFlagName, "", "only run tests matching this regular expression")
	bindFlagToConfig(flags.Lookup(testRunFlagName), testRunConfigKey)

	flags.Bool(rollbackFlagName, false, "drop mutants that break the build instead of failing the run")
	bindFlagToConfig(flags.Lookup(rollbackFlagName), rollbackConfigKey)

	flags.Bool(keepWorkspaceFlagName, false, "keep the instrumented build directory")
	bindFlagToConfig(flags.Lookup(keepWorkspaceFlagName), keepWorkspaceConfigKey)

	flags.Bool(showOutputFlagName, false, "print the test output of surviving mutants")
	bindFlagToConfig(flags.Lookup(showOutputFlagName), showOutputConfigKey)

	flags.String(metricsFileFlagName, "", "write Prometheus metrics to this file")
	bindFlagToConfig(flags.Lookup(metricsFileFlagName), metricsTextfileConfigKey)

	flags.String(spillDirFlagName, "", "directory for per-mutant test output (default: system temp dir)")
	bindFlagToConfig(flags.Lookup(spillDirFlagName), spillDirConfigKey)
}

// writeMetrics exports the recorder when a metrics file is configured.
func writeMetrics() error {
	path := viper.GetString(metricsTextfileConfigKey)
	if path == "" || recorder == nil {
		return nil
	}

	if err := recorder.WriteTextfile(path); err != nil {
		slog.Error("Failed to export metrics", "error", err)
		return err
	}

	return nil
}
