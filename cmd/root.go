// Package cmd provides the root command and CLI setup for schemata.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"gooze.dev/pkg/schemata/internal/adapter"
	"gooze.dev/pkg/schemata/internal/controller"
	"gooze.dev/pkg/schemata/internal/domain"
	"gooze.dev/pkg/schemata/internal/metrics"
	m "gooze.dev/pkg/schemata/internal/model"
)

// workflow serves every command. It is built on first use from the
// configuration unless a test has set it.
var workflow domain.Workflow

// recorder collects the measurements of the workflow built by newWorkflow.
var recorder *metrics.Recorder

const pathPatternsHelp = `Supports Go-style path patterns:
  - ./...          recursively scan current directory
  - ./pkg/...      recursively scan pkg directory
  - ./cmd ./pkg    scan multiple directories
  - ./pkg/a.go     a single source file`

const rootLongDescription = `Schemata is a mutation testing tool for Go. It compiles every mutant of a
source file into one instrumented test binary and selects the active mutant
at run time, so each package is built once instead of once per mutant.

` + pathPatternsHelp

const runLongDescription = `Run mutation testing for the given paths (default: current directory).

Each source file is one mutation run: the instrumented package is built, the
unmodified tests must pass, then every mutant is evaluated and scored.

` + pathPatternsHelp

const listLongDescription = `List the mutants of every source file without building anything.

` + pathPatternsHelp

const testLongDescription = `Build and run the unmodified tests of every source file's package.

` + pathPatternsHelp

// rootCmd represents the base command when called without any subcommands.
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "schemata",
		Short:         "Go mutation testing with mutant schemata",
		Long:          rootLongDescription,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if configErr != nil {
				return fmt.Errorf("failed to read %s: %w", configFileName, configErr)
			}

			configureLogger(viper.GetString(logFilenameKey), viper.GetBool(logVerboseKey))

			if workflow != nil {
				return nil
			}

			built, err := newWorkflow(cmd)
			if err != nil {
				return err
			}

			workflow = built

			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	configureRootFlags(cmd)

	return cmd
}

func configureRootFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()

	flags.StringArrayP(excludeFlagName, "x", nil, "exclude files matching regex (can be repeated)")
	bindFlagToConfig(flags.Lookup(excludeFlagName), excludeConfigKey)

	flags.StringP(levelFlagName, "l", defaultLevel, "mutation level: basic, standard, advanced or complete")
	bindFlagToConfig(flags.Lookup(levelFlagName), levelConfigKey)

	flags.StringSlice(operatorsFlagName, nil, "only use these mutation operators (comma separated)")
	bindFlagToConfig(flags.Lookup(operatorsFlagName), operatorsConfigKey)

	flags.StringSlice(tagsFlagName, nil, "build tags used to load and compile packages")
	bindFlagToConfig(flags.Lookup(tagsFlagName), buildTagsConfigKey)

	flags.StringP(formatFlagName, "f", defaultFormat, "report format: text, json or yaml")
	bindFlagToConfig(flags.Lookup(formatFlagName), formatConfigKey)

	flags.Duration(baselineTimeoutFlagName, defaultBaselineTimeout, "time limit for the unmodified test run (0 disables it)")
	bindFlagToConfig(flags.Lookup(baselineTimeoutFlagName), baselineTimeoutKey)

	flags.BoolP(verboseFlagName, "v", defaultLogVerbose, "log at debug level")
	bindFlagToConfig(flags.Lookup(verboseFlagName), logVerboseKey)

	flags.String(logFileFlagName, defaultLogFilename, "log file")
	bindFlagToConfig(flags.Lookup(logFileFlagName), logFilenameKey)
}

// bindFlagToConfig wires a Cobra flag to a Viper key so config/env values feed the flag.
func bindFlagToConfig(flag *pflag.Flag, key string) {
	if flag == nil {
		cobra.CheckErr(fmt.Errorf("flag for config key %q not found", key))
		return
	}

	cobra.CheckErr(viper.BindPFlag(key, flag))
}

// newWorkflow wires the adapters, the orchestrator and the UI from the configuration.
func newWorkflow(cmd *cobra.Command) (domain.Workflow, error) {
	format, err := controller.ParseFormat(viper.GetString(formatConfigKey))
	if err != nil {
		return nil, err
	}

	tags := viper.GetStringSlice(buildTagsConfigKey)

	fsAdapter := adapter.NewLocalSourceFSAdapter()
	goFileAdapter := adapter.NewLocalGoFileAdapter(fsAdapter, tags...)
	builder := adapter.NewLocalBuilderAdapter(fsAdapter,
		adapter.WithBuildTags(tags...),
		adapter.WithKeepWorkspace(viper.GetBool(keepWorkspaceConfigKey)),
	)
	runner := adapter.NewLocalTestRunnerAdapter(viper.GetString(testRunConfigKey))
	instrumentor := domain.NewInstrumentor()

	recorder = metrics.NewRecorder()

	return domain.NewWorkflow(
		fsAdapter,
		goFileAdapter,
		controller.NewUI(cmd, format),
		domain.NewOrchestrator(instrumentor, builder, runner, domain.WithRecorder(recorder)),
		instrumentor,
	), nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		stop()
		os.Exit(1)
	}
}

func parsePaths(args []string) []m.Path {
	paths := make([]m.Path, 0, len(args))
	for _, arg := range args {
		paths = append(paths, m.Path(arg))
	}

	return paths
}

func parseLevel() (m.Level, error) {
	level, err := m.ParseLevel(viper.GetString(levelConfigKey))
	if err != nil {
		return level, fmt.Errorf("invalid --%s: %w", levelFlagName, err)
	}

	return level, nil
}
