package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gooze.dev/pkg/schemata/internal/domain"
)

// testCmd represents the test command.
var testCmd = newTestCmd()

func newTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test [paths...]",
		Short: "Run the unmodified tests",
		Long:  testLongDescription,
		RunE: func(cmd *cobra.Command, args []string) error {
			return workflow.Baseline(cmd.Context(), domain.BaselineArgs{
				Paths:   parsePaths(args),
				Exclude: viper.GetStringSlice(excludeConfigKey),
				Timeout: viper.GetDuration(baselineTimeoutKey),
			})
		},
	}
}

func init() {
	rootCmd.AddCommand(testCmd)
}
