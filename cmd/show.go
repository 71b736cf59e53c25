package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gooze.dev/pkg/schemata/internal/domain"
	m "gooze.dev/pkg/schemata/internal/model"
)

// showCmd represents the show command.
var showCmd = newShowCmd()

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <file> <mutant-id>",
		Short: "Show one mutant and its diff",
		Long: `Print the mutant with the given id of a source file, as numbered by the
list command for the same level and operators.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[1], 10, 0)
			if err != nil {
				return fmt.Errorf("invalid mutant id %q: %w", args[1], err)
			}

			level, err := parseLevel()
			if err != nil {
				return err
			}

			return workflow.Show(cmd.Context(), domain.ShowArgs{
				Path:      m.Path(args[0]),
				MutantID:  uint(id),
				Level:     level,
				Operators: viper.GetStringSlice(operatorsConfigKey),
			})
		},
	}
}

func init() {
	rootCmd.AddCommand(showCmd)
}
