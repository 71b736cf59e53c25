package cmd

import (
	"runtime/debug"

	"github.com/spf13/cobra"
)

const unknownVersion = "(devel)"

// versionCmd represents the version command.
var versionCmd = newVersionCmd()

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the schemata version",
		Long:  "Print the schemata build version, the Go toolchain that built it and the config file version it writes.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			toolVersion, goVersion := buildVersions(debug.ReadBuildInfo())

			cmd.Printf("schemata version %s\n", toolVersion)
			cmd.Printf("built with %s\n", goVersion)
			cmd.Printf("config %s %d (%s)\n", configVersionKey, currentConfigVersion, configFileName)
		},
	}
}

func buildVersions(info *debug.BuildInfo, ok bool) (string, string) {
	if !ok || info == nil {
		return unknownVersion, "unknown"
	}

	toolVersion := info.Main.Version
	if toolVersion == "" {
		toolVersion = unknownVersion
	}

	return toolVersion, info.GoVersion
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
