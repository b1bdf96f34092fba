package cmd

import (
	"fmt"
	"io"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
)

var extended bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information. Use --extended for build, Go and gofulmen details.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeVersion(cmd.OutOrStdout(), extended)
	},
}

func writeVersion(w io.Writer, extended bool) error {
	name := GetAppIdentity().BinaryName
	if !extended {
		_, err := fmt.Fprintf(w, "%s %s\n", name, versionInfo.Version)
		return err
	}

	deps := crucible.GetVersion()
	_, err := fmt.Fprintf(w, "%s %s\nCommit: %s\nBuilt: %s\nGo: %s\n\nGofulmen: %s\nCrucible: %s\n",
		name, versionInfo.Version,
		versionInfo.Commit,
		versionInfo.BuildDate,
		runtime.Version(),
		deps.Gofulmen,
		deps.Crucible)
	return err
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVarP(&extended, "extended", "e", false, "show extended version information")
}
