package cmd

import (
	"fmt"
	"runtime"

	"github.com/dotandev/padesign/internal/updater"
	"github.com/spf13/cobra"
)

var (
	// Version will be set by the main package
	Version = "dev"

	versionCheckFlag bool
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of padesign",
	Long: `Display the current version of the padesign CLI tool.

With --check the latest published release is looked up (cached for a day).
padesign never contacts the network on its own.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "padesign version %s (%s/%s)\n", Version, runtime.GOOS, runtime.GOARCH)
		if !versionCheckFlag {
			return nil
		}

		res, err := updater.NewChecker(Version, appConfig.UpdateURL).Check(cmd.Context(), false)
		if err != nil {
			return err
		}
		if res.Newer {
			fmt.Fprintf(out, "A new version (%s) is available.\n", res.Latest)
		} else {
			fmt.Fprintf(out, "Up to date (latest release %s).\n", res.Latest)
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionCheckFlag, "check", false, "Check for a newer release")
	rootCmd.AddCommand(versionCmd)
}
