package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcus/yoga/internal/output"
	ver "github.com/marcus/yoga/internal/version"
)

var versionCmd = &cobra.Command{
	Use:     "version",
	Short:   "Show version information",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := ver.Get(version)
		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return output.JSON(info)
		}
		fmt.Println(info)
		return nil
	},
}

func init() {
	versionCmd.Flags().Bool("json", false, "Machine-readable JSON")
	rootCmd.AddCommand(versionCmd)
}
