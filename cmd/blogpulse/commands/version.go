package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/itgyani/blogpulse/version"
)

// VersionCmd shows build information
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show blogpulse version information",
	Long:  `Display version, build time, commit hash, and platform information for the blogpulse binary.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		info := version.Get()
		if asJSON {
			return printJSON(info)
		}
		pterm.Println(info.String())
		pterm.Printf("Platform: %s\n", info.Platform)
		pterm.Printf("Go: %s\n", info.GoVersion)
		return nil
	},
}

func init() {
	VersionCmd.Flags().BoolP("json", "j", false, "Output version info as JSON")
}
