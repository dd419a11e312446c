package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shahbajlive/flowrun/internal/output"
	"github.com/shahbajlive/flowrun/internal/syntax"
)

// Set at build time via -ldflags.
var (
	version = "dev"
	commit  = ""
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and supported language versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if IsJSONOutput() {
				return output.PrintJSON(output.VersionResponse{
					Version:   version,
					Commit:    commit,
					Languages: syntax.SupportedVersions,
				})
			}
			v := version
			if commit != "" {
				v += " (" + commit + ")"
			}
			fmt.Printf("flowrun %s\n", v)
			fmt.Printf("language versions: %v\n", syntax.SupportedVersions)
			return nil
		},
	}
}
