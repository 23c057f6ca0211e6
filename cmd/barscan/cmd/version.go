package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/MeKo-Tech/barscan/internal/version"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.Get()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "barscan version %s\n", info.Version)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Commit: %s\n", info.GitCommit)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Date: %s\n", info.BuildDate)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Go: %s %s\n", info.GoVersion, info.Platform)
			return nil
		},
	}
	versionCmd.Flags().Bool("json", false, "print as JSON")
	return versionCmd
}
