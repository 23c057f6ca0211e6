package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd(a *app) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		Long: `Print the configuration after defaults, config file, environment and
flags have been merged. Secrets such as the upload API key are masked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, _ := cmd.Flags().GetString("format")
			masked := a.cfg.Masked()
			out := cmd.OutOrStdout()

			switch strings.ToLower(format) {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(masked)
			case "yaml", "":
				if used := a.loader.GetConfigFileUsed(); used != "" {
					_, _ = fmt.Fprintf(out, "# config file: %s\n", used)
				}
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(masked); err != nil {
					return fmt.Errorf("failed to encode config: %w", err)
				}
				return enc.Close()
			default:
				return fmt.Errorf("unsupported format %q (want yaml or json)", format)
			}
		},
	}
	showCmd.Flags().StringP("format", "f", "yaml", "output format (yaml, json)")

	configCmd.AddCommand(showCmd)
	return configCmd
}
