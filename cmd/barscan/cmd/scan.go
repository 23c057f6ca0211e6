package cmd

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/barscan/internal/batch"
	"github.com/spf13/cobra"
)

func newScanCmd(a *app) *cobra.Command {
	scanCmd := &cobra.Command{
		Use:   "scan <files...>",
		Short: "Decode QR codes and barcodes in local images",
		Long: `Decode the first QR code or barcode found in each image, one file after
the other. Files without a symbol are reported as not_found and do not make
the command fail; unreadable files do.

Examples:
  barscan scan label.jpg
  barscan scan a.png b.png --format json
  barscan scan label.jpg --upload`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			archive, _ := cmd.Flags().GetBool("upload")

			cfg := batch.Config{Workers: 1, Format: format}
			if err := cfg.Validate(); err != nil {
				return err
			}

			p, err := buildPipeline(a.cfg, archive, 0)
			if err != nil {
				return err
			}

			res := &batch.Result{WorkerCount: 1}
			var failed error
			for _, path := range args {
				r, err := batch.ProcessFile(cmd.Context(), p, path)
				if err != nil {
					failed = errors.Join(failed, err)
				}
				res.Results = append(res.Results, r)
			}

			if err := res.SaveResults(cmd.OutOrStdout(), cfg.Format, "", true); err != nil {
				return err
			}
			if failed != nil {
				return fmt.Errorf("some files could not be processed: %w", failed)
			}
			return nil
		},
	}

	f := scanCmd.Flags()
	f.StringP("format", "f", batch.FormatText, "output format (text, json, csv)")
	f.Bool("upload", false, "archive the original of every decoded file")
	f.StringSlice("formats", nil, "restrict decoding to these symbologies")
	f.Bool("try-harder", true, "use the slower, more thorough decoder mode")
	f.String("upload-backend", "http", "archive backend (http, s3, none)")
	f.String("upload-url", "", "upload service URL for the http backend")
	return scanCmd
}
