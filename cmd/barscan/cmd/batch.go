package cmd

import (
	"fmt"
	"sync/atomic"

	"github.com/MeKo-Tech/barscan/internal/batch"
	"github.com/spf13/cobra"
)

func newBatchCmd(a *app) *cobra.Command {
	batchCmd := &cobra.Command{
		Use:   "batch <dirs|files...>",
		Short: "Decode many images in parallel",
		Long: `Decode every image found under the given files and directories using a
pool of parallel workers. Each image is still searched sequentially.

Supported formats: JPEG, PNG, GIF, BMP, TIFF, WebP

Examples:
  barscan batch photos/
  barscan batch photos/ --workers 8 --include 'IMG_*' --exclude '*.gif'
  barscan batch a.jpg b.png --format json --output results.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bc := a.batchConfig(cmd)
			archive, _ := cmd.Flags().GetBool("upload")
			progress, _ := cmd.Flags().GetBool("progress")

			p, err := buildPipeline(a.cfg, archive, 0)
			if err != nil {
				return err
			}

			if progress && !bc.Quiet {
				var done atomic.Int64
				errOut := cmd.ErrOrStderr()
				bc.OnResult = func(r batch.FileResult) {
					_, _ = fmt.Fprintf(errOut, "[%d] %s: %s\n", done.Add(1), r.File, r.Status)
				}
			}

			res, err := batch.ProcessBatch(cmd.Context(), p, args, bc)
			if err != nil {
				return err
			}

			if err := res.SaveResults(cmd.OutOrStdout(), bc.Format, bc.OutputFile, bc.Quiet); err != nil {
				return err
			}
			if bc.ShowStats {
				res.PrintStats(cmd.ErrOrStderr(), bc.Quiet)
			}
			return nil
		},
	}

	f := batchCmd.Flags()
	f.IntP("workers", "w", 4, "number of parallel workers")
	f.Bool("continue-on-error", true, "keep going when a file cannot be processed")
	f.BoolP("recursive", "r", true, "descend into subdirectories")
	f.StringSlice("include", nil, "only process files whose name matches these globs")
	f.StringSlice("exclude", nil, "skip files whose name matches these globs")
	f.StringP("format", "f", batch.FormatText, "output format (text, json, csv)")
	f.StringP("output", "o", "", "write results to this file instead of stdout")
	f.BoolP("quiet", "q", false, "suppress informational output")
	f.Bool("stats", true, "print summary statistics to stderr")
	f.Bool("progress", false, "print one line per finished file to stderr")
	f.Bool("upload", false, "archive the original of every decoded file")
	f.StringSlice("formats", nil, "restrict decoding to these symbologies")
	f.Bool("try-harder", true, "use the slower, more thorough decoder mode")
	return batchCmd
}

// batchConfig maps the loaded configuration and the command's own flags to
// batch.Config.
func (a *app) batchConfig(cmd *cobra.Command) batch.Config {
	bc := batch.DefaultConfig()
	bc.Workers = a.cfg.Batch.Workers
	bc.ContinueOnError = a.cfg.Batch.ContinueOnError

	f := cmd.Flags()
	bc.Recursive, _ = f.GetBool("recursive")
	include, _ := f.GetStringSlice("include")
	exclude, _ := f.GetStringSlice("exclude")
	bc.IncludePatterns = splitList(include)
	bc.ExcludePatterns = splitList(exclude)
	bc.Format, _ = f.GetString("format")
	bc.OutputFile, _ = f.GetString("output")
	bc.Quiet, _ = f.GetBool("quiet")
	bc.ShowStats, _ = f.GetBool("stats")
	return bc
}
