package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/MeKo-Tech/barscan/internal/config"
	"github.com/MeKo-Tech/barscan/internal/telemetry"
	"github.com/MeKo-Tech/barscan/internal/version"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps command-line flags onto configuration keys. A flag that is
// set on the command line wins over every other source.
var flagKeys = map[string]string{
	"verbose":           "verbose",
	"log-level":         "log.level",
	"log-format":        "log.format",
	"log-file":          "log.file",
	"host":              "server.host",
	"port":              "server.port",
	"cors-origin":       "server.cors_origin",
	"max-upload-mb":     "server.max_upload_mb",
	"timeout":           "server.timeout_sec",
	"shutdown-timeout":  "server.shutdown_timeout_sec",
	"upload-backend":    "upload.backend",
	"upload-url":        "upload.url",
	"upload-timeout":    "upload.timeout_seconds",
	"rate-limit":        "rate_limit.enabled",
	"rate-limit-rpm":    "rate_limit.requests_per_minute",
	"rate-limit-burst":  "rate_limit.burst",
	"rate-limit-store":  "rate_limit.backend",
	"redis-addr":        "rate_limit.redis_addr",
	"tracing-exporter":  "tracing.exporter",
	"otlp-endpoint":     "tracing.otlp_endpoint",
	"formats":           "search.formats",
	"try-harder":        "search.try_harder",
	"search-timeout":    "search.timeout_seconds",
	"workers":           "batch.workers",
	"continue-on-error": "batch.continue_on_error",
}

// app carries state shared by the commands of one invocation.
type app struct {
	cfgFile string
	envFile string
	loader  *config.Loader
	cfg     *config.Config
	logger  zerolog.Logger
}

// NewRootCommand builds the command tree. Each call returns an independent
// tree, so tests can execute commands repeatedly.
func NewRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "barscan",
		Short: "QR and barcode decoding service",
		Long: `barscan finds and decodes QR codes and barcodes in photos of labels and
documents. It tries every rotation, several crops and several
preprocessing variants of the image until a symbol decodes.

This tool provides:
- An HTTP and WebSocket decode API
- Archiving of decoded originals to an HTTP upload service or S3
- Local decoding of single files and whole directories

Examples:
  barscan scan label.jpg
  barscan batch photos/ --workers 8 --format csv --output results.csv
  barscan serve --port 8080`,
		Version:       version.Get().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	rootCmd.SetVersionTemplate("barscan version {{.Version}}\n")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "",
		"config file (default is barscan.yaml in ., $HOME/.config/barscan, $XDG_CONFIG_HOME/barscan, /etc/barscan)")
	pf.StringVar(&a.envFile, "env-file", config.DefaultEnvFile, "dotenv file loaded before the environment is read")
	pf.BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	pf.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	pf.String("log-format", "console", "log format (console, json)")
	pf.String("log-file", "", "also write logs to this file, rotated")

	rootCmd.AddCommand(
		newServeCmd(a),
		newScanCmd(a),
		newBatchCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the command tree and exits non-zero on failure. This is
// called by main.main().
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// init loads the configuration with cmd's flags bound on top and sets up
// logging.
func (a *app) init(cmd *cobra.Command) error {
	v := viper.New()
	if err := bindFlags(v, cmd.Flags()); err != nil {
		return err
	}

	a.loader = config.NewLoaderWithViper(v).WithEnvFile(a.envFile)
	cfg, err := a.loader.LoadWithFile(a.cfgFile)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	a.cfg = cfg

	level := cfg.Log.Level
	if cfg.Verbose {
		level = "debug"
	}
	a.logger = telemetry.InitLogger(telemetry.LogConfig{
		Level:      level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if used := a.loader.GetConfigFileUsed(); used != "" {
		a.logger.Debug().Str("file", used).Msg("loaded config file")
	}

	cmd.SetContext(a.logger.WithContext(cmd.Context()))
	return nil
}

// bindFlags binds every known flag of fs to its configuration key.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || err != nil {
			return
		}
		if bindErr := v.BindPFlag(key, f); bindErr != nil {
			err = fmt.Errorf("bind flag --%s: %w", f.Name, bindErr)
		}
	})
	return err
}

// splitList flattens comma separated flag values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for part := range strings.SplitSeq(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
