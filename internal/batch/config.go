package batch

import (
	"fmt"
	"strings"
)

// Output formats understood by FormatResults.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Config holds all configuration for batch processing.
type Config struct {
	// Parallel processing settings
	Workers         int
	ContinueOnError bool

	// File discovery settings
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string

	// Output settings
	Format     string
	OutputFile string
	Quiet      bool
	ShowStats  bool

	// OnResult, when set, is called once per finished file. Calls may come
	// from several goroutines at once.
	OnResult func(FileResult)
}

// DefaultConfig returns the stock batch settings.
func DefaultConfig() Config {
	return Config{
		Workers:         4,
		ContinueOnError: true,
		Recursive:       true,
		Format:          FormatText,
		ShowStats:       true,
	}
}

// Validate checks the settings and normalizes the output format.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", c.Workers)
	}
	c.Format = strings.ToLower(strings.TrimSpace(c.Format))
	switch c.Format {
	case "":
		c.Format = FormatText
	case FormatText, FormatJSON, FormatCSV:
	default:
		return fmt.Errorf("unsupported output format %q (want text, json or csv)", c.Format)
	}
	return nil
}
