//nolint:lll
package config

// Config represents the complete configuration for the barscan service.
// It covers every command (serve, scan, batch) and is loaded from
// configuration files, environment variables, and command-line flags.
type Config struct {
	Verbose bool `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// HTTP server (serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	// Archive of original uploads after a successful decode
	Upload UploadConfig `mapstructure:"upload" yaml:"upload" json:"upload"`

	// Candidate search parameters
	Search SearchConfig `mapstructure:"search" yaml:"search" json:"search"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`

	Batch BatchConfig `mapstructure:"batch" yaml:"batch" json:"batch"`

	Log LogConfig `mapstructure:"log" yaml:"log" json:"log"`

	Tracing TracingConfig `mapstructure:"tracing" yaml:"tracing" json:"tracing"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host                 string `mapstructure:"host" yaml:"host" json:"host"`
	Port                 int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin           string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB          int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec           int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ReadHeaderTimeoutSec int    `mapstructure:"read_header_timeout_sec" yaml:"read_header_timeout_sec" json:"read_header_timeout_sec"`
	ShutdownTimeoutSec   int    `mapstructure:"shutdown_timeout_sec" yaml:"shutdown_timeout_sec" json:"shutdown_timeout_sec"`
}

// UploadConfig selects where originals are archived.
type UploadConfig struct {
	Backend        string   `mapstructure:"backend" yaml:"backend" json:"backend"`
	URL            string   `mapstructure:"url" yaml:"url" json:"url"`
	APIKey         string   `mapstructure:"x_api_key" yaml:"x_api_key" json:"x_api_key"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds" yaml:"timeout_seconds" json:"timeout_seconds"`
	S3             S3Config `mapstructure:"s3" yaml:"s3" json:"s3"`
}

// S3Config contains object store settings for the s3 upload backend.
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key" json:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key" json:"secret_key"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket" json:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl" yaml:"use_ssl" json:"use_ssl"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix" json:"prefix"`
}

// SearchConfig contains the preprocessing and decoder parameters.
type SearchConfig struct {
	UpscaleFactor  float64  `mapstructure:"upscale_factor" yaml:"upscale_factor" json:"upscale_factor"`
	UpscaleMaxSide int      `mapstructure:"upscale_max_side" yaml:"upscale_max_side" json:"upscale_max_side"`
	SharpenAmount  float64  `mapstructure:"sharpen_amount" yaml:"sharpen_amount" json:"sharpen_amount"`
	BlurSigma      float64  `mapstructure:"blur_sigma" yaml:"blur_sigma" json:"blur_sigma"`
	ThresholdBlock int      `mapstructure:"threshold_block" yaml:"threshold_block" json:"threshold_block"`
	ThresholdC     float64  `mapstructure:"threshold_c" yaml:"threshold_c" json:"threshold_c"`
	TryHarder      bool     `mapstructure:"try_harder" yaml:"try_harder" json:"try_harder"`
	Formats        []string `mapstructure:"formats" yaml:"formats" json:"formats"`
	// TimeoutSeconds bounds one search; 0 derives it from the server
	// timeout when serving and leaves it unbounded otherwise.
	TimeoutSeconds int `mapstructure:"timeout_seconds" yaml:"timeout_seconds" json:"timeout_seconds"`
}

// RateLimitConfig contains request throttling settings.
type RateLimitConfig struct {
	Enabled           bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Backend           string `mapstructure:"backend" yaml:"backend" json:"backend"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	Burst             int    `mapstructure:"burst" yaml:"burst" json:"burst"`
	RedisAddr         string `mapstructure:"redis_addr" yaml:"redis_addr" json:"redis_addr"`
	RedisPassword     string `mapstructure:"redis_password" yaml:"redis_password" json:"redis_password"`
	RedisDB           int    `mapstructure:"redis_db" yaml:"redis_db" json:"redis_db"`
	KeyPrefix         string `mapstructure:"key_prefix" yaml:"key_prefix" json:"key_prefix"`
}

// BatchConfig contains batch processing settings.
type BatchConfig struct {
	Workers         int  `mapstructure:"workers" yaml:"workers" json:"workers"`
	ContinueOnError bool `mapstructure:"continue_on_error" yaml:"continue_on_error" json:"continue_on_error"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level" json:"level"`
	Format     string `mapstructure:"format" yaml:"format" json:"format"`
	File       string `mapstructure:"file" yaml:"file" json:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days" json:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress" json:"compress"`
}

// TracingConfig contains OpenTelemetry exporter settings.
type TracingConfig struct {
	Exporter     string `mapstructure:"exporter" yaml:"exporter" json:"exporter"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint" json:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure" yaml:"otlp_insecure" json:"otlp_insecure"`
	ServiceName  string `mapstructure:"service_name" yaml:"service_name" json:"service_name"`
}
