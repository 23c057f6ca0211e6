package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "barscan"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "BARSCAN"

	// DefaultEnvFile is loaded before the environment is read.
	DefaultEnvFile = ".env"
)

// envAliases maps unprefixed variable names, matched case-insensitively,
// onto configuration keys. A prefixed variable wins over its alias.
var envAliases = map[string]string{
	"upload.url":             "UPLOAD_URL",
	"upload.x_api_key":       "UPLOAD_X_API_KEY",
	"upload.timeout_seconds": "UPLOAD_TIMEOUT_SECONDS",
	"upload.backend":         "UPLOAD_BACKEND",
	"log.level":              "LOG_LEVEL",
}

// Loader handles loading configuration from various sources.
type Loader struct {
	v       *viper.Viper
	envFile string
}

// NewLoader creates a loader over a fresh viper instance.
func NewLoader() *Loader {
	return NewLoaderWithViper(viper.New())
}

// NewLoaderWithViper creates a loader over v. Pass the instance that
// command-line flags were bound to so they take precedence.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v, envFile: DefaultEnvFile}
}

// WithEnvFile changes the dotenv file; an empty path disables it.
func (l *Loader) WithEnvFile(path string) *Loader {
	l.envFile = path
	return l
}

// Load loads configuration from files, environment variables, and defaults,
// then validates it.
func (l *Loader) Load() (*Config, error) {
	return l.LoadWithFile("")
}

// LoadWithoutValidation is Load without the final Validate call.
func (l *Loader) LoadWithoutValidation() (*Config, error) {
	return l.LoadWithFileWithoutValidation("")
}

// LoadWithFile loads configuration from a specific file path. An empty path
// searches the standard locations.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	cfg, err := l.LoadWithFileWithoutValidation(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadWithFileWithoutValidation loads configuration without validation.
func (l *Loader) LoadWithFileWithoutValidation(configFile string) (*Config, error) {
	if err := l.loadEnvFile(); err != nil {
		return nil, err
	}

	l.setDefaults()
	l.setupEnvironmentVariables()

	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.addConfigPaths()

		if err := l.v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance for advanced usage.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

// loadEnvFile reads the dotenv file into the process environment. Variables
// that are already set keep their value.
func (l *Loader) loadEnvFile() error {
	if l.envFile == "" {
		return nil
	}
	if err := godotenv.Load(l.envFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("error reading env file %s: %w", l.envFile, err)
	}
	return nil
}

// addConfigPaths adds the standard configuration search paths.
func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

// setupEnvironmentVariables configures environment variable handling.
func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	l.v.AutomaticEnv()

	for key, alias := range envAliases {
		names := []string{envName(key)}
		if actual, ok := lookupEnvFold(alias); ok {
			names = append(names, actual)
		}
		_ = l.v.BindEnv(append([]string{key}, names...)...)
	}
}

// envName returns the prefixed variable name for key.
func envName(key string) string {
	r := strings.NewReplacer(".", "_", "-", "_")
	return EnvPrefix + "_" + strings.ToUpper(r.Replace(key))
}

// lookupEnvFold finds a set environment variable whose name equals name
// ignoring case and returns its exact spelling.
func lookupEnvFold(name string) (string, bool) {
	for _, kv := range os.Environ() {
		k, _, ok := strings.Cut(kv, "=")
		if ok && strings.EqualFold(k, name) {
			return k, true
		}
	}
	return "", false
}

// setDefaults sets default values for all configuration options.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("verbose", d.Verbose)

	l.v.SetDefault("server.host", d.Server.Host)
	l.v.SetDefault("server.port", d.Server.Port)
	l.v.SetDefault("server.cors_origin", d.Server.CORSOrigin)
	l.v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)
	l.v.SetDefault("server.timeout_sec", d.Server.TimeoutSec)
	l.v.SetDefault("server.read_header_timeout_sec", d.Server.ReadHeaderTimeoutSec)
	l.v.SetDefault("server.shutdown_timeout_sec", d.Server.ShutdownTimeoutSec)

	l.v.SetDefault("upload.backend", d.Upload.Backend)
	l.v.SetDefault("upload.url", d.Upload.URL)
	l.v.SetDefault("upload.x_api_key", d.Upload.APIKey)
	l.v.SetDefault("upload.timeout_seconds", d.Upload.TimeoutSeconds)
	l.v.SetDefault("upload.s3.endpoint", d.Upload.S3.Endpoint)
	l.v.SetDefault("upload.s3.access_key", d.Upload.S3.AccessKey)
	l.v.SetDefault("upload.s3.secret_key", d.Upload.S3.SecretKey)
	l.v.SetDefault("upload.s3.bucket", d.Upload.S3.Bucket)
	l.v.SetDefault("upload.s3.use_ssl", d.Upload.S3.UseSSL)
	l.v.SetDefault("upload.s3.prefix", d.Upload.S3.Prefix)

	l.v.SetDefault("search.upscale_factor", d.Search.UpscaleFactor)
	l.v.SetDefault("search.upscale_max_side", d.Search.UpscaleMaxSide)
	l.v.SetDefault("search.sharpen_amount", d.Search.SharpenAmount)
	l.v.SetDefault("search.blur_sigma", d.Search.BlurSigma)
	l.v.SetDefault("search.threshold_block", d.Search.ThresholdBlock)
	l.v.SetDefault("search.threshold_c", d.Search.ThresholdC)
	l.v.SetDefault("search.try_harder", d.Search.TryHarder)
	l.v.SetDefault("search.formats", d.Search.Formats)
	l.v.SetDefault("search.timeout_seconds", d.Search.TimeoutSeconds)

	l.v.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
	l.v.SetDefault("rate_limit.backend", d.RateLimit.Backend)
	l.v.SetDefault("rate_limit.requests_per_minute", d.RateLimit.RequestsPerMinute)
	l.v.SetDefault("rate_limit.burst", d.RateLimit.Burst)
	l.v.SetDefault("rate_limit.redis_addr", d.RateLimit.RedisAddr)
	l.v.SetDefault("rate_limit.redis_password", d.RateLimit.RedisPassword)
	l.v.SetDefault("rate_limit.redis_db", d.RateLimit.RedisDB)
	l.v.SetDefault("rate_limit.key_prefix", d.RateLimit.KeyPrefix)

	l.v.SetDefault("batch.workers", d.Batch.Workers)
	l.v.SetDefault("batch.continue_on_error", d.Batch.ContinueOnError)

	l.v.SetDefault("log.level", d.Log.Level)
	l.v.SetDefault("log.format", d.Log.Format)
	l.v.SetDefault("log.file", d.Log.File)
	l.v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	l.v.SetDefault("log.max_backups", d.Log.MaxBackups)
	l.v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	l.v.SetDefault("log.compress", d.Log.Compress)

	l.v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	l.v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	l.v.SetDefault("tracing.otlp_insecure", d.Tracing.OTLPInsecure)
	l.v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "barscan"))
	}
	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists && configDir != "" {
		paths = append(paths, filepath.Join(configDir, "barscan"))
	}

	return append(paths, "/etc/barscan")
}
