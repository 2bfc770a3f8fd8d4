package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Config holds all configuration values for a conversion run.
type Config struct {
	Blender    BlenderConfig    `yaml:"blender" env:"BLENDER"`
	Extraction ExtractionConfig `yaml:"extraction" env:"EXTRACTION"`
	Inspect    InspectConfig    `yaml:"inspect" env:"INSPECT"`
	Log        LogConfig        `yaml:"log" env:"LOG"`
	Ledger     LedgerConfig     `yaml:"ledger" env:"LEDGER"`
	Storage    StorageConfig    `yaml:"storage" env:"STORAGE"`
	Metrics    MetricsConfig    `yaml:"metrics" env:"METRICS"`
}

// BlenderConfig describes how the host application is launched.
type BlenderConfig struct {
	Path string `yaml:"path" env:"PATH"`
	// ImportOperator is the bpy.ops entry point used to import the scene.
	ImportOperator string        `yaml:"import_operator" env:"IMPORT_OPERATOR"`
	FactoryStartup bool          `yaml:"factory_startup" env:"FACTORY_STARTUP"`
	Timeout        time.Duration `yaml:"timeout" env:"TIMEOUT"`
	ExtraArgs      []string      `yaml:"extra_args" env:"EXTRA_ARGS"`
}

// ExtractionConfig controls how .zip inputs are unpacked.
type ExtractionConfig struct {
	// Method is either "builtin" or "unzip".
	Method        string `yaml:"method" env:"METHOD"`
	UnzipPath     string `yaml:"unzip_path" env:"UNZIP_PATH"`
	ModelsDir     string `yaml:"models_dir" env:"MODELS_DIR"`
	ScratchPrefix string `yaml:"scratch_prefix" env:"SCRATCH_PREFIX"`
	// TempDir is the parent of scratch directories; empty means os.TempDir().
	TempDir string `yaml:"temp_dir" env:"TEMP_DIR"`
}

type InspectConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string   `yaml:"level" env:"LEVEL"`
	Format      string   `yaml:"format" env:"FORMAT"`
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
}

// LedgerConfig configures the conversion history database.
type LedgerConfig struct {
	Enabled  bool   `yaml:"enabled" env:"ENABLED"`
	Driver   string `yaml:"driver" env:"DRIVER"`
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	Name     string `yaml:"name" env:"NAME"`
	SSLMode  string `yaml:"ssl_mode" env:"SSL_MODE"`
	// Path is the database file for the sqlite driver.
	Path string `yaml:"path" env:"PATH"`
}

// StorageConfig configures publishing of project files to MinIO.
type StorageConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Endpoint  string `yaml:"endpoint" env:"ENDPOINT"`
	AccessKey string `yaml:"access_key" env:"ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"SECRET_KEY"`
	Bucket    string `yaml:"bucket" env:"BUCKET"`
	UseSSL    bool   `yaml:"use_ssl" env:"USE_SSL"`
	Prefix    string `yaml:"prefix" env:"PREFIX"`
}

// MetricsConfig controls where run metrics are flushed at exit.
type MetricsConfig struct {
	Textfile       string `yaml:"textfile" env:"TEXTFILE"`
	PushgatewayURL string `yaml:"pushgateway_url" env:"PUSHGATEWAY_URL"`
	Job            string `yaml:"job" env:"JOB"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Blender: BlenderConfig{
			Path:           "blender",
			ImportOperator: "wm.collada_import",
			Timeout:        10 * time.Minute,
		},
		Extraction: ExtractionConfig{
			Method:        "builtin",
			UnzipPath:     "unzip",
			ModelsDir:     "models",
			ScratchPrefix: "blenddae",
		},
		Inspect: InspectConfig{Enabled: true},
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			OutputPaths: []string{"stderr"},
		},
		Ledger: LedgerConfig{
			Driver:  "sqlite",
			Port:    5432,
			SSLMode: "disable",
			Path:    "dae2blend.db",
		},
		Storage: StorageConfig{
			Prefix: "projects",
		},
		Metrics: MetricsConfig{
			Job: "dae2blend",
		},
	}
}

var operatorRE = regexp.MustCompile(`^[a-z_]+\.[a-z_]+$`)

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Blender.Path) == "" {
		errs = append(errs, "blender.path must not be empty")
	}
	if !operatorRE.MatchString(c.Blender.ImportOperator) {
		errs = append(errs, fmt.Sprintf("blender.import_operator %q is not a bpy.ops path", c.Blender.ImportOperator))
	}
	if c.Blender.Timeout < 0 {
		errs = append(errs, "blender.timeout must not be negative")
	}

	switch c.Extraction.Method {
	case "builtin":
	case "unzip":
		if strings.TrimSpace(c.Extraction.UnzipPath) == "" {
			errs = append(errs, "extraction.unzip_path must not be empty")
		}
	default:
		errs = append(errs, fmt.Sprintf("extraction.method must be builtin or unzip, got %q", c.Extraction.Method))
	}
	if c.Extraction.ModelsDir == "" || strings.ContainsAny(c.Extraction.ModelsDir, `/\`) {
		errs = append(errs, fmt.Sprintf("extraction.models_dir must be a single directory name, got %q", c.Extraction.ModelsDir))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format must be console or json, got %q", c.Log.Format))
	}

	if c.Ledger.Enabled {
		switch c.Ledger.Driver {
		case "postgres":
			if c.Ledger.Host == "" || c.Ledger.User == "" || c.Ledger.Name == "" {
				errs = append(errs, "ledger: postgres configuration is incomplete")
			}
		case "sqlite":
			if c.Ledger.Path == "" {
				errs = append(errs, "ledger.path must not be empty for sqlite")
			}
		default:
			errs = append(errs, fmt.Sprintf("ledger.driver must be postgres or sqlite, got %q", c.Ledger.Driver))
		}
	}

	if c.Storage.Enabled {
		if c.Storage.Endpoint == "" || c.Storage.AccessKey == "" || c.Storage.SecretKey == "" || c.Storage.Bucket == "" {
			errs = append(errs, "storage: minio configuration is incomplete")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DSN returns the connection string for the configured ledger driver.
func (l *LedgerConfig) DSN() string {
	switch l.Driver {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			l.Host, l.Port, l.User, l.Password, l.Name, l.SSLMode)
	case "sqlite":
		return l.Path
	default:
		return ""
	}
}
