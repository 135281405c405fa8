package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable read by Load
const EnvPrefix = "ZIPENRICH"

// Config represents the complete pipeline configuration
type Config struct {
	Logging      LoggingConfig      `yaml:"logging" envconfig:"LOGGING"`
	Input        InputConfig        `yaml:"input" envconfig:"INPUT"`
	Cleaner      CleanerConfig      `yaml:"cleaner" envconfig:"CLEANER"`
	Geocoder     GeocoderConfig     `yaml:"geocoder" envconfig:"GEOCODER"`
	Demographics DemographicsConfig `yaml:"demographics" envconfig:"DEMOGRAPHICS"`
	Output       OutputConfig       `yaml:"output" envconfig:"OUTPUT"`
	Telemetry    TelemetryConfig    `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" split_words:"true" validate:"oneof=debug info warn warning error"`
	Format   string `yaml:"format" split_words:"true" validate:"oneof=json"`
	Output   string `yaml:"output" split_words:"true" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" split_words:"true" validate:"required_unless=Output console"`
}

// InputConfig describes the tabular input file
type InputConfig struct {
	Path      string        `yaml:"path" split_words:"true"`
	Delimiter string        `yaml:"delimiter" split_words:"true" validate:"len=1"`
	Sheet     string        `yaml:"sheet" split_words:"true"`
	Columns   ColumnsConfig `yaml:"columns" envconfig:"COLUMNS"`
	S3Region  string        `yaml:"s3_region" split_words:"true"`
}

// ColumnsConfig maps normalized source column names onto typed record fields
type ColumnsConfig struct {
	Latitude  string `yaml:"latitude" split_words:"true" validate:"required"`
	Longitude string `yaml:"longitude" split_words:"true" validate:"required"`
	ZipCode   string `yaml:"zip_code" split_words:"true" validate:"required"`
	Borough   string `yaml:"borough" split_words:"true" validate:"required"`
	Date      string `yaml:"date" split_words:"true" validate:"required"`
	Time      string `yaml:"time" split_words:"true"`
}

// CleanerConfig contains cleaning options
type CleanerConfig struct {
	DropColumns      []string `yaml:"drop_columns" split_words:"true"`
	GeohashPrecision uint     `yaml:"geohash_precision" split_words:"true" validate:"min=1,max=12"`
	Timezone         string   `yaml:"timezone" split_words:"true" validate:"omitempty,timezone"`
}

// GeocoderConfig contains reverse-geocoding service configuration
type GeocoderConfig struct {
	BaseURL   string        `yaml:"base_url" split_words:"true" validate:"required,url"`
	UserAgent string        `yaml:"user_agent" split_words:"true" validate:"required"`
	Email     string        `yaml:"email" split_words:"true" validate:"omitempty,email"`
	MinDelay  time.Duration `yaml:"min_delay" split_words:"true" validate:"gte=0"`
	Timeout   time.Duration `yaml:"timeout" split_words:"true" validate:"gt=0"`
	Enabled   bool          `yaml:"enabled" split_words:"true"`
}

// DemographicsConfig locates the local demographic database
type DemographicsConfig struct {
	DBPath string `yaml:"db_path" split_words:"true" validate:"required"`
}

// OutputConfig contains output file configuration
type OutputConfig struct {
	ParquetPath string `yaml:"parquet_path" split_words:"true" validate:"required"`
	CSVPath     string `yaml:"csv_path" split_words:"true" validate:"required"`
	Compression string `yaml:"compression" split_words:"true" validate:"oneof=snappy zstd gzip none"`
	CSVBOM      bool   `yaml:"csv_bom" split_words:"true"`
}

// TelemetryConfig contains OpenTelemetry configuration
type TelemetryConfig struct {
	TraceExporter  string  `yaml:"trace_exporter" split_words:"true" validate:"oneof=stdout none"`
	MetricExporter string  `yaml:"metric_exporter" split_words:"true" validate:"oneof=prometheus none"`
	SampleRatio    float64 `yaml:"sample_ratio" split_words:"true" validate:"gte=0,lte=1"`
	MetricsAddr    string  `yaml:"metrics_addr" split_words:"true"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/zipenrich.log",
		},
		Input: InputConfig{
			Delimiter: ",",
			Columns: ColumnsConfig{
				Latitude:  "latitude",
				Longitude: "longitude",
				ZipCode:   "zip_code",
				Borough:   "borough",
				Date:      "date",
				Time:      "time",
			},
		},
		Cleaner: CleanerConfig{
			DropColumns:      []string{"location"},
			GeohashPrecision: 7,
			Timezone:         "UTC",
		},
		Geocoder: GeocoderConfig{
			BaseURL:   "https://nominatim.openstreetmap.org",
			UserAgent: "zipenrich/1.0",
			MinDelay:  time.Second,
			Timeout:   10 * time.Second,
			Enabled:   true,
		},
		Demographics: DemographicsConfig{
			DBPath: "data/zipdb.bolt",
		},
		Output: OutputConfig{
			ParquetPath: "data/cleaned.parquet",
			CSVPath:     "data/enriched.csv",
			Compression: "snappy",
		},
		Telemetry: TelemetryConfig{
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			SampleRatio:    1.0,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// ZIPENRICH_* environment variables, in increasing order of precedence.
func Load(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Leaf fields carry split_words instead of envconfig tags. An explicit
	// tag makes envconfig fall back to the unprefixed name, so PATH or
	// TIMEOUT from the shell would leak into the config.
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays a YAML file onto cfg
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate checks the configuration against its validation tags
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}
