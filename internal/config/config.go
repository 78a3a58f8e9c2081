// Package config loads engine settings from a YAML file and CORC_ environment
// variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/rshade/biochar-corc/internal/aggregate"
	"github.com/rshade/biochar-corc/internal/corc"
)

// Environment variables read by Load. Each overrides the matching file setting.
const (
	EnvLogLevel                   = "CORC_LOG_LEVEL"
	EnvGWPVersion                 = "CORC_GWP_VERSION"
	EnvRangePolicy                = "CORC_TEMPERATURE_RANGE_POLICY"
	EnvQualityThreshold           = "CORC_QUALITY_THRESHOLD"
	EnvEstimatedEmissionsFraction = "CORC_ESTIMATED_EMISSIONS_FRACTION"
	EnvPersistenceTable           = "CORC_PERSISTENCE_TABLE"
	EnvTransportFactor            = "CORC_TRANSPORT_KG_CO2E_PER_TONNE_KM"
	EnvListenAddr                 = "CORC_LISTEN_ADDR"
	EnvHealthAddr                 = "CORC_HEALTH_ADDR"
	EnvShutdownTimeout            = "CORC_SHUTDOWN_TIMEOUT"
	EnvDBPath                     = "CORC_DB_PATH"
	EnvDataset                    = "CORC_DATASET"
	EnvWorkers                    = "CORC_WORKERS"
)

// Config is the complete engine configuration.
type Config struct {
	LogLevel        string                    `yaml:"logLevel"`
	Methodology     Methodology               `yaml:"methodology"`
	EmissionFactors aggregate.EmissionFactors `yaml:"emissionFactors"`
	Server          Server                    `yaml:"server"`
	Data            Data                      `yaml:"data"`

	// Workers bounds parallel recomputation; 0 means one per CPU.
	Workers int `yaml:"workers"`
}

// Methodology selects the calculation parameters.
type Methodology struct {
	GWPVersion                 string  `yaml:"gwpVersion"`
	TemperatureRangePolicy     string  `yaml:"temperatureRangePolicy"`
	QualityThreshold           float64 `yaml:"qualityThreshold"`
	EstimatedEmissionsFraction float64 `yaml:"estimatedEmissionsFraction"`

	// PersistenceTable is an optional CSV replacing the embedded table.
	PersistenceTable string `yaml:"persistenceTable"`
}

// Server configures the serve command.
type Server struct {
	ListenAddr      string        `yaml:"listenAddr"`
	HealthAddr      string        `yaml:"healthAddr"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// Data names where monitoring-period records come from. DBPath wins when
// both are set.
type Data struct {
	DBPath  string `yaml:"dbPath"`
	Dataset string `yaml:"dataset"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: zerolog.InfoLevel.String(),
		Methodology: Methodology{
			GWPVersion:                 corc.DefaultGWPVersion,
			TemperatureRangePolicy:     corc.RangeClamp.String(),
			QualityThreshold:           corc.DefaultQualityThreshold,
			EstimatedEmissionsFraction: corc.DefaultEstimatedEmissionsFraction,
		},
		EmissionFactors: aggregate.DefaultEmissionFactors(),
		Server: Server{
			ListenAddr:      ":8080",
			HealthAddr:      ":8081",
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result. Energy factors in the file are merged
// with the defaults.
func Load(path string, logger zerolog.Logger) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		logger.Debug().Str("path", path).Msg("config file loaded")
	}

	cfg.applyEnv(logger)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(logger zerolog.Logger) {
	setString := func(env string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			*dst = v
		}
	}
	setFloat := func(env string, dst *float64) {
		v := os.Getenv(env)
		if v == "" {
			return
		}
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			*dst = parsed
		} else {
			logger.Warn().Str("value", v).Msgf("invalid %s, using %v", env, *dst)
		}
	}

	setString(EnvLogLevel, &c.LogLevel)
	setString(EnvGWPVersion, &c.Methodology.GWPVersion)
	setString(EnvRangePolicy, &c.Methodology.TemperatureRangePolicy)
	setFloat(EnvQualityThreshold, &c.Methodology.QualityThreshold)
	setFloat(EnvEstimatedEmissionsFraction, &c.Methodology.EstimatedEmissionsFraction)
	setString(EnvPersistenceTable, &c.Methodology.PersistenceTable)
	setFloat(EnvTransportFactor, &c.EmissionFactors.TransportKgCO2ePerTonneKm)
	setString(EnvListenAddr, &c.Server.ListenAddr)
	setString(EnvHealthAddr, &c.Server.HealthAddr)
	setString(EnvDBPath, &c.Data.DBPath)
	setString(EnvDataset, &c.Data.Dataset)

	if v := os.Getenv(EnvShutdownTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Server.ShutdownTimeout = d
		} else {
			logger.Warn().Str("value", v).Msgf("invalid %s, using %s", EnvShutdownTimeout, c.Server.ShutdownTimeout)
		}
	}
	if v := os.Getenv(EnvWorkers); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Workers = n
		} else {
			logger.Warn().Str("value", v).Msgf("invalid %s, using %d", EnvWorkers, c.Workers)
		}
	}
}

// Validate checks every setting that can be checked without touching disk.
func (c Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: log level: %w", err)
	}
	if _, ok := corc.LookupGWP(c.Methodology.GWPVersion); !ok {
		return fmt.Errorf("config: unknown GWP version %q (known: %s)",
			c.Methodology.GWPVersion, strings.Join(corc.GWPVersions(), ", "))
	}
	if _, err := corc.ParseRangePolicy(c.Methodology.TemperatureRangePolicy); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if q := c.Methodology.QualityThreshold; q <= 0 {
		return fmt.Errorf("config: quality threshold must be positive, got %v", q)
	}
	if f := c.Methodology.EstimatedEmissionsFraction; f < 0 || f >= 1 {
		return fmt.Errorf("config: estimated emissions fraction must be within [0,1), got %v", f)
	}
	if err := c.EmissionFactors.Validate(); err != nil {
		return fmt.Errorf("config: emission factors: %w", err)
	}
	if c.Workers < 0 {
		return fmt.Errorf("config: workers must be non-negative, got %d", c.Workers)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("config: shutdown timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}
	return nil
}

// Level returns the configured log level.
func (c Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// BuildMethodology resolves the methodology settings, reading the
// persistence table override if one is configured.
func (c Config) BuildMethodology() (corc.Methodology, error) {
	m := corc.DefaultMethodology()
	m.Name = ""

	gwp, ok := corc.LookupGWP(c.Methodology.GWPVersion)
	if !ok {
		return corc.Methodology{}, fmt.Errorf("config: unknown GWP version %q", c.Methodology.GWPVersion)
	}
	m.GWP = gwp

	policy, err := corc.ParseRangePolicy(c.Methodology.TemperatureRangePolicy)
	if err != nil {
		return corc.Methodology{}, fmt.Errorf("config: %w", err)
	}
	m.RangePolicy = policy
	m.QualityThreshold = c.Methodology.QualityThreshold
	m.EstimatedEmissionsFraction = c.Methodology.EstimatedEmissionsFraction

	if path := c.Methodology.PersistenceTable; path != "" {
		f, err := os.Open(path)
		if err != nil {
			return corc.Methodology{}, fmt.Errorf("config: failed to open persistence table: %w", err)
		}
		defer func() { _ = f.Close() }()

		table, err := corc.ParsePersistenceCSV(f)
		if err != nil {
			return corc.Methodology{}, fmt.Errorf("config: persistence table %s: %w", path, err)
		}
		m.Persistence = table
	}

	if err := m.Validate(); err != nil {
		return corc.Methodology{}, fmt.Errorf("config: %w", err)
	}
	return m, nil
}

// NewCalculator builds a calculator from the methodology settings.
func (c Config) NewCalculator(logger zerolog.Logger) (*corc.Calculator, error) {
	m, err := c.BuildMethodology()
	if err != nil {
		return nil, err
	}
	return corc.NewCalculator(m, corc.WithLogger(logger))
}
