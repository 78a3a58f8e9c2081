package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/biochar-corc/internal/corc"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// TestLoad_Defaults verifies the configuration used when no file or env is set.
func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, zerolog.InfoLevel, cfg.Level())

	m, err := cfg.BuildMethodology()
	require.NoError(t, err)
	assert.Equal(t, corc.GWPAR5, m.GWP)
	assert.Equal(t, corc.RangeClamp, m.RangePolicy)
	assert.Equal(t, corc.DefaultPersistenceTable(), m.Persistence)
}

// TestLoad_File verifies YAML values are applied over the defaults.
func TestLoad_File(t *testing.T) {
	path := writeFile(t, "corc.yaml", `
logLevel: debug
methodology:
  gwpVersion: IPCC-AR6
  temperatureRangePolicy: extrapolate
  qualityThreshold: 0.6
  estimatedEmissionsFraction: 0.2
emissionFactors:
  transportKgCO2ePerTonneKm: 0.08
  energy:
    electricity: 0.25
    hydrogen: 0.9
server:
  listenAddr: 127.0.0.1:9000
  shutdownTimeout: 30s
data:
  dbPath: /var/lib/corc/corc.db
workers: 4
`)

	cfg, err := Load(path, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, zerolog.DebugLevel, cfg.Level())
	assert.Equal(t, "IPCC-AR6", cfg.Methodology.GWPVersion)
	assert.Equal(t, 0.08, cfg.EmissionFactors.TransportKgCO2ePerTonneKm)
	assert.Equal(t, 0.25, cfg.EmissionFactors.Energy["electricity"])
	assert.Equal(t, 0.9, cfg.EmissionFactors.Energy["hydrogen"])
	assert.Equal(t, 2.68, cfg.EmissionFactors.Energy["diesel"], "defaults merged")
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.ListenAddr)
	assert.Equal(t, ":8081", cfg.Server.HealthAddr)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "/var/lib/corc/corc.db", cfg.Data.DBPath)
	assert.Equal(t, 4, cfg.Workers)

	calc, err := cfg.NewCalculator(zerolog.Nop())
	require.NoError(t, err)
	m := calc.Methodology()
	assert.Equal(t, corc.GWPAR6, m.GWP)
	assert.Equal(t, corc.RangeExtrapolate, m.RangePolicy)
	assert.Equal(t, 0.6, m.QualityThreshold)
	assert.Equal(t, 0.2, m.EstimatedEmissionsFraction)
	assert.Equal(t, "BC+200/IPCC-AR6", m.Name)
}

// TestLoad_Env verifies CORC_* overrides, including warn-and-default on bad values.
func TestLoad_Env(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		validate func(t *testing.T, cfg Config)
	}{
		{
			name: "overrides",
			env: map[string]string{
				EnvLogLevel:                   "warn",
				EnvGWPVersion:                 "ipcc-ar6",
				EnvRangePolicy:                "reject",
				EnvQualityThreshold:           "0.65",
				EnvEstimatedEmissionsFraction: "0.15",
				EnvTransportFactor:            "0.12",
				EnvListenAddr:                 ":7000",
				EnvHealthAddr:                 ":7001",
				EnvShutdownTimeout:            "3s",
				EnvDBPath:                     "corc.db",
				EnvDataset:                    "periods.json",
				EnvWorkers:                    "2",
			},
			validate: func(t *testing.T, cfg Config) {
				assert.Equal(t, zerolog.WarnLevel, cfg.Level())
				assert.Equal(t, "ipcc-ar6", cfg.Methodology.GWPVersion)
				assert.Equal(t, "reject", cfg.Methodology.TemperatureRangePolicy)
				assert.Equal(t, 0.65, cfg.Methodology.QualityThreshold)
				assert.Equal(t, 0.15, cfg.Methodology.EstimatedEmissionsFraction)
				assert.Equal(t, 0.12, cfg.EmissionFactors.TransportKgCO2ePerTonneKm)
				assert.Equal(t, ":7000", cfg.Server.ListenAddr)
				assert.Equal(t, ":7001", cfg.Server.HealthAddr)
				assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
				assert.Equal(t, "corc.db", cfg.Data.DBPath)
				assert.Equal(t, "periods.json", cfg.Data.Dataset)
				assert.Equal(t, 2, cfg.Workers)
			},
		},
		{
			name: "invalid numbers keep defaults",
			env: map[string]string{
				EnvQualityThreshold: "high",
				EnvShutdownTimeout:  "-1s",
				EnvWorkers:          "many",
			},
			validate: func(t *testing.T, cfg Config) {
				assert.Equal(t, corc.DefaultQualityThreshold, cfg.Methodology.QualityThreshold)
				assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
				assert.Equal(t, 0, cfg.Workers)
			},
		},
		{
			name: "blank values ignored",
			env: map[string]string{
				EnvGWPVersion: "   ",
			},
			validate: func(t *testing.T, cfg Config) {
				assert.Equal(t, corc.DefaultGWPVersion, cfg.Methodology.GWPVersion)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load("", zerolog.Nop())
			require.NoError(t, err)
			tt.validate(t, cfg)
		})
	}
}

// TestLoad_Invalid verifies that validation rejects inconsistent configuration.
func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name          string
		file          string
		env           map[string]string
		expectedError string
	}{
		{name: "unknown gwp", env: map[string]string{EnvGWPVersion: "IPCC-AR4"}, expectedError: "unknown GWP version"},
		{name: "unknown range policy", env: map[string]string{EnvRangePolicy: "wrap"}, expectedError: "temperature range policy"},
		{name: "bad log level", env: map[string]string{EnvLogLevel: "loud"}, expectedError: "log level"},
		{name: "zero quality threshold", env: map[string]string{EnvQualityThreshold: "0"}, expectedError: "quality threshold"},
		{name: "fraction of one", env: map[string]string{EnvEstimatedEmissionsFraction: "1"}, expectedError: "estimated emissions fraction"},
		{name: "negative factor", file: "emissionFactors:\n  energy:\n    diesel: -1\n", expectedError: "emission factors"},
		{name: "unnormalized energy type", file: "emissionFactors:\n  energy:\n    Heavy Oil: 3\n", expectedError: "snake_case"},
		{name: "negative workers", file: "workers: -2\n", expectedError: "workers"},
		{name: "malformed yaml", file: "methodology: [\n", expectedError: "failed to parse config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeFile(t, "corc.yaml", tt.file)
			}
			_, err := Load(path, zerolog.Nop())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedError)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), zerolog.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// TestBuildMethodology_PersistenceTable verifies the persistence table override file.
func TestBuildMethodology_PersistenceTable(t *testing.T) {
	t.Run("override", func(t *testing.T) {
		cfg := Default()
		cfg.Methodology.PersistenceTable = writeFile(t, "table.csv", "temp_c,m,a\n0,95,30\n40,80,45\n")

		m, err := cfg.BuildMethodology()
		require.NoError(t, err)
		assert.Equal(t, 0.0, m.Persistence.MinTempC())
		assert.Equal(t, 40.0, m.Persistence.MaxTempC())
	})

	t.Run("missing", func(t *testing.T) {
		cfg := Default()
		cfg.Methodology.PersistenceTable = filepath.Join(t.TempDir(), "absent.csv")

		_, err := cfg.BuildMethodology()
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("invalid", func(t *testing.T) {
		cfg := Default()
		cfg.Methodology.PersistenceTable = writeFile(t, "table.csv", "temp_c,m,a\n20,89.87,35.29\n")

		_, err := cfg.BuildMethodology()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "persistence table")
	})
}
