package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/biochar-corc/internal/report"
)

const datasetYAML = `
facilities:
  - id: kiln-1
    name: North Kiln
    baselineType: NEW_BUILT
    infrastructureEmissionsKgCO2e: 100000
    amortizationYears: 20
periods:
  - id: 2025-Q1
    facilityId: kiln-1
    start: 2025-01-01T00:00:00Z
    end: 2025-04-01T00:00:00Z
  - id: 2025-Q2
    facilityId: kiln-1
    start: 2025-04-01T00:00:00Z
    end: 2025-07-01T00:00:00Z
batches:
  - id: b-1
    periodId: 2025-Q1
    completedAt: 2025-01-15T00:00:00Z
    dryMassTonnes: 100
    organicCarbonPercent: 80
    hydrogenPercent: 2
    stackCH4Kg: 10
energy:
  - id: e-1
    periodId: 2025-Q1
    energyType: electricity
    quantity: 5000
sequestrations:
  - id: s-1
    periodId: 2025-Q1
    appliedAt: 2025-02-01T00:00:00Z
    meanSoilTempC: 20
`

// run executes the CLI with args and returns stdout and the error.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CORC_CONFIG", "")
	var stdout, stderr bytes.Buffer
	cmd := NewCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// TestCalculate verifies the calculate subcommand on JSON and YAML input.
func TestCalculate(t *testing.T) {
	input := writeTemp(t, "input.json", `{
		"biocharDryMassTonnes": 100,
		"organicCarbonPercent": 80,
		"hydrogenPercent": 2,
		"meanSoilTempC": 20,
		"baselineType": "NEW_BUILT"
	}`)

	t.Run("text", func(t *testing.T) {
		out, err := run(t, "calculate", input)
		require.NoError(t, err)
		assert.Contains(t, out, "Outcome: full")
		assert.Contains(t, out, "Persistence fraction: 79.28%")
	})

	t.Run("json", func(t *testing.T) {
		out, err := run(t, "calculate", input, "-o", "json")
		require.NoError(t, err)

		var doc report.Document
		require.NoError(t, json.Unmarshal([]byte(out), &doc))
		require.NotNil(t, doc.Result)
		assert.InDelta(t, 293.333, doc.Result.CStoredTCO2e, 1e-3)
	})

	t.Run("yaml input", func(t *testing.T) {
		yamlInput := writeTemp(t, "input.yaml", `
biocharDryMassTonnes: 100
organicCarbonPercent: 80
hydrogenPercent: 2
meanSoilTempC: 20
baselineType: RETROFIT_FACILITY
baselineCarbonStorageTCO2e: 3
`)
		out, err := run(t, "calculate", yamlInput)
		require.NoError(t, err)
		assert.Contains(t, out, "Outcome: full")
	})

	t.Run("fallback", func(t *testing.T) {
		bad := writeTemp(t, "bad.json", `{"biocharDryMassTonnes":100,"organicCarbonPercent":80,"hydrogenPercent":2,"meanSoilTempC":20}`)
		out, err := run(t, "calculate", bad)
		require.NoError(t, err)
		assert.Contains(t, out, "Outcome: estimate")
		assert.Contains(t, out, "baselineType")

		_, err = run(t, "calculate", bad, "--strict")
		assert.ErrorContains(t, err, "baselineType")
	})

	t.Run("failed", func(t *testing.T) {
		bad := writeTemp(t, "zero.json", `{"biocharDryMassTonnes":100,"organicCarbonPercent":0,"hydrogenPercent":2,"baselineType":"NEW_BUILT"}`)
		out, err := run(t, "calculate", bad)
		require.Error(t, err)
		assert.Contains(t, out, "Outcome: failed")
	})

	t.Run("bad output format", func(t *testing.T) {
		_, err := run(t, "calculate", input, "-o", "xml")
		assert.ErrorContains(t, err, "unknown output format")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := run(t, "calculate", filepath.Join(t.TempDir(), "absent.json"))
		assert.ErrorContains(t, err, "failed to read input")
	})
}

func TestEstimate(t *testing.T) {
	out, err := run(t, "estimate", "--mass", "100", "--corg", "80", "--h", "2", "--temp", "20")
	require.NoError(t, err)
	assert.Contains(t, out, "Outcome: estimate")
	assert.Contains(t, out, "Persistence fraction: 79.28%")

	_, err = run(t, "estimate", "--mass", "100")
	assert.Error(t, err)
}

// TestPeriodAndRecompute verifies the period and recompute subcommands on a dataset file.
func TestPeriodAndRecompute(t *testing.T) {
	dataset := writeTemp(t, "dataset.yaml", datasetYAML)

	t.Run("period text", func(t *testing.T) {
		out, err := run(t, "period", "2025-Q1", "--dataset", dataset)
		require.NoError(t, err)
		assert.Contains(t, out, "Monitoring period: 2025-Q1")
		assert.Contains(t, out, "Outcome: full")
	})

	t.Run("period update", func(t *testing.T) {
		out, err := run(t, "period", "2025-Q1", "--dataset", dataset, "--update")
		require.NoError(t, err)

		var u report.MonitoringPeriodUpdate
		require.NoError(t, json.Unmarshal([]byte(out), &u))
		assert.Equal(t, "2025-Q1", u.PeriodID)
		assert.Equal(t, report.StatusCalculated, u.Status)
	})

	t.Run("period without batches", func(t *testing.T) {
		_, err := run(t, "period", "2025-Q2", "--dataset", dataset)
		assert.ErrorContains(t, err, "no completed batches")
	})

	t.Run("no source", func(t *testing.T) {
		_, err := run(t, "period", "2025-Q1")
		assert.ErrorIs(t, err, errNoSource)
	})

	t.Run("recompute table", func(t *testing.T) {
		out, err := run(t, "recompute", "--dataset", dataset, "-w", "2")
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 3)
		assert.True(t, strings.HasPrefix(lines[1], "2025-Q1"))
		assert.Contains(t, lines[1], "full")
		assert.True(t, strings.HasPrefix(lines[2], "2025-Q2"))
		assert.Contains(t, lines[2], "error")
	})

	t.Run("recompute json", func(t *testing.T) {
		out, err := run(t, "recompute", "2025-Q2", "2025-Q1", "--dataset", dataset, "-o", "json")
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 2)

		var first, second recomputeRecord
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
		require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
		assert.Equal(t, "2025-Q2", first.PeriodID)
		assert.NotEmpty(t, first.Error)
		assert.Nil(t, first.Quantification)
		assert.Equal(t, "2025-Q1", second.PeriodID)
		assert.Empty(t, second.Error)
		require.NotNil(t, second.Quantification)
		assert.NotNil(t, second.Quantification.Result)
	})
}

// TestImportThenPeriod verifies that an imported database gives the same
// result as the dataset file it came from.
func TestImportThenPeriod(t *testing.T) {
	dataset := writeTemp(t, "dataset.yaml", datasetYAML)
	db := filepath.Join(t.TempDir(), "corc.db")

	out, err := run(t, "import", dataset, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 2 monitoring periods")

	fromDB, err := run(t, "period", "2025-Q1", "--db", db, "-o", "json")
	require.NoError(t, err)
	fromFile, err := run(t, "period", "2025-Q1", "--dataset", dataset, "-o", "json")
	require.NoError(t, err)
	assert.JSONEq(t, fromFile, fromDB)
}

func TestParams(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		out, err := run(t, "params")
		require.NoError(t, err)
		assert.Contains(t, out, "BC+200/IPCC-AR5")
		assert.Contains(t, out, "89.87")
		assert.Contains(t, out, "electricity")
	})

	t.Run("config file", func(t *testing.T) {
		cfg := writeTemp(t, "corc.yaml", "methodology:\n  gwpVersion: IPCC-AR6\n")
		out, err := run(t, "params", "--config", cfg, "-o", "json")
		require.NoError(t, err)

		var v paramsView
		require.NoError(t, json.Unmarshal([]byte(out), &v))
		assert.Equal(t, "BC+200/IPCC-AR6", v.Name)
		assert.Equal(t, 273.0, v.GWP.N2O)
		assert.Len(t, v.PersistenceTable, 5)
	})

	t.Run("bad config", func(t *testing.T) {
		cfg := writeTemp(t, "corc.yaml", "methodology:\n  gwpVersion: IPCC-AR2\n")
		_, err := run(t, "params", "--config", cfg)
		assert.ErrorContains(t, err, "unknown GWP version")
	})

	t.Run("bad log level", func(t *testing.T) {
		var stdout bytes.Buffer
		cmd := NewCommand()
		cmd.SetOut(&stdout)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"params", "--log-level", "chatty"})
		assert.Error(t, cmd.Execute())
	})
}

// TestServe_Shutdown verifies that serve stops cleanly when its context is cancelled.
func TestServe_Shutdown(t *testing.T) {
	t.Setenv("CORC_CONFIG", "")
	ctx, cancel := context.WithCancel(context.Background())

	cmd := NewCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--log-level", "error", "serve", "--listen", "127.0.0.1:0", "--health-listen", "127.0.0.1:0"})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not shut down")
	}
}
