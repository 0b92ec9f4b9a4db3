package pipeline

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skywardsec/cloudsentry/pkg/store"
	"github.com/skywardsec/cloudsentry/pkg/threat"
)

func testConfig(dir string) Config {
	return Config{
		RecordCount:   200,
		Seed:          42,
		Contamination: 0.20,
		Estimators:    100,
		ActivityPath:  filepath.Join(dir, "cloud_logs.csv"),
		ThreatPath:    filepath.Join(dir, "detected_threats.csv"),
	}
}

func TestRun(t *testing.T) {
	cfg := testConfig(t.TempDir())

	result, err := Run(zerolog.Nop(), cfg)
	require.NoError(t, err)

	assert.Equal(t, 200, result.Records)
	assert.Greater(t, result.Anomalies, 0)
	assert.Len(t, result.Threats, result.Anomalies)

	// Both tables must be persisted and consistent with the result.
	records, err := store.ReadActivity(cfg.ActivityPath)
	require.NoError(t, err)
	assert.Len(t, records, 200)

	threats, err := store.ReadThreats(cfg.ThreatPath)
	require.NoError(t, err)
	assert.Equal(t, result.Threats, threats)

	// Every threat must reference a user present in the activity table.
	users := map[string]bool{}
	for _, r := range records {
		users[r.UserID] = true
	}
	for _, th := range threats {
		assert.True(t, users[th.UserID], "threat user %s missing from activity table", th.UserID)
	}

	var attackTotal, riskTotal int
	for _, n := range result.AttackCounts {
		attackTotal += n
	}
	for _, n := range result.RiskCounts {
		riskTotal += n
	}
	assert.Equal(t, result.Anomalies, attackTotal)
	assert.Equal(t, result.Anomalies, riskTotal)
}

func TestRunDeterministic(t *testing.T) {
	first, err := Run(zerolog.Nop(), testConfig(t.TempDir()))
	require.NoError(t, err)

	second, err := Run(zerolog.Nop(), testConfig(t.TempDir()))
	require.NoError(t, err)

	assert.Equal(t, first.Anomalies, second.Anomalies,
		"identical seed must flag the same number of anomalies")
	assert.Equal(t, first.Threats, second.Threats)
}

func TestRunSavesModel(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.ModelPath = filepath.Join(dir, "model.gob")

	_, err := Run(zerolog.Nop(), cfg)
	require.NoError(t, err)
	assert.FileExists(t, cfg.ModelPath)
}

func TestRunUnwritableDestination(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.ActivityPath = filepath.Join(cfg.ActivityPath, "impossible", "cloud_logs.csv")

	_, err := Run(zerolog.Nop(), cfg)
	assert.Error(t, err, "io failure is fatal to the run")
}

func TestRunValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero records", mutate: func(c *Config) { c.RecordCount = 0 }},
		{name: "bad contamination", mutate: func(c *Config) { c.Contamination = 0.9 }},
		{name: "zero estimators", mutate: func(c *Config) { c.Estimators = 0 }},
		{name: "missing paths", mutate: func(c *Config) { c.ActivityPath = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t.TempDir())
			tt.mutate(&cfg)
			_, err := Run(zerolog.Nop(), cfg)
			assert.Error(t, err)
		})
	}
}

func TestRunThreatFieldsMatchActivity(t *testing.T) {
	cfg := testConfig(t.TempDir())
	result, err := Run(zerolog.Nop(), cfg)
	require.NoError(t, err)

	records, err := store.ReadActivity(cfg.ActivityPath)
	require.NoError(t, err)
	byUser := map[string]float64{}
	for _, r := range records {
		byUser[r.UserID] = r.CPUUsage
	}

	for _, th := range result.Threats {
		assert.Equal(t, byUser[th.UserID], th.CPUUsage)
		assert.NotEqual(t, threat.AttackType(""), th.AttackType)
	}
}
