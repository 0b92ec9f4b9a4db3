// Package pipeline runs one detection pass: synthesize activity, train the
// anomaly model, score, classify flagged rows and persist both tables.
//
// The pass is synchronous and single-shot. There is no checkpointing or
// partial-failure recovery; the first error aborts the run and surfaces to
// the caller.
package pipeline

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/skywardsec/cloudsentry/pkg/activity"
	"github.com/skywardsec/cloudsentry/pkg/detect"
	"github.com/skywardsec/cloudsentry/pkg/store"
	"github.com/skywardsec/cloudsentry/pkg/threat"
)

// Config carries everything one run needs; file paths are explicit here so
// nothing in the core reads process-wide state.
type Config struct {
	// RecordCount is the number of synthetic activity records to generate.
	RecordCount int
	// Seed drives generation and model training for reproducible runs.
	Seed int64
	// Contamination is the expected fraction of anomalous records.
	Contamination float64
	// Estimators is the Isolation Forest ensemble size.
	Estimators int

	// ActivityPath and ThreatPath are the CSV table destinations.
	ActivityPath string
	ThreatPath   string
	// ModelPath, when non-empty, receives the trained model for later
	// ad hoc scoring.
	ModelPath string
}

// Result summarizes a completed run.
type Result struct {
	Records   int
	Anomalies int
	Threats   []threat.Record

	AttackCounts map[threat.AttackType]int
	RiskCounts   map[threat.RiskLevel]int
}

// Run executes one full detection pass.
func Run(log zerolog.Logger, cfg Config) (*Result, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}

	log.Info().Int("records", cfg.RecordCount).Int64("seed", cfg.Seed).
		Msg("generating simulated cloud activity")
	records := activity.Generate(cfg.RecordCount, cfg.Seed)

	if err := store.WriteActivity(cfg.ActivityPath, records); err != nil {
		return nil, err
	}

	log.Info().Float64("contamination", cfg.Contamination).Int("estimators", cfg.Estimators).
		Msg("training isolation forest")
	model := detect.New(
		detect.WithContamination(cfg.Contamination),
		detect.WithEstimators(cfg.Estimators),
		detect.WithSeed(cfg.Seed),
	)
	if err := model.Train(records); err != nil {
		return nil, err
	}

	scored, err := model.DetectAnomalies(records)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Records:      len(records),
		AttackCounts: make(map[threat.AttackType]int),
		RiskCounts:   make(map[threat.RiskLevel]int),
	}
	for _, s := range scored {
		if !s.IsAnomaly {
			continue
		}
		result.Anomalies++
		rec := threat.FromScored(s)
		result.Threats = append(result.Threats, rec)
		result.AttackCounts[rec.AttackType]++
		result.RiskCounts[rec.RiskLevel]++
	}

	log.Info().Int("anomalies", result.Anomalies).Int("records", result.Records).
		Msg("classified detected threats")

	if err := store.WriteThreats(cfg.ThreatPath, result.Threats); err != nil {
		return nil, err
	}

	if cfg.ModelPath != "" {
		blob, err := model.Save()
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(cfg.ModelPath, blob, 0o644); err != nil {
			return nil, fmt.Errorf("pipeline: writing model: %w", err)
		}
		log.Info().Str("path", cfg.ModelPath).Msg("saved trained model")
	}

	return result, nil
}

func validate(cfg Config) error {
	switch {
	case cfg.RecordCount <= 0:
		return errors.New("pipeline: record count must be positive")
	case cfg.Contamination <= 0 || cfg.Contamination > 0.5:
		return errors.New("pipeline: contamination must be in (0, 0.5]")
	case cfg.Estimators <= 0:
		return errors.New("pipeline: estimators must be positive")
	case cfg.ActivityPath == "" || cfg.ThreatPath == "":
		return errors.New("pipeline: activity and threat table paths are required")
	}
	return nil
}
