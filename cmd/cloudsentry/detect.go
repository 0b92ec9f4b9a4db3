package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/skywardsec/cloudsentry/pkg/pipeline"
)

var (
	detectRecords       int
	detectSeed          int64
	detectContamination float64
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Run one detection pass and persist the activity and threat tables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Flags().Changed("records") {
			cfg.Generator.Records = detectRecords
		}
		if cmd.Flags().Changed("seed") {
			cfg.Generator.Seed = detectSeed
		}
		if cmd.Flags().Changed("contamination") {
			cfg.Model.Contamination = detectContamination
		}

		for _, path := range []string{cfg.Data.Activity, cfg.Data.Threats, cfg.Data.Model} {
			if path == "" {
				continue
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
		}

		result, err := pipeline.Run(logger, pipeline.Config{
			RecordCount:   cfg.Generator.Records,
			Seed:          cfg.Generator.Seed,
			Contamination: cfg.Model.Contamination,
			Estimators:    cfg.Model.Estimators,
			ActivityPath:  cfg.Data.Activity,
			ThreatPath:    cfg.Data.Threats,
			ModelPath:     cfg.Data.Model,
		})
		if err != nil {
			return err
		}

		for attack, n := range result.AttackCounts {
			logger.Info().Str("attack_type", string(attack)).Int("count", n).Msg("threat summary")
		}
		for level, n := range result.RiskCounts {
			logger.Info().Str("risk_level", string(level)).Int("count", n).Msg("risk distribution")
		}
		logger.Info().
			Int("records", result.Records).
			Int("anomalies", result.Anomalies).
			Str("activity_table", cfg.Data.Activity).
			Str("threat_table", cfg.Data.Threats).
			Msg("detection pass complete")
		return nil
	},
}

func init() {
	detectCmd.Flags().IntVar(&detectRecords, "records", 200, "number of synthetic activity records")
	detectCmd.Flags().Int64Var(&detectSeed, "seed", 42, "random seed for generation and training")
	detectCmd.Flags().Float64Var(&detectContamination, "contamination", 0.20, "expected fraction of anomalous records")
}
