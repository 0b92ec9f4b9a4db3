package store

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/skywardsec/cloudsentry/pkg/threat"
)

// threatColumns is the on-disk column order of the threat table.
var threatColumns = []string{
	"user_id", "attack_type", "risk_level", "cpu_usage", "network_out", "anomaly_score",
}

// WriteThreats writes the threat table to path, replacing any existing file.
func WriteThreats(path string, records []threat.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("store: creating threat table: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(threatColumns); err != nil {
		return fmt.Errorf("store: writing threat header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.UserID,
			string(r.AttackType),
			string(r.RiskLevel),
			formatFloat(r.CPUUsage),
			formatFloat(r.NetworkOut),
			formatFloat(r.AnomalyScore),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("store: writing threat row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("store: flushing threat table: %w", err)
	}
	return f.Close()
}

// ReadThreats loads the threat table from path.
func ReadThreats(path string) ([]threat.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("store: opening threat table: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("store: reading threat table: %w", err)
	}
	if len(rows) == 0 {
		return nil, &MalformedInputError{Table: "threats", Column: "user_id", Err: errMissingColumn}
	}

	idx, err := columnIndex("threats", rows[0], threatColumns)
	if err != nil {
		return nil, err
	}

	records := make([]threat.Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		cpu, err := parseFloatCell("threats", "cpu_usage", i+1, row[idx["cpu_usage"]])
		if err != nil {
			return nil, err
		}
		netOut, err := parseFloatCell("threats", "network_out", i+1, row[idx["network_out"]])
		if err != nil {
			return nil, err
		}
		score, err := parseFloatCell("threats", "anomaly_score", i+1, row[idx["anomaly_score"]])
		if err != nil {
			return nil, err
		}

		records = append(records, threat.Record{
			UserID:       row[idx["user_id"]],
			AttackType:   threat.AttackType(row[idx["attack_type"]]),
			RiskLevel:    threat.RiskLevel(row[idx["risk_level"]]),
			CPUUsage:     cpu,
			NetworkOut:   netOut,
			AnomalyScore: score,
		})
	}
	return records, nil
}
