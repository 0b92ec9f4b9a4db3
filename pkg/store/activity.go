package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/skywardsec/cloudsentry/pkg/activity"
)

// activityColumns is the on-disk column order of the activity table.
var activityColumns = []string{
	"user_id", "login_count", "cpu_usage", "network_in", "network_out", "login_status",
}

// WriteActivity writes the activity table to path, replacing any existing file.
func WriteActivity(path string, records []activity.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("store: creating activity table: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(activityColumns); err != nil {
		return fmt.Errorf("store: writing activity header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.UserID,
			strconv.Itoa(r.LoginCount),
			formatFloat(r.CPUUsage),
			formatFloat(r.NetworkIn),
			formatFloat(r.NetworkOut),
			string(r.LoginStatus),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("store: writing activity row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("store: flushing activity table: %w", err)
	}
	return f.Close()
}

// ReadActivity loads the activity table from path.
func ReadActivity(path string) ([]activity.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("store: opening activity table: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("store: reading activity table: %w", err)
	}
	if len(rows) == 0 {
		return nil, &MalformedInputError{Table: "activity", Column: "user_id", Err: errMissingColumn}
	}

	idx, err := columnIndex("activity", rows[0], activityColumns)
	if err != nil {
		return nil, err
	}

	records := make([]activity.Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		logins, err := strconv.Atoi(row[idx["login_count"]])
		if err != nil {
			return nil, &MalformedInputError{Table: "activity", Column: "login_count", Row: i + 1, Err: err}
		}
		cpu, err := parseFloatCell("activity", "cpu_usage", i+1, row[idx["cpu_usage"]])
		if err != nil {
			return nil, err
		}
		netIn, err := parseFloatCell("activity", "network_in", i+1, row[idx["network_in"]])
		if err != nil {
			return nil, err
		}
		netOut, err := parseFloatCell("activity", "network_out", i+1, row[idx["network_out"]])
		if err != nil {
			return nil, err
		}

		records = append(records, activity.Record{
			UserID:      row[idx["user_id"]],
			LoginCount:  logins,
			CPUUsage:    cpu,
			NetworkIn:   netIn,
			NetworkOut:  netOut,
			LoginStatus: activity.LoginStatus(row[idx["login_status"]]),
		})
	}
	return records, nil
}

// formatFloat uses the shortest decimal form that reparses to the same
// float, so a write/read cycle is lossless.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloatCell(table, column string, row int, cell string) (float64, error) {
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, &MalformedInputError{Table: table, Column: column, Row: row, Err: err}
	}
	return v, nil
}
