package server

import (
	"math"
	"sort"

	"github.com/skywardsec/cloudsentry/pkg/activity"
	"github.com/skywardsec/cloudsentry/pkg/threat"
)

// UserSummary is one row of the dashboard's per-user table: activity
// aggregates merged with threat counts. RiskLevel is "Normal" for users
// with no detected threats.
type UserSummary struct {
	UserID      string  `json:"user_id"`
	LoginCount  int     `json:"login_count"`
	CPUUsage    float64 `json:"cpu_usage"`
	NetworkIn   float64 `json:"network_in"`
	NetworkOut  float64 `json:"network_out"`
	ThreatCount int     `json:"threat_count"`
	RiskLevel   string  `json:"risk_level"`
}

// UserDetail is the drill-down view for a single user.
type UserDetail struct {
	UserID        string            `json:"user_id"`
	TotalLogins   int               `json:"total_logins"`
	AvgCPUUsage   float64           `json:"avg_cpu_usage"`
	AvgNetworkIn  float64           `json:"avg_network_in"`
	AvgNetworkOut float64           `json:"avg_network_out"`
	ThreatCount   int               `json:"threat_count"`
	HighestRisk   string            `json:"highest_risk"`
	Threats       []threat.Record   `json:"threats"`
	ActivityLogs  []activity.Record `json:"activity_logs"`
}

// Stats carries the dashboard headline numbers.
type Stats struct {
	TotalRecords int                       `json:"total_records"`
	TotalThreats int                       `json:"total_threats"`
	ThreatRate   float64                   `json:"threat_rate"`
	AttackCounts map[threat.AttackType]int `json:"attack_counts"`
	RiskCounts   map[threat.RiskLevel]int  `json:"risk_counts"`
}

// riskRank orders tiers for worst-wins merging; "Normal" sorts below Low.
var riskRank = map[threat.RiskLevel]int{
	threat.RiskLow:    1,
	threat.RiskMedium: 2,
	threat.RiskHigh:   3,
}

const riskNormal = "Normal"

// summarizeUsers groups activity by user, sums logins, averages the other
// features and merges in per-user threat counts and the worst risk tier.
// Output is sorted by user id.
func summarizeUsers(records []activity.Record, threats []threat.Record) []UserSummary {
	type acc struct {
		logins       int
		cpu, in, out float64
		rows         int
	}
	byUser := map[string]*acc{}
	order := []string{}

	for _, r := range records {
		a, ok := byUser[r.UserID]
		if !ok {
			a = &acc{}
			byUser[r.UserID] = a
			order = append(order, r.UserID)
		}
		a.logins += r.LoginCount
		a.cpu += r.CPUUsage
		a.in += r.NetworkIn
		a.out += r.NetworkOut
		a.rows++
	}

	threatCounts := map[string]int{}
	worstRisk := map[string]threat.RiskLevel{}
	for _, th := range threats {
		threatCounts[th.UserID]++
		if riskRank[th.RiskLevel] > riskRank[worstRisk[th.UserID]] {
			worstRisk[th.UserID] = th.RiskLevel
		}
	}

	sort.Strings(order)
	summaries := make([]UserSummary, 0, len(order))
	for _, id := range order {
		a := byUser[id]
		s := UserSummary{
			UserID:      id,
			LoginCount:  a.logins,
			CPUUsage:    round2(a.cpu / float64(a.rows)),
			NetworkIn:   round2(a.in / float64(a.rows)),
			NetworkOut:  round2(a.out / float64(a.rows)),
			ThreatCount: threatCounts[id],
			RiskLevel:   riskNormal,
		}
		if level, ok := worstRisk[id]; ok {
			s.RiskLevel = string(level)
		}
		summaries = append(summaries, s)
	}
	return summaries
}

// userDetail builds the drill-down view; ok is false when the user has no
// activity rows.
func userDetail(records []activity.Record, threats []threat.Record, userID string) (UserDetail, bool) {
	var logs []activity.Record
	for _, r := range records {
		if r.UserID == userID {
			logs = append(logs, r)
		}
	}
	if len(logs) == 0 {
		return UserDetail{}, false
	}

	detail := UserDetail{
		UserID:       userID,
		HighestRisk:  riskNormal,
		Threats:      []threat.Record{},
		ActivityLogs: logs,
	}
	var cpu, in, out float64
	for _, r := range logs {
		detail.TotalLogins += r.LoginCount
		cpu += r.CPUUsage
		in += r.NetworkIn
		out += r.NetworkOut
	}
	n := float64(len(logs))
	detail.AvgCPUUsage = round2(cpu / n)
	detail.AvgNetworkIn = round2(in / n)
	detail.AvgNetworkOut = round2(out / n)

	for _, th := range threats {
		if th.UserID != userID {
			continue
		}
		detail.Threats = append(detail.Threats, th)
		if detail.HighestRisk == riskNormal ||
			riskRank[th.RiskLevel] > riskRank[threat.RiskLevel(detail.HighestRisk)] {
			detail.HighestRisk = string(th.RiskLevel)
		}
	}
	detail.ThreatCount = len(detail.Threats)

	return detail, true
}

func computeStats(records []activity.Record, threats []threat.Record) Stats {
	stats := Stats{
		TotalRecords: len(records),
		TotalThreats: len(threats),
		AttackCounts: make(map[threat.AttackType]int),
		RiskCounts:   make(map[threat.RiskLevel]int),
	}
	for _, th := range threats {
		stats.AttackCounts[th.AttackType]++
		stats.RiskCounts[th.RiskLevel]++
	}
	if stats.TotalRecords > 0 {
		stats.ThreatRate = round2(float64(stats.TotalThreats) / float64(stats.TotalRecords))
	}
	return stats
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
