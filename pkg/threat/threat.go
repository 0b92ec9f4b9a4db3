// Package threat labels anomalous activity records with an attack category
// and a risk tier using ordered, first-match-wins rule tables.
package threat

import "github.com/skywardsec/cloudsentry/pkg/activity"

// AttackType is one of the ten named attack categories.
type AttackType string

const (
	AttackDataBreach            AttackType = "Data Breach"
	AttackAccountHijacking      AttackType = "Account Hijacking"
	AttackMalwareInjection      AttackType = "Malware Injection"
	AttackInsecureAPIs          AttackType = "Insecure APIs"
	AttackPhishingImpact        AttackType = "Phishing Impact"
	AttackDoS                   AttackType = "DoS / DDoS"
	AttackInsiderThreats        AttackType = "Insider Threats"
	AttackSharedVulnerabilities AttackType = "Shared Vulnerabilities"
	AttackCloudMisconfiguration AttackType = "Cloud Misconfiguration"
	AttackUnknown               AttackType = "Unknown Threat"
)

// RiskLevel is a coarse severity bucket.
type RiskLevel string

const (
	RiskHigh   RiskLevel = "High"
	RiskMedium RiskLevel = "Medium"
	RiskLow    RiskLevel = "Low"
)

// Record is a detected threat, created only for records flagged anomalous.
// Joins back to activity records happen at query time by UserID; nothing
// enforces the reference after generation.
type Record struct {
	UserID       string     `json:"user_id"`
	AttackType   AttackType `json:"attack_type"`
	RiskLevel    RiskLevel  `json:"risk_level"`
	CPUUsage     float64    `json:"cpu_usage"`
	NetworkOut   float64    `json:"network_out"`
	AnomalyScore float64    `json:"anomaly_score"`
}

// attackRules is evaluated top to bottom; the first matching predicate
// decides the label. Several predicates overlap, so the order here is part
// of the contract: do not reorder.
var attackRules = []struct {
	attack AttackType
	match  func(r activity.ScoredRecord) bool
}{
	{AttackDataBreach, func(r activity.ScoredRecord) bool {
		return r.NetworkOut > 800 && r.CPUUsage > 85
	}},
	{AttackAccountHijacking, func(r activity.ScoredRecord) bool {
		return r.LoginCount > 15 && r.CPUUsage > 80
	}},
	{AttackMalwareInjection, func(r activity.ScoredRecord) bool {
		return r.CPUUsage > 95 && r.NetworkIn > 600
	}},
	{AttackInsecureAPIs, func(r activity.ScoredRecord) bool {
		return r.NetworkIn > 700 && r.NetworkOut > 700
	}},
	{AttackPhishingImpact, func(r activity.ScoredRecord) bool {
		return r.LoginCount > 20
	}},
	{AttackDoS, func(r activity.ScoredRecord) bool {
		return r.NetworkIn > 900 || r.NetworkOut > 900
	}},
	{AttackInsiderThreats, func(r activity.ScoredRecord) bool {
		return r.CPUUsage > 90 && r.LoginCount < 5
	}},
	{AttackSharedVulnerabilities, func(r activity.ScoredRecord) bool {
		return r.LoginCount > 10 && r.CPUUsage > 75
	}},
	{AttackCloudMisconfiguration, func(r activity.ScoredRecord) bool {
		return r.CPUUsage < 20 && r.NetworkOut > 500
	}},
}

// Classify maps a scored record to an attack category. Total and
// deterministic; records matching no rule label as Unknown Threat.
func Classify(r activity.ScoredRecord) AttackType {
	for _, rule := range attackRules {
		if rule.match(r) {
			return rule.attack
		}
	}
	return AttackUnknown
}

// riskRules is evaluated top to bottom, first match wins.
var riskRules = []struct {
	level RiskLevel
	match func(r activity.ScoredRecord) bool
}{
	{RiskHigh, func(r activity.ScoredRecord) bool {
		return r.AnomalyScore < -0.3 || r.CPUUsage > 90 || r.NetworkOut > 800
	}},
	{RiskMedium, func(r activity.ScoredRecord) bool {
		return r.AnomalyScore < -0.15 || r.CPUUsage > 70 || r.NetworkOut > 500
	}},
}

// ScoreRisk maps a scored record to a risk tier. Total and deterministic.
func ScoreRisk(r activity.ScoredRecord) RiskLevel {
	for _, rule := range riskRules {
		if rule.match(r) {
			return rule.level
		}
	}
	return RiskLow
}

// FromScored builds a threat record for a row already flagged anomalous.
func FromScored(r activity.ScoredRecord) Record {
	return Record{
		UserID:       r.UserID,
		AttackType:   Classify(r),
		RiskLevel:    ScoreRisk(r),
		CPUUsage:     r.CPUUsage,
		NetworkOut:   r.NetworkOut,
		AnomalyScore: r.AnomalyScore,
	}
}
