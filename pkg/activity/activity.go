// Package activity defines the cloud activity records flowing through the
// detection pipeline.
package activity

// LoginStatus is the outcome of a user's login attempts in a record.
type LoginStatus string

const (
	LoginSuccess LoginStatus = "success"
	LoginFailed  LoginStatus = "failed"
)

// Record is a single per-user cloud activity observation. Records are
// immutable once created and live for one detection pass.
type Record struct {
	UserID      string      `json:"user_id"`
	LoginCount  int         `json:"login_count"`
	CPUUsage    float64     `json:"cpu_usage"`
	NetworkIn   float64     `json:"network_in"`
	NetworkOut  float64     `json:"network_out"`
	LoginStatus LoginStatus `json:"login_status"`
}

// ScoredRecord is a Record annotated by the anomaly model.
// AnomalyScore follows the score_samples convention: lower = more anomalous.
type ScoredRecord struct {
	Record
	IsAnomaly    bool    `json:"is_anomaly"`
	AnomalyScore float64 `json:"anomaly_score"`
}

// Features returns the numeric feature vector used by the anomaly model,
// in the fixed order login_count, cpu_usage, network_in, network_out.
func (r Record) Features() []float64 {
	return []float64{float64(r.LoginCount), r.CPUUsage, r.NetworkIn, r.NetworkOut}
}

// FeatureNames returns the column names matching Features order.
func FeatureNames() []string {
	return []string{"login_count", "cpu_usage", "network_in", "network_out"}
}
