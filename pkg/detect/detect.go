// Package detect wraps feature scaling and the Isolation Forest into the
// anomaly model used by the detection pipeline: an explicit two-state
// (untrained/trained) unit owning the fitted scaler and forest together.
package detect

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"

	"github.com/skywardsec/cloudsentry/pkg/activity"
	"github.com/skywardsec/cloudsentry/pkg/detectors/iforest"
)

// ErrUntrainedModel is returned when scoring is requested before Train.
var ErrUntrainedModel = errors.New("detect: model not trained, call Train first")

// Detector is the anomaly model: a StandardScaler fitted on the four
// numeric activity features, followed by an Isolation Forest on the scaled
// matrix. A second Train call fully replaces the fitted state. Not safe for
// concurrent Train and DetectAnomalies.
type Detector struct {
	contamination float64
	estimators    int
	seed          int64

	scaler  *StandardScaler
	forest  *iforest.IsolationForest
	trained bool
}

// Option configures a Detector.
type Option func(*Detector)

// WithContamination sets the expected fraction of anomalous records.
func WithContamination(c float64) Option {
	return func(d *Detector) {
		d.contamination = c
	}
}

// WithEstimators sets the Isolation Forest ensemble size.
func WithEstimators(n int) Option {
	return func(d *Detector) {
		d.estimators = n
	}
}

// WithSeed sets the random seed for reproducible training.
func WithSeed(seed int64) Option {
	return func(d *Detector) {
		d.seed = seed
	}
}

// New creates an untrained Detector.
func New(opts ...Option) *Detector {
	d := &Detector{
		contamination: 0.15,
		estimators:    100,
		seed:          42,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Trained reports whether the model has been trained.
func (d *Detector) Trained() bool {
	return d.trained
}

// Train fits the scaler and the forest on the given records. Prior fitted
// parameters, if any, are discarded.
func (d *Detector) Train(records []activity.Record) error {
	if len(records) == 0 {
		return errors.New("detect: no records to train on")
	}

	scaler := &StandardScaler{}
	scaled, err := scaler.FitTransform(featureMatrix(records))
	if err != nil {
		return fmt.Errorf("detect: scaling training data: %w", err)
	}

	forest := iforest.New(
		iforest.WithEstimators(d.estimators),
		iforest.WithContamination(d.contamination),
		iforest.WithSeed(d.seed),
	)
	if err := forest.Fit(scaled); err != nil {
		return fmt.Errorf("detect: fitting forest: %w", err)
	}

	d.scaler = scaler
	d.forest = forest
	d.trained = true
	return nil
}

// DetectAnomalies scores the given records with the trained model. Each
// record is flagged anomalous when its normalized score falls beyond the
// contamination threshold fixed at training time; AnomalyScore carries the
// score_samples convention, lower = more anomalous.
func (d *Detector) DetectAnomalies(records []activity.Record) ([]activity.ScoredRecord, error) {
	if !d.trained {
		return nil, ErrUntrainedModel
	}

	scaled, err := d.scaler.Transform(featureMatrix(records))
	if err != nil {
		return nil, fmt.Errorf("detect: scaling input: %w", err)
	}

	scores, err := d.forest.Predict(scaled)
	if err != nil {
		return nil, fmt.Errorf("detect: scoring input: %w", err)
	}

	threshold := d.forest.Threshold()
	scored := make([]activity.ScoredRecord, len(records))
	for i, rec := range records {
		scored[i] = activity.ScoredRecord{
			Record:       rec,
			IsAnomaly:    scores[i] >= threshold,
			AnomalyScore: -scores[i],
		}
	}
	return scored, nil
}

// modelState is the gob-serializable snapshot of a trained Detector.
type modelState struct {
	Contamination float64
	Estimators    int
	Seed          int64
	Mean          []float64
	Stddev        []float64
	Forest        []byte
}

// Save serializes the trained model, scaler parameters included.
func (d *Detector) Save() ([]byte, error) {
	if !d.trained {
		return nil, ErrUntrainedModel
	}

	forestBytes, err := d.forest.Save()
	if err != nil {
		return nil, fmt.Errorf("detect: serializing forest: %w", err)
	}

	state := modelState{
		Contamination: d.contamination,
		Estimators:    d.estimators,
		Seed:          d.seed,
		Mean:          d.scaler.mean,
		Stddev:        d.scaler.stddev,
		Forest:        forestBytes,
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Load restores a trained model saved with Save, replacing any prior state.
func (d *Detector) Load(data []byte) error {
	var state modelState
	if err := gob.NewDecoder(bytes.NewBuffer(data)).Decode(&state); err != nil {
		return err
	}

	forest := iforest.New()
	if err := forest.Load(state.Forest); err != nil {
		return fmt.Errorf("detect: restoring forest: %w", err)
	}

	d.contamination = state.Contamination
	d.estimators = state.Estimators
	d.seed = state.Seed
	d.scaler = &StandardScaler{mean: state.Mean, stddev: state.Stddev, fitted: true}
	d.forest = forest
	d.trained = true
	return nil
}

func featureMatrix(records []activity.Record) [][]float64 {
	X := make([][]float64, len(records))
	for i, r := range records {
		X[i] = r.Features()
	}
	return X
}
