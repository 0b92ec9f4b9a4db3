package detect

import (
	"errors"
	"fmt"
	"math"
)

// StandardScaler normalizes features to zero mean and unit variance.
// Fit learns per-column mean and standard deviation; Transform applies them
// without refitting.
type StandardScaler struct {
	mean   []float64
	stddev []float64
	fitted bool
}

// Fit computes per-feature mean and standard deviation from X.
// A second Fit fully replaces previous parameters.
func (s *StandardScaler) Fit(X [][]float64) error {
	if len(X) == 0 {
		return errors.New("detect: empty data for scaler fit")
	}

	nFeatures := len(X[0])
	mean := make([]float64, nFeatures)
	stddev := make([]float64, nFeatures)

	for _, row := range X {
		if len(row) != nFeatures {
			return fmt.Errorf("detect: ragged row: got %d features, want %d", len(row), nFeatures)
		}
		for j, v := range row {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= float64(len(X))
	}

	for _, row := range X {
		for j, v := range row {
			d := v - mean[j]
			stddev[j] += d * d
		}
	}
	for j := range stddev {
		stddev[j] = math.Sqrt(stddev[j] / float64(len(X)))
		// Constant columns pass through unscaled.
		if stddev[j] == 0 {
			stddev[j] = 1
		}
	}

	s.mean = mean
	s.stddev = stddev
	s.fitted = true
	return nil
}

// Transform scales X with the fitted parameters.
func (s *StandardScaler) Transform(X [][]float64) ([][]float64, error) {
	if !s.fitted {
		return nil, errors.New("detect: scaler not fitted")
	}

	out := make([][]float64, len(X))
	for i, row := range X {
		if len(row) != len(s.mean) {
			return nil, fmt.Errorf("detect: row %d has %d features, scaler fitted on %d", i, len(row), len(s.mean))
		}
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - s.mean[j]) / s.stddev[j]
		}
		out[i] = scaled
	}
	return out, nil
}

// FitTransform fits the scaler on X and returns the scaled matrix.
func (s *StandardScaler) FitTransform(X [][]float64) ([][]float64, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// Fitted reports whether Fit has been called successfully.
func (s *StandardScaler) Fitted() bool {
	return s.fitted
}
