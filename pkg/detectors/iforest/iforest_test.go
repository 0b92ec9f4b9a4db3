package iforest

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skywardsec/cloudsentry/pkg/detectors"
)

func TestNewIsolationForest(t *testing.T) {
	tests := []struct {
		name           string
		opts           []Option
		wantEstimators int
	}{
		{
			name:           "default configuration",
			opts:           nil,
			wantEstimators: 100,
		},
		{
			name:           "custom estimators",
			opts:           []Option{WithEstimators(50)},
			wantEstimators: 50,
		},
		{
			name:           "multiple options",
			opts:           []Option{WithEstimators(200), WithContamination(0.05), WithSeed(123)},
			wantEstimators: 200,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.opts...)
			assert.Equal(t, tt.wantEstimators, f.nEstimators)
		})
	}
}

func TestFit(t *testing.T) {
	tests := []struct {
		name    string
		data    [][]float64
		wantErr bool
	}{
		{
			name:    "empty data",
			data:    [][]float64{},
			wantErr: true,
		},
		{
			name:    "single sample",
			data:    [][]float64{{1.0, 2.0, 3.0}},
			wantErr: false,
		},
		{
			name:    "normal data",
			data:    generateTestData(100, 5),
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(WithEstimators(10), WithSeed(42))
			err := f.Fit(tt.data)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.True(t, f.trained)
				assert.Len(t, f.trees, f.nEstimators)
			}
		})
	}
}

func TestPredict(t *testing.T) {
	// Train on normal data
	trainData := generateTestData(500, 5)
	f := New(WithEstimators(50), WithSampleSize(100), WithSeed(42))
	require.NoError(t, f.Fit(trainData))

	t.Run("predict on normal data", func(t *testing.T) {
		testData := generateTestData(100, 5)
		scores, err := f.Predict(testData)

		require.NoError(t, err)
		assert.Len(t, scores, len(testData))

		// All scores should be in [0, 1]
		for _, score := range scores {
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 1.0)
		}
	})

	t.Run("predict on anomalies", func(t *testing.T) {
		// Anomalous data: very different from training
		anomalies := [][]float64{
			{1000, 1000, 1000, 1000, 1000},
			{-500, -500, -500, -500, -500},
		}
		scores, err := f.Predict(anomalies)

		require.NoError(t, err)
		// Anomalies should have higher scores
		for _, score := range scores {
			assert.Greater(t, score, 0.4, "anomalies should have high scores")
		}
	})

	t.Run("predict before fit", func(t *testing.T) {
		untrained := New()
		_, err := untrained.Predict(trainData)
		assert.ErrorIs(t, err, ErrNotTrained)
	})
}

func TestSampleScores(t *testing.T) {
	trainData := generateTestData(300, 4)
	f := New(WithEstimators(30), WithSeed(42))
	require.NoError(t, f.Fit(trainData))

	testData := generateTestData(50, 4)
	normalized, err := f.Predict(testData)
	require.NoError(t, err)

	sample, err := f.SampleScores(testData)
	require.NoError(t, err)
	require.Len(t, sample, len(normalized))

	// SampleScores is the negated normalized score.
	for i := range sample {
		assert.InDelta(t, -normalized[i], sample[i], 1e-12)
		assert.Less(t, sample[i], 0.0)
	}

	t.Run("before fit", func(t *testing.T) {
		untrained := New()
		_, err := untrained.SampleScores(testData)
		assert.ErrorIs(t, err, ErrNotTrained)
	})
}

func TestContaminationThreshold(t *testing.T) {
	trainData := generateTestData(400, 4)
	f := New(WithEstimators(50), WithContamination(0.2), WithSeed(42))
	require.NoError(t, f.Fit(trainData))

	scores, err := f.Predict(trainData)
	require.NoError(t, err)

	flagged := 0
	for _, s := range scores {
		if s >= f.Threshold() {
			flagged++
		}
	}

	// Roughly the contamination fraction of the training set should be
	// flagged; the percentile cut makes it exact up to ties.
	assert.InDelta(t, 0.2*float64(len(trainData)), float64(flagged), 10)
}

func TestPredictOne(t *testing.T) {
	trainData := generateTestData(200, 3)
	f := New(WithEstimators(20), WithSeed(42))
	require.NoError(t, f.Fit(trainData))

	score, err := f.PredictOne([]float64{0.5, 0.5, 0.5})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}

func TestPredictStream(t *testing.T) {
	trainData := generateTestData(200, 3)
	f := New(WithEstimators(20), WithSeed(42))
	require.NoError(t, f.Fit(trainData))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	input := make(chan []float64, 10)
	output := make(chan detectors.Score, 10)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(output)
		err := f.PredictStream(ctx, input, output)
		assert.NoError(t, err)
	}()

	testSamples := [][]float64{
		{0.5, 0.5, 0.5},
		{100, 100, 100}, // anomaly
		{0.3, 0.3, 0.3},
	}

	go func() {
		for _, sample := range testSamples {
			input <- sample
		}
		close(input)
	}()

	results := make([]detectors.Score, 0, len(testSamples))
	for score := range output {
		results = append(results, score)
	}
	<-done

	require.Len(t, results, len(testSamples))
	for _, res := range results {
		assert.InDelta(t, -res.Value, res.SampleScore, 1e-12)
	}
}

func TestSaveLoad(t *testing.T) {
	trainData := generateTestData(200, 4)
	original := New(WithEstimators(30), WithContamination(0.15), WithSeed(42))
	require.NoError(t, original.Fit(trainData))

	testData := generateTestData(50, 4)
	originalScores, err := original.Predict(testData)
	require.NoError(t, err)

	data, err := original.Save()
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	loaded := New()
	require.NoError(t, loaded.Load(data))

	loadedScores, err := loaded.Predict(testData)
	require.NoError(t, err)

	assert.Equal(t, originalScores, loadedScores)
	assert.Equal(t, original.Threshold(), loaded.Threshold())

	t.Run("save before fit", func(t *testing.T) {
		_, err := New().Save()
		assert.ErrorIs(t, err, ErrNotTrained)
	})
}

func TestThreshold(t *testing.T) {
	f := New()
	f.trained = true

	assert.Equal(t, 0.5, f.Threshold())

	f.SetThreshold(0.7)
	assert.Equal(t, 0.7, f.Threshold())
}

func TestFitDeterministic(t *testing.T) {
	data := generateTestData(300, 4)
	test := generateTestData(40, 4)

	a := New(WithEstimators(25), WithContamination(0.2), WithSeed(99))
	require.NoError(t, a.Fit(data))
	scoresA, err := a.Predict(test)
	require.NoError(t, err)

	b := New(WithEstimators(25), WithContamination(0.2), WithSeed(99))
	require.NoError(t, b.Fit(data))
	scoresB, err := b.Predict(test)
	require.NoError(t, err)

	assert.Equal(t, scoresA, scoresB, "same seed must reproduce the ensemble")
}

func BenchmarkFit(b *testing.B) {
	data := generateTestData(10000, 10)
	f := New(WithEstimators(100), WithSampleSize(256))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Fit(data)
	}
}

func BenchmarkPredict(b *testing.B) {
	trainData := generateTestData(5000, 10)
	testData := generateTestData(1000, 10)

	f := New(WithEstimators(100), WithSampleSize(256))
	f.Fit(trainData)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Predict(testData)
	}
}

func generateTestData(n, features int) [][]float64 {
	data := make([][]float64, n)
	for i := 0; i < n; i++ {
		data[i] = make([]float64, features)
		for j := 0; j < features; j++ {
			data[i][j] = rand.NormFloat64()
		}
	}
	return data
}
