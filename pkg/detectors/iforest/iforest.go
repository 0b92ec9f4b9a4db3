// Package iforest implements the Isolation Forest algorithm for anomaly detection.
package iforest

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/skywardsec/cloudsentry/pkg/detectors"
)

// ErrNotTrained is returned when scoring is requested before Fit.
var ErrNotTrained = errors.New("iforest: model not trained")

// IsolationForest implements unsupervised anomaly detection using isolation trees.
//
// Scores come in two conventions. Predict returns the normalized score
// s = 2^(-E[h(x)]/c(n)) in [0, 1], higher = more anomalous. SampleScores
// returns -s, lower = more anomalous, which is the form downstream risk
// rules threshold on.
type IsolationForest struct {
	mu sync.RWMutex

	// Configuration
	nEstimators   int
	sampleSize    int
	contamination float64
	threshold     float64
	maxDepth      int
	rng           *rand.Rand

	// Trained model
	trees   []*iTree
	trained bool

	// Normalization constant c(sampleSize) computed at fit time.
	avgPathLength float64
}

// iTree is a single isolation tree.
type iTree struct {
	root *node
}

// node is a node in an isolation tree.
type node struct {
	// Split parameters (internal nodes)
	splitFeature int
	splitValue   float64

	left  *node
	right *node

	// Number of samples that reached this leaf.
	size int
}

// Option configures an IsolationForest.
type Option func(*IsolationForest)

// WithEstimators sets the number of isolation trees in the ensemble.
func WithEstimators(n int) Option {
	return func(f *IsolationForest) {
		f.nEstimators = n
	}
}

// WithSampleSize sets the subsample size for each tree.
func WithSampleSize(n int) Option {
	return func(f *IsolationForest) {
		f.sampleSize = n
	}
}

// WithContamination sets the expected proportion of anomalies. When
// positive, Fit derives the anomaly threshold from the training scores so
// that roughly this fraction of the training set classifies as anomalous.
func WithContamination(c float64) Option {
	return func(f *IsolationForest) {
		f.contamination = c
	}
}

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed int64) Option {
	return func(f *IsolationForest) {
		f.rng = rand.New(rand.NewSource(seed))
	}
}

// New creates a new IsolationForest with the given options.
func New(opts ...Option) *IsolationForest {
	f := &IsolationForest{
		nEstimators:   100,
		sampleSize:    256,
		contamination: 0.15,
		threshold:     0.5,
		rng:           rand.New(rand.NewSource(42)),
	}

	for _, opt := range opts {
		opt(f)
	}

	f.maxDepth = int(math.Ceil(math.Log2(float64(f.sampleSize))))

	return f
}

// Fit trains the Isolation Forest on the provided data. A second Fit call
// fully replaces the previous ensemble and threshold.
func (f *IsolationForest) Fit(data [][]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(data) == 0 {
		return errors.New("iforest: empty training data")
	}

	nSamples := len(data)
	nFeatures := len(data[0])

	sampleSize := f.sampleSize
	if sampleSize > nSamples {
		sampleSize = nSamples
	}

	f.trees = make([]*iTree, f.nEstimators)
	for i := 0; i < f.nEstimators; i++ {
		// Subsample without replacement.
		indices := f.rng.Perm(nSamples)[:sampleSize]
		sample := make([][]float64, sampleSize)
		for j, idx := range indices {
			sample[j] = data[idx]
		}

		f.trees[i] = &iTree{root: f.buildNode(sample, nFeatures, 0)}
	}

	f.avgPathLength = averagePathLength(float64(sampleSize))
	f.trained = true

	if f.contamination > 0 {
		scores := f.score(data)
		f.threshold = percentile(scores, 100*(1-f.contamination))
	}

	return nil
}

func (f *IsolationForest) buildNode(data [][]float64, nFeatures, depth int) *node {
	n := len(data)

	if depth >= f.maxDepth || n <= 1 {
		return &node{size: n}
	}

	feature := f.rng.Intn(nFeatures)

	minVal, maxVal := data[0][feature], data[0][feature]
	for _, row := range data[1:] {
		if row[feature] < minVal {
			minVal = row[feature]
		}
		if row[feature] > maxVal {
			maxVal = row[feature]
		}
	}

	// Constant feature within this partition: nothing left to isolate on.
	if minVal == maxVal {
		return &node{size: n}
	}

	splitValue := minVal + f.rng.Float64()*(maxVal-minVal)

	var leftData, rightData [][]float64
	for _, row := range data {
		if row[feature] < splitValue {
			leftData = append(leftData, row)
		} else {
			rightData = append(rightData, row)
		}
	}

	return &node{
		splitFeature: feature,
		splitValue:   splitValue,
		left:         f.buildNode(leftData, nFeatures, depth+1),
		right:        f.buildNode(rightData, nFeatures, depth+1),
	}
}

// Predict returns normalized anomaly scores in [0, 1] for the given samples.
func (f *IsolationForest) Predict(data [][]float64) ([]float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return nil, ErrNotTrained
	}

	return f.score(data), nil
}

// SampleScores returns the negated normalized scores, lower = more anomalous.
func (f *IsolationForest) SampleScores(data [][]float64) ([]float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return nil, ErrNotTrained
	}

	scores := f.score(data)
	for i := range scores {
		scores[i] = -scores[i]
	}
	return scores, nil
}

// PredictOne returns the normalized anomaly score for a single sample.
func (f *IsolationForest) PredictOne(sample []float64) (float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return 0, ErrNotTrained
	}

	return f.scoreOne(sample), nil
}

func (f *IsolationForest) score(data [][]float64) []float64 {
	scores := make([]float64, len(data))
	for i, sample := range data {
		scores[i] = f.scoreOne(sample)
	}
	return scores
}

func (f *IsolationForest) scoreOne(sample []float64) float64 {
	var totalPath float64
	for _, tree := range f.trees {
		totalPath += pathLength(sample, tree.root, 0)
	}
	avgPath := totalPath / float64(len(f.trees))

	// s(x) = 2^(-E[h(x)] / c(n)); shorter isolation paths score higher.
	return math.Pow(2, -avgPath/f.avgPathLength)
}

// pathLength calculates the isolation path length for a sample in a tree.
func pathLength(sample []float64, n *node, currentDepth int) float64 {
	if n.left == nil && n.right == nil {
		// Leaf: add the expected path length for the unresolved subtree.
		return float64(currentDepth) + averagePathLength(float64(n.size))
	}

	if sample[n.splitFeature] < n.splitValue {
		return pathLength(sample, n.left, currentDepth+1)
	}
	return pathLength(sample, n.right, currentDepth+1)
}

// averagePathLength returns the average path length of unsuccessful search
// in a BST: c(n) = 2*H(n-1) - 2*(n-1)/n, H(n) ~ ln(n) + Euler-Mascheroni.
func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	return 2*(math.Log(n-1)+0.5772156649) - 2*(n-1)/n
}

// PredictStream scores samples from a channel until it closes or the
// context is canceled.
func (f *IsolationForest) PredictStream(ctx context.Context, input <-chan []float64, output chan<- detectors.Score) error {
	f.mu.RLock()
	if !f.trained {
		f.mu.RUnlock()
		return ErrNotTrained
	}
	f.mu.RUnlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sample, ok := <-input:
			if !ok {
				return nil
			}

			score, err := f.PredictOne(sample)
			if err != nil {
				continue
			}

			select {
			case output <- detectors.Score{
				Value:       score,
				SampleScore: -score,
				IsAnomaly:   score >= f.Threshold(),
				Features:    sample,
			}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// forestState is the gob-serializable form of a trained forest. gob only
// encodes exported fields, so the tree is mirrored into exported structs.
type forestState struct {
	Estimators    int
	SampleSize    int
	Contamination float64
	Threshold     float64
	AvgPathLength float64
	Roots         []*nodeState
}

type nodeState struct {
	SplitFeature int
	SplitValue   float64
	Left         *nodeState
	Right        *nodeState
	Size         int
}

func toState(n *node) *nodeState {
	if n == nil {
		return nil
	}
	return &nodeState{
		SplitFeature: n.splitFeature,
		SplitValue:   n.splitValue,
		Left:         toState(n.left),
		Right:        toState(n.right),
		Size:         n.size,
	}
}

func fromState(s *nodeState) *node {
	if s == nil {
		return nil
	}
	return &node{
		splitFeature: s.SplitFeature,
		splitValue:   s.SplitValue,
		left:         fromState(s.Left),
		right:        fromState(s.Right),
		size:         s.Size,
	}
}

// Save serializes the trained model.
func (f *IsolationForest) Save() ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return nil, ErrNotTrained
	}

	state := forestState{
		Estimators:    f.nEstimators,
		SampleSize:    f.sampleSize,
		Contamination: f.contamination,
		Threshold:     f.threshold,
		AvgPathLength: f.avgPathLength,
		Roots:         make([]*nodeState, len(f.trees)),
	}
	for i, tree := range f.trees {
		state.Roots[i] = toState(tree.root)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Load deserializes a trained model.
func (f *IsolationForest) Load(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var state forestState
	if err := gob.NewDecoder(bytes.NewBuffer(data)).Decode(&state); err != nil {
		return err
	}

	f.nEstimators = state.Estimators
	f.sampleSize = state.SampleSize
	f.contamination = state.Contamination
	f.threshold = state.Threshold
	f.avgPathLength = state.AvgPathLength
	f.trees = make([]*iTree, len(state.Roots))
	for i, root := range state.Roots {
		f.trees[i] = &iTree{root: fromState(root)}
	}

	f.maxDepth = int(math.Ceil(math.Log2(float64(f.sampleSize))))
	f.trained = true

	return nil
}

// Threshold returns the current anomaly threshold in the normalized
// (Predict) convention.
func (f *IsolationForest) Threshold() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.threshold
}

// SetThreshold updates the anomaly threshold.
func (f *IsolationForest) SetThreshold(t float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threshold = t
}

// percentile calculates the p-th percentile of the data.
func percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	idx := int(float64(len(sorted)-1) * p / 100)
	return sorted[idx]
}
