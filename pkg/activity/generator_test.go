package activity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateDeterministic(t *testing.T) {
	a := Generate(200, 42)
	b := Generate(200, 42)
	assert.Equal(t, a, b, "same (n, seed) must produce identical records")

	c := Generate(200, 7)
	assert.NotEqual(t, a, c, "different seed should produce different records")
}

func TestGenerateCounts(t *testing.T) {
	tests := []struct {
		name string
		n    int
	}{
		{name: "200 records", n: 200},
		{name: "odd count", n: 33},
		{name: "tiny", n: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := Generate(tt.n, 42)
			require.Len(t, records, tt.n)

			// Normal and anomalous login_count ranges are disjoint
			// ([1,8) vs [8,25)), so the profile split is observable.
			anomalous := 0
			for _, r := range records {
				if r.LoginCount >= 8 {
					anomalous++
				}
			}
			want := tt.n - int(float64(tt.n)*0.80)
			assert.Equal(t, want, anomalous)
		})
	}
}

func TestGenerateFieldRanges(t *testing.T) {
	records := Generate(500, 1)
	seen := map[string]bool{}

	for _, r := range records {
		assert.False(t, seen[r.UserID], "duplicate user id %s", r.UserID)
		seen[r.UserID] = true

		assert.GreaterOrEqual(t, r.LoginCount, 1)
		assert.Less(t, r.LoginCount, 25)
		assert.GreaterOrEqual(t, r.CPUUsage, 20.0)
		assert.Less(t, r.CPUUsage, 99.0)
		assert.GreaterOrEqual(t, r.NetworkIn, 50.0)
		assert.Less(t, r.NetworkIn, 950.0)
		assert.GreaterOrEqual(t, r.NetworkOut, 50.0)
		assert.Less(t, r.NetworkOut, 950.0)
		assert.Contains(t, []LoginStatus{LoginSuccess, LoginFailed}, r.LoginStatus)

		for _, v := range []float64{r.CPUUsage, r.NetworkIn, r.NetworkOut} {
			assert.InDelta(t, v, math.Round(v*100)/100, 1e-9, "floats must be rounded to 2 decimals")
		}
	}
}

func TestGenerateZeroAndNegative(t *testing.T) {
	assert.Nil(t, Generate(0, 42))
	assert.Nil(t, Generate(-5, 42))
}

func TestFeatures(t *testing.T) {
	r := Record{LoginCount: 3, CPUUsage: 41.5, NetworkIn: 120.25, NetworkOut: 80.75}
	assert.Equal(t, []float64{3, 41.5, 120.25, 80.75}, r.Features())
	assert.Len(t, FeatureNames(), len(r.Features()))
}
