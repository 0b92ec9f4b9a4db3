package activity

import (
	"fmt"
	"math"
	"math/rand"
)

// normalFraction is the share of generated records drawn from the normal
// activity profile; the rest follow the anomalous profile.
const normalFraction = 0.80

// Generate synthesizes n activity records for demonstration and testing.
// The first 80% of users follow a normal usage profile, the remainder an
// anomalous one (heavy logins, hot CPU, large transfers). The combined set
// is shuffled with a generator seeded from the same seed, so the output
// order is deterministic but decoupled from generation order.
//
// Generate is a pure function of (n, seed): identical arguments always
// produce identical records.
func Generate(n int, seed int64) []Record {
	if n <= 0 {
		return nil
	}

	rng := rand.New(rand.NewSource(seed))
	normalCount := int(float64(n) * normalFraction)

	records := make([]Record, 0, n)
	for i := 0; i < normalCount; i++ {
		records = append(records, Record{
			UserID:      userID(i + 1),
			LoginCount:  1 + rng.Intn(7),
			CPUUsage:    round2(20 + rng.Float64()*45),
			NetworkIn:   round2(50 + rng.Float64()*250),
			NetworkOut:  round2(50 + rng.Float64()*250),
			LoginStatus: pickStatus(rng, normalStatusPool),
		})
	}
	for i := normalCount; i < n; i++ {
		records = append(records, Record{
			UserID:      userID(i + 1),
			LoginCount:  8 + rng.Intn(17),
			CPUUsage:    round2(70 + rng.Float64()*29),
			NetworkIn:   round2(400 + rng.Float64()*550),
			NetworkOut:  round2(400 + rng.Float64()*550),
			LoginStatus: pickStatus(rng, anomalousStatusPool),
		})
	}

	// Fresh generator with the same seed, so the shuffle does not depend on
	// how many draws the generation phase consumed.
	shuffler := rand.New(rand.NewSource(seed))
	shuffler.Shuffle(len(records), func(i, j int) {
		records[i], records[j] = records[j], records[i]
	})

	return records
}

// normalStatusPool biases login outcomes 3:1 toward success;
// anomalousStatusPool biases 1:2 toward failure.
var (
	normalStatusPool    = []LoginStatus{LoginSuccess, LoginSuccess, LoginSuccess, LoginFailed}
	anomalousStatusPool = []LoginStatus{LoginSuccess, LoginFailed, LoginFailed}
)

func pickStatus(rng *rand.Rand, pool []LoginStatus) LoginStatus {
	return pool[rng.Intn(len(pool))]
}

func userID(i int) string {
	return fmt.Sprintf("USER_%03d", i)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
