package seed

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

const randomFloatDivisor = 1000000

var contributionTypes = []string{"task", "peer_eval", "review", "support"}

// randomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func randomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

// randomInt returns a random int in [min, max].
func randomInt(min, max int) int {
	if max <= min {
		return min
	}
	n, _ := rand.Int(rand.Reader, big.NewInt(int64(max-min+1)))
	return min + int(n.Int64())
}

// generate builds contribution records for cfg.WorkItems synthetic work
// items. Each work item gets a team of random size where every member
// receives one to three evaluated contributions.
func generate(cfg *Config, stats *Stats) [][]Contribution {
	items := make([][]Contribution, cfg.WorkItems)
	for i := range items {
		workItemID := fmt.Sprintf("wi-%s", uuid.NewString())
		teamSize := randomInt(cfg.TeamSizeMin, cfg.TeamSizeMax)

		var records []Contribution
		for member := 0; member < teamSize; member++ {
			contributorID := fmt.Sprintf("user-%d-%d", i, member)
			for n := randomInt(1, 3); n > 0; n-- {
				records = append(records, Contribution{
					RecordID:      uuid.NewString(),
					WorkItemID:    workItemID,
					ContributorID: contributorID,
					Type:          contributionTypes[randomInt(0, len(contributionTypes)-1)],
					RawScore:      randomFloat() * 100,
					Weight:        0.1 + randomFloat()*0.9,
					RecorderID:    "seed",
				})
			}
		}
		items[i] = records
		stats.RecordsGenerated += len(records)
	}
	return items
}
