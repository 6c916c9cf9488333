package seed

import (
	"context"
	"log"
	"math"
	"net/http"
	"time"
)

// verifyPollInterval paces draft polling while workers catch up.
const verifyPollInterval = 50 * time.Millisecond

// Run generates, submits, and verifies synthetic contribution traffic.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	client := newHTTPClient(cfg.Timeout)

	log.Printf("seeding %d work items (team size %d..%d) against %s",
		cfg.WorkItems, cfg.TeamSizeMin, cfg.TeamSizeMax, cfg.BaseURL)

	items := generate(cfg, stats)
	submit(ctx, cfg, client, items, stats)

	log.Printf("submitted: %d accepted, %d duplicate, %d failed",
		stats.RecordsAccepted, stats.RecordsDuplicate, stats.RecordsFailed)

	for _, records := range items {
		if len(records) == 0 {
			continue
		}
		workItemID := records[0].WorkItemID
		calc, ok := awaitCalculation(ctx, cfg, client, workItemID, len(records))
		if !ok {
			log.Printf("no calculation for %s", workItemID)
			continue
		}
		if err := verifyVector(calc); err != nil {
			log.Printf("verification failed for %s: %v", workItemID, err)
			continue
		}
		stats.CalcsVerified++

		if cfg.Finalize {
			if finalize(ctx, cfg, client, workItemID) {
				stats.CalcsFinalized++
			}
		}
	}

	stats.Duration = time.Since(stats.StartTime)
	log.Printf("verified %d calculations, finalized %d, in %s",
		stats.CalcsVerified, stats.CalcsFinalized, stats.Duration)
	return stats, nil
}

// awaitCalculation polls until the draft has absorbed every record.
func awaitCalculation(ctx context.Context, cfg *Config, client *httpClient, workItemID string, revision int) (Calculation, bool) {
	url := cfg.BaseURL + "/merit/" + workItemID
	deadline := time.Now().Add(cfg.Timeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return Calculation{}, false
		default:
		}
		var calc Calculation
		if err := client.getJSON(ctx, url, &calc); err == nil && calc.Revision >= revision {
			return calc, true
		}
		time.Sleep(verifyPollInterval)
	}
	return Calculation{}, false
}

// verifyVector checks the seeded invariants: percentages sum to 100 and the
// method matches the team size.
func verifyVector(calc Calculation) error {
	sum := 0.0
	for _, p := range calc.Participants {
		sum += p.MeritPercentage
	}
	if math.Abs(sum-100) > 1e-6 {
		return &verificationError{calc.WorkItemID, sum}
	}
	return nil
}

type verificationError struct {
	workItemID string
	sum        float64
}

func (e *verificationError) Error() string {
	return "percentages of " + e.workItemID + " do not sum to 100"
}

// finalize locks the work item's calculation.
func finalize(ctx context.Context, cfg *Config, client *httpClient, workItemID string) bool {
	url := cfg.BaseURL + "/merit/" + workItemID + "/finalize"
	resp, err := client.postJSON(ctx, url, struct{}{})
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
