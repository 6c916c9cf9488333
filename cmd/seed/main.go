package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/teamforge/merit/internal/seed"
)

// Default configuration constants.
const (
	defaultWorkItems   = 100
	defaultTeamSizeMin = 1
	defaultTeamSizeMax = 15
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 30 * time.Second
	defaultRunTimeout  = 10 * time.Minute
)

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:9080", "Base URL of the service")
		workItems   = flag.Int("items", defaultWorkItems, "Number of work items to seed")
		teamSizeMin = flag.Int("team-min", defaultTeamSizeMin, "Smallest team per work item")
		teamSizeMax = flag.Int("team-max", defaultTeamSizeMax, "Largest team per work item")
		workers     = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent submitters")
		timeout     = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		finalize    = flag.Bool("finalize", false, "Finalize every seeded work item")
		verbose     = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	cfg := &seed.Config{
		BaseURL:     *baseURL,
		WorkItems:   *workItems,
		TeamSizeMin: *teamSizeMin,
		TeamSizeMax: *teamSizeMax,
		Workers:     *workers,
		Timeout:     *timeout,
		Finalize:    *finalize,
		Verbose:     *verbose,
	}

	stats, err := seed.Run(ctx, cfg)
	if err != nil {
		os.Stderr.WriteString("seeding failed: " + err.Error() + "\n")
		os.Exit(1)
	}
	if stats.RecordsFailed > 0 || stats.CalcsVerified < cfg.WorkItems {
		os.Exit(1)
	}
}
