// Package seed generates synthetic contribution traffic against a running
// engine and verifies the resulting merit vectors.
package seed

import "time"

// Config holds configuration for a seeding run.
type Config struct {
	BaseURL      string        // Base URL of the service
	WorkItems    int           // Number of work items to seed
	TeamSizeMin  int           // Smallest team per work item
	TeamSizeMax  int           // Largest team per work item
	Workers      int           // Number of concurrent submitters
	Timeout      time.Duration // HTTP request timeout
	Finalize     bool          // Finalize every seeded work item
	Verbose      bool          // Enable verbose logging
}

// Contribution mirrors the wire schema for POST /contributions.
type Contribution struct {
	RecordID      string  `json:"record_id"`
	WorkItemID    string  `json:"work_item_id"`
	ContributorID string  `json:"contributor_id"`
	Type          string  `json:"type"`
	RawScore      float64 `json:"raw_score"`
	Weight        float64 `json:"weight"`
	RecorderID    string  `json:"recorder_id"`
}

// AckResponse mirrors the submission acknowledgement.
type AckResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// Participant mirrors one row of a merit calculation response.
type Participant struct {
	ParticipantID   string  `json:"participant_id"`
	MeritPercentage float64 `json:"merit_percentage"`
}

// Calculation mirrors the merit calculation response.
type Calculation struct {
	WorkItemID   string        `json:"work_item_id"`
	Method       string        `json:"method"`
	Revision     int           `json:"revision"`
	IsFinalized  bool          `json:"is_finalized"`
	Participants []Participant `json:"participants"`
}

// Stats holds seeding statistics.
type Stats struct {
	RecordsGenerated int
	RecordsAccepted  int
	RecordsDuplicate int
	RecordsFailed    int
	CalcsVerified    int
	CalcsFinalized   int
	StartTime        time.Time
	Duration         time.Duration
}
