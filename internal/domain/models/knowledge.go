package models

import "time"

// Knowledge bounds
const (
	KnowledgeMin = 0.0
	KnowledgeMax = 100.0
)

// ClampKnowledge bounds v to [KnowledgeMin, KnowledgeMax]
func ClampKnowledge(v float64) float64 {
	if v < KnowledgeMin {
		return KnowledgeMin
	}
	if v > KnowledgeMax {
		return KnowledgeMax
	}
	return v
}

// KnowledgeContribution is one ledger entry
type KnowledgeContribution struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Points    float64   `json:"points"`
	NewTotal  float64   `json:"new_total"`
}

// KnowledgeLevels is the pair of knowledge scores shown on the console
type KnowledgeLevels struct {
	Server float64 `json:"server"`
	Agent  float64 `json:"agent"`
}

// LearningBucket aggregates ledger entries for one source category
type LearningBucket struct {
	Category string  `json:"category"`
	Count    int     `json:"count"`
	Points   float64 `json:"points"`
}

// LearningSummary is the learning analytics view of the ledger
type LearningSummary struct {
	Total       float64          `json:"total"`
	Entries     int              `json:"entries"`
	Buckets     []LearningBucket `json:"buckets"`
	LastUpdated *time.Time       `json:"last_updated,omitempty"`
}
