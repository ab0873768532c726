package services

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"openprotect-lab/internal/domain/models"
)

// DefaultLedgerCapacity is the number of contributions retained
const DefaultLedgerCapacity = 100

// Ledger source prefixes, also used to bucket the learning summary
const (
	SourcePrefixCritical    = "Critical Alert: "
	SourcePrefixHigh        = "High Alert: "
	SourcePrefixMedium      = "Medium Alert: "
	SourcePrefixInfo        = "Info Alert: "
	SourcePrefixIntel       = "Intel: "
	SourcePrefixCorrelation = "Correlation: "
	SourcePrefixRemediation = "Remediation: "
)

var summaryBuckets = []struct {
	category string
	prefix   string
}{
	{"Critical Alerts", SourcePrefixCritical},
	{"High Alerts", SourcePrefixHigh},
	{"Medium Alerts", SourcePrefixMedium},
	{"Intel Updates", SourcePrefixIntel},
	{"Correlations", SourcePrefixCorrelation},
	{"Remediations", SourcePrefixRemediation},
}

// KnowledgeLedger holds the bounded server knowledge score and a capped,
// most-recent-first history of what contributed to it.
type KnowledgeLedger struct {
	mu       sync.RWMutex
	total    float64
	entries  []models.KnowledgeContribution
	capacity int
	clock    Clock
}

// NewKnowledgeLedger creates a ledger starting at initial (clamped)
func NewKnowledgeLedger(initial float64, capacity int, clock Clock) *KnowledgeLedger {
	if capacity <= 0 {
		capacity = DefaultLedgerCapacity
	}
	return &KnowledgeLedger{
		total:    models.ClampKnowledge(initial),
		entries:  make([]models.KnowledgeContribution, 0, capacity),
		capacity: capacity,
		clock:    clock,
	}
}

// Record applies a contribution and returns the stored entry. The new total
// is clamped to [0, 100]; Points keeps the requested delta.
func (l *KnowledgeLedger) Record(source string, points float64) models.KnowledgeContribution {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.total = models.ClampKnowledge(l.total + points)
	entry := models.KnowledgeContribution{
		ID:        uuid.NewString(),
		Timestamp: l.clock.now(),
		Source:    source,
		Points:    points,
		NewTotal:  l.total,
	}

	l.entries = append(l.entries, models.KnowledgeContribution{})
	copy(l.entries[1:], l.entries)
	l.entries[0] = entry
	if len(l.entries) > l.capacity {
		l.entries = l.entries[:l.capacity]
	}

	return entry
}

// Total returns the current knowledge level
func (l *KnowledgeLedger) Total() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}

// Entries returns up to limit contributions, most recent first. limit <= 0
// returns everything retained.
func (l *KnowledgeLedger) Entries(limit int) []models.KnowledgeContribution {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := len(l.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.KnowledgeContribution, n)
	copy(out, l.entries[:n])
	return out
}

// Len returns the number of retained contributions
func (l *KnowledgeLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Summary buckets retained contributions by source category
func (l *KnowledgeLedger) Summary() models.LearningSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	buckets := make([]models.LearningBucket, len(summaryBuckets))
	for i, b := range summaryBuckets {
		buckets[i].Category = b.category
	}
	for _, e := range l.entries {
		for i, b := range summaryBuckets {
			if strings.HasPrefix(e.Source, b.prefix) {
				buckets[i].Count++
				buckets[i].Points += e.Points
				break
			}
		}
	}

	summary := models.LearningSummary{
		Total:   l.total,
		Entries: len(l.entries),
		Buckets: buckets,
	}
	if len(l.entries) > 0 {
		ts := l.entries[0].Timestamp
		summary.LastUpdated = &ts
	}
	return summary
}
