package services

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"openprotect-lab/internal/domain/models"
)

// DefaultAlertFeedCapacity is the number of raw alerts kept for the console
const DefaultAlertFeedCapacity = 50

// AlertFeed keeps the most recent raw alerts with lookup by id. Entries are
// only added and peeked, so the LRU order is insertion order.
type AlertFeed struct {
	cache *lru.Cache[string, *models.RawAlert]
}

// NewAlertFeed creates an alert feed holding up to capacity alerts
func NewAlertFeed(capacity int) *AlertFeed {
	if capacity <= 0 {
		capacity = DefaultAlertFeedCapacity
	}
	cache, _ := lru.New[string, *models.RawAlert](capacity)
	return &AlertFeed{cache: cache}
}

// Add records an alert, evicting the oldest when full. Re-adding an id keeps
// its original position.
func (f *AlertFeed) Add(alert *models.RawAlert) {
	if _, ok := f.cache.Peek(alert.ID); ok {
		return
	}
	f.cache.Add(alert.ID, alert)
}

// Get returns the alert with the given id, if still retained
func (f *AlertFeed) Get(id string) (*models.RawAlert, bool) {
	return f.cache.Peek(id)
}

// List returns up to limit alerts, most recent first
func (f *AlertFeed) List(limit int) []*models.RawAlert {
	keys := f.cache.Keys()
	out := make([]*models.RawAlert, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		if a, ok := f.cache.Peek(keys[i]); ok {
			out = append(out, a)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Len returns the number of retained alerts
func (f *AlertFeed) Len() int {
	return f.cache.Len()
}
