package services

import (
	"fmt"
	"strings"
	"sync"

	"openprotect-lab/internal/domain/models"
	"openprotect-lab/pkg/logger"
)

// DefaultCorrelationThreshold fires on the second threat in a context
const DefaultCorrelationThreshold = 1

// ProactiveAlertTitle is the title of every correlation push
const ProactiveAlertTitle = "Proactive Alert: Increased Threat Activity"

// contextTracker accumulates threats seen for one industry|region key
type contextTracker struct {
	count  int
	titles []string
	seen   map[string]struct{}
}

func (t *contextTracker) add(title string) {
	t.count++
	if _, ok := t.seen[title]; ok {
		return
	}
	t.seen[title] = struct{}{}
	t.titles = append(t.titles, title)
}

// CorrelationResult is the outcome of observing one alert
type CorrelationResult struct {
	Triggered bool
	Alert     models.ProactiveAlert
	Count     int
}

// ContextualCorrelator detects repeated threat activity against the same
// industry and region. Each context is thresholded independently and reset
// as soon as it fires.
type ContextualCorrelator struct {
	mu        sync.Mutex
	trackers  map[string]*contextTracker
	threshold int
	logger    *logger.Logger
}

// NewContextualCorrelator creates a correlator that fires once a context has
// seen more than threshold threats
func NewContextualCorrelator(threshold int, log *logger.Logger) *ContextualCorrelator {
	if threshold < 1 {
		threshold = DefaultCorrelationThreshold
	}
	return &ContextualCorrelator{
		trackers:  make(map[string]*contextTracker),
		threshold: threshold,
		logger:    log.WithComponent("correlator"),
	}
}

// Observe records a threat for the context and reports whether it triggered
func (c *ContextualCorrelator) Observe(ctx models.AlertContext, title string) CorrelationResult {
	key := ctx.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	tr, ok := c.trackers[key]
	if !ok {
		tr = &contextTracker{seen: make(map[string]struct{})}
		c.trackers[key] = tr
	}
	tr.add(title)

	if tr.count <= c.threshold {
		return CorrelationResult{Count: tr.count}
	}

	titles := append([]string(nil), tr.titles...)
	result := CorrelationResult{
		Triggered: true,
		Count:     tr.count,
		Alert: models.ProactiveAlert{
			Title: ProactiveAlertTitle,
			Summary: fmt.Sprintf("Correlated multiple threats (%s) targeting the %s industry in %s.",
				strings.Join(titles, ", "), ctx.Industry, ctx.Region),
			TargetContext: fmt.Sprintf("%s Sector in %s", ctx.Industry, ctx.Region),
			Industry:      ctx.Industry,
			Region:        ctx.Region,
			ThreatTitles:  titles,
		},
	}
	delete(c.trackers, key)

	c.logger.Info().
		Str("context", key).
		Int("threats", result.Count).
		Msg("contextual correlation triggered")

	return result
}

// Pending returns the current count for a context
func (c *ContextualCorrelator) Pending(ctx models.AlertContext) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tr, ok := c.trackers[ctx.Key()]; ok {
		return tr.count
	}
	return 0
}
