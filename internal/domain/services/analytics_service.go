package services

import (
	"sort"
	"strings"

	"openprotect-lab/internal/domain/models"
	"openprotect-lab/pkg/logger"
)

// DefaultHeatmapTopN is how many rows each heatmap dimension shows
const DefaultHeatmapTopN = 3

// AnalyticsService derives console read models from the event log and ledger
type AnalyticsService struct {
	events *EventLog
	ledger *KnowledgeLedger
	clock  Clock
	logger *logger.Logger
}

// NewAnalyticsService creates a new analytics service
func NewAnalyticsService(events *EventLog, ledger *KnowledgeLedger, clock Clock, log *logger.Logger) *AnalyticsService {
	return &AnalyticsService{
		events: events,
		ledger: ledger,
		clock:  clock,
		logger: log.WithComponent("analytics-service"),
	}
}

func (s *AnalyticsService) aggregatedEvents() []models.AggregatedEvent {
	var out []models.AggregatedEvent
	for _, e := range s.events.Events() {
		if agg, ok := e.Payload.(models.AggregatedEvent); ok {
			out = append(out, agg)
		}
	}
	return out
}

// Heatmap ranks industries, regions, countries and continents by the number
// of aggregated events retained in the log
func (s *AnalyticsService) Heatmap(topN int) *models.ThreatHeatmap {
	if topN <= 0 {
		topN = DefaultHeatmapTopN
	}

	industries := make(map[string]int64)
	regions := make(map[string]int64)
	countries := make(map[string]int64)
	continents := make(map[string]int64)

	var total int64
	for _, agg := range s.aggregatedEvents() {
		total++
		if agg.Context == nil {
			continue
		}
		incr(industries, agg.Context.Industry)
		incr(regions, agg.Context.Region)
		incr(countries, agg.Context.Country)
		incr(continents, agg.Context.Continent)
	}

	return &models.ThreatHeatmap{
		GeneratedAt: s.clock.now(),
		TotalEvents: total,
		Industries:  topCategories(industries, total, topN),
		Regions:     topCategories(regions, total, topN),
		Countries:   topCategories(countries, total, topN),
		Continents:  topCategories(continents, total, topN),
	}
}

func incr(m map[string]int64, key string) {
	if key == "" {
		return
	}
	m[key]++
}

func topCategories(counts map[string]int64, total int64, n int) []models.CategoryCount {
	out := make([]models.CategoryCount, 0, len(counts))
	for k, v := range counts {
		cc := models.CategoryCount{Category: k, Count: v}
		if total > 0 {
			cc.Percentage = float64(v) / float64(total) * 100
		}
		out = append(out, cc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Category < out[j].Category
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Fleet lists every device seen in the retained aggregated events. A device
// is Alerting once any Critical alert was raised on it.
func (s *AnalyticsService) Fleet(q models.FleetQuery) []models.FleetAgent {
	agents := make(map[string]*models.FleetAgent)
	for _, agg := range s.aggregatedEvents() {
		d := agg.Device
		if d == nil || d.Hostname == "" {
			continue
		}
		a, ok := agents[d.Hostname]
		if !ok {
			a = &models.FleetAgent{
				Hostname: d.Hostname,
				Status:   models.AgentStatusHealthy,
			}
			agents[d.Hostname] = a
		}
		a.OS = d.OS
		a.Type = d.Type
		a.IPAddress = d.IPAddress
		if d.AgentVersion != "" {
			a.AgentVersion = d.AgentVersion
		}
		a.AlertCount++
		if agg.LastSeen.After(a.LastSeen) {
			a.LastSeen = agg.LastSeen
		}
		if agg.Severity == models.SeverityCritical {
			a.Status = models.AgentStatusAlerting
		}
	}

	search := strings.ToLower(strings.TrimSpace(q.Search))
	out := make([]models.FleetAgent, 0, len(agents))
	for _, a := range agents {
		if q.OS != "" && !strings.EqualFold(a.OS, q.OS) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(a.Hostname), search) &&
			!strings.Contains(strings.ToLower(a.IPAddress), search) {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hostname < out[j].Hostname })
	return out
}

// WeakPasswords returns the aggregated events flagged with a weak password,
// newest first
func (s *AnalyticsService) WeakPasswords() []models.WeakPasswordAlert {
	events := s.events.Recent(0, models.EventAggregated)
	out := make([]models.WeakPasswordAlert, 0)
	for _, e := range events {
		agg, ok := e.Payload.(models.AggregatedEvent)
		if !ok {
			continue
		}
		if agg.SanitizedPayload[KeyPasswordStrength] != weakPasswordSentinel {
			continue
		}
		w := models.WeakPasswordAlert{
			AlertID:   agg.AlertID,
			Title:     agg.Title,
			Timestamp: agg.LastSeen,
		}
		if h, ok := agg.SanitizedPayload[KeyUserHash].(string); ok {
			w.UserHash = h
		}
		if agg.Device != nil {
			w.Hostname = agg.Device.Hostname
		}
		out = append(out, w)
	}
	return out
}

// LearningSummary returns the ledger bucketed by contribution source
func (s *AnalyticsService) LearningSummary() models.LearningSummary {
	return s.ledger.Summary()
}
