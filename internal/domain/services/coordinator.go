package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"openprotect-lab/internal/domain/models"
	"openprotect-lab/pkg/logger"
)

// Built-in response to a Critical alert
var remediationActions = []string{"Isolate Host", "Terminate Process Tree"}

// ScoringConfig holds the knowledge gains applied per tick
type ScoringConfig struct {
	SeverityGains     map[models.Severity]float64
	TitleMultipliers  map[string]float64 // keyed by alert title, case-insensitive
	CorrelationGain   float64
	RemediationGain   float64
	IntelGain         float64
	DetailedIntelGain float64
}

// CoordinatorConfig configures the ingestion pipeline
type CoordinatorConfig struct {
	InitialServerKnowledge float64
	InitialAgentKnowledge  float64
	SyncMargin             float64
	SyncStep               float64
	DirectiveFloor         float64
	Scoring                ScoringConfig
}

// DefaultCoordinatorConfig returns the stock simulation tuning
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		InitialServerKnowledge: 10,
		InitialAgentKnowledge:  15,
		SyncMargin:             10,
		SyncStep:               2.5,
		DirectiveFloor:         30,
		Scoring: ScoringConfig{
			SeverityGains: map[models.Severity]float64{
				models.SeverityCritical: 0.8,
				models.SeverityHigh:     0.5,
				models.SeverityMedium:   0.2,
				models.SeverityInfo:     0,
			},
			TitleMultipliers: map[string]float64{
				"In-Memory Threat Detected": 2,
			},
			CorrelationGain:   1.0,
			RemediationGain:   0.5,
			IntelGain:         0.5,
			DetailedIntelGain: 1.0,
		},
	}
}

// EngineMetrics receives pipeline measurements. Implementations must be
// safe for concurrent use.
type EngineMetrics interface {
	ObserveTick(duration time.Duration)
	EventEmitted(eventType models.EventType)
	PlaybookExecuted(playbook string, failedActions int)
	SetKnowledge(levels models.KnowledgeLevels)
	SetCaseCounts(counts models.CaseCounts)
}

type noopMetrics struct{}

func (noopMetrics) ObserveTick(time.Duration) {}
func (noopMetrics) EventEmitted(models.EventType) {}
func (noopMetrics) PlaybookExecuted(string, int) {}
func (noopMetrics) SetKnowledge(models.KnowledgeLevels) {}
func (noopMetrics) SetCaseCounts(models.CaseCounts) {}

// TickReport summarises one processed tick
type TickReport struct {
	Tick      uint64                 `json:"tick"`
	Events    []models.ServerEvent   `json:"events"`
	Knowledge models.KnowledgeLevels `json:"knowledge"`
	Warnings  []string               `json:"warnings,omitempty"`
}

// Coordinator owns the console state and runs the per-tick pipeline. Ticks
// and operator commands are serialized so each tick is applied atomically.
type Coordinator struct {
	mu sync.Mutex

	sanitizer  *Sanitizer
	ledger     *KnowledgeLedger
	correlator *ContextualCorrelator
	cases      *CaseStore
	playbooks  *PlaybookEngine
	events     *EventLog
	feed       *AlertFeed

	cfg            CoordinatorConfig
	agentKnowledge float64
	ticks          uint64
	syncs          uint64

	metrics EngineMetrics
	clock   Clock
	logger  *logger.Logger
}

// CoordinatorDeps are the components the coordinator drives
type CoordinatorDeps struct {
	Sanitizer  *Sanitizer
	Ledger     *KnowledgeLedger
	Correlator *ContextualCorrelator
	Cases      *CaseStore
	Playbooks  *PlaybookEngine
	Events     *EventLog
	Feed       *AlertFeed
	Metrics    EngineMetrics
	Clock      Clock
}

// NewCoordinator wires the pipeline components together
func NewCoordinator(deps CoordinatorDeps, cfg CoordinatorConfig, log *logger.Logger) *Coordinator {
	m := deps.Metrics
	if m == nil {
		m = noopMetrics{}
	}
	c := &Coordinator{
		sanitizer:      deps.Sanitizer,
		ledger:         deps.Ledger,
		correlator:     deps.Correlator,
		cases:          deps.Cases,
		playbooks:      deps.Playbooks,
		events:         deps.Events,
		feed:           deps.Feed,
		cfg:            cfg,
		agentKnowledge: models.ClampKnowledge(cfg.InitialAgentKnowledge),
		metrics:        m,
		clock:          deps.Clock,
		logger:         log.WithComponent("coordinator"),
	}
	c.metrics.SetKnowledge(c.levelsLocked())
	return c
}

// NewEngine builds a coordinator with all components created from cfg
func NewEngine(cfg CoordinatorConfig, opts EngineOptions, log *logger.Logger) *Coordinator {
	return NewCoordinator(CoordinatorDeps{
		Sanitizer:  NewSanitizer(opts.Sanitizer),
		Ledger:     NewKnowledgeLedger(cfg.InitialServerKnowledge, opts.LedgerCapacity, opts.Clock),
		Correlator: NewContextualCorrelator(opts.CorrelationThreshold, log),
		Cases:      NewCaseStore(opts.Clock, log),
		Playbooks:  NewPlaybookEngine(opts.Clock, log),
		Events:     NewEventLog(opts.EventLogCapacity, opts.Publisher, opts.Clock, log),
		Feed:       NewAlertFeed(opts.AlertFeedCapacity),
		Metrics:    opts.Metrics,
		Clock:      opts.Clock,
	}, cfg, log)
}

// EngineOptions are the component-level settings used by NewEngine
type EngineOptions struct {
	Sanitizer            SanitizerConfig
	LedgerCapacity       int
	EventLogCapacity     int
	AlertFeedCapacity    int
	CorrelationThreshold int
	Publisher            EventPublisher
	Metrics              EngineMetrics
	Clock                Clock
}

// ProcessTick runs the full pipeline for one tick
func (c *Coordinator) ProcessTick(ctx context.Context, in models.TickInput) (*TickReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := c.processTickLocked(ctx, in)

	// publish outside the engine lock
	c.events.Flush(ctx)

	return report, nil
}

func (c *Coordinator) processTickLocked(ctx context.Context, in models.TickInput) *TickReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	c.ticks++
	report := &TickReport{Tick: c.ticks}
	log := c.logger.WithTick(c.ticks)

	if in.Alert != nil {
		if err := c.ingestAlert(ctx, in.Alert, report, log); err != nil {
			report.Warnings = append(report.Warnings, err.Error())
			log.Warn().Err(err).Str("alert_id", in.Alert.ID).Msg("alert rejected")
		}
	}

	if in.Intel != nil {
		c.absorbIntel(in.Intel, report)
	}

	if in.Directive != nil {
		if err := in.Directive.Validate(); err != nil {
			report.Warnings = append(report.Warnings, err.Error())
			log.Warn().Err(err).Msg("directive rejected")
		} else if c.ledger.Total() > c.cfg.DirectiveFloor {
			c.emit(*in.Directive, report)
		} else {
			log.Debug().
				Float64("server_knowledge", c.ledger.Total()).
				Float64("floor", c.cfg.DirectiveFloor).
				Msg("directive held back, knowledge below floor")
		}
	}

	c.syncAgentKnowledge(report)

	report.Knowledge = c.levelsLocked()
	c.metrics.SetKnowledge(report.Knowledge)
	c.metrics.SetCaseCounts(c.cases.Counts())
	c.metrics.ObserveTick(time.Since(start))

	log.Debug().
		Int("events", len(report.Events)).
		Float64("server_knowledge", report.Knowledge.Server).
		Float64("agent_knowledge", report.Knowledge.Agent).
		Msg("tick processed")

	return report
}

func (c *Coordinator) ingestAlert(ctx context.Context, alert *models.RawAlert, report *TickReport, log *logger.Logger) error {
	if err := alert.Validate(); err != nil {
		return err
	}

	if err := alert.CheckShape(); err != nil {
		report.Warnings = append(report.Warnings, err.Error())
		log.Warn().Err(err).Str("alert_id", alert.ID).Msg("alert missing expected raw data, degrading")
	}

	c.feed.Add(alert)

	// sanitize and aggregate
	aggregated := models.AggregatedEvent{
		AlertID:          alert.ID,
		Title:            alert.Title,
		Severity:         alert.Severity,
		Count:            1,
		FirstSeen:        alert.Timestamp,
		LastSeen:         alert.Timestamp,
		SanitizedPayload: c.sanitizer.Sanitize(alert),
		Context:          alert.RawData.Context,
		Device:           alert.RawData.Device,
		MitreMapping:     alert.MitreMapping,
	}
	c.emit(aggregated, report)

	// severity-weighted knowledge gain
	if gain := c.alertGain(alert); gain > 0 {
		c.ledger.Record(string(alert.Severity)+" Alert: "+alert.Title, gain)
	}

	// contextual correlation
	if alert.RawData.Context != nil && alert.RawData.Context.Complete() {
		result := c.correlator.Observe(*alert.RawData.Context, alert.Title)
		if result.Triggered {
			c.emit(result.Alert, report)
			if c.cfg.Scoring.CorrelationGain > 0 {
				c.ledger.Record(SourcePrefixCorrelation+alert.RawData.Context.Key(), c.cfg.Scoring.CorrelationGain)
			}
		}
	}

	// playbooks
	for _, match := range c.playbooks.Evaluate(alert) {
		exec := c.playbooks.Execute(ctx, match, alert, c.cases)
		c.emit(exec.Triggered, report)
		for _, n := range exec.Notifications {
			c.emit(n, report)
		}
		c.metrics.PlaybookExecuted(match.PlaybookName, len(exec.Triggered.FailedActions))
	}

	// built-in remediation
	if alert.Severity == models.SeverityCritical {
		host := alert.Hostname()
		if host == "" {
			host = "unknown"
		}
		c.emit(models.AutomatedRemediation{
			AlertID:      alert.ID,
			ThreatName:   alert.Title,
			ActionsTaken: append([]string(nil), remediationActions...),
			TargetHost:   host,
		}, report)
		if c.cfg.Scoring.RemediationGain > 0 {
			c.ledger.Record(SourcePrefixRemediation+alert.Title, c.cfg.Scoring.RemediationGain)
		}
	}

	return nil
}

func (c *Coordinator) alertGain(alert *models.RawAlert) float64 {
	gain := c.cfg.Scoring.SeverityGains[alert.Severity]
	for title, m := range c.cfg.Scoring.TitleMultipliers {
		if strings.EqualFold(title, alert.Title) {
			gain *= m
			break
		}
	}
	return gain
}

func (c *Coordinator) absorbIntel(intel *models.LearningUpdate, report *TickReport) {
	c.emit(*intel, report)

	gain := c.cfg.Scoring.IntelGain
	if intel.HasDetails() {
		gain = c.cfg.Scoring.DetailedIntelGain
	}
	source := strings.TrimSpace(intel.Source)
	if source == "" {
		source = "unknown"
	}
	if gain > 0 {
		c.ledger.Record(SourcePrefixIntel+source, gain)
	}
}

func (c *Coordinator) syncAgentKnowledge(report *TickReport) {
	server := c.ledger.Total()
	if server-c.agentKnowledge <= c.cfg.SyncMargin {
		return
	}

	before := c.agentKnowledge
	next := math.Min(before+c.cfg.SyncStep, server)
	next = math.Min(next, models.KnowledgeMax)
	if next <= before {
		return
	}
	c.agentKnowledge = next
	c.syncs++

	c.emit(models.KnowledgeSync{
		Description:     fmt.Sprintf("Agent knowledge base synchronized with server (%.1f -> %.1f)", before, next),
		Version:         fmt.Sprintf("kb-%04d", c.syncs),
		ServerKnowledge: server,
		AgentKnowledge:  next,
	}, report)
}

func (c *Coordinator) emit(payload models.EventPayload, report *TickReport) models.ServerEvent {
	ev := c.events.Append(payload)
	c.metrics.EventEmitted(ev.Type)
	if report != nil {
		report.Events = append(report.Events, ev)
	}
	return ev
}

func (c *Coordinator) levelsLocked() models.KnowledgeLevels {
	return models.KnowledgeLevels{
		Server: c.ledger.Total(),
		Agent:  c.agentKnowledge,
	}
}

// Commands

// CreateCase opens a case for an alert still present in the alert feed
func (c *Coordinator) CreateCase(alertID string) (*models.Case, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	alert, ok := c.feed.Get(alertID)
	if !ok {
		return nil, false, &models.NotFoundError{Kind: "alert", ID: alertID}
	}
	id, created, err := c.cases.Create(alert)
	if err != nil {
		return nil, false, err
	}
	cs, err := c.cases.Get(id)
	if err != nil {
		return nil, false, err
	}
	c.metrics.SetCaseCounts(c.cases.Counts())
	return cs, created, nil
}

// AssignCase assigns a case to an analyst
func (c *Coordinator) AssignCase(caseID, assignee string) (*models.Case, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cs, err := c.cases.Assign(caseID, assignee)
	if err == nil {
		c.metrics.SetCaseCounts(c.cases.Counts())
	}
	return cs, err
}

// ResolveCase closes a case with resolution notes
func (c *Coordinator) ResolveCase(caseID, notes string) (*models.Case, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cs, err := c.cases.Resolve(caseID, notes)
	if err == nil {
		c.metrics.SetCaseCounts(c.cases.Counts())
	}
	return cs, err
}

// SavePlaybook creates a playbook or appends a new version
func (c *Coordinator) SavePlaybook(draft models.PlaybookDraft) (*models.Playbook, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playbooks.Save(draft)
}

// SetPlaybookActive enables or disables a playbook
func (c *Coordinator) SetPlaybookActive(id string, active bool) (*models.Playbook, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playbooks.SetActive(id, active)
}

// SetActivePlaybookVersion rolls a playbook to one of its versions
func (c *Coordinator) SetActivePlaybookVersion(id, versionID string) (*models.Playbook, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playbooks.SetActiveVersion(id, versionID)
}

// PushAgentUpgrade emits an operator-issued agent upgrade directive
func (c *Coordinator) PushAgentUpgrade(ctx context.Context, version, targetOS string) (*models.ServerEvent, error) {
	d := models.Directive{
		Type:     models.DirectiveAgentUpgrade,
		Version:  strings.TrimSpace(version),
		TargetOS: strings.TrimSpace(targetOS),
		Issuer:   "operator",
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	ev := c.emit(d, nil)
	c.mu.Unlock()

	c.events.Flush(ctx)

	c.logger.Info().Str("version", d.Version).Str("target_os", d.TargetOS).Msg("agent upgrade pushed")
	return &ev, nil
}

// Read models

// Knowledge returns the current server and agent knowledge levels
func (c *Coordinator) Knowledge() models.KnowledgeLevels {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.levelsLocked()
}

// Ticks returns the number of processed ticks
func (c *Coordinator) Ticks() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

// Snapshot builds the dashboard overview
func (c *Coordinator) Snapshot() models.DashboardSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return models.DashboardSnapshot{
		GeneratedAt:     c.clock.now(),
		Ticks:           c.ticks,
		Knowledge:       c.levelsLocked(),
		Cases:           c.cases.Counts(),
		AlertCount:      c.feed.Len(),
		EventCount:      c.events.Len(),
		EventsByType:    c.events.CountByType(),
		ActivePlaybooks: c.playbooks.ActiveCount(),
		RecentLedger:    c.ledger.Entries(10),
	}
}

// Ledger returns the knowledge ledger
func (c *Coordinator) Ledger() *KnowledgeLedger { return c.ledger }

// Cases returns the case store
func (c *Coordinator) Cases() *CaseStore { return c.cases }

// Playbooks returns the playbook engine
func (c *Coordinator) Playbooks() *PlaybookEngine { return c.playbooks }

// Events returns the event log
func (c *Coordinator) Events() *EventLog { return c.events }

// Feed returns the alert feed
func (c *Coordinator) Feed() *AlertFeed { return c.feed }
