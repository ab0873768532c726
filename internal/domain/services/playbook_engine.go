package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"openprotect-lab/internal/domain/models"
	"openprotect-lab/pkg/logger"
)

// maxExecutionHistory bounds the in-memory execution history
const maxExecutionHistory = 100

// CaseManager is the case store surface used by playbook actions
type CaseManager interface {
	Create(alert *models.RawAlert) (string, bool, error)
	Assign(caseID, assignee string) (*models.Case, error)
	CaseForAlert(alertID string) (string, bool)
}

// PlaybookMatch is an active playbook version whose trigger matched an alert
type PlaybookMatch struct {
	PlaybookID   string
	PlaybookName string
	Version      models.PlaybookVersion
}

// PlaybookExecution is the result of running a matched playbook
type PlaybookExecution struct {
	Triggered     models.PlaybookTriggered
	Notifications []models.OutboundNotification
}

// executionState is threaded through the action handlers of one execution
type executionState struct {
	match         PlaybookMatch
	alert         *models.RawAlert
	cases         CaseManager
	caseID        string
	notifications []models.OutboundNotification
}

// ActionHandler executes one action and returns the label recorded in
// actions_taken
type ActionHandler func(ctx context.Context, action models.PlaybookAction, st *executionState) (string, error)

// PlaybookStats summarises engine activity
type PlaybookStats struct {
	TotalPlaybooks  int            `json:"total_playbooks"`
	ActivePlaybooks int            `json:"active_playbooks"`
	TotalVersions   int            `json:"total_versions"`
	Executions      int            `json:"executions"`
	FailedActions   int            `json:"failed_actions"`
	ByPlaybook      map[string]int `json:"by_playbook"`
}

// PlaybookEngine stores versioned playbooks, evaluates them against alerts
// and runs their actions
type PlaybookEngine struct {
	mu         sync.RWMutex
	playbooks  map[string]*models.Playbook
	order      []string
	executions []models.PlaybookTriggered

	actionHandlers map[models.ActionType]ActionHandler
	clock          Clock
	logger         *logger.Logger
}

// NewPlaybookEngine creates an empty playbook engine
func NewPlaybookEngine(clock Clock, log *logger.Logger) *PlaybookEngine {
	e := &PlaybookEngine{
		playbooks:      make(map[string]*models.Playbook),
		actionHandlers: make(map[models.ActionType]ActionHandler),
		clock:          clock,
		logger:         log.WithComponent("playbook-engine"),
	}
	e.registerDefaultHandlers()
	return e
}

func (e *PlaybookEngine) registerDefaultHandlers() {
	// Case actions
	e.actionHandlers[models.ActionCreateCase] = e.handleCreateCase
	e.actionHandlers[models.ActionAssignCase] = e.handleAssignCase

	// Containment
	e.actionHandlers[models.ActionIsolateHost] = e.handleIsolateHost

	// Notifications
	e.actionHandlers[models.ActionSendSlackMessage] = e.handleSendSlack
	e.actionHandlers[models.ActionSendTeamsMessage] = e.handleSendTeams
	e.actionHandlers[models.ActionSendEmail] = e.handleSendEmail
}

// Save creates a playbook (empty draft ID) or appends a new version to an
// existing one and makes it active. Previous versions are never modified.
func (e *PlaybookEngine) Save(draft models.PlaybookDraft) (*models.Playbook, error) {
	if err := e.validateDraft(draft); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.now()
	version := models.PlaybookVersion{
		VersionID: uuid.NewString(),
		CreatedAt: now,
		Author:    strings.TrimSpace(draft.Author),
		Notes:     strings.TrimSpace(draft.Notes),
		Trigger: models.PlaybookTrigger{
			LogicalOperator: normalizeOperator(draft.Trigger.LogicalOperator),
			Conditions:      append([]models.PlaybookCondition(nil), draft.Trigger.Conditions...),
		},
		Actions: append([]models.PlaybookAction(nil), draft.Actions...),
	}
	if version.Author == "" {
		version.Author = "system"
	}

	if draft.ID == "" {
		id := uuid.NewString()
		version.Number = 1
		pb := &models.Playbook{
			ID:              id,
			Name:            strings.TrimSpace(draft.Name),
			Description:     draft.Description,
			IsActive:        draft.IsActive == nil || *draft.IsActive,
			Versions:        []models.PlaybookVersion{version},
			ActiveVersionID: version.VersionID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		e.playbooks[id] = pb
		e.order = append(e.order, id)

		e.logger.Info().
			Str("playbook_id", id).
			Str("name", pb.Name).
			Int("conditions", len(version.Trigger.Conditions)).
			Int("actions", len(version.Actions)).
			Msg("playbook created")
		return pb.Clone(), nil
	}

	pb, ok := e.playbooks[draft.ID]
	if !ok {
		return nil, &models.NotFoundError{Kind: "playbook", ID: draft.ID}
	}
	version.Number = len(pb.Versions) + 1
	pb.Versions = append(pb.Versions, version)
	pb.ActiveVersionID = version.VersionID
	pb.Name = strings.TrimSpace(draft.Name)
	pb.Description = draft.Description
	if draft.IsActive != nil {
		pb.IsActive = *draft.IsActive
	}
	pb.UpdatedAt = now

	e.logger.Info().
		Str("playbook_id", pb.ID).
		Str("version_id", version.VersionID).
		Int("version", version.Number).
		Msg("playbook version saved")
	return pb.Clone(), nil
}

func normalizeOperator(op models.LogicalOperator) models.LogicalOperator {
	if strings.EqualFold(string(op), string(models.LogicalOr)) {
		return models.LogicalOr
	}
	return models.LogicalAnd
}

func (e *PlaybookEngine) validateDraft(d models.PlaybookDraft) error {
	const op = "save playbook"
	if strings.TrimSpace(d.Name) == "" {
		return models.NewValidationError(op, "name is required")
	}
	if len(d.Trigger.Conditions) == 0 {
		return models.NewValidationError(op, "at least one trigger condition is required")
	}
	switch strings.ToUpper(string(d.Trigger.LogicalOperator)) {
	case "", string(models.LogicalAnd), string(models.LogicalOr):
	default:
		return models.NewValidationError(op, fmt.Sprintf("unknown logical operator %q", d.Trigger.LogicalOperator))
	}
	for i, c := range d.Trigger.Conditions {
		switch c.Field {
		case models.FieldTitle, models.FieldSeverity, models.FieldDeviceOS, models.FieldMitreID:
		default:
			return models.NewValidationError(op, fmt.Sprintf("condition %d: unknown field %q", i, c.Field))
		}
		switch c.Operator {
		case models.OperatorIs, models.OperatorIsNot:
		default:
			return models.NewValidationError(op, fmt.Sprintf("condition %d: unknown operator %q", i, c.Operator))
		}
	}
	if len(d.Actions) == 0 {
		return models.NewValidationError(op, "at least one action is required")
	}
	for i, a := range d.Actions {
		if _, ok := e.actionHandlers[a.Type]; !ok {
			return models.NewValidationError(op, fmt.Sprintf("action %d: unsupported action type %q", i, a.Type))
		}
		if err := a.Validate(); err != nil {
			return models.NewValidationError(op, fmt.Sprintf("action %d: %v", i, err))
		}
	}
	return nil
}

// SetActive enables or disables a playbook without touching its versions
func (e *PlaybookEngine) SetActive(id string, active bool) (*models.Playbook, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pb, ok := e.playbooks[id]
	if !ok {
		return nil, &models.NotFoundError{Kind: "playbook", ID: id}
	}
	pb.IsActive = active
	pb.UpdatedAt = e.clock.now()

	e.logger.Info().Str("playbook_id", id).Bool("active", active).Msg("playbook activation changed")
	return pb.Clone(), nil
}

// SetActiveVersion repoints a playbook at one of its existing versions
func (e *PlaybookEngine) SetActiveVersion(id, versionID string) (*models.Playbook, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pb, ok := e.playbooks[id]
	if !ok {
		return nil, &models.NotFoundError{Kind: "playbook", ID: id}
	}
	if _, ok := pb.Version(versionID); !ok {
		return nil, models.NewValidationError("set active version",
			fmt.Sprintf("version %q does not belong to playbook %q", versionID, id))
	}
	pb.ActiveVersionID = versionID
	pb.UpdatedAt = e.clock.now()

	e.logger.Info().Str("playbook_id", id).Str("version_id", versionID).Msg("playbook active version changed")
	return pb.Clone(), nil
}

// Get returns a copy of the playbook
func (e *PlaybookEngine) Get(id string) (*models.Playbook, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	pb, ok := e.playbooks[id]
	if !ok {
		return nil, &models.NotFoundError{Kind: "playbook", ID: id}
	}
	return pb.Clone(), nil
}

// Versions returns the version history of a playbook, newest first
func (e *PlaybookEngine) Versions(id string) ([]models.PlaybookVersion, error) {
	pb, err := e.Get(id)
	if err != nil {
		return nil, err
	}
	out := pb.Versions
	sort.SliceStable(out, func(i, j int) bool { return out[i].Number > out[j].Number })
	return out, nil
}

// List returns all playbooks in creation order
func (e *PlaybookEngine) List() []*models.Playbook {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*models.Playbook, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.playbooks[id].Clone())
	}
	return out
}

// ActiveCount returns the number of active playbooks
func (e *PlaybookEngine) ActiveCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	n := 0
	for _, pb := range e.playbooks {
		if pb.IsActive {
			n++
		}
	}
	return n
}

// Evaluate returns the active playbooks whose active version matches alert,
// in creation order
func (e *PlaybookEngine) Evaluate(alert *models.RawAlert) []PlaybookMatch {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var matches []PlaybookMatch
	for _, id := range e.order {
		pb := e.playbooks[id]
		if !pb.IsActive {
			continue
		}
		v, ok := pb.ActiveVersion()
		if !ok {
			e.logger.Warn().Str("playbook_id", id).Msg("active version missing, skipping playbook")
			continue
		}
		if TriggerMatches(v.Trigger, alert) {
			matches = append(matches, PlaybookMatch{
				PlaybookID:   pb.ID,
				PlaybookName: pb.Name,
				Version:      v.Clone(),
			})
		}
	}
	return matches
}

// TriggerMatches evaluates a trigger against an alert. A trigger without
// conditions never matches.
func TriggerMatches(trigger models.PlaybookTrigger, alert *models.RawAlert) bool {
	if alert == nil || len(trigger.Conditions) == 0 {
		return false
	}

	if trigger.LogicalOperator == models.LogicalOr {
		for _, c := range trigger.Conditions {
			if conditionMatches(c, alert) {
				return true
			}
		}
		return false
	}

	for _, c := range trigger.Conditions {
		if !conditionMatches(c, alert) {
			return false
		}
	}
	return true
}

func conditionMatches(c models.PlaybookCondition, alert *models.RawAlert) bool {
	actual := fieldValue(c.Field, alert)
	switch c.Operator {
	case models.OperatorIs:
		return actual == c.Value
	case models.OperatorIsNot:
		return actual != c.Value
	default:
		return false
	}
}

func fieldValue(field models.ConditionField, alert *models.RawAlert) string {
	switch field {
	case models.FieldTitle:
		return alert.Title
	case models.FieldSeverity:
		return string(alert.Severity)
	case models.FieldDeviceOS:
		return alert.OS()
	case models.FieldMitreID:
		if alert.MitreMapping == nil {
			return ""
		}
		return alert.MitreMapping.ID
	default:
		return ""
	}
}

// Execute runs the matched version's actions in order. Failing actions are
// reported on the result and do not stop the remaining ones.
func (e *PlaybookEngine) Execute(ctx context.Context, match PlaybookMatch, alert *models.RawAlert, cases CaseManager) PlaybookExecution {
	st := &executionState{
		match: match,
		alert: alert,
		cases: cases,
	}
	if id, ok := cases.CaseForAlert(alert.ID); ok {
		st.caseID = id
	}

	triggered := models.PlaybookTriggered{
		PlaybookID:            match.PlaybookID,
		PlaybookName:          match.PlaybookName,
		VersionID:             match.Version.VersionID,
		TriggeredByAlertID:    alert.ID,
		TriggeredByAlertTitle: alert.Title,
		TargetHost:            alert.Hostname(),
		ActionsTaken:          make([]string, 0, len(match.Version.Actions)),
	}

	for _, action := range match.Version.Actions {
		handler, ok := e.actionHandlers[action.Type]
		if !ok {
			triggered.FailedActions = append(triggered.FailedActions,
				fmt.Sprintf("%s: unsupported action", action.Type))
			continue
		}
		label, err := handler(ctx, action, st)
		if err != nil {
			e.logger.Warn().
				Err(err).
				Str("playbook", match.PlaybookName).
				Str("action", string(action.Type)).
				Str("alert_id", alert.ID).
				Msg("playbook action failed")
			triggered.FailedActions = append(triggered.FailedActions, fmt.Sprintf("%s: %v", action.Type, err))
			continue
		}
		triggered.ActionsTaken = append(triggered.ActionsTaken, label)
	}
	triggered.CaseID = st.caseID

	e.recordExecution(triggered)

	e.logger.Info().
		Str("playbook", match.PlaybookName).
		Str("alert_id", alert.ID).
		Int("actions", len(triggered.ActionsTaken)).
		Int("failed", len(triggered.FailedActions)).
		Msg("playbook executed")

	return PlaybookExecution{Triggered: triggered, Notifications: st.notifications}
}

func (e *PlaybookEngine) recordExecution(t models.PlaybookTriggered) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.executions = append(e.executions, t)
	if len(e.executions) > maxExecutionHistory {
		e.executions = e.executions[len(e.executions)-maxExecutionHistory:]
	}
}

// Executions returns the retained execution history, most recent first
func (e *PlaybookEngine) Executions(limit int) []models.PlaybookTriggered {
	e.mu.RLock()
	defer e.mu.RUnlock()

	n := len(e.executions)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.PlaybookTriggered, 0, n)
	for i := len(e.executions) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, e.executions[i])
	}
	return out
}

// Stats returns engine statistics
func (e *PlaybookEngine) Stats() PlaybookStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := PlaybookStats{
		TotalPlaybooks: len(e.playbooks),
		Executions:     len(e.executions),
		ByPlaybook:     make(map[string]int),
	}
	for _, pb := range e.playbooks {
		if pb.IsActive {
			stats.ActivePlaybooks++
		}
		stats.TotalVersions += len(pb.Versions)
	}
	for _, ex := range e.executions {
		stats.ByPlaybook[ex.PlaybookName]++
		stats.FailedActions += len(ex.FailedActions)
	}
	return stats
}

// Action handlers

func (e *PlaybookEngine) handleCreateCase(_ context.Context, _ models.PlaybookAction, st *executionState) (string, error) {
	id, created, err := st.cases.Create(st.alert)
	if err != nil {
		return "", err
	}
	st.caseID = id
	if !created {
		return "Linked existing case " + id, nil
	}
	return "Created case " + id, nil
}

func (e *PlaybookEngine) handleAssignCase(_ context.Context, action models.PlaybookAction, st *executionState) (string, error) {
	if st.caseID == "" {
		return "", fmt.Errorf("no case exists for alert %s", st.alert.ID)
	}
	c, err := st.cases.Assign(st.caseID, action.Params.Assignee)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Assigned case %s to %s", c.ID, c.Assignee), nil
}

func (e *PlaybookEngine) handleIsolateHost(_ context.Context, _ models.PlaybookAction, st *executionState) (string, error) {
	host := st.alert.Hostname()
	if host == "" {
		return "", fmt.Errorf("alert %s has no device hostname", st.alert.ID)
	}
	return "Isolated host " + host, nil
}

func (e *PlaybookEngine) handleSendSlack(_ context.Context, action models.PlaybookAction, st *executionState) (string, error) {
	dest := action.Params.Channel
	if dest == "" {
		dest = action.Params.WebhookURL
	}
	st.notify(models.ChannelSlack, dest, "")
	return "Sent Slack message to " + dest, nil
}

func (e *PlaybookEngine) handleSendTeams(_ context.Context, action models.PlaybookAction, st *executionState) (string, error) {
	st.notify(models.ChannelTeams, action.Params.WebhookURL, "")
	return "Sent MS Teams message", nil
}

func (e *PlaybookEngine) handleSendEmail(_ context.Context, action models.PlaybookAction, st *executionState) (string, error) {
	subject := action.Params.Subject
	if subject == "" {
		subject = fmt.Sprintf("Playbook %q triggered: %s", st.match.PlaybookName, st.alert.Title)
	}
	st.notify(models.ChannelEmail, action.Params.Recipient, subject)
	return "Sent email to " + action.Params.Recipient, nil
}

func (st *executionState) notify(channel models.NotificationChannel, destination, subject string) {
	host := st.alert.Hostname()
	if host == "" {
		host = "unknown host"
	}
	st.notifications = append(st.notifications, models.OutboundNotification{
		Channel:      channel,
		Destination:  destination,
		Subject:      subject,
		Message:      fmt.Sprintf("[%s] %s on %s (playbook %q)", st.alert.Severity, st.alert.Title, host, st.match.PlaybookName),
		PlaybookName: st.match.PlaybookName,
		AlertID:      st.alert.ID,
	})
}
