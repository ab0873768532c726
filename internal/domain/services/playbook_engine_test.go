package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openprotect-lab/internal/domain/models"
)

func criticalLinuxDraft() models.PlaybookDraft {
	return models.PlaybookDraft{
		Name:   "Critical Linux Response",
		Author: "Alice",
		Trigger: models.PlaybookTrigger{
			LogicalOperator: models.LogicalAnd,
			Conditions: []models.PlaybookCondition{
				{Field: models.FieldSeverity, Operator: models.OperatorIs, Value: "Critical"},
				{Field: models.FieldDeviceOS, Operator: models.OperatorIs, Value: "Linux"},
			},
		},
		Actions: []models.PlaybookAction{
			{Type: models.ActionCreateCase},
			{Type: models.ActionAssignCase, Params: models.ActionParams{Assignee: "Alice"}},
		},
	}
}

func TestPlaybookEngine_SaveCreatesFirstVersion(t *testing.T) {
	e := NewPlaybookEngine(steppingClock(), testLogger())

	pb, err := e.Save(criticalLinuxDraft())
	require.NoError(t, err)

	assert.NotEmpty(t, pb.ID)
	assert.True(t, pb.IsActive)
	require.Len(t, pb.Versions, 1)
	assert.Equal(t, pb.Versions[0].VersionID, pb.ActiveVersionID)
	assert.Equal(t, 1, pb.Versions[0].Number)
	assert.Equal(t, "Alice", pb.Versions[0].Author)
}

func TestPlaybookEngine_VersionRoundTripAndRollback(t *testing.T) {
	e := NewPlaybookEngine(steppingClock(), testLogger())

	pb, err := e.Save(criticalLinuxDraft())
	require.NoError(t, err)
	v1 := pb.ActiveVersionID

	edit := criticalLinuxDraft()
	edit.ID = pb.ID
	edit.Notes = "notify the SOC channel"
	edit.Actions = append(edit.Actions, models.PlaybookAction{
		Type:   models.ActionSendSlackMessage,
		Params: models.ActionParams{Channel: "#soc-alerts"},
	})
	pb, err = e.Save(edit)
	require.NoError(t, err)
	v2 := pb.ActiveVersionID

	require.Len(t, pb.Versions, 2)
	assert.NotEqual(t, v1, v2)

	old, ok := pb.Version(v1)
	require.True(t, ok)
	assert.Len(t, old.Actions, 2, "earlier version is unchanged")

	pb, err = e.SetActiveVersion(pb.ID, v1)
	require.NoError(t, err)
	assert.Equal(t, v1, pb.ActiveVersionID)
	assert.Len(t, pb.Versions, 2)

	active, ok := pb.ActiveVersion()
	require.True(t, ok)
	assert.Len(t, active.Actions, 2)

	versions, err := e.Versions(pb.ID)
	require.NoError(t, err)
	assert.Equal(t, v2, versions[0].VersionID, "newest first")
}

func TestPlaybookEngine_ReturnedCopiesAreIsolated(t *testing.T) {
	e := NewPlaybookEngine(steppingClock(), testLogger())
	pb, err := e.Save(criticalLinuxDraft())
	require.NoError(t, err)

	pb.Versions[0].Actions[0].Type = models.ActionIsolateHost
	pb.Versions[0].Trigger.Conditions[0].Value = "Info"

	stored, err := e.Get(pb.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionCreateCase, stored.Versions[0].Actions[0].Type)
	assert.Equal(t, "Critical", stored.Versions[0].Trigger.Conditions[0].Value)
}

func TestPlaybookEngine_SaveValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.PlaybookDraft)
	}{
		{"no name", func(d *models.PlaybookDraft) { d.Name = " " }},
		{"zero conditions", func(d *models.PlaybookDraft) { d.Trigger.Conditions = nil }},
		{"bad field", func(d *models.PlaybookDraft) { d.Trigger.Conditions[0].Field = "raw_data.user" }},
		{"bad operator", func(d *models.PlaybookDraft) { d.Trigger.Conditions[0].Operator = "contains" }},
		{"bad logical operator", func(d *models.PlaybookDraft) { d.Trigger.LogicalOperator = "XOR" }},
		{"no actions", func(d *models.PlaybookDraft) { d.Actions = nil }},
		{"assign without assignee", func(d *models.PlaybookDraft) { d.Actions[1].Params.Assignee = "" }},
		{"email without recipient", func(d *models.PlaybookDraft) {
			d.Actions = []models.PlaybookAction{{Type: models.ActionSendEmail}}
		}},
		{"unknown action", func(d *models.PlaybookDraft) {
			d.Actions = []models.PlaybookAction{{Type: "DELETE_EVERYTHING"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewPlaybookEngine(steppingClock(), testLogger())
			d := criticalLinuxDraft()
			tt.mutate(&d)

			_, err := e.Save(d)
			require.Error(t, err)
			assert.True(t, models.IsValidation(err))
			assert.Empty(t, e.List())
		})
	}
}

func TestPlaybookEngine_SaveUnknownID(t *testing.T) {
	e := NewPlaybookEngine(steppingClock(), testLogger())
	d := criticalLinuxDraft()
	d.ID = "missing"

	_, err := e.Save(d)
	assert.True(t, models.IsNotFound(err))
}

func TestPlaybookEngine_SetActiveVersionRejectsForeignVersion(t *testing.T) {
	e := NewPlaybookEngine(steppingClock(), testLogger())
	a, err := e.Save(criticalLinuxDraft())
	require.NoError(t, err)
	b, err := e.Save(criticalLinuxDraft())
	require.NoError(t, err)

	_, err = e.SetActiveVersion(a.ID, b.ActiveVersionID)
	assert.True(t, models.IsValidation(err))

	stored, err := e.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ActiveVersionID, stored.ActiveVersionID)
}

func TestTriggerMatches(t *testing.T) {
	linuxCritical := newAlert("a", "Ransomware Behavior Detected", models.SeverityCritical,
		withDevice("db-01", "Linux"), withMitre("T1486"))
	windowsCritical := newAlert("b", "Ransomware Behavior Detected", models.SeverityCritical)
	linuxHigh := newAlert("c", "Credential Dumping", models.SeverityHigh, withDevice("db-02", "Linux"))

	and := criticalLinuxDraft().Trigger
	or := and
	or.LogicalOperator = models.LogicalOr

	assert.True(t, TriggerMatches(and, linuxCritical))
	assert.False(t, TriggerMatches(and, windowsCritical))
	assert.False(t, TriggerMatches(and, linuxHigh))

	assert.True(t, TriggerMatches(or, windowsCritical))
	assert.True(t, TriggerMatches(or, linuxHigh))

	notWindows := models.PlaybookTrigger{Conditions: []models.PlaybookCondition{
		{Field: models.FieldDeviceOS, Operator: models.OperatorIsNot, Value: "Windows"},
	}}
	assert.True(t, TriggerMatches(notWindows, linuxHigh))
	assert.False(t, TriggerMatches(notWindows, windowsCritical))

	mitre := models.PlaybookTrigger{Conditions: []models.PlaybookCondition{
		{Field: models.FieldMitreID, Operator: models.OperatorIs, Value: "T1486"},
	}}
	assert.True(t, TriggerMatches(mitre, linuxCritical))
	assert.False(t, TriggerMatches(mitre, linuxHigh))

	title := models.PlaybookTrigger{Conditions: []models.PlaybookCondition{
		{Field: models.FieldTitle, Operator: models.OperatorIs, Value: "Credential Dumping"},
	}}
	assert.True(t, TriggerMatches(title, linuxHigh))

	assert.False(t, TriggerMatches(models.PlaybookTrigger{LogicalOperator: models.LogicalOr}, linuxCritical))
	assert.False(t, TriggerMatches(models.PlaybookTrigger{}, linuxCritical))
}

func TestPlaybookEngine_EvaluateSkipsInactive(t *testing.T) {
	e := NewPlaybookEngine(steppingClock(), testLogger())
	pb, err := e.Save(criticalLinuxDraft())
	require.NoError(t, err)

	alert := newAlert("a", "x", models.SeverityCritical, withDevice("db-01", "Linux"))
	assert.Len(t, e.Evaluate(alert), 1)

	_, err = e.SetActive(pb.ID, false)
	require.NoError(t, err)
	assert.Empty(t, e.Evaluate(alert))
	assert.Equal(t, 0, e.ActiveCount())
}

func TestPlaybookEngine_ExecuteCreatesAndAssigns(t *testing.T) {
	e := NewPlaybookEngine(steppingClock(), testLogger())
	cases := NewCaseStore(steppingClock(), testLogger())

	d := criticalLinuxDraft()
	d.Actions = append(d.Actions,
		models.PlaybookAction{Type: models.ActionIsolateHost},
		models.PlaybookAction{Type: models.ActionSendSlackMessage, Params: models.ActionParams{Channel: "#soc"}},
		models.PlaybookAction{Type: models.ActionSendTeamsMessage, Params: models.ActionParams{WebhookURL: "https://teams.example/hook"}},
		models.PlaybookAction{Type: models.ActionSendEmail, Params: models.ActionParams{Recipient: "soc@example.com"}},
	)
	_, err := e.Save(d)
	require.NoError(t, err)

	alert := newAlert("a-9", "Ransomware Behavior Detected", models.SeverityCritical, withDevice("db-01", "Linux"))
	matches := e.Evaluate(alert)
	require.Len(t, matches, 1)

	exec := e.Execute(context.Background(), matches[0], alert, cases)

	caseID, ok := cases.CaseForAlert("a-9")
	require.True(t, ok)
	c, err := cases.Get(caseID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", c.Assignee)
	assert.Equal(t, models.CaseStatusInProgress, c.Status)

	tr := exec.Triggered
	assert.Equal(t, "Critical Linux Response", tr.PlaybookName)
	assert.Equal(t, "db-01", tr.TargetHost)
	assert.Equal(t, caseID, tr.CaseID)
	assert.Empty(t, tr.FailedActions)
	assert.Equal(t, []string{
		"Created case " + caseID,
		"Assigned case " + caseID + " to Alice",
		"Isolated host db-01",
		"Sent Slack message to #soc",
		"Sent MS Teams message",
		"Sent email to soc@example.com",
	}, tr.ActionsTaken)

	require.Len(t, exec.Notifications, 3)
	assert.Equal(t, models.ChannelSlack, exec.Notifications[0].Channel)
	assert.Equal(t, models.ChannelTeams, exec.Notifications[1].Channel)
	assert.Equal(t, models.ChannelEmail, exec.Notifications[2].Channel)
	assert.Contains(t, exec.Notifications[2].Subject, "Critical Linux Response")

	stats := e.Stats()
	assert.Equal(t, 1, stats.Executions)
	assert.Equal(t, 1, stats.ByPlaybook["Critical Linux Response"])
	assert.Len(t, e.Executions(0), 1)
}

func TestPlaybookEngine_ExecuteReportsFailures(t *testing.T) {
	e := NewPlaybookEngine(steppingClock(), testLogger())
	cases := NewCaseStore(steppingClock(), testLogger())

	_, err := e.Save(models.PlaybookDraft{
		Name: "Medium Triage",
		Trigger: models.PlaybookTrigger{Conditions: []models.PlaybookCondition{
			{Field: models.FieldSeverity, Operator: models.OperatorIs, Value: "Medium"},
		}},
		Actions: []models.PlaybookAction{
			{Type: models.ActionCreateCase},
			{Type: models.ActionAssignCase, Params: models.ActionParams{Assignee: "Bob"}},
			{Type: models.ActionSendEmail, Params: models.ActionParams{Recipient: "soc@example.com"}},
		},
	})
	require.NoError(t, err)

	alert := newAlert("m-1", "Anomalous Network Connection", models.SeverityMedium)
	matches := e.Evaluate(alert)
	require.Len(t, matches, 1)

	exec := e.Execute(context.Background(), matches[0], alert, cases)

	assert.Len(t, exec.Triggered.FailedActions, 2)
	assert.Equal(t, []string{"Sent email to soc@example.com"}, exec.Triggered.ActionsTaken)
	assert.Len(t, exec.Notifications, 1)
	_, ok := cases.CaseForAlert("m-1")
	assert.False(t, ok)
	assert.Equal(t, 2, e.Stats().FailedActions)
}

func TestPlaybookEngine_AssignOnResolvedCaseFails(t *testing.T) {
	e := NewPlaybookEngine(steppingClock(), testLogger())
	cases := NewCaseStore(steppingClock(), testLogger())
	_, err := e.Save(criticalLinuxDraft())
	require.NoError(t, err)

	alert := newAlert("a-1", "x", models.SeverityCritical, withDevice("db-01", "Linux"))
	id, _, err := cases.Create(alert)
	require.NoError(t, err)
	_, err = cases.Assign(id, "Diana")
	require.NoError(t, err)
	_, err = cases.Resolve(id, "closed")
	require.NoError(t, err)

	exec := e.Execute(context.Background(), e.Evaluate(alert)[0], alert, cases)
	assert.Equal(t, []string{"Linked existing case " + id}, exec.Triggered.ActionsTaken)
	require.Len(t, exec.Triggered.FailedActions, 1)

	c, err := cases.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "Diana", c.Assignee)
}
