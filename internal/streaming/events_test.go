package streaming

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"openprotect-lab/internal/domain/models"
)

func aggregated(sev models.Severity, industry, region string) *models.ServerEvent {
	return &models.ServerEvent{
		ID:   "evt",
		Type: models.EventAggregated,
		Payload: models.AggregatedEvent{
			AlertID:  "a-1",
			Severity: sev,
			Context:  &models.AlertContext{Industry: industry, Region: region},
		},
	}
}

func TestSubjectFor(t *testing.T) {
	assert.Equal(t, "console.events.playbook_triggered", SubjectFor("", models.EventPlaybookTriggered))
	assert.Equal(t, "lab.aggregated_event", SubjectFor("lab", models.EventAggregated))
}

func TestSubscription_Matches(t *testing.T) {
	ks := &models.ServerEvent{Type: models.EventKnowledgeSync, Payload: models.KnowledgeSync{}}
	high := aggregated(models.SeverityHigh, "Financial", "NA-East")
	medium := aggregated(models.SeverityMedium, "Retail", "NA-West")

	tests := []struct {
		name  string
		sub   *Subscription
		event *models.ServerEvent
		want  bool
	}{
		{"nil subscription", nil, high, true},
		{"empty subscription", &Subscription{}, ks, true},
		{"type filter hit", &Subscription{Types: []models.EventType{models.EventKnowledgeSync}}, ks, true},
		{"type filter miss", &Subscription{Types: []models.EventType{models.EventKnowledgeSync}}, high, false},
		{"severity pass", &Subscription{MinSeverity: models.SeverityHigh}, high, true},
		{"severity block", &Subscription{MinSeverity: models.SeverityHigh}, medium, false},
		{"severity ignores non-alert events", &Subscription{MinSeverity: models.SeverityCritical}, ks, true},
		{"context hit", &Subscription{Contexts: []string{"Financial|NA-East"}}, high, true},
		{"context miss", &Subscription{Contexts: []string{"Financial|NA-East"}}, medium, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sub.Matches(tt.event))
		})
	}
}

func TestSubscription_Validate(t *testing.T) {
	assert.NoError(t, (&Subscription{Types: []models.EventType{models.EventDirectivePush}}).Validate())
	assert.True(t, models.IsValidation((&Subscription{Types: []models.EventType{"BOGUS"}}).Validate()))
	assert.True(t, models.IsValidation((&Subscription{MinSeverity: "Severe"}).Validate()))
}
