package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"openprotect-lab/internal/domain/models"
)

func TestContextualCorrelator_TriggersOnSecondOccurrence(t *testing.T) {
	c := NewContextualCorrelator(DefaultCorrelationThreshold, testLogger())
	ctx := models.AlertContext{Industry: "Healthcare", Region: "EU-West"}

	first := c.Observe(ctx, "Phishing Link Clicked")
	assert.False(t, first.Triggered)
	assert.Equal(t, 1, c.Pending(ctx))

	second := c.Observe(ctx, "Credential Dumping")
	assert.True(t, second.Triggered)
	assert.Equal(t, ProactiveAlertTitle, second.Alert.Title)
	assert.Equal(t, "Healthcare Sector in EU-West", second.Alert.TargetContext)
	assert.Equal(t,
		"Correlated multiple threats (Phishing Link Clicked, Credential Dumping) targeting the Healthcare industry in EU-West.",
		second.Alert.Summary)
	assert.Equal(t, []string{"Phishing Link Clicked", "Credential Dumping"}, second.Alert.ThreatTitles)

	// reset after firing
	assert.Equal(t, 0, c.Pending(ctx))
	assert.False(t, c.Observe(ctx, "Phishing Link Clicked").Triggered)
}

func TestContextualCorrelator_ContextsIndependent(t *testing.T) {
	c := NewContextualCorrelator(1, testLogger())
	a := models.AlertContext{Industry: "Financial", Region: "NA-East"}
	b := models.AlertContext{Industry: "Financial", Region: "APAC"}

	assert.False(t, c.Observe(a, "Ransomware Behavior Detected").Triggered)
	assert.False(t, c.Observe(b, "Ransomware Behavior Detected").Triggered)

	res := c.Observe(a, "Credential Dumping")
	assert.True(t, res.Triggered)

	// firing context a leaves context b untouched
	assert.Equal(t, 1, c.Pending(b))
	assert.Equal(t, 0, c.Pending(a))
}

func TestContextualCorrelator_DuplicateTitlesListedOnce(t *testing.T) {
	c := NewContextualCorrelator(1, testLogger())
	ctx := models.AlertContext{Industry: "Retail", Region: "LATAM"}

	c.Observe(ctx, "Anomalous Network Connection")
	res := c.Observe(ctx, "Anomalous Network Connection")

	assert.True(t, res.Triggered)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, []string{"Anomalous Network Connection"}, res.Alert.ThreatTitles)
}

func TestContextualCorrelator_HigherThreshold(t *testing.T) {
	c := NewContextualCorrelator(2, testLogger())
	ctx := models.AlertContext{Industry: "Energy", Region: "MEA"}

	assert.False(t, c.Observe(ctx, "a").Triggered)
	assert.False(t, c.Observe(ctx, "b").Triggered)
	assert.True(t, c.Observe(ctx, "c").Triggered)
}
