package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openprotect-lab/internal/domain/models"
)

func TestCaseStore_CreateIsIdempotent(t *testing.T) {
	s := NewCaseStore(steppingClock(), testLogger())
	alert := newAlert("a-1", "Ransomware Behavior Detected", models.SeverityCritical)

	id1, created, err := s.Create(alert)
	require.NoError(t, err)
	assert.True(t, created)

	id2, created, err := s.Create(alert)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id1, id2)
	assert.Len(t, s.List(""), 1)

	c, err := s.Get(id1)
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusNew, c.Status)
	assert.Equal(t, "Ransomware Behavior Detected", c.Title())
	assert.Equal(t, "HOST-a-1", c.Alerts[0].Hostname)
}

func TestCaseStore_CreateRejectsLowSeverity(t *testing.T) {
	s := NewCaseStore(steppingClock(), testLogger())

	for _, sev := range []models.Severity{models.SeverityInfo, models.SeverityMedium} {
		_, _, err := s.Create(newAlert("a-"+string(sev), "t", sev))
		require.Error(t, err)
		assert.True(t, models.IsValidation(err))
	}
	assert.Empty(t, s.List(""))

	_, created, err := s.Create(newAlert("h", "t", models.SeverityHigh))
	require.NoError(t, err)
	assert.True(t, created)
}

func TestCaseStore_Lifecycle(t *testing.T) {
	s := NewCaseStore(steppingClock(), testLogger())
	id, _, err := s.Create(newAlert("a-1", "Credential Dumping", models.SeverityHigh))
	require.NoError(t, err)

	c, err := s.Assign(id, "Alice")
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusInProgress, c.Status)
	assert.Equal(t, "Alice", c.Assignee)

	c, err = s.Assign(id, "Bob")
	require.NoError(t, err)
	assert.Equal(t, "Bob", c.Assignee)

	c, err = s.Resolve(id, "  Reset credentials and reimaged host.  ")
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusResolved, c.Status)
	assert.Equal(t, "Reset credentials and reimaged host.", c.ResolutionNotes)
	require.NotNil(t, c.ResolvedAt)

	_, err = s.Assign(id, "Bob")
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	stored, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusResolved, stored.Status)
	assert.Equal(t, "Bob", stored.Assignee)

	_, err = s.Resolve(id, "again")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestCaseStore_ResolveValidation(t *testing.T) {
	s := NewCaseStore(steppingClock(), testLogger())
	id, _, err := s.Create(newAlert("a-1", "t", models.SeverityCritical))
	require.NoError(t, err)

	_, err = s.Resolve(id, "notes")
	assert.ErrorIs(t, err, models.ErrInvalidTransition, "new case must be assigned first")

	_, err = s.Assign(id, "Diana")
	require.NoError(t, err)

	_, err = s.Resolve(id, "   ")
	assert.True(t, models.IsValidation(err))

	c, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusInProgress, c.Status)
	assert.Nil(t, c.ResolvedAt)
}

func TestCaseStore_NotFound(t *testing.T) {
	s := NewCaseStore(steppingClock(), testLogger())

	_, err := s.Assign("CASE-NOPE", "Alice")
	assert.True(t, models.IsNotFound(err))
	_, err = s.Resolve("CASE-NOPE", "x")
	assert.True(t, models.IsNotFound(err))
	_, err = s.Get("CASE-NOPE")
	assert.True(t, models.IsNotFound(err))
	_, err = s.Assign("CASE-NOPE", "")
	assert.True(t, models.IsValidation(err))
}

func TestCaseStore_CountsAndResolvedSearch(t *testing.T) {
	s := NewCaseStore(steppingClock(), testLogger())

	resolve := func(alertID, title, who, notes string) string {
		id, _, err := s.Create(newAlert(alertID, title, models.SeverityHigh))
		require.NoError(t, err)
		_, err = s.Assign(id, who)
		require.NoError(t, err)
		_, err = s.Resolve(id, notes)
		require.NoError(t, err)
		return id
	}

	first := resolve("a-1", "Ransomware Behavior Detected", "Alice", "restored from backup")
	second := resolve("a-2", "Credential Dumping", "Charlie", "rotated passwords")
	_, _, err := s.Create(newAlert("a-3", "Open", models.SeverityCritical))
	require.NoError(t, err)

	counts := s.Counts()
	assert.Equal(t, 1, counts.New)
	assert.Equal(t, 2, counts.Resolved)
	assert.Equal(t, 3, counts.Total)

	all := s.ResolvedCases("")
	require.Len(t, all, 2)
	assert.Equal(t, second, all[0].ID, "newest resolution first")
	assert.Equal(t, first, all[1].ID)

	hits := s.ResolvedCases("ransomware")
	require.Len(t, hits, 1)
	assert.Equal(t, first, hits[0].ID)

	assert.Len(t, s.ResolvedCases("charlie"), 1)
	assert.Len(t, s.ResolvedCases("PASSWORDS"), 1)
	assert.Empty(t, s.ResolvedCases("nothing matches"))
}
