package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openprotect-lab/internal/domain/models"
)

const seedYAML = `
playbooks:
  - name: Critical Linux Response
    description: Contain critical threats on Linux servers
    author: soc-lead
    trigger:
      logical_operator: AND
      conditions:
        - field: severity
          operator: is
          value: Critical
        - field: device.os
          operator: is
          value: Linux
    actions:
      - type: CREATE_CASE
      - type: ASSIGN_CASE
        params:
          assignee: Alice
  - name: Broken
    trigger:
      conditions: []
    actions:
      - type: CREATE_CASE
  - name: Disabled Email
    is_active: false
    trigger:
      logical_operator: OR
      conditions:
        - field: mitre_mapping.id
          operator: is
          value: T1003
    actions:
      - type: SEND_EMAIL
        params:
          recipient: soc@example.com
`

func TestParsePlaybooks(t *testing.T) {
	drafts, err := ParsePlaybooks([]byte(seedYAML))
	require.NoError(t, err)
	require.Len(t, drafts, 3)

	d := drafts[0]
	assert.Equal(t, "Critical Linux Response", d.Name)
	assert.Equal(t, models.LogicalAnd, d.Trigger.LogicalOperator)
	require.Len(t, d.Trigger.Conditions, 2)
	assert.Equal(t, models.FieldDeviceOS, d.Trigger.Conditions[1].Field)
	assert.Equal(t, "Alice", d.Actions[1].Params.Assignee)

	require.NotNil(t, drafts[2].IsActive)
	assert.False(t, *drafts[2].IsActive)
}

func TestParsePlaybooks_Invalid(t *testing.T) {
	_, err := ParsePlaybooks([]byte("playbooks: [unterminated"))
	assert.Error(t, err)
}

func TestLoadPlaybooks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "playbooks.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))

	e := NewPlaybookEngine(steppingClock(), testLogger())
	n, err := LoadPlaybooks(path, e, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, n, "zero-condition playbook is skipped")

	list := e.List()
	require.Len(t, list, 2)
	assert.True(t, list[0].IsActive)
	assert.False(t, list[1].IsActive)
	assert.Equal(t, "soc-lead", list[0].Versions[0].Author)
	assert.Equal(t, "seed", list[1].Versions[0].Author)
}

func TestLoadPlaybooks_MissingFile(t *testing.T) {
	e := NewPlaybookEngine(steppingClock(), testLogger())
	_, err := LoadPlaybooks(filepath.Join(t.TempDir(), "nope.yaml"), e, testLogger())
	assert.Error(t, err)
}
