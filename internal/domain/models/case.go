package models

import "time"

// CaseStatus is the lifecycle state of a case
type CaseStatus string

const (
	CaseStatusNew        CaseStatus = "New"
	CaseStatusInProgress CaseStatus = "In Progress"
	CaseStatusResolved   CaseStatus = "Resolved"
)

// Case groups alerts under investigation
type Case struct {
	ID              string     `json:"id"`
	Status          CaseStatus `json:"status"`
	Alerts          []AlertRef `json:"alerts"`
	Assignee        string     `json:"assignee,omitempty"`
	ResolutionNotes string     `json:"resolution_notes,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Title returns the title of the first alert on the case
func (c *Case) Title() string {
	if len(c.Alerts) == 0 {
		return ""
	}
	return c.Alerts[0].Title
}

// Clone returns a deep copy of c
func (c *Case) Clone() *Case {
	out := *c
	out.Alerts = append([]AlertRef(nil), c.Alerts...)
	if c.ResolvedAt != nil {
		t := *c.ResolvedAt
		out.ResolvedAt = &t
	}
	return &out
}

// CaseCounts counts cases per status
type CaseCounts struct {
	New        int `json:"new"`
	InProgress int `json:"in_progress"`
	Resolved   int `json:"resolved"`
	Total      int `json:"total"`
}

// Analysts available for assignment in the simulated console
var Analysts = []string{"Alice", "Bob", "Charlie", "Diana"}
