package services

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"openprotect-lab/internal/domain/models"
	"openprotect-lab/pkg/logger"
)

// CaseStore owns every case and the alert to case index
type CaseStore struct {
	mu      sync.RWMutex
	cases   map[string]*models.Case
	order   []string
	byAlert map[string]string
	clock   Clock
	logger  *logger.Logger
}

// NewCaseStore creates an empty case store
func NewCaseStore(clock Clock, log *logger.Logger) *CaseStore {
	return &CaseStore{
		cases:   make(map[string]*models.Case),
		byAlert: make(map[string]string),
		clock:   clock,
		logger:  log.WithComponent("case-store"),
	}
}

func newCaseID() string {
	return "CASE-" + strings.ToUpper(uuid.NewString()[:8])
}

// Create opens a case for a High or Critical alert. It is idempotent per
// alert: a second call returns the existing case id and created=false.
func (s *CaseStore) Create(alert *models.RawAlert) (string, bool, error) {
	if alert == nil || alert.ID == "" {
		return "", false, models.NewValidationError("create case", "alert is required")
	}
	if !alert.Severity.AtLeast(models.SeverityHigh) {
		return "", false, models.NewValidationError("create case",
			"only High or Critical alerts can open a case, got "+string(alert.Severity))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byAlert[alert.ID]; ok {
		return id, false, nil
	}

	now := s.clock.now()
	c := &models.Case{
		ID:        newCaseID(),
		Status:    models.CaseStatusNew,
		Alerts:    []models.AlertRef{alert.Ref()},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.cases[c.ID] = c
	s.order = append(s.order, c.ID)
	s.byAlert[alert.ID] = c.ID

	s.logger.Info().
		Str("case_id", c.ID).
		Str("alert_id", alert.ID).
		Str("severity", string(alert.Severity)).
		Msg("case created")

	return c.ID, true, nil
}

// Assign sets the assignee. A New case moves to In Progress; an In Progress
// case may be reassigned; a Resolved case rejects the change.
func (s *CaseStore) Assign(caseID, assignee string) (*models.Case, error) {
	assignee = strings.TrimSpace(assignee)
	if assignee == "" {
		return nil, models.NewValidationError("assign case", "assignee is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cases[caseID]
	if !ok {
		return nil, &models.NotFoundError{Kind: "case", ID: caseID}
	}
	if c.Status == models.CaseStatusResolved {
		return nil, models.NewTransitionError("assign case", "case "+caseID+" is resolved")
	}

	c.Assignee = assignee
	c.Status = models.CaseStatusInProgress
	c.UpdatedAt = s.clock.now()

	s.logger.Info().Str("case_id", caseID).Str("assignee", assignee).Msg("case assigned")
	return c.Clone(), nil
}

// Resolve closes an In Progress case with mandatory notes
func (s *CaseStore) Resolve(caseID, notes string) (*models.Case, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, models.NewValidationError("resolve case", "resolution notes are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cases[caseID]
	if !ok {
		return nil, &models.NotFoundError{Kind: "case", ID: caseID}
	}
	switch c.Status {
	case models.CaseStatusResolved:
		return nil, models.NewTransitionError("resolve case", "case "+caseID+" is already resolved")
	case models.CaseStatusNew:
		return nil, models.NewTransitionError("resolve case", "case "+caseID+" must be assigned before it is resolved")
	}

	now := s.clock.now()
	c.Status = models.CaseStatusResolved
	c.ResolutionNotes = notes
	c.ResolvedAt = &now
	c.UpdatedAt = now

	s.logger.Info().Str("case_id", caseID).Str("assignee", c.Assignee).Msg("case resolved")
	return c.Clone(), nil
}

// Get returns a copy of the case
func (s *CaseStore) Get(caseID string) (*models.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cases[caseID]
	if !ok {
		return nil, &models.NotFoundError{Kind: "case", ID: caseID}
	}
	return c.Clone(), nil
}

// CaseForAlert returns the id of the case opened for an alert
func (s *CaseStore) CaseForAlert(alertID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byAlert[alertID]
	return id, ok
}

// List returns all cases, newest first, optionally filtered by status
func (s *CaseStore) List(status models.CaseStatus) []*models.Case {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Case, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		c := s.cases[s.order[i]]
		if status != "" && c.Status != status {
			continue
		}
		out = append(out, c.Clone())
	}
	return out
}

// Counts returns the number of cases in each status
func (s *CaseStore) Counts() models.CaseCounts {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var counts models.CaseCounts
	for _, c := range s.cases {
		switch c.Status {
		case models.CaseStatusNew:
			counts.New++
		case models.CaseStatusInProgress:
			counts.InProgress++
		case models.CaseStatusResolved:
			counts.Resolved++
		}
	}
	counts.Total = len(s.cases)
	return counts
}

// ResolvedCases returns resolved cases, most recently resolved first,
// matching query against id, assignee, alert title and notes
func (s *CaseStore) ResolvedCases(query string) []*models.Case {
	q := strings.ToLower(strings.TrimSpace(query))

	resolved := s.List(models.CaseStatusResolved)
	out := resolved[:0]
	for _, c := range resolved {
		if q == "" || caseMatches(c, q) {
			out = append(out, c)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ResolvedAt.After(*out[j].ResolvedAt)
	})
	return out
}

func caseMatches(c *models.Case, q string) bool {
	fields := []string{c.ID, c.Assignee, c.Title(), c.ResolutionNotes}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}
