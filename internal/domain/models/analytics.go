package models

import (
	"time"
)

// CategoryCount is one row of a ranked distribution
type CategoryCount struct {
	Category   string  `json:"category"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// ThreatHeatmap ranks where aggregated threats are landing
type ThreatHeatmap struct {
	GeneratedAt time.Time       `json:"generated_at"`
	TotalEvents int64           `json:"total_events"`
	Industries  []CategoryCount `json:"industries"`
	Regions     []CategoryCount `json:"regions"`
	Countries   []CategoryCount `json:"countries"`
	Continents  []CategoryCount `json:"continents"`
}

// AgentStatus is the health of a device in the fleet view
type AgentStatus string

const (
	AgentStatusHealthy  AgentStatus = "Healthy"
	AgentStatusAlerting AgentStatus = "Alerting"
)

// FleetAgent is a device seen in at least one ingested alert
type FleetAgent struct {
	Hostname     string      `json:"hostname"`
	OS           string      `json:"os,omitempty"`
	Type         string      `json:"type,omitempty"`
	IPAddress    string      `json:"ip_address,omitempty"`
	AgentVersion string      `json:"agent_version,omitempty"`
	Status       AgentStatus `json:"status"`
	AlertCount   int         `json:"alert_count"`
	LastSeen     time.Time   `json:"last_seen"`
}

// FleetQuery filters the fleet view
type FleetQuery struct {
	OS     string
	Search string
}

// WeakPasswordAlert is an aggregated event that flagged a weak password
type WeakPasswordAlert struct {
	AlertID   string    `json:"alert_id"`
	Title     string    `json:"title"`
	UserHash  string    `json:"user_hash,omitempty"`
	Hostname  string    `json:"hostname,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DashboardSnapshot is the read model behind the console overview
type DashboardSnapshot struct {
	GeneratedAt     time.Time               `json:"generated_at"`
	Ticks           uint64                  `json:"ticks"`
	Knowledge       KnowledgeLevels         `json:"knowledge"`
	Cases           CaseCounts              `json:"cases"`
	AlertCount      int                     `json:"alert_count"`
	EventCount      int                     `json:"event_count"`
	EventsByType    map[EventType]int       `json:"events_by_type"`
	ActivePlaybooks int                     `json:"active_playbooks"`
	RecentLedger    []KnowledgeContribution `json:"recent_ledger,omitempty"`
}
