package models

import "time"

// VulnerabilityDetails is the structured part of an intel update
type VulnerabilityDetails struct {
	CVEID            string   `json:"cve_id"`
	CVSSScore        float64  `json:"cvss_score"`
	AffectedSoftware []string `json:"affected_software,omitempty"`
	AdvisoryLink     string   `json:"advisory_link,omitempty"`
}

// LearningUpdate is a threat-intelligence record absorbed by the server
type LearningUpdate struct {
	ID                   string                `json:"id,omitempty"`
	Timestamp            time.Time             `json:"timestamp"`
	Source               string                `json:"source"`
	Summary              string                `json:"summary"`
	VulnerabilityDetails *VulnerabilityDetails `json:"vulnerability_details,omitempty"`
	MitreMapping         *MitreMapping         `json:"mitre_mapping,omitempty"`
}

func (LearningUpdate) EventType() EventType { return EventLearningUpdate }

// HasDetails reports whether the update carries structured vulnerability data
func (u LearningUpdate) HasDetails() bool {
	return u.VulnerabilityDetails != nil && u.VulnerabilityDetails.CVEID != ""
}
