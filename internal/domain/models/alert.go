package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Severity is the ordered alert severity (Info < Medium < High < Critical)
type Severity string

const (
	SeverityInfo     Severity = "Info"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

// Rank returns the ordinal of the severity. Unknown values rank below Info.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// IsValid reports whether s is one of the known severities
func (s Severity) IsValid() bool {
	return s.Rank() > 0
}

// AtLeast reports whether s is at or above other
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// ParseSeverity parses a severity case-insensitively
func ParseSeverity(v string) (Severity, error) {
	for _, s := range []Severity{SeverityInfo, SeverityMedium, SeverityHigh, SeverityCritical} {
		if strings.EqualFold(string(s), strings.TrimSpace(v)) {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown severity %q", v)
}

// MitreMapping links an alert to a MITRE ATT&CK technique
type MitreMapping struct {
	Tactic    string `json:"tactic" yaml:"tactic"`
	Technique string `json:"technique" yaml:"technique"`
	ID        string `json:"id" yaml:"id"`
}

// Device describes the endpoint an alert was raised on
type Device struct {
	Type           string `json:"type,omitempty"`
	OS             string `json:"os,omitempty"`
	Hostname       string `json:"hostname,omitempty"`
	IPAddress      string `json:"ip_address,omitempty"`
	AgentVersion   string `json:"agent_version,omitempty"`
	FirewallStatus string `json:"firewall_status,omitempty"`
	DiskEncryption string `json:"disk_encryption,omitempty"`
	Status         string `json:"status,omitempty"`
	LWServerID     string `json:"lw_server_id,omitempty"`
}

// AlertContext is the organisational and geographic context of an alert
type AlertContext struct {
	Industry  string `json:"industry"`
	Country   string `json:"country,omitempty"`
	Continent string `json:"continent,omitempty"`
	Region    string `json:"region"`
}

// Complete reports whether both correlation key parts are set
func (c AlertContext) Complete() bool {
	return strings.TrimSpace(c.Industry) != "" && strings.TrimSpace(c.Region) != ""
}

// Key returns the correlation key "industry|region"
func (c AlertContext) Key() string {
	return c.Industry + "|" + c.Region
}

// RawData is the free-form payload of a raw alert. Device and Context are
// decoded into typed fields; everything else lives in Fields. On the wire it is
// a single JSON object carrying "device" and "context" keys.
type RawData struct {
	Device  *Device        `json:"-"`
	Context *AlertContext  `json:"-"`
	Fields  map[string]any `json:"-"`
}

const (
	rawKeyDevice  = "device"
	rawKeyContext = "context"
)

// MarshalJSON flattens the typed fields back into one object
func (r RawData) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+2)
	for k, v := range r.Fields {
		out[k] = v
	}
	if r.Device != nil {
		out[rawKeyDevice] = r.Device
	}
	if r.Context != nil {
		out[rawKeyContext] = r.Context
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a raw_data object. A null or malformed device or
// context is left nil rather than failing the whole alert.
func (r *RawData) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("raw_data must be an object: %w", err)
	}

	*r = RawData{Fields: make(map[string]any, len(obj))}
	for k, v := range obj {
		isNull := bytes.Equal(bytes.TrimSpace(v), []byte("null"))
		switch k {
		case rawKeyDevice:
			if isNull {
				continue
			}
			var d Device
			if err := json.Unmarshal(v, &d); err == nil {
				r.Device = &d
			}
		case rawKeyContext:
			if isNull {
				continue
			}
			var c AlertContext
			if err := json.Unmarshal(v, &c); err == nil {
				r.Context = &c
			}
		default:
			var val any
			if err := json.Unmarshal(v, &val); err != nil {
				return fmt.Errorf("raw_data field %q: %w", k, err)
			}
			r.Fields[k] = val
		}
	}
	return nil
}

// RawAlert is an alert as produced by the external event source
type RawAlert struct {
	ID           string        `json:"id"`
	Timestamp    time.Time     `json:"timestamp"`
	Severity     Severity      `json:"severity"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	RawData      RawData       `json:"raw_data"`
	MitreMapping *MitreMapping `json:"mitre_mapping,omitempty"`
}

// Hostname returns the device hostname or "" when the device is missing
func (a *RawAlert) Hostname() string {
	if a.RawData.Device == nil {
		return ""
	}
	return a.RawData.Device.Hostname
}

// OS returns the device OS or "" when the device is missing
func (a *RawAlert) OS() string {
	if a.RawData.Device == nil {
		return ""
	}
	return a.RawData.Device.OS
}

// Validate checks the fields every alert must carry
func (a *RawAlert) Validate() error {
	if a.ID == "" {
		return NewValidationError("ingest alert", "alert id is required")
	}
	if !a.Severity.IsValid() {
		return NewValidationError("ingest alert", fmt.Sprintf("unknown severity %q", a.Severity))
	}
	if a.Title == "" {
		return NewValidationError("ingest alert", "alert title is required")
	}
	return nil
}

// CheckShape reports device/context fields that are missing. A context
// without industry or region counts as missing. The alert is still
// processed; only the steps that need them are skipped.
func (a *RawAlert) CheckShape() error {
	var missing []string
	if a.RawData.Device == nil {
		missing = append(missing, rawKeyDevice)
	}
	if a.RawData.Context == nil || !a.RawData.Context.Complete() {
		missing = append(missing, rawKeyContext)
	}
	if len(missing) == 0 {
		return nil
	}
	return &DataShapeError{AlertID: a.ID, Missing: missing}
}

// AlertRef is the summary of an alert kept on a case
type AlertRef struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Severity Severity `json:"severity"`
	Hostname string   `json:"hostname,omitempty"`
}

// Ref builds the AlertRef for a
func (a *RawAlert) Ref() AlertRef {
	return AlertRef{
		ID:       a.ID,
		Title:    a.Title,
		Severity: a.Severity,
		Hostname: a.Hostname(),
	}
}
