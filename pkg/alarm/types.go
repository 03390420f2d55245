// Package alarm defines the canonical alarm record and the closed enums
// that flow through the ingestion pipeline.
package alarm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Severity is the closed set of alarm severities a CanonicalAlarm may carry.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityMajor    Severity = "MAJOR"
	SeverityMinor    Severity = "MINOR"
	SeverityWarning  Severity = "WARNING"
	SeverityInfo     Severity = "INFO"
	SeverityClear    Severity = "CLEAR"
	SeverityUnknown  Severity = "UNKNOWN"
)

// MarshalJSON implements json.Marshaler so a Severity round-trips through
// the JSONB alarm payload as a plain string.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements json.Unmarshaler, mapping any unrecognized
// string to SeverityUnknown rather than failing the decode.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding severity: %w", err)
	}
	switch Severity(strings.ToUpper(raw)) {
	case SeverityCritical, SeverityMajor, SeverityMinor, SeverityWarning, SeverityInfo, SeverityClear:
		*s = Severity(strings.ToUpper(raw))
	default:
		*s = SeverityUnknown
	}
	return nil
}

// EventType is the closed set of notification kinds the upstream bus emits.
type EventType string

const (
	EventAlarmCreate EventType = "alarm-create"
	EventAlarmChange EventType = "alarm-change"
	EventAlarmDelete EventType = "alarm-delete"
	EventUnknown     EventType = "unknown"
)

// ParseEventType preserves unrecognized event type strings verbatim for
// logging purposes instead of collapsing them to EventUnknown.
func ParseEventType(raw string) EventType {
	switch EventType(raw) {
	case EventAlarmCreate, EventAlarmChange, EventAlarmDelete:
		return EventType(raw)
	case "":
		return EventUnknown
	default:
		return EventType(raw)
	}
}

// ObjectDetails holds the shelf/slot/port identifiers parsed from an
// affected-object string. Any field may be empty.
type ObjectDetails struct {
	Shelf string `json:"shelf,omitempty"`
	Slot  string `json:"slot,omitempty"`
	Port  string `json:"port,omitempty"`
}

// CanonicalAlarm is the stable schema every vendor notification is
// projected into before correlation and storage.
type CanonicalAlarm struct {
	EventType EventType `json:"event_type"`
	EventTime string    `json:"event_time,omitempty"`

	AlarmID string `json:"alarm_id"`

	AlarmName       string `json:"alarm_name,omitempty"`
	SpecificProblem string `json:"specific_problem,omitempty"`
	ProbableCause   string `json:"probable_cause,omitempty"`

	NEName string `json:"ne_name,omitempty"`
	NEID   string `json:"ne_id,omitempty"`
	Source string `json:"source,omitempty"`

	SeverityRaw json.RawMessage `json:"severity_raw,omitempty"`
	Severity    Severity        `json:"severity"`

	AffectedObject     string        `json:"affected_object,omitempty"`
	AffectedObjectName string        `json:"affected_object_name,omitempty"`
	ObjectType         string        `json:"object_type,omitempty"`
	ObjectDetails      ObjectDetails `json:"object_details"`

	FirstDetected string `json:"first_detected,omitempty"`
	LastDetected  string `json:"last_detected,omitempty"`

	Acknowledged      bool  `json:"acknowledged"`
	ServiceAffecting  *bool `json:"service_affecting,omitempty"`
	ImplicitlyCleared bool  `json:"implicitly_cleared"`
}

// RootRef is the minimal view of a stored active alarm the filter needs to
// evaluate correlation against a root cause.
type RootRef struct {
	AlarmName          string
	Severity           Severity
	AffectedObjectName string
	FirstDetected      string
	NEName             string
}
