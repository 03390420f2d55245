// Package severity maps the heterogeneous vendor severity shapes emitted on
// the notification bus to the closed alarm.Severity enum.
package severity

import (
	"strings"

	"github.com/pilot-net/nsp-alarm-ingester/pkg/alarm"
)

var lookup = map[string]alarm.Severity{
	"info":          alarm.SeverityInfo,
	"informational": alarm.SeverityInfo,
	"indeterminate": alarm.SeverityInfo,
	"condition":     alarm.SeverityInfo,
	"clear":         alarm.SeverityClear,
	"warning":       alarm.SeverityWarning,
	"minor":         alarm.SeverityMinor,
	"major":         alarm.SeverityMajor,
	"critical":      alarm.SeverityCritical,
}

// Map implements the C1 severity mapping rules. raw may be nil, a string,
// or a map[string]any with keys among {value, name, severity, new-value}.
// specificProblem is checked for the SEC_ prefix that demotes security
// events to INFO ahead of the normal table lookup.
func Map(raw any, specificProblem string) alarm.Severity {
	if m, ok := raw.(map[string]any); ok {
		if newValue, ok := m["new-value"].(string); ok && strings.EqualFold(newValue, "cleared") {
			return alarm.SeverityClear
		}
	}

	if strings.HasPrefix(specificProblem, "SEC_") {
		return alarm.SeverityInfo
	}

	working := raw
	if m, ok := raw.(map[string]any); ok {
		working = nil
		for _, key := range []string{"value", "name", "severity"} {
			if v, present := m[key]; present {
				working = v
				break
			}
		}
	}

	str, ok := working.(string)
	if !ok {
		return alarm.SeverityUnknown
	}

	if sev, ok := lookup[strings.ToLower(strings.TrimSpace(str))]; ok {
		return sev
	}
	return alarm.SeverityUnknown
}
