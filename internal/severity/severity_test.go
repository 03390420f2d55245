package severity

import (
	"testing"

	"github.com/pilot-net/nsp-alarm-ingester/pkg/alarm"
)

func TestMap(t *testing.T) {
	cases := []struct {
		name            string
		raw             any
		specificProblem string
		want            alarm.Severity
	}{
		{"plain string", "major", "", alarm.SeverityMajor},
		{"case and whitespace insensitive", "  Critical ", "", alarm.SeverityCritical},
		{"informational alias", "informational", "", alarm.SeverityInfo},
		{"indeterminate alias", "indeterminate", "", alarm.SeverityInfo},
		{"unknown string", "bogus", "", alarm.SeverityUnknown},
		{"nil raw", nil, "", alarm.SeverityUnknown},
		{"map with value key", map[string]any{"value": "minor"}, "", alarm.SeverityMinor},
		{"map with name key", map[string]any{"name": "warning"}, "", alarm.SeverityWarning},
		{"map with severity key", map[string]any{"severity": "clear"}, "", alarm.SeverityClear},
		{"map new-value cleared wins over severity", map[string]any{"new-value": "Cleared", "severity": "major"}, "", alarm.SeverityClear},
		{"map with no recognized key", map[string]any{"other": "major"}, "", alarm.SeverityUnknown},
		{"SEC_ prefix demotes to info regardless of raw", "critical", "SEC_INTRUSION", alarm.SeverityInfo},
		{"SEC_ prefix checked before map unwrap", map[string]any{"value": "critical"}, "SEC_AUTH_FAIL", alarm.SeverityInfo},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Map(tc.raw, tc.specificProblem)
			if got != tc.want {
				t.Errorf("Map(%#v, %q) = %v, want %v", tc.raw, tc.specificProblem, got, tc.want)
			}
		})
	}
}
