package filter

import (
	"testing"
	"time"

	"github.com/pilot-net/nsp-alarm-ingester/pkg/alarm"
)

func TestDecide_ClearAlwaysKept(t *testing.T) {
	a := alarm.CanonicalAlarm{Severity: alarm.SeverityClear, AlarmName: "Quality Threshold Crossed 15m"}
	if got := Decide(a, CorrelationContext{}); got != Keep {
		t.Errorf("Decide() = %v, want Keep for a CLEAR event regardless of other fields", got)
	}
}

func TestDecide_PowerIssueRootAlwaysKept(t *testing.T) {
	a := alarm.CanonicalAlarm{
		Severity:   alarm.SeverityCritical,
		AlarmName:  "Power Issue",
		ObjectType: "PHYSICALCONNECTION",
	}
	if got := Decide(a, CorrelationContext{}); got != Keep {
		t.Errorf("Decide() = %v, want Keep for a Power Issue root", got)
	}
}

func TestDecide_PowerChildDroppedWithinWindowAndSpan(t *testing.T) {
	root := alarm.RootRef{
		AlarmName:          "Power Issue",
		AffectedObjectName: "NE1/OPS-1-2-3/child",
		FirstDetected:      "2026-01-01T00:00:00Z",
	}
	a := alarm.CanonicalAlarm{
		Severity:           alarm.SeverityMajor,
		AlarmName:          "Power Adjustment Required",
		ObjectType:         "TP",
		AffectedObjectName: "NE1/OPS-1-2-3/other",
		FirstDetected:      "2026-01-01T00:05:00Z",
	}
	ctx := CorrelationContext{ActivePowerIssues: []alarm.RootRef{root}}
	if got := Decide(a, ctx); got != Drop {
		t.Errorf("Decide() = %v, want Drop for a power child within the 10-minute window and matching OPS span", got)
	}
}

func TestDecide_PowerChildKeptOutsideWindow(t *testing.T) {
	root := alarm.RootRef{
		AlarmName:          "Power Issue",
		AffectedObjectName: "NE1/OPS-1-2-3/child",
		FirstDetected:      "2026-01-01T00:00:00Z",
	}
	a := alarm.CanonicalAlarm{
		Severity:           alarm.SeverityMajor,
		AlarmName:          "Power Adjustment Required",
		ObjectType:         "TP",
		AffectedObjectName: "NE1/OPS-1-2-3/other",
		FirstDetected:      "2026-01-01T00:15:00Z",
	}
	ctx := CorrelationContext{ActivePowerIssues: []alarm.RootRef{root}}
	if got := Decide(a, ctx); got != Keep {
		t.Errorf("Decide() = %v, want Keep once the power child falls outside the 10-minute window", got)
	}
}

func TestDecide_LOSChildDroppedWithinWindowBySpanOrNEName(t *testing.T) {
	root := alarm.RootRef{
		AlarmName:          "Loss of signal - OCH",
		Severity:           alarm.SeverityCritical,
		AffectedObjectName: "NE1/OPS-9-9-9/child",
		NEName:             "NE1",
		FirstDetected:      "2026-01-01T00:00:00Z",
	}
	a := alarm.CanonicalAlarm{
		Severity:           alarm.SeverityMajor,
		AlarmName:          "Transport Failure",
		AffectedObjectName: "unrelated",
		NEName:             "NE1",
		FirstDetected:      "2026-01-01T00:00:20Z",
	}
	ctx := CorrelationContext{ActiveLOSRoots: []alarm.RootRef{root}}
	if got := Decide(a, ctx); got != Drop {
		t.Errorf("Decide() = %v, want Drop for a LOS child correlated by NE name within the 30s window", got)
	}
}

func TestDecide_LOSChildKeptIfRootNotCriticalLOSOCH(t *testing.T) {
	root := alarm.RootRef{
		AlarmName:          "Loss of signal - OCH",
		Severity:           alarm.SeverityMajor, // not CRITICAL
		AffectedObjectName: "NE1/OPS-9-9-9/child",
		NEName:             "NE1",
		FirstDetected:      "2026-01-01T00:00:00Z",
	}
	a := alarm.CanonicalAlarm{
		Severity:      alarm.SeverityMajor,
		AlarmName:     "Transport Failure",
		NEName:        "NE1",
		FirstDetected: "2026-01-01T00:00:10Z",
	}
	ctx := CorrelationContext{ActiveLOSRoots: []alarm.RootRef{root}}
	if got := Decide(a, ctx); got != Keep {
		t.Errorf("Decide() = %v, want Keep since the candidate root is not a CRITICAL Loss of signal - OCH", got)
	}
}

func TestDecide_StaticDropRules(t *testing.T) {
	cases := []struct {
		name  string
		alarm alarm.CanonicalAlarm
	}{
		{"NE CLI login", alarm.CanonicalAlarm{Severity: alarm.SeverityMajor, ObjectType: "NE-CLI-Login"}},
		{"probable cause NE logout", alarm.CanonicalAlarm{Severity: alarm.SeverityMajor, ProbableCause: "NE-Session-Logout"}},
		{"threshold detection object type", alarm.CanonicalAlarm{Severity: alarm.SeverityMajor, ObjectType: "Indicates Threshold detection"}},
		{"power management suspended object type", alarm.CanonicalAlarm{Severity: alarm.SeverityMajor, ObjectType: "Power management suspended"}},
		{"static alarm name", alarm.CanonicalAlarm{Severity: alarm.SeverityMajor, AlarmName: "SR_RESTORED"}},
		{"SEC_NA specific problem", alarm.CanonicalAlarm{Severity: alarm.SeverityMajor, SpecificProblem: "SEC_NA"}},
		{"static probable cause", alarm.CanonicalAlarm{Severity: alarm.SeverityMajor, ProbableCause: "OPR"}},
		{"15-min threshold probable cause", alarm.CanonicalAlarm{Severity: alarm.SeverityMajor, ProbableCause: "T-FOO-15-MIN"}},
		{"quality threshold crossed 15m", alarm.CanonicalAlarm{Severity: alarm.SeverityMajor, AlarmName: "Quality Threshold Crossed 15m"}},
		{"warning severity", alarm.CanonicalAlarm{Severity: alarm.SeverityWarning}},
		{"info severity", alarm.CanonicalAlarm{Severity: alarm.SeverityInfo}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Decide(tc.alarm, CorrelationContext{}); got != Drop {
				t.Errorf("Decide(%+v) = %v, want Drop", tc.alarm, got)
			}
		})
	}
}

func TestDecide_UnmatchedAlarmKept(t *testing.T) {
	a := alarm.CanonicalAlarm{
		Severity:  alarm.SeverityCritical,
		AlarmName: "Equipment Failure",
	}
	if got := Decide(a, CorrelationContext{}); got != Keep {
		t.Errorf("Decide() = %v, want Keep for an alarm matching no drop rule", got)
	}
}

func TestOPSSpan(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"three dash tokens", "NE1/OPS-1-2-3/child", "OPS-1-2"},
		{"fewer than three tokens returned verbatim", "NE1/OPS-1/child", "OPS-1"},
		{"no OPS segment", "NE1/OTHER-1-2-3/child", ""},
		{"extra dash tokens truncated to first three", "NE1/OPS-1-2-3-4/child", "OPS-1-2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := OPSSpan(tc.in); got != tc.want {
				t.Errorf("OPSSpan(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestWithinWindow(t *testing.T) {
	if !withinWindow("2026-01-01T00:00:00Z", "2026-01-01T00:00:29Z", 30*time.Second) {
		t.Error("expected times 29s apart to be within a 30s window")
	}
	if withinWindow("2026-01-01T00:00:00Z", "2026-01-01T00:00:31Z", 30*time.Second) {
		t.Error("expected times 31s apart to fall outside a 30s window")
	}
	if withinWindow("", "2026-01-01T00:00:00Z", time.Minute) {
		t.Error("expected an unparseable timestamp to never be within window")
	}
}
