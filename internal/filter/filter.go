// Package filter implements the correlation-aware drop/keep decision (C4)
// for a normalized alarm, given snapshots of currently active root causes.
package filter

import (
	"strings"
	"time"

	"github.com/pilot-net/nsp-alarm-ingester/pkg/alarm"
)

// Decision is the outcome of evaluating a CanonicalAlarm against context.
type Decision int

const (
	Keep Decision = iota
	Drop
)

// CorrelationContext carries the two root-cause snapshots the filter
// correlates children against. Passed explicitly so the filter stays a
// pure function of its arguments, never reading store state itself.
type CorrelationContext struct {
	ActivePowerIssues []alarm.RootRef
	ActiveLOSRoots    []alarm.RootRef
}

const (
	powerChildWindow = 10 * time.Minute
	losChildWindow   = 30 * time.Second
)

var staticDropAlarmNames = map[string]bool{
	"SR_RESTORED":       true,
	"SR_MANUAL_SWITCH":  true,
	"BASELINE":          true,
	"Adjacency Not Found": true,
}

var staticDropProbableCauses = map[string]bool{
	"OPR":                     true,
	"PWRSUSP":                 true,
	"MAINT2-ALLOWED-REMOTE": true,
}

var powerChildAlarmNames = map[string]bool{
	"Power Adjustment Required": true,
	"Power Adjustment Failure":  true,
}

var losChildAlarmNames = map[string]bool{
	"Transport Failure":                    true,
	"OPS Protection Loss of Redundancy": true,
}

// Decide implements the correlation decision table, first match wins.
func Decide(a alarm.CanonicalAlarm, ctx CorrelationContext) Decision {
	if a.Severity == alarm.SeverityClear {
		return Keep
	}

	if a.AlarmName == "Power Issue" && a.ObjectType == "PHYSICALCONNECTION" {
		return Keep
	}

	if powerChildAlarmNames[a.AlarmName] && a.ObjectType == "TP" {
		if correlatesWithRoot(a, ctx.ActivePowerIssues, powerChildWindow, true) {
			return Drop
		}
	}

	if losChildAlarmNames[a.AlarmName] {
		for _, root := range ctx.ActiveLOSRoots {
			if root.AlarmName != "Loss of signal - OCH" || root.Severity != alarm.SeverityCritical {
				continue
			}
			if !withinWindow(a.FirstDetected, root.FirstDetected, losChildWindow) {
				continue
			}
			if opsSpansMatch(a.AffectedObjectName, root.AffectedObjectName) || a.NEName == root.NEName {
				return Drop
			}
		}
	}

	if staticDrop(a) {
		return Drop
	}

	return Keep
}

func correlatesWithRoot(a alarm.CanonicalAlarm, roots []alarm.RootRef, window time.Duration, requireSpan bool) bool {
	for _, root := range roots {
		if !withinWindow(a.FirstDetected, root.FirstDetected, window) {
			continue
		}
		if requireSpan && !opsSpansMatch(a.AffectedObjectName, root.AffectedObjectName) {
			continue
		}
		return true
	}
	return false
}

func staticDrop(a alarm.CanonicalAlarm) bool {
	switch {
	case strings.HasPrefix(a.ObjectType, "NE") && strings.Contains(a.ObjectType, "CLI") &&
		(strings.HasSuffix(a.ObjectType, "Login") || strings.HasSuffix(a.ObjectType, "Logout")):
		return true
	case strings.HasPrefix(a.ProbableCause, "NE") &&
		(strings.HasSuffix(a.ProbableCause, "Login") || strings.HasSuffix(a.ProbableCause, "Logout")):
		return true
	case strings.HasPrefix(a.ObjectType, "Indicates") && strings.Contains(a.ObjectType, "Threshold") && strings.HasSuffix(a.ObjectType, "detection"):
		return true
	case strings.HasPrefix(a.ObjectType, "Power") && strings.Contains(a.ObjectType, "management") && strings.HasSuffix(a.ObjectType, "suspended"):
		return true
	case staticDropAlarmNames[a.AlarmName]:
		return true
	case a.SpecificProblem == "SEC_NA":
		return true
	case staticDropProbableCauses[a.ProbableCause]:
		return true
	case strings.HasPrefix(a.ProbableCause, "T-") && (strings.HasSuffix(a.ProbableCause, "15-MIN") || strings.HasSuffix(a.ProbableCause, "1-DAY")):
		return true
	case strings.HasPrefix(a.AlarmName, "Quality Threshold Crossed") && (strings.HasSuffix(a.AlarmName, "15m") || strings.HasSuffix(a.AlarmName, "24h")):
		return true
	case a.Severity == alarm.SeverityWarning || a.Severity == alarm.SeverityInfo:
		return true
	}
	return false
}

// OPSSpan extracts the OPS-<shelf>-<slot> correlation token from a
// slash-delimited affected-object name. Splits on "/"; the first segment
// starting with "OPS-" contributes its first three dash-delimited tokens.
// Returns "" if no such segment exists.
func OPSSpan(affectedObjectName string) string {
	for _, segment := range strings.Split(affectedObjectName, "/") {
		if !strings.HasPrefix(segment, "OPS-") {
			continue
		}
		tokens := strings.Split(segment, "-")
		if len(tokens) < 3 {
			return segment
		}
		return strings.Join(tokens[:3], "-")
	}
	return ""
}

func opsSpansMatch(childName, rootName string) bool {
	childSpan := OPSSpan(childName)
	rootSpan := OPSSpan(rootName)
	if childSpan == "" || rootSpan == "" {
		return false
	}
	return childSpan == rootSpan
}

func withinWindow(childISO, rootISO string, window time.Duration) bool {
	childTime, ok := parseTime(childISO)
	if !ok {
		return false
	}
	rootTime, ok := parseTime(rootISO)
	if !ok {
		return false
	}
	diff := childTime.Sub(rootTime)
	if diff < 0 {
		diff = -diff
	}
	return diff <= window
}

// parseTime is tolerant of ISO-8601 strings with an optional trailing "Z".
func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000Z", "2006-01-02T15:04:05Z", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
