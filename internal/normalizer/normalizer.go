// Package normalizer projects a raw vendor notification envelope into a
// alarm.CanonicalAlarm, invoking the severity mapper, object parser, and
// correlation filter before a record is ever returned.
package normalizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pilot-net/nsp-alarm-ingester/internal/filter"
	"github.com/pilot-net/nsp-alarm-ingester/internal/objectparser"
	"github.com/pilot-net/nsp-alarm-ingester/internal/severity"
	"github.com/pilot-net/nsp-alarm-ingester/pkg/alarm"
)

const notificationKey = "ietf-restconf:notification"
const faultPrefix = "nsp-fault:"

// ContextProvider supplies the active-root snapshots C4 correlates
// against. Implemented by internal/store against the active_alarms table.
type ContextProvider interface {
	ActivePowerIssues(ctx context.Context) ([]alarm.RootRef, error)
	ActiveLOSRoots(ctx context.Context) ([]alarm.RootRef, error)
}

// Normalizer holds the configured local timezone used to render
// first_detected/last_detected as local ISO-8601 strings.
type Normalizer struct {
	location *time.Location
}

// New builds a Normalizer. locationName follows tz database naming
// (e.g. "Asia/Dhaka", the original deployment's configured zone).
func New(locationName string) (*Normalizer, error) {
	loc, err := time.LoadLocation(locationName)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", locationName, err)
	}
	return &Normalizer{location: loc}, nil
}

// Normalize locates the nsp-fault notification body inside envelope,
// projects it into a CanonicalAlarm, computes severity and object
// details, and runs the result through the correlation filter. It
// returns (nil, nil) whenever no record should be emitted — either
// because the envelope has no fault body, or the filter drops it.
func (n *Normalizer) Normalize(ctx context.Context, envelope map[string]any, ctxProvider ContextProvider) (*alarm.CanonicalAlarm, error) {
	body, notification, eventType, ok := extractFaultBody(envelope)
	if !ok {
		return nil, nil
	}

	a := alarm.CanonicalAlarm{
		EventType:          alarm.ParseEventType(eventType),
		EventTime:          stringField(notification, "eventTime"),
		AlarmID:            stringField(body, "objectId"),
		AlarmName:          stringField(body, "alarmName"),
		SpecificProblem:    stringField(body, "specificProblem"),
		ProbableCause:      stringField(body, "probableCause"),
		NEName:             stringField(body, "neName"),
		NEID:               stringField(body, "neId"),
		Source:             stringField(body, "sourceType"),
		AffectedObject:     stringField(body, "affectedObject"),
		AffectedObjectName: stringField(body, "affectedObjectName"),
		ObjectType:         stringField(body, "affectedObjectType"),
		Acknowledged:       boolField(body, "acknowledged", false),
		ImplicitlyCleared:  boolField(body, "implicitlyCleared", false),
	}

	if raw, ok := body["severity"]; ok {
		if encoded, err := json.Marshal(raw); err == nil {
			a.SeverityRaw = encoded
		}
	}
	a.Severity = severity.Map(body["severity"], a.SpecificProblem)

	if sa, present := body["serviceAffecting"]; present {
		if b, ok := sa.(bool); ok {
			a.ServiceAffecting = &b
		}
	}

	if details := objectparser.Parse(a.AffectedObject); len(details) > 0 {
		a.ObjectDetails = alarm.ObjectDetails{
			Shelf: details["shelf"],
			Slot:  details["slot"],
			Port:  details["port"],
		}
	}

	a.FirstDetected = n.formatTimestamp(body["firstTimeDetected"])
	a.LastDetected = n.formatTimestamp(body["lastTimeDetected"])

	powerIssues, err := ctxProvider.ActivePowerIssues(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading active power issues: %w", err)
	}
	losRoots, err := ctxProvider.ActiveLOSRoots(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading active los roots: %w", err)
	}

	decision := filter.Decide(a, filter.CorrelationContext{
		ActivePowerIssues: powerIssues,
		ActiveLOSRoots:    losRoots,
	})
	if decision == filter.Drop {
		return nil, nil
	}

	return &a, nil
}

// extractFaultBody locates data.ietf-restconf:notification, then the
// single key prefixed nsp-fault:, returning its stripped event type name,
// the fault body, and the notification map itself — eventTime lives on
// the notification, a sibling of the fault body, not inside it.
func extractFaultBody(envelope map[string]any) (body map[string]any, notification map[string]any, eventType string, ok bool) {
	data, ok := envelope["data"].(map[string]any)
	if !ok {
		return nil, nil, "", false
	}
	notification, ok = data[notificationKey].(map[string]any)
	if !ok {
		return nil, nil, "", false
	}

	for key, value := range notification {
		if !strings.HasPrefix(key, faultPrefix) {
			continue
		}
		body, ok = value.(map[string]any)
		if !ok {
			return nil, nil, "", false
		}
		return body, notification, strings.TrimPrefix(key, faultPrefix), true
	}
	return nil, nil, "", false
}

func stringField(body map[string]any, key string) string {
	if v, ok := body[key].(string); ok {
		return v
	}
	return ""
}

func boolField(body map[string]any, key string, def bool) bool {
	if v, ok := body[key].(bool); ok {
		return v
	}
	return def
}

// formatTimestamp converts firstTimeDetected/lastTimeDetected — a number,
// numeric string, or {value|milliseconds|seconds} map — to an ISO-8601
// string in the normalizer's configured local zone. Any parse failure
// yields "" rather than an error, never a fatal one.
func (n *Normalizer) formatTimestamp(raw any) string {
	ms, ok := toEpochMillis(raw)
	if !ok {
		return ""
	}
	t := time.UnixMilli(ms).In(n.location)
	return t.Format(time.RFC3339)
}

func toEpochMillis(raw any) (int64, bool) {
	switch v := raw.(type) {
	case nil:
		return 0, false
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	case map[string]any:
		if value, present := v["value"]; present {
			return toEpochMillis(value)
		}
		if ms, present := v["milliseconds"]; present {
			return toEpochMillis(ms)
		}
		if secs, present := v["seconds"]; present {
			sec, ok := toEpochMillis(secs)
			if !ok {
				return 0, false
			}
			return sec * 1000, true
		}
		return 0, false
	default:
		return 0, false
	}
}
