package normalizer

import (
	"context"
	"testing"

	"github.com/pilot-net/nsp-alarm-ingester/pkg/alarm"
)

type fakeContextProvider struct {
	powerIssues []alarm.RootRef
	losRoots    []alarm.RootRef
}

func (f fakeContextProvider) ActivePowerIssues(ctx context.Context) ([]alarm.RootRef, error) {
	return f.powerIssues, nil
}

func (f fakeContextProvider) ActiveLOSRoots(ctx context.Context) ([]alarm.RootRef, error) {
	return f.losRoots, nil
}

func envelope(faultType, eventTime string, body map[string]any) map[string]any {
	return map[string]any{
		"data": map[string]any{
			notificationKey: map[string]any{
				"eventTime":              eventTime,
				faultPrefix + faultType: body,
			},
		},
	}
}

func TestNormalize_ProjectsFields(t *testing.T) {
	n, err := New("UTC")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	env := envelope("alarm-create", "2025-01-01T00:00:00Z", map[string]any{
		"objectId":           "a-1",
		"alarmName":          "Equipment Failure",
		"specificProblem":    "EQPT",
		"probableCause":      "HW",
		"neName":             "NE1",
		"neId":               "1",
		"sourceType":         "nsp",
		"affectedObject":     "shelf1:slot2:port3",
		"affectedObjectName": "NE1/path",
		"affectedObjectType": "EQUIPMENT",
		"severity":           "critical",
		"firstTimeDetected":  float64(1735689600000),
		"lastTimeDetected":   float64(1735689600000),
		"implicitlyCleared":  true,
	})

	got, err := n.Normalize(context.Background(), env, fakeContextProvider{})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got == nil {
		t.Fatal("Normalize returned nil, want a record")
	}

	if got.EventType != alarm.EventAlarmCreate {
		t.Errorf("EventType = %v, want alarm-create", got.EventType)
	}
	if got.EventTime != "2025-01-01T00:00:00Z" {
		t.Errorf("EventTime = %q, want the notification-level eventTime", got.EventTime)
	}
	if got.AlarmID != "a-1" {
		t.Errorf("AlarmID = %q, want a-1", got.AlarmID)
	}
	if got.Source != "nsp" {
		t.Errorf("Source = %q, want nsp", got.Source)
	}
	if got.ObjectType != "EQUIPMENT" {
		t.Errorf("ObjectType = %q, want EQUIPMENT", got.ObjectType)
	}
	if !got.ImplicitlyCleared {
		t.Error("ImplicitlyCleared should be true")
	}
	if got.Severity != alarm.SeverityCritical {
		t.Errorf("Severity = %v, want CRITICAL", got.Severity)
	}
	if got.ObjectDetails != (alarm.ObjectDetails{Shelf: "shelf1", Slot: "slot2", Port: "port3"}) {
		t.Errorf("ObjectDetails = %+v, want shelf1/slot2/port3", got.ObjectDetails)
	}
	if got.FirstDetected == "" {
		t.Error("FirstDetected should be populated from a numeric epoch-millis timestamp")
	}
}

func TestNormalize_NoFaultBodyYieldsNilNil(t *testing.T) {
	n, err := New("UTC")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := n.Normalize(context.Background(), map[string]any{"data": map[string]any{}}, fakeContextProvider{})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got != nil {
		t.Errorf("Normalize() = %+v, want nil for an envelope with no fault body", got)
	}
}

func TestNormalize_FilterDropSuppressesRecord(t *testing.T) {
	n, err := New("UTC")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	env := envelope("alarm-create", "2025-01-01T00:00:00Z", map[string]any{
		"objectId":  "a-2",
		"alarmName": "SR_RESTORED", // static-drop alarm name
		"severity":  "major",
	})

	got, err := n.Normalize(context.Background(), env, fakeContextProvider{})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got != nil {
		t.Errorf("Normalize() = %+v, want nil once the correlation filter drops the alarm", got)
	}
}

func TestNormalize_ClearSeverityAlwaysKept(t *testing.T) {
	n, err := New("UTC")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	env := envelope("alarm-change", "2025-01-01T00:00:00Z", map[string]any{
		"objectId":  "a-3",
		"alarmName": "SR_RESTORED",
		"severity":  "clear",
	})

	got, err := n.Normalize(context.Background(), env, fakeContextProvider{})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got == nil {
		t.Fatal("Normalize returned nil, want a CLEAR record to survive the filter")
	}
}

func TestNormalize_PropagatesContextProviderError(t *testing.T) {
	n, err := New("UTC")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	env := envelope("alarm-create", "2025-01-01T00:00:00Z", map[string]any{"objectId": "a-4", "severity": "major"})

	_, err = n.Normalize(context.Background(), env, erroringContextProvider{})
	if err == nil {
		t.Fatal("expected an error when the context provider fails")
	}
}

type erroringContextProvider struct{}

func (erroringContextProvider) ActivePowerIssues(ctx context.Context) ([]alarm.RootRef, error) {
	return nil, errBoom
}

func (erroringContextProvider) ActiveLOSRoots(ctx context.Context) ([]alarm.RootRef, error) {
	return nil, errBoom
}

var errBoom = &boomError{}

type boomError struct{}

func (*boomError) Error() string { return "boom" }
