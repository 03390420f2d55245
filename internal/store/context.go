package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pilot-net/nsp-alarm-ingester/pkg/alarm"
)

// ActivePowerIssues implements C6's first context query: active_alarms
// rows whose stored alarm_name is "Power Issue" and object_type is
// "PHYSICALCONNECTION".
func (s *Store) ActivePowerIssues(ctx context.Context) ([]alarm.RootRef, error) {
	return s.queryRoots(ctx, `
		SELECT alarm FROM active_alarms
		WHERE alarm->>'alarm_name' = 'Power Issue'
		AND alarm->>'object_type' = 'PHYSICALCONNECTION'
	`)
}

// ActiveLOSRoots implements C6's second context query: active_alarms rows
// whose stored alarm_name is "Loss of signal - OCH" and severity is
// CRITICAL or MAJOR.
func (s *Store) ActiveLOSRoots(ctx context.Context) ([]alarm.RootRef, error) {
	return s.queryRoots(ctx, `
		SELECT alarm FROM active_alarms
		WHERE alarm->>'alarm_name' = 'Loss of signal - OCH'
		AND alarm->>'severity' IN ('CRITICAL', 'MAJOR')
	`)
}

func (s *Store) queryRoots(ctx context.Context, query string) ([]alarm.RootRef, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying active roots: %w", err)
	}
	defer rows.Close()

	var roots []alarm.RootRef
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning active alarm row: %w", err)
		}
		var a alarm.CanonicalAlarm
		if err := json.Unmarshal(payload, &a); err != nil {
			return nil, fmt.Errorf("decoding active alarm payload: %w", err)
		}
		roots = append(roots, alarm.RootRef{
			AlarmName:          a.AlarmName,
			Severity:           a.Severity,
			AffectedObjectName: a.AffectedObjectName,
			FirstDetected:      a.FirstDetected,
			NEName:             a.NEName,
		})
	}
	return roots, rows.Err()
}
