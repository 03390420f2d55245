package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pilot-net/nsp-alarm-ingester/pkg/alarm"
)

// Invalidator is notified whenever ApplyAlarm changes a row that could
// affect C6's context queries, so an optional cache mirror can evict it.
type Invalidator interface {
	Invalidate(ctx context.Context, alarmID string)
}

// ApplyAlarm is the single C5 entry point. It applies the lifecycle
// guards and transitions within one transaction:
//
//   - missing alarm_id or event_type: no-op
//   - alarm-delete: no-op
//   - alarm-change with severity=CLEAR: delete from active_alarms,
//     returning the prior payload; if a row existed, insert it verbatim
//     into alarm_history
//   - alarm-create: requires alarm_name and ne_name; upserts active_alarms
//   - anything else: no-op
func (s *Store) ApplyAlarm(ctx context.Context, a alarm.CanonicalAlarm, inv Invalidator) error {
	if a.AlarmID == "" || a.EventType == "" {
		return nil
	}
	if a.EventType == alarm.EventAlarmDelete {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	switch {
	case a.EventType == alarm.EventAlarmChange && a.Severity == alarm.SeverityClear:
		if err := clearAlarm(ctx, tx, a.AlarmID); err != nil {
			return err
		}
	case a.EventType == alarm.EventAlarmCreate:
		if a.AlarmName == "" || a.NEName == "" {
			return nil
		}
		if err := upsertActive(ctx, tx, a); err != nil {
			return err
		}
	default:
		return nil
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	if inv != nil {
		inv.Invalidate(ctx, a.AlarmID)
	}
	return nil
}

func clearAlarm(ctx context.Context, tx pgx.Tx, alarmID string) error {
	var payload []byte
	err := tx.QueryRow(ctx, `
		DELETE FROM active_alarms WHERE alarm_id = $1
		RETURNING alarm
	`, alarmID).Scan(&payload)
	if err == pgx.ErrNoRows {
		// Clear for an unknown id is a no-op, not an error.
		return nil
	}
	if err != nil {
		return fmt.Errorf("deleting active alarm: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO alarm_history (alarm_id, alarm, cleared_at)
		VALUES ($1, $2, now())
	`, alarmID, payload)
	if err != nil {
		return fmt.Errorf("inserting history row: %w", err)
	}
	return nil
}

func upsertActive(ctx context.Context, tx pgx.Tx, a alarm.CanonicalAlarm) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshaling alarm payload: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO active_alarms (alarm_id, alarm, last_updated)
		VALUES ($1, $2, now())
		ON CONFLICT (alarm_id) DO UPDATE
		SET alarm = EXCLUDED.alarm, last_updated = now()
	`, a.AlarmID, payload)
	if err != nil {
		return fmt.Errorf("upserting active alarm: %w", err)
	}
	return nil
}
