package projection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Tx is the write surface used while applying one event.
type Tx struct {
	q queryer
	d dialect
}

func (t *Tx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.q.ExecContext(ctx, t.d.rebind(query), args...)
}

func (t *Tx) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.q.QueryRowContext(ctx, t.d.rebind(query), args...)
}

// Cursor returns the last applied event id for a circuit.
func (t *Tx) Cursor(ctx context.Context, circuitID string) (string, bool, error) {
	return cursor(ctx, t.q, t.d, circuitID)
}

// SetCursor records eventID as the circuit's last applied event.
func (t *Tx) SetCursor(ctx context.Context, circuitID, eventID string, now int64) error {
	_, err := t.exec(ctx, `
		INSERT INTO circuit_cursor (circuit_id, last_event, updated_time)
		VALUES (?, ?, ?)
		ON CONFLICT (circuit_id) DO UPDATE
		SET last_event = excluded.last_event, updated_time = excluded.updated_time
	`, circuitID, eventID, now)
	if err != nil {
		return fmt.Errorf("set cursor: %w", err)
	}
	return nil
}

// ActivateGameroom marks the circuit Active and moves its Ready members and
// services to Active. Returns the number of gameroom rows changed, which is
// zero when the circuit was never registered locally.
func (t *Tx) ActivateGameroom(ctx context.Context, circuitID string, now int64) (int64, error) {
	res, err := t.exec(ctx, `
		UPDATE gameroom SET status = ?, updated_time = ? WHERE circuit_id = ?
	`, StatusActive, now, circuitID)
	if err != nil {
		return 0, fmt.Errorf("activate gameroom: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("activate gameroom: %w", err)
	}

	for _, table := range []string{"gameroom_member", "gameroom_service"} {
		_, err := t.exec(ctx, `
			UPDATE `+table+` SET status = ?, updated_time = ?
			WHERE circuit_id = ? AND status = ?
		`, StatusActive, now, circuitID, StatusReady)
		if err != nil {
			return 0, fmt.Errorf("activate %s: %w", table, err)
		}
	}
	return n, nil
}

// InsertNotification appends a notification.
func (t *Tx) InsertNotification(ctx context.Context, n Notification) error {
	_, err := t.exec(ctx, `
		INSERT INTO gameroom_notification
		(notification_type, requester, requester_node_id, target, created_time, read)
		VALUES (?, ?, ?, ?, ?, ?)
	`, n.Type, n.Requester, n.RequesterNodeID, n.Target, n.CreatedTime, n.Read)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// UpsertMessage inserts or updates the thread keyed by (circuit, name).
// An identical row is left alone and reported Unchanged. CreatedTime is
// kept from the existing row.
func (t *Tx) UpsertMessage(ctx context.Context, m Message, now int64) (Change, error) {
	existing, err := fetchMessage(ctx, t.q, t.d, m.CircuitID, m.Name)
	switch {
	case errors.Is(err, ErrNotFound):
		_, err = t.exec(ctx, `
			INSERT INTO messages
			(circuit_id, name, content, message_type, message_id, previous_id,
			 sender, participant1, participant2, created_time, updated_time)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, m.CircuitID, m.Name, m.Content, m.Type, m.MessageID, nullInt(m.PreviousID),
			m.Sender, m.Participant1, m.Participant2, now, now)
		if err != nil {
			return Unchanged, fmt.Errorf("insert message: %w", err)
		}
		return Created, nil
	case err != nil:
		return Unchanged, err
	}

	if sameMessage(existing, m) {
		return Unchanged, nil
	}
	_, err = t.exec(ctx, `
		UPDATE messages
		SET content = ?, message_type = ?, message_id = ?, previous_id = ?,
		    sender = ?, participant1 = ?, participant2 = ?, updated_time = ?
		WHERE circuit_id = ? AND name = ?
	`, m.Content, m.Type, m.MessageID, nullInt(m.PreviousID),
		m.Sender, m.Participant1, m.Participant2, now, m.CircuitID, m.Name)
	if err != nil {
		return Unchanged, fmt.Errorf("update message: %w", err)
	}
	return Updated, nil
}

// UpsertStatus inserts or updates the call keyed by (circuit, name).
func (t *Tx) UpsertStatus(ctx context.Context, s Status, now int64) (Change, error) {
	existing, err := fetchStatus(ctx, t.q, t.d, s.CircuitID, s.Name)
	switch {
	case errors.Is(err, ErrNotFound):
		_, err = t.exec(ctx, `
			INSERT INTO statuses
			(circuit_id, name, sender, participant1, participant2, docking_type,
			 eta, etb, ata, eto, ato, etc, etd, is_bunkering, bunkering_time, logs,
			 created_time, updated_time)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, s.CircuitID, s.Name, s.Sender, s.Participant1, s.Participant2, s.DockingType,
			nullInt(s.ETA), nullInt(s.ETB), nullInt(s.ATA), nullInt(s.ETO), nullInt(s.ATO),
			nullInt(s.ETC), nullInt(s.ETD), nullBool(s.IsBunkering), nullInt(s.BunkeringTime),
			s.Logs, now, now)
		if err != nil {
			return Unchanged, fmt.Errorf("insert status: %w", err)
		}
		return Created, nil
	case err != nil:
		return Unchanged, err
	}

	if sameStatus(existing, s) {
		return Unchanged, nil
	}
	_, err = t.exec(ctx, `
		UPDATE statuses
		SET sender = ?, participant1 = ?, participant2 = ?, docking_type = ?,
		    eta = ?, etb = ?, ata = ?, eto = ?, ato = ?, etc = ?, etd = ?,
		    is_bunkering = ?, bunkering_time = ?, logs = ?, updated_time = ?
		WHERE circuit_id = ? AND name = ?
	`, s.Sender, s.Participant1, s.Participant2, s.DockingType,
		nullInt(s.ETA), nullInt(s.ETB), nullInt(s.ATA), nullInt(s.ETO), nullInt(s.ATO),
		nullInt(s.ETC), nullInt(s.ETD), nullBool(s.IsBunkering), nullInt(s.BunkeringTime),
		s.Logs, now, s.CircuitID, s.Name)
	if err != nil {
		return Unchanged, fmt.Errorf("update status: %w", err)
	}
	return Updated, nil
}

func sameMessage(a, b Message) bool {
	return a.Content == b.Content &&
		a.Type == b.Type &&
		a.MessageID == b.MessageID &&
		eqInt(a.PreviousID, b.PreviousID) &&
		a.Sender == b.Sender &&
		a.Participant1 == b.Participant1 &&
		a.Participant2 == b.Participant2
}

func sameStatus(a, b Status) bool {
	return a.Sender == b.Sender &&
		a.Participant1 == b.Participant1 &&
		a.Participant2 == b.Participant2 &&
		a.DockingType == b.DockingType &&
		eqInt(a.ETA, b.ETA) && eqInt(a.ETB, b.ETB) && eqInt(a.ATA, b.ATA) &&
		eqInt(a.ETO, b.ETO) && eqInt(a.ATO, b.ATO) && eqInt(a.ETC, b.ETC) &&
		eqInt(a.ETD, b.ETD) &&
		eqBool(a.IsBunkering, b.IsBunkering) &&
		eqInt(a.BunkeringTime, b.BunkeringTime) &&
		a.Logs == b.Logs
}

func eqInt(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func eqBool(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullBool(p *bool) sql.NullBool {
	if p == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *p, Valid: true}
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func boolPtr(n sql.NullBool) *bool {
	if !n.Valid {
		return nil
	}
	v := n.Bool
	return &v
}
