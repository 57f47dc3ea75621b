package projection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Paging limits for list queries.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// ErrInvalidPage is returned for out-of-range limit or offset values.
var ErrInvalidPage = errors.New("projection: invalid paging")

// Page selects a window of a list query.
type Page struct {
	Limit  int
	Offset int
}

// Normalize applies the default limit and validates bounds.
func (p Page) Normalize() (Page, error) {
	if p.Limit == 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit < 0 || p.Limit > MaxLimit {
		return Page{}, fmt.Errorf("%w: limit %d must be between 1 and %d", ErrInvalidPage, p.Limit, MaxLimit)
	}
	if p.Offset < 0 {
		return Page{}, fmt.Errorf("%w: offset %d must not be negative", ErrInvalidPage, p.Offset)
	}
	return p, nil
}

// List is one page of results plus the total row count for the circuit.
type List[T any] struct {
	Items  []T `json:"data"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

const messageColumns = `circuit_id, name, content, message_type, message_id, previous_id,
	sender, participant1, participant2, created_time, updated_time`

const statusColumns = `circuit_id, name, sender, participant1, participant2, docking_type,
	eta, etb, ata, eto, ato, etc, etd, is_bunkering, bunkering_time, logs,
	created_time, updated_time`

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (Message, error) {
	var m Message
	var prev sql.NullInt64
	err := row.Scan(&m.CircuitID, &m.Name, &m.Content, &m.Type, &m.MessageID, &prev,
		&m.Sender, &m.Participant1, &m.Participant2, &m.CreatedTime, &m.UpdatedTime)
	m.PreviousID = intPtr(prev)
	return m, err
}

func scanStatus(row scanner) (Status, error) {
	var s Status
	var eta, etb, ata, eto, ato, etc, etd, bt sql.NullInt64
	var bunk sql.NullBool
	err := row.Scan(&s.CircuitID, &s.Name, &s.Sender, &s.Participant1, &s.Participant2, &s.DockingType,
		&eta, &etb, &ata, &eto, &ato, &etc, &etd, &bunk, &bt, &s.Logs,
		&s.CreatedTime, &s.UpdatedTime)
	s.ETA, s.ETB, s.ATA = intPtr(eta), intPtr(etb), intPtr(ata)
	s.ETO, s.ATO, s.ETC, s.ETD = intPtr(eto), intPtr(ato), intPtr(etc), intPtr(etd)
	s.IsBunkering = boolPtr(bunk)
	s.BunkeringTime = intPtr(bt)
	return s, err
}

func cursor(ctx context.Context, q queryer, d dialect, circuitID string) (string, bool, error) {
	var id string
	err := q.QueryRowContext(ctx, d.rebind(`SELECT last_event FROM circuit_cursor WHERE circuit_id = ?`), circuitID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read cursor: %w", err)
	}
	return id, true, nil
}

func fetchMessage(ctx context.Context, q queryer, d dialect, circuitID, name string) (Message, error) {
	row := q.QueryRowContext(ctx, d.rebind(`SELECT `+messageColumns+` FROM messages WHERE circuit_id = ? AND name = ?`), circuitID, name)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("fetch message: %w", err)
	}
	return m, nil
}

func fetchStatus(ctx context.Context, q queryer, d dialect, circuitID, name string) (Status, error) {
	row := q.QueryRowContext(ctx, d.rebind(`SELECT `+statusColumns+` FROM statuses WHERE circuit_id = ? AND name = ?`), circuitID, name)
	s, err := scanStatus(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Status{}, ErrNotFound
	}
	if err != nil {
		return Status{}, fmt.Errorf("fetch status: %w", err)
	}
	return s, nil
}

// count returns the number of rows in table for circuitID.
func (s *Store) count(ctx context.Context, table, column, circuitID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT COUNT(*) FROM `+table+` WHERE `+column+` = ?`), circuitID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func listRows[T any](ctx context.Context, s *Store, query string, scan func(scanner) (T, error), args ...any) ([]T, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []T{}
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Cursor returns the last applied event id for a circuit.
func (s *Store) Cursor(ctx context.Context, circuitID string) (string, bool, error) {
	return cursor(ctx, s.db, s.dialect, circuitID)
}

// FetchMessage returns one thread by (circuit, name).
func (s *Store) FetchMessage(ctx context.Context, circuitID, name string) (Message, error) {
	return fetchMessage(ctx, s.db, s.dialect, circuitID, name)
}

// ListMessages returns a page of a circuit's threads ordered by name.
func (s *Store) ListMessages(ctx context.Context, circuitID string, page Page) (List[Message], error) {
	page, err := page.Normalize()
	if err != nil {
		return List[Message]{}, err
	}
	items, err := listRows(ctx, s,
		`SELECT `+messageColumns+` FROM messages WHERE circuit_id = ? ORDER BY name ASC LIMIT ? OFFSET ?`,
		scanMessage, circuitID, page.Limit, page.Offset)
	if err != nil {
		return List[Message]{}, fmt.Errorf("list messages: %w", err)
	}
	total, err := s.count(ctx, "messages", "circuit_id", circuitID)
	if err != nil {
		return List[Message]{}, err
	}
	return List[Message]{Items: items, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

// FetchStatus returns one call by (circuit, name).
func (s *Store) FetchStatus(ctx context.Context, circuitID, name string) (Status, error) {
	return fetchStatus(ctx, s.db, s.dialect, circuitID, name)
}

// ListStatuses returns a page of a circuit's calls ordered by name.
func (s *Store) ListStatuses(ctx context.Context, circuitID string, page Page) (List[Status], error) {
	page, err := page.Normalize()
	if err != nil {
		return List[Status]{}, err
	}
	items, err := listRows(ctx, s,
		`SELECT `+statusColumns+` FROM statuses WHERE circuit_id = ? ORDER BY name ASC LIMIT ? OFFSET ?`,
		scanStatus, circuitID, page.Limit, page.Offset)
	if err != nil {
		return List[Status]{}, fmt.Errorf("list statuses: %w", err)
	}
	total, err := s.count(ctx, "statuses", "circuit_id", circuitID)
	if err != nil {
		return List[Status]{}, err
	}
	return List[Status]{Items: items, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

func scanNotification(row scanner) (Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.Type, &n.Requester, &n.RequesterNodeID, &n.Target, &n.CreatedTime, &n.Read)
	return n, err
}

// ListNotifications returns a page of a circuit's notifications in the
// order they were written.
func (s *Store) ListNotifications(ctx context.Context, circuitID string, page Page) (List[Notification], error) {
	page, err := page.Normalize()
	if err != nil {
		return List[Notification]{}, err
	}
	items, err := listRows(ctx, s, `
		SELECT id, notification_type, requester, requester_node_id, target, created_time, read
		FROM gameroom_notification WHERE target = ? ORDER BY id ASC LIMIT ? OFFSET ?
	`, scanNotification, circuitID, page.Limit, page.Offset)
	if err != nil {
		return List[Notification]{}, fmt.Errorf("list notifications: %w", err)
	}
	total, err := s.count(ctx, "gameroom_notification", "target", circuitID)
	if err != nil {
		return List[Notification]{}, err
	}
	return List[Notification]{Items: items, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

// MarkNotificationRead flags a notification as read.
func (s *Store) MarkNotificationRead(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`UPDATE gameroom_notification SET read = ? WHERE id = ?`), true, id)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Gameroom returns a registered circuit with its members and services.
func (s *Store) Gameroom(ctx context.Context, circuitID string) (Gameroom, []Member, []Service, error) {
	var g Gameroom
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`
		SELECT circuit_id, alias, circuit_management_type, status, created_time, updated_time
		FROM gameroom WHERE circuit_id = ?
	`), circuitID).Scan(&g.CircuitID, &g.Alias, &g.ManagementType, &g.Status, &g.CreatedTime, &g.UpdatedTime)
	if errors.Is(err, sql.ErrNoRows) {
		return Gameroom{}, nil, nil, ErrNotFound
	}
	if err != nil {
		return Gameroom{}, nil, nil, fmt.Errorf("fetch gameroom: %w", err)
	}

	members, err := listRows(ctx, s, `
		SELECT circuit_id, node_id, endpoints, status, created_time, updated_time
		FROM gameroom_member WHERE circuit_id = ? ORDER BY node_id ASC
	`, func(r scanner) (Member, error) {
		var m Member
		err := r.Scan(&m.CircuitID, &m.NodeID, &m.Endpoints, &m.Status, &m.CreatedTime, &m.UpdatedTime)
		return m, err
	}, circuitID)
	if err != nil {
		return Gameroom{}, nil, nil, fmt.Errorf("list members: %w", err)
	}

	services, err := listRows(ctx, s, `
		SELECT circuit_id, service_id, service_type, allowed_nodes, status, created_time, updated_time
		FROM gameroom_service WHERE circuit_id = ? ORDER BY service_id ASC
	`, func(r scanner) (Service, error) {
		var sv Service
		err := r.Scan(&sv.CircuitID, &sv.ServiceID, &sv.ServiceType, &sv.AllowedNodes, &sv.Status, &sv.CreatedTime, &sv.UpdatedTime)
		return sv, err
	}, circuitID)
	if err != nil {
		return Gameroom{}, nil, nil, fmt.Errorf("list services: %w", err)
	}

	return g, members, services, nil
}

// RegisterCircuit records a circuit, its members and services ahead of
// activation. Re-registering an existing circuit is a no-op for rows that
// already exist.
func (s *Store) RegisterCircuit(ctx context.Context, g Gameroom, members []Member, services []Service) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.exec(ctx, `
			INSERT INTO gameroom (circuit_id, alias, circuit_management_type, status, created_time, updated_time)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (circuit_id) DO NOTHING
		`, g.CircuitID, g.Alias, g.ManagementType, g.Status, g.CreatedTime, g.UpdatedTime); err != nil {
			return fmt.Errorf("insert gameroom: %w", err)
		}
		for _, m := range members {
			if _, err := tx.exec(ctx, `
				INSERT INTO gameroom_member (circuit_id, node_id, endpoints, status, created_time, updated_time)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT (circuit_id, node_id) DO NOTHING
			`, g.CircuitID, m.NodeID, m.Endpoints, m.Status, m.CreatedTime, m.UpdatedTime); err != nil {
				return fmt.Errorf("insert member %s: %w", m.NodeID, err)
			}
		}
		for _, sv := range services {
			if _, err := tx.exec(ctx, `
				INSERT INTO gameroom_service (circuit_id, service_id, service_type, allowed_nodes, status, created_time, updated_time)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (circuit_id, service_id) DO NOTHING
			`, g.CircuitID, sv.ServiceID, sv.ServiceType, sv.AllowedNodes, sv.Status, sv.CreatedTime, sv.UpdatedTime); err != nil {
				return fmt.Errorf("insert service %s: %w", sv.ServiceID, err)
			}
		}
		return nil
	})
}
