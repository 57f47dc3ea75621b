// Package projection is the off-ledger relational read model for gameroom
// circuits.
//
// Tables:
//   - gameroom, gameroom_member, gameroom_service: circuit registration and
//     lifecycle status (Pending, Ready, Active)
//   - circuit_cursor: last applied state change event per circuit
//   - gameroom_notification: append-only notifications
//   - messages, statuses: latest projected entity per (circuit_id, name)
//
// Only the projector writes entity rows and cursors, always through Tx so
// an event's effects commit or roll back together. The Store methods are
// the read surface an API layer uses. SQLite (mattn/go-sqlite3) and
// Postgres (pgx) are both supported; timestamps are unix milliseconds.
package projection

// Lifecycle statuses of gameroom, member and service rows.
const (
	StatusPending = "Pending"
	StatusReady   = "Ready"
	StatusActive  = "Active"
)

// Gameroom is a registered circuit.
type Gameroom struct {
	CircuitID      string `json:"circuit_id"`
	Alias          string `json:"alias"`
	ManagementType string `json:"circuit_management_type"`
	Status         string `json:"status"`
	CreatedTime    int64  `json:"created_time"`
	UpdatedTime    int64  `json:"updated_time"`
}

// Member is a node on a circuit.
type Member struct {
	CircuitID   string `json:"circuit_id"`
	NodeID      string `json:"node_id"`
	Endpoints   string `json:"endpoints"`
	Status      string `json:"status"`
	CreatedTime int64  `json:"created_time"`
	UpdatedTime int64  `json:"updated_time"`
}

// Service is a ledger service running on a circuit.
type Service struct {
	CircuitID    string `json:"circuit_id"`
	ServiceID    string `json:"service_id"`
	ServiceType  string `json:"service_type"`
	AllowedNodes string `json:"allowed_nodes"`
	Status       string `json:"status"`
	CreatedTime  int64  `json:"created_time"`
	UpdatedTime  int64  `json:"updated_time"`
}

// Notification is an append-only event for UI consumers.
type Notification struct {
	ID              int64  `json:"id"`
	Type            string `json:"notification_type"`
	Requester       string `json:"requester"`
	RequesterNodeID string `json:"requester_node_id"`
	Target          string `json:"target"`
	CreatedTime     int64  `json:"created_time"`
	Read            bool   `json:"read"`
}

// Message is the projected state of one message thread.
type Message struct {
	CircuitID    string `json:"circuit_id"`
	Name         string `json:"name"`
	Content      string `json:"content"`
	Type         string `json:"message_type"`
	MessageID    int64  `json:"message_id"`
	PreviousID   *int64 `json:"previous_id"`
	Sender       string `json:"sender"`
	Participant1 string `json:"participant1"`
	Participant2 string `json:"participant2"`
	CreatedTime  int64  `json:"created_time"`
	UpdatedTime  int64  `json:"updated_time"`
}

// Status is the projected state of one tracked call. Nil pointers are
// unset values.
type Status struct {
	CircuitID     string `json:"circuit_id"`
	Name          string `json:"name"`
	Sender        string `json:"sender"`
	Participant1  string `json:"participant1"`
	Participant2  string `json:"participant2"`
	DockingType   string `json:"docking_type"`
	ETA           *int64 `json:"eta"`
	ETB           *int64 `json:"etb"`
	ATA           *int64 `json:"ata"`
	ETO           *int64 `json:"eto"`
	ATO           *int64 `json:"ato"`
	ETC           *int64 `json:"etc"`
	ETD           *int64 `json:"etd"`
	IsBunkering   *bool  `json:"is_bunkering"`
	BunkeringTime *int64 `json:"bunkering_time"`
	Logs          string `json:"logs"`
	CreatedTime   int64  `json:"created_time"`
	UpdatedTime   int64  `json:"updated_time"`
}

// Change reports what an upsert did.
type Change int

const (
	Unchanged Change = iota
	Created
	Updated
)

func (c Change) String() string {
	switch c {
	case Created:
		return "created"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}
