// Package families wires the gameroom transaction families together: the
// dispatcher with every handler registered, and the contract entries that
// announce a deployed family on a circuit.
package families

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/gameroom/internal/family"
	"github.com/roach88/gameroom/internal/family/message"
	"github.com/roach88/gameroom/internal/family/status"
	"github.com/roach88/gameroom/internal/ledger"
)

// Names lists the families served by NewDispatcher, sorted.
var Names = []string{message.FamilyName, status.FamilyName}

// NewDispatcher returns a dispatcher serving the message and status
// families. A nil logger uses slog.Default().
func NewDispatcher(logger *slog.Logger) *family.Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return family.NewDispatcher(logger, message.NewHandler(logger), status.NewHandler(logger))
}

// Contract returns the registry address of a family and the entry stored
// there ("name,version").
func Contract(name string) (string, []byte, error) {
	switch name {
	case message.FamilyName:
		return message.ContractAddress(), []byte(message.FamilyName + "," + message.FamilyVersion), nil
	case status.FamilyName:
		return status.ContractAddress(), []byte(status.FamilyName + "," + status.FamilyVersion), nil
	default:
		return "", nil, fmt.Errorf("unknown contract family %q", name)
	}
}

// RegisterContract commits the contract entry of a family to backend.
// Projectors treat the resulting event as the circuit's genesis.
func RegisterContract(ctx context.Context, backend ledger.Backend, ids ledger.IDGenerator, name string) (ledger.StateChangeEvent, error) {
	key, value, err := Contract(name)
	if err != nil {
		return ledger.StateChangeEvent{}, err
	}
	tx := ledger.Begin(ctx, backend, ids)
	if err := tx.SetState(key, value); err != nil {
		tx.Rollback()
		return ledger.StateChangeEvent{}, err
	}
	return tx.Commit()
}
