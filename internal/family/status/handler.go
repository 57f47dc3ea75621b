package status

import (
	"log/slog"

	"github.com/roach88/gameroom/internal/address"
	"github.com/roach88/gameroom/internal/family"
	"github.com/roach88/gameroom/internal/ledger"
	"github.com/roach88/gameroom/internal/state"
)

// Handler applies status transactions.
type Handler struct {
	logger    *slog.Logger
	storeOpts []state.Option
}

// NewHandler creates a status handler. A nil logger uses slog.Default().
func NewHandler(logger *slog.Logger, opts ...state.Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger.With("family", FamilyName), storeOpts: opts}
}

func (h *Handler) FamilyName() string       { return FamilyName }
func (h *Handler) FamilyVersions() []string { return []string{FamilyVersion} }
func (h *Handler) Namespaces() []string     { return []string{Prefix()} }

// Apply implements family.Handler.
func (h *Handler) Apply(req family.Request, ctx ledger.Context) error {
	if err := family.ValidateSigner(req.Signer); err != nil {
		return err
	}
	cmd, err := ParsePayload(req.Payload)
	if err != nil {
		return err
	}

	store := state.New[Status](ctx, FamilyName, Parse, h.storeOpts...)
	name := cmd.Target()

	current, exists, err := store.Get(name)
	if err != nil {
		return family.FromStore("load status", err)
	}

	switch cmd := cmd.(type) {
	case Create:
		if exists {
			return family.InvalidTransaction("status %q already exists", name)
		}
		if err := store.Set(name, New(name)); err != nil {
			return family.FromStore("create status", err)
		}
		h.logger.Info("created status", "name", name)

	case Update:
		if !exists {
			return family.InvalidTransaction("%s requires an existing status %q", cmd.Kind, name)
		}
		next := current
		next.Participants.Record(req.Signer)
		if req.Signer != next.Participants.First {
			return family.InvalidTransaction("signer %s is not the first participant of %q",
				address.Short(req.Signer), name)
		}
		next.Merge(cmd.Fields, req.Signer)
		if err := store.Set(name, next); err != nil {
			return family.FromStore("update status", err)
		}
		h.logger.Debug("updated status",
			"name", name,
			"action", cmd.Kind,
			"sender", address.Short(req.Signer),
			"participant1", address.Short(next.Participants.First),
			"participant2", address.Short(next.Participants.Second),
		)

	case Delete:
		if !exists {
			return family.InvalidTransaction("status %q does not exist", name)
		}
		if err := store.Delete(name); err != nil {
			return family.FromStore("delete status", err)
		}
		h.logger.Info("deleted status", "name", name)

	default:
		return family.InvalidTransaction("unsupported command %T", cmd)
	}
	return nil
}
