package message

import (
	"log/slog"

	"github.com/roach88/gameroom/internal/address"
	"github.com/roach88/gameroom/internal/family"
	"github.com/roach88/gameroom/internal/ledger"
	"github.com/roach88/gameroom/internal/state"
)

// Handler applies message transactions.
type Handler struct {
	logger    *slog.Logger
	storeOpts []state.Option
}

// NewHandler creates a message handler. A nil logger uses slog.Default().
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

	store := state.New[Message](ctx, FamilyName, Parse, h.storeOpts...)
	name := cmd.Target()

	current, exists, err := store.Get(name)
	if err != nil {
		return family.FromStore("load message", err)
	}

	switch cmd := cmd.(type) {
	case Create:
		if exists {
			return family.InvalidTransaction("message %q already exists", name)
		}
		if err := store.Set(name, New(name)); err != nil {
			return family.FromStore("create message", err)
		}
		h.logger.Info("created message", "name", name)

	case Post:
		if !exists {
			return family.InvalidTransaction("add requires an existing message %q", name)
		}
		current.Participants.Record(req.Signer)
		current.Post(cmd.Content, req.Signer)
		if err := store.Set(name, current); err != nil {
			return family.FromStore("add message", err)
		}
		h.logger.Debug("posted message",
			"name", name,
			"id", current.ID,
			"sender", address.Short(req.Signer),
			"participant1", address.Short(current.Participants.First),
			"participant2", address.Short(current.Participants.Second),
		)

	case Delete:
		if !exists {
			return family.InvalidTransaction("message %q does not exist", name)
		}
		if err := store.Delete(name); err != nil {
			return family.FromStore("delete message", err)
		}
		h.logger.Info("deleted message", "name", name)

	default:
		return family.InvalidTransaction("unsupported command %T", cmd)
	}
	return nil
}
