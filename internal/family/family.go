// Package family dispatches ledger transactions to entity family handlers.
//
// A handler owns one family (message, status): it parses the payload into
// a command, applies it to the family's entities through a state.Store and
// reports failures as *ApplyError. The Dispatcher routes a Transaction to
// the handler registered for its family and version.
//
// Handlers run with single-threaded semantics inside one ledger
// transaction; nothing here locks or blocks.
package family

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/roach88/gameroom/internal/bucket"
	"github.com/roach88/gameroom/internal/ledger"
)

// Request is what a handler sees of a transaction.
type Request struct {
	// Signer is the public key that signed the transaction.
	Signer string

	// Payload is the family-specific comma-separated command.
	Payload []byte
}

// Transaction is a request addressed to a family.
type Transaction struct {
	Family  string
	Version string
	Request
}

// Handler applies transactions for one family.
type Handler interface {
	FamilyName() string
	FamilyVersions() []string
	Namespaces() []string
	Apply(req Request, ctx ledger.Context) error
}

// Dispatcher routes transactions by family name.
type Dispatcher struct {
	handlers map[string]Handler
	logger   *slog.Logger
}

// NewDispatcher registers handlers. A nil logger uses slog.Default().
// Registering two handlers for one family panics.
func NewDispatcher(logger *slog.Logger, handlers ...Handler) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{handlers: make(map[string]Handler, len(handlers)), logger: logger}
	for _, h := range handlers {
		name := h.FamilyName()
		if _, dup := d.handlers[name]; dup {
			panic(fmt.Sprintf("family %q registered twice", name))
		}
		d.handlers[name] = h
	}
	return d
}

// Handler returns the handler for a family.
func (d *Dispatcher) Handler(name string) (Handler, bool) {
	h, ok := d.handlers[name]
	return h, ok
}

// Families lists registered family names in order.
func (d *Dispatcher) Families() []string {
	names := make([]string, 0, len(d.handlers))
	for n := range d.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Apply runs txn against ctx. On error the caller must discard every write
// made through ctx.
func (d *Dispatcher) Apply(txn Transaction, ctx ledger.Context) error {
	h, ok := d.handlers[txn.Family]
	if !ok {
		return InvalidTransaction("unknown family %q", txn.Family)
	}
	if txn.Version != "" && !slices.Contains(h.FamilyVersions(), txn.Version) {
		return InvalidTransaction("family %s does not support version %q", txn.Family, txn.Version)
	}
	if err := ValidateSigner(txn.Signer); err != nil {
		return err
	}

	if err := h.Apply(txn.Request, ctx); err != nil {
		d.logger.Debug("transaction rejected",
			"family", txn.Family,
			"signer", txn.Signer,
			"error", err,
		)
		return err
	}
	return nil
}

// Submit applies txn in a fresh ledger transaction over backend and
// commits it. A rejected transaction leaves backend untouched.
func (d *Dispatcher) Submit(ctx context.Context, backend ledger.Backend, ids ledger.IDGenerator, txn Transaction) (ledger.StateChangeEvent, error) {
	tx := ledger.Begin(ctx, backend, ids)
	if err := d.Apply(txn, tx); err != nil {
		tx.Rollback()
		return ledger.StateChangeEvent{}, err
	}
	ev, err := tx.Commit()
	if err != nil {
		return ledger.StateChangeEvent{}, &ApplyError{Kind: ErrInternal, Message: "commit", Err: err}
	}
	return ev, nil
}

// SplitPayload validates payload encoding and splits it into at least
// minFields comma-separated fields.
func SplitPayload(payload []byte, minFields int) ([]string, error) {
	if !utf8.Valid(payload) {
		return nil, &ApplyError{
			Kind:    ErrSerialization,
			Message: "payload is not valid UTF-8",
			Err:     bucket.ErrInvalidSerialization,
		}
	}
	fields := strings.Split(string(payload), bucket.FieldSep)
	if len(fields) < minFields {
		return nil, InvalidTransaction("payload has %d fields, want at least %d", len(fields), minFields)
	}
	return fields, nil
}

// ValidateName rejects names that cannot be stored in a bucket.
func ValidateName(name string) error {
	if name == "" {
		return InvalidTransaction("name is required")
	}
	if strings.Contains(name, bucket.EntitySep) {
		return InvalidTransaction("name %q cannot contain %q", name, bucket.EntitySep)
	}
	return nil
}

// ValidateSigner rejects signers that cannot be stored as a sender or
// participant field.
func ValidateSigner(signer string) error {
	if strings.ContainsAny(signer, bucket.FieldSep+bucket.EntitySep) {
		return InvalidTransaction("signer %q cannot contain %q or %q", signer, bucket.FieldSep, bucket.EntitySep)
	}
	return nil
}

// ValidateText rejects free text that would break bucket framing.
func ValidateText(field, text string) error {
	if strings.Contains(text, bucket.EntitySep) {
		return InvalidTransaction("%s cannot contain %q", field, bucket.EntitySep)
	}
	return nil
}
