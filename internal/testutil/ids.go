package testutil

// FixedIDGenerator returns the same event id every time.
//
// Committing two ledger transactions with it yields two events that share
// an id, which is how a redelivered event looks to the projector.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a generator for id. If id is empty,
// Generate returns "evt-fixed".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "evt-fixed"
	}
	return &FixedIDGenerator{id: id}
}

// Generate implements ledger.IDGenerator.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
