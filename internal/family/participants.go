package family

// Participants are the first two distinct signers to act on an entity.
type Participants struct {
	First  string
	Second string
}

// Record fills the next empty slot with signer. A signer already holding a
// slot, or a third distinct signer, changes nothing.
func (p *Participants) Record(signer string) {
	switch {
	case signer == "" || signer == p.First || signer == p.Second:
	case p.First == "":
		p.First = signer
	case p.Second == "":
		p.Second = signer
	}
}

// Has reports whether signer holds either slot.
func (p Participants) Has(signer string) bool {
	return signer != "" && (signer == p.First || signer == p.Second)
}
