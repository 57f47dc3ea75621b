// Package status implements the vessel status tracking family.
//
// A status entity tracks one vessel call: docking type, seven estimated or
// actual event times, bunkering and a running log. Only the first
// participant may update a status; the first signer to update it becomes
// that participant.
package status

import (
	"fmt"
	"strconv"

	"github.com/roach88/gameroom/internal/address"
	"github.com/roach88/gameroom/internal/bucket"
	"github.com/roach88/gameroom/internal/family"
)

const (
	// FamilyName is the ledger family and address domain.
	FamilyName = "status"

	// FamilyVersion is the only supported payload version.
	FamilyVersion = "1.0"

	// ContractName is the contract registration whose address acts as
	// the family's genesis key.
	ContractName = "sawtooth_status"

	// None encodes an unset optional field.
	None = "none"

	// LogSep separates log entries.
	LogSep = ";"

	canonicalLead = 14
)

// Docking is the kind of port call.
type Docking string

const (
	DockingLoading   Docking = "LOADING"
	DockingDischarge Docking = "DISCHARGE"
	DockingUnknown   Docking = "error"
)

// Millis is an optional millisecond value.
type Millis struct {
	Value uint64
	Valid bool
}

// Ms returns a set Millis.
func Ms(v uint64) Millis { return Millis{Value: v, Valid: true} }

func (m Millis) String() string {
	if !m.Valid {
		return None
	}
	return strconv.FormatUint(m.Value, 10)
}

func parseMillis(s string) (Millis, error) {
	if s == None {
		return Millis{}, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return Millis{}, fmt.Errorf("invalid milliseconds %q", s)
	}
	return Ms(v), nil
}

// OptBool is an optional boolean.
type OptBool struct {
	Value bool
	Valid bool
}

func (b OptBool) String() string {
	if !b.Valid {
		return None
	}
	return strconv.FormatBool(b.Value)
}

func parseOptBool(s string) (OptBool, error) {
	switch s {
	case None:
		return OptBool{}, nil
	case "true":
		return OptBool{Value: true, Valid: true}, nil
	case "false":
		return OptBool{Value: false, Valid: true}, nil
	}
	return OptBool{}, fmt.Errorf("invalid boolean %q", s)
}

// Times are the tracked event times of a call.
type Times struct {
	ETA, ETB, ATA, ETO, ATO, ETC, ETD Millis
}

func (t *Times) fields() []*Millis {
	return []*Millis{&t.ETA, &t.ETB, &t.ATA, &t.ETO, &t.ATO, &t.ETC, &t.ETD}
}

// Status is one tracked vessel call.
type Status struct {
	Name         string
	Sender       string
	Participants family.Participants
	Docking      Docking
	Times
	Bunkering     OptBool
	BunkeringTime Millis

	// Logs holds LogSep-separated entries and may contain commas.
	Logs string
}

// New returns a freshly created status.
func New(name string) Status {
	return Status{Name: name, Docking: DockingUnknown}
}

// EntityName implements bucket.Entity.
func (s Status) EntityName() string { return s.Name }

// Canonical implements bucket.Entity. Field order:
// name, sender, participant1, participant2, docking_type, eta, etb, ata,
// eto, ato, etc, etd, is_bunkering, bunkering_time, logs.
func (s Status) Canonical() string {
	fields := make([]string, 0, canonicalLead+1)
	fields = append(fields, s.Name, s.Sender, s.Participants.First, s.Participants.Second, string(s.Docking))
	for _, m := range s.Times.fields() {
		fields = append(fields, m.String())
	}
	fields = append(fields, s.Bunkering.String(), s.BunkeringTime.String(), s.Logs)
	return bucket.JoinFields(fields...)
}

// Parse decodes one canonical status. Everything after the fourteenth
// comma belongs to the logs.
func Parse(raw string) (Status, error) {
	f, err := bucket.SplitFields(raw, canonicalLead, 0)
	if err != nil {
		return Status{}, err
	}

	bad := func(field string, err error) error {
		return fmt.Errorf("%w: status %q: %s: %v", bucket.ErrInvalidSerialization, f[0], field, err)
	}

	s := Status{
		Name:   f[0],
		Sender: f[1],
		Participants: family.Participants{
			First:  f[2],
			Second: f[3],
		},
		Logs: f[14],
	}

	switch d := Docking(f[4]); d {
	case DockingLoading, DockingDischarge, DockingUnknown:
		s.Docking = d
	default:
		return Status{}, bad("docking_type", fmt.Errorf("unknown value %q", f[4]))
	}

	for i, m := range s.Times.fields() {
		if *m, err = parseMillis(f[5+i]); err != nil {
			return Status{}, bad(timeNames[i], err)
		}
	}
	if s.Bunkering, err = parseOptBool(f[12]); err != nil {
		return Status{}, bad("is_bunkering", err)
	}
	if s.BunkeringTime, err = parseMillis(f[13]); err != nil {
		return Status{}, bad("bunkering_time", err)
	}
	return s, nil
}

var timeNames = []string{"eta", "etb", "ata", "eto", "ato", "etc", "etd"}

// Address returns the ledger key for a status name.
func Address(name string) string {
	return address.Address(FamilyName, name)
}

// Prefix is the family namespace.
func Prefix() string {
	return address.Prefix(FamilyName)
}

// ContractAddress is the family's genesis key.
func ContractAddress() string {
	return address.ContractAddress(ContractName, FamilyVersion)
}
