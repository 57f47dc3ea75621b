package status

import (
	"strconv"
	"strings"

	"github.com/roach88/gameroom/internal/bucket"
	"github.com/roach88/gameroom/internal/family"
)

// payloadFields is the minimum field count of a status payload:
// name, action, docking, seven times, is_bunkering, bunkering_time, log.
const payloadFields = 13

// Command is a parsed status payload. The concrete types are Create,
// Update and Delete.
type Command interface {
	Target() string
	command()
}

// Create starts tracking a new call.
type Create struct{ Name string }

// UpdateKind is the wire action an Update came from.
type UpdateKind string

const (
	UpdateDelay   UpdateKind = "delay"
	UpdatePrepone UpdateKind = "prepone"
)

// Update changes tracked fields of an existing call.
type Update struct {
	Name   string
	Kind   UpdateKind
	Fields Fields
}

// Delete stops tracking a call.
type Delete struct{ Name string }

func (c Create) Target() string { return c.Name }
func (c Update) Target() string { return c.Name }
func (c Delete) Target() string { return c.Name }

func (Create) command() {}
func (Update) command() {}
func (Delete) command() {}

// Fields are the parts of an update. Docking is always replaced; for the
// other fields a nil pointer keeps the current value and "none" on the
// wire clears it.
type Fields struct {
	Docking       Docking
	ETA, ETB, ATA *Millis
	ETO, ATO      *Millis
	ETC, ETD      *Millis
	Bunkering     *OptBool
	BunkeringTime *Millis

	// Log is appended to the entity's logs when non-empty.
	Log string
}

func (f *Fields) times() []**Millis {
	return []**Millis{&f.ETA, &f.ETB, &f.ATA, &f.ETO, &f.ATO, &f.ETC, &f.ETD}
}

// ParsePayload decodes a comma-separated status payload. Fields after the
// twelfth comma are rejoined as the log text.
func ParsePayload(payload []byte) (Command, error) {
	f, err := family.SplitPayload(payload, payloadFields)
	if err != nil {
		return nil, err
	}

	name, action := f[0], f[1]
	if err := family.ValidateName(name); err != nil {
		return nil, err
	}

	switch action {
	case "create":
		return Create{Name: name}, nil
	case "delete":
		return Delete{Name: name}, nil
	case string(UpdateDelay), string(UpdatePrepone):
		fields, err := parseFields(f[2:])
		if err != nil {
			return nil, err
		}
		return Update{Name: name, Kind: UpdateKind(action), Fields: fields}, nil
	case "":
		return nil, family.InvalidTransaction("action is required")
	default:
		return nil, family.InvalidTransaction("invalid action %q", action)
	}
}

// parseFields reads docking, the seven times, is_bunkering,
// bunkering_time and the log.
func parseFields(items []string) (Fields, error) {
	var out Fields

	switch d := Docking(items[0]); d {
	case DockingLoading, DockingDischarge:
		out.Docking = d
	default:
		out.Docking = DockingUnknown
	}

	for i, dst := range out.times() {
		m, err := parseMillisField(timeNames[i], items[1+i])
		if err != nil {
			return Fields{}, err
		}
		*dst = m
	}

	switch items[8] {
	case "":
	case None, "true", "false":
		b, _ := parseOptBool(items[8])
		out.Bunkering = &b
	default:
		return Fields{}, family.InvalidTransaction("invalid is_bunkering %q", items[8])
	}

	bt, err := parseMillisField("bunkering_time", items[9])
	if err != nil {
		return Fields{}, err
	}
	out.BunkeringTime = bt

	out.Log = strings.Join(items[10:], bucket.FieldSep)
	if err := family.ValidateText("log", out.Log); err != nil {
		return Fields{}, err
	}
	return out, nil
}

func parseMillisField(name, s string) (*Millis, error) {
	switch s {
	case "":
		return nil, nil
	case None:
		return &Millis{}, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return nil, family.InvalidTransaction("invalid %s %q", name, s)
	}
	m := Ms(v)
	return &m, nil
}

// Merge applies an update by signer. Name and participants are retained,
// sender and docking are always overwritten, the other optional fields
// only when present in the update. A non-empty log is appended after a
// LogSep, so the first entry of an empty log starts with one.
func (s *Status) Merge(f Fields, signer string) {
	s.Sender = signer
	s.Docking = f.Docking

	cur := s.Times.fields()
	for i, upd := range f.times() {
		if *upd != nil {
			*cur[i] = **upd
		}
	}

	if f.Bunkering != nil {
		s.Bunkering = *f.Bunkering
	}
	if f.BunkeringTime != nil {
		s.BunkeringTime = *f.BunkeringTime
	}

	if f.Log != "" {
		s.Logs += LogSep + f.Log
	}
}
