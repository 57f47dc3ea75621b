// Package feed drives projectors from a stream of state change events.
//
// The stream is JSON lines, one Envelope per line. Events are routed to a
// FIFO per circuit and each circuit is consumed by its own goroutine, so
// events of one circuit are projected strictly in feed order.
package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/gameroom/internal/ledger"
)

// Envelope is one event as delivered for a circuit.
type Envelope struct {
	CircuitID string                  `json:"circuit_id"`
	Event     ledger.StateChangeEvent `json:"event"`
}

// Validate checks the fields the driver routes on.
func (e Envelope) Validate() error {
	if e.CircuitID == "" {
		return errors.New("envelope: circuit_id is required")
	}
	if e.Event.ID == "" {
		return errors.New("envelope: event id is required")
	}
	return nil
}

// Reader decodes envelopes from a JSON lines stream.
type Reader struct {
	dec  *json.Decoder
	line int
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: json.NewDecoder(r)}
}

// Next returns the next envelope, or io.EOF at the end of the stream.
func (r *Reader) Next() (Envelope, error) {
	var env Envelope
	if err := r.dec.Decode(&env); err != nil {
		if errors.Is(err, io.EOF) {
			return Envelope{}, io.EOF
		}
		return Envelope{}, fmt.Errorf("decode envelope %d: %w", r.line+1, err)
	}
	r.line++
	if err := env.Validate(); err != nil {
		return Envelope{}, fmt.Errorf("envelope %d: %w", r.line, err)
	}
	return env, nil
}

// Encode writes env as one JSON line.
func Encode(w io.Writer, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
