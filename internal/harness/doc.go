// Package harness runs gameroom conformance scenarios.
//
// A scenario submits transactions to an in-memory ledger, feeds every
// committed event to a projector over an in-memory SQLite projection and
// then checks the outcome.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	circuit: gameroom-test        # optional
//	setup:
//	  - contract: message         # registers the family contract
//	  - family: message
//	    signer: 02a1...
//	    payload: "chat-1,create,"
//	flow:
//	  - family: message
//	    signer: 02b2...
//	    payload: "chat-1,add,hello"
//	    expect:
//	      outcome: OK
//	assertions:
//	  - type: entity
//	    family: message
//	    name: chat-1
//	    canonical: "chat-1,hello,TEXT,1,0,02b2...,02b2...,"
//	  - type: final_state
//	    table: messages
//	    where: { name: chat-1 }
//	    expect: { content: hello }
//
// # Assertion Types
//
//   - entity: an entity's canonical string, or absent: true
//   - ledger_keys: number of addresses in ledger state
//   - outcome_count: number of flow steps with an outcome
//   - notifications: the exact ordered notification types
//   - final_state: a projection row matches expected columns
//
// # Deterministic Testing
//
// Event ids come from a sequence generator (evt-000001, ...) and projection
// timestamps from testutil.DeterministicClock, so the trace and the ledger
// snapshot are byte-identical across runs and suitable for golden files.
package harness
