package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/gameroom/internal/address"
)

// Snapshot renders a result as stable text: one line per step, then one
// line per ledger address.
//
//	# trace
//	flow[0] message 02a1a1 OK evt-000002 set f8daf5...
//	# ledger
//	f8daf5... chat-1,Chat Created,TEXT,0,-1,,,
func Snapshot(name string, result *Result) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# scenario %s\n# trace\n", name)
	for _, ev := range result.Trace {
		fmt.Fprintf(&b, "%s[%d] %s %s %s", ev.Phase, ev.Step, ev.Family, shortSigner(ev.Signer), ev.Outcome)
		if ev.EventID != "" {
			fmt.Fprintf(&b, " %s", ev.EventID)
		}
		for _, c := range ev.Changes {
			fmt.Fprintf(&b, " [%s]", c)
		}
		b.WriteByte('\n')
	}
	b.WriteString("# ledger\n")
	for _, line := range result.Ledger {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func shortSigner(signer string) string {
	if signer == "" {
		return "-"
	}
	return address.Short(signer)
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an already computed result against its golden
// file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, Snapshot(name, result))
}
