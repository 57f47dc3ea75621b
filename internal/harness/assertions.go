package harness

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/gameroom/internal/address"
	"github.com/roach88/gameroom/internal/bucket"
	"github.com/roach88/gameroom/internal/family/message"
	"github.com/roach88/gameroom/internal/family/status"
	"github.com/roach88/gameroom/internal/ledger"
	"github.com/roach88/gameroom/internal/projection"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Only allows alphanumeric and underscore, must start with letter or underscore.
// This prevents SQL injection via identifier interpolation.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %q -> %s\n", i+1, ev.Family, address.Short(ev.Signer), ev.Payload, ev.Outcome)
		}
	}
	return buf.String()
}

// AssertionContext provides the state assertions read from.
type AssertionContext struct {
	Ctx        context.Context
	Circuit    string
	Ledger     ledger.Backend
	Projection *projection.Store
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertEntity:
			err = assertEntity(actx, a)
		case AssertLedgerKeys:
			err = assertLedgerKeys(actx, a)
		case AssertOutcomeCount:
			err = assertOutcomeCount(result, a)
		case AssertNotifications:
			err = assertNotifications(actx, a)
		case AssertFinalState:
			err = assertFinalState(actx, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			if ae, ok := err.(*AssertionError); ok {
				ae.Trace = result.Trace
			}
			errors = append(errors, err.Error())
		}
	}
	return errors
}

// loadCanonical returns the canonical string of one entity in ledger
// state, decoding the whole bucket so collisions are handled.
func loadCanonical(actx *AssertionContext, fam, name string) (string, bool, error) {
	var addr string
	switch fam {
	case message.FamilyName:
		addr = message.Address(name)
	case status.FamilyName:
		addr = status.Address(name)
	default:
		return "", false, fmt.Errorf("unknown family %q", fam)
	}

	raw, ok, err := actx.Ledger.Get(actx.Ctx, addr)
	if err != nil || !ok {
		return "", false, err
	}

	switch fam {
	case message.FamilyName:
		entities, err := bucket.Decode(raw, message.Parse)
		if err != nil {
			return "", false, err
		}
		e, ok := entities[name]
		return e.Canonical(), ok, nil
	default:
		entities, err := bucket.Decode(raw, status.Parse)
		if err != nil {
			return "", false, err
		}
		e, ok := entities[name]
		return e.Canonical(), ok, nil
	}
}

func assertEntity(actx *AssertionContext, a Assertion) error {
	got, ok, err := loadCanonical(actx, a.Family, a.Name)
	if err != nil {
		return fmt.Errorf("entity %s/%s: %w", a.Family, a.Name, err)
	}
	switch {
	case a.Absent && ok:
		return &AssertionError{
			Type:     AssertEntity,
			Expected: fmt.Sprintf("%s %q absent", a.Family, a.Name),
			Actual:   got,
		}
	case !a.Absent && !ok:
		return &AssertionError{
			Type:     AssertEntity,
			Expected: a.Canonical,
			Actual:   fmt.Sprintf("%s %q not found", a.Family, a.Name),
		}
	case !a.Absent && got != a.Canonical:
		return &AssertionError{Type: AssertEntity, Expected: a.Canonical, Actual: got}
	}
	return nil
}

func assertLedgerKeys(actx *AssertionContext, a Assertion) error {
	keys, err := actx.Ledger.Keys(actx.Ctx)
	if err != nil {
		return fmt.Errorf("ledger keys: %w", err)
	}
	if len(keys) != a.Count {
		return &AssertionError{
			Type:     AssertLedgerKeys,
			Expected: fmt.Sprintf("%d addresses", a.Count),
			Actual:   fmt.Sprintf("%d addresses: %v", len(keys), keys),
		}
	}
	return nil
}

func assertOutcomeCount(result *Result, a Assertion) error {
	if got := result.Outcomes()[a.Outcome]; got != a.Count {
		return &AssertionError{
			Type:     AssertOutcomeCount,
			Expected: fmt.Sprintf("%d flow steps with outcome %s", a.Count, a.Outcome),
			Actual:   fmt.Sprintf("%d", got),
		}
	}
	return nil
}

func assertNotifications(actx *AssertionContext, a Assertion) error {
	list, err := actx.Projection.ListNotifications(actx.Ctx, actx.Circuit, projection.Page{Limit: projection.MaxLimit})
	if err != nil {
		return fmt.Errorf("list notifications: %w", err)
	}
	got := make([]string, 0, len(list.Items))
	for _, n := range list.Items {
		got = append(got, n.Type)
	}
	want := a.Types
	if want == nil {
		want = []string{}
	}
	if !slices.Equal(got, want) {
		return &AssertionError{
			Type:     AssertNotifications,
			Expected: fmt.Sprintf("%v", want),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

// assertFinalState checks that exactly one projection row matches Where
// and that it holds the expected values (subset semantics). The circuit
// filter is added automatically for tables that carry one.
//
// Security: Table and column names are validated against a whitelist pattern
// to prevent SQL injection via identifier interpolation.
func assertFinalState(actx *AssertionContext, a Assertion) error {
	if !validIdentifier.MatchString(a.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", a.Table, validIdentifier.String())
	}

	where := make(map[string]any, len(a.Where)+1)
	for k, v := range a.Where {
		where[k] = v
	}
	if _, ok := where["circuit_id"]; !ok && a.Table != "gameroom_notification" {
		where["circuit_id"] = actx.Circuit
	}

	whereSQL, whereArgs, err := buildWhereClause(where)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s", a.Table, whereSQL)

	rows, err := actx.Projection.DB().QueryContext(actx.Ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", a.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	if !rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", a.Table, formatWhereClause(where)),
			Actual:   "row not found",
		}
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	// Multiple matching rows would make the assertion ambiguous.
	if rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", a.Table, formatWhereClause(where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	actual := make(map[string]any, len(columns))
	for i, col := range columns {
		actual[col] = values[i]
	}

	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		want := a.Expect[key]
		got, exists := actual[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, columns),
			}
		}
		if !stateValuesEqual(want, got) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, want, want),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, got, got),
			}
		}
	}
	return nil
}

// buildWhereClause constructs a parameterized WHERE clause. Keys are sorted
// for determinism.
func buildWhereClause(where map[string]any) (string, []any, error) {
	keys := make([]string, 0, len(where))
	for k := range where {
		if !validIdentifier.MatchString(k) {
			return "", nil, fmt.Errorf("invalid column name %q: must match pattern %s", k, validIdentifier.String())
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		if where[k] == nil {
			conds = append(conds, k+" IS NULL")
			continue
		}
		conds = append(conds, k+" = ?")
		args = append(args, where[k])
	}
	return strings.Join(conds, " AND "), args, nil
}

func formatWhereClause(where map[string]any) string {
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, ", ")
}

// stateValuesEqual compares a YAML value with a scanned SQLite value.
// SQLite returns int64 for integers, []byte or string for text, and may
// return booleans as 0/1.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}

	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}

	switch exp := expected.(type) {
	case string:
		got, ok := actual.(string)
		return ok && exp == got
	case int:
		return intValue(actual, int64(exp))
	case int64:
		return intValue(actual, exp)
	case bool:
		switch got := actual.(type) {
		case bool:
			return exp == got
		case int64:
			return exp == (got != 0)
		}
		return false
	}
	return reflect.DeepEqual(expected, actual)
}

func intValue(actual any, want int64) bool {
	switch got := actual.(type) {
	case int64:
		return got == want
	case int:
		return int64(got) == want
	}
	return false
}
