package elaborate

import (
	"bytes"
	"testing"

	"github.com/riverline-labs/tenor/internal/sourceprovider"
)

func elaborateMemory(t *testing.T, files map[string]string, root string) ([]byte, error) {
	t.Helper()
	return Elaborate(sourceprovider.NewMemory(files), root, Options{BundleID: "test-bundle"})
}

const basicContract = `
persona clerk

fact approved : Bool default false
fact x : Int

rule activation stratum 0 {
  when approved = true
  produce account_active : Bool = true
}
`

func TestElaborateIsDeterministic(t *testing.T) {
	files := map[string]string{"main.tenor": basicContract}
	a, err := elaborateMemory(t, files, "main.tenor")
	if err != nil {
		t.Fatalf("Elaborate: %v", err)
	}
	b, err := elaborateMemory(t, files, "main.tenor")
	if err != nil {
		t.Fatalf("Elaborate: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("two elaborations of the same sources must be byte-identical")
	}
}

func wantKind(t *testing.T, err error, kind string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got success", kind)
	}
	switch e := err.(type) {
	case *Error:
		if e.Kind != kind {
			t.Fatalf("expected %s, got %s: %v", kind, e.Kind, e)
		}
	case *ErrorList:
		for _, inner := range e.Errors {
			if inner.Kind == kind {
				return
			}
		}
		t.Fatalf("expected %s in error list, got: %v", kind, e)
	default:
		t.Fatalf("expected a typed elaborator error, got %T: %v", err, err)
	}
}

func TestImportCycleDetected(t *testing.T) {
	files := map[string]string{
		"a.tenor": `import "b.tenor"` + "\n" + `persona clerk`,
		"b.tenor": `import "a.tenor"` + "\n" + `persona ops`,
	}
	_, err := elaborateMemory(t, files, "a.tenor")
	wantKind(t, err, "ImportCycle")
	// The cycle message lists both files in traversal order.
	e := err.(*Error)
	if e.Msg == "" || !bytes.Contains([]byte(e.Msg), []byte("a.tenor")) || !bytes.Contains([]byte(e.Msg), []byte("b.tenor")) {
		t.Fatalf("cycle message should name both files: %q", e.Msg)
	}
}

func TestImportNotFound(t *testing.T) {
	files := map[string]string{"main.tenor": `import "missing.tenor"` + "\npersona clerk"}
	_, err := elaborateMemory(t, files, "main.tenor")
	wantKind(t, err, "ImportNotFound")
}

func TestTypeLibraryImportsForbidden(t *testing.T) {
	files := map[string]string{
		"main.tenor": `import "types.tenor"` + "\npersona clerk",
		"types.tenor": `import "other.tenor"
type LineItem = Record { sku: Text }`,
		"other.tenor": `persona ops`,
	}
	_, err := elaborateMemory(t, files, "main.tenor")
	wantKind(t, err, "TypeLibraryImportsForbidden")
}

func TestDuplicateIdRejected(t *testing.T) {
	files := map[string]string{"main.tenor": `
fact approved : Bool
fact approved : Int
`}
	_, err := elaborateMemory(t, files, "main.tenor")
	wantKind(t, err, "DuplicateId")
}

func TestTypeCycleDetected(t *testing.T) {
	files := map[string]string{"main.tenor": `
type A = Record { b: B }
type B = Record { a: A }
`}
	_, err := elaborateMemory(t, files, "main.tenor")
	wantKind(t, err, "TypeCycle")
}

func TestUnknownTypeRejected(t *testing.T) {
	files := map[string]string{"main.tenor": `fact item : Widget`}
	_, err := elaborateMemory(t, files, "main.tenor")
	wantKind(t, err, "UnknownType")
}

func TestStratumOrderViolation(t *testing.T) {
	files := map[string]string{"main.tenor": `
fact x : Int

rule r0 stratum 0 {
  when x > 0
  produce a : Bool = true
}

rule r1 stratum 0 {
  when verdict a
  produce b : Bool = true
}
`}
	_, err := elaborateMemory(t, files, "main.tenor")
	wantKind(t, err, "StratumOrderViolation")
}

func TestStratumDepthLimit(t *testing.T) {
	files := map[string]string{"main.tenor": `
fact x : Int

rule deep stratum 65 {
  when x > 0
  produce a : Bool = true
}
`}
	_, err := elaborateMemory(t, files, "main.tenor")
	wantKind(t, err, "StratumOrderViolation")

	_, err = Elaborate(sourceprovider.NewMemory(files), "main.tenor",
		Options{BundleID: "test-bundle", MaxStratumDepth: 100})
	if err != nil {
		t.Fatalf("stratum 65 must pass under a raised limit: %v", err)
	}
}

func TestDuplicateVerdictProducer(t *testing.T) {
	files := map[string]string{"main.tenor": `
fact x : Int

rule r0 stratum 0 {
  when x > 0
  produce a : Bool = true
}

rule r1 stratum 1 {
  when x > 1
  produce a : Bool = true
}
`}
	_, err := elaborateMemory(t, files, "main.tenor")
	wantKind(t, err, "DuplicateVerdictProducer")
}

func TestCurrencyMismatchRejected(t *testing.T) {
	files := map[string]string{"main.tenor": `
fact price : Money { currency: USD } default USD 10.00

rule r0 stratum 0 {
  when price > EUR 5.00
  produce a : Bool = true
}
`}
	_, err := elaborateMemory(t, files, "main.tenor")
	wantKind(t, err, "CurrencyMismatch")
}

func TestUnorderedComparisonRejected(t *testing.T) {
	files := map[string]string{"main.tenor": `
fact approved : Bool

rule r0 stratum 0 {
  when approved > false
  produce a : Bool = true
}
`}
	_, err := elaborateMemory(t, files, "main.tenor")
	wantKind(t, err, "UnorderedComparison")
}

func TestOperationOutcomeErrorCollision(t *testing.T) {
	files := map[string]string{"main.tenor": `
persona clerk

entity order {
  states: [draft, placed],
  initial: draft,
  transitions: [(draft, placed)]
}

operation place {
  personas: [clerk],
  effects: [(order, draft, placed)],
  errors: [approved],
  outcomes: [approved]
}
`}
	_, err := elaborateMemory(t, files, "main.tenor")
	wantKind(t, err, "OutcomeErrorCollision")
}

func TestEntityCycleRejected(t *testing.T) {
	files := map[string]string{"main.tenor": `
entity order {
  states: [draft, placed],
  initial: draft,
  transitions: [(draft, placed), (placed, draft)]
}
`}
	_, err := elaborateMemory(t, files, "main.tenor")
	wantKind(t, err, "EntityCycle")
}

func TestFlowOutcomeExhaustiveness(t *testing.T) {
	files := map[string]string{"main.tenor": `
persona clerk

entity order {
  states: [draft, placed, released],
  initial: draft,
  transitions: [(draft, placed), (draft, released)]
}

operation decide {
  personas: [clerk],
  effects: [(order, draft, placed, approved), (order, draft, released, rejected)],
  errors: [],
  outcomes: [approved, rejected]
}

flow intake {
  entry: s1,
  step s1 operation decide persona clerk {
    approved: terminal(done)
  }
}
`}
	_, err := elaborateMemory(t, files, "main.tenor")
	wantKind(t, err, "ExhaustivenessViolation")
}

func TestImportDiamondParsesOnce(t *testing.T) {
	files := map[string]string{
		"main.tenor": `import "left.tenor"
import "right.tenor"
persona clerk`,
		"left.tenor":   `import "shared.tenor"` + "\npersona ops",
		"right.tenor":  `import "shared.tenor"` + "\npersona audit",
		"shared.tenor": `fact approved : Bool default false`,
	}
	out, err := elaborateMemory(t, files, "main.tenor")
	if err != nil {
		t.Fatalf("Elaborate: %v", err)
	}
	if !bytes.Contains(out, []byte(`"id":"approved"`)) {
		t.Fatal("shared fact missing from bundle")
	}
}
