package conformance

import (
	"os"
	"path/filepath"
	"testing"
)

func writeCase(t *testing.T, suite, name string, files map[string]string) {
	t.Helper()
	dir := filepath.Join(suite, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	for fname, content := range files {
		if err := os.WriteFile(filepath.Join(dir, fname), []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
}

func TestRunSuite(t *testing.T) {
	suite := t.TempDir()

	writeCase(t, suite, "basic_verdict", map[string]string{
		"main.tenor": `
fact approved : Bool default false

rule activation stratum 0 {
  when approved = true
  produce account_active : Bool = true
}
`,
		"facts.json": `{"approved": true}`,
		"expected.json": `{"verdicts":[{"type":"account_active","payload":true,
			"provenance":{"rule":"activation","stratum":0,"facts_used":["approved"],"verdicts_used":[]}}]}`,
	})

	writeCase(t, suite, "import_cycle", map[string]string{
		"main.tenor":  `import "other.tenor"` + "\npersona clerk",
		"other.tenor": `import "main.tenor"` + "\npersona ops",
		"case.yaml":   "expected_error: ImportCycle\n",
	})

	writeCase(t, suite, "broken_golden", map[string]string{
		"main.tenor": `
fact approved : Bool default false

rule activation stratum 0 {
  when approved = true
  produce account_active : Bool = true
}
`,
		"facts.json":    `{"approved": true}`,
		"expected.json": `{"verdicts":[]}`,
	})

	results, err := RunSuite(suite)
	if err != nil {
		t.Fatalf("RunSuite: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("want 3 results, got %d", len(results))
	}

	byName := map[string]Result{}
	for _, r := range results {
		byName[r.Case] = r
	}
	if !byName["basic_verdict"].Passed {
		t.Errorf("basic_verdict should pass: %s", byName["basic_verdict"].Detail)
	}
	if !byName["import_cycle"].Passed {
		t.Errorf("import_cycle should pass: %s", byName["import_cycle"].Detail)
	}
	if byName["broken_golden"].Passed {
		t.Error("broken_golden must fail on output mismatch")
	}
}

func TestRunSuiteFlowCase(t *testing.T) {
	suite := t.TempDir()
	writeCase(t, suite, "flow_outcome", map[string]string{
		"main.tenor": `
persona clerk

entity order {
  states: [draft, placed],
  initial: draft,
  transitions: [(draft, placed)]
}

operation place {
  personas: [clerk],
  effects: [(order, draft, placed)],
  errors: [],
  outcomes: [placed]
}

flow intake {
  entry: s1,
  step s1 operation place persona clerk {
    placed: terminal(done)
  }
}
`,
		"case.yaml": "flow: intake\npersona: clerk\n",
		"expected.json": `{"verdicts":[],"flow_outcome":"done",
			"steps_executed":[{"step":"s1","kind":"OperationStep","persona":"clerk","outcome":"placed",
				"effects":[{"entity":"order","from":"draft","to":"placed"}]}],
			"entity_state_changes":[{"entity":"order","from":"draft","to":"placed"}]}`,
	})

	results, err := RunSuite(suite)
	if err != nil {
		t.Fatalf("RunSuite: %v", err)
	}
	if len(results) != 1 || !results[0].Passed {
		t.Fatalf("flow case should pass: %+v", results)
	}
}
