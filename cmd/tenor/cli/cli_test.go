package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	RootCmd.SetOut(buf)
	RootCmd.SetErr(buf)
	RootCmd.SetArgs(args)
	err := RootCmd.Execute()
	return buf.String(), err
}

const cliContract = `
fact approved : Bool default false

rule activation stratum 0 {
  when approved = true
  produce account_active : Bool = true
}
`

func TestElaborateValidateEvalDiff(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "main.tenor")
	if err := os.WriteFile(src, []byte(cliContract), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	bundle := filepath.Join(dir, "bundle.json")

	if _, err := runCLI(t, "elaborate", src, "-o", bundle); err != nil {
		t.Fatalf("elaborate: %v", err)
	}
	if _, err := os.Stat(bundle); err != nil {
		t.Fatalf("bundle not written: %v", err)
	}

	out, err := runCLI(t, "validate", bundle)
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "valid") {
		t.Fatalf("unexpected validate output %q", out)
	}

	facts := filepath.Join(dir, "facts.json")
	if err := os.WriteFile(facts, []byte(`{"approved": true}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	out, err = runCLI(t, "eval", bundle, "--facts", facts)
	if err != nil {
		t.Fatalf("eval: %v\n%s", err, out)
	}
	if !strings.Contains(out, `"account_active"`) {
		t.Fatalf("eval output missing verdict: %s", out)
	}

	out, err = runCLI(t, "diff", bundle, bundle)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if !strings.Contains(out, "identical") {
		t.Fatalf("self-diff should be identical: %s", out)
	}
}

func TestSchemaCommand(t *testing.T) {
	out, err := runCLI(t, "schema")
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	if !strings.Contains(out, "2020-12") {
		t.Fatalf("schema output missing draft marker: %s", out)
	}
}

func TestElaborateReportsErrorWithLocation(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bad.tenor")
	if err := os.WriteFile(src, []byte("fact approved : Bool\nfact approved : Int\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err := runCLI(t, "elaborate", src)
	if err == nil {
		t.Fatal("expected duplicate-id failure")
	}
	if !strings.Contains(err.Error(), "DuplicateId") {
		t.Fatalf("error should carry the machine-readable kind: %v", err)
	}
	if !strings.Contains(err.Error(), "bad.tenor:2:") {
		t.Fatalf("error should carry the file:line location: %v", err)
	}
}
