// Package conformance implements the suite runner behind `tenor test`:
// a directory of end-to-end cases, each elaborating a contract,
// assembling facts, evaluating rules (and optionally a flow), and comparing
// the canonical output envelope against a golden file.
package conformance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/riverline-labs/tenor/internal/elaborate"
	"github.com/riverline-labs/tenor/internal/evaluator"
	"github.com/riverline-labs/tenor/internal/interchange"
	"github.com/riverline-labs/tenor/internal/parser"
	"github.com/riverline-labs/tenor/internal/sourceprovider"
)

// Manifest is a case's optional case.yaml: which file is the root, what to
// execute, and whether the case expects a failure instead of output.
type Manifest struct {
	Root          string `yaml:"root"`
	Flow          string `yaml:"flow"`
	Persona       string `yaml:"persona"`
	ExpectedError string `yaml:"expected_error"`
}

// Result is one case's verdict.
type Result struct {
	Case   string
	Passed bool
	Detail string
}

// RunSuite executes every immediate subdirectory of suiteDir as a case and
// returns one Result per case, sorted by case name.
func RunSuite(suiteDir string) ([]Result, error) {
	entries, err := os.ReadDir(suiteDir)
	if err != nil {
		return nil, fmt.Errorf("reading suite dir: %w", err)
	}
	var results []Result
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		results = append(results, runCase(filepath.Join(suiteDir, e.Name()), e.Name()))
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Case < results[j].Case })
	return results, nil
}

func runCase(dir, name string) Result {
	m := Manifest{Root: "main.tenor"}
	if raw, err := os.ReadFile(filepath.Join(dir, "case.yaml")); err == nil {
		if err := yaml.Unmarshal(raw, &m); err != nil {
			return Result{Case: name, Detail: fmt.Sprintf("bad case.yaml: %v", err)}
		}
		if m.Root == "" {
			m.Root = "main.tenor"
		}
	}

	out, err := evalCase(dir, m)
	if m.ExpectedError != "" {
		if err == nil {
			return Result{Case: name, Detail: fmt.Sprintf("expected error %q, case succeeded", m.ExpectedError)}
		}
		if !errorKindIs(err, m.ExpectedError) {
			return Result{Case: name, Detail: fmt.Sprintf("expected error %q, got: %v", m.ExpectedError, err)}
		}
		return Result{Case: name, Passed: true}
	}
	if err != nil {
		return Result{Case: name, Detail: err.Error()}
	}

	expected, err := os.ReadFile(filepath.Join(dir, "expected.json"))
	if err != nil {
		return Result{Case: name, Detail: "missing expected.json"}
	}
	want, err := recanonicalize(expected)
	if err != nil {
		return Result{Case: name, Detail: fmt.Sprintf("bad expected.json: %v", err)}
	}
	if !bytes.Equal(out, want) {
		return Result{Case: name, Detail: fmt.Sprintf("output mismatch\n  want: %s\n  got:  %s", want, out)}
	}
	return Result{Case: name, Passed: true}
}

func evalCase(dir string, m Manifest) ([]byte, error) {
	provider := sourceprovider.NewFS(dir)
	bundle, err := elaborate.Elaborate(provider, m.Root, elaborate.Options{BundleID: "conformance"})
	if err != nil {
		return nil, err
	}

	contract, err := evaluator.LoadContract(bundle)
	if err != nil {
		return nil, err
	}

	inputs := map[string]any{}
	seeds := evaluator.EntityStates{}
	if raw, err := os.ReadFile(filepath.Join(dir, "facts.json")); err == nil {
		inputs, seeds, err = evaluator.ParseFactsFile(raw)
		if err != nil {
			return nil, err
		}
	}

	facts, err := evaluator.Assemble(contract, inputs)
	if err != nil {
		return nil, err
	}
	verdicts, err := evaluator.EvalStrata(contract, facts)
	if err != nil {
		return nil, err
	}

	var envelope map[string]any
	if m.Flow != "" {
		states := evaluator.SeedEntityStates(contract, seeds)
		snapshot := evaluator.Snapshot{Facts: facts, Verdicts: verdicts}
		res, err := evaluator.ExecuteFlow(contract, m.Flow, m.Persona, snapshot, states, evaluator.FlowOptions{})
		if err != nil {
			return nil, err
		}
		envelope = evaluator.RenderFlowResult(verdicts, res)
	} else {
		envelope = evaluator.RenderVerdicts(verdicts)
	}
	return interchange.CanonicalMarshal(envelope)
}

// recanonicalize re-encodes a hand-written golden file through the same
// sorted-key encoder the runner uses, so formatting differences never fail
// a case.
func recanonicalize(doc []byte) ([]byte, error) {
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return nil, err
	}
	return interchange.CanonicalMarshal(v)
}

func errorKindIs(err error, kind string) bool {
	switch e := err.(type) {
	case *evaluator.Error:
		return string(e.Kind) == kind
	case *parser.Error:
		return e.Kind == kind
	case *elaborate.Error:
		return e.Kind == kind
	case *elaborate.ErrorList:
		for _, inner := range e.Errors {
			if inner.Kind == kind {
				return true
			}
		}
	}
	return false
}
