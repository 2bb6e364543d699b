package evaluator

import (
	"testing"
)

func execFlow(t *testing.T, c *Contract, flowID, persona string, inputs map[string]any, seed EntityStates) (FlowResult, error) {
	t.Helper()
	facts, err := Assemble(c, inputs)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	verdicts, err := EvalStrata(c, facts)
	if err != nil {
		t.Fatalf("EvalStrata: %v", err)
	}
	states := SeedEntityStates(c, seed)
	return ExecuteFlow(c, flowID, persona, Snapshot{Facts: facts, Verdicts: verdicts}, states, FlowOptions{})
}

const frozenVerdictContract = `
persona clerk

fact submitted : Bool default true

entity order {
  states: [draft, pending, approved],
  initial: draft,
  transitions: [(draft, pending), (pending, approved)]
}

rule review stratum 0 {
  when submitted = true
  produce needs_review : Bool = true
}

operation submit {
  personas: [clerk],
  effects: [(order, draft, pending)],
  errors: [],
  outcomes: [submitted]
}

flow intake {
  entry: s_submit,
  step s_submit operation submit persona clerk {
    submitted: check
  },
  step check branch verdict needs_review {
    true: terminal(review),
    false: terminal(auto)
  }
}
`

func TestFlowFrozenVerdictSnapshot(t *testing.T) {
	c := compile(t, frozenVerdictContract)
	res, err := execFlow(t, c, "intake", "clerk", map[string]any{}, nil)
	if err != nil {
		t.Fatalf("ExecuteFlow: %v", err)
	}
	// The operation mutated entity state, but the branch still reads the
	// verdict set captured at flow initiation.
	if res.Outcome != "review" {
		t.Fatalf("branch must see the frozen needs_review verdict, got outcome %q", res.Outcome)
	}
	if len(res.EntityStateChanges) != 1 || res.EntityStateChanges[0].To != "pending" {
		t.Fatalf("unexpected entity changes %#v", res.EntityStateChanges)
	}
	if len(res.StepRecords) != 2 {
		t.Fatalf("want 2 step records, got %#v", res.StepRecords)
	}
	if res.StepRecords[1].Branch == nil || !*res.StepRecords[1].Branch {
		t.Fatalf("branch record should note the true path: %#v", res.StepRecords[1])
	}
}

const outcomeRoutingContract = `
persona clerk

entity order {
  states: [draft, placed, refused],
  initial: draft,
  transitions: [(draft, placed), (placed, refused)]
}

operation decide {
  personas: [clerk],
  effects: [(order, draft, placed, approved), (order, placed, refused, rejected)],
  errors: [],
  outcomes: [approved, rejected]
}

flow decision {
  entry: s1,
  step s1 operation decide persona clerk {
    approved: release,
    rejected: terminal(denied)
  },
  step release handoff persona clerk next terminal(released)
}
`

func TestMultiOutcomeRouting(t *testing.T) {
	c := compile(t, outcomeRoutingContract)

	res, err := execFlow(t, c, "decision", "clerk", map[string]any{}, nil)
	if err != nil {
		t.Fatalf("ExecuteFlow: %v", err)
	}
	if res.Outcome != "released" {
		t.Fatalf("draft order must take the approved path, got %q", res.Outcome)
	}

	res, err = execFlow(t, c, "decision", "clerk", map[string]any{}, EntityStates{"order": "placed"})
	if err != nil {
		t.Fatalf("ExecuteFlow: %v", err)
	}
	if res.Outcome != "denied" {
		t.Fatalf("placed order must take the rejected path, got %q", res.Outcome)
	}
}

func TestOperationPersonaGate(t *testing.T) {
	c := compile(t, outcomeRoutingContract)
	facts, _ := Assemble(c, map[string]any{})
	verdicts, _ := EvalStrata(c, facts)
	states := SeedEntityStates(c, nil)

	_, err := ExecuteOperation(c, "decide", "intruder", Snapshot{Facts: facts, Verdicts: verdicts}, states)
	ev, ok := err.(*Error)
	if !ok || ev.Kind != ErrPersonaRejected {
		t.Fatalf("expected PersonaRejected, got %v", err)
	}
	if states["order"] != "draft" {
		t.Fatal("rejected operation must not mutate entity state")
	}
}

func TestOperationPreconditionReadsSnapshot(t *testing.T) {
	c := compile(t, `
persona clerk

fact balance : Int default 0

entity account {
  states: [open, frozen],
  initial: open,
  transitions: [(open, frozen)]
}

operation freeze {
  personas: [clerk],
  precondition: balance < 0,
  effects: [(account, open, frozen)],
  errors: [],
  outcomes: [frozen]
}
`)
	facts, _ := Assemble(c, map[string]any{"balance": 10})
	verdicts, _ := EvalStrata(c, facts)
	states := SeedEntityStates(c, nil)

	_, err := ExecuteOperation(c, "freeze", "clerk", Snapshot{Facts: facts, Verdicts: verdicts}, states)
	ev, ok := err.(*Error)
	if !ok || ev.Kind != ErrPreconditionFailed {
		t.Fatalf("expected PreconditionFailed, got %v", err)
	}

	facts, _ = Assemble(c, map[string]any{"balance": -5})
	res, err := ExecuteOperation(c, "freeze", "clerk", Snapshot{Facts: facts, Verdicts: verdicts}, states)
	if err != nil {
		t.Fatalf("ExecuteOperation: %v", err)
	}
	if res.Outcome != "frozen" || states["account"] != "frozen" {
		t.Fatalf("unexpected result %#v, states %v", res, states)
	}
}

const subFlowContract = `
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

flow inner {
  entry: s1,
  step s1 operation place persona clerk {
    placed: terminal(done)
  }
}

flow outer {
  entry: call,
  step call subflow inner {
    on_success: wrap,
    on_failure: terminal(failed)
  },
  step wrap handoff persona clerk next terminal(completed)
}
`

func TestSubFlowInheritsSnapshotAndStates(t *testing.T) {
	c := compile(t, subFlowContract)
	res, err := execFlow(t, c, "outer", "clerk", map[string]any{}, nil)
	if err != nil {
		t.Fatalf("ExecuteFlow: %v", err)
	}
	if res.Outcome != "completed" {
		t.Fatalf("unexpected outcome %q", res.Outcome)
	}
	// The sub-flow's operation mutated the shared entity-state map.
	if len(res.EntityStateChanges) != 1 || res.EntityStateChanges[0].Entity != "order" {
		t.Fatalf("sub-flow changes must surface on the parent: %#v", res.EntityStateChanges)
	}
}

func TestSubFlowFailureRoutesOnFailure(t *testing.T) {
	c := compile(t, subFlowContract)
	// Seed the entity past the transition's source state so the inner
	// operation fails and the sub-flow reports failure.
	res, err := execFlow(t, c, "outer", "clerk", map[string]any{}, EntityStates{"order": "placed"})
	if err != nil {
		t.Fatalf("ExecuteFlow: %v", err)
	}
	if res.Outcome != "failed" {
		t.Fatalf("unexpected outcome %q", res.Outcome)
	}
}

const parallelContract = `
persona clerk

entity left_leg {
  states: [a0, a1],
  initial: a0,
  transitions: [(a0, a1)]
}

entity right_leg {
  states: [b0, b1],
  initial: b0,
  transitions: [(b0, b1)]
}

operation move_left {
  personas: [clerk],
  effects: [(left_leg, a0, a1)],
  errors: [],
  outcomes: [moved]
}

operation move_right {
  personas: [clerk],
  effects: [(right_leg, b0, b1)],
  errors: [],
  outcomes: [moved]
}

flow fanout {
  entry: p,
  step p parallel {
    branch left entry l1 {
      step l1 operation move_left persona clerk { moved: terminal(ok) }
    },
    branch right entry r1 {
      step r1 operation move_right persona clerk { moved: terminal(ok) }
    },
    join { all_success: terminal(done), any_failure: terminal(failed) }
  }
}
`

func TestParallelBranchesMergeDisjointEntities(t *testing.T) {
	c := compile(t, parallelContract)
	res, err := execFlow(t, c, "fanout", "clerk", map[string]any{}, nil)
	if err != nil {
		t.Fatalf("ExecuteFlow: %v", err)
	}
	if res.Outcome != "done" {
		t.Fatalf("unexpected outcome %q", res.Outcome)
	}
	if len(res.EntityStateChanges) != 2 {
		t.Fatalf("both branch effects must merge: %#v", res.EntityStateChanges)
	}
}

func TestParallelAnyFailureTakesPrecedence(t *testing.T) {
	c := compile(t, parallelContract)
	// right_leg starts past its transition source, so the right branch
	// fails while the left succeeds.
	res, err := execFlow(t, c, "fanout", "clerk", map[string]any{}, EntityStates{"right_leg": "b1"})
	if err != nil {
		t.Fatalf("ExecuteFlow: %v", err)
	}
	if res.Outcome != "failed" {
		t.Fatalf("any_failure must take precedence, got %q", res.Outcome)
	}
}

const conflictingParallelContract = `
persona clerk

entity shared {
  states: [s0, s1],
  initial: s0,
  transitions: [(s0, s1)]
}

operation move_shared {
  personas: [clerk],
  effects: [(shared, s0, s1)],
  errors: [],
  outcomes: [moved]
}

flow clash {
  entry: p,
  step p parallel {
    branch one entry l1 {
      step l1 operation move_shared persona clerk { moved: terminal(ok) }
    },
    branch two entry r1 {
      step r1 operation move_shared persona clerk { moved: terminal(ok) }
    },
    join { all_success: terminal(done), any_failure: terminal(failed) }
  }
}
`

func TestParallelCoMutationIsJoinConflict(t *testing.T) {
	c := compile(t, conflictingParallelContract)
	_, err := execFlow(t, c, "clash", "clerk", map[string]any{}, nil)
	ev, ok := err.(*Error)
	if !ok || ev.Kind != ErrMergeConflict {
		t.Fatalf("expected MergeConflict, got %v", err)
	}
}

const failureHandlerContract = `
persona clerk
persona manager

entity order {
  states: [draft, placed, reverted],
  initial: draft,
  transitions: [(draft, placed), (draft, reverted)]
}

operation place {
  personas: [clerk],
  effects: [(order, draft, placed)],
  errors: [],
  outcomes: [placed]
}

operation revert {
  personas: [manager],
  effects: [(order, draft, reverted)],
  errors: [],
  outcomes: [reverted]
}

flow guarded {
  entry: s1,
  step s1 operation place persona clerk {
    placed: terminal(done),
    on_failure: terminate(aborted)
  }
}

flow compensated {
  entry: s1,
  step s1 operation place persona clerk {
    placed: terminal(done),
    on_failure: compensate([(revert, manager)], terminate(rolled_back))
  }
}

flow escalated {
  entry: s1,
  step s1 operation place persona clerk {
    placed: terminal(done),
    on_failure: escalate(manager, notify)
  },
  step notify handoff persona manager next terminal(handed_off)
}
`

func TestTerminateHandler(t *testing.T) {
	c := compile(t, failureHandlerContract)
	res, err := execFlow(t, c, "guarded", "clerk", map[string]any{}, EntityStates{"order": "placed"})
	if err != nil {
		t.Fatalf("ExecuteFlow: %v", err)
	}
	if res.Outcome != "aborted" {
		t.Fatalf("unexpected outcome %q", res.Outcome)
	}
	if res.StepRecords[0].Error != string(ErrEntityNotInSourceState) {
		t.Fatalf("step record should carry the failure kind: %#v", res.StepRecords[0])
	}
}

func TestCompensateHandlerRunsStepsThenTerminates(t *testing.T) {
	c := compile(t, failureHandlerContract)
	// Seed "reverted" so place fails; the compensation op also fails (the
	// entity is not in draft), which is recorded but still terminates with
	// the handler's outcome.
	res, err := execFlow(t, c, "compensated", "clerk", map[string]any{}, EntityStates{"order": "reverted"})
	if err != nil {
		t.Fatalf("ExecuteFlow: %v", err)
	}
	if res.Outcome != "rolled_back" {
		t.Fatalf("unexpected outcome %q", res.Outcome)
	}
	var sawCompensation bool
	for _, rec := range res.StepRecords {
		if rec.Kind == "CompensateStep" && rec.Step == "revert" {
			sawCompensation = true
		}
	}
	if !sawCompensation {
		t.Fatalf("compensation step missing from trace: %#v", res.StepRecords)
	}
}

func TestEscalateHandlerHandsOffAndContinues(t *testing.T) {
	c := compile(t, failureHandlerContract)
	res, err := execFlow(t, c, "escalated", "clerk", map[string]any{}, EntityStates{"order": "placed"})
	if err != nil {
		t.Fatalf("ExecuteFlow: %v", err)
	}
	if res.Outcome != "handed_off" {
		t.Fatalf("unexpected outcome %q", res.Outcome)
	}
}

func TestFlowIterationBudget(t *testing.T) {
	// A cyclic flow is hand-built as bundle JSON: the elaborator would
	// reject it, but the evaluator's budget is the defense in depth for
	// malformed bundles arriving over the trust boundary.
	c, err := LoadContract([]byte(`{"id":"b","kind":"Bundle","tenor":"1.0","tenor_version":"1.0.9","constructs":[
		{"kind":"Persona","id":"clerk","tenor":"1.0","provenance":{"file":"f","line":1}},
		{"kind":"Flow","id":"spin","tenor":"1.0","provenance":{"file":"f","line":2},
		 "entry":"a",
		 "steps":{
		   "a":{"kind":"HandoffStep","id":"a","persona":"clerk","next":{"step":"b"}},
		   "b":{"kind":"HandoffStep","id":"b","persona":"clerk","next":{"step":"a"}}
		 }}
	]}`))
	if err != nil {
		t.Fatalf("LoadContract: %v", err)
	}
	facts := &FactSet{values: map[string]Value{}}
	_, err = ExecuteFlow(c, "spin", "clerk", Snapshot{Facts: facts, Verdicts: newVerdictSet()}, EntityStates{}, FlowOptions{MaxIterations: 25})
	ev, ok := err.(*Error)
	if !ok || ev.Kind != ErrFlowIterationBudget {
		t.Fatalf("expected FlowIterationBudgetExceeded, got %v", err)
	}
}

func TestRenderFlowResultEnvelope(t *testing.T) {
	c := compile(t, frozenVerdictContract)
	facts, _ := Assemble(c, map[string]any{})
	verdicts, _ := EvalStrata(c, facts)
	states := SeedEntityStates(c, nil)
	res, err := ExecuteFlow(c, "intake", "clerk", Snapshot{Facts: facts, Verdicts: verdicts}, states, FlowOptions{})
	if err != nil {
		t.Fatalf("ExecuteFlow: %v", err)
	}

	env := RenderFlowResult(verdicts, res)
	if env["flow_outcome"] != "review" {
		t.Fatalf("unexpected flow_outcome %v", env["flow_outcome"])
	}
	if len(env["steps_executed"].([]any)) != 2 {
		t.Fatalf("unexpected steps_executed %v", env["steps_executed"])
	}
	if len(env["verdicts"].([]any)) != 1 {
		t.Fatalf("unexpected verdicts %v", env["verdicts"])
	}
}
