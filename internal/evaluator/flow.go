package evaluator

// StepRecord is one entry of a flow's execution trace: the step id,
// its kind, and whatever the step produced — an operation result, a branch
// decision, or a persona transition.
type StepRecord struct {
	Step    string
	Kind    string
	Outcome string         // operation outcome label, if any
	Persona string         // persona acting at this step
	Branch  *bool          // BranchStep decision
	Effects []EffectRecord // operation effects applied at this step
	Error   string         // error kind when the step failed and was handled
}

// FlowResult is execute_flow's return value.
type FlowResult struct {
	FlowID             string
	Outcome            string
	InitiatingPersona  string
	StepRecords        []StepRecord
	EntityStateChanges []EffectRecord
}

// FlowOptions carries the host-configurable iteration budget: a
// safety net against malformed cyclic flows, not a wall-clock timer.
type FlowOptions struct {
	MaxIterations int
}

const defaultMaxIterations = 10000

// flowRun threads the per-execution mutable pieces through the walk: the
// shared step counter (shared with sub-flows so nested cycles cannot dodge
// the budget) and the accumulated trace.
type flowRun struct {
	contract *Contract
	snapshot Snapshot
	budget   int
	steps    int
	records  []StepRecord
	changes  []EffectRecord
}

// ExecuteFlow walks the step graph: capture nothing — the caller hands in the
// already-frozen Snapshot — and walk the step graph from entry, mutating
// only the entity-state map. Verdicts are never recomputed mid-flow.
func ExecuteFlow(c *Contract, flowID, persona string, snapshot Snapshot, states EntityStates, opts FlowOptions) (FlowResult, error) {
	budget := opts.MaxIterations
	if budget <= 0 {
		budget = defaultMaxIterations
	}
	run := &flowRun{contract: c, snapshot: snapshot, budget: budget}
	outcome, err := run.walk(flowID, persona, states)
	result := FlowResult{
		FlowID:             flowID,
		Outcome:            outcome,
		InitiatingPersona:  persona,
		StepRecords:        run.records,
		EntityStateChanges: run.changes,
	}
	if err != nil {
		return result, err
	}
	return result, nil
}

// walk runs one flow (or sub-flow) to a terminal outcome. Sub-flows share
// the parent's snapshot, entity-state map, budget and trace.
func (r *flowRun) walk(flowID, persona string, states EntityStates) (string, error) {
	flow, ok := r.contract.Flows[flowID]
	if !ok {
		return "", errKind(ErrUnknownFlow, "no such flow %q", flowID)
	}

	current := StepTarget{StepID: flow.Entry}
	for {
		if current.IsTerm {
			return current.Terminal, nil
		}
		if r.steps >= r.budget {
			return "", errKind(ErrFlowIterationBudget, "flow %q exceeded the %d-step iteration budget", flowID, r.budget)
		}
		r.steps++

		step, ok := flow.Steps[current.StepID]
		if !ok {
			return "", errKind(ErrUnknownStep, "flow %q has no step %q", flowID, current.StepID)
		}

		next, newPersona, err := r.execStep(flow, step, persona, states)
		if err != nil {
			return "", err
		}
		if newPersona != "" {
			persona = newPersona
		}
		if next.StepID == "" && !next.IsTerm {
			return "", errKind(ErrFlowTargetUnresolved, "step %q resolved to no target", step.ID)
		}
		current = next
	}
}

func (r *flowRun) execStep(flow FlowDecl, step Step, persona string, states EntityStates) (StepTarget, string, error) {
	switch step.Kind {
	case "OperationStep":
		return r.execOperationStep(step, persona, states)
	case "BranchStep":
		env := &Env{Facts: r.snapshot.Facts.values, Verdicts: r.snapshot.Verdicts, Scope: map[string]Value{}}
		cond, err := evalPredicate(step.Condition, env)
		if err != nil {
			return StepTarget{}, "", err
		}
		taken := cond
		r.records = append(r.records, StepRecord{Step: step.ID, Kind: step.Kind, Persona: persona, Branch: &taken})
		if cond {
			return step.IfTrue, "", nil
		}
		return step.IfFalse, "", nil
	case "HandoffStep":
		r.records = append(r.records, StepRecord{Step: step.ID, Kind: step.Kind, Persona: step.Persona})
		return step.Next, step.Persona, nil
	case "SubFlowStep":
		r.records = append(r.records, StepRecord{Step: step.ID, Kind: step.Kind, Persona: persona})
		if _, err := r.walk(step.Flow, persona, states); err != nil {
			ev, ok := err.(*Error)
			if ok && ev.Kind == ErrFlowIterationBudget {
				return StepTarget{}, "", err
			}
			if !step.SubFlowOnFailure.isHandlerTarget() {
				return StepTarget{}, "", errKind(ErrSubFlowFailure, "sub-flow %q failed: %v", step.Flow, err)
			}
			return step.SubFlowOnFailure, "", nil
		}
		return step.OnSuccess, "", nil
	case "ParallelStep":
		return r.execParallelStep(step, persona, states)
	default:
		return StepTarget{}, "", errKind(ErrMalformedBundle, "unknown step kind %q", step.Kind)
	}
}

func (r *flowRun) execOperationStep(step Step, persona string, states EntityStates) (StepTarget, string, error) {
	acting := persona
	if step.Persona != "" {
		acting = step.Persona
	}
	res, err := ExecuteOperation(r.contract, step.Operation, acting, r.snapshot, states)
	if err != nil {
		ev, _ := err.(*Error)
		rec := StepRecord{Step: step.ID, Kind: step.Kind, Persona: acting}
		if ev != nil {
			rec.Error = string(ev.Kind)
		}
		r.records = append(r.records, rec)
		if step.OnFailure == nil {
			return StepTarget{}, "", err
		}
		return r.handleFailure(step.OnFailure, persona, states)
	}

	r.records = append(r.records, StepRecord{
		Step: step.ID, Kind: step.Kind, Persona: acting,
		Outcome: res.Outcome, Effects: res.EffectRecords,
	})
	r.changes = append(r.changes, res.EffectRecords...)

	target, ok := step.Outcomes[res.Outcome]
	if !ok {
		return StepTarget{}, "", errKind(ErrFlowTargetUnresolved,
			"step %q has no route for outcome %q", step.ID, res.Outcome)
	}
	return target, "", nil
}

// handleFailure routes an operation failure through the step's declared
// handler: Terminate ends the flow, Escalate hands off and
// continues, Compensate runs its operations in order then terminates.
func (r *flowRun) handleFailure(h *FailureHandler, persona string, states EntityStates) (StepTarget, string, error) {
	switch h.Kind {
	case "Terminate":
		return StepTarget{Terminal: h.Outcome, IsTerm: true}, "", nil
	case "Escalate":
		r.records = append(r.records, StepRecord{Step: "", Kind: "Escalate", Persona: h.ToPersona})
		return h.Next, h.ToPersona, nil
	case "Compensate":
		for _, cs := range h.Steps {
			if r.steps >= r.budget {
				return StepTarget{}, "", errKind(ErrFlowIterationBudget, "compensation exceeded the %d-step iteration budget", r.budget)
			}
			r.steps++
			res, err := ExecuteOperation(r.contract, cs.Operation, cs.Persona, r.snapshot, states)
			rec := StepRecord{Step: cs.Operation, Kind: "CompensateStep", Persona: cs.Persona}
			if err != nil {
				if ev, ok := err.(*Error); ok {
					rec.Error = string(ev.Kind)
				}
				r.records = append(r.records, rec)
				continue
			}
			rec.Outcome = res.Outcome
			rec.Effects = res.EffectRecords
			r.records = append(r.records, rec)
			r.changes = append(r.changes, res.EffectRecords...)
		}
		return StepTarget{Terminal: h.Then, IsTerm: true}, "", nil
	default:
		return StepTarget{}, "", errKind(ErrMalformedBundle, "unknown failure handler kind %q", h.Kind)
	}
}

// execParallelStep runs each branch's subgraph against an isolated copy of
// the entity-state map, then merges on success. Branches must touch
// disjoint entity sets; co-mutation is a join conflict. on_any_failure takes
// precedence over the success join when any branch fails.
func (r *flowRun) execParallelStep(step Step, persona string, states EntityStates) (StepTarget, string, error) {
	type branchOutcome struct {
		name    string
		states  EntityStates
		changed map[string]bool
		failed  bool
	}

	var results []branchOutcome
	anyFailed := false
	for _, br := range step.Branches {
		iso := states.clone()
		out := branchOutcome{name: br.Name, states: iso, changed: map[string]bool{}}
		changesBefore := len(r.changes)
		err := r.walkBranch(br, persona, iso)
		// Branch operations run against an isolated state clone and are not
		// yet committed; only the merge below commits effects to r.changes.
		r.changes = r.changes[:changesBefore]
		if err != nil {
			if ev, ok := err.(*Error); ok && ev.Kind == ErrFlowIterationBudget {
				return StepTarget{}, "", err
			}
			out.failed = true
			anyFailed = true
		}
		for entity, state := range iso {
			if states[entity] != state {
				out.changed[entity] = true
			}
		}
		results = append(results, out)
	}

	r.records = append(r.records, StepRecord{Step: step.ID, Kind: step.Kind, Persona: persona})

	if anyFailed {
		if !step.Join.OnAnyFailure.isHandlerTarget() {
			return StepTarget{}, "", errKind(ErrSubFlowFailure, "parallel step %q had a failed branch and no any_failure join", step.ID)
		}
		return step.Join.OnAnyFailure, "", nil
	}

	// Merge: each branch must have mutated a disjoint entity set.
	owner := map[string]string{}
	for _, out := range results {
		for entity := range out.changed {
			if prev, taken := owner[entity]; taken {
				return StepTarget{}, "", errKind(ErrMergeConflict,
					"branches %q and %q both mutated entity %q", prev, out.name, entity)
			}
			owner[entity] = out.name
			from := states[entity]
			to := out.states[entity]
			states[entity] = to
			r.changes = append(r.changes, EffectRecord{Entity: entity, From: from, To: to})
		}
	}
	return step.Join.OnAllSuccess, "", nil
}

// walkBranch runs one parallel branch's private step subgraph to a terminal.
func (r *flowRun) walkBranch(br ParallelBranch, persona string, states EntityStates) error {
	current := br.Entry
	for {
		if current.IsTerm {
			return nil
		}
		if r.steps >= r.budget {
			return errKind(ErrFlowIterationBudget, "parallel branch %q exceeded the %d-step iteration budget", br.Name, r.budget)
		}
		r.steps++
		step, ok := br.Steps[current.StepID]
		if !ok {
			return errKind(ErrUnknownStep, "parallel branch %q has no step %q", br.Name, current.StepID)
		}
		next, newPersona, err := r.execStep(FlowDecl{Steps: br.Steps}, step, persona, states)
		if err != nil {
			return err
		}
		if newPersona != "" {
			persona = newPersona
		}
		if next.StepID == "" && !next.IsTerm {
			return errKind(ErrFlowTargetUnresolved, "branch step %q resolved to no target", step.ID)
		}
		current = next
	}
}

// isHandlerTarget reports whether a StepTarget was actually declared (the
// zero value means the wire field was absent).
func (t StepTarget) isHandlerTarget() bool {
	return t.IsTerm || t.StepID != ""
}
