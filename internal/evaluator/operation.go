package evaluator

// Snapshot is the frozen pair of immutable references flow and operation
// execution read from: the assembled facts and the stratified verdicts.
// It is never mutated once built.
type Snapshot struct {
	Facts    *FactSet
	Verdicts *VerdictSet
}

// EntityStates is the mutable current-state map flow/operation execution
// writes through: borrowed mutably by exactly one step at a time.
type EntityStates map[string]string

func (es EntityStates) clone() EntityStates {
	out := make(EntityStates, len(es))
	for k, v := range es {
		out[k] = v
	}
	return out
}

// EffectRecord is one applied entity transition.
type EffectRecord struct {
	Entity   string
	From, To string
}

// OperationResult is execute_operation's successful outcome.
type OperationResult struct {
	Outcome       string
	StateBefore   EntityStates
	StateAfter    EntityStates
	EffectRecords []EffectRecord
}

// ExecuteOperation runs the four-stage pipeline: persona gate,
// precondition, atomic effects, outcome determination.
func ExecuteOperation(c *Contract, opID, persona string, snapshot Snapshot, states EntityStates) (OperationResult, error) {
	op, ok := c.Operations[opID]
	if !ok {
		return OperationResult{}, errKind(ErrUnknownOperation, "no such operation %q", opID)
	}

	allowed := false
	for _, p := range op.AllowedPersonas {
		if p == persona {
			allowed = true
			break
		}
	}
	if !allowed {
		return OperationResult{}, errKind(ErrPersonaRejected, "persona %q is not authorized for operation %q", persona, opID)
	}

	if op.Precondition != nil {
		env := &Env{Facts: snapshot.Facts.values, Verdicts: snapshot.Verdicts, Scope: map[string]Value{}}
		ok, err := evalPredicate(*op.Precondition, env)
		if err != nil {
			return OperationResult{}, err
		}
		if !ok {
			return OperationResult{}, errKind(ErrPreconditionFailed, "precondition failed for operation %q", opID)
		}
	}

	before := states.clone()
	effects, outcome, err := selectEffectPath(op, states)
	if err != nil {
		return OperationResult{}, err
	}

	var records []EffectRecord
	for _, eff := range effects {
		states[eff.Entity] = eff.To
		records = append(records, EffectRecord{Entity: eff.Entity, From: eff.From, To: eff.To})
	}

	return OperationResult{
		Outcome:       outcome,
		StateBefore:   before,
		StateAfter:    states.clone(),
		EffectRecords: records,
	}, nil
}

// selectEffectPath determines which effects apply and therefore which
// outcome the operation takes. A single-outcome operation's effects all
// apply, atomically: any from-state mismatch aborts
// the whole operation. A multi-outcome operation's effects are grouped by
// their outcome tag; the first declared outcome whose entire effect group
// matches the current entity states is the path actually taken.
func selectEffectPath(op OperationDecl, states EntityStates) ([]Effect, string, error) {
	if len(op.Outcomes) <= 1 {
		outcome := ""
		if len(op.Outcomes) == 1 {
			outcome = op.Outcomes[0]
		}
		if err := checkEffects(op.Effects, states); err != nil {
			return nil, "", err
		}
		return op.Effects, outcome, nil
	}

	byOutcome := map[string][]Effect{}
	for _, eff := range op.Effects {
		byOutcome[eff.Outcome] = append(byOutcome[eff.Outcome], eff)
	}
	var lastErr error
	for _, outcome := range op.Outcomes {
		group := byOutcome[outcome]
		if len(group) == 0 {
			continue
		}
		if err := checkEffects(group, states); err != nil {
			lastErr = err
			continue
		}
		return group, outcome, nil
	}
	if lastErr == nil {
		lastErr = errKind(ErrEntityNotInSourceState, "no effect path of operation %q matches current entity states", op.ID)
	}
	return nil, "", lastErr
}

func checkEffects(effects []Effect, states EntityStates) error {
	for _, eff := range effects {
		cur, present := states[eff.Entity]
		if !present {
			return errKind(ErrEntityNotFound, "entity %q has no seeded state", eff.Entity)
		}
		if cur != eff.From {
			return errKind(ErrEntityNotInSourceState,
				"entity %q is in state %q, effect requires %q", eff.Entity, cur, eff.From)
		}
	}
	return nil
}
