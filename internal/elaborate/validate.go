package elaborate

import "github.com/riverline-labs/tenor/internal/ast"

// Validate runs Pass 5: every structural and semantic check that
// needs the typed, indexed, fully-resolved bundle. Errors are collected up
// to maxErrors before the pass halts; maxErrors <= 0 means
// unlimited. maxStratum bounds the stratum numbers rules may declare,
// guarding against pathological VerdictPresent chains; <= 0 applies the
// default.
func Validate(tb *TypedBundle, maxErrors, maxStratum int) error {
	if maxStratum <= 0 {
		maxStratum = DefaultMaxStratumDepth
	}
	v := &validator{tb: tb, errs: &ErrorList{Limit: maxErrors}, maxStratum: maxStratum}
	v.checkEntities()
	v.checkRules()
	v.checkOperations()
	v.checkFlows()
	return v.errs.Err()
}

// DefaultMaxStratumDepth bounds rule strata when no explicit limit is
// configured (rules.max_stratum_depth in the manifest).
const DefaultMaxStratumDepth = 64

type validator struct {
	tb         *TypedBundle
	errs       *ErrorList
	maxStratum int
}

func (v *validator) fail(e *Error) bool { return v.errs.add(e) }

func (v *validator) checkEntities() {
	for _, e := range v.tb.Index.Entities {
		states := map[string]bool{}
		for _, s := range e.States {
			states[s] = true
		}
		if !states[e.Initial] {
			if !v.fail(errAt("UnresolvedReference", e.Prov.File, e.Prov.Line,
				"entity %q: initial state %q is not in states", e.ID(), e.Initial)) {
				return
			}
		}
		adj := map[string][]string{}
		for _, t := range e.Transitions {
			if !states[t.From] || !states[t.To] {
				if !v.fail(errAt("InvalidTransition", e.Prov.File, e.Prov.Line,
					"entity %q: transition (%s,%s) references an undeclared state", e.ID(), t.From, t.To)) {
					return
				}
				continue
			}
			adj[t.From] = append(adj[t.From], t.To)
		}
		if !e.Cyclic {
			if cyc := findCycle(e.States, adj); cyc != nil {
				if !v.fail(errAt("EntityCycle", e.Prov.File, e.Prov.Line,
					"entity %q transition graph has a cycle: %v", e.ID(), cyc)) {
					return
				}
			}
		}
	}
}

// findCycle runs a standard gray/black DFS over the transition adjacency
// and returns the first cycle found, or nil.
func findCycle(states []string, adj map[string][]string) []string {
	gray, black := map[string]bool{}, map[string]bool{}
	var path []string
	var cycle []string

	var visit func(s string) bool
	visit = func(s string) bool {
		if black[s] {
			return false
		}
		if gray[s] {
			cycle = append(append([]string{}, path...), s)
			return true
		}
		gray[s] = true
		path = append(path, s)
		for _, n := range adj[s] {
			if visit(n) {
				return true
			}
		}
		path = path[:len(path)-1]
		gray[s] = false
		black[s] = true
		return false
	}

	for _, s := range states {
		if visit(s) {
			return cycle
		}
	}
	return nil
}

// checkRules enforces verdict-producer uniqueness and the stratification
// invariant: every VerdictPresent(W) read by a rule at stratum n requires
// S(W) < n.
func (v *validator) checkRules() {
	producer := map[string]ast.Rule{}
	for _, r := range v.tb.Rules {
		if r.Stratum > v.maxStratum {
			if !v.fail(errAt("StratumOrderViolation", r.Prov.File, r.Prov.Line,
				"rule %q stratum %d exceeds the configured depth limit %d", r.ID(), r.Stratum, v.maxStratum)) {
				return
			}
		}
		if first, ok := producer[r.Produce.VerdictType]; ok {
			if !v.fail(errAt("DuplicateVerdictProducer", r.Prov.File, r.Prov.Line,
				"verdict %q already produced by rule %q at %s:%d", r.Produce.VerdictType, first.ID(), first.Prov.File, first.Prov.Line)) {
				return
			}
			continue
		}
		producer[r.Produce.VerdictType] = r
	}
	stratumOf := map[string]int{}
	for vt, r := range producer {
		stratumOf[vt] = r.Stratum
	}
	for _, r := range v.tb.Rules {
		if !v.walkVerdictReads(r.When, r.Stratum, r.Prov, stratumOf) {
			return
		}
	}
}

func (v *validator) walkVerdictReads(p ast.Predicate, stratum int, prov ast.Provenance, stratumOf map[string]int) bool {
	switch n := p.(type) {
	case ast.VerdictPresent:
		s, ok := stratumOf[n.VerdictID]
		if !ok {
			return v.fail(errAt("UnresolvedReference", prov.File, prov.Line, "unknown verdict %q", n.VerdictID))
		}
		if s >= stratum {
			return v.fail(errAt("StratumOrderViolation", prov.File, prov.Line,
				"verdict %q (stratum %d) read at stratum %d must be at a strictly lower stratum", n.VerdictID, s, stratum))
		}
		return true
	case ast.And:
		return v.walkVerdictReads(n.Left, stratum, prov, stratumOf) && v.walkVerdictReads(n.Right, stratum, prov, stratumOf)
	case ast.Or:
		return v.walkVerdictReads(n.Left, stratum, prov, stratumOf) && v.walkVerdictReads(n.Right, stratum, prov, stratumOf)
	case ast.Not:
		return v.walkVerdictReads(n.Operand, stratum, prov, stratumOf)
	case ast.Forall:
		return v.walkVerdictReads(n.Body, stratum, prov, stratumOf)
	case ast.Exists:
		return v.walkVerdictReads(n.Body, stratum, prov, stratumOf)
	default:
		return true
	}
}

func (v *validator) checkOperations() {
	for _, o := range v.tb.Operations {
		for _, p := range o.AllowedPersonas {
			if _, ok := v.tb.Index.Personas[p]; !ok {
				if !v.fail(errAt("UnresolvedReference", o.Prov.File, o.Prov.Line,
					"operation %q: unknown persona %q", o.ID(), p)) {
					return
				}
			}
		}
		if len(o.Outcomes) == 0 {
			if !v.fail(errAt("OutcomeIncomplete", o.Prov.File, o.Prov.Line, "operation %q declares no outcomes", o.ID())) {
				return
			}
		}
		errored := map[string]bool{}
		for _, e := range o.ErrorContract {
			errored[e] = true
		}
		for _, out := range o.Outcomes {
			if errored[out] {
				if !v.fail(errAt("OutcomeErrorCollision", o.Prov.File, o.Prov.Line,
					"operation %q: outcome %q also appears in error_contract", o.ID(), out)) {
					return
				}
			}
		}
		covered := map[string]bool{}
		for _, eff := range o.Effects {
			ent, ok := v.tb.Index.Entities[eff.Entity]
			if !ok {
				if !v.fail(errAt("UnresolvedReference", o.Prov.File, o.Prov.Line,
					"operation %q: unknown entity %q", o.ID(), eff.Entity)) {
					return
				}
				continue
			}
			if !hasTransition(ent, eff.From, eff.To) {
				if !v.fail(errAt("InvalidTransition", o.Prov.File, o.Prov.Line,
					"operation %q: effect (%s,%s,%s) is not a declared transition", o.ID(), eff.Entity, eff.From, eff.To)) {
					return
				}
			}
			if len(o.Outcomes) > 1 {
				if eff.Outcome == "" {
					if !v.fail(errAt("OutcomeIncomplete", o.Prov.File, o.Prov.Line,
						"operation %q: multi-outcome effect on %q missing an outcome tag", o.ID(), eff.Entity)) {
						return
					}
					continue
				}
				covered[eff.Outcome] = true
			}
		}
		if len(o.Outcomes) > 1 {
			for _, out := range o.Outcomes {
				if !covered[out] {
					if !v.fail(errAt("OutcomeIncomplete", o.Prov.File, o.Prov.Line,
						"operation %q: outcome %q has no effect path", o.ID(), out)) {
						return
					}
				}
			}
		}
	}
}

func hasTransition(e ast.Entity, from, to string) bool {
	for _, t := range e.Transitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

func (v *validator) checkFlows() {
	for _, f := range v.tb.Flows {
		if _, ok := f.Steps[f.Entry]; !ok {
			if !v.fail(errAt("FlowTargetUnresolved", f.Prov.File, f.Prov.Line,
				"flow %q: entry %q does not resolve to a declared step", f.ID(), f.Entry)) {
				return
			}
			continue
		}
		if !v.checkStepGraph(f, f.Steps, nil) {
			return
		}
	}
}

func (v *validator) checkStepGraph(f ast.Flow, steps map[string]ast.Step, subflowChain []string) bool {
	resolve := func(t ast.StepTarget, prov ast.Provenance) bool {
		if t.IsTerm {
			return true
		}
		if t.StepID == "" {
			return true // optional/unset target (e.g. missing on_failure)
		}
		if _, ok := steps[t.StepID]; !ok {
			return v.fail(errAt("FlowTargetUnresolved", prov.File, prov.Line,
				"flow %q: step target %q does not resolve", f.ID(), t.StepID))
		}
		return true
	}

	for _, s := range steps {
		switch st := s.(type) {
		case ast.OperationStep:
			op, ok := v.tb.Index.Operations[st.Operation]
			if !ok {
				if !v.fail(errAt("FlowTargetUnresolved", f.Prov.File, f.Prov.Line,
					"flow %q step %q: unknown operation %q", f.ID(), st.ID, st.Operation)) {
					return false
				}
				continue
			}
			if _, ok := v.tb.Index.Personas[st.Persona]; !ok {
				if !v.fail(errAt("UnresolvedReference", f.Prov.File, f.Prov.Line,
					"flow %q step %q: unknown persona %q", f.ID(), st.ID, st.Persona)) {
					return false
				}
			}
			declared := map[string]bool{}
			for _, out := range op.Outcomes {
				declared[out] = true
			}
			seen := map[string]bool{}
			for label, target := range st.Outcomes {
				seen[label] = true
				if !declared[label] {
					if !v.fail(errAt("ExhaustivenessViolation", f.Prov.File, f.Prov.Line,
						"flow %q step %q: outcome %q is not declared by operation %q", f.ID(), st.ID, label, st.Operation)) {
						return false
					}
				}
				if !resolve(target, f.Prov) {
					return false
				}
			}
			for _, out := range op.Outcomes {
				if !seen[out] {
					if !v.fail(errAt("ExhaustivenessViolation", f.Prov.File, f.Prov.Line,
						"flow %q step %q: outcome %q of operation %q is not routed", f.ID(), st.ID, out, st.Operation)) {
						return false
					}
				}
			}
			if !v.checkFailureHandler(f, steps, st.OnFailure, resolve) {
				return false
			}
		case ast.BranchStep:
			if !resolve(st.IfTrue, f.Prov) || !resolve(st.IfFalse, f.Prov) {
				return false
			}
		case ast.HandoffStep:
			if _, ok := v.tb.Index.Personas[st.Persona]; !ok {
				if !v.fail(errAt("UnresolvedReference", f.Prov.File, f.Prov.Line,
					"flow %q step %q: unknown persona %q", f.ID(), st.ID, st.Persona)) {
					return false
				}
			}
			if !resolve(st.Next, f.Prov) {
				return false
			}
		case ast.SubFlowStep:
			target, ok := v.tb.Index.Flows[st.Flow]
			if !ok {
				if !v.fail(errAt("FlowTargetUnresolved", f.Prov.File, f.Prov.Line,
					"flow %q step %q: unknown sub-flow %q", f.ID(), st.ID, st.Flow)) {
					return false
				}
				continue
			}
			cyclic := false
			for _, seen := range subflowChain {
				if seen == st.Flow {
					cyclic = true
					break
				}
			}
			if cyclic {
				if !v.fail(errAt("FlowTargetUnresolved", f.Prov.File, f.Prov.Line,
					"flow %q step %q: circular sub-flow reference to %q", f.ID(), st.ID, st.Flow)) {
					return false
				}
				continue
			}
			if !resolve(st.OnSuccess, f.Prov) || !resolve(st.OnFailure, f.Prov) {
				return false
			}
			if !v.checkStepGraph(target, target.Steps, append(append([]string{}, subflowChain...), f.ID())) {
				return false
			}
		case ast.ParallelStep:
			for _, br := range st.Branches {
				if _, ok := br.Steps[br.Entry.StepID]; !br.Entry.IsTerm && !ok {
					if !v.fail(errAt("FlowTargetUnresolved", f.Prov.File, f.Prov.Line,
						"flow %q step %q: branch %q entry does not resolve", f.ID(), st.ID, br.Name)) {
						return false
					}
					continue
				}
				if !v.checkStepGraph(f, br.Steps, subflowChain) {
					return false
				}
			}
			if !resolve(st.Join.OnAllSuccess, f.Prov) || !resolve(st.Join.OnAnyFailure, f.Prov) {
				return false
			}
		}
	}
	return true
}

func (v *validator) checkFailureHandler(f ast.Flow, steps map[string]ast.Step, h ast.FailureHandler, resolve func(ast.StepTarget, ast.Provenance) bool) bool {
	switch handler := h.(type) {
	case nil:
		return true
	case ast.Terminate:
		return true
	case ast.Escalate:
		if _, ok := v.tb.Index.Personas[handler.ToPersona]; !ok {
			return v.fail(errAt("UnresolvedReference", f.Prov.File, f.Prov.Line,
				"flow %q: on_failure escalate references unknown persona %q", f.ID(), handler.ToPersona))
		}
		return resolve(handler.Next, f.Prov)
	case ast.Compensate:
		for _, step := range handler.Steps {
			if _, ok := v.tb.Index.Operations[step.Operation]; !ok {
				if !v.fail(errAt("UnresolvedReference", f.Prov.File, f.Prov.Line,
					"flow %q: compensation references unknown operation %q", f.ID(), step.Operation)) {
					return false
				}
			}
			if _, ok := v.tb.Index.Personas[step.Persona]; !ok {
				if !v.fail(errAt("UnresolvedReference", f.Prov.File, f.Prov.Line,
					"flow %q: compensation references unknown persona %q", f.ID(), step.Persona)) {
					return false
				}
			}
		}
		return true
	default:
		return true
	}
}
