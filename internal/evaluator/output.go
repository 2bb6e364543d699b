package evaluator

// RenderVerdicts builds the verdict-output envelope as plain maps so
// the caller can marshal it with the same canonical sorted-key encoder the
// bundle uses.
func RenderVerdicts(vs *VerdictSet) map[string]any {
	verdicts := []any{}
	for _, v := range vs.All() {
		verdicts = append(verdicts, map[string]any{
			"type":    v.Type,
			"payload": encodeValue(v.Payload),
			"provenance": map[string]any{
				"rule":          v.Provenance.Rule,
				"stratum":       v.Provenance.Stratum,
				"facts_used":    toAny(dedupe(v.Provenance.FactsUsed)),
				"verdicts_used": toAny(dedupe(v.Provenance.VerdictsUsed)),
			},
		})
	}
	return map[string]any{"verdicts": verdicts}
}

// RenderFlowResult extends the verdict envelope with the flow-execution
// fields: flow_outcome, steps_executed, entity_state_changes.
func RenderFlowResult(vs *VerdictSet, res FlowResult) map[string]any {
	out := RenderVerdicts(vs)
	out["flow_outcome"] = res.Outcome

	steps := []any{}
	for _, rec := range res.StepRecords {
		m := map[string]any{"step": rec.Step, "kind": rec.Kind}
		if rec.Persona != "" {
			m["persona"] = rec.Persona
		}
		if rec.Outcome != "" {
			m["outcome"] = rec.Outcome
		}
		if rec.Branch != nil {
			m["branch"] = *rec.Branch
		}
		if rec.Error != "" {
			m["error"] = rec.Error
		}
		if len(rec.Effects) > 0 {
			m["effects"] = effectsToAny(rec.Effects)
		}
		steps = append(steps, m)
	}
	out["steps_executed"] = steps
	out["entity_state_changes"] = effectsToAny(res.EntityStateChanges)
	return out
}

func effectsToAny(effects []EffectRecord) []any {
	out := []any{}
	for _, e := range effects {
		out = append(out, map[string]any{"entity": e.Entity, "from": e.From, "to": e.To})
	}
	return out
}

// dedupe keeps first-occurrence order: the provenance collector appends on
// every read, but the envelope reports each fact/verdict once.
func dedupe(ids []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func toAny(ss []string) []any {
	out := []any{}
	for _, s := range ss {
		out = append(out, s)
	}
	return out
}
