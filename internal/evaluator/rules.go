package evaluator

// EvalStrata groups rules by stratum and, in ascending
// order, fire every rule whose `when` predicate holds against the facts
// and the verdicts accumulated so far. A verdict produced in stratum n
// only becomes visible to strata n+1 and later — this falls out naturally
// from evaluating strata in order and only ever reading the VerdictSet
// built by prior iterations.
func EvalStrata(c *Contract, facts *FactSet) (*VerdictSet, error) {
	verdicts := newVerdictSet()

	for _, stratum := range c.RulesByStratum() {
		for _, rule := range c.StratumRules(stratum) {
			prov := &ProvenanceCollector{}
			env := &Env{Facts: facts.values, Verdicts: verdicts, Scope: map[string]Value{}, Provenance: prov}

			fire, err := evalPredicate(rule.When, env)
			if err != nil {
				return nil, err
			}
			if !fire {
				continue
			}

			payload, err := evalExpr(rule.Produce.Payload, env)
			if err != nil {
				return nil, err
			}

			verdicts.put(Verdict{
				Type:    rule.Produce.VerdictType,
				Payload: payload,
				Provenance: VerdictProvenance{
					Rule: rule.ID, Stratum: rule.Stratum,
					FactsUsed: prov.FactsUsed, VerdictsUsed: prov.VerdictsUsed,
				},
			})
		}
	}

	return verdicts, nil
}
