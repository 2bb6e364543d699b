package evaluator

import "encoding/json"

// FactSet is the immutable-after-assembly set of fact values the evaluator
// runs rules and predicates against.
type FactSet struct {
	values map[string]Value
}

func (fs *FactSet) Get(id string) (Value, bool) {
	v, ok := fs.values[id]
	return v, ok
}

// ParseFactsFile splits a facts document into the external fact inputs
// and the optional entity_states seeding map.
func ParseFactsFile(doc []byte) (map[string]any, EntityStates, error) {
	var raw map[string]any
	if err := json.Unmarshal(doc, &raw); err != nil {
		return nil, nil, errKind(ErrFactTypeMismatch, "decoding facts file: %v", err)
	}
	states := EntityStates{}
	if es, ok := raw["entity_states"].(map[string]any); ok {
		for entity, state := range es {
			s, ok := state.(string)
			if !ok {
				return nil, nil, errKind(ErrFactTypeMismatch, "entity_states[%q] must be a state id string", entity)
			}
			states[entity] = s
		}
	}
	delete(raw, "entity_states")
	return raw, states, nil
}

// SeedEntityStates returns the initial state for every declared entity,
// overridden by any explicit seeding from the facts file.
func SeedEntityStates(c *Contract, overrides EntityStates) EntityStates {
	states := EntityStates{}
	for id, e := range c.Entities {
		states[id] = e.Initial
	}
	for id, s := range overrides {
		states[id] = s
	}
	return states
}

// Assemble builds the fact set: for every declared fact, decode it from
// externalInputs if present, else fall back to its default, else abort.
func Assemble(c *Contract, externalInputs map[string]any) (*FactSet, error) {
	values := map[string]Value{}
	for id, decl := range c.Facts {
		if raw, ok := externalInputs[id]; ok {
			v, err := decodeValue(raw, decl.Type)
			if err != nil {
				return nil, err
			}
			values[id] = v
			continue
		}
		if decl.Default != nil {
			values[id] = *decl.Default
			continue
		}
		return nil, errKind(ErrMissingFact, "fact %q has no input value and no declared default", id)
	}
	return &FactSet{values: values}, nil
}
