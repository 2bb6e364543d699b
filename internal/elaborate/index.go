package elaborate

import "github.com/riverline-labs/tenor/internal/ast"

// Index is Pass 2's output: per-kind id-indexed construct tables.
// Persona ids share a uniqueness domain with every other kind; all other
// kinds are disjoint by schema (a Fact and a Rule may share an id).
type Index struct {
	Facts      map[string]ast.Fact
	Entities   map[string]ast.Entity
	Rules      map[string]ast.Rule
	Operations map[string]ast.Operation
	Flows      map[string]ast.Flow
	Personas   map[string]ast.Persona
	TypeDecls  map[string]ast.TypeDecl
	Sources    map[string]ast.Source
	Systems    map[string]ast.System

	order []ast.Construct // original traversal order, for serialization fallback
}

// buildIndex rejects duplicate ids within a kind and cross-file duplicates,
// and enforces that a Persona id never collides with any other construct's
// id.
func buildIndex(b *Bundle) (*Index, error) {
	idx := &Index{
		Facts:      map[string]ast.Fact{},
		Entities:   map[string]ast.Entity{},
		Rules:      map[string]ast.Rule{},
		Operations: map[string]ast.Operation{},
		Flows:      map[string]ast.Flow{},
		Personas:   map[string]ast.Persona{},
		TypeDecls:  map[string]ast.TypeDecl{},
		Sources:    map[string]ast.Source{},
		Systems:    map[string]ast.System{},
	}
	firstSeen := map[string]ast.Provenance{} // "kind:id" -> location
	personaIDs := map[string]ast.Provenance{}
	otherIDs := map[string]ast.Provenance{}

	dup := func(kind, id string, prov ast.Provenance) error {
		key := kind + ":" + id
		if first, ok := firstSeen[key]; ok {
			return errAt("DuplicateId", prov.File, prov.Line,
				"duplicate %s id %q (first declared at %s:%d)", kind, id, first.File, first.Line)
		}
		firstSeen[key] = prov
		return nil
	}

	for _, c := range b.Constructs {
		idx.order = append(idx.order, c)
		if err := dup(c.Kind(), c.ID(), c.Provenance()); err != nil {
			return nil, err
		}
		if c.Kind() == "Persona" {
			if first, ok := otherIDs[c.ID()]; ok {
				return nil, errAt("DuplicateId", c.Provenance().File, c.Provenance().Line,
					"persona id %q collides with another construct declared at %s:%d", c.ID(), first.File, first.Line)
			}
			personaIDs[c.ID()] = c.Provenance()
		} else {
			if first, ok := personaIDs[c.ID()]; ok {
				return nil, errAt("DuplicateId", c.Provenance().File, c.Provenance().Line,
					"id %q collides with persona declared at %s:%d", c.ID(), first.File, first.Line)
			}
			otherIDs[c.ID()] = c.Provenance()
		}

		switch v := c.(type) {
		case ast.Fact:
			idx.Facts[v.ID()] = v
		case ast.Entity:
			idx.Entities[v.ID()] = v
		case ast.Rule:
			idx.Rules[v.ID()] = v
		case ast.Operation:
			idx.Operations[v.ID()] = v
		case ast.Flow:
			idx.Flows[v.ID()] = v
		case ast.Persona:
			idx.Personas[v.ID()] = v
		case ast.TypeDecl:
			idx.TypeDecls[v.ID()] = v
		case ast.Source:
			idx.Sources[v.ID()] = v
		case ast.System:
			idx.Systems[v.ID()] = v
		}
	}
	return idx, nil
}
