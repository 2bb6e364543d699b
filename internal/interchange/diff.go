package interchange

import (
	"sort"

	"github.com/tidwall/gjson"
)

// ChangeKind classifies a single construct-level difference between two
// bundles, as reported by the diff subcommand.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeRemoved  ChangeKind = "removed"
	ChangeModified ChangeKind = "modified"
)

// Change describes one construct whose presence or JSON body differs
// between two bundles, keyed the same way the canonical encoder orders
// constructs: by (kind, id).
type Change struct {
	Kind       ChangeKind
	ConstructKind string
	ID         string
	Before     string // raw JSON, empty for ChangeAdded
	After      string // raw JSON, empty for ChangeRemoved
}

// Diff compares two canonical bundle documents and reports construct-level
// additions, removals, and modifications. Provenance (file/line) is
// excluded from the comparison since it is not semantically meaningful to
// a consumer diffing two contract versions.
func Diff(before, after []byte) []Change {
	beforeByKey := indexConstructs(before)
	afterByKey := indexConstructs(after)

	keys := map[string]bool{}
	for k := range beforeByKey {
		keys[k] = true
	}
	for k := range afterByKey {
		keys[k] = true
	}

	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var changes []Change
	for _, k := range sorted {
		b, hasBefore := beforeByKey[k]
		a, hasAfter := afterByKey[k]
		kind, id := splitKey(k)
		switch {
		case !hasBefore:
			changes = append(changes, Change{Kind: ChangeAdded, ConstructKind: kind, ID: id, After: a})
		case !hasAfter:
			changes = append(changes, Change{Kind: ChangeRemoved, ConstructKind: kind, ID: id, Before: b})
		case !semanticEqual(b, a):
			changes = append(changes, Change{Kind: ChangeModified, ConstructKind: kind, ID: id, Before: b, After: a})
		}
	}
	return changes
}

func indexConstructs(doc []byte) map[string]string {
	out := map[string]string{}
	result := gjson.GetBytes(doc, "constructs")
	if !result.IsArray() {
		return out
	}
	for _, c := range result.Array() {
		kind := c.Get("kind").String()
		id := c.Get("id").String()
		out[kind+"\x00"+id] = c.Raw
	}
	return out
}

func splitKey(key string) (kind, id string) {
	for i := 0; i < len(key); i++ {
		if key[i] == 0 {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}

// semanticEqual compares two construct JSON objects field-by-field,
// ignoring "provenance" (file/line shift on any reformat without the
// construct's actual semantics changing). Arrays whose elements are all
// primitives compare as sets — persona lists, outcome lists and state sets
// are order-insignificant.
func semanticEqual(a, b string) bool {
	am := gjson.Parse(a).Map()
	bm := gjson.Parse(b).Map()
	delete(am, "provenance")
	delete(bm, "provenance")
	if len(am) != len(bm) {
		return false
	}
	for k, v := range am {
		bv, ok := bm[k]
		if !ok || !resultEqual(v, bv) {
			return false
		}
	}
	return true
}

func resultEqual(a, b gjson.Result) bool {
	if a.IsArray() && b.IsArray() {
		ae, be := a.Array(), b.Array()
		if len(ae) != len(be) {
			return false
		}
		if allPrimitive(ae) && allPrimitive(be) {
			counts := map[string]int{}
			for _, e := range ae {
				counts[e.Raw]++
			}
			for _, e := range be {
				counts[e.Raw]--
				if counts[e.Raw] < 0 {
					return false
				}
			}
			return true
		}
		for i := range ae {
			if !resultEqual(ae[i], be[i]) {
				return false
			}
		}
		return true
	}
	if a.IsObject() && b.IsObject() {
		amap, bmap := a.Map(), b.Map()
		if len(amap) != len(bmap) {
			return false
		}
		for k, v := range amap {
			bv, ok := bmap[k]
			if !ok || !resultEqual(v, bv) {
				return false
			}
		}
		return true
	}
	return a.Raw == b.Raw
}

func allPrimitive(elems []gjson.Result) bool {
	for _, e := range elems {
		if e.IsArray() || e.IsObject() {
			return false
		}
	}
	return true
}
