package ruleset

import "strings"

// visitedSet tracks the chain of named-set resolutions along a single
// LoadCombined call's include expansion, so a cycle can be reported with
// its full chain (per spec.md's CircularInclude(chain)).
type visitedSet struct {
	order []string
	seen  map[string]bool
}

func newVisited() *visitedSet {
	return &visitedSet{seen: make(map[string]bool)}
}

// enter returns false if name is already on the current resolution path
// (a cycle), otherwise marks it visited and returns true. On a cycle the
// full offending chain (including the repeated name) is left retrievable
// via chain().
func (v *visitedSet) enter(name string) bool {
	if v.seen[name] {
		v.order = append(v.order, name)
		return false
	}
	v.seen[name] = true
	v.order = append(v.order, name)
	return true
}

func (v *visitedSet) leave(name string) {
	delete(v.seen, name)
	if len(v.order) > 0 && v.order[len(v.order)-1] == name {
		v.order = v.order[:len(v.order)-1]
	}
}

func (v *visitedSet) chain() string {
	return strings.Join(v.order, "->")
}
