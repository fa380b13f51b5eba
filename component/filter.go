package component

// Filter is a composable predicate over components (§4.5 "Search filter").
// Recursive is a marker rather than a predicate: Walk detects it on the
// outermost filter and descends through folders accordingly instead of
// evaluating it as a boolean.
type Filter struct {
	recursive bool
	matches   func(*Component) bool
}

// Any matches every component.
func Any() Filter {
	return Filter{matches: func(*Component) bool { return true }}
}

// Visible matches components whose Visible() is true.
func Visible() Filter {
	return Filter{matches: func(c *Component) bool { return c.Visible() }}
}

// LocalID matches components whose local id is one of ids.
func LocalID(ids ...string) Filter {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return Filter{matches: func(c *Component) bool { return set[c.LocalID()] }}
}

// InterfaceID matches components whose parent folder's ElementInterface
// equals iid; a component with no parent folder never matches.
func InterfaceID(iid string) Filter {
	return Filter{matches: func(c *Component) bool {
		return c.parent != nil && c.parent.asFolder != nil && c.parent.asFolder.ElementInterface == iid
	}}
}

// Custom wraps an arbitrary predicate.
func Custom(fn func(*Component) bool) Filter {
	return Filter{matches: fn}
}

// Recursive marks inner as descending into child folders rather than
// stopping at direct children.
func Recursive(inner Filter) Filter {
	inner.recursive = true
	return inner
}

func (f Filter) Matches(c *Component) bool {
	if f.matches == nil {
		return false
	}
	return f.matches(c)
}

func (f Filter) IsRecursive() bool { return f.recursive }

// Walk applies f to every direct child of folder, descending into child
// folders when f is Recursive, and returns the matches in traversal order.
func Walk(folder *Folder, f Filter) []*Component {
	var out []*Component
	for _, child := range folder.Children() {
		if f.Matches(child) {
			out = append(out, child)
		}
		if f.IsRecursive() {
			if childFolder := child.asFolder; childFolder != nil {
				out = append(out, Walk(childFolder, f)...)
			}
		}
	}
	return out
}
