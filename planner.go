package kernel

import "fmt"

// Planner produces load orders: the order in which an application's
// libraries wire, and the order in which a single module's services wire.
type Planner struct{}

// NewPlanner returns a Planner ready for use.
func NewPlanner() *Planner { return &Planner{} }

// SortLibraries orders libs such that every library appears after all of
// its declared Depends. Uses the classic "repeatedly pick a node whose
// unresolved dependencies are empty" algorithm (Kahn's algorithm without
// an explicit queue), operating on library pointers rather than a module
// name graph since library identity — not name — is what depends captures.
// A Depends entry that resolves by name to a library present in libs but
// backed by a *different* object is §4.2's version-mismatch case: logged
// as a warning through logger (nil is tolerated) rather than treated as
// missing, and the application's own reference is substituted for
// ordering purposes.
func (p *Planner) SortLibraries(libs []*LibraryDefinition, logger Logger) ([]*LibraryDefinition, error) {
	present := make(map[*LibraryDefinition]bool, len(libs))
	byName := make(map[string]*LibraryDefinition, len(libs))
	for _, l := range libs {
		present[l] = true
		byName[l.name] = l
	}

	// Missing-dependency check happens before any ordering attempt, and
	// resolves each Depends entry to the reference SortLibraries will
	// actually order against.
	resolvedDeps := make(map[*LibraryDefinition][]*LibraryDefinition, len(libs))
	for _, l := range libs {
		deps := make([]*LibraryDefinition, 0, len(l.depends))
		for _, dep := range l.depends {
			switch {
			case present[dep]:
				deps = append(deps, dep)
			case byName[dep.name] != nil:
				if logger != nil {
					logger.Warn("dependency version mismatch: using the application's reference",
						"library", l.name, "dependency", dep.name)
				}
				deps = append(deps, byName[dep.name])
			default:
				return nil, fmt.Errorf("%w: library %q depends on %q, which is not present in the application",
					ErrMissingDependency, l.name, dep.name)
			}
		}
		resolvedDeps[l] = deps
	}

	placed := make(map[*LibraryDefinition]bool, len(libs))
	var order []*LibraryDefinition

	for len(order) < len(libs) {
		progressed := false
		for _, l := range libs {
			if placed[l] {
				continue
			}
			ready := true
			for _, dep := range resolvedDeps[l] {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				placed[l] = true
				order = append(order, l)
				progressed = true
			}
		}
		if !progressed {
			var names []string
			for _, l := range order {
				names = append(names, l.name)
			}
			return nil, fmt.Errorf("%w: no progress possible, already placed: %v", ErrBadSort, names)
		}
	}

	return order, nil
}

// WireOrder computes the order in which a module's services should be
// constructed: priorityInit first (in the order given), then every
// remaining service name. The remainder order is unspecified: it follows
// Go's map iteration order over allServices, which can differ from one
// call to the next.
func (p *Planner) WireOrder(priorityInit []string, allServices map[string]ServiceFactory) ([]string, error) {
	seen := make(map[string]bool, len(priorityInit))
	order := make([]string, 0, len(allServices))

	for _, name := range priorityInit {
		if seen[name] {
			return nil, fmt.Errorf("%w: %q appears more than once in priorityInit", ErrDoublePriority, name)
		}
		seen[name] = true
		order = append(order, name)
	}

	for name := range allServices {
		if !seen[name] {
			order = append(order, name)
			seen[name] = true
		}
	}

	return order, nil
}
