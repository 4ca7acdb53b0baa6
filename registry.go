package kernel

import "fmt"

// Registry holds library and application definitions. Both creators are
// pure with respect to the registry: they validate and return definitions
// but do not mount them. Mounting happens during Kernel.Bootstrap.
//
// Registry itself carries no mutable state — validation is side-effect
// free — but is kept as a named type (rather than bare package functions)
// so callers can embed it in larger test fixtures.
type Registry struct{}

// NewRegistry returns a Registry ready for use.
func NewRegistry() *Registry { return &Registry{} }

// CreateLibrary validates def and returns an opaque LibraryDefinition.
//
// Validation performed:
//   - name non-empty
//   - every service value is non-nil
//   - no duplicate service name (map keys already guarantee this, so no
//     separate check is made; a nil Services map is normalized to empty)
//   - priorityInit entries are a subset of services, no duplicates
//   - depends does not (transitively) include this library
func (r *Registry) CreateLibrary(def LibraryDef) (*LibraryDefinition, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("%w: library name must not be empty", ErrMissingLibraryName)
	}

	services := def.Services
	if services == nil {
		services = map[string]ServiceFactory{}
	}
	for name, factory := range services {
		if factory == nil {
			return nil, fmt.Errorf("%w: service %q has a nil factory", ErrInvalidServiceDefinition, name)
		}
	}

	if err := validatePriorityInit(def.PriorityInit, services); err != nil {
		return nil, err
	}

	lib := &LibraryDefinition{
		name:         def.Name,
		schema:       def.ConfigurationSchema,
		services:     services,
		priorityInit: def.PriorityInit,
		depends:      def.Depends,
	}
	lib.lifecycle = newModuleLifecycle(def.Name)

	if err := checkSelfDependency(lib, lib, map[*LibraryDefinition]bool{}); err != nil {
		return nil, err
	}

	return lib, nil
}

// CreateApplication validates def and returns an opaque ApplicationDefinition.
// Applies the same service/priority validation as CreateLibrary, plus:
// libraries must be a (possibly empty, non-nil after normalization) slice.
func (r *Registry) CreateApplication(def ApplicationDef) (*ApplicationDefinition, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("%w: application name must not be empty", ErrMissingLibraryName)
	}

	services := def.Services
	if services == nil {
		services = map[string]ServiceFactory{}
	}
	for name, factory := range services {
		if factory == nil {
			return nil, fmt.Errorf("%w: service %q has a nil factory", ErrInvalidServiceDefinition, name)
		}
	}

	if err := validatePriorityInit(def.PriorityInit, services); err != nil {
		return nil, err
	}

	libs := def.Libraries
	if libs == nil {
		libs = []*LibraryDefinition{}
	}

	app := &ApplicationDefinition{
		name:         def.Name,
		schema:       def.ConfigurationSchema,
		services:     services,
		priorityInit: def.PriorityInit,
		libraries:    libs,
	}
	app.lifecycle = newModuleLifecycle(def.Name)

	return app, nil
}

// validatePriorityInit checks that priorityInit is a duplicate-free subset
// of the service map's keys (§3 invariant, §7 DoublePriority).
func validatePriorityInit(priorityInit []string, services map[string]ServiceFactory) error {
	seen := make(map[string]bool, len(priorityInit))
	for _, name := range priorityInit {
		if seen[name] {
			return fmt.Errorf("%w: service %q listed more than once in priorityInit", ErrDoublePriority, name)
		}
		seen[name] = true
		if _, ok := services[name]; !ok {
			return fmt.Errorf("%w: priorityInit references unknown service %q", ErrInvalidServiceDefinition, name)
		}
	}
	return nil
}

// checkSelfDependency walks lib's dependency graph looking for root,
// failing if found (a library may not list itself, transitively, as a
// dependency).
func checkSelfDependency(root, lib *LibraryDefinition, visited map[*LibraryDefinition]bool) error {
	for _, dep := range lib.depends {
		if dep == root {
			return fmt.Errorf("%w: library %q transitively depends on itself", ErrBadSort, root.name)
		}
		if visited[dep] {
			continue
		}
		visited[dep] = true
		if err := checkSelfDependency(root, dep, visited); err != nil {
			return err
		}
	}
	return nil
}
