package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Sentinel errors surfaced by ResolvedConfig, wrapped by the root kernel
// package into the §7 taxonomy where applicable.
var (
	ErrUnknownKey     = errors.New("unknown module/key")
	ErrWholeModule    = errors.New("cannot assign a whole module config object")
	ErrSchemaNotFound = errors.New("no schema registered for module")
)

// Watcher is invoked synchronously, in registration order, after a Set
// call matching its optional module/key filter (§4.4 onUpdate, §5
// ordering guarantee: watchers fire synchronously during set).
type Watcher struct {
	Module string // empty matches any module
	Key    string // empty matches any key; case-insensitive
	Fn     func(module, key string, value any)
}

// ResolvedConfig is the two-level moduleName -> configKey -> typedValue
// mapping the Configuration Manager owns exclusively (§3, §5 "Shared
// resource policy"). Keys are frozen at wire-time by RegisterSchema;
// values may change at runtime only via Set.
type ResolvedConfig struct {
	mu       sync.RWMutex
	schemas  map[string]Schema
	values   map[string]map[string]any
	watchers []Watcher
}

// NewResolvedConfig returns an empty ResolvedConfig.
func NewResolvedConfig() *ResolvedConfig {
	return &ResolvedConfig{
		schemas: make(map[string]Schema),
		values:  make(map[string]map[string]any),
	}
}

// RegisterSchema freezes moduleName's key set and seeds default values
// (§4.4 LOAD_PROJECT). Calling it twice for the same module replaces the
// schema and re-seeds any key not already holding a loader-supplied
// value — safe to call before loaders run, which is the only time it is
// ever called.
func (r *ResolvedConfig) RegisterSchema(moduleName string, schema Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.schemas[moduleName] = schema
	values, ok := r.values[moduleName]
	if !ok {
		values = make(map[string]any)
		r.values[moduleName] = values
	}
	for key, spec := range schema {
		if _, exists := values[key]; !exists && spec.Default != nil {
			values[key] = spec.Default
		}
	}
}

// Has reports whether moduleName has a registered schema.
func (r *ResolvedConfig) Has(moduleName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.schemas[moduleName]
	return ok
}

// Keys returns every module name with a registered schema.
func (r *ResolvedConfig) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.schemas))
	for k := range r.schemas {
		keys = append(keys, k)
	}
	return keys
}

// Schemas returns a defensive copy of every registered module's schema,
// for callers (the Manager's loaders) that need the full key set rather
// than one key at a time.
func (r *ResolvedConfig) Schemas() map[string]Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Schema, len(r.schemas))
	for module, schema := range r.schemas {
		copySchema := make(Schema, len(schema))
		for k, v := range schema {
			copySchema[k] = v
		}
		out[module] = copySchema
	}
	return out
}

// Spec returns the schema entry for (module, key).
func (r *ResolvedConfig) Spec(moduleName, key string) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	schema, ok := r.schemas[moduleName]
	if !ok {
		return Spec{}, false
	}
	spec, ok := schema[key]
	return spec, ok
}

// Get returns the current typed value for (module, key).
func (r *ResolvedConfig) Get(moduleName, key string) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	values, ok := r.values[moduleName]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownKey, moduleName, key)
	}
	value, ok := values[key]
	if !ok {
		if _, hasKey := r.schemas[moduleName][key]; !hasKey {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownKey, moduleName, key)
		}
		return nil, nil
	}
	return value, nil
}

// load writes value for (module, key) without firing watchers or
// requiring a pre-existing schema key — used internally by loaders, which
// run before required-value enforcement and may populate keys the schema
// declares but no earlier source touched. Unlike Set, load is silent.
func (r *ResolvedConfig) load(moduleName, key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	values, ok := r.values[moduleName]
	if !ok {
		values = make(map[string]any)
		r.values[moduleName] = values
	}
	values[key] = value
}

// Set writes value for (module, key), rejecting unknown (module, key)
// pairs and whole-module-object assignment, then synchronously fires
// every matching watcher in registration order (§4.4, §5, §8 law 4).
func (r *ResolvedConfig) Set(moduleName, key string, value any) error {
	r.mu.Lock()
	schema, ok := r.schemas[moduleName]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s.%s", ErrUnknownKey, moduleName, key)
	}
	if key == "" {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrWholeModule, moduleName)
	}
	spec, ok := schema[key]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s.%s", ErrUnknownKey, moduleName, key)
	}
	if _, isMap := value.(map[string]any); isMap && spec.Type != TypeRecord && spec.Type != TypeInternal {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s.%s", ErrWholeModule, moduleName, key)
	}

	coerced, err := Coerce(spec, value)
	if err != nil {
		r.mu.Unlock()
		return err
	}

	r.values[moduleName][key] = coerced
	watchers := append([]Watcher(nil), r.watchers...)
	r.mu.Unlock()

	for _, w := range watchers {
		if w.Module != "" && w.Module != moduleName {
			continue
		}
		if w.Key != "" && !strings.EqualFold(w.Key, key) {
			continue
		}
		w.Fn(moduleName, key, coerced)
	}
	return nil
}

// OnUpdate registers w. Filters are matched case-insensitively on key
// name; an empty Module or Key matches any value for that dimension.
func (r *ResolvedConfig) OnUpdate(w Watcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watchers = append(r.watchers, w)
}

// Merge deep-merges partial into the resolved values, applied after
// module declarations and loaders so bootstrap options win (§4.4 merge).
// Unknown (module, key) pairs in partial are silently ignored rather than
// erroring — merge is meant for BootstrapOptions.Configuration overrides
// supplied by the same caller who assembled the application, and a typo'd
// key there should surface as "the override didn't take" during testing,
// not as a hard bootstrap failure; RequiredConfig enforcement still runs
// after Merge and will catch the case where an override was supposed to
// satisfy a required key but didn't land.
func (r *ResolvedConfig) Merge(partial map[string]map[string]any) {
	for moduleName, keys := range partial {
		for key, value := range keys {
			_ = r.Set(moduleName, key, value)
		}
	}
}

// MissingRequired returns every (module, key) whose Spec.Required is true
// but which still has no resolved value after loaders and Merge complete.
func (r *ResolvedConfig) MissingRequired() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var missing []string
	for moduleName, schema := range r.schemas {
		for key, spec := range schema {
			if !spec.Required {
				continue
			}
			if _, ok := r.values[moduleName][key]; !ok {
				missing = append(missing, moduleName+"."+key)
			}
		}
	}
	return missing
}

// Snapshot returns a defensive copy of the full resolved value map, for
// diagnostics and tests.
func (r *ResolvedConfig) Snapshot() map[string]map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]map[string]any, len(r.values))
	for module, keys := range r.values {
		inner := make(map[string]any, len(keys))
		for k, v := range keys {
			inner[k] = v
		}
		out[module] = inner
	}
	return out
}
