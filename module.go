// Package kernel implements the application runtime kernel of a modular
// service framework: an orchestrator that composes libraries and an
// application out of named services, resolves their dependencies, threads
// configuration through them from multiple sources, drives them through an
// ordered lifecycle, and provides the shared facilities (scheduling,
// structured logging, cache, configuration watching) services rely on.
//
// HTTP bindings, domain extensions, metrics exporters and other outer
// surfaces are external collaborators; they consume the interfaces this
// package exposes (Lifecycle, Scheduler, Logger, Cache) but are not
// implemented here.
package kernel

import (
	"context"

	"github.com/modkernel/kernel/internal/config"
)

// ConfigType enumerates the primitive shapes a config value may take.
// It is an alias onto internal/config.Type: the config package is kept
// free of any dependency on this package, so the canonical type lives
// there and this package re-exports it under its public name.
type ConfigType = config.Type

const (
	ConfigString      = config.TypeString
	ConfigNumber      = config.TypeNumber
	ConfigBoolean     = config.TypeBoolean
	ConfigStringSlice = config.TypeStringSlice
	ConfigRecord      = config.TypeRecord
	ConfigInternal    = config.TypeInternal
)

// ConfigSpec describes a single configuration key within a module's schema.
type ConfigSpec = config.Spec

// ConfigSchema maps a config key to its spec.
type ConfigSchema = config.Schema

// ServiceParams is the fixed bundle injected into every ServiceFactory.
// It replaces the dynamic parameter bundle pattern with an explicit record
// plus a separate peers map for cross-module APIs.
type ServiceParams struct {
	// Context is "<module>:<service>", used in logs and metric labels.
	Context string
	// Logger is pre-tagged with Context.
	Logger Logger
	// Config is a read-through view bound to the owning module's schema,
	// plus the global read API.
	Config ModuleConfigView
	// Lifecycle is the module's lifecycle handle.
	Lifecycle LifecycleHandle
	// Scheduler is scoped to Context.
	Scheduler Scheduler
	// Cache is the process-wide cache collaborator.
	Cache Cache
	// Event is the process-wide CloudEvents subject.
	Event Subject
	// Internal carries shared, process-wide collaborators not otherwise
	// modeled (e.g. raw access to the boilerplate module's own services).
	Internal map[string]any
	// Peers holds the resolved APIs of every service wired before this
	// one, keyed by "<module>:<service>".
	Peers map[string]any
}

// ServiceFactory builds a service's exported API from its ServiceParams.
// A factory is invoked exactly once. It may return nil if the service has
// no exported API (side-effect only).
type ServiceFactory func(ctx context.Context, params ServiceParams) (any, error)

// ServiceDefinition pairs a factory with a human description; reserved for
// future introspection (e.g. a CLI-driven wiring diagram generator).
type ServiceDefinition struct {
	Factory     ServiceFactory
	Description string
}

// LibraryDef is the user-supplied definition passed to Registry.CreateLibrary.
type LibraryDef struct {
	Name                string
	ConfigurationSchema ConfigSchema
	Services            map[string]ServiceFactory
	PriorityInit        []string
	Depends             []*LibraryDefinition
}

// ApplicationDef is the user-supplied definition passed to
// Registry.CreateApplication.
type ApplicationDef struct {
	Name                string
	ConfigurationSchema ConfigSchema
	Services            map[string]ServiceFactory
	PriorityInit        []string
	Libraries           []*LibraryDefinition
}

// LibraryDefinition is the opaque, validated result of CreateLibrary.
type LibraryDefinition struct {
	name         string
	schema       ConfigSchema
	services     map[string]ServiceFactory
	priorityInit []string
	depends      []*LibraryDefinition
	booted       bool

	lifecycle *moduleLifecycle
}

// Name returns the library's unique identifier.
func (l *LibraryDefinition) Name() string { return l.name }

// GetConfig exposes this library's declared spec for key, if any.
func (l *LibraryDefinition) GetConfig(key string) (ConfigSpec, bool) {
	spec, ok := l.schema[key]
	return spec, ok
}

// Lifecycle returns this library's lifecycle handle, usable before
// Bootstrap to pre-register callbacks (e.g. from test code).
func (l *LibraryDefinition) Lifecycle() LifecycleHandle { return l.lifecycle }

// ApplicationDefinition is the opaque, validated result of CreateApplication.
type ApplicationDefinition struct {
	name         string
	schema       ConfigSchema
	services     map[string]ServiceFactory
	priorityInit []string
	libraries    []*LibraryDefinition
	booted       bool

	lifecycle *moduleLifecycle
	kernel    *Kernel
}

// Name returns the application's unique identifier.
func (a *ApplicationDefinition) Name() string { return a.name }

// Lifecycle returns the application's lifecycle handle.
func (a *ApplicationDefinition) Lifecycle() LifecycleHandle { return a.lifecycle }

// Bootstrap wires and starts this application. See Kernel.Bootstrap for the
// full sequence; this is a thin convenience wrapper that lazily creates a
// Kernel owned by this application, for callers who don't manage kernels
// themselves.
func (a *ApplicationDefinition) Bootstrap(ctx context.Context, opts BootstrapOptions) error {
	if a.kernel == nil {
		a.kernel = NewKernel()
	}
	return a.kernel.Bootstrap(ctx, a, opts)
}

// Teardown runs PreShutdown -> ShutdownStart -> ShutdownComplete and releases the active
// application slot. Safe to call on a never-booted application (logs and
// returns).
func (a *ApplicationDefinition) Teardown(ctx context.Context) error {
	if a.kernel == nil {
		return nil
	}
	return a.kernel.Teardown(ctx)
}
