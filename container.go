package kernel

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/modkernel/kernel/internal/config"
	"github.com/modkernel/kernel/internal/configwatch"
	schedulerpkg "github.com/modkernel/kernel/scheduler"
)

const boilerplateModuleName = "boilerplate"

// BootstrapOptions configures a single Kernel.Bootstrap call (§4.4
// BOOTSTRAP_OPTIONS).
type BootstrapOptions struct {
	// AppName scopes the file loader's search path (§4.4); defaults to
	// the application's own Name().
	AppName string
	// ConfigFile, if set, is the --CONFIG override; otherwise the CLI's
	// own --CONFIG switch (parsed from Argv) is honored.
	ConfigFile string
	// EnvFile is the BootstrapOptions-level .env path; the CLI's
	// --env-file switch takes precedence over it.
	EnvFile string
	// Argv defaults to os.Args[1:] when nil.
	Argv []string
	// Configuration is merged over every loader's result last (§4.4
	// "bootstrap merge").
	Configuration map[string]map[string]any
	// Logger overrides the default zap-backed logger.
	Logger Logger
	// CacheProvider selects the boilerplate cache: "memory" (default) or
	// "redis". Equivalent to setting boilerplate.CACHE_PROVIDER directly
	// via Configuration.
	CacheProvider string
	// RedisClient is required when the resolved CACHE_PROVIDER is redis.
	RedisClient *redis.Client
	// WatchConfigFile enables fsnotify-driven live reload of ConfigFile
	// (or the CLI's --CONFIG value). It has no effect when neither is set,
	// since the candidate-search path has no single unambiguous file to
	// watch.
	WatchConfigFile bool
}

// Kernel is the Service Container (§3 component C6): the one mutable,
// process-scoped owner of every shared resource — schema registry,
// planner, lifecycle engine, resolved config, scheduler, cache, event
// bus — and the only thing that actually invokes ServiceFactory values.
type Kernel struct {
	mu sync.Mutex

	planner   *Planner
	lifecycle *LifecycleEngine
	resolved  *config.ResolvedConfig
	scheduler *schedulerpkg.Engine
	cache     Cache
	eventBus  Subject
	logger    Logger

	services map[string]any // "<module>:<service>" -> resolved API

	active         *ApplicationDefinition
	wiredLibraries []*LibraryDefinition
	stopSignals    context.CancelFunc
	boilerplate    *LibraryDefinition
	configWatcher  *configwatch.Watcher
}

// NewKernel returns a Kernel with no active application.
func NewKernel() *Kernel {
	return &Kernel{
		planner:  NewPlanner(),
		services: make(map[string]any),
	}
}

// Bootstrap wires app and every library it declares, loads configuration,
// and drives PreInit -> PostConfig -> Bootstrap -> Ready (§4, §9 wiring
// algorithm). It is an error to call Bootstrap while another application
// is active on this Kernel, or to Bootstrap the same ApplicationDefinition
// twice.
func (k *Kernel) Bootstrap(ctx context.Context, app *ApplicationDefinition, opts BootstrapOptions) (err error) {
	k.mu.Lock()
	if k.active != nil {
		active := k.active
		k.mu.Unlock()
		if active == app {
			return ErrDoubleBoot
		}
		return fmt.Errorf("%w: application %q is already active", ErrNoDualBoot, active.name)
	}
	if app.booted {
		k.mu.Unlock()
		return ErrDoubleBoot
	}
	for _, lib := range app.libraries {
		if lib.booted {
			k.mu.Unlock()
			return fmt.Errorf("%w: library %q is already wired into another application", ErrNoDualBoot, lib.name)
		}
	}
	k.active = app
	k.mu.Unlock()

	// Any failure between here and the final "app.booted = true" must
	// release the active-application slot and the wired libraries' booted
	// flags — otherwise a failed Bootstrap would permanently wedge this
	// Kernel against ErrDoubleBoot, or a retry against ErrNoDualBoot.
	defer func() {
		if err != nil {
			for _, lib := range k.wiredLibraries {
				lib.booted = false
				lib.lifecycle.resetCompleted()
			}
			app.lifecycle.resetCompleted()
			k.mu.Lock()
			k.active = nil
			k.wiredLibraries = nil
			k.mu.Unlock()
		}
	}()

	if opts.Logger != nil {
		k.logger = opts.Logger
	} else {
		base, err := zap.NewProduction()
		if err != nil {
			return fmt.Errorf("build default logger: %w", err)
		}
		k.logger = NewZapLogger(base)
	}

	k.lifecycle = NewLifecycleEngine(k.logger)
	k.resolved = config.NewResolvedConfig()
	k.scheduler = schedulerpkg.NewEngine(k.logger)
	k.eventBus = NewEventBus(k.logger)
	k.services = make(map[string]any)

	bus := k.eventBus
	k.resolved.OnUpdate(config.Watcher{Fn: func(module, key string, _ any) {
		_ = bus.NotifyObservers(context.Background(), newKernelEvent(EventTypeConfigChanged, map[string]any{"module": module, "key": key}))
	}})

	k.boilerplate = newBoilerplateModule()
	k.resolved.RegisterSchema(boilerplateModuleName, k.boilerplate.schema)
	k.lifecycle.Attach(k.boilerplate.lifecycle)

	libs, err := k.planner.SortLibraries(app.libraries, k.logger)
	if err != nil {
		return err
	}
	k.wiredLibraries = libs

	for _, lib := range libs {
		k.resolved.RegisterSchema(lib.name, lib.schema)
		k.lifecycle.Attach(lib.lifecycle)
	}
	k.resolved.RegisterSchema(app.name, app.schema)
	k.lifecycle.Attach(app.lifecycle)

	appName := opts.AppName
	if appName == "" {
		appName = app.name
	}
	argv := opts.Argv
	if argv == nil {
		argv = config.DefaultArgv()
	}
	switches := config.ParseReservedSwitches(argv)
	configFile := opts.ConfigFile
	if switches.ConfigFile != "" {
		configFile = switches.ConfigFile
	}

	cwd, _ := os.Getwd()
	home, _ := os.UserHomeDir()

	manager := config.NewManager(k.resolved)
	missing, err := manager.Initialize(config.Options{
		AppName:       appName,
		ConfigFile:    configFile,
		EnvFile:       opts.EnvFile,
		EnvFileSwitch: switches.EnvFile,
		Argv:          argv,
		Overrides:     opts.Configuration,
		Cwd:           cwd,
		Home:          home,
	})
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		k.logger.Fatal("missing required configuration, aborting bootstrap", "keys", missing)
		return fmt.Errorf("%w: %v", ErrMissingRequiredConfig, missing)
	}

	if err := k.setUpCache(opts); err != nil {
		return err
	}

	if opts.WatchConfigFile && configFile != "" {
		fileLoader := config.FileLoader{AppName: appName, Cwd: cwd, Home: home, Override: configFile}
		watcher, werr := configwatch.New(configFile, func() ([]string, error) {
			return manager.ReloadFile(fileLoader)
		}, k.logger)
		if werr != nil {
			k.logger.Error("could not start config file watcher", "path", configFile, "error", werr)
		} else {
			k.configWatcher = watcher
		}
	}

	if err := k.wireModule(ctx, boilerplateModuleName, k.boilerplate.services, k.boilerplate.priorityInit, k.boilerplate.lifecycle); err != nil {
		return err
	}
	for _, lib := range libs {
		if err := k.wireModule(ctx, lib.name, lib.services, lib.priorityInit, lib.lifecycle); err != nil {
			return err
		}
		lib.booted = true
	}
	if err := k.wireModule(ctx, app.name, app.services, app.priorityInit, app.lifecycle); err != nil {
		return err
	}

	k.installSignalHandler(ctx)

	if err := k.runOrAbort(ctx, PreInit); err != nil {
		return err
	}
	if err := k.runOrAbort(ctx, PostConfig); err != nil {
		return err
	}
	if err := k.runOrAbort(ctx, Bootstrap); err != nil {
		return err
	}
	k.scheduler.Start()
	if err := k.runOrAbort(ctx, Ready); err != nil {
		return err
	}

	app.booted = true
	return nil
}

func (k *Kernel) runOrAbort(ctx context.Context, stage Stage) error {
	_ = k.eventBus.NotifyObservers(ctx, newKernelEvent(EventTypeLifecycleStageStart, map[string]any{"stage": stage.String()}))
	err := k.lifecycle.RunStage(ctx, stage)
	_ = k.eventBus.NotifyObservers(ctx, newKernelEvent(EventTypeLifecycleStageDone, map[string]any{"stage": stage.String()}))
	if err != nil && stage != Ready {
		return fmt.Errorf("%w: stage %s: %v", ErrServiceFactoryFailure, stage.String(), err)
	}
	return nil
}

func (k *Kernel) setUpCache(opts BootstrapOptions) error {
	providerName := opts.CacheProvider
	if providerName == "" {
		provider, _ := k.resolved.Get(boilerplateModuleName, "CACHE_PROVIDER")
		providerName, _ = provider.(string)
	}
	if providerName == "" {
		providerName = "memory"
	}

	switch providerName {
	case "redis":
		if opts.RedisClient == nil {
			return fmt.Errorf("%w: boilerplate.CACHE_PROVIDER=redis requires BootstrapOptions.RedisClient", ErrMissingRequiredConfig)
		}
		k.cache = NewRedisCache(opts.RedisClient)
	default:
		k.cache = NewMemoryCache()
	}
	return nil
}

// wireModule constructs every service in moduleName's wire order, storing
// results under "<module>:<service>" and making everything wired so far
// visible as Peers to the next factory in the same Bootstrap call (§4.2,
// §4.6 Peers).
func (k *Kernel) wireModule(ctx context.Context, moduleName string, services map[string]ServiceFactory, priorityInit []string, lifecycle *moduleLifecycle) error {
	order, err := k.planner.WireOrder(priorityInit, services)
	if err != nil {
		return err
	}

	view := newModuleConfigView(moduleName, k.resolved)

	for _, name := range order {
		factory := services[name]
		serviceKey := moduleName + ":" + name
		k.mu.Lock()
		if _, exists := k.services[serviceKey]; exists {
			k.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrDuplicateService, serviceKey)
		}
		peers := make(map[string]any, len(k.services))
		for key, value := range k.services {
			peers[key] = value
		}
		k.mu.Unlock()

		params := ServiceParams{
			Context:   serviceKey,
			Logger:    taggedOrSelf(k.logger, serviceKey),
			Config:    view,
			Lifecycle: lifecycle,
			Scheduler: newScopedScheduler(serviceKey, k.scheduler),
			Cache:     k.cache,
			Event:     k.eventBus,
			Internal:  map[string]any{"boilerplate": k.boilerplate},
			Peers:     peers,
		}

		result, err := factory(ctx, params)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrServiceFactoryFailure, serviceKey, err)
		}

		k.mu.Lock()
		k.services[serviceKey] = result
		k.mu.Unlock()

		_ = k.eventBus.NotifyObservers(ctx, newKernelEvent(EventTypeServiceWired, map[string]any{"service": serviceKey}))
	}

	_ = k.eventBus.NotifyObservers(ctx, newKernelEvent(EventTypeModuleWired, map[string]any{"module": moduleName}))
	return nil
}

// installSignalHandler arranges for SIGINT/SIGTERM to trigger Teardown.
// The returned stop function is stashed so a later explicit Teardown call
// detaches it cleanly instead of leaking the signal.NotifyContext.
func (k *Kernel) installSignalHandler(ctx context.Context) {
	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	detached := make(chan struct{})
	var detachOnce sync.Once
	k.stopSignals = func() {
		detachOnce.Do(func() { close(detached) })
		stop()
	}
	go func() {
		select {
		case <-detached:
			return
		case <-signalCtx.Done():
		}
		select {
		case <-detached:
		default:
			_ = k.Teardown(context.Background())
		}
	}()
}

// Teardown runs PreShutdown then ShutdownStart then ShutdownComplete,
// stops the scheduler, and releases the active application slot. It also
// clears app.booted, every wired library's booted flag, and each of their
// moduleLifecycle's completed-stage bookkeeping (§4.6, §8 invariant 6): a
// LibraryDefinition/ApplicationDefinition's lifecycle handle is created once
// at CreateLibrary/CreateApplication time and outlives this Bootstrap call,
// so without resetting it a second Bootstrap of the same application would
// fail DoubleBoot, or — if that gate were bypassed — treat every stage as
// already complete. Safe to call when nothing is active (logs and returns
// nil).
func (k *Kernel) Teardown(ctx context.Context) error {
	k.mu.Lock()
	app := k.active
	k.mu.Unlock()
	if app == nil {
		if k.logger != nil {
			k.logger.Info("teardown called with no active application")
		}
		return nil
	}

	if err := k.lifecycle.RunStage(ctx, PreShutdown); err != nil {
		k.logger.Error("error during PreShutdown", "error", err)
	}
	k.scheduler.Stop(ctx)
	if err := k.lifecycle.RunStage(ctx, ShutdownStart); err != nil {
		k.logger.Error("error during ShutdownStart", "error", err)
	}
	if err := k.lifecycle.RunStage(ctx, ShutdownComplete); err != nil {
		k.logger.Error("error during ShutdownComplete", "error", err)
	}

	if k.stopSignals != nil {
		k.stopSignals()
	}
	if k.configWatcher != nil {
		_ = k.configWatcher.Close()
		k.configWatcher = nil
	}

	app.booted = false
	app.lifecycle.resetCompleted()
	for _, lib := range k.wiredLibraries {
		lib.booted = false
		lib.lifecycle.resetCompleted()
	}

	k.mu.Lock()
	k.active = nil
	k.wiredLibraries = nil
	k.mu.Unlock()
	return nil
}

// Service returns the resolved API of a wired service, keyed exactly as
// wireModule stores it: "<moduleName>:<serviceName>". Mirrors the
// lookup-by-name accessor a service container conventionally exposes
// alongside the Peers map threaded through ServiceParams, for callers
// outside the wiring graph (diagnostics, tests, a hosting main()).
func (k *Kernel) Service(key string) (any, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.active == nil {
		return nil, ErrNoActiveApplication
	}
	v, ok := k.services[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, key)
	}
	return v, nil
}

// newBoilerplateModule builds the kernel's own always-present module,
// exposing the process-wide cache provider choice as ordinary
// configuration rather than a special-cased bootstrap flag.
func newBoilerplateModule() *LibraryDefinition {
	return &LibraryDefinition{
		name: boilerplateModuleName,
		schema: ConfigSchema{
			"CACHE_PROVIDER": {
				Type:        ConfigString,
				Default:     "memory",
				Enum:        []string{"memory", "redis"},
				Description: "backing store for the process-wide Cache collaborator",
			},
		},
		services:  map[string]ServiceFactory{},
		lifecycle: newModuleLifecycle(boilerplateModuleName),
	}
}
