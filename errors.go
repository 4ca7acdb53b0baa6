package kernel

import "errors"

// Construction-time errors, returned synchronously by Registry creators.
var (
	ErrMissingLibraryName       = errors.New("MissingLibraryName")
	ErrInvalidServiceDefinition = errors.New("InvalidServiceDefinition")
	ErrDuplicateService         = errors.New("DuplicateService")
	ErrDoublePriority           = errors.New("DoublePriority")
)

// Plan-time errors, raised at the start of Bootstrap.
var (
	ErrMissingDependency = errors.New("MissingDependency")
	ErrBadSort           = errors.New("BadSort")
	ErrNoDualBoot        = errors.New("NoDualBoot")
	ErrDoubleBoot        = errors.New("DoubleBoot")
)

// Fatal wiring/configuration errors.
var (
	ErrMissingRequiredConfig = errors.New("MissingRequiredConfig")
	ErrServiceFactoryFailure = errors.New("ServiceFactoryFailure")
)

// UserCallbackFailure marks a failure inside a lifecycle callback or
// scheduler job that the safeExec envelope caught. Logged, never
// propagated, except when it happens before Ready (see lifecycle.go).
var ErrUserCallbackFailure = errors.New("UserCallbackFailure")

// Lookup / access errors, surfaced by the config and service lookup APIs.
var (
	ErrModuleNotFound      = errors.New("module not found")
	ErrConfigKeyNotFound   = errors.New("config key not found")
	ErrWholeModuleAssign   = errors.New("cannot assign a whole module config object")
	ErrServiceNotFound     = errors.New("service not found")
	ErrNoActiveApplication = errors.New("no active application")
)
