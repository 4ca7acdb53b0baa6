package kernel

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/golobby/cast"

	"github.com/modkernel/kernel/internal/config"
)

// ModuleConfigView is the read-through configuration API handed to a
// service via ServiceParams.Config. It is scoped to the owning module for
// unqualified Get calls, but can still read any other module's resolved
// values through GlobalGet, since services are sometimes legitimately
// cross-cutting (e.g. a config-dump diagnostic service).
type ModuleConfigView interface {
	// Get returns the current value of key within the owning module.
	Get(key string) (any, error)
	// GetString/GetNumber/GetBool/GetStringSlice are typed convenience
	// wrappers over Get; they panic if the stored value cannot be converted
	// to the requested type, since that is a programming error in the
	// calling service, not a runtime condition. The declared schema type is
	// not consulted: a convertible value of another type is converted.
	GetString(key string) string
	GetNumber(key string) float64
	GetBool(key string) bool
	GetStringSlice(key string) []string
	// GlobalGet reads key from an arbitrary module's resolved config.
	GlobalGet(module, key string) (any, error)
	// Set writes key within the owning module (§4.4 set). Rejects an
	// unknown key (ErrConfigKeyNotFound) and rejects assigning a whole
	// module config object (ErrWholeModuleAssign).
	Set(key string, value any) error
	// GlobalSet writes key within an arbitrary module's resolved config.
	GlobalSet(module, key string, value any) error
	// OnUpdate registers fn to run whenever key changes within the owning
	// module (§4.4 onUpdate, scoped to this module for convenience).
	OnUpdate(key string, fn func(value any))
}

type moduleConfigView struct {
	module   string
	resolved *config.ResolvedConfig
}

func newModuleConfigView(module string, resolved *config.ResolvedConfig) ModuleConfigView {
	return &moduleConfigView{module: module, resolved: resolved}
}

func (v *moduleConfigView) Get(key string) (any, error) {
	value, err := v.resolved.Get(v.module, key)
	return value, v.wrapErr(v.module, err)
}

func (v *moduleConfigView) GlobalGet(module, key string) (any, error) {
	value, err := v.resolved.Get(module, key)
	return value, v.wrapErr(module, err)
}

func (v *moduleConfigView) Set(key string, value any) error {
	return v.wrapErr(v.module, v.resolved.Set(v.module, key, value))
}

func (v *moduleConfigView) GlobalSet(module, key string, value any) error {
	return v.wrapErr(module, v.resolved.Set(module, key, value))
}

// wrapErr translates internal/config's ErrUnknownKey/ErrWholeModule into
// the public taxonomy: ErrModuleNotFound when moduleName itself has no
// registered schema, ErrConfigKeyNotFound when the module is known but the
// key isn't, ErrWholeModuleAssign for whole-object assignment.
func (v *moduleConfigView) wrapErr(moduleName string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, config.ErrWholeModule):
		return fmt.Errorf("%w: %v", ErrWholeModuleAssign, err)
	case errors.Is(err, config.ErrUnknownKey):
		if !v.resolved.Has(moduleName) {
			return fmt.Errorf("%w: %v", ErrModuleNotFound, err)
		}
		return fmt.Errorf("%w: %v", ErrConfigKeyNotFound, err)
	default:
		return err
	}
}

func (v *moduleConfigView) OnUpdate(key string, fn func(value any)) {
	v.resolved.OnUpdate(config.Watcher{
		Module: v.module,
		Key:    key,
		Fn:     func(_, _ string, value any) { fn(value) },
	})
}

// castTo converts value to target's type via golobby/cast, formatting it
// as a string first; panicking here only on a genuine mismatch (the
// declared schema type disagreeing with what's actually stored) rather than
// on the merely-differently-typed-but-convertible values Coerce already
// normalizes on the way in.
func castTo(module, key string, value any, target reflect.Type) any {
	converted, err := cast.FromType(fmt.Sprintf("%v", value), target)
	if err != nil {
		panic(fmt.Sprintf("kernel: config %s.%s cannot be read as %s: %v", module, key, target, err))
	}
	return converted
}

var (
	stringType = reflect.TypeOf("")
	numberType = reflect.TypeOf(float64(0))
	boolType   = reflect.TypeOf(false)
)

func (v *moduleConfigView) GetString(key string) string {
	value, err := v.Get(key)
	if err != nil || value == nil {
		return ""
	}
	return castTo(v.module, key, value, stringType).(string)
}

func (v *moduleConfigView) GetNumber(key string) float64 {
	value, err := v.Get(key)
	if err != nil || value == nil {
		return 0
	}
	return castTo(v.module, key, value, numberType).(float64)
}

func (v *moduleConfigView) GetBool(key string) bool {
	value, err := v.Get(key)
	if err != nil || value == nil {
		return false
	}
	return castTo(v.module, key, value, boolType).(bool)
}

func (v *moduleConfigView) GetStringSlice(key string) []string {
	value, err := v.Get(key)
	if err != nil || value == nil {
		return nil
	}
	switch s := value.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				panic(fmt.Sprintf("kernel: config %s.%s is not a string slice", v.module, key))
			}
			out = append(out, str)
		}
		return out
	default:
		panic(fmt.Sprintf("kernel: config %s.%s is not a string slice", v.module, key))
	}
}
