package config

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

// Options configures a single Manager.Initialize call. Everything here
// models §4.4's BOOTSTRAP_OPTIONS configuration-related fields.
type Options struct {
	AppName string
	// ConfigFile, if non-empty, overrides the file loader's candidate
	// search with this single path (the --CONFIG switch).
	ConfigFile string
	// EnvFile, if non-empty, is BootstrapOptions.EnvFile; the --env-file
	// switch (parsed out of Argv by the caller before calling Initialize)
	// takes precedence over it.
	EnvFile       string
	EnvFileSwitch string
	Argv          []string
	// Overrides is applied last, after every loader (the bootstrap merge).
	Overrides map[string]map[string]any
	Cwd       string
	Home      string
	// Environ is injectable for tests; nil means os.Environ().
	Environ func() []string
}

// Manager owns the full LOAD_PROJECT / INITIALIZE sequence: schema
// registration already happened (via ResolvedConfig.RegisterSchema,
// driven by the Container as it wires modules); Manager runs the ordered
// loaders, applies overrides, and enforces required keys.
type Manager struct {
	resolved *ResolvedConfig
}

// NewManager returns a Manager bound to resolved, which must already have
// every module's schema registered.
func NewManager(resolved *ResolvedConfig) *Manager {
	return &Manager{resolved: resolved}
}

// Initialize runs file, then environment, then CLI loaders (each
// overriding the last per key), then applies opts.Overrides, then checks
// MissingRequired. A non-empty return from MissingRequired is the
// caller's cue to fail bootstrap (§4.4 "missing required config is
// fatal").
func (m *Manager) Initialize(opts Options) ([]string, error) {
	if err := LoadDotEnv(ResolveEnvFile(opts.EnvFileSwitch, opts.EnvFile)); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	schemas := m.resolved.Schemas()

	fileLoader := FileLoader{
		AppName:  opts.AppName,
		Cwd:      opts.Cwd,
		Home:     opts.Home,
		Override: opts.ConfigFile,
	}
	if err := m.apply(fileLoader, schemas); err != nil {
		return nil, fmt.Errorf("file loader: %w", err)
	}

	envLoader := EnvLoader{Environ: opts.Environ}
	if err := m.apply(envLoader, schemas); err != nil {
		return nil, fmt.Errorf("environment loader: %w", err)
	}

	cliLoader := CLILoader{Argv: opts.Argv}
	if err := m.apply(cliLoader, schemas); err != nil {
		return nil, fmt.Errorf("cli loader: %w", err)
	}

	m.resolved.Merge(opts.Overrides)

	return m.resolved.MissingRequired(), nil
}

// ReloadFile re-runs fileLoader and applies every value it finds through
// Set (unlike apply/load, which write silently) so any registered
// onUpdate watcher fires — the path used by configwatch's fsnotify-driven
// live reload. Returns the "module.key" strings it wrote.
func (m *Manager) ReloadFile(fileLoader FileLoader) ([]string, error) {
	schemas := m.resolved.Schemas()
	values, err := fileLoader.Load(schemas)
	if err != nil {
		return nil, err
	}

	var changed []string
	for module, keys := range values {
		for key, value := range keys {
			if _, ok := m.resolved.Spec(module, key); !ok {
				continue
			}
			if err := m.resolved.Set(module, key, value); err != nil {
				return changed, fmt.Errorf("%s.%s: %w", module, key, err)
			}
			changed = append(changed, module+"."+key)
		}
	}
	return changed, nil
}

// apply loads values via l, skips any (module, key) the schema does not
// declare, coerces each remaining value with Coerce, and stores it through
// the internal, non-watcher-firing load path.
func (m *Manager) apply(l Loader, schemas map[string]Schema) error {
	values, err := l.Load(schemas)
	if err != nil {
		return err
	}
	for module, keys := range values {
		for key, value := range keys {
			spec, ok := m.resolved.Spec(module, key)
			if !ok {
				continue
			}
			coerced, err := Coerce(spec, value)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", module, key, err)
			}
			m.resolved.load(module, key, coerced)
		}
	}
	return nil
}

// ReservedSwitches holds the two statically-known CLI switches resolved
// before any module's schema exists. Unlike the per-module switches the
// dynamic CLI loader scans for, these two have a fixed name and are
// parsed with pflag — a FlagSet declared up front is exactly pflag's
// model, and this is the one place in the CLI surface where the flag set
// is known ahead of time.
type ReservedSwitches struct {
	ConfigFile string
	EnvFile    string
}

// ParseReservedSwitches extracts --CONFIG and --env-file from argv,
// ignoring every other flag (the dynamic loader re-scans argv itself for
// schema-driven switches once schemas are known).
func ParseReservedSwitches(argv []string) ReservedSwitches {
	fs := pflag.NewFlagSet("kernel-reserved", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.Usage = func() {}

	configFile := fs.String("CONFIG", "", "path to a single configuration file, overriding the default search")
	envFile := fs.String("env-file", "", "path to a .env file to preload before the environment loader runs")

	_ = fs.Parse(argv)

	return ReservedSwitches{ConfigFile: *configFile, EnvFile: *envFile}
}

// DefaultArgv returns os.Args[1:], the conventional CLI loader input.
func DefaultArgv() []string {
	if len(os.Args) <= 1 {
		return nil
	}
	return os.Args[1:]
}
