package kernel

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/cucumber/godog"

	"github.com/modkernel/kernel/internal/config"
)

// kernelBDDContext threads state across a scenario's steps, grounded on the
// teacher's CacheBDDTestContext pattern (modules/cache/cache_module_bdd_test.go):
// one struct per scenario, reset before every scenario runs.
type kernelBDDContext struct {
	resolved *config.ResolvedConfig

	homeDir string
	cwdDir  string

	kernel      *Kernel
	app         *ApplicationDefinition
	bootErr     error
	secondErr   error
	readyCalled bool

	watcherCalls int
}

func (c *kernelBDDContext) reset() {
	c.resolved = config.NewResolvedConfig()
	c.homeDir = ""
	c.cwdDir = ""
	c.kernel = nil
	c.app = nil
	c.bootErr = nil
	c.secondErr = nil
	c.readyCalled = false
	c.watcherCalls = 0
}

func (c *kernelBDDContext) aModuleDeclaringAStringKeyWithDefault(module, key, def string) error {
	c.resolved.RegisterSchema(module, config.Schema{
		key: {Type: config.TypeString, Default: def},
	})
	return nil
}

func (c *kernelBDDContext) configurationIsResolvedWithNoEnvNoCLIAndNoFile() error {
	manager := config.NewManager(c.resolved)
	_, err := manager.Initialize(config.Options{Environ: func() []string { return nil }})
	return err
}

func (c *kernelBDDContext) configurationIsResolvedWithEnv(pair string) error {
	manager := config.NewManager(c.resolved)
	_, err := manager.Initialize(config.Options{Environ: func() []string { return []string{pair} }})
	return err
}

func (c *kernelBDDContext) configurationIsResolvedWithEnvAndCLI(envPair, cliFlag string) error {
	manager := config.NewManager(c.resolved)
	_, err := manager.Initialize(config.Options{
		Environ: func() []string { return []string{envPair} },
		Argv:    []string{cliFlag},
	})
	return err
}

func (c *kernelBDDContext) resolvesTo(dotted, expected string) error {
	parts := strings.SplitN(dotted, ".", 2)
	value, err := c.resolved.Get(parts[0], parts[1])
	if err != nil {
		return err
	}
	if value != expected {
		return fmt.Errorf("expected %s to resolve to %q, got %v", dotted, expected, value)
	}
	return nil
}

// aHomeDirectoryConfigFileWith writes a YAML file to the "<home>/.config/<app>"
// candidate base, which FileLoader.candidates() lists after the cwd base —
// so a key set here overrides the same key set in the current-directory file.
func (c *kernelBDDContext) aHomeDirectoryConfigFileWith(contents string) error {
	c.homeDir = c.mkdir("home")
	dir := c.homeDir + "/.config"
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	value := strings.TrimPrefix(contents, "string: ")
	return os.WriteFile(dir+"/widgetapp.yaml", []byte(fmt.Sprintf("testing:\n  string: %q\n", value)), 0o644)
}

// aCurrentDirectoryConfigFileWith writes an INI file to the "<cwd>/.<app>"
// candidate base, which FileLoader.candidates() lists before the home base.
func (c *kernelBDDContext) aCurrentDirectoryConfigFileWith(contents string) error {
	c.cwdDir = c.mkdir("cwd")
	return os.WriteFile(c.cwdDir+"/.widgetapp.ini", []byte("[testing]\n"+contents+"\n"), 0o644)
}

func (c *kernelBDDContext) mkdir(name string) string {
	dir, _ := os.MkdirTemp("", "kernel-bdd-"+name+"-*")
	return dir
}

func (c *kernelBDDContext) resolveFromCwdAndHome() error {
	c.resolved = config.NewResolvedConfig()
	c.resolved.RegisterSchema("testing", config.Schema{"string": {Type: config.TypeString}})
	manager := config.NewManager(c.resolved)
	_, err := manager.Initialize(config.Options{
		AppName: "widgetapp",
		Cwd:     c.cwdDir,
		Home:    c.homeDir,
		Environ: func() []string { return nil },
	})
	return err
}

func (c *kernelBDDContext) configurationIsResolvedFromThoseFiles() error {
	return c.resolveFromCwdAndHome()
}

func (c *kernelBDDContext) theHomeDirectoryFileIsRemovedAndConfigurationIsReResolved() error {
	if err := os.Remove(c.homeDir + "/.config/widgetapp.yaml"); err != nil {
		return err
	}
	return c.resolveFromCwdAndHome()
}

func (c *kernelBDDContext) aLibraryDeclaringARequiredStringKeyWithNoDefault(name, key string) error {
	reg := NewRegistry()
	lib, err := reg.CreateLibrary(LibraryDef{
		Name:                name,
		ConfigurationSchema: ConfigSchema{key: {Type: ConfigString, Required: true}},
	})
	if err != nil {
		return err
	}
	app, err := reg.CreateApplication(ApplicationDef{Name: "app-" + name, Libraries: []*LibraryDefinition{lib}})
	if err != nil {
		return err
	}
	app.Lifecycle().OnReady(func(ctx context.Context) error {
		c.readyCalled = true
		return nil
	})
	c.app = app
	return nil
}

func (c *kernelBDDContext) noSourceProvides(string) error { return nil }

func (c *kernelBDDContext) theApplicationIsBootstrapped() error {
	c.kernel = NewKernel()
	c.bootErr = c.kernel.Bootstrap(context.Background(), c.app, BootstrapOptions{
		Logger: &fatalRecorder{},
		Argv:   []string{},
	})
	return nil
}

func (c *kernelBDDContext) bootstrapFailsWith(code string) error {
	if c.bootErr == nil || !strings.Contains(c.bootErr.Error(), code) {
		return fmt.Errorf("expected bootstrap error to contain %q, got %v", code, c.bootErr)
	}
	return nil
}

func (c *kernelBDDContext) noReadyCallbackIsEverInvoked() error {
	if c.readyCalled {
		return fmt.Errorf("expected Ready callback not to run")
	}
	return nil
}

func (c *kernelBDDContext) aWatcherRegisteredForModuleKey(module, key string) error {
	c.resolved.RegisterSchema(module, config.Schema{strings.ToUpper(key): {Type: config.TypeString}, "LOG_LEVEL": {Type: config.TypeString}})
	c.resolved.RegisterSchema("test", config.Schema{strings.ToUpper(key): {Type: config.TypeString}})
	c.resolved.OnUpdate(config.Watcher{Module: module, Key: key, Fn: func(_, _ string, _ any) {
		c.watcherCalls++
	}})
	return nil
}

func (c *kernelBDDContext) isSetTo(dotted, value string) error {
	parts := strings.SplitN(dotted, ".", 2)
	return c.resolved.Set(parts[0], parts[1], value)
}

func (c *kernelBDDContext) theWatcherIsCalledExactlyOnce() error {
	if c.watcherCalls != 1 {
		return fmt.Errorf("expected watcher to have been called exactly once, got %d", c.watcherCalls)
	}
	return nil
}

func (c *kernelBDDContext) aBootstrappedApplication() error {
	reg := NewRegistry()
	app, err := reg.CreateApplication(ApplicationDef{Name: "onceonly"})
	if err != nil {
		return err
	}
	c.app = app
	c.kernel = NewKernel()
	c.bootErr = c.kernel.Bootstrap(context.Background(), app, BootstrapOptions{Logger: &fatalRecorder{}})
	return c.bootErr
}

func (c *kernelBDDContext) bootstrapIsAttemptedAgainWithoutATeardown() error {
	c.secondErr = c.kernel.Bootstrap(context.Background(), c.app, BootstrapOptions{Logger: &fatalRecorder{}})
	return nil
}

func (c *kernelBDDContext) theSecondBootstrapFailsWith(code string) error {
	if c.secondErr == nil || !strings.Contains(c.secondErr.Error(), code) {
		return fmt.Errorf("expected second bootstrap error to contain %q, got %v", code, c.secondErr)
	}
	return nil
}

func (c *kernelBDDContext) theFirstApplicationRemainsActive() error {
	c.kernel.mu.Lock()
	defer c.kernel.mu.Unlock()
	if c.kernel.active != c.app {
		return fmt.Errorf("expected first application to remain active")
	}
	return nil
}

func TestKernelBDD(t *testing.T) {
	testCtx := &kernelBDDContext{}

	suite := godog.TestSuite{
		ScenarioInitializer: func(sc *godog.ScenarioContext) {
			sc.Before(func(ctx context.Context, s *godog.Scenario) (context.Context, error) {
				testCtx.reset()
				return ctx, nil
			})

			sc.Step(`^a module "([^"]*)" declaring a string key "([^"]*)" with default "([^"]*)"$`, testCtx.aModuleDeclaringAStringKeyWithDefault)
			sc.Step(`^configuration is resolved with no env, no CLI, and no file$`, testCtx.configurationIsResolvedWithNoEnvNoCLIAndNoFile)
			sc.Step(`^configuration is resolved with env "([^"]*)"$`, testCtx.configurationIsResolvedWithEnv)
			sc.Step(`^configuration is resolved with env "([^"]*)" and CLI "([^"]*)"$`, testCtx.configurationIsResolvedWithEnvAndCLI)
			sc.Step(`^"([^"]*)" resolves to "([^"]*)"$`, testCtx.resolvesTo)
			sc.Step(`^a home-directory config file with "([^"]*)"$`, testCtx.aHomeDirectoryConfigFileWith)
			sc.Step(`^a current-directory config file with "([^"]*)"$`, testCtx.aCurrentDirectoryConfigFileWith)
			sc.Step(`^configuration is resolved from those files$`, testCtx.configurationIsResolvedFromThoseFiles)
			sc.Step(`^the home-directory file is removed and configuration is re-resolved$`, testCtx.theHomeDirectoryFileIsRemovedAndConfigurationIsReResolved)
			sc.Step(`^a library "([^"]*)" declaring a required string key "([^"]*)" with no default$`, testCtx.aLibraryDeclaringARequiredStringKeyWithNoDefault)
			sc.Step(`^no source provides "([^"]*)"$`, testCtx.noSourceProvides)
			sc.Step(`^the application is bootstrapped$`, testCtx.theApplicationIsBootstrapped)
			sc.Step(`^bootstrap fails with "([^"]*)"$`, testCtx.bootstrapFailsWith)
			sc.Step(`^no Ready callback is ever invoked$`, testCtx.noReadyCallbackIsEverInvoked)
			sc.Step(`^a watcher registered for module "([^"]*)" key "([^"]*)"$`, testCtx.aWatcherRegisteredForModuleKey)
			sc.Step(`^"([^"]*)" is set to "([^"]*)"$`, testCtx.isSetTo)
			sc.Step(`^the watcher is called exactly once$`, testCtx.theWatcherIsCalledExactlyOnce)
			sc.Step(`^the watcher is still called exactly once$`, testCtx.theWatcherIsCalledExactlyOnce)
			sc.Step(`^a bootstrapped application$`, testCtx.aBootstrappedApplication)
			sc.Step(`^bootstrap is attempted again without a teardown$`, testCtx.bootstrapIsAttemptedAgainWithoutATeardown)
			sc.Step(`^the second bootstrap fails with "([^"]*)"$`, testCtx.theSecondBootstrapFailsWith)
			sc.Step(`^the first application remains active$`, testCtx.theFirstApplicationRemainsActive)
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"testdata/features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
