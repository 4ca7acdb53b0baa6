package kernel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateLibraryRequiresName(t *testing.T) {
	r := NewRegistry()
	_, err := r.CreateLibrary(LibraryDef{})
	require.ErrorIs(t, err, ErrMissingLibraryName)
}

func TestCreateLibraryRejectsNilFactory(t *testing.T) {
	r := NewRegistry()
	_, err := r.CreateLibrary(LibraryDef{
		Name:     "widgets",
		Services: map[string]ServiceFactory{"store": nil},
	})
	require.ErrorIs(t, err, ErrInvalidServiceDefinition)
}

func TestCreateLibraryRejectsDuplicatePriority(t *testing.T) {
	r := NewRegistry()
	factory := func(ctx context.Context, p ServiceParams) (any, error) { return nil, nil }
	_, err := r.CreateLibrary(LibraryDef{
		Name:         "widgets",
		Services:     map[string]ServiceFactory{"store": factory},
		PriorityInit: []string{"store", "store"},
	})
	require.ErrorIs(t, err, ErrDoublePriority)
}

func TestCreateLibraryRejectsUnknownPriorityReference(t *testing.T) {
	r := NewRegistry()
	factory := func(ctx context.Context, p ServiceParams) (any, error) { return nil, nil }
	_, err := r.CreateLibrary(LibraryDef{
		Name:         "widgets",
		Services:     map[string]ServiceFactory{"store": factory},
		PriorityInit: []string{"nonexistent"},
	})
	require.ErrorIs(t, err, ErrInvalidServiceDefinition)
}

func TestCheckSelfDependencyDetectsTransitiveCycle(t *testing.T) {
	root := &LibraryDefinition{name: "root"}
	mid := &LibraryDefinition{name: "mid", depends: []*LibraryDefinition{root}}
	root.depends = []*LibraryDefinition{mid}

	err := checkSelfDependency(root, root, map[*LibraryDefinition]bool{})
	require.ErrorIs(t, err, ErrBadSort)
}

func TestCreateLibraryNormalizesNilServices(t *testing.T) {
	r := NewRegistry()
	lib, err := r.CreateLibrary(LibraryDef{Name: "widgets"})
	require.NoError(t, err)
	assert.NotNil(t, lib.services)
	assert.Equal(t, "widgets", lib.Name())
}

func TestCreateApplicationRequiresName(t *testing.T) {
	r := NewRegistry()
	_, err := r.CreateApplication(ApplicationDef{})
	require.ErrorIs(t, err, ErrMissingLibraryName)
}

func TestCreateApplicationNormalizesNilLibraries(t *testing.T) {
	r := NewRegistry()
	app, err := r.CreateApplication(ApplicationDef{Name: "myapp"})
	require.NoError(t, err)
	assert.NotNil(t, app.libraries)
	assert.Equal(t, "myapp", app.Name())
}

func TestGetConfigReturnsDeclaredSpec(t *testing.T) {
	r := NewRegistry()
	lib, err := r.CreateLibrary(LibraryDef{
		Name: "widgets",
		ConfigurationSchema: ConfigSchema{
			"SIZE": {Type: ConfigNumber, Default: float64(3)},
		},
	})
	require.NoError(t, err)

	spec, ok := lib.GetConfig("SIZE")
	require.True(t, ok)
	assert.Equal(t, ConfigNumber, spec.Type)

	_, ok = lib.GetConfig("MISSING")
	assert.False(t, ok)
}
