package stagepipe

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTypeID(t *testing.T) {
	id, err := ParseTypeID("builtin/lines")
	require.NoError(t, err)
	assert.Equal(t, TypeID{ImplSource: "builtin", ImplType: "lines"}, id)
	assert.Equal(t, "builtin/lines", id.String())

	id, err = ParseTypeID("github.com/acme/stages/dedupe")
	require.NoError(t, err)
	assert.Equal(t, "github.com/acme/stages", id.ImplSource)
	assert.Equal(t, "dedupe", id.ImplType)

	for _, bad := range []string{"", "lines", "/lines", "builtin/"} {
		_, err := ParseTypeID(bad)
		assert.Error(t, err, bad)
	}
}

func TestRegistryRegister(t *testing.T) {
	reg := NewRegistry()
	st := testType("extract", Extractor, ParamList{{Name: "untyped", Value: 1}}, passthrough)
	require.NoError(t, reg.Register(st))

	// Duplicate IDs are rejected
	err := reg.Register(st)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	// Defaults are filled in
	got, ok := reg.Lookup(testID("extract"))
	require.True(t, ok)
	assert.Equal(t, "extractor", got.ElementType)
	assert.Equal(t, DefaultElementSource, got.ElementSource)
	assert.Equal(t, ParamAny, got.Params[0].Type)

	// Incomplete types are rejected
	assert.Error(t, reg.Register(StageType{ID: TypeID{ImplType: "x"}, Category: Extractor, New: st.New}))
	assert.Error(t, reg.Register(StageType{ID: testID("bad-cat"), Category: StageCategory(9), New: st.New}))
	assert.Error(t, reg.Register(StageType{ID: testID("no-factory"), Category: Sorter}))
}

func TestRegistryAvailableAndInstalled(t *testing.T) {
	missing := testType("missing-tool", Sorter, nil, passthrough)
	missing.Installed = func() bool { return false }
	reg := newTestRegistry(t, append(defaultTestTypes(), missing)...)

	infos := reg.Available()
	require.Len(t, infos, 5)
	assert.Equal(t, testID("extract"), infos[0].ID)
	assert.Equal(t, testID("missing-tool"), infos[4].ID)
	assert.True(t, infos[0].Installed)
	assert.False(t, infos[4].Installed)

	assert.True(t, reg.Installed(testID("pre")))
	assert.False(t, reg.Installed(testID("missing-tool")))
	assert.False(t, reg.Installed(testID("unknown")))
}

func TestRegistryInstantiate(t *testing.T) {
	missing := testType("missing-tool", Sorter, nil, passthrough)
	missing.Installed = func() bool { return false }
	reg := newTestRegistry(t, append(defaultTestTypes(), missing)...)

	e, err := reg.Instantiate(testID("pre"))
	require.NoError(t, err)
	assert.Equal(t, PreProcessor, e.Category())
	assert.Equal(t, "pre", e.Name())
	assert.Equal(t, "p", e.Params()[0].Value)

	_, err = reg.Instantiate(testID("unknown"))
	assert.True(t, errors.Is(err, ErrStageUnavailable))

	_, err = reg.Instantiate(testID("missing-tool"))
	assert.True(t, errors.Is(err, ErrStageUnavailable))
	assert.Contains(t, err.Error(), "not installed")
}

func TestRegistryDefaultsAreNotShared(t *testing.T) {
	params := ParamList{{Name: "tags", Type: ParamArray, Value: []any{"a"}}}
	reg := newTestRegistry(t, testType("pre", PreProcessor, params, passthrough))

	// Mutating the caller's list after registration has no effect
	params[0].Value.([]any)[0] = "changed"

	e := mustInstantiate(t, reg, "pre")
	assert.Equal(t, []any{"a"}, e.Params()[0].Value)
}

func TestRegisterStageOnDefaultRegistry(t *testing.T) {
	st := testType("default-registry-check", PostProcessor, nil, passthrough)
	RegisterStage(st)

	e, err := NewElementFromRegistry(st.ID)
	require.NoError(t, err)
	assert.Equal(t, PostProcessor, e.Category())

	assert.Panics(t, func() { RegisterStage(st) })
}
