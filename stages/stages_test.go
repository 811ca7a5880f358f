package stages

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/davidroman0O/stagepipe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T) *stagepipe.Registry {
	t.Helper()
	reg := stagepipe.NewRegistry()
	require.NoError(t, Register(reg))
	return reg
}

// run executes a single stage with the given parameter overrides.
func run(t *testing.T, id stagepipe.TypeID, input any, values map[string]any) (any, error) {
	t.Helper()
	reg := newRegistry(t)
	e, err := reg.Instantiate(id)
	require.NoError(t, err)
	for name, v := range values {
		require.NoError(t, e.SetParam(name, v))
	}
	return e.Run(context.Background(), input, nil)
}

func TestRegisterCatalog(t *testing.T) {
	reg := newRegistry(t)

	infos := reg.Available()
	require.Len(t, infos, len(Types()))
	assert.Equal(t, Lines, infos[0].ID)

	// A second registration collides
	assert.Error(t, Register(reg))
}

func TestLines(t *testing.T) {
	out, err := run(t, Lines, nil, map[string]any{"text": "b\r\na\n\nc\n"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "", "c"}, out)

	path := filepath.Join(t.TempDir(), "in.txt")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\n"), 0o644))
	out, err = run(t, Lines, nil, map[string]any{"path": path})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, out)
}

func TestLinesParameterErrors(t *testing.T) {
	_, err := run(t, Lines, nil, nil)
	assert.True(t, errors.Is(err, stagepipe.ErrParameterInvalid))

	_, err = run(t, Lines, nil, map[string]any{"text": "a", "path": "x"})
	assert.True(t, errors.Is(err, stagepipe.ErrParameterInvalid))

	_, err = run(t, Lines, nil, map[string]any{"path": filepath.Join(t.TempDir(), "missing")})
	require.Error(t, err)
	assert.False(t, errors.Is(err, stagepipe.ErrParameterInvalid))
}

func TestTrim(t *testing.T) {
	out, err := run(t, Trim, []string{"  a ", "", "\t", "b"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out)

	_, err = run(t, Trim, nil, nil)
	assert.Error(t, err)
}

func TestFilter(t *testing.T) {
	in := []string{"error: disk", "info: ok", "error: net"}

	out, err := run(t, Filter, in, map[string]any{"pattern": "^error"})
	require.NoError(t, err)
	assert.Equal(t, []string{"error: disk", "error: net"}, out)

	out, err = run(t, Filter, in, map[string]any{"pattern": "^error", "invert": true})
	require.NoError(t, err)
	assert.Equal(t, []string{"info: ok"}, out)

	_, err = run(t, Filter, in, map[string]any{"pattern": "("})
	assert.True(t, errors.Is(err, stagepipe.ErrParameterInvalid))
}

func TestLuaMap(t *testing.T) {
	in := []string{"apple", "kiwi", "banana"}

	out, err := run(t, LuaMap, in, map[string]any{"script": "string.upper(record)"})
	require.NoError(t, err)
	assert.Equal(t, []string{"APPLE", "KIWI", "BANANA"}, out)

	// nil drops a record
	out, err = run(t, LuaMap, in, map[string]any{"script": "if #record > 4 then return record end"})
	require.NoError(t, err)
	assert.Equal(t, []string{"apple", "banana"}, out)

	// numbers are formatted without a trailing fraction
	out, err = run(t, LuaMap, in, map[string]any{"script": "index * 10"})
	require.NoError(t, err)
	assert.Equal(t, []string{"10", "20", "30"}, out)
}

func TestLuaMapErrors(t *testing.T) {
	_, err := run(t, LuaMap, []string{"a"}, map[string]any{"script": "record +"})
	assert.True(t, errors.Is(err, stagepipe.ErrParameterInvalid))

	_, err = run(t, LuaMap, []string{"a"}, map[string]any{"script": " "})
	assert.True(t, errors.Is(err, stagepipe.ErrParameterInvalid))

	_, err = run(t, LuaMap, []string{"a"}, map[string]any{"script": "error('boom')"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, stagepipe.ErrParameterInvalid))

	// The sandbox has no os library
	_, err = run(t, LuaMap, []string{"a"}, map[string]any{"script": "os.getenv('HOME')"})
	assert.Error(t, err)
}

func TestSort(t *testing.T) {
	in := []string{"pear", "apple", "pear", "fig"}

	out, err := run(t, Sort, in, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"apple", "fig", "pear", "pear"}, out)

	out, err = run(t, Sort, in, map[string]any{"descending": true, "unique": true})
	require.NoError(t, err)
	assert.Equal(t, []string{"pear", "fig", "apple"}, out)

	// The input slice is left alone
	assert.Equal(t, []string{"pear", "apple", "pear", "fig"}, in)
}

func TestExternalSort(t *testing.T) {
	if _, err := exec.LookPath("sort"); err != nil {
		t.Skip("sort command not available")
	}
	reg := newRegistry(t)
	assert.True(t, reg.Installed(ExternalSort))

	in := []string{"pear", "apple", "pear", "fig"}
	out, err := run(t, ExternalSort, in, map[string]any{"unique": true})
	require.NoError(t, err)
	assert.Equal(t, []string{"apple", "fig", "pear"}, out)

	out, err = run(t, ExternalSort, []string{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{}, out)
}

func TestHead(t *testing.T) {
	in := []string{"a", "b", "c"}

	out, err := run(t, Head, in, map[string]any{"count": 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out)

	out, err = run(t, Head, in, nil)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = run(t, Head, in, map[string]any{"count": -1})
	assert.True(t, errors.Is(err, stagepipe.ErrParameterInvalid))
}

func TestWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")

	out, err := run(t, Write, []string{"x", "y"}, map[string]any{"path": path})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "x\ny\n", string(data))

	_, err = run(t, Write, []string{"x"}, nil)
	assert.True(t, errors.Is(err, stagepipe.ErrParameterInvalid))
}

func TestCatalogPipeline(t *testing.T) {
	reg := newRegistry(t)
	out := filepath.Join(t.TempDir(), "sorted.txt")

	p := stagepipe.NewPipeline()
	add := func(id stagepipe.TypeID, values map[string]any) {
		e, err := reg.Instantiate(id)
		require.NoError(t, err)
		for name, v := range values {
			require.NoError(t, e.SetParam(name, v))
		}
		_, err = p.Add(e)
		require.NoError(t, err)
	}
	add(Write, map[string]any{"path": out})
	add(Head, map[string]any{"count": 2})
	add(Sort, map[string]any{"descending": true})
	add(Trim, nil)
	add(Lines, map[string]any{"text": " b\na \n\nc"})

	// Round trip through the persisted form before running
	doc, err := stagepipe.MarshalPipeline(p.Serialize())
	require.NoError(t, err)
	sp, err := stagepipe.UnmarshalPipeline(doc)
	require.NoError(t, err)

	result := stagepipe.NewRunner(stagepipe.WithRegistry(reg)).RunSerialized(context.Background(), sp)
	require.True(t, result.Success(), "run failed: %v", result.Err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "c\nb\n", string(data))
}
