package stagepipe

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElementSetParam(t *testing.T) {
	reg := newTestRegistry(t)
	e := mustInstantiate(t, reg, "pre")

	require.NoError(t, e.SetParam("limit", 9.0))
	p, ok := e.Param("limit")
	require.True(t, ok)
	assert.Equal(t, 9, p.Value)

	err := e.SetParam("limit", "nine")
	assert.True(t, errors.Is(err, ErrParameterInvalid))

	err = e.SetParam("unknown", 1)
	assert.True(t, errors.Is(err, ErrParameterInvalid))

	// The failed updates left the value alone
	p, _ = e.Param("limit")
	assert.Equal(t, 9, p.Value)
}

func TestElementCloneIsIndependent(t *testing.T) {
	reg := newTestRegistry(t, testType("pre", PreProcessor,
		ParamList{{Name: "tags", Type: ParamArray, Value: []any{"a"}}}, passthrough))
	e := mustInstantiate(t, reg, "pre")
	e.SetName("renamed")

	clone := e.Clone()
	assert.NotEqual(t, e.ID(), clone.ID())
	assert.Equal(t, "renamed", clone.Name())
	assert.Equal(t, e.TypeID(), clone.TypeID())
	assert.Equal(t, e.Params(), clone.Params())

	require.NoError(t, clone.SetParam("tags", []any{"b"}))
	assert.Equal(t, []any{"a"}, e.Params()[0].Value)

	// Params returns copies
	e.Params()[0].Value.([]any)[0] = "mutated"
	assert.Equal(t, []any{"a"}, e.Params()[0].Value)
}

func TestElementRunReceivesCopyOfParams(t *testing.T) {
	var seen ParamList
	reg := newTestRegistry(t, testType("pre", PreProcessor,
		ParamList{{Name: "tags", Type: ParamArray, Value: []any{"a"}}},
		func(ctx context.Context, params ParamList, input any, next *Element) (any, error) {
			params[0].Value.([]any)[0] = "touched"
			seen = params
			return "out", nil
		}))
	e := mustInstantiate(t, reg, "pre")

	out, err := e.Run(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "out", out)
	assert.Equal(t, "touched", seen[0].Value.([]any)[0])
	assert.Equal(t, []any{"a"}, e.Params()[0].Value)
}

func TestElementString(t *testing.T) {
	reg := newTestRegistry(t)
	e := mustInstantiate(t, reg, "sort")
	assert.Equal(t, "sort (sorter, test/sort)", e.String())
}
