package stages

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/davidroman0O/stagepipe"
	lua "github.com/yuin/gopher-lua"
)

func luaMapType() stagepipe.StageType {
	return stagepipe.StageType{
		ID:          LuaMap,
		Category:    stagepipe.PreProcessor,
		DisplayName: "Lua map",
		Description: "Rewrites every record with a Lua expression over record and index; nil or false drops the record",
		Params: stagepipe.ParamList{
			{Name: "script", Type: stagepipe.ParamStr, Value: "record"},
		},
		New: func() stagepipe.StageImpl { return stagepipe.StageFunc(runLuaMap) },
	}
}

func runLuaMap(ctx context.Context, params stagepipe.ParamList, input any, _ *stagepipe.Element) (any, error) {
	script, err := params.Str("script")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(script) == "" {
		return nil, fmt.Errorf("%w: lua-map: script is required", stagepipe.ErrParameterInvalid)
	}
	// Allow expressions without explicit return
	code := script
	if !strings.Contains(script, "return") {
		code = "return (" + script + ")"
	}

	in, err := records("lua-map", input)
	if err != nil {
		return nil, err
	}

	L := newLuaState()
	defer L.Close()
	L.SetContext(ctx)

	fn, err := L.LoadString(code)
	if err != nil {
		return nil, fmt.Errorf("%w: lua-map: %v", stagepipe.ErrParameterInvalid, err)
	}

	out := make([]string, 0, len(in))
	for i, r := range in {
		L.SetGlobal("record", lua.LString(r))
		L.SetGlobal("index", lua.LNumber(i+1))
		L.Push(fn)
		if err := L.PCall(0, 1, nil); err != nil {
			return nil, fmt.Errorf("lua-map: record %d: %v", i+1, err)
		}
		ret := L.Get(-1)
		L.Pop(1)
		if mapped, ok := luaString(ret); ok {
			out = append(out, mapped)
		}
	}
	return out, nil
}

// newLuaState opens only the base, string, table and math libraries.
func newLuaState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openLib := func(name string, f lua.LGFunction) {
		L.Push(L.NewFunction(f))
		L.Push(lua.LString(name))
		L.Call(1, 0)
	}
	openLib(lua.BaseLibName, lua.OpenBase)
	openLib(lua.StringLibName, lua.OpenString)
	openLib(lua.TabLibName, lua.OpenTable)
	openLib(lua.MathLibName, lua.OpenMath)
	return L
}

func luaString(v lua.LValue) (string, bool) {
	switch v.Type() {
	case lua.LTNil:
		return "", false
	case lua.LTBool:
		if !lua.LVAsBool(v) {
			return "", false
		}
		return "true", true
	case lua.LTNumber:
		return strconv.FormatFloat(float64(v.(lua.LNumber)), 'f', -1, 64), true
	default:
		return v.String(), true
	}
}
