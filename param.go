package stagepipe

import (
	"encoding/json"
	"fmt"
	"math"
)

// ParamType is the declared type of a parameter value.
type ParamType string

const (
	ParamInt   ParamType = "int"
	ParamFloat ParamType = "float"
	ParamBool  ParamType = "bool"
	ParamStr   ParamType = "str"
	ParamArray ParamType = "list"
	ParamMap   ParamType = "map"
	ParamAny   ParamType = "any"
)

// Param is a single named, typed parameter value.
type Param struct {
	Name  string    `json:"name" yaml:"name" jsonschema:"required,minLength=1"`
	Type  ParamType `json:"type" yaml:"type" jsonschema:"enum=int,enum=float,enum=bool,enum=str,enum=list,enum=map,enum=any"`
	Value any       `json:"value" yaml:"value"`
}

// ParamList is an ordered list of parameters. Order is preserved across
// copies and serialization.
type ParamList []Param

// Clone returns a deep copy of the list; no value storage is shared.
func (l ParamList) Clone() ParamList {
	if l == nil {
		return nil
	}
	out := make(ParamList, len(l))
	for i, p := range l {
		out[i] = Param{Name: p.Name, Type: p.Type, Value: deepCopy(p.Value)}
	}
	return out
}

// Names returns the set of parameter names.
func (l ParamList) Names() map[string]struct{} {
	names := make(map[string]struct{}, len(l))
	for _, p := range l {
		names[p.Name] = struct{}{}
	}
	return names
}

// Lookup returns the parameter with the given name.
func (l ParamList) Lookup(name string) (Param, bool) {
	for _, p := range l {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Str returns a str parameter. A missing parameter or a non-string value
// yields an error wrapping ErrParameterInvalid.
func (l ParamList) Str(name string) (string, error) {
	v, err := l.value(name)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string, got %T", ErrParameterInvalid, name, v)
	}
	return s, nil
}

// Int returns an int parameter.
func (l ParamList) Int(name string) (int, error) {
	v, err := l.value(name)
	if err != nil {
		return 0, err
	}
	c, err := coerceValue(ParamInt, v)
	if err != nil || c == nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrParameterInvalid, name)
	}
	return c.(int), nil
}

// Bool returns a bool parameter; an unset value is false.
func (l ParamList) Bool(name string) (bool, error) {
	v, err := l.value(name)
	if err != nil {
		return false, err
	}
	if v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s must be a boolean, got %T", ErrParameterInvalid, name, v)
	}
	return b, nil
}

func (l ParamList) value(name string) (any, error) {
	p, ok := l.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: missing parameter %s", ErrParameterInvalid, name)
	}
	return p.Value, nil
}

// normalize coerces every value to its declared type. Text codecs lose integer
// types (JSON numbers decode as float64), so values are restored here.
func (l ParamList) normalize() (ParamList, error) {
	out := l.Clone()
	for i, p := range out {
		v, err := coerceValue(p.Type, p.Value)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", p.Name, err)
		}
		out[i].Value = v
	}
	return out, nil
}

func coerceValue(t ParamType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case ParamInt:
		switch n := v.(type) {
		case int:
			return n, nil
		case int32:
			return int(n), nil
		case int64:
			return intFromInt64(n)
		case uint64:
			if n > math.MaxInt {
				return nil, fmt.Errorf("value %d overflows int", n)
			}
			return int(n), nil
		case float64:
			if n != math.Trunc(n) {
				return nil, fmt.Errorf("value %v is not an integer", n)
			}
			// -MinInt is exactly 2^63 (or 2^31); MaxInt is not representable.
			if n < math.MinInt || n >= -float64(math.MinInt) {
				return nil, fmt.Errorf("value %v overflows int", n)
			}
			return int(n), nil
		case json.Number:
			i, err := n.Int64()
			if err != nil {
				return nil, err
			}
			return intFromInt64(i)
		}
	case ParamFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case json.Number:
			return n.Float64()
		}
	case ParamBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case ParamStr:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case ParamArray:
		switch s := v.(type) {
		case []any:
			return s, nil
		case []string:
			out := make([]any, len(s))
			for i := range s {
				out[i] = s[i]
			}
			return out, nil
		}
	case ParamMap:
		if m, ok := v.(map[string]any); ok {
			return m, nil
		}
	case ParamAny, "":
		return v, nil
	default:
		return nil, fmt.Errorf("unknown parameter type %q", t)
	}
	return nil, fmt.Errorf("value of type %T does not match declared type %s", v, t)
}

func intFromInt64(n int64) (any, error) {
	if n < math.MinInt || n > math.MaxInt {
		return nil, fmt.Errorf("value %d overflows int", n)
	}
	return int(n), nil
}
