package stagepipe

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Element is one configured stage instance. Apart from Run it behaves as a
// value: copies own their parameter storage.
type Element struct {
	id     uuid.UUID
	typ    StageType
	name   string
	params ParamList
	impl   StageImpl
}

func newElement(t StageType) *Element {
	return &Element{
		id:     uuid.New(),
		typ:    t,
		name:   t.DisplayName,
		params: t.Params.Clone(),
		impl:   t.New(),
	}
}

// ID returns the instance ID. Clones get a new ID.
func (e *Element) ID() uuid.UUID { return e.id }

// Category returns the stage category. It never changes.
func (e *Element) Category() StageCategory { return e.typ.Category }

// Name returns the display name.
func (e *Element) Name() string { return e.name }

// SetName changes the display name.
func (e *Element) SetName(name string) { e.name = name }

// TypeID returns the registry key of the underlying implementation.
func (e *Element) TypeID() TypeID { return e.typ.ID }

// StageType returns the stage type the element was created from.
func (e *Element) StageType() StageType { return e.typ }

// Params returns a copy of the parameter list.
func (e *Element) Params() ParamList { return e.params.Clone() }

// Param returns a copy of one parameter.
func (e *Element) Param(name string) (Param, bool) {
	p, ok := e.params.Lookup(name)
	if !ok {
		return Param{}, false
	}
	p.Value = deepCopy(p.Value)
	return p, true
}

// SetParam updates the value of an existing parameter, coercing it to the
// declared type.
func (e *Element) SetParam(name string, value any) error {
	for i, p := range e.params {
		if p.Name != name {
			continue
		}
		v, err := coerceValue(p.Type, value)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrParameterInvalid, name, err)
		}
		e.params[i].Value = deepCopy(v)
		return nil
	}
	return fmt.Errorf("%w: element '%s' has no parameter %s", ErrParameterInvalid, e.name, name)
}

// Clone returns an independent copy with a new instance ID and a fresh
// implementation.
func (e *Element) Clone() *Element {
	c := e.copy()
	c.id = uuid.New()
	return c
}

// copy duplicates the element keeping its instance ID. Snapshots use it so
// that run logs can be correlated with the live pipeline.
func (e *Element) copy() *Element {
	return &Element{
		id:     e.id,
		typ:    e.typ,
		name:   e.name,
		params: e.params.Clone(),
		impl:   e.typ.New(),
	}
}

// Run executes the stage on input. next is the element that will run after
// this one, or nil.
func (e *Element) Run(ctx context.Context, input any, next *Element) (any, error) {
	return e.impl.Run(ctx, e.params.Clone(), input, next)
}

func (e *Element) String() string {
	return fmt.Sprintf("%s (%s, %s)", e.name, e.typ.Category, e.typ.ID)
}
