package stagepipe

import (
	"fmt"
	"slices"
)

// SerializedElementRecord is the persisted form of one element.
type SerializedElementRecord struct {
	ElementTypeName   string    `json:"element_type_name" yaml:"element_type_name" jsonschema:"required,minLength=1"`
	ElementSourceID   string    `json:"element_source_id" yaml:"element_source_id" jsonschema:"required,minLength=1"`
	StageImplTypeName string    `json:"stage_impl_type_name" yaml:"stage_impl_type_name" jsonschema:"required,minLength=1"`
	StageImplSourceID string    `json:"stage_impl_source_id" yaml:"stage_impl_source_id" jsonschema:"required,minLength=1"`
	ParamList         ParamList `json:"param_list" yaml:"param_list"`
}

// TypeID returns the registry key the record refers to.
func (r SerializedElementRecord) TypeID() TypeID {
	return TypeID{ImplType: r.StageImplTypeName, ImplSource: r.StageImplSourceID}
}

// SerializedPipeline is the persisted form of a pipeline, in pipeline order.
type SerializedPipeline []SerializedElementRecord

// Clone returns a deep copy.
func (sp SerializedPipeline) Clone() SerializedPipeline {
	if sp == nil {
		return nil
	}
	out := make(SerializedPipeline, len(sp))
	for i, r := range sp {
		r.ParamList = r.ParamList.Clone()
		out[i] = r
	}
	return out
}

// Serialize converts a snapshot into its persisted form.
func Serialize(s Snapshot) SerializedPipeline {
	out := make(SerializedPipeline, 0, s.Len())
	for _, e := range s.elements {
		out = append(out, recordOf(e))
	}
	return out
}

// Serialize converts the current contents of p into its persisted form.
func (p *Pipeline) Serialize() SerializedPipeline {
	out := make(SerializedPipeline, 0, len(p.elements))
	for _, e := range p.elements {
		out = append(out, recordOf(e))
	}
	return out
}

func recordOf(e *Element) SerializedElementRecord {
	params := e.params.Clone()
	if params == nil {
		params = ParamList{}
	}
	return SerializedElementRecord{
		ElementTypeName:   e.typ.ElementType,
		ElementSourceID:   e.typ.ElementSource,
		StageImplTypeName: e.typ.ID.ImplType,
		StageImplSourceID: e.typ.ID.ImplSource,
		ParamList:         params,
	}
}

// withParamLists returns sp with nil parameter lists replaced by empty ones so
// documents always carry an array. sp itself is not modified.
func (sp SerializedPipeline) withParamLists() SerializedPipeline {
	if sp == nil {
		return SerializedPipeline{}
	}
	out := sp
	copied := false
	for i, r := range sp {
		if r.ParamList != nil {
			continue
		}
		if !copied {
			out = slices.Clone(sp)
			copied = true
		}
		out[i].ParamList = ParamList{}
	}
	return out
}

// Deserialize rebuilds a pipeline from sp using the stage types in reg.
//
// Every record must name an installed stage type whose current parameter
// schema contains all saved parameter names. Saved values replace the
// defaults; parameters the record does not mention keep their default. The
// first record that fails aborts the call with a *RecordError and no pipeline
// is returned. The rebuilt order must satisfy the category rules.
func Deserialize(reg *Registry, sp SerializedPipeline) (*Pipeline, error) {
	if reg == nil {
		reg = DefaultRegistry
	}
	elems := make([]*Element, 0, len(sp))
	for i, rec := range sp {
		e, err := restoreElement(reg, rec)
		if err != nil {
			return nil, &RecordError{Index: i, Record: rec, Err: err}
		}
		elems = append(elems, e)
	}
	if err := validateOrder(elems); err != nil {
		return nil, err
	}

	p := NewPipeline()
	p.elements = elems
	return p, nil
}

func restoreElement(reg *Registry, rec SerializedElementRecord) (*Element, error) {
	e, err := reg.Instantiate(rec.TypeID())
	if err != nil {
		return nil, err
	}
	if rec.ElementTypeName != e.typ.ElementType || rec.ElementSourceID != e.typ.ElementSource {
		return nil, fmt.Errorf("%w: element type %s/%s does not match registered %s/%s",
			ErrSchemaIncompatible, rec.ElementSourceID, rec.ElementTypeName,
			e.typ.ElementSource, e.typ.ElementType)
	}

	current := e.params.Names()
	for _, p := range rec.ParamList {
		if _, ok := current[p.Name]; !ok {
			return nil, fmt.Errorf("%w: parameter %s no longer exists", ErrSchemaIncompatible, p.Name)
		}
	}

	saved, err := mergeParams(e.params, rec.ParamList)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaIncompatible, err)
	}
	e.params = saved
	return e, nil
}

// mergeParams applies saved values over the defaults. Saved parameters come
// first in their saved order, followed by defaults the saved list omits. The
// declared type always comes from the current schema.
func mergeParams(defaults, saved ParamList) (ParamList, error) {
	out := make(ParamList, 0, len(defaults))
	used := make(map[string]struct{}, len(saved))
	for _, p := range saved {
		def, _ := defaults.Lookup(p.Name)
		out = append(out, Param{Name: p.Name, Type: def.Type, Value: p.Value})
		used[p.Name] = struct{}{}
	}
	for _, p := range defaults {
		if _, ok := used[p.Name]; !ok {
			out = append(out, p)
		}
	}
	return out.normalize()
}
