package stagepipe

import (
	"context"
	"fmt"
	"strings"

	"github.com/sasha-s/go-deadlock"
)

// DefaultElementSource is the element source recorded for stage types that do
// not declare one.
const DefaultElementSource = "stagepipe"

// TypeID is the stable registry key of a stage implementation.
type TypeID struct {
	ImplType   string
	ImplSource string
}

func (id TypeID) String() string {
	return id.ImplSource + "/" + id.ImplType
}

// ParseTypeID parses the "source/type" form produced by String. The source may
// itself contain slashes; the type is everything after the last one.
func ParseTypeID(s string) (TypeID, error) {
	i := strings.LastIndex(s, "/")
	if i <= 0 || i == len(s)-1 {
		return TypeID{}, fmt.Errorf("invalid stage type id %q, expected source/type", s)
	}
	return TypeID{ImplSource: s[:i], ImplType: s[i+1:]}, nil
}

// StageImpl performs the work of a stage. Run receives a private copy of the
// element's parameters, the payload returned by the previous element (nil for
// the first) and the element that runs next (nil for the last).
type StageImpl interface {
	Run(ctx context.Context, params ParamList, input any, next *Element) (any, error)
}

// StageFunc adapts a function to StageImpl.
type StageFunc func(ctx context.Context, params ParamList, input any, next *Element) (any, error)

// Run implements StageImpl.
func (f StageFunc) Run(ctx context.Context, params ParamList, input any, next *Element) (any, error) {
	return f(ctx, params, input, next)
}

// StageFactory creates a new StageImpl for every element instance.
type StageFactory func() StageImpl

// StageType describes an instantiable stage.
type StageType struct {
	// ID is the registry key, persisted as stage_impl_type_name / stage_impl_source_id.
	ID TypeID
	// ElementType and ElementSource are persisted as element_type_name /
	// element_source_id. They default to the category name and DefaultElementSource.
	ElementType   string
	ElementSource string
	// Category fixes the stage position in a pipeline.
	Category StageCategory
	// DisplayName is the default human-readable element name.
	DisplayName string
	Description string
	// Params is the current default parameter schema.
	Params ParamList
	// Installed reports whether the implementation can run on this system.
	// A nil func means always installed.
	Installed func() bool
	// New creates the implementation.
	New StageFactory
}

func (t StageType) installed() bool {
	return t.Installed == nil || t.Installed()
}

// StageInfo is the catalog view of a registered stage type.
type StageInfo struct {
	ID          TypeID        `json:"id" yaml:"id"`
	Category    StageCategory `json:"category" yaml:"category"`
	DisplayName string        `json:"display_name" yaml:"display_name"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Installed   bool          `json:"installed" yaml:"installed"`
}

// Registry is the catalog of stage types, indexed by TypeID. It is safe for
// concurrent use so workers can instantiate while the catalog is listed.
type Registry struct {
	mu    deadlock.RWMutex
	types map[TypeID]StageType
	order []TypeID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[TypeID]StageType)}
}

// Register adds a stage type. It fails if the ID is already registered or the
// type is incomplete.
func (r *Registry) Register(t StageType) error {
	if t.ID.ImplType == "" || t.ID.ImplSource == "" {
		return fmt.Errorf("stage type id must have a type and a source, got %q", t.ID)
	}
	if !t.Category.Valid() {
		return fmt.Errorf("stage type %s has invalid category %d", t.ID, int(t.Category))
	}
	if t.New == nil {
		return fmt.Errorf("stage type %s has no factory", t.ID)
	}
	if t.ElementType == "" {
		t.ElementType = t.Category.String()
	}
	if t.ElementSource == "" {
		t.ElementSource = DefaultElementSource
	}
	if t.DisplayName == "" {
		t.DisplayName = t.ID.ImplType
	}
	t.Params = t.Params.Clone()
	for i := range t.Params {
		if t.Params[i].Type == "" {
			t.Params[i].Type = ParamAny
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[t.ID]; exists {
		return fmt.Errorf("stage type '%s' is already registered", t.ID)
	}
	r.types[t.ID] = t
	r.order = append(r.order, t.ID)
	return nil
}

// Lookup returns the registered stage type for id.
func (r *Registry) Lookup(id TypeID) (StageType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[id]
	return t, ok
}

// Available enumerates registered stage types in registration order.
func (r *Registry) Available() []StageInfo {
	r.mu.RLock()
	types := make([]StageType, 0, len(r.order))
	for _, id := range r.order {
		types = append(types, r.types[id])
	}
	r.mu.RUnlock()

	infos := make([]StageInfo, 0, len(types))
	for _, t := range types {
		infos = append(infos, StageInfo{
			ID:          t.ID,
			Category:    t.Category,
			DisplayName: t.DisplayName,
			Description: t.Description,
			Installed:   t.installed(),
		})
	}
	return infos
}

// Installed reports whether id is registered and installed.
func (r *Registry) Installed(id TypeID) bool {
	t, ok := r.Lookup(id)
	return ok && t.installed()
}

// Instantiate creates a fresh element of the given type with default parameters.
func (r *Registry) Instantiate(id TypeID) (*Element, error) {
	t, ok := r.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: stage type '%s' not found in registry", ErrStageUnavailable, id)
	}
	if !t.installed() {
		return nil, fmt.Errorf("%w: stage type '%s' not installed on this system", ErrStageUnavailable, id)
	}
	return newElement(t), nil
}

// DefaultRegistry is the registry used by RegisterStage and NewElementFromRegistry.
var DefaultRegistry = NewRegistry()

// RegisterStage registers a stage type with DefaultRegistry.
// This function should be called at application startup for all stage types
// that a worker process may need to instantiate.
// It will panic if the type is invalid or already registered.
func RegisterStage(t StageType) {
	if err := DefaultRegistry.Register(t); err != nil {
		panic(err)
	}
}

// NewElementFromRegistry instantiates an element from DefaultRegistry.
func NewElementFromRegistry(id TypeID) (*Element, error) {
	return DefaultRegistry.Instantiate(id)
}
