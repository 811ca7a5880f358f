package stagepipe

import (
	"fmt"
	"slices"
)

// Pipeline is an ordered collection of elements. Elements are always grouped
// by category in Extractor, PreProcessor, Sorter, PostProcessor order and
// there is at most one Extractor and one Sorter. Every mutation either keeps
// both rules or fails without changing anything.
//
// A Pipeline is owned by one goroutine; runs work on snapshots.
type Pipeline struct {
	elements []*Element
	notifier *Notifier
}

// NewPipeline creates an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{notifier: NewNotifier()}
}

// Subscribe registers an observer for structural changes.
func (p *Pipeline) Subscribe(o Observer) (cancel func()) {
	return p.notifier.Subscribe(o)
}

// Len returns the number of elements.
func (p *Pipeline) Len() int { return len(p.elements) }

// At returns the element at index i.
func (p *Pipeline) At(i int) *Element { return p.elements[i] }

// Elements returns the elements in order. The slice is a copy; the elements
// are the live instances and can be passed to MoveUp, MoveDown and Delete.
func (p *Pipeline) Elements() []*Element {
	return slices.Clone(p.elements)
}

// IndexOf returns the position of the exact instance e, or -1.
func (p *Pipeline) IndexOf(e *Element) int {
	for i, el := range p.elements {
		if el == e {
			return i
		}
	}
	return -1
}

// Add inserts an independent copy of e at the front of its category group and
// returns the inserted instance.
func (p *Pipeline) Add(e *Element) (*Element, error) {
	if e == nil {
		return nil, fmt.Errorf("cannot add a nil element")
	}
	cat := e.Category()
	if cat.Singleton() {
		for _, el := range p.elements {
			if el.Category() == cat {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateSingletonStage, cat)
			}
		}
	}

	at := len(p.elements)
	for i, el := range p.elements {
		if el.Category() >= cat {
			at = i
			break
		}
	}

	added := e.Clone()
	p.elements = slices.Insert(p.elements, at, added)
	p.notifier.Publish(Event{Kind: EventInserted, Index: at, Element: added})
	return added, nil
}

// MoveUp swaps e with its predecessor when both share a category.
func (p *Pipeline) MoveUp(e *Element) error {
	i := p.IndexOf(e)
	if i < 0 {
		return ErrNotFound
	}
	if i == 0 || p.elements[i-1].Category() != e.Category() {
		return fmt.Errorf("%w: '%s' is first of its %s stage", ErrBoundaryReached, e.Name(), e.Category())
	}
	p.swap(i, i-1)
	return nil
}

// MoveDown swaps e with its successor when both share a category.
func (p *Pipeline) MoveDown(e *Element) error {
	i := p.IndexOf(e)
	if i < 0 {
		return ErrNotFound
	}
	if i == len(p.elements)-1 || p.elements[i+1].Category() != e.Category() {
		return fmt.Errorf("%w: '%s' is last of its %s stage", ErrBoundaryReached, e.Name(), e.Category())
	}
	p.swap(i, i+1)
	return nil
}

func (p *Pipeline) swap(from, to int) {
	p.elements[from], p.elements[to] = p.elements[to], p.elements[from]
	p.notifier.Publish(Event{Kind: EventMoved, Index: from, To: to, Element: p.elements[to]})
}

// Delete removes the exact instance e.
func (p *Pipeline) Delete(e *Element) error {
	i := p.IndexOf(e)
	if i < 0 {
		return ErrNotFound
	}
	p.elements = slices.Delete(p.elements, i, i+1)
	p.notifier.Publish(Event{Kind: EventRemoved, Index: i, Element: e})
	return nil
}

// Clear removes every element. Clearing an empty pipeline fails with
// ErrNothingToClear.
func (p *Pipeline) Clear() error {
	if len(p.elements) == 0 {
		return ErrNothingToClear
	}
	p.elements = nil
	p.notifier.Publish(Event{Kind: EventReset})
	return nil
}

// Snapshot returns an independent copy of the pipeline for execution or
// serialization. Later mutations of p do not affect it.
func (p *Pipeline) Snapshot() Snapshot {
	elems := make([]*Element, len(p.elements))
	for i, e := range p.elements {
		elems[i] = e.copy()
	}
	return Snapshot{elements: elems}
}

// Snapshot is an immutable ordered copy of a pipeline.
type Snapshot struct {
	elements []*Element
}

// Len returns the number of elements.
func (s Snapshot) Len() int { return len(s.elements) }

// Empty reports whether the snapshot has no elements.
func (s Snapshot) Empty() bool { return len(s.elements) == 0 }

// At returns a copy of the element at index i. Changing it does not affect
// the snapshot.
func (s Snapshot) At(i int) *Element { return s.elements[i].copy() }

// Elements returns copies of the elements in order.
func (s Snapshot) Elements() []*Element {
	out := make([]*Element, len(s.elements))
	for i, e := range s.elements {
		out[i] = e.copy()
	}
	return out
}

// validateOrder checks the category ordering and singleton rules.
func validateOrder(elems []*Element) error {
	seen := make(map[StageCategory]bool)
	for i, e := range elems {
		cat := e.Category()
		if i > 0 && elems[i-1].Category() > cat {
			return fmt.Errorf("%w: %s element '%s' at %d follows a %s element",
				ErrInvalidPipeline, cat, e.Name(), i, elems[i-1].Category())
		}
		if cat.Singleton() && seen[cat] {
			return fmt.Errorf("%w: more than one %s element", ErrInvalidPipeline, cat)
		}
		seen[cat] = true
	}
	return nil
}
