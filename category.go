package stagepipe

import (
	"fmt"
	"strings"
)

// StageCategory is the ordinal category of a stage. The order of the values is
// load-bearing: it fixes where new elements are inserted and bounds moves.
type StageCategory int

const (
	// Extractor stages produce the initial payload. At most one per pipeline.
	Extractor StageCategory = iota
	// PreProcessor stages transform the payload before sorting.
	PreProcessor
	// Sorter stages order the payload. At most one per pipeline.
	Sorter
	// PostProcessor stages consume or export the sorted payload.
	PostProcessor
)

var categoryNames = [...]string{
	Extractor:     "extractor",
	PreProcessor:  "pre-processor",
	Sorter:        "sorter",
	PostProcessor: "post-processor",
}

// Categories returns every stage category in pipeline order.
func Categories() []StageCategory {
	return []StageCategory{Extractor, PreProcessor, Sorter, PostProcessor}
}

// Valid reports whether c is one of the four known categories.
func (c StageCategory) Valid() bool {
	return c >= Extractor && c <= PostProcessor
}

// Singleton reports whether a pipeline may hold at most one element of c.
func (c StageCategory) Singleton() bool {
	return c == Extractor || c == Sorter
}

func (c StageCategory) String() string {
	if !c.Valid() {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return categoryNames[c]
}

// ParseStageCategory parses the textual form produced by String.
func ParseStageCategory(s string) (StageCategory, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range categoryNames {
		if n == name || strings.ReplaceAll(n, "-", "") == name {
			return StageCategory(i), nil
		}
	}
	return 0, fmt.Errorf("unknown stage category %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (c StageCategory) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid stage category %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *StageCategory) UnmarshalText(text []byte) error {
	parsed, err := ParseStageCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
