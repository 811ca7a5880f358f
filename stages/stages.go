// Package stages ships a small catalog of line-oriented stages. The payload
// passed between them is a []string of records.
package stages

import (
	"fmt"

	"github.com/davidroman0O/stagepipe"
)

// Source is the implementation source of every stage in this package.
const Source = "builtin"

// Type IDs of the built-in stages.
var (
	Lines        = stagepipe.TypeID{ImplSource: Source, ImplType: "lines"}
	Trim         = stagepipe.TypeID{ImplSource: Source, ImplType: "trim"}
	Filter       = stagepipe.TypeID{ImplSource: Source, ImplType: "filter"}
	LuaMap       = stagepipe.TypeID{ImplSource: Source, ImplType: "lua-map"}
	Sort         = stagepipe.TypeID{ImplSource: Source, ImplType: "sort"}
	ExternalSort = stagepipe.TypeID{ImplSource: Source, ImplType: "external-sort"}
	Head         = stagepipe.TypeID{ImplSource: Source, ImplType: "head"}
	Write        = stagepipe.TypeID{ImplSource: Source, ImplType: "write"}
)

// Types returns the stage types of the catalog in display order.
func Types() []stagepipe.StageType {
	return []stagepipe.StageType{
		linesType(),
		trimType(),
		filterType(),
		luaMapType(),
		sortType(),
		externalSortType(),
		headType(),
		writeType(),
	}
}

// Register adds every built-in stage type to reg.
func Register(reg *stagepipe.Registry) error {
	for _, t := range Types() {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// records asserts the payload handed over by the previous stage.
func records(stage string, input any) ([]string, error) {
	switch in := input.(type) {
	case []string:
		return in, nil
	case nil:
		return nil, fmt.Errorf("%s: no records, the pipeline needs an extractor", stage)
	default:
		return nil, fmt.Errorf("%s: unexpected payload %T", stage, input)
	}
}
