package stages

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/davidroman0O/stagepipe"
)

func trimType() stagepipe.StageType {
	return stagepipe.StageType{
		ID:          Trim,
		Category:    stagepipe.PreProcessor,
		DisplayName: "Trim",
		Description: "Strips surrounding whitespace and drops blank records",
		New:         func() stagepipe.StageImpl { return stagepipe.StageFunc(runTrim) },
	}
}

func runTrim(ctx context.Context, _ stagepipe.ParamList, input any, _ *stagepipe.Element) (any, error) {
	in, err := records("trim", input)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(in))
	for _, r := range in {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out, nil
}

func filterType() stagepipe.StageType {
	return stagepipe.StageType{
		ID:          Filter,
		Category:    stagepipe.PreProcessor,
		DisplayName: "Filter",
		Description: "Keeps records matching a regular expression",
		Params: stagepipe.ParamList{
			{Name: "pattern", Type: stagepipe.ParamStr, Value: ""},
			{Name: "invert", Type: stagepipe.ParamBool, Value: false},
		},
		New: func() stagepipe.StageImpl { return stagepipe.StageFunc(runFilter) },
	}
}

func runFilter(ctx context.Context, params stagepipe.ParamList, input any, _ *stagepipe.Element) (any, error) {
	pattern, err := params.Str("pattern")
	if err != nil {
		return nil, err
	}
	invert, err := params.Bool("invert")
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: filter: pattern: %v", stagepipe.ErrParameterInvalid, err)
	}

	in, err := records("filter", input)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(in))
	for _, r := range in {
		if re.MatchString(r) != invert {
			out = append(out, r)
		}
	}
	return out, nil
}
