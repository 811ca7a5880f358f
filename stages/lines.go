package stages

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/davidroman0O/stagepipe"
)

func linesType() stagepipe.StageType {
	return stagepipe.StageType{
		ID:          Lines,
		Category:    stagepipe.Extractor,
		DisplayName: "Lines",
		Description: "Reads records, one per line, from a file or from inline text",
		Params: stagepipe.ParamList{
			{Name: "path", Type: stagepipe.ParamStr, Value: ""},
			{Name: "text", Type: stagepipe.ParamStr, Value: ""},
		},
		New: func() stagepipe.StageImpl { return stagepipe.StageFunc(runLines) },
	}
}

func runLines(ctx context.Context, params stagepipe.ParamList, _ any, _ *stagepipe.Element) (any, error) {
	path, err := params.Str("path")
	if err != nil {
		return nil, err
	}
	text, err := params.Str("text")
	if err != nil {
		return nil, err
	}

	switch {
	case path != "" && text != "":
		return nil, fmt.Errorf("%w: lines: set either path or text, not both", stagepipe.ErrParameterInvalid)
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("lines: %w", err)
		}
		text = string(data)
	case text == "":
		return nil, fmt.Errorf("%w: lines: path or text is required", stagepipe.ErrParameterInvalid)
	}

	return splitLines(text), nil
}

func splitLines(text string) []string {
	text = strings.TrimSuffix(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if text == "" {
		return []string{}
	}
	return strings.Split(text, "\n")
}
