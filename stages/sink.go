package stages

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/davidroman0O/stagepipe"
)

func headType() stagepipe.StageType {
	return stagepipe.StageType{
		ID:          Head,
		Category:    stagepipe.PostProcessor,
		DisplayName: "Head",
		Description: "Keeps the first records",
		Params: stagepipe.ParamList{
			{Name: "count", Type: stagepipe.ParamInt, Value: 10},
		},
		New: func() stagepipe.StageImpl { return stagepipe.StageFunc(runHead) },
	}
}

func runHead(ctx context.Context, params stagepipe.ParamList, input any, _ *stagepipe.Element) (any, error) {
	count, err := params.Int("count")
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, fmt.Errorf("%w: head: count must not be negative, got %d", stagepipe.ErrParameterInvalid, count)
	}
	in, err := records("head", input)
	if err != nil {
		return nil, err
	}
	if count > len(in) {
		count = len(in)
	}
	return in[:count:count], nil
}

func writeType() stagepipe.StageType {
	return stagepipe.StageType{
		ID:          Write,
		Category:    stagepipe.PostProcessor,
		DisplayName: "Write",
		Description: "Writes records to a file, one per line",
		Params: stagepipe.ParamList{
			{Name: "path", Type: stagepipe.ParamStr, Value: ""},
		},
		New: func() stagepipe.StageImpl { return stagepipe.StageFunc(runWrite) },
	}
}

// runWrite passes its input through so it can be followed by other stages.
func runWrite(ctx context.Context, params stagepipe.ParamList, input any, _ *stagepipe.Element) (any, error) {
	path, err := params.Str("path")
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, fmt.Errorf("%w: write: path is required", stagepipe.ErrParameterInvalid)
	}
	in, err := records("write", input)
	if err != nil {
		return nil, err
	}

	var data string
	if len(in) > 0 {
		data = strings.Join(in, "\n") + "\n"
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}
	return in, nil
}
