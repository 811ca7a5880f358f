package stages

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"slices"
	"strings"

	"github.com/davidroman0O/stagepipe"
)

func sortParams() stagepipe.ParamList {
	return stagepipe.ParamList{
		{Name: "descending", Type: stagepipe.ParamBool, Value: false},
		{Name: "unique", Type: stagepipe.ParamBool, Value: false},
	}
}

func sortOptions(params stagepipe.ParamList) (descending, unique bool, err error) {
	if descending, err = params.Bool("descending"); err != nil {
		return false, false, err
	}
	if unique, err = params.Bool("unique"); err != nil {
		return false, false, err
	}
	return descending, unique, nil
}

func sortType() stagepipe.StageType {
	return stagepipe.StageType{
		ID:          Sort,
		Category:    stagepipe.Sorter,
		DisplayName: "Sort",
		Description: "Sorts records lexically",
		Params:      sortParams(),
		New:         func() stagepipe.StageImpl { return stagepipe.StageFunc(runSort) },
	}
}

func runSort(ctx context.Context, params stagepipe.ParamList, input any, _ *stagepipe.Element) (any, error) {
	descending, unique, err := sortOptions(params)
	if err != nil {
		return nil, err
	}
	in, err := records("sort", input)
	if err != nil {
		return nil, err
	}

	out := slices.Clone(in)
	slices.Sort(out)
	if unique {
		out = slices.Compact(out)
	}
	if descending {
		slices.Reverse(out)
	}
	return out, nil
}

func externalSortType() stagepipe.StageType {
	return stagepipe.StageType{
		ID:          ExternalSort,
		Category:    stagepipe.Sorter,
		DisplayName: "External sort",
		Description: "Sorts records with the system sort command",
		Params:      sortParams(),
		Installed: func() bool {
			_, err := exec.LookPath("sort")
			return err == nil
		},
		New: func() stagepipe.StageImpl { return stagepipe.StageFunc(runExternalSort) },
	}
}

func runExternalSort(ctx context.Context, params stagepipe.ParamList, input any, _ *stagepipe.Element) (any, error) {
	descending, unique, err := sortOptions(params)
	if err != nil {
		return nil, err
	}
	in, err := records("external-sort", input)
	if err != nil {
		return nil, err
	}
	if len(in) == 0 {
		return []string{}, nil
	}

	var args []string
	if descending {
		args = append(args, "-r")
	}
	if unique {
		args = append(args, "-u")
	}
	cmd := exec.CommandContext(ctx, "sort", args...)
	cmd.Env = append(cmd.Environ(), "LC_ALL=C")
	cmd.Stdin = strings.NewReader(strings.Join(in, "\n") + "\n")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("external-sort: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return splitLines(stdout.String()), nil
}
