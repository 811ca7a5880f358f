package stagepipe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// RunBatch runs several serialized pipelines concurrently, each on its own
// worker, and returns their results in input order. A failed run does not
// stop the others.
func (r *Runner) RunBatch(ctx context.Context, pipelines []SerializedPipeline) []RunResult {
	if ctx == nil {
		ctx = context.Background()
	}
	results := make([]RunResult, len(pipelines))

	var errGrp errgroup.Group
	if r.batchLimit > 0 {
		errGrp.SetLimit(r.batchLimit)
	}
	for i, sp := range pipelines {
		errGrp.Go(func() error {
			results[i] = <-r.RunAsync(ctx, sp)
			return nil
		})
	}
	_ = errGrp.Wait()

	return results
}

// FormatResults returns a human-readable summary of run results
func FormatResults(results []RunResult) string {
	if len(results) == 0 {
		return "No pipelines executed"
	}

	var summary strings.Builder
	successCount := 0

	for i, result := range results {
		if result.Success() {
			successCount++
		}

		fmt.Fprintf(&summary, "Pipeline %d: %s - %s, %d elements (%s)\n",
			i+1,
			result.ID,
			result,
			result.Executed,
			result.ExecutionTime.Round(time.Millisecond),
		)

		if result.Status == StatusFailed && result.Err != nil {
			fmt.Fprintf(&summary, "  Error: %v\n", result.Err)
		}
	}

	fmt.Fprintf(&summary, "\nSummary: %d/%d pipelines completed\n",
		successCount,
		len(results),
	)

	return summary.String()
}
