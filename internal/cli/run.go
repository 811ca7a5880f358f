package cli

import (
	"fmt"

	"github.com/davidroman0O/stagepipe"
	"github.com/spf13/cobra"
)

func (a *app) runCmd() *cobra.Command {
	var (
		async  bool
		worker string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.loadPipeline()
			if err != nil {
				return err
			}

			opts := []stagepipe.RunnerOption{
				stagepipe.WithRegistry(a.registry),
				stagepipe.WithLogger(a.logger),
				stagepipe.WithMiddleware(stagepipe.LoggingMiddleware(a.logger)),
			}

			var result stagepipe.RunResult
			if async {
				wc, err := a.cfg.WorkerConfig(a.logger)
				if err != nil {
					return err
				}
				if worker != "" {
					if wc.Type, err = stagepipe.ParseWorkerType(worker); err != nil {
						return err
					}
				}
				if wc.Type == stagepipe.WorkerProcess && wc.Command == "" && len(wc.Args) == 0 {
					wc.Args = []string{"worker", "--config", a.configPath}
				}
				if wc.Type != stagepipe.WorkerGoroutine {
					executor, err := stagepipe.NewExecutor(wc)
					if err != nil {
						return err
					}
					if closer, ok := executor.(interface{ Close() error }); ok {
						defer closer.Close()
					}
					opts = append(opts, stagepipe.WithExecutor(executor))
				}
				result = <-stagepipe.NewRunner(opts...).RunAsync(cmd.Context(), p.Serialize())
			} else {
				result = stagepipe.NewRunner(opts...).RunPipeline(cmd.Context(), p)
			}

			fmt.Fprintln(cmd.OutOrStdout(), result)
			if result.Status == stagepipe.StatusFailed {
				return &exitError{code: 2, err: fmt.Errorf("run failed: %w", result.Err)}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&async, "async", false, "run on a worker instead of the calling goroutine")
	cmd.Flags().StringVar(&worker, "worker", "", "worker type for --async: goroutine, process or grpc")
	return cmd
}
