// Package cli implements the stagepipe command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/davidroman0O/stagepipe"
	"github.com/davidroman0O/stagepipe/internal/config"
	"github.com/davidroman0O/stagepipe/stages"
	"github.com/spf13/cobra"
)

// app carries the state shared by every command of one invocation.
type app struct {
	configPath string
	file       string

	cfg      config.Config
	registry *stagepipe.Registry
	logger   stagepipe.Logger
}

// NewRootCmd creates the root command for stagepipe.
func NewRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "stagepipe",
		Short: "Assemble, persist and run ordered stage pipelines",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Show help when no subcommand is provided.
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.ErrOrStderr())
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultPath, "config file path")
	cmd.PersistentFlags().StringVarP(&a.file, "file", "f", "pipeline.json", "pipeline document (.json, .yaml or .yml)")

	// Subcommands
	cmd.AddCommand(
		a.stagesCmd(),
		a.schemaCmd(),
		a.newCmd(),
		a.showCmd(),
		a.addCmd(),
		a.setCmd(),
		a.moveCmd("move-up", "Move an element before its predecessor", (*stagepipe.Pipeline).MoveUp),
		a.moveCmd("move-down", "Move an element after its successor", (*stagepipe.Pipeline).MoveDown),
		a.deleteCmd(),
		a.clearCmd(),
		a.runCmd(),
		a.saveCmd(),
		a.loadCmd(),
		a.listCmd(),
		a.removeCmd(),
		a.workerCmd(),
		a.serveWorkerCmd(),
	)

	return cmd
}

// Execute runs the root command with provided args.
func Execute(args []string) error {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	return cmd.Execute()
}

func (a *app) init(stderr io.Writer) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	level, err := stagepipe.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = stagepipe.NewWriterLogger(stderr, level)
	a.registry = stagepipe.NewRegistry()
	return stages.Register(a.registry)
}

// loadPipeline reads the pipeline document. A missing file is an empty pipeline.
func (a *app) loadPipeline() (*stagepipe.Pipeline, error) {
	data, err := os.ReadFile(a.file)
	if errors.Is(err, os.ErrNotExist) {
		return stagepipe.NewPipeline(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading pipeline %s: %w", a.file, err)
	}
	sp, err := stagepipe.DecodePipeline(stagepipe.FormatFromPath(a.file), data)
	if err != nil {
		return nil, fmt.Errorf("decoding pipeline %s: %w", a.file, err)
	}
	p, err := stagepipe.Deserialize(a.registry, sp)
	if err != nil {
		return nil, fmt.Errorf("loading pipeline %s: %w", a.file, err)
	}
	return p, nil
}

func (a *app) writeDocument(sp stagepipe.SerializedPipeline) error {
	data, err := stagepipe.EncodePipeline(stagepipe.FormatFromPath(a.file), sp)
	if err != nil {
		return fmt.Errorf("encoding pipeline: %w", err)
	}
	if err := os.WriteFile(a.file, data, 0o644); err != nil {
		return fmt.Errorf("writing pipeline %s: %w", a.file, err)
	}
	return nil
}

func (a *app) savePipeline(p *stagepipe.Pipeline) error {
	return a.writeDocument(p.Serialize())
}

// exitError carries the process exit code for failed runs.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }
func (e *exitError) ExitCode() int { return e.code }
