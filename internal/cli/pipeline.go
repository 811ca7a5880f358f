package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/davidroman0O/stagepipe"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func (a *app) stagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "List the available stage types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TYPE\tCATEGORY\tINSTALLED\tDESCRIPTION")
			for _, info := range a.registry.Available() {
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", info.ID, info.Category, info.Installed, info.Description)
			}
			return w.Flush()
		},
	}
}

func (a *app) schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of pipeline documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := stagepipe.PipelineSchema()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(doc))
			return err
		},
	}
}

func (a *app) newCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create an empty pipeline document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(a.file); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", a.file)
			}
			if err := a.writeDocument(stagepipe.SerializedPipeline{}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", a.file)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing document")
	return cmd
}

func (a *app) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "show",
		Aliases: []string{"validate"},
		Short:   "Validate the pipeline document and print its elements",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.loadPipeline()
			if err != nil {
				return err
			}
			printPipeline(cmd.OutOrStdout(), p)
			return nil
		},
	}
}

func (a *app) addCmd() *cobra.Command {
	var values []string
	cmd := &cobra.Command{
		Use:   "add <source/type>",
		Short: "Add an element at the front of its stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := stagepipe.ParseTypeID(args[0])
			if err != nil {
				return err
			}
			p, err := a.loadPipeline()
			if err != nil {
				return err
			}
			e, err := a.registry.Instantiate(id)
			if err != nil {
				return err
			}
			if err := applyValues(e, values); err != nil {
				return err
			}
			added, err := p.Add(e)
			if err != nil {
				return err
			}
			if err := a.savePipeline(p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s at %d\n", added.Name(), p.IndexOf(added))
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&values, "set", nil, "parameter value as name=value (repeatable)")
	return cmd
}

func (a *app) setCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <index> <name=value>...",
		Short: "Change parameters of an element",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, e, err := a.element(args[0])
			if err != nil {
				return err
			}
			if err := applyValues(e, args[1:]); err != nil {
				return err
			}
			return a.savePipeline(p)
		},
	}
}

func (a *app) moveCmd(use, short string, move func(*stagepipe.Pipeline, *stagepipe.Element) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <index>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, e, err := a.element(args[0])
			if err != nil {
				return err
			}
			if err := move(p, e); err != nil {
				return err
			}
			if err := a.savePipeline(p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "moved %s to %d\n", e.Name(), p.IndexOf(e))
			return nil
		},
	}
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <index>",
		Short: "Remove an element",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, e, err := a.element(args[0])
			if err != nil {
				return err
			}
			if err := p.Delete(e); err != nil {
				return err
			}
			if err := a.savePipeline(p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", e.Name())
			return nil
		},
	}
}

func (a *app) clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every element",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.loadPipeline()
			if err != nil {
				return err
			}
			if err := p.Clear(); err != nil {
				return err
			}
			return a.savePipeline(p)
		},
	}
}

// element loads the pipeline and resolves a 0-based element index.
func (a *app) element(arg string) (*stagepipe.Pipeline, *stagepipe.Element, error) {
	i, err := strconv.Atoi(arg)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid element index %q", arg)
	}
	p, err := a.loadPipeline()
	if err != nil {
		return nil, nil, err
	}
	if i < 0 || i >= p.Len() {
		return nil, nil, fmt.Errorf("%w: index %d, pipeline has %d elements", stagepipe.ErrNotFound, i, p.Len())
	}
	return p, p.At(i), nil
}

// applyValues sets name=value pairs. Values of non-string parameters are
// parsed as YAML scalars so that 10, 1.5 and true keep their type.
func applyValues(e *stagepipe.Element, values []string) error {
	for _, kv := range values {
		name, raw, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("invalid parameter %q, expected name=value", kv)
		}
		p, ok := e.Param(name)
		if !ok {
			return fmt.Errorf("%w: %s has no parameter %s", stagepipe.ErrParameterInvalid, e.Name(), name)
		}
		var value any = raw
		if p.Type != stagepipe.ParamStr {
			var parsed any
			if err := yaml.Unmarshal([]byte(raw), &parsed); err != nil {
				return fmt.Errorf("%w: %s: %v", stagepipe.ErrParameterInvalid, name, err)
			}
			value = parsed
		}
		if err := e.SetParam(name, value); err != nil {
			return err
		}
	}
	return nil
}

func printPipeline(out io.Writer, p *stagepipe.Pipeline) {
	if p.Len() == 0 {
		fmt.Fprintln(out, "empty pipeline")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tNAME\tCATEGORY\tTYPE\tPARAMS")
	for i, e := range p.Elements() {
		params := make([]string, 0, len(e.Params()))
		for _, prm := range e.Params() {
			params = append(params, fmt.Sprintf("%s=%v", prm.Name, prm.Value))
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i, e.Name(), e.Category(), e.TypeID(), strings.Join(params, " "))
	}
	_ = w.Flush()
}
