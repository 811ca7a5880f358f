package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/davidroman0O/stagepipe"
	"github.com/davidroman0O/stagepipe/store"
	"github.com/spf13/cobra"
)

func (a *app) withStore(cmd *cobra.Command, fn func(store.Store) error) error {
	s, err := store.OpenSQLite(cmd.Context(), a.cfg.Store)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func (a *app) saveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save <name>",
		Short: "Save the pipeline document in the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.loadPipeline()
			if err != nil {
				return err
			}
			return a.withStore(cmd, func(s store.Store) error {
				if err := s.Save(cmd.Context(), args[0], p.Serialize()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%d elements)\n", args[0], p.Len())
				return nil
			})
		},
	}
}

func (a *app) loadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load <name>",
		Short: "Replace the pipeline document with a saved pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(s store.Store) error {
				entry, err := s.Load(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				// Rebuild first so documents saved by an older catalog are
				// rejected before the working file is touched.
				p, err := stagepipe.Deserialize(a.registry, entry.Pipeline)
				if err != nil {
					return err
				}
				if err := a.savePipeline(p); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "loaded %s into %s\n", entry.Name, a.file)
				return nil
			})
		},
	}
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved pipelines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(s store.Store) error {
				entries, err := s.List(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tELEMENTS\tUPDATED")
				for _, e := range entries {
					fmt.Fprintf(w, "%s\t%d\t%s\n", e.Name, len(e.Pipeline), e.UpdatedAt.Format(time.RFC3339))
				}
				return w.Flush()
			})
		},
	}
}

func (a *app) removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a saved pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(s store.Store) error {
				return s.Delete(cmd.Context(), args[0])
			})
		},
	}
}
