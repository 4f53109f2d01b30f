package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/millflow/internal/log"
	"github.com/zjrosen/millflow/internal/presentation"
	"github.com/zjrosen/millflow/internal/store"
)

func newHistoryCmd(c *cli) *cobra.Command {
	var opts store.ListOptions
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List toolpaths saved with generate --store",
		Long: `List toolpaths saved with generate --store, newest first.

Stored toolpaths are addressed by id. Any unique prefix of an id works.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withStore(func(db *store.DB) error {
				summaries, err := db.Toolpaths().List(cmd.Context(), opts)
				if err != nil {
					return err
				}
				entries := make([]presentation.HistoryEntryDTO, 0, len(summaries))
				for _, s := range summaries {
					entries = append(entries, presentation.FromSummary(s))
				}
				f, err := c.formatter(cmd.OutOrStdout())
				if err != nil {
					return err
				}
				return f.FormatHistory(entries)
			})
		},
	}
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "maximum number of entries (0 for all)")
	cmd.Flags().StringVarP(&opts.TaskID, "task", "t", "", "only toolpaths of this task")

	cmd.AddCommand(newHistoryShowCmd(c), newHistoryDeleteCmd(c))
	return cmd
}

func newHistoryShowCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Print a stored toolpath with every move",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(func(db *store.DB) error {
				repo := db.Toolpaths()
				id, err := repo.Resolve(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				tp, _, err := repo.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				f, err := c.formatter(cmd.OutOrStdout())
				if err != nil {
					return err
				}
				return f.FormatToolpath(presentation.FromToolpath(tp, true))
			})
		},
	}
}

func newHistoryDeleteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Remove a stored toolpath",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(func(db *store.DB) error {
				repo := db.Toolpaths()
				id, err := repo.Resolve(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if err := repo.Delete(cmd.Context(), id); err != nil {
					return err
				}
				log.Info(log.CatCLI, "toolpath deleted", "id", id.String())
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
				return err
			})
		},
	}
}

// withStore opens the history database for the duration of fn.
func (c *cli) withStore(fn func(db *store.DB) error) error {
	db, err := store.Open(c.cfg.Store.Path)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return fn(db)
}
