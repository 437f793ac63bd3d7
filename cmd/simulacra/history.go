package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/faanross/simulacra_lsb/internal/history"
	"github.com/faanross/simulacra_lsb/internal/ui"
)

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show and manage past encode and decode operations",
	}
	cmd.AddCommand(newHistoryListCmd(a), newHistoryRemoveCmd(a), newHistoryClearCmd(a))
	return cmd
}

func newHistoryListCmd(a *app) *cobra.Command {
	var (
		kind   string
		search string
		oldest bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List history entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := history.Query{Kind: history.Kind(kind), Search: search, Order: history.Newest}
			if kind != "" && q.Kind != history.KindEncode && q.Kind != history.KindDecode {
				return fmt.Errorf("--kind must be encode or decode")
			}
			if oldest {
				q.Order = history.Oldest
			}

			store, err := a.historyStore()
			if err != nil {
				return err
			}
			entries, err := store.List(q)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(w, ui.Muted.Sprint("no history"))
				return nil
			}

			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tFILE\tBYTES\tWHEN\tUSER")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
					shortID(e.ID), e.Kind, e.Filename, e.MessageLength,
					e.Timestamp.Local().Format(time.DateTime), e.User)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "only show encode or decode entries")
	cmd.Flags().StringVarP(&search, "search", "s", "", "filter by file name")
	cmd.Flags().BoolVar(&oldest, "oldest", false, "oldest first")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output in JSON format")
	return cmd
}

func newHistoryRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove ID",
		Short: "Remove one history entry",
		Long:  "Removes the entry whose id starts with ID. The prefix must be unique.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.historyStore()
			if err != nil {
				return err
			}
			id, err := resolveEntryID(store, args[0])
			if err != nil {
				return err
			}
			if err := store.Remove(id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Removed %s\n", color.GreenString("✓"), id)
			return nil
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func resolveEntryID(store history.Store, prefix string) (string, error) {
	entries, err := store.List(history.Query{})
	if err != nil {
		return "", err
	}
	var matches []string
	for _, e := range entries {
		if strings.HasPrefix(e.ID, prefix) {
			matches = append(matches, e.ID)
		}
	}
	switch len(matches) {
	case 0:
		// Let Remove report ErrEntryNotFound.
		return prefix, nil
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("id prefix %q matches %d entries", prefix, len(matches))
	}
}

func newHistoryClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all history entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.historyStore()
			if err != nil {
				return err
			}
			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s History cleared\n", color.GreenString("✓"))
			return nil
		},
	}
}
