package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lexiqai/session-assistant/internal/config"
	"github.com/lexiqai/session-assistant/internal/store"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect recorded sessions",
	}

	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsShowCmd())
	return cmd
}

func newSessionsListCmd() *cobra.Command {
	var (
		dbPath string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsList(cmd, dbPath, limit)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", config.GetEnv("DATABASE_PATH", "assistant.db"), "path to the session database")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of sessions (0 for all)")
	return cmd
}

func runSessionsList(cmd *cobra.Command, dbPath string, limit int) error {
	if limit < 0 {
		return errors.New("--limit must not be negative")
	}

	records, err := store.Open(cmd.Context(), dbPath)
	if err != nil {
		return err
	}
	defer records.Close()

	sessions, err := records.ListSessions(cmd.Context(), limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tPLATFORM\tLANGUAGE\tDURATION\tSCORE\tTERMS")
	for _, s := range sessions {
		score := fmt.Sprintf("%.0f", s.PerformanceReport.OverallScore)
		if s.PerformanceReport.Partial {
			score += "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.0fs\t%s\t%d\n",
			s.SessionID,
			s.StartedAt.Local().Format("2006-01-02 15:04"),
			s.Platform,
			s.Language,
			s.DurationSeconds,
			score,
			s.TermsCount,
		)
	}
	return w.Flush()
}

func newSessionsShowCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print a recorded session as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsShow(cmd, dbPath, args[0])
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", config.GetEnv("DATABASE_PATH", "assistant.db"), "path to the session database")
	return cmd
}

func runSessionsShow(cmd *cobra.Command, dbPath, id string) error {
	records, err := store.Open(cmd.Context(), dbPath)
	if err != nil {
		return err
	}
	defer records.Close()

	rec, err := records.GetSession(cmd.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("session %q not found", id)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}
