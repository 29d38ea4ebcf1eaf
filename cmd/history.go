package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sw33tLie/puzzleimport/internal/utils"
	"github.com/sw33tLie/puzzleimport/pkg/storage"
)

const timeLayout = "2006-01-02 15:04:05"

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent import runs (default 20)",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		db, err := openExistingDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRecentRuns(cmd.Context(), limit)
		if err != nil {
			return withCode(exitStorage, err)
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "RUN\tSTARTED\tPROJECT\tSTATUS\tOPS\tFILE")
		for _, r := range runs {
			status := r.Status
			if r.DryRun {
				status += " (dry)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", r.ID[:8], r.StartedAt.Local().Format(timeLayout), r.ProjectID, status, r.Executed, r.SourceFile)
		}
		return w.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run>",
	Short: "Show a run and its operations. The run may be given as an ID prefix",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openExistingDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		run, err := db.GetRun(cmd.Context(), args[0])
		if err != nil {
			if errors.Is(err, storage.ErrRunNotFound) {
				return withCode(exitUsage, fmt.Errorf("%w: %s", err, args[0]))
			}
			return withCode(exitStorage, err)
		}
		ops, err := db.ListRunOperations(cmd.Context(), run.ID)
		if err != nil {
			return withCode(exitStorage, err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Run:      %s\n", run.ID)
		fmt.Fprintf(out, "Project:  %s\n", run.ProjectID)
		fmt.Fprintf(out, "File:     %s\n", run.SourceFile)
		fmt.Fprintf(out, "Started:  %s\n", run.StartedAt.Local().Format(timeLayout))
		if !run.FinishedAt.IsZero() {
			fmt.Fprintf(out, "Finished: %s\n", run.FinishedAt.Local().Format(timeLayout))
		}
		fmt.Fprintf(out, "Status:   %s", run.Status)
		if run.DryRun {
			fmt.Fprint(out, " (dry run)")
		}
		fmt.Fprintln(out)
		if run.Error != "" {
			fmt.Fprintf(out, "Error:    %s\n", run.Error)
		}
		c := run.Counts
		fmt.Fprintf(out, "Plan:     groups %d new, %d existing; products %d new, %d updated, %d unchanged; conflicts %d\n\n",
			c.GroupsCreated, c.GroupsExisting, c.ProductsCreated, c.ProductsUpdated, c.ProductsUnchanged, c.Conflicts)

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SEQ\tKIND\tPATH\tPARENT\tREMOTE\tFIELDS\tERROR")
		for _, op := range ops {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", op.Seq, op.Kind, op.Path, dash(op.ParentID), dash(op.RemoteID), dash(op.Fields), op.Error)
		}
		return w.Flush()
	},
}

// openExistingDB opens the history database for reading. It never creates
// one.
func openExistingDB(cmd *cobra.Command) (*storage.DB, error) {
	dbPath, _ := cmd.Flags().GetString("dbpath")
	if dbPath == "" {
		dbPath = viper.GetString("db.path")
	}
	path, err := utils.GetAbsDBPath(dbPath)
	if err != nil {
		return nil, withCode(exitStorage, err)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, withCode(exitStorage, fmt.Errorf("database not found: %s", path))
	}
	db, err := storage.Open(path)
	if err != nil {
		return nil, withCode(exitStorage, err)
	}
	return db, nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.PersistentFlags().String("dbpath", "", "Path to SQLite DB file (default: ~/.config/puzzleimport/history.sqlite)")
	historyCmd.Flags().Int("limit", 20, "Number of recent runs to show")
}
