package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sw33tLie/puzzleimport/internal/utils"
)

// dbCmd represents the db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Interact with the import history database",
}

// shellCmd represents the shell command
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive shell to the database",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("dbpath")
		if dbPath == "" {
			dbPath = viper.GetString("db.path")
		}
		dbPath, err := utils.GetAbsDBPath(dbPath)
		if err != nil {
			return withCode(exitStorage, err)
		}

		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return withCode(exitStorage, fmt.Errorf("database file not found: %s", dbPath))
		}

		// Check if sqlite3 is in PATH
		sqlitePath, err := exec.LookPath("sqlite3")
		if err != nil {
			return withCode(exitUsage, fmt.Errorf("sqlite3 command not found in your PATH. Please install it to use the db shell"))
		}

		// Print schema first
		fmt.Println("--> Database schema:")
		schemaCmd := exec.Command(sqlitePath, dbPath, ".schema")
		schemaCmd.Stdout = os.Stdout
		schemaCmd.Stderr = os.Stderr
		if err := schemaCmd.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: couldn't retrieve schema: %v\n", err)
		}
		fmt.Println("\n--> Starting interactive shell... (Ctrl+D to exit)")

		c := exec.Command(sqlitePath, dbPath)
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr

		return c.Run()
	},
}

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints per-project totals of the recorded imports.",
	Long:  "Prints per-project totals of the recorded imports. Dry runs are not counted.",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openExistingDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats(cmd.Context())
		if err != nil {
			return withCode(exitStorage, err)
		}

		if len(stats) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No data in the database to generate stats.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "PROJECT\tRUNS\tFAILED\tGROUPS\tCREATED\tUPDATED\tLAST RUN\t")

		var totalRuns, totalFailed, totalGroups, totalCreated, totalUpdated int
		for _, s := range stats {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%s\t\n", s.ProjectID, s.Runs, s.FailedRuns, s.GroupsCreated, s.ProductsCreated, s.ProductsUpdated, s.LastRunAt.Local().Format(timeLayout))
			totalRuns += s.Runs
			totalFailed += s.FailedRuns
			totalGroups += s.GroupsCreated
			totalCreated += s.ProductsCreated
			totalUpdated += s.ProductsUpdated
		}

		fmt.Fprintln(w, " \t \t \t \t \t \t \t")
		fmt.Fprintf(w, "TOTAL\t%d\t%d\t%d\t%d\t%d\t \t\n", totalRuns, totalFailed, totalGroups, totalCreated, totalUpdated)

		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(shellCmd)
	dbCmd.AddCommand(statsCmd)
	dbCmd.PersistentFlags().String("dbpath", "", "Path to SQLite DB file (default: ~/.config/puzzleimport/history.sqlite)")
}
