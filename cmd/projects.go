package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List the projects visible to the configured account",
	Long:  "Lists the projects visible to the configured account. Finished projects are hidden unless --all is given.",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, _ []string) error {
		all, _ := cmd.Flags().GetBool("all")

		client, err := newAPIClient(cmd.Context(), true)
		if err != nil {
			return err
		}
		projects, err := client.Projects(cmd.Context(), !all)
		if err != nil {
			return withCode(exitRemote, err)
		}
		if len(projects) == 0 {
			fmt.Println("No projects.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		if all {
			fmt.Fprintln(w, "ID\tTITLE\tDONE")
		} else {
			fmt.Fprintln(w, "ID\tTITLE")
		}
		for _, p := range projects {
			if all {
				fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.Title, p.DoneAt)
			} else {
				fmt.Fprintf(w, "%s\t%s\n", p.ID, p.Title)
			}
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(projectsCmd)
	projectsCmd.Flags().Bool("all", false, "Include finished projects")
}
