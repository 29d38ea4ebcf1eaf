package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var domainsCmd = &cobra.Command{
	Use:   "domains",
	Short: "List the login domains of the Puzzle instance",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := newAPIClient(cmd.Context(), false)
		if err != nil {
			return err
		}
		domains, err := client.Domains(cmd.Context())
		if err != nil {
			return withCode(exitRemote, err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME")
		for _, d := range domains {
			fmt.Fprintf(w, "%d\t%s\n", d.ID, d.Name)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(domainsCmd)
}
