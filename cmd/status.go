// status.go reports per-document sync state and store-wide statistics.

package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [id]",
	Short: "Show sync status",
	Long: `With a document id, reports whether the document's derived stores are
caught up with its relational state. Without one, prints store-wide
statistics.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := getApp(cmd.Context())
		if err != nil {
			return err
		}

		if len(args) == 0 {
			stats, err := app.store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(stats)
			}
			fmt.Printf("documents:      %d (%d deleted)\n", stats.Documents, stats.DeletedDocs)
			fmt.Printf("versions:       %d\n", stats.TotalVersions)
			fmt.Printf("change records: %d\n", stats.ChangeRecords)
			fmt.Printf("chunks:         %d\n", stats.Chunks)
			fmt.Printf("insights:       %d\n", stats.Insights)
			fmt.Printf("open debts:     %d\n", stats.OpenDebts)
			return nil
		}

		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid document id %q: %w", args[0], err)
		}
		st, err := app.coord.Status(cmd.Context(), id)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(st)
		}

		fmt.Printf("%s version %d (%s)\n", st.DocumentID, st.Version, st.Status)
		switch {
		case st.InSync():
			fmt.Println("in sync")
		default:
			if len(st.Pending) > 0 {
				fmt.Printf("pending: %v\n", st.Pending)
			}
			if len(st.Surfaced) > 0 {
				fmt.Printf("needs attention: %v (retries exhausted, run rebuild)\n", st.Surfaced)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
