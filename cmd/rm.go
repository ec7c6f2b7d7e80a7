// rm.go soft-deletes and restores documents.

package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Soft-delete a document",
	Long: `Soft-deletes a document: its status flips to deleted through a new
version, and its graph node is detached. Version history and embedding
chunks are retained; use restore to bring the document back.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid document id %q: %w", args[0], err)
		}
		app, err := getApp(cmd.Context())
		if err != nil {
			return err
		}

		res, err := app.coord.Delete(cmd.Context(), id, author)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(map[string]any{
				"document": res.Ledger.Document.ToJSON(false),
				"pending":  res.Pending,
			})
		}
		fmt.Printf("%s deleted (version %d)\n", id, res.Ledger.Document.CurrentVersion)
		if !res.Synced() {
			fmt.Printf("pending sync: %v (will be retried)\n", res.Pending)
		}
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <id>",
	Short: "Restore a soft-deleted document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid document id %q: %w", args[0], err)
		}
		app, err := getApp(cmd.Context())
		if err != nil {
			return err
		}

		res, err := app.coord.Restore(cmd.Context(), id, author)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(map[string]any{
				"document": res.Ledger.Document.ToJSON(false),
				"pending":  res.Pending,
			})
		}
		fmt.Printf("%s restored (version %d)\n", id, res.Ledger.Document.CurrentVersion)
		if !res.Synced() {
			fmt.Printf("pending sync: %v (will be retried)\n", res.Pending)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rmCmd, restoreCmd)
}
