// get.go reads documents and their history.

package cmd

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var getVersion int

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a document",
	Long:  `Shows the current state of a document, or a historical version with --version.`,
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

		if getVersion > 0 {
			ver, err := app.store.Version(cmd.Context(), id, getVersion)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(ver)
			}
			fmt.Printf("# %s (version %d by %s)\n\n%s\n", ver.Title, ver.Version, ver.Author, ver.Content)
			return nil
		}

		doc, err := app.store.Document(cmd.Context(), id)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(doc.ToJSON(true))
		}
		fmt.Printf("# %s (version %d, %s)\n\n%s\n", doc.Title, doc.CurrentVersion, doc.Status, doc.Content)
		return nil
	},
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Show a document's version history",
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

		versions, err := app.store.History(cmd.Context(), id, historyLimit)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(versions)
		}
		for _, v := range versions {
			when := time.Unix(v.CreatedAt, 0).UTC().Format(time.RFC3339)
			fmt.Printf("v%d  %s  %s  %s\n", v.Version, when, v.Author, v.Summary)
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "ls",
	Short: "List documents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := getApp(cmd.Context())
		if err != nil {
			return err
		}
		docs, err := app.store.Documents(cmd.Context(), workspace, false)
		if err != nil {
			return err
		}
		if jsonOut {
			out := make([]any, 0, len(docs))
			for i := range docs {
				out = append(out, docs[i].ToJSON(false))
			}
			return printJSON(out)
		}
		for i := range docs {
			d := &docs[i]
			fmt.Printf("%s  v%-3d %-9s  %s\n", d.ID, d.CurrentVersion, d.Status, d.Title)
		}
		return nil
	},
}

func init() {
	getCmd.Flags().IntVar(&getVersion, "version", 0, "show this historical version")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "limit history entries (0 for all)")
	rootCmd.AddCommand(getCmd, historyCmd, listCmd)
}
