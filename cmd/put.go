// put.go creates or updates a document through the coordinator.

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/knostack/knosync/internal/ledger"
	"github.com/knostack/knosync/internal/store"
)

var (
	putTitle       string
	putFile        string
	putStatus      string
	putTags        []string
	putBaseVersion int
)

var putCmd = &cobra.Command{
	Use:   "put <id>",
	Short: "Create or update a document",
	Long: `Commits a new version of a document and synchronizes the derived stores.
The id is a UUID; pass a fresh one to create a document. Content is read
from --file, or from stdin when --file is "-" or omitted.

A non-zero --base-version makes the commit conditional: it fails if the
document has moved past that version since it was read.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid document id %q: %w", args[0], err)
		}
		content, err := readContent(putFile)
		if err != nil {
			return err
		}

		app, err := getApp(cmd.Context())
		if err != nil {
			return err
		}

		res, err := app.coord.Mutate(cmd.Context(), ledger.CommitRequest{
			DocumentID:  id,
			WorkspaceID: workspace,
			Title:       putTitle,
			Content:     content,
			Status:      store.Status(putStatus),
			Tags:        putTags,
			Author:      author,
			BaseVersion: putBaseVersion,
		})
		if err != nil {
			return err
		}

		if jsonOut {
			return printJSON(map[string]any{
				"document": res.Ledger.Document.ToJSON(false),
				"created":  res.Ledger.Created,
				"no_op":    res.Ledger.NoOp,
				"pending":  res.Pending,
			})
		}

		switch {
		case res.Ledger.NoOp:
			fmt.Printf("%s unchanged at version %d\n", id, res.Ledger.Document.CurrentVersion)
		case res.Ledger.Created:
			fmt.Printf("%s created at version 1\n", id)
		default:
			fmt.Printf("%s committed version %d\n", id, res.Ledger.Document.CurrentVersion)
		}
		if !res.Synced() {
			fmt.Printf("pending sync: %v (will be retried)\n", res.Pending)
		}
		return nil
	},
}

func readContent(path string) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func init() {
	putCmd.Flags().StringVarP(&putTitle, "title", "t", "", "document title")
	putCmd.Flags().StringVarP(&putFile, "file", "f", "", "content file (- for stdin)")
	putCmd.Flags().StringVar(&putStatus, "status", "", "document status (draft, published, archived)")
	putCmd.Flags().StringSliceVar(&putTags, "tag", nil, "document tags")
	putCmd.Flags().IntVar(&putBaseVersion, "base-version", 0, "fail if the document moved past this version")
	_ = putCmd.MarkFlagRequired("title")
	rootCmd.AddCommand(putCmd)
}
