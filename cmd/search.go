// search.go finds documents by semantic similarity.

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search over document chunks",
	Long: `Embeds the query and returns the nearest document chunks by cosine
similarity. Requires a reachable embedding server.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := getApp(cmd.Context())
		if err != nil {
			return err
		}

		query := strings.Join(args, " ")
		vec, err := app.provider.Embed(cmd.Context(), query)
		if err != nil {
			return fmt.Errorf("embed query: %w", err)
		}

		chunks, err := app.store.SearchSimilarChunks(cmd.Context(), vec, searchLimit)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(chunks)
		}
		for _, c := range chunks {
			excerpt := c.Content
			if len(excerpt) > 120 {
				excerpt = excerpt[:120] + "…"
			}
			fmt.Printf("%s #%d  %s\n", c.DocumentID, c.ChunkIndex, excerpt)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum results")
	rootCmd.AddCommand(searchCmd)
}
