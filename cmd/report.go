// report.go exposes the graph analytics reports.

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Knowledge-base reports over the graph projection",
}

var orphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "Documents nothing references",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := getApp(cmd.Context())
		if err != nil {
			return err
		}
		orphans, err := app.analyzer.Orphans(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(orphans)
		}
		for _, d := range orphans {
			fmt.Printf("%s  %s\n", d.ID, d.Title)
		}
		return nil
	},
}

var centralityLimit int

var centralityCmd = &cobra.Command{
	Use:   "centrality",
	Short: "Documents ranked by reference centrality",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := getApp(cmd.Context())
		if err != nil {
			return err
		}
		scores, err := app.analyzer.Centrality(cmd.Context())
		if err != nil {
			return err
		}
		if centralityLimit > 0 && len(scores) > centralityLimit {
			scores = scores[:centralityLimit]
		}
		if jsonOut {
			return printJSON(scores)
		}
		for _, s := range scores {
			fmt.Printf("%.4f  %s  %s\n", s.Score, s.Doc.ID, s.Doc.Title)
		}
		return nil
	},
}

var gapsCmd = &cobra.Command{
	Use:   "gaps",
	Short: "Concepts mentioned but not covered",
	Long: `Lists concepts that documents mention but no document is about. These
are the subjects the knowledge base touches without covering.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := getApp(cmd.Context())
		if err != nil {
			return err
		}
		gaps, err := app.analyzer.Gaps(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(gaps)
		}
		for _, g := range gaps {
			fmt.Printf("%-30s  mentioned by %d\n", g.Concept, g.Mentions)
		}
		return nil
	},
}

var (
	similarLimit    int
	similarWrite    bool
	similarMinShare int
)

var similarCmd = &cobra.Command{
	Use:   "similar",
	Short: "Document pairs sharing concepts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := getApp(cmd.Context())
		if err != nil {
			return err
		}

		pairs, err := app.analyzer.SimilarPairs(cmd.Context(), similarLimit)
		if err != nil {
			return err
		}

		if similarWrite {
			written, err := app.analyzer.WriteBackSimilarity(cmd.Context(), similarMinShare)
			if err != nil {
				return err
			}
			fmt.Printf("wrote %d SIMILAR_TO edges\n", written)
		}

		if jsonOut {
			return printJSON(pairs)
		}
		for _, p := range pairs {
			fmt.Printf("%s ~ %s  (%s)\n", p.A.Title, p.B.Title, strings.Join(p.Shared, ", "))
		}
		return nil
	},
}

func init() {
	centralityCmd.Flags().IntVarP(&centralityLimit, "limit", "n", 0, "limit results (0 for all)")
	similarCmd.Flags().IntVarP(&similarLimit, "limit", "n", 20, "limit pairs")
	similarCmd.Flags().BoolVar(&similarWrite, "write", false, "materialise SIMILAR_TO edges in the graph")
	similarCmd.Flags().IntVar(&similarMinShare, "min-shared", 2, "minimum shared concepts for --write")
	reportCmd.AddCommand(orphansCmd, centralityCmd, gapsCmd, similarCmd)
	rootCmd.AddCommand(reportCmd)
}
