// root.go defines the root command and CLI execution entry point.

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/knostack/knosync/internal/store"
)

var (
	configPath string
	author     string
	workspace  string
	jsonOut    bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "knosync",
	Short: "Versioned knowledge store synchronizer",
	Long: `Keeps versioned documents consistent across a relational store, a graph
store, and a vector index. The relational store is the source of truth;
the graph and vector projections are derived from it and repaired
automatically when a write to them fails.`,
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default knosync.yaml)")
	rootCmd.PersistentFlags().StringVar(&author, "author", "", "author recorded on mutations")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace id")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "JSON output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// Execute runs the root command and handles process lifecycle. Exit code 1
// indicates error.
func Execute() {
	ctx := context.Background()
	err := rootCmd.ExecuteContext(ctx)
	closeApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	data, err := store.MarshalJSON(v)
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
