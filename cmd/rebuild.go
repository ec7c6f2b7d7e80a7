// rebuild.go re-derives the derived stores from relational truth.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild derived stores from the relational store",
	Long: `Re-derives the embedding chunks and graph projection of every document
from the relational source of truth. Use after a derived store was lost
or restored from an old backup, or to repair surfaced sync debt.
Unchanged chunks keep their stored vectors, so a rebuild over a healthy
vector index makes no embedding calls.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := getApp(cmd.Context())
		if err != nil {
			return err
		}
		n, err := app.coord.Rebuild(cmd.Context(), workspace)
		if err != nil {
			return fmt.Errorf("rebuild stopped after %d documents: %w", n, err)
		}
		fmt.Printf("rebuilt %d documents\n", n)
		return nil
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Repay due sync debts once",
	Long: `Runs one sweep of the debt scheduler: every due sync debt is retried by
re-deriving the failed stage from current relational state. Long-running
deployments run this continuously; the command exists for cron jobs and
for poking a stuck document.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := getApp(cmd.Context())
		if err != nil {
			return err
		}
		resolved, err := app.sched.Sweep(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("resolved %d debts\n", resolved)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rebuildCmd, retryCmd)
}
