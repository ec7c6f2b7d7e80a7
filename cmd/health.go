// health.go checks connectivity to each store.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check connectivity to each store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := getApp(cmd.Context())
		if err != nil {
			return err
		}

		checks := map[string]string{}
		ok := true

		if err := app.store.Ping(cmd.Context()); err != nil {
			checks["relational"] = err.Error()
			ok = false
		} else {
			checks["relational"] = "ok"
		}
		if err := app.graph.Ping(cmd.Context()); err != nil {
			checks["graph"] = err.Error()
			ok = false
		} else {
			checks["graph"] = "ok"
		}
		if _, err := app.provider.Embed(cmd.Context(), "ping"); err != nil {
			checks["embeddings"] = err.Error()
			ok = false
		} else {
			checks["embeddings"] = "ok"
		}

		if jsonOut {
			if err := printJSON(checks); err != nil {
				return err
			}
		} else {
			for _, name := range []string{"relational", "graph", "embeddings"} {
				fmt.Printf("%-11s %s\n", name, checks[name])
			}
		}
		if !ok {
			return fmt.Errorf("one or more stores unavailable")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
