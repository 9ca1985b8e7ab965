//go:build linux

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jrepp/proclife/cmd/proclife/internal/ui"
	"github.com/jrepp/proclife/pkg/scenarios"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the available scenarios",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		printCatalog(ui.NewUI(cmd.OutOrStdout(), cmd.ErrOrStderr()))
		return nil
	},
}

func printCatalog(u *ui.UI) {
	all := scenarios.All()
	entries := make([]ui.CatalogEntry, 0, len(all))
	for _, s := range all {
		entries = append(entries, ui.CatalogEntry{
			Name:          s.Name,
			Deterministic: s.Deterministic,
			Description:   s.Description,
		})
	}
	u.Catalog(entries)
}

func init() {
	rootCmd.AddCommand(listCmd)
}
