package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the catalog as JSON",
	Long: `Export cities with their districts, products, payment methods and
settings as a single JSON document. Orders and users are not exported.

Examples:
  orderctl export                   # Write to stdout
  orderctl export -o catalog.json   # Write to a file`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		repo, err := openRepository(ctx)
		if err != nil {
			return err
		}
		defer repo.Close()

		snap, err := repo.ExportCatalog(ctx)
		if err != nil {
			return fmt.Errorf("failed to export catalog: %w", err)
		}

		var w io.Writer = cmd.OutOrStdout()
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", exportOut, err)
			}
			defer f.Close()
			w = f
		}

		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (stdout when empty)")
}
