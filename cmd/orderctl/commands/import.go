package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mmeshcher/orderbot/internal/model"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a catalog JSON document",
	Long: `Import a document produced by "orderctl export". Entities are matched
by name (payment methods by code) and updated in place; nothing is deleted.
The import runs in a single transaction: on any error the catalog is left unchanged.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := readSnapshot(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		repo, err := openRepository(ctx)
		if err != nil {
			return err
		}
		defer repo.Close()

		if err := repo.ImportCatalog(ctx, snap); err != nil {
			return fmt.Errorf("failed to import catalog: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "imported %d cities, %d products, %d payment methods\n",
			len(snap.Cities), len(snap.Products), len(snap.PaymentMethods))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func readSnapshot(path string) (model.CatalogSnapshot, error) {
	var snap model.CatalogSnapshot

	f, err := os.Open(path)
	if err != nil {
		return snap, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&snap); err != nil {
		return snap, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return snap, nil
}
