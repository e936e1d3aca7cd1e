package commands

import (
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|down|status|reset|version] [args...]",
	Short: "Run schema migrations",
	Long: `Run a goose command over the migrations embedded into the binary.

Examples:
  orderctl migrate up
  orderctl migrate status
  orderctl migrate down-to 0`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		repo, err := openRepository(ctx)
		if err != nil {
			return err
		}
		defer repo.Close()

		return repo.Migrate(ctx, args[0], args[1:]...)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
