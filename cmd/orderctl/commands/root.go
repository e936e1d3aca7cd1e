// Package commands содержит команды утилиты orderctl.
package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mmeshcher/orderbot/internal/repository"
)

var errNoDatabase = errors.New("database URL is required: pass --db or set DATABASE_URI")

var dbURL string

var rootCmd = &cobra.Command{
	Use:   "orderctl",
	Short: "Administration tool for the orderbot database",
	Long: `orderctl works directly against the orderbot PostgreSQL database.

It applies schema migrations and moves the catalog (cities, districts,
products, payment methods and settings) in and out as JSON.`,
	SilenceUsage: true,
}

// Execute запускает корневую команду.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", os.Getenv("DATABASE_URI"), "Database connection URL")
}

func openRepository(ctx context.Context) (*repository.PostgresRepository, error) {
	if dbURL == "" {
		return nil, errNoDatabase
	}
	repo, err := repository.OpenPostgres(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return repo, nil
}
