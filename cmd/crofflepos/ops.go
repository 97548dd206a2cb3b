package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"crofflepos/internal/config"
	pgstore "crofflepos/internal/store/postgres"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded Postgres schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required for migrate")
			}
			pg, err := pgstore.New(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pg.Close()
			if err := pg.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	}
}

func newReconcileCmd() *cobra.Command {
	var storeID, date string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare expected and recorded ingredient usage for a business day",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				report, err := a.service.ReconcileDay(operatorContext(cmd.Context()), storeID, date)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
	cmd.Flags().StringVar(&storeID, "store", "", "store to reconcile (defaults to DEFAULT_STORE_ID)")
	cmd.Flags().StringVar(&date, "date", "", "business date YYYY-MM-DD (defaults to today)")
	return cmd
}

func newAvailabilityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "availability",
		Short: "Product availability maintenance",
	}

	var storeID string
	sync := &cobra.Command{
		Use:   "sync",
		Short: "Recompute product availability from stock",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				ctx := operatorContext(cmd.Context())
				if storeID == "" || storeID == "all" {
					results, err := a.service.SyncAllAvailability(ctx)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), results)
				}
				result, err := a.service.SyncAvailability(ctx, storeID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	sync.Flags().StringVar(&storeID, "store", "all", "store to sync, or all")
	cmd.AddCommand(sync)
	return cmd
}

func newTemplatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Import or export recipe templates as YAML",
	}

	var importFile string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Create or update recipe templates from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(importFile)
			if err != nil {
				return err
			}
			defer f.Close()
			return withApp(cmd, func(a *app) error {
				result, err := a.service.ImportRecipeTemplates(operatorContext(cmd.Context()), f)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	importCmd.Flags().StringVarP(&importFile, "file", "f", "", "YAML file to import")
	_ = importCmd.MarkFlagRequired("file")

	var exportFile string
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write every recipe template as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				out := cmd.OutOrStdout()
				if exportFile != "" && exportFile != "-" {
					f, err := os.Create(exportFile)
					if err != nil {
						return err
					}
					defer f.Close()
					out = f
				}
				n, err := a.service.ExportRecipeTemplates(operatorContext(cmd.Context()), out)
				if err != nil {
					return err
				}
				a.log.WithField("templates", n).Info("recipe templates exported")
				return nil
			})
		},
	}
	exportCmd.Flags().StringVarP(&exportFile, "file", "f", "-", "destination file, - for stdout")

	cmd.AddCommand(importCmd, exportCmd)
	return cmd
}

// withApp wires the backend for a one-shot command and releases it after.
func withApp(cmd *cobra.Command, fn func(a *app) error) error {
	a, err := newApp(cmd.Context(), config.Load())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
