package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newBundleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Move namespaces and their objects between repositories",
	}
	cmd.AddCommand(newBundleExportCmd())
	cmd.AddCommand(newBundleImportCmd())
	return cmd
}

func newBundleExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Write all registered namespaces and their objects to a bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(cmd)
			if err != nil {
				return err
			}
			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("bundle export: %w", err)
			}
			stats, err := r.ExportBundle(f)
			if err != nil {
				f.Close()
				os.Remove(args[0])
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("bundle export: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d namespaces, %d objects\n", stats.Namespaces, stats.Objects)
			return nil
		},
	}
}

func newBundleImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Register the namespaces and objects of a bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(cmd)
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("bundle import: %w", err)
			}
			defer f.Close()

			stats, err := r.ImportBundle(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d namespaces, %d objects\n", stats.Namespaces, stats.Objects)
			return nil
		},
	}
}
