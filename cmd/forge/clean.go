package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"forge/internal/workproduct"
)

var cleanCmd = &cobra.Command{
	Use:   "clean [path]",
	Short: "Remove build outputs and the incremental directory",
	Long:  "Remove the output directory of a crate and drop every work product saved in its incremental directory.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runClean,
}

func runClean(cmd *cobra.Command, args []string) error {
	start := "."
	if len(args) > 0 && args[0] != "" {
		start = args[0]
	}
	manifest, err := loadManifest(start)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	cfg := manifest.Config

	if dir := manifest.Resolve(cfg.Incremental.Dir); dir != "" {
		if _, statErr := os.Stat(dir); statErr == nil {
			store, err := workproduct.OpenDiskStore(dir)
			if err != nil {
				return err
			}
			if err := store.DropAll(); err != nil {
				return fmt.Errorf("failed to drop work products: %w", err)
			}
			fmt.Fprintf(out, "dropped work products in %s\n", relToCwd(dir))
		} else if !errors.Is(statErr, os.ErrNotExist) {
			return fmt.Errorf("failed to stat %q: %w", dir, statErr)
		}
	}

	outDir := manifest.Resolve(cfg.Crate.OutDir)
	info, err := os.Stat(outDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintln(out, "output directory not found")
			return nil
		}
		return fmt.Errorf("failed to stat %q: %w", outDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%q is not a directory", outDir)
	}
	if err := os.RemoveAll(outDir); err != nil {
		return fmt.Errorf("failed to remove %q: %w", outDir, err)
	}
	fmt.Fprintf(out, "removed %s\n", relToCwd(outDir))
	return nil
}
