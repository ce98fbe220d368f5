package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spencerau/NeRF-to-3DPrint/internal/segment"
	"github.com/spencerau/NeRF-to-3DPrint/internal/utils"
)

var (
	resetDB       bool
	resetCache    bool
	resetCacheDir string
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset state (catalog tables, cached segmentation checkpoint)",
	Long:  "Clears stored state. By default it resets everything. Use flags to clear specific components.",
	Run: func(cmd *cobra.Command, args []string) {
		// No flags means everything
		if !resetDB && !resetCache {
			resetDB = true
			resetCache = true
		}

		reader := bufio.NewReader(os.Stdin)

		if resetDB {
			ok, err := openCatalog(cmd.Context())
			switch {
			case err != nil:
				utils.Die("Catalog unavailable", err, nil)
			case !ok:
				fmt.Println("No catalog configured, skipping database.")
			case confirm(os.Stdout, reader, "⚠️  Are you sure you want to DROP all catalog tables?"):
				fmt.Println("🗑️  Clearing catalog...")
				if err := DB.Reset(cmd.Context()); err != nil {
					utils.Die("Failed to reset catalog", err, nil)
				}
			}
		}

		if resetCache {
			dir := resetCacheDir
			if dir == "" {
				var err error
				if dir, err = segment.DefaultCheckpointDir(); err != nil {
					utils.Die("Failed to locate checkpoint cache", err, nil)
				}
			}
			path := segment.NewFetcher(dir, Logger).Path()
			if !utils.FileExists(path) {
				fmt.Println("No cached checkpoint.")
			} else if confirm(os.Stdout, reader, fmt.Sprintf("⚠️  Are you sure you want to delete %s?", path)) {
				fmt.Println("🗑️  Removing checkpoint...")
				removeFile(path)
			}
		}

		fmt.Println("✨ Reset complete.")
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "db-tables", false, "Drop the catalog tables")
	resetCmd.Flags().BoolVar(&resetCache, "cache", false, "Delete the cached segmentation checkpoint")
	resetCmd.Flags().StringVar(&resetCacheDir, "checkpoint-dir", "", "Checkpoint cache directory (default: ./models)")
	rootCmd.AddCommand(resetCmd)
}

func confirm(out io.Writer, r *bufio.Reader, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeFile(path string) {
	if err := os.Remove(path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
