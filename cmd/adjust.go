package cmd

import (
	"github.com/spf13/cobra"

	"github.com/spencerau/NeRF-to-3DPrint/internal/manifest"
	"github.com/spencerau/NeRF-to-3DPrint/internal/utils"
)

var adjustCmd = &cobra.Command{
	Use:   "adjust-json [path]",
	Short: "Point every frame of a transforms manifest at images/<file name>",
	Long: `Rewrites each frame's file_path in a transforms manifest to "images/" followed by the
file name, leaving every other field as it was.

The manifest is overwritten in place and no backup is kept. The default path is
transforms.json in the working directory.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := manifest.DefaultPath
		if len(args) == 1 {
			path = args[0]
		}
		if err := runAdjust(path); err != nil {
			utils.Die("Failed to adjust manifest", err, nil)
		}
	},
}

func init() {
	rootCmd.AddCommand(adjustCmd)
}

func runAdjust(path string) error {
	n, err := manifest.RewriteFile(path, path)
	if err != nil {
		return err
	}
	Logger.Infow("updated manifest", "path", path, "frames", n)
	return nil
}
