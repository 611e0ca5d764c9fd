package cmd

import (
	"fmt"

	"github.com/moltasthornblom/beam/core/transcode"

	"github.com/spf13/cobra"
)

var (
	planWidth  int
	planHeight int
	planProbe  string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the rendition ladder and master playlist for a source",
	Long:  `Print the renditions and master playlist that an upload would produce, from --width/--height or by probing --file with ffprobe.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if planProbe != "" {
			meta, err := transcode.NewFFprobe(cfg.FFprobePath).Probe(cmd.Context(), planProbe)
			if err != nil {
				return err
			}
			planWidth, planHeight = meta.Width, meta.Height
			fmt.Printf("Source: %dx%d %s, %.1fs\n", meta.Width, meta.Height, meta.Codec, meta.Duration)
		}

		plan, err := transcode.PlanLadder(planWidth, planHeight)
		if err != nil {
			return err
		}
		for _, r := range plan {
			fmt.Printf("%-10s %-8s -> %s\n", r.Name(), r.Bitrate, r.PlaylistName())
		}
		fmt.Println()
		fmt.Print(transcode.BuildMasterPlaylist(plan))
		return nil
	},
}

func init() {
	planCmd.Flags().IntVar(&planWidth, "width", 1920, "source width")
	planCmd.Flags().IntVar(&planHeight, "height", 1080, "source height")
	planCmd.Flags().StringVarP(&planProbe, "file", "f", "", "probe this file instead of using --width/--height")
	rootCmd.AddCommand(planCmd)
}
