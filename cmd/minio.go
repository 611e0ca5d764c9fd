package cmd

import (
	"fmt"

	"github.com/moltasthornblom/beam/storage"

	"github.com/spf13/cobra"
)

var (
	minioPrefix string
	minioDelete bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "Inspect the rendition mirror bucket",
	Long:  `Connect to MinIO, make sure the bucket exists and print object statistics. With --delete, remove one upload's mirrored tree.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("MinIO: %s, bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)
		mirror, err := storage.NewMinioMirror(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		if minioDelete {
			if minioPrefix == "" {
				return fmt.Errorf("--delete needs --prefix <upload filename>")
			}
			if err := mirror.RemovePrefix(cmd.Context(), minioPrefix); err != nil {
				return err
			}
			fmt.Printf("Removed hls/%s/\n", minioPrefix)
			return nil
		}

		stats, err := mirror.Stats(cmd.Context(), minioPrefix)
		if err != nil {
			return err
		}
		fmt.Printf("Objects: %d\n", stats.TotalObjects)
		fmt.Printf("Size:    %s\n", storage.FormatSize(stats.TotalSize))
		if stats.TotalObjects > 0 {
			fmt.Printf("Updated: %s\n", stats.LastModified.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

func init() {
	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "object prefix (upload filename with --delete)")
	minioCmd.Flags().BoolVarP(&minioDelete, "delete", "d", false, "remove the mirrored tree of --prefix")
	rootCmd.AddCommand(minioCmd)
}
