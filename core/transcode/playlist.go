package transcode

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// PlaylistExt is the manifest extension for HLS.
	PlaylistExt = ".m3u8"
	// MasterPlaylistName is the top-level manifest inside each output directory.
	MasterPlaylistName = "master" + PlaylistExt
	// SegmentExt is the media segment extension ffmpeg's HLS muxer writes.
	SegmentExt = ".ts"
)

// BuildMasterPlaylist renders the master manifest, one stream-info/URI pair
// per rendition in plan order.
func BuildMasterPlaylist(renditions []Rendition) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	for _, r := range renditions {
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%s\n", r.Bandwidth(), r.Name())
		b.WriteString(r.PlaylistName())
		b.WriteString("\n")
	}
	return b.String()
}

// WriteMasterPlaylist writes master.m3u8 into outputDir. The file existing says
// nothing about readiness; the asset status does.
func WriteMasterPlaylist(outputDir string, renditions []Rendition) (string, error) {
	path := filepath.Join(outputDir, MasterPlaylistName)
	if err := os.WriteFile(path, []byte(BuildMasterPlaylist(renditions)), 0644); err != nil {
		return "", fmt.Errorf("failed to write master playlist %s: %w", path, err)
	}
	return path, nil
}
