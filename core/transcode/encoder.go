package transcode

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/moltasthornblom/beam/logger"
)

// EncodeRequest describes one source -> rendition transcode.
type EncodeRequest struct {
	SourcePath  string
	OutputDir   string
	Rendition   Rendition
	SegmentTime int // Seconds
}

// OutputPath is the rendition's sub-manifest path.
func (r EncodeRequest) OutputPath() string {
	return filepath.Join(r.OutputDir, r.Rendition.PlaylistName())
}

// Encoder runs the external encoding engine. Encode blocks until the engine
// reports completion or failure.
type Encoder interface {
	Encode(ctx context.Context, req EncodeRequest) error
}

// FFmpegEncoder implements Encoder with the ffmpeg binary.
type FFmpegEncoder struct {
	ffmpegPath string
}

// NewFFmpegEncoder creates an encoder running the binary at ffmpegPath.
func NewFFmpegEncoder(ffmpegPath string) *FFmpegEncoder {
	return &FFmpegEncoder{ffmpegPath: ffmpegPath}
}

// FFmpegPath returns the configured binary.
func (e *FFmpegEncoder) FFmpegPath() string {
	return e.ffmpegPath
}

// buildArgs returns the ffmpeg arguments: baseline profile, 10s segments by
// default, unbounded playlist, HLS muxer.
func buildArgs(req EncodeRequest) []string {
	segmentTime := req.SegmentTime
	if segmentTime <= 0 {
		segmentTime = 10
	}
	return []string{
		"-y",
		"-i", req.SourcePath,
		"-s", req.Rendition.Name(),
		"-b:v", req.Rendition.Bitrate,
		"-profile:v", "baseline",
		"-level", "3.0",
		"-start_number", "0",
		"-hls_time", strconv.Itoa(segmentTime),
		"-hls_list_size", "0",
		"-f", "hls",
		req.OutputPath(),
	}
}

// Encode runs ffmpeg for one rendition. Cancelling ctx kills the process.
func (e *FFmpegEncoder) Encode(ctx context.Context, req EncodeRequest) error {
	args := buildArgs(req)
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Info("Spawned ffmpeg",
		logger.String("rendition", req.Rendition.Name()),
		logger.String("command", e.ffmpegPath+" "+strings.Join(args, " ")))

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("ffmpeg interrupted: %w", ctxErr)
		}
		return fmt.Errorf("ffmpeg failed: %w: %s", err, lastLines(stderr.String(), 5))
	}
	return nil
}

// lastLines keeps the tail of noisy engine output for error messages.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
