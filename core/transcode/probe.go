package transcode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

// Metadata is what the pipeline needs to know about a source file.
type Metadata struct {
	Width    int
	Height   int
	Codec    string
	Duration float64 // Seconds, 0 when unknown
}

// Prober inspects a source file.
type Prober interface {
	Probe(ctx context.Context, sourcePath string) (*Metadata, error)
}

// FFprobe implements Prober with the ffprobe binary.
type FFprobe struct {
	path string
}

// NewFFprobe creates a prober running the binary at path.
func NewFFprobe(path string) *FFprobe {
	return &FFprobe{path: path}
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe runs ffprobe on sourcePath and returns the first video stream's metadata.
func (p *FFprobe) Probe(ctx context.Context, sourcePath string) (*Metadata, error) {
	args := []string{
		"-v", "error",
		"-show_streams",
		"-show_format",
		"-of", "json",
		sourcePath,
	}

	cmd := exec.CommandContext(ctx, p.path, args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &ProbeError{
			Source: sourcePath,
			Reason: "ffprobe execution failed: " + lastLines(stderr.String(), 5),
			Err:    err,
		}
	}
	meta, err := parseProbeOutput(out.Bytes())
	if err != nil {
		if perr, ok := err.(*ProbeError); ok {
			perr.Source = sourcePath
		}
		return nil, err
	}
	return meta, nil
}

func parseProbeOutput(data []byte) (*Metadata, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, &ProbeError{Reason: "unreadable ffprobe output", Err: err}
	}

	for _, s := range probe.Streams {
		if s.CodecType != "video" {
			continue
		}
		if s.Width <= 0 || s.Height <= 0 {
			return nil, &ProbeError{Reason: "video stream has no dimensions"}
		}
		meta := &Metadata{Width: s.Width, Height: s.Height, Codec: s.CodecName}
		if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
			meta.Duration = d
		}
		return meta, nil
	}
	return nil, &ProbeError{Reason: "no valid video stream found"}
}

// StaticProbe returns fixed metadata. Used when the caller already probed the source.
type StaticProbe Metadata

func (s StaticProbe) Probe(context.Context, string) (*Metadata, error) {
	m := Metadata(s)
	if m.Width <= 0 || m.Height <= 0 {
		return nil, &ProbeError{Reason: fmt.Sprintf("invalid source dimensions %dx%d", m.Width, m.Height)}
	}
	return &m, nil
}
