package transcode

import (
	"fmt"
	"strconv"
)

// Rendition is one output variant of the ladder.
type Rendition struct {
	Width   int
	Height  int
	Bitrate string // ffmpeg notation, e.g. "5000k"
}

// Name is the WxH label used in file names and logs.
func (r Rendition) Name() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// PlaylistName is the rendition's sub-manifest file name inside the output directory.
func (r Rendition) PlaylistName() string {
	return r.Name() + "_index" + PlaylistExt
}

// Bandwidth is the leading integer of Bitrate multiplied by 1000.
// "5000k" gives 5000000; a bitrate without leading digits gives 0.
func (r Rendition) Bandwidth() int {
	end := 0
	for end < len(r.Bitrate) && r.Bitrate[end] >= '0' && r.Bitrate[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(r.Bitrate[:end])
	if err != nil {
		return 0
	}
	return n * 1000
}

var baseLadder = []Rendition{
	{Width: 1920, Height: 1080, Bitrate: "5000k"},
	{Width: 1280, Height: 720, Bitrate: "2800k"},
	{Width: 854, Height: 480, Bitrate: "1400k"},
	{Width: 640, Height: 360, Bitrate: "800k"},
}

var uhdRendition = Rendition{Width: 3840, Height: 2160, Bitrate: "12000k"}

// PlanLadder returns the renditions to produce for a source of the given size.
// The base ladder is always emitted in full; 2160p is prepended for UHD sources.
func PlanLadder(width, height int) ([]Rendition, error) {
	if width <= 0 || height <= 0 {
		return nil, &ProbeError{Reason: fmt.Sprintf("invalid source dimensions %dx%d", width, height)}
	}

	plan := make([]Rendition, 0, len(baseLadder)+1)
	if width >= uhdRendition.Width && height >= uhdRendition.Height {
		plan = append(plan, uhdRendition)
	}
	return append(plan, baseLadder...), nil
}
