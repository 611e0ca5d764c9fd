package transcode

import (
	"context"
	"errors"
	"time"

	"github.com/moltasthornblom/beam/core/metrics"
	"github.com/moltasthornblom/beam/logger"
	"github.com/moltasthornblom/beam/model"
	"github.com/moltasthornblom/beam/repository"
)

// EventPublisher receives progress events for assets.
type EventPublisher interface {
	Publish(ctx context.Context, ev model.AssetEvent) error
}

// Mirror copies finished rendition trees to secondary storage.
type Mirror interface {
	MirrorDir(ctx context.Context, prefix, dir string) error
	RemovePrefix(ctx context.Context, prefix string) error
}

// StreamCache caches the per-owner stream listing.
// Set only stores a listing when ownerID's generation is still gen, the
// value Generation returned before the store was read.
type StreamCache interface {
	Get(ctx context.Context, ownerID string, limit int) ([]*model.Asset, bool)
	Generation(ctx context.Context, ownerID string) (gen int64, ok bool)
	Set(ctx context.Context, ownerID string, gen int64, limit int, assets []*model.Asset)
	Invalidate(ctx context.Context, ownerID string) error
}

// Pipeline holds the collaborators shared by every upload's Coordinator.
// Events, Mirror and Streams are optional.
type Pipeline struct {
	Assets  repository.AssetRepository
	Encoder Encoder
	Prober  Prober
	Events  EventPublisher
	Mirror  Mirror
	Streams StreamCache

	SegmentTime int
	JobTimeout  time.Duration
}

// NewCoordinator builds the coordinator for one upload.
func (p *Pipeline) NewCoordinator(asset *model.Asset, sourcePath, outputDir string, plan []Rendition) *Coordinator {
	return newCoordinator(p, asset, sourcePath, outputDir, plan)
}

// Process probes the source (unless prober overrides it), plans the ladder,
// writes the master playlist and runs the fan-out. A probe failure aborts
// before any job starts and leaves the asset processing.
func (p *Pipeline) Process(ctx context.Context, asset *model.Asset, sourcePath, outputDir string, prober Prober) (Result, error) {
	if prober == nil {
		prober = p.Prober
	}

	meta, err := prober.Probe(ctx, sourcePath)
	if err == nil {
		var plan []Rendition
		if plan, err = PlanLadder(meta.Width, meta.Height); err == nil {
			return p.run(ctx, asset, sourcePath, outputDir, meta, plan)
		}
	}

	var perr *ProbeError
	if errors.As(err, &perr) && perr.Source == "" {
		perr.Source = sourcePath
	}
	metrics.ProbeFailuresTotal.Inc()
	logger.Error("Error during probing; no renditions started",
		logger.String("assetId", asset.ID),
		logger.ErrorField(err))
	return Result{}, err
}

func (p *Pipeline) run(ctx context.Context, asset *model.Asset, sourcePath, outputDir string, meta *Metadata, plan []Rendition) (Result, error) {
	if _, err := WriteMasterPlaylist(outputDir, plan); err != nil {
		logger.Error("Failed to write master playlist", logger.String("assetId", asset.ID), logger.ErrorField(err))
		return Result{}, err
	}

	names := make([]string, len(plan))
	for i, r := range plan {
		names[i] = r.Name()
	}
	logger.Info("Transcoding started",
		logger.String("assetId", asset.ID),
		logger.Int("sourceWidth", meta.Width),
		logger.Int("sourceHeight", meta.Height),
		logger.Strings("renditions", names))

	return p.NewCoordinator(asset, sourcePath, outputDir, plan).Run(ctx), nil
}
