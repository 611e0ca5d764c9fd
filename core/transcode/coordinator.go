package transcode

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/moltasthornblom/beam/core/metrics"
	"github.com/moltasthornblom/beam/logger"
	"github.com/moltasthornblom/beam/model"
	"github.com/moltasthornblom/beam/repository"
)

// Result summarises one upload's fan-out after every job has finished.
type Result struct {
	Succeeded int
	Failed    int
	Total     int
	Finalized bool // the asset was flipped to ready
}

// Coordinator launches the encode jobs of a single upload concurrently and
// finalizes the asset once every rendition has succeeded. It is owned by one
// upload and never shared.
type Coordinator struct {
	pipeline   *Pipeline
	asset      *model.Asset
	sourcePath string
	outputDir  string
	jobs       []*EncodeJob
	tracker    *completionTracker

	mu        sync.Mutex
	finalized bool
}

func newCoordinator(p *Pipeline, asset *model.Asset, sourcePath, outputDir string, plan []Rendition) *Coordinator {
	jobs := make([]*EncodeJob, len(plan))
	for i, r := range plan {
		jobs[i] = NewEncodeJob(p.Encoder, EncodeRequest{
			SourcePath:  sourcePath,
			OutputDir:   outputDir,
			Rendition:   r,
			SegmentTime: p.SegmentTime,
		}, p.JobTimeout)
	}
	return &Coordinator{
		pipeline:   p,
		asset:      asset,
		sourcePath: sourcePath,
		outputDir:  outputDir,
		jobs:       jobs,
		tracker:    newCompletionTracker(len(jobs)),
	}
}

// Jobs returns the coordinator's jobs in plan order.
func (c *Coordinator) Jobs() []*EncodeJob {
	return c.jobs
}

// Run starts every job without waiting between launches and blocks until all
// of them reached a terminal state.
func (c *Coordinator) Run(ctx context.Context) Result {
	var wg sync.WaitGroup
	for _, job := range c.jobs {
		wg.Add(1)
		go func(job *EncodeJob) {
			defer wg.Done()
			c.runJob(ctx, job)
		}(job)
	}
	wg.Wait()

	succeeded, failed, total := c.tracker.counts()
	c.mu.Lock()
	defer c.mu.Unlock()
	return Result{Succeeded: succeeded, Failed: failed, Total: total, Finalized: c.finalized}
}

func (c *Coordinator) runJob(ctx context.Context, job *EncodeJob) {
	name := job.Rendition().Name()
	c.publish(ctx, model.EventJobStarted, name, "")

	state, err := job.Run(ctx)
	metrics.EncodeJobsTotal.WithLabelValues(name, string(state)).Inc()
	metrics.EncodeDuration.WithLabelValues(name).Observe(job.Duration().Seconds())

	outcome := c.tracker.record(state == JobSucceeded)

	if err != nil {
		logger.Error("Error during conversion",
			logger.String("assetId", c.asset.ID),
			logger.String("rendition", name),
			logger.ErrorField(err))
		c.publish(ctx, model.EventJobFailed, name, err.Error())
	} else {
		logger.Info("Finished processing rendition",
			logger.String("assetId", c.asset.ID),
			logger.String("rendition", name),
			logger.Duration("took", job.Duration()))
		c.publish(ctx, model.EventJobSucceeded, name, "")
	}

	switch outcome {
	case outcomeFinalize:
		c.finalize(ctx)
	case outcomeStalled:
		c.reportStalled(ctx)
	}
}

// finalize flips the asset to ready and then removes the source. It runs at
// most once per coordinator; the tracker guarantees a single caller.
func (c *Coordinator) finalize(ctx context.Context) {
	// Shutdown must not abandon a finalization that already started.
	ctx = context.WithoutCancel(ctx)
	p := c.pipeline

	if err := p.Assets.UpdateStatus(ctx, c.asset.ID, model.StatusReady); err != nil {
		serr := &StorageError{Op: "mark ready", AssetID: c.asset.ID, Err: err}
		metrics.FinalizationsTotal.WithLabelValues("storage_error").Inc()
		logger.Error("Failed to mark asset ready; source kept", logger.ErrorField(serr))
		return
	}
	c.mu.Lock()
	c.finalized = true
	c.mu.Unlock()
	metrics.FinalizationsTotal.WithLabelValues("ready").Inc()
	logger.Info("Asset ready", logger.String("assetId", c.asset.ID))

	if err := RemoveSource(c.sourcePath); err != nil {
		logger.Error("Error deleting the uploaded file", logger.ErrorField(err))
	} else {
		logger.Info("Uploaded file deleted", logger.String("path", c.sourcePath))
	}

	if p.Mirror != nil {
		start := time.Now()
		if err := p.Mirror.MirrorDir(ctx, c.asset.SourceFilename, c.outputDir); err != nil {
			logger.Warn("Failed to mirror renditions to object storage",
				logger.String("assetId", c.asset.ID),
				logger.ErrorField(err))
		} else {
			logger.Info("Renditions mirrored",
				logger.String("assetId", c.asset.ID),
				logger.Duration("took", time.Since(start)))
		}
		c.dropMirrorIfDeleted(ctx)
	}

	if p.Streams != nil {
		if err := p.Streams.Invalidate(ctx, c.asset.OwnerID); err != nil {
			logger.Warn("Failed to invalidate stream list cache", logger.ErrorField(err))
		}
	}

	c.publish(ctx, model.EventReady, "", "")
}

// dropMirrorIfDeleted removes the mirrored tree when the asset was deleted
// while it was being uploaded; that delete's RemovePrefix ran before the
// last objects arrived.
func (c *Coordinator) dropMirrorIfDeleted(ctx context.Context) {
	_, err := c.pipeline.Assets.FindOne(ctx, c.asset.ID, c.asset.OwnerID)
	if !errors.Is(err, repository.ErrAssetNotFound) {
		return
	}
	logger.Info("Asset deleted during mirroring, removing mirrored renditions", logger.String("assetId", c.asset.ID))
	if err := c.pipeline.Mirror.RemovePrefix(ctx, c.asset.SourceFilename); err != nil {
		logger.Warn("Failed to remove mirrored renditions", logger.String("assetId", c.asset.ID), logger.ErrorField(err))
	}
}

// reportStalled makes the stuck-in-processing state visible. The asset is
// left as is and the source file is kept.
func (c *Coordinator) reportStalled(ctx context.Context) {
	succeeded, failed, total := c.tracker.counts()
	metrics.PipelineStalledTotal.Inc()
	logger.Error("Pipeline stalled: asset stays processing",
		logger.String("assetId", c.asset.ID),
		logger.Int("succeeded", succeeded),
		logger.Int("failed", failed),
		logger.Int("total", total),
		logger.String("source", c.sourcePath))
	c.publish(context.WithoutCancel(ctx), model.EventStalled, "", "one or more renditions failed")
}

func (c *Coordinator) publish(ctx context.Context, typ model.AssetEventType, rendition, message string) {
	if c.pipeline.Events == nil {
		return
	}
	succeeded, _, total := c.tracker.counts()
	ev := model.AssetEvent{
		AssetID:   c.asset.ID,
		Type:      typ,
		Rendition: rendition,
		Message:   message,
		Completed: succeeded,
		Total:     total,
		At:        time.Now().UTC(),
	}
	if err := c.pipeline.Events.Publish(ctx, ev); err != nil {
		logger.Debug("Failed to publish asset event",
			logger.String("assetId", c.asset.ID),
			logger.String("type", string(typ)),
			logger.ErrorField(err))
	}
}
