package transcode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/moltasthornblom/beam/core/metrics"
	"github.com/moltasthornblom/beam/core/queue"
	"github.com/moltasthornblom/beam/logger"
	"github.com/moltasthornblom/beam/model"
	"github.com/moltasthornblom/beam/repository"

	"github.com/google/uuid"
)

const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

// Submitter queues background work. *queue.WorkerPool implements it.
type Submitter interface {
	Submit(task queue.Task) error
}

// Service is the upload/delete/list surface handed to the HTTP layer.
type Service struct {
	pipeline *Pipeline
	pool     Submitter
	baseURL  string
	hlsDir   string
}

// NewService wires the pipeline to a background pool. baseURL is the public
// origin and hlsDir the root of the rendition trees.
func NewService(pipeline *Pipeline, pool Submitter, baseURL, hlsDir string) *Service {
	return &Service{
		pipeline: pipeline,
		pool:     pool,
		baseURL:  strings.TrimRight(baseURL, "/"),
		hlsDir:   hlsDir,
	}
}

// PublicURL is the master playlist URL for an upload stored as filename.
func PublicURL(baseURL, filename string) string {
	return fmt.Sprintf("%s/hls/%s/%s", strings.TrimRight(baseURL, "/"), filename, MasterPlaylistName)
}

// OutputDir is where the renditions of filename are written.
func (s *Service) OutputDir(filename string) string {
	return filepath.Join(s.hlsDir, filename)
}

// Accept records a new asset as processing, queues its transcode and returns
// without waiting for it. The source is probed in the background.
func (s *Service) Accept(ctx context.Context, ownerID, sourcePath, sourceFilename string) (*model.Asset, error) {
	return s.accept(ctx, ownerID, sourcePath, sourceFilename, nil)
}

// AcceptProbed is Accept for a caller that already knows the source dimensions.
func (s *Service) AcceptProbed(ctx context.Context, ownerID, sourcePath, sourceFilename string, width, height int) (*model.Asset, error) {
	if width <= 0 || height <= 0 {
		return nil, &ProbeError{Source: sourcePath, Reason: fmt.Sprintf("invalid source dimensions %dx%d", width, height)}
	}
	return s.accept(ctx, ownerID, sourcePath, sourceFilename, StaticProbe{Width: width, Height: height})
}

func (s *Service) accept(ctx context.Context, ownerID, sourcePath, sourceFilename string, prober Prober) (*model.Asset, error) {
	if ownerID == "" || sourceFilename == "" || strings.ContainsAny(sourceFilename, `/\`) || sourceFilename == ".." {
		return nil, fmt.Errorf("invalid upload: owner %q, filename %q", ownerID, sourceFilename)
	}

	outputDir := s.OutputDir(sourceFilename)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}

	asset := &model.Asset{
		ID:             uuid.NewString(),
		SourceFilename: sourceFilename,
		OwnerID:        ownerID,
		PublicURL:      PublicURL(s.baseURL, sourceFilename),
		Status:         model.StatusProcessing,
	}
	if err := s.pipeline.Assets.Create(ctx, asset); err != nil {
		_ = RemoveOutput(outputDir)
		metrics.UploadsTotal.WithLabelValues("storage_error").Inc()
		return nil, &StorageError{Op: "create", AssetID: asset.ID, Err: err}
	}
	s.invalidate(ctx, ownerID)

	// The task owns its own copy; the caller may mutate the returned record.
	background := asset.Clone()
	err := s.pool.Submit(queue.Task{
		Name: "transcode:" + asset.ID,
		Run: func(taskCtx context.Context) {
			_, _ = s.pipeline.Process(taskCtx, background, sourcePath, outputDir, prober)
		},
	})
	if err != nil {
		// Nothing will ever finish this asset; undo it so the caller can retry.
		if derr := s.pipeline.Assets.Delete(context.WithoutCancel(ctx), asset.ID); derr != nil {
			logger.Error("Failed to roll back unqueued asset", logger.String("assetId", asset.ID), logger.ErrorField(derr))
		}
		_ = RemoveOutput(outputDir)
		s.invalidate(ctx, ownerID)
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("failed to queue transcode: %w", err)
	}

	metrics.UploadsTotal.WithLabelValues("accepted").Inc()
	logger.Info("Upload accepted",
		logger.String("assetId", asset.ID),
		logger.String("ownerId", ownerID),
		logger.String("url", asset.PublicURL))
	return asset, nil
}

// Get returns one asset of ownerID.
func (s *Service) Get(ctx context.Context, id, ownerID string) (*model.Asset, error) {
	asset, err := s.pipeline.Assets.FindOne(ctx, id, ownerID)
	if err != nil {
		if errors.Is(err, repository.ErrAssetNotFound) {
			return nil, err
		}
		return nil, &StorageError{Op: "find", AssetID: id, Err: err}
	}
	return asset, nil
}

// Delete removes an owned asset's rendition tree and record, whatever its
// status. Missing and foreign ids both yield repository.ErrAssetNotFound
// without side effects.
func (s *Service) Delete(ctx context.Context, id, ownerID string) error {
	asset, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return err
	}

	if err := RemoveOutput(s.OutputDir(asset.SourceFilename)); err != nil {
		return err
	}
	if s.pipeline.Mirror != nil {
		if err := s.pipeline.Mirror.RemovePrefix(ctx, asset.SourceFilename); err != nil {
			logger.Warn("Failed to remove mirrored renditions", logger.String("assetId", id), logger.ErrorField(err))
		}
	}

	if err := s.pipeline.Assets.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrAssetNotFound) {
			// Lost a race with a concurrent delete of the same id.
			return err
		}
		return &StorageError{Op: "delete", AssetID: id, Err: err}
	}
	s.invalidate(ctx, ownerID)

	logger.Info("Asset deleted", logger.String("assetId", id), logger.String("ownerId", ownerID))
	return nil
}

// List returns up to limit assets of ownerID, newest first. limit is clamped
// to [1, MaxListLimit]; 0 means DefaultListLimit.
func (s *Service) List(ctx context.Context, ownerID string, limit int) ([]*model.Asset, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	var (
		gen       int64
		cacheable bool
	)
	if s.pipeline.Streams != nil {
		if cached, ok := s.pipeline.Streams.Get(ctx, ownerID, limit); ok {
			return cached, nil
		}
		gen, cacheable = s.pipeline.Streams.Generation(ctx, ownerID)
	}
	assets, err := s.pipeline.Assets.FindByOwner(ctx, ownerID, limit)
	if err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}
	if cacheable {
		s.pipeline.Streams.Set(ctx, ownerID, gen, limit, assets)
	}
	return assets, nil
}

func (s *Service) invalidate(ctx context.Context, ownerID string) {
	if s.pipeline.Streams == nil {
		return
	}
	if err := s.pipeline.Streams.Invalidate(ctx, ownerID); err != nil {
		logger.Warn("Failed to invalidate stream list cache", logger.String("ownerId", ownerID), logger.ErrorField(err))
	}
}
