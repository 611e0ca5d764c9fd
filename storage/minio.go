// Package storage mirrors finished rendition trees to MinIO.
package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/moltasthornblom/beam/config"
	"github.com/moltasthornblom/beam/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/sync/errgroup"
)

const (
	hlsPrefix       = "hls"
	uploadParallelism = 4
)

// MinioMirror uploads rendition trees under hls/<filename>/ in one bucket.
type MinioMirror struct {
	client *minio.Client
	bucket string
	region string
}

// NewMinioMirror connects to MinIO and makes sure the bucket exists.
func NewMinioMirror(ctx context.Context, cfg *config.Config) (*MinioMirror, error) {
	logger.Info("Connecting to MinIO",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.String("bucket", cfg.MinioBucket),
		logger.Bool("ssl", cfg.MinioUseSSL))

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	m := &MinioMirror{client: client, bucket: cfg.MinioBucket, region: cfg.MinioRegion}
	if err := m.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MinioMirror) ensureBucket(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", m.bucket, err)
	}
	if exists {
		logger.Info("Bucket exists", logger.String("bucket", m.bucket))
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: m.region}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", m.bucket, err)
	}
	logger.Info("Bucket created", logger.String("bucket", m.bucket))
	return nil
}

// Bucket returns the bucket name.
func (m *MinioMirror) Bucket() string {
	return m.bucket
}

// objectKey maps a file of an upload's tree to its object name.
func objectKey(prefix, rel string) string {
	return path.Join(hlsPrefix, prefix, filepath.ToSlash(rel))
}

// ContentTypeFor picks the HLS content type from the extension.
func ContentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/MP2T"
	case ".m4s", ".mp4":
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}

// collectFiles lists the regular files under dir, relative to it.
func collectFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	return files, err
}

// MirrorDir uploads every file under dir to hls/<prefix>/ with bounded
// parallelism. The first failed upload cancels the rest.
func (m *MinioMirror) MirrorDir(ctx context.Context, prefix, dir string) error {
	files, err := collectFiles(dir)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", dir, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadParallelism)
	for _, rel := range files {
		rel := rel
		g.Go(func() error {
			key := objectKey(prefix, rel)
			_, err := m.client.FPutObject(gctx, m.bucket, key, filepath.Join(dir, rel), minio.PutObjectOptions{
				ContentType:  ContentTypeFor(rel),
				CacheControl: "public, max-age=31536000",
			})
			if err != nil {
				return fmt.Errorf("failed to upload %s: %w", key, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Debug("Mirrored rendition tree", logger.String("prefix", prefix), logger.Int("files", len(files)))
	return nil
}

// RemovePrefix deletes every object of an upload. A missing tree is not an error.
func (m *MinioMirror) RemovePrefix(ctx context.Context, prefix string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objectsCh := m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    path.Join(hlsPrefix, prefix) + "/",
		Recursive: true,
	})

	removeCh := make(chan minio.ObjectInfo)
	listErr := make(chan error, 1)
	go func() {
		defer close(removeCh)
		for object := range objectsCh {
			if object.Err != nil {
				listErr <- object.Err
				return
			}
			select {
			case removeCh <- object:
			case <-ctx.Done():
				return
			}
		}
	}()

	for rerr := range m.client.RemoveObjects(ctx, m.bucket, removeCh, minio.RemoveObjectsOptions{}) {
		if rerr.Err != nil {
			return fmt.Errorf("failed to remove object %s: %w", rerr.ObjectName, rerr.Err)
		}
	}
	select {
	case err := <-listErr:
		return fmt.Errorf("failed to list objects under %s: %w", prefix, err)
	default:
	}
	return nil
}

// Open streams one mirrored file; rel is relative to the hls/ prefix.
func (m *MinioMirror) Open(ctx context.Context, rel string) (io.ReadCloser, int64, error) {
	key := path.Join(hlsPrefix, path.Clean("/"+rel))
	object, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open %s: %w", key, err)
	}
	info, err := object.Stat()
	if err != nil {
		object.Close()
		return nil, 0, fmt.Errorf("failed to stat %s: %w", key, err)
	}
	return object, info.Size, nil
}

// BucketStats summarises the objects under a prefix.
type BucketStats struct {
	TotalObjects int
	TotalSize    int64
	LastModified time.Time
}

// Stats walks the objects under prefix.
func (m *MinioMirror) Stats(ctx context.Context, prefix string) (*BucketStats, error) {
	stats := &BucketStats{}
	for object := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", object.Err)
		}
		stats.TotalObjects++
		stats.TotalSize += object.Size
		if object.LastModified.After(stats.LastModified) {
			stats.LastModified = object.LastModified
		}
	}
	return stats, nil
}

// FormatSize renders a byte count with binary units.
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
