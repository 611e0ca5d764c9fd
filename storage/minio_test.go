package storage

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/moltasthornblom/beam/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "application/vnd.apple.mpegurl", ContentTypeFor("master.m3u8"))
	assert.Equal(t, "application/vnd.apple.mpegurl", ContentTypeFor("1280x720_index.M3U8"))
	assert.Equal(t, "video/MP2T", ContentTypeFor("1280x720_index0.ts"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("notes"))
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "hls/abc/master.m3u8", objectKey("abc", "master.m3u8"))
	assert.Equal(t, "hls/abc/sub/seg0.ts", objectKey("abc", filepath.Join("sub", "seg0.ts")))
}

func TestCollectFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"master.m3u8", "640x360_index.m3u8", "640x360_index0.ts"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty"), 0755))

	files, err := collectFiles(dir)
	require.NoError(t, err)
	sort.Strings(files)
	assert.Equal(t, []string{"640x360_index.m3u8", "640x360_index0.ts", "master.m3u8"}, files)

	_, err = collectFiles(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "1.5 KB", FormatSize(1536))
	assert.Equal(t, "2.0 GB", FormatSize(2<<30))
}

func TestNewMinioMirrorUnreachable(t *testing.T) {
	cfg := config.FromEnv()
	cfg.MinioEndpoint = "127.0.0.1:1"
	cfg.MinioAccessKey, cfg.MinioSecretKey = "minio", "minio123"

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := NewMinioMirror(ctx, cfg)
	assert.Error(t, err)
}
