package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/moltasthornblom/beam/core/auth"
	"github.com/moltasthornblom/beam/core/queue"
	"github.com/moltasthornblom/beam/core/transcode"
	"github.com/moltasthornblom/beam/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomFilename(t *testing.T) {
	a := randomName(t)
	b := randomName(t)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}

func TestUploadRespondsBeforeTranscoding(t *testing.T) {
	env := newTestEnv(t)
	owner, token := env.user("uploader", auth.RoleUploader)

	body, contentType := multipartBody(t, "video", []byte("fake video bytes"))
	rec := env.do(http.MethodPost, "/videos/upload", token, body, contentType)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var asset model.Asset
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &asset))
	assert.Equal(t, owner, asset.OwnerID)
	assert.Equal(t, model.StatusProcessing, asset.Status)
	assert.Len(t, asset.SourceFilename, 32)
	assert.Equal(t, transcode.PublicURL(env.cfg.BaseURL, asset.SourceFilename), asset.PublicURL)
	assert.Equal(t, fmt.Sprintf("http://localhost:3000/hls/%s/master.m3u8", asset.SourceFilename), asset.PublicURL)

	// The transcode was queued but has not run.
	assert.Equal(t, 1, env.submitter.count())
	stored, ok := env.assets.Get(asset.ID)
	require.True(t, ok)
	assert.Equal(t, model.StatusProcessing, stored.Status)

	data, err := os.ReadFile(filepath.Join(env.cfg.UploadDir, asset.SourceFilename))
	require.NoError(t, err)
	assert.Equal(t, "fake video bytes", string(data))
	assert.DirExists(t, env.videos.OutputDir(asset.SourceFilename))
}

func TestUploadWithoutFile(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user("uploader", auth.RoleUploader)

	body, contentType := multipartBody(t, "attachment", []byte("x"))
	rec := env.do(http.MethodPost, "/videos/upload", token, body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file uploaded.", decodeMessage(t, rec))

	rec = env.do(http.MethodPost, "/videos/upload", token, strings.NewReader("{}"), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file uploaded.", decodeMessage(t, rec))

	assert.Zero(t, env.submitter.count())
}

func TestUploadQueueFull(t *testing.T) {
	env := newTestEnv(t)
	owner, token := env.user("uploader", auth.RoleUploader)
	env.submitter.err = queue.ErrQueueFull

	body, contentType := multipartBody(t, "video", []byte("fake video bytes"))
	rec := env.do(http.MethodPost, "/videos/upload", token, body, contentType)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))

	// Neither a record nor the stored source is left behind.
	assets, err := env.assets.FindByOwner(context.Background(), owner, 10)
	require.NoError(t, err)
	assert.Empty(t, assets)
	entries, err := os.ReadDir(env.cfg.UploadDir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.True(t, e.IsDir(), "unexpected file %s", e.Name())
	}
}

func TestDeleteVideo(t *testing.T) {
	env := newTestEnv(t)
	owner, token := env.user("uploader", auth.RoleUploader)
	_, other := env.user("intruder", auth.RoleUploader)
	asset := env.accept(owner)

	rec := env.do(http.MethodDelete, "/videos/"+asset.ID, other, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Video not found or you are not authorized to delete it.", decodeMessage(t, rec))
	_, ok := env.assets.Get(asset.ID)
	assert.True(t, ok)

	rec = env.do(http.MethodDelete, "/videos/"+asset.ID, token, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Video deleted successfully.", decodeMessage(t, rec))
	_, ok = env.assets.Get(asset.ID)
	assert.False(t, ok)
	assert.NoDirExists(t, env.videos.OutputDir(asset.SourceFilename))

	rec = env.do(http.MethodDelete, "/videos/"+asset.ID, token, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteVideoNeedsScope(t *testing.T) {
	env := newTestEnv(t)
	owner, _ := env.user("uploader", auth.RoleUploader)
	_, viewer := env.user("viewer", auth.RoleViewer)
	asset := env.accept(owner)

	rec := env.do(http.MethodDelete, "/videos/"+asset.ID, viewer, nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
