package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/moltasthornblom/beam/core/auth"
	"github.com/moltasthornblom/beam/model"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialEvents(t *testing.T, env *testEnv, assetID, token string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/videos/" + assetID + "/events?access_token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func requireNormalClose(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err.Error())
}

func TestAssetEventsAlreadyReady(t *testing.T) {
	env := newTestEnv(t)
	owner, token := env.user("uploader", auth.RoleUploader)
	asset := env.accept(owner)
	require.NoError(t, env.assets.UpdateStatus(context.Background(), asset.ID, model.StatusReady))

	conn := dialEvents(t, env, asset.ID, token)

	var ev model.AssetEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, model.EventReady, ev.Type)
	assert.Equal(t, asset.ID, ev.AssetID)
	requireNormalClose(t, conn)
}

func TestAssetEventsAlreadyStalled(t *testing.T) {
	env := newTestEnv(t)
	owner, token := env.user("uploader", auth.RoleUploader)
	asset := env.accept(owner)
	require.NoError(t, env.events.Publish(context.Background(), model.AssetEvent{AssetID: asset.ID, Type: model.EventStalled, Completed: 1, Total: 2}))

	conn := dialEvents(t, env, asset.ID, token)

	var ev model.AssetEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, model.EventStalled, ev.Type)
	assert.Equal(t, 1, ev.Completed)
	requireNormalClose(t, conn)
	require.Eventually(t, func() bool { return env.events.Subscribers(asset.ID) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestAssetEventsForwardsUntilTerminal(t *testing.T) {
	env := newTestEnv(t)
	owner, token := env.user("uploader", auth.RoleUploader)
	asset := env.accept(owner)

	conn := dialEvents(t, env, asset.ID, token)
	require.Eventually(t, func() bool { return env.events.Subscribers(asset.ID) == 1 }, 2*time.Second, 10*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, env.events.Publish(ctx, model.AssetEvent{AssetID: asset.ID, Type: model.EventJobFailed, Rendition: "1280x720", Total: 2}))
	require.NoError(t, env.events.Publish(ctx, model.AssetEvent{AssetID: asset.ID, Type: model.EventStalled, Total: 2}))

	var ev model.AssetEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, model.EventJobFailed, ev.Type)
	assert.Equal(t, "1280x720", ev.Rendition)
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, model.EventStalled, ev.Type)
	requireNormalClose(t, conn)

	require.Eventually(t, func() bool { return env.events.Subscribers(asset.ID) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestAssetEventsRejections(t *testing.T) {
	env := newTestEnv(t)
	owner, token := env.user("uploader", auth.RoleUploader)
	_, other := env.user("other", auth.RoleUploader)
	asset := env.accept(owner)

	rec := env.do(http.MethodGet, "/videos/"+asset.ID+"/events", other, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodGet, "/videos/"+asset.ID+"/events?access_token="+token, "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	disabled := NewAPIHandler(env.cfg, env.videos, env.accounts, nil)
	router := NewRouter(disabled, nil, NewHLSHandler(env.cfg.HLSDir, nil))
	req := httptest.NewRequest(http.MethodGet, "/videos/"+asset.ID+"/events", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestWatchSegments(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	segments := watchSegments(ctx, dir, "asset-1")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1280x720_index.m3u8"), []byte("#EXTM3U\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1280x720_index0.ts"), []byte("ts"), 0644))

	select {
	case ev := <-segments:
		assert.Equal(t, model.EventSegment, ev.Type)
		assert.Equal(t, "asset-1", ev.AssetID)
		assert.Equal(t, "1280x720", ev.Rendition)
		assert.Equal(t, "1280x720_index0.ts", ev.File)
	case <-time.After(5 * time.Second):
		t.Fatal("no segment event")
	}
}

func TestRenditionOfSegment(t *testing.T) {
	assert.Equal(t, "1280x720", renditionOfSegment("1280x720_index3.ts"))
	assert.Equal(t, "3840x2160", renditionOfSegment("3840x2160_index120.ts"))
	assert.Equal(t, "odd", renditionOfSegment("odd.ts"))
}
