package server

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/moltasthornblom/beam/core/transcode"
	"github.com/moltasthornblom/beam/logger"
	"github.com/moltasthornblom/beam/model"
	"github.com/moltasthornblom/beam/repository"

	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// AssetEventsHandler streams an asset's transcode progress over a websocket:
// job transitions from the event bus and one segment event per .ts file the
// encoder writes. The socket closes after the ready or stalled event.
func (h *APIHandler) AssetEventsHandler(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeMessage(w, http.StatusNotImplemented, "Progress events are disabled")
		return
	}
	claims, _ := claimsFromContext(r.Context())
	id := mux.Vars(r)["id"]

	asset, err := h.videos.Get(r.Context(), id, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrAssetNotFound) {
			writeMessage(w, http.StatusNotFound, "Video not found")
			return
		}
		logger.Error("Failed to load asset for events", logger.String("assetId", id), logger.ErrorField(err))
		writeMessage(w, http.StatusInternalServerError, "Internal server error.")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", logger.ErrorField(err))
		return
	}
	defer conn.Close()

	// Detached from the request: the hijacked connection outlives it.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go readPump(conn, cancel)

	events, unsubscribe, err := h.events.Subscribe(ctx, asset.ID)
	if err != nil {
		logger.Error("Failed to subscribe to asset events", logger.String("assetId", asset.ID), logger.ErrorField(err))
		closeWithReason(conn, websocket.CloseInternalServerErr, "events unavailable")
		return
	}
	defer unsubscribe()

	// Re-read after subscribing so a flip to ready in between is not missed.
	if current, err := h.videos.Get(ctx, asset.ID, claims.UserID); err == nil && current.Status == model.StatusReady {
		writeEvent(conn, model.AssetEvent{AssetID: asset.ID, Type: model.EventReady, At: time.Now().UTC()})
		closeWithReason(conn, websocket.CloseNormalClosure, string(model.EventReady))
		return
	}
	// A stalled asset stays processing, so only the bus knows it ended.
	if ev, ok := h.events.Terminal(ctx, asset.ID); ok {
		writeEvent(conn, ev)
		closeWithReason(conn, websocket.CloseNormalClosure, string(ev.Type))
		return
	}

	segments := watchSegments(ctx, h.videos.OutputDir(asset.SourceFilename), asset.ID)

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(conn, ev); err != nil {
				return
			}
			if ev.Type.Terminal() {
				closeWithReason(conn, websocket.CloseNormalClosure, string(ev.Type))
				return
			}
		case ev := <-segments:
			if err := writeEvent(conn, ev); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client messages and cancels when the peer goes away.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, ev model.AssetEvent) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(ev); err != nil {
		logger.Debug("websocket write", logger.ErrorField(err))
		return err
	}
	return nil
}

func closeWithReason(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}

// watchSegments reports every new .ts file in dir until ctx ends. The
// rendition name is taken from the <W>x<H>_index prefix of the file.
func watchSegments(ctx context.Context, dir, assetID string) <-chan model.AssetEvent {
	out := make(chan model.AssetEvent, 16)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("watcher failed", logger.ErrorField(err))
		return out
	}
	if err := watcher.Add(dir); err != nil {
		logger.Warn("watcher add failed", logger.String("dir", dir), logger.ErrorField(err))
		watcher.Close()
		return out
	}

	go func() {
		defer watcher.Close()
		seen := make(map[string]bool)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Create) || !strings.HasSuffix(event.Name, ".ts") || seen[event.Name] {
					continue
				}
				seen[event.Name] = true
				file := filepath.Base(event.Name)
				ev := model.AssetEvent{
					AssetID:   assetID,
					Type:      model.EventSegment,
					Rendition: renditionOfSegment(file),
					File:      file,
					At:        time.Now().UTC(),
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("watcher error", logger.ErrorField(err))
			}
		}
	}()
	return out
}

// renditionOfSegment maps "1280x720_index3.ts" to "1280x720".
func renditionOfSegment(file string) string {
	if i := strings.Index(file, "_index"); i > 0 {
		return file[:i]
	}
	return strings.TrimSuffix(file, transcode.SegmentExt)
}
