package server

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/moltasthornblom/beam/core/queue"
	"github.com/moltasthornblom/beam/core/transcode"
	"github.com/moltasthornblom/beam/logger"
	"github.com/moltasthornblom/beam/repository"

	"github.com/gorilla/mux"
)

const multipartMemory = 32 << 20

// randomFilename returns a 32 character hex name for a stored upload.
func randomFilename() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// saveUpload copies the multipart file into dir under a random name.
func saveUpload(src io.Reader, dir string) (filename, path string, err error) {
	filename, err = randomFilename()
	if err != nil {
		return "", "", err
	}
	path = filepath.Join(dir, filename)
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return "", "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", "", err
	}
	return filename, path, nil
}

// UploadVideoHandler stores the "video" form file, records the asset as
// processing and responds before any transcoding happens.
func (h *APIHandler) UploadVideoHandler(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeMessage(w, http.StatusRequestEntityTooLarge, "File too large.")
			return
		}
		if !errors.Is(err, http.ErrNotMultipart) {
			logger.Warn("Failed to parse upload form", logger.ErrorField(err))
		}
		writeMessage(w, http.StatusBadRequest, "No file uploaded.")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("video")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "No file uploaded.")
		return
	}
	defer file.Close()

	filename, sourcePath, err := saveUpload(file, h.cfg.UploadDir)
	if err != nil {
		logger.Error("Failed to store upload", logger.ErrorField(err))
		writeMessage(w, http.StatusInternalServerError, "Internal server error.")
		return
	}
	logger.Info("Upload stored",
		logger.String("original", header.Filename),
		logger.String("filename", filename),
		logger.Int64("size", header.Size))

	asset, err := h.videos.Accept(r.Context(), claims.UserID, sourcePath, filename)
	if err != nil {
		_ = transcode.RemoveSource(sourcePath)
		logger.Error("Upload rejected", logger.String("filename", filename), logger.ErrorField(err))
		if errors.Is(err, queue.ErrQueueFull) || errors.Is(err, queue.ErrPoolClosed) {
			w.Header().Set("Retry-After", "30")
			writeMessage(w, http.StatusServiceUnavailable, "Video could not be queued for processing.")
			return
		}
		writeMessage(w, http.StatusInternalServerError, "Internal server error.")
		return
	}

	writeJSON(w, http.StatusOK, asset)
}

// DeleteVideoHandler removes one of the caller's assets.
func (h *APIHandler) DeleteVideoHandler(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	id := mux.Vars(r)["id"]

	err := h.videos.Delete(r.Context(), id, claims.UserID)
	switch {
	case errors.Is(err, repository.ErrAssetNotFound):
		writeMessage(w, http.StatusNotFound, "Video not found or you are not authorized to delete it.")
		return
	case err != nil:
		logger.Error("Error deleting video", logger.String("assetId", id), logger.ErrorField(err))
		writeMessage(w, http.StatusInternalServerError, "Internal server error.")
		return
	}
	writeMessage(w, http.StatusOK, "Video deleted successfully.")
}
