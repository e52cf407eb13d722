package handlers

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const maxUploadBytes = 32 << 20

type UploadHandler struct {
	// Dir is where uploaded files land; served statically at /uploads/.
	Dir string
	Log zerolog.Logger
}

// Upload accepts a single multipart file field. Stored names carry a
// timestamp plus a random component so two uploads in the same millisecond
// with the same filename can't overwrite each other.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "No file uploaded"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "No file uploaded"})
		return
	}
	defer file.Close()

	if err := os.MkdirAll(h.Dir, 0o755); err != nil {
		h.Log.Error().Err(err).Str("dir", h.Dir).Msg("create upload dir")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "Upload failed"})
		return
	}

	name := fmt.Sprintf("%d-%s-%s",
		time.Now().UnixMilli(),
		uuid.NewString()[:8],
		filepath.Base(header.Filename))

	dst, err := os.Create(filepath.Join(h.Dir, name))
	if err != nil {
		h.Log.Error().Err(err).Msg("create upload file")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "Upload failed"})
		return
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		h.Log.Error().Err(err).Msg("write upload file")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "Upload failed"})
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	fileURL := fmt.Sprintf("%s://%s/uploads/%s", scheme, r.Host, name)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "fileUrl": fileURL})
}
