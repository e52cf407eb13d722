package handlers

import "net/http"

type VersionHandler struct {
	LatestVersion string
	DownloadURL   string
}

// CheckVersion tells the client whether an app update is available.
func (h *VersionHandler) CheckVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"latestVersion": h.LatestVersion,
		"downloadUrl":   h.DownloadURL,
	})
}
