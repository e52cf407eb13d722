package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func uploadRequest(t *testing.T, field, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(content))
	w.Close()

	req := httptest.NewRequest("POST", "/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func doUpload(t *testing.T, h *UploadHandler, req *http.Request) (int, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	http.HandlerFunc(h.Upload).ServeHTTP(rr, req)

	var resp map[string]any
	json.NewDecoder(rr.Body).Decode(&resp)
	return rr.Code, resp
}

func TestUpload(t *testing.T) {
	h := &UploadHandler{Dir: t.TempDir(), Log: zerolog.Nop()}

	code, resp := doUpload(t, h, uploadRequest(t, "file", "photo.png", "png-bytes"))
	if code != http.StatusOK {
		t.Fatalf("upload: got %v want %v", code, http.StatusOK)
	}
	if resp["success"] != true {
		t.Errorf("expected success, got %v", resp)
	}

	fileURL, _ := resp["fileUrl"].(string)
	const prefix = "http://example.com/uploads/"
	if !strings.HasPrefix(fileURL, prefix) {
		t.Fatalf("unexpected fileUrl: %q", fileURL)
	}
	stored := strings.TrimPrefix(fileURL, prefix)
	if !strings.HasSuffix(stored, "-photo.png") {
		t.Errorf("stored name should keep the original filename: %q", stored)
	}

	data, err := os.ReadFile(filepath.Join(h.Dir, stored))
	if err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Errorf("stored content mismatch: %q", data)
	}
}

func TestUploadSameFilenameNoOverwrite(t *testing.T) {
	h := &UploadHandler{Dir: t.TempDir(), Log: zerolog.Nop()}

	_, first := doUpload(t, h, uploadRequest(t, "file", "photo.png", "one"))
	_, second := doUpload(t, h, uploadRequest(t, "file", "photo.png", "two"))

	// Same original name, possibly the same millisecond: the random
	// component keeps the stored names distinct.
	if first["fileUrl"] == second["fileUrl"] {
		t.Fatalf("expected distinct stored names, both got %v", first["fileUrl"])
	}

	entries, err := os.ReadDir(h.Dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("expected both files on disk, found %d", len(entries))
	}
}

func TestUploadMissingFile(t *testing.T) {
	h := &UploadHandler{Dir: t.TempDir(), Log: zerolog.Nop()}

	// Wrong field name.
	code, resp := doUpload(t, h, uploadRequest(t, "attachment", "photo.png", "x"))
	if code != http.StatusBadRequest {
		t.Errorf("wrong field: got %v want %v", code, http.StatusBadRequest)
	}
	if resp["success"] != false {
		t.Errorf("expected success false, got %v", resp)
	}

	// Not multipart at all.
	req := httptest.NewRequest("POST", "/upload", strings.NewReader("plain body"))
	code, _ = doUpload(t, h, req)
	if code != http.StatusBadRequest {
		t.Errorf("non-multipart body: got %v want %v", code, http.StatusBadRequest)
	}
}
