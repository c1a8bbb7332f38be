package models

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManagerAt(t.TempDir())
	if err != nil {
		t.Fatalf("NewManagerAt: %v", err)
	}
	return m
}

func TestNewManagerAtCreatesLayout(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	for _, sub := range []string{"whisper", "vosk"} {
		stat, err := os.Stat(filepath.Join(m.ModelsDir(), sub))
		if err != nil {
			t.Fatalf("%s dir missing: %v", sub, err)
		}
		if !stat.IsDir() {
			t.Errorf("%s is not a directory", sub)
		}
	}
}

func TestGetModelPathPerEngine(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	whisper := ModelInfo{Engine: EngineWhisper, Filename: "ggml-test.bin"}
	if got, want := m.GetModelPath(whisper), filepath.Join(m.ModelsDir(), "whisper", "ggml-test.bin"); got != want {
		t.Errorf("whisper path = %q, want %q", got, want)
	}

	vosk := ModelInfo{Engine: EngineVosk, Filename: "vosk-model-test"}
	if got, want := m.GetModelPath(vosk), filepath.Join(m.ModelsDir(), "vosk", "vosk-model-test"); got != want {
		t.Errorf("vosk path = %q, want %q", got, want)
	}
}

func TestIsDownloaded(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	file := ModelInfo{Engine: EngineWhisper, Filename: "ggml-test.bin"}
	dir := ModelInfo{Engine: EngineVosk, Filename: "vosk-model-test", IsZip: true}

	if m.IsDownloaded(file) || m.IsDownloaded(dir) {
		t.Fatal("fresh manager reports models as downloaded")
	}

	// A zero-byte file is a failed download, not a model.
	if err := os.WriteFile(m.GetModelPath(file), nil, 0644); err != nil {
		t.Fatal(err)
	}
	if m.IsDownloaded(file) {
		t.Error("empty file reported as downloaded")
	}

	if err := os.WriteFile(m.GetModelPath(file), []byte("ggml"), 0644); err != nil {
		t.Fatal(err)
	}
	if !m.IsDownloaded(file) {
		t.Error("file model not reported as downloaded")
	}

	if err := os.MkdirAll(m.GetModelPath(dir), 0755); err != nil {
		t.Fatal(err)
	}
	if !m.IsDownloaded(dir) {
		t.Error("unpacked model directory not reported as downloaded")
	}
}

func TestListDownloadedAndDelete(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	if got := m.ListDownloaded(); len(got) != 0 {
		t.Fatalf("fresh manager lists %d downloaded models", len(got))
	}

	info, ok := GetModel(DefaultModelID())
	if !ok {
		t.Fatalf("default model %q not in registry", DefaultModelID())
	}
	if err := os.MkdirAll(m.GetModelPath(info), 0755); err != nil {
		t.Fatal(err)
	}

	got := m.ListDownloaded()
	if len(got) != 1 || got[0].ID != info.ID {
		t.Fatalf("ListDownloaded = %v, want just %s", got, info.ID)
	}

	if err := m.Delete(info); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if m.IsDownloaded(info) {
		t.Error("model still reported as downloaded after Delete")
	}
}

func TestDownloadFile(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("ggml"), 4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	m := newTestManager(t)
	info := ModelInfo{
		ID:       "whisper-test",
		Engine:   EngineWhisper,
		Filename: "ggml-test.bin",
		URL:      srv.URL,
		Size:     int64(len(payload)),
	}

	progress := make(chan Progress, 64)
	if err := m.Download(context.Background(), info, progress); err != nil {
		t.Fatalf("Download: %v", err)
	}
	close(progress)

	var last Progress
	for p := range progress {
		last = p
	}
	if !last.Done {
		t.Error("final progress event not marked done")
	}
	if last.Downloaded != int64(len(payload)) {
		t.Errorf("final progress reports %d bytes, want %d", last.Downloaded, len(payload))
	}

	data, err := os.ReadFile(m.GetModelPath(info))
	if err != nil {
		t.Fatalf("read downloaded model: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Error("downloaded bytes differ from served bytes")
	}
	if _, err := os.Stat(m.GetModelPath(info) + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind after download")
	}
}

func TestDownloadUnzipsArchives(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range map[string]string{
		"vosk-model-test/am/final.mdl": "model data",
		"vosk-model-test/README":       "readme",
	} {
		hdr := &zip.FileHeader{Name: name, Method: zip.Deflate}
		hdr.SetMode(0644)
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	m := newTestManager(t)
	info := ModelInfo{
		ID:       "vosk-test",
		Engine:   EngineVosk,
		Filename: "vosk-model-test",
		URL:      srv.URL,
		Size:     int64(buf.Len()),
		IsZip:    true,
	}

	if err := m.Download(context.Background(), info, nil); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !m.IsDownloaded(info) {
		t.Error("unpacked model not reported as downloaded")
	}

	data, err := os.ReadFile(filepath.Join(m.GetModelPath(info), "am", "final.mdl"))
	if err != nil {
		t.Fatalf("read unpacked file: %v", err)
	}
	if string(data) != "model data" {
		t.Errorf("unpacked content = %q, want %q", data, "model data")
	}
}

func TestDownloadRejectsEscapingArchive(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	hdr := &zip.FileHeader{Name: "../escape.txt", Method: zip.Deflate}
	hdr.SetMode(0644)
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("outside")); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	m := newTestManager(t)
	info := ModelInfo{
		ID:       "vosk-test",
		Engine:   EngineVosk,
		Filename: "vosk-model-test",
		URL:      srv.URL,
		Size:     int64(buf.Len()),
		IsZip:    true,
	}

	if err := m.Download(context.Background(), info, nil); err == nil {
		t.Fatal("expected an error for an archive entry with a .. path")
	}
	if _, err := os.Stat(filepath.Join(m.ModelsDir(), "escape.txt")); !os.IsNotExist(err) {
		t.Error("archive entry was written outside the destination")
	}
}

func TestDownloadSkipsWhenPresent(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	// Unreachable URL: the download must not even be attempted.
	info := ModelInfo{
		ID:       "whisper-test",
		Engine:   EngineWhisper,
		Filename: "ggml-test.bin",
		URL:      "http://127.0.0.1:1/model.bin",
		Size:     4,
	}
	if err := os.WriteFile(m.GetModelPath(info), []byte("ggml"), 0644); err != nil {
		t.Fatal(err)
	}

	progress := make(chan Progress, 1)
	if err := m.Download(context.Background(), info, progress); err != nil {
		t.Fatalf("Download: %v", err)
	}

	p := <-progress
	if !p.Done || p.Downloaded != info.Size {
		t.Errorf("expected an immediate done event, got %+v", p)
	}
}

func TestDownloadHTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	m := newTestManager(t)
	info := ModelInfo{
		ID:       "whisper-test",
		Engine:   EngineWhisper,
		Filename: "ggml-test.bin",
		URL:      srv.URL,
		Size:     4,
	}

	if err := m.Download(context.Background(), info, nil); err == nil {
		t.Fatal("expected an error for HTTP 404")
	}
	if m.IsDownloaded(info) {
		t.Error("failed download left a model behind")
	}
}
