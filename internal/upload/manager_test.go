package upload

import (
	"bytes"
	"compress/gzip"
	"image"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/ocr-menu-detector/backend/internal/storage"
)

func newTestManager(t *testing.T) (*Manager, *storage.LocalStore) {
	t.Helper()

	dir := t.TempDir()
	store, err := storage.NewLocalStore(dir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return NewManager(dir, store), store
}

func testPNG(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 48, 32))); err != nil {
		t.Fatalf("Failed to encode png: %v", err)
	}
	return buf.Bytes()
}

// saveChunks splits data into n chunks and uploads them.
func saveChunks(t *testing.T, store *storage.LocalStore, uploadID string, data []byte, n int) {
	t.Helper()

	chunkSize := (len(data) + n - 1) / n
	for i := 0; i < n; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(data) {
			end = len(data)
		}
		if err := store.SaveChunkBytes(uploadID, i, data[start:end]); err != nil {
			t.Fatalf("Failed to save chunk %d: %v", i, err)
		}
	}
}

func waitForJob(t *testing.T, m *Manager, jobID string) *Job {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := m.GetJob(jobID)
		if !ok {
			t.Fatalf("Job not found")
		}
		if job.Status == StatusComplete || job.Status == StatusError {
			return job
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("Job did not finish in time")
	return nil
}

func TestStartJob(t *testing.T) {
	t.Run("assembles chunked upload", func(t *testing.T) {
		m, store := newTestManager(t)
		data := testPNG(t)
		saveChunks(t, store, "upload-1", data, 3)

		job := m.StartJob("upload-1", "menu.png", 3, int64(len(data)), int64(len(data)), "")
		if job.ID == "" {
			t.Fatal("Expected job to get an ID")
		}

		final := waitForJob(t, m, job.ID)
		if final.Status != StatusComplete {
			t.Fatalf("Expected complete, got %s (error: %s)", final.Status, final.Error)
		}
		if final.Progress != 100 {
			t.Errorf("Expected progress 100, got %f", final.Progress)
		}
		if final.FileInfo == nil {
			t.Fatal("Expected file info on completed job")
		}
		if final.FileInfo.Name != "menu.png" {
			t.Errorf("Expected name menu.png, got %s", final.FileInfo.Name)
		}
		if final.FileInfo.Size != int64(len(data)) {
			t.Errorf("Expected size %d, got %d", len(data), final.FileInfo.Size)
		}
		if final.CompletedAt == nil {
			t.Error("Expected completion timestamp")
		}
	})

	t.Run("probes image dimensions", func(t *testing.T) {
		m, store := newTestManager(t)
		data := testPNG(t)
		saveChunks(t, store, "upload-2", data, 1)

		job := m.StartJob("upload-2", "menu.png", 1, int64(len(data)), int64(len(data)), "")
		final := waitForJob(t, m, job.ID)

		if final.Status != StatusComplete {
			t.Fatalf("Expected complete, got %s", final.Status)
		}
		if final.FileInfo.Format != "png" {
			t.Errorf("Expected png format, got %q", final.FileInfo.Format)
		}
		if final.FileInfo.Width != 48 || final.FileInfo.Height != 32 {
			t.Errorf("Expected 48x32, got %dx%d", final.FileInfo.Width, final.FileInfo.Height)
		}
		if final.Warning != "" {
			t.Errorf("Expected no warning, got %q", final.Warning)
		}
	})

	t.Run("decompresses gzip uploads", func(t *testing.T) {
		m, store := newTestManager(t)
		data := testPNG(t)

		var compressed bytes.Buffer
		gz := gzip.NewWriter(&compressed)
		if _, err := gz.Write(data); err != nil {
			t.Fatalf("Failed to compress: %v", err)
		}
		gz.Close()

		saveChunks(t, store, "upload-gz", compressed.Bytes(), 2)

		job := m.StartJob("upload-gz", "menu.png", 2, int64(len(data)), int64(compressed.Len()), "gzip")
		final := waitForJob(t, m, job.ID)

		if final.Status != StatusComplete {
			t.Fatalf("Expected complete, got %s (error: %s)", final.Status, final.Error)
		}
		if final.FileInfo.Size != int64(len(data)) {
			t.Errorf("Expected decompressed size %d, got %d", len(data), final.FileInfo.Size)
		}
		if final.FileInfo.Format != "png" {
			t.Errorf("Expected png format after decompression, got %q", final.FileInfo.Format)
		}

		// The stored file holds the decompressed bytes
		path, err := store.GetFilePath(final.FileInfo.ID)
		if err != nil {
			t.Fatalf("Failed to get file path: %v", err)
		}
		stored, err := store.Get(final.FileInfo.ID)
		if err != nil {
			t.Fatalf("Failed to get file info: %v", err)
		}
		if stored.Size != int64(len(data)) {
			t.Errorf("Expected registered size %d, got %d (path %s)", len(data), stored.Size, path)
		}
	})

	t.Run("warns on undecodable file", func(t *testing.T) {
		m, store := newTestManager(t)
		data := []byte("this is not an image at all")
		saveChunks(t, store, "upload-txt", data, 1)

		job := m.StartJob("upload-txt", "notes.txt", 1, int64(len(data)), int64(len(data)), "")
		final := waitForJob(t, m, job.ID)

		if final.Status != StatusComplete {
			t.Fatalf("Expected complete, got %s", final.Status)
		}
		if final.Warning == "" {
			t.Error("Expected a warning for undecodable file")
		}
		if final.FileInfo == nil {
			t.Error("Expected file info even for undecodable file")
		}
	})

	t.Run("fails when chunks are missing", func(t *testing.T) {
		m, store := newTestManager(t)
		data := testPNG(t)
		saveChunks(t, store, "upload-partial", data, 1)

		// Claim 3 chunks but only 1 was uploaded
		job := m.StartJob("upload-partial", "menu.png", 3, int64(len(data)), int64(len(data)), "")
		final := waitForJob(t, m, job.ID)

		if final.Status != StatusError {
			t.Fatalf("Expected error status, got %s", final.Status)
		}
		if !strings.Contains(final.Error, "failed to assemble chunks") {
			t.Errorf("Expected assembly error, got %q", final.Error)
		}
	})

	t.Run("keeps compressed bytes on size mismatch", func(t *testing.T) {
		m, store := newTestManager(t)
		data := testPNG(t)

		var compressed bytes.Buffer
		gz := gzip.NewWriter(&compressed)
		gz.Write(data)
		gz.Close()

		saveChunks(t, store, "upload-bad-size", compressed.Bytes(), 1)

		// Wrong original size: decompression is rejected, probe then fails on
		// the compressed bytes, and the job completes with a warning.
		job := m.StartJob("upload-bad-size", "menu.png", 1, int64(len(data))+999, int64(compressed.Len()), "gzip")
		final := waitForJob(t, m, job.ID)

		if final.Status != StatusComplete {
			t.Fatalf("Expected complete, got %s", final.Status)
		}
		if final.Warning == "" {
			t.Error("Expected a warning after failed decompression")
		}
	})
}

func TestGetJob(t *testing.T) {
	t.Run("returns false for unknown job", func(t *testing.T) {
		m, _ := newTestManager(t)

		if _, ok := m.GetJob("nope"); ok {
			t.Error("Expected unknown job to be absent")
		}
	})
}

func TestCleanupOldJobs(t *testing.T) {
	t.Run("removes finished jobs past max age", func(t *testing.T) {
		m, store := newTestManager(t)
		data := testPNG(t)
		saveChunks(t, store, "upload-cleanup", data, 1)

		job := m.StartJob("upload-cleanup", "menu.png", 1, int64(len(data)), int64(len(data)), "")
		waitForJob(t, m, job.ID)

		// A generous max age keeps the job around
		m.CleanupOldJobs(time.Hour)
		if _, ok := m.GetJob(job.ID); !ok {
			t.Fatal("Expected fresh job to survive cleanup")
		}

		// Zero max age reclaims finished jobs
		m.CleanupOldJobs(0)
		if _, ok := m.GetJob(job.ID); ok {
			t.Error("Expected job to be cleaned up")
		}
	})
}
