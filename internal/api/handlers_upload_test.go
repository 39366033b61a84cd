// handlers_upload_test.go - Tests for upload handlers
package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ocr-menu-detector/backend/internal/models"
	"github.com/ocr-menu-detector/backend/internal/testutil"
	"github.com/ocr-menu-detector/backend/internal/upload"
)

var testExts = []string{"png", "jpg", "jpeg", "gif", "bmp", "tiff"}

func TestUploadHandler_HandleUploadFile(t *testing.T) {
	tests := []struct {
		name       string
		request    uploadFileRequest
		wantStatus int
		wantErr    bool
		errCode    string
	}{
		{
			name: "valid image upload",
			request: uploadFileRequest{
				Name: "menu.png",
				Data: base64.StdEncoding.EncodeToString([]byte("png bytes")),
			},
			wantStatus: http.StatusCreated,
			wantErr:    false,
		},
		{
			name: "empty name",
			request: uploadFileRequest{
				Name: "",
				Data: base64.StdEncoding.EncodeToString([]byte("content")),
			},
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "VALIDATION_ERROR",
		},
		{
			name: "empty data",
			request: uploadFileRequest{
				Name: "menu.png",
				Data: "",
			},
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "VALIDATION_ERROR",
		},
		{
			name: "disallowed extension",
			request: uploadFileRequest{
				Name: "notes.txt",
				Data: base64.StdEncoding.EncodeToString([]byte("content")),
			},
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "VALIDATION_ERROR",
		},
		{
			name: "invalid base64",
			request: uploadFileRequest{
				Name: "menu.png",
				Data: "not-valid-base64!!!",
			},
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "BAD_REQUEST",
		},
		{
			name: "large image upload",
			request: uploadFileRequest{
				Name: "huge.jpg",
				Data: base64.StdEncoding.EncodeToString(make([]byte, 1024*1024)), // 1MB
			},
			wantStatus: http.StatusCreated,
			wantErr:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup
			store := testutil.NewMockStorage()
			handler := NewUploadHandler(store, nil, nil, testExts)

			e := echo.New()
			body, _ := json.Marshal(tt.request)
			req := httptest.NewRequest(http.MethodPost, "/api/files/upload", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			// Execute
			err := handler.HandleUploadFile(c)

			// Assert
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got nil")
					return
				}
				apiErr, ok := err.(*APIError)
				if !ok {
					t.Errorf("expected APIError, got %T", err)
					return
				}
				if apiErr.Status != tt.wantStatus {
					t.Errorf("expected status %d, got %d", tt.wantStatus, apiErr.Status)
				}
				if apiErr.Code != tt.errCode {
					t.Errorf("expected error code %s, got %s", tt.errCode, apiErr.Code)
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
				if rec.Code != tt.wantStatus {
					t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
				}

				// Verify response structure
				var response models.FileInfo
				if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
					t.Errorf("failed to unmarshal response: %v", err)
					return
				}
				if response.ID == "" {
					t.Error("expected non-empty ID in response")
				}
				if response.Name != tt.request.Name {
					t.Errorf("expected name %s, got %s", tt.request.Name, response.Name)
				}
			}
		})
	}
}

func TestUploadHandler_HandleUploadChunk(t *testing.T) {
	tests := []struct {
		name       string
		request    uploadChunkRequest
		wantStatus int
		wantErr    bool
		errCode    string
	}{
		{
			name: "valid chunk upload",
			request: uploadChunkRequest{
				UploadID:    "upload-123",
				ChunkIndex:  0,
				Data:        base64.StdEncoding.EncodeToString([]byte("chunk data")),
				TotalChunks: 5,
			},
			wantStatus: http.StatusAccepted,
			wantErr:    false,
		},
		{
			name: "missing upload id",
			request: uploadChunkRequest{
				UploadID:    "",
				ChunkIndex:  0,
				Data:        base64.StdEncoding.EncodeToString([]byte("data")),
				TotalChunks: 5,
			},
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "VALIDATION_ERROR",
		},
		{
			name: "missing data",
			request: uploadChunkRequest{
				UploadID:    "upload-123",
				ChunkIndex:  0,
				Data:        "",
				TotalChunks: 5,
			},
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "VALIDATION_ERROR",
		},
		{
			name: "invalid base64",
			request: uploadChunkRequest{
				UploadID:    "upload-123",
				ChunkIndex:  0,
				Data:        "not-valid!!!",
				TotalChunks: 5,
			},
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "BAD_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup
			store := testutil.NewMockStorage()
			handler := NewUploadHandler(store, nil, nil, testExts)

			e := echo.New()
			body, _ := json.Marshal(tt.request)
			req := httptest.NewRequest(http.MethodPost, "/api/files/upload/chunk", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			// Execute
			err := handler.HandleUploadChunk(c)

			// Assert
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
					return
				}
				apiErr, ok := err.(*APIError)
				if !ok {
					t.Errorf("expected APIError, got %T", err)
					return
				}
				if apiErr.Code != tt.errCode {
					t.Errorf("expected error code %s, got %s", tt.errCode, apiErr.Code)
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
				if rec.Code != tt.wantStatus {
					t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
				}
			}
		})
	}
}

func TestUploadHandler_HandleCompleteUpload(t *testing.T) {
	tests := []struct {
		name       string
		request    completeUploadRequest
		wantStatus int
		wantErr    bool
		errCode    string
	}{
		{
			name: "valid completion",
			request: completeUploadRequest{
				UploadID:    "upload-done",
				Name:        "menu.png",
				TotalChunks: 1,
			},
			wantStatus: http.StatusAccepted,
			wantErr:    false,
		},
		{
			name: "gzip suffix allowed for image names",
			request: completeUploadRequest{
				UploadID:    "upload-gz",
				Name:        "menu.png.gz",
				TotalChunks: 1,
				Encoding:    "gzip",
			},
			wantStatus: http.StatusAccepted,
			wantErr:    false,
		},
		{
			name: "gzip suffix does not hide non-image",
			request: completeUploadRequest{
				UploadID:    "upload-tar",
				Name:        "archive.tar.gz",
				TotalChunks: 1,
				Encoding:    "gzip",
			},
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "VALIDATION_ERROR",
		},
		{
			name: "missing upload id",
			request: completeUploadRequest{
				Name:        "menu.png",
				TotalChunks: 1,
			},
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "VALIDATION_ERROR",
		},
		{
			name: "missing name",
			request: completeUploadRequest{
				UploadID:    "upload-1",
				TotalChunks: 1,
			},
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "VALIDATION_ERROR",
		},
		{
			name: "zero chunks",
			request: completeUploadRequest{
				UploadID: "upload-1",
				Name:     "menu.png",
			},
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "BAD_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup
			store := testutil.NewMockStorage()
			store.SaveChunkBytes(tt.request.UploadID, 0, []byte("chunk"))
			uploadMgr := upload.NewManager(t.TempDir(), store)
			handler := NewUploadHandler(store, nil, uploadMgr, testExts)

			e := echo.New()
			body, _ := json.Marshal(tt.request)
			req := httptest.NewRequest(http.MethodPost, "/api/files/upload/complete", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			// Execute
			err := handler.HandleCompleteUpload(c)

			// Assert
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
					return
				}
				apiErr, ok := err.(*APIError)
				if !ok {
					t.Errorf("expected APIError, got %T", err)
					return
				}
				if apiErr.Code != tt.errCode {
					t.Errorf("expected error code %s, got %s", tt.errCode, apiErr.Code)
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
				if rec.Code != tt.wantStatus {
					t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
				}

				var response map[string]interface{}
				if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
					t.Errorf("failed to unmarshal response: %v", err)
					return
				}
				jobID, _ := response["jobId"].(string)
				if jobID == "" {
					t.Error("expected non-empty jobId")
				}
				// Processing runs in the background; the job must be queryable
				if _, ok := uploadMgr.GetJob(jobID); !ok {
					t.Error("expected job to be registered")
				}
			}
		})
	}
}

func TestUploadHandler_HandleUploadBinary(t *testing.T) {
	tests := []struct {
		name       string
		fileName   string
		noFile     bool
		wantStatus int
		wantErr    bool
		errCode    string
	}{
		{
			name:       "valid multipart upload",
			fileName:   "menu.jpg",
			wantStatus: http.StatusCreated,
			wantErr:    false,
		},
		{
			name:       "disallowed extension",
			fileName:   "report.pdf",
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "VALIDATION_ERROR",
		},
		{
			name:       "no file part",
			noFile:     true,
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "BAD_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup
			store := testutil.NewMockStorage()
			handler := NewUploadHandler(store, nil, nil, testExts)

			body := new(bytes.Buffer)
			writer := multipart.NewWriter(body)
			if !tt.noFile {
				part, _ := writer.CreateFormFile("file", tt.fileName)
				part.Write([]byte("image bytes"))
			}
			writer.Close()

			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/api/files/upload/binary", body)
			req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			// Execute
			err := handler.HandleUploadBinary(c)

			// Assert
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
					return
				}
				apiErr, ok := err.(*APIError)
				if !ok {
					t.Errorf("expected APIError, got %T", err)
					return
				}
				if apiErr.Code != tt.errCode {
					t.Errorf("expected error code %s, got %s", tt.errCode, apiErr.Code)
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
				if rec.Code != tt.wantStatus {
					t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
				}

				var response models.FileInfo
				if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
					t.Errorf("failed to unmarshal response: %v", err)
					return
				}
				if response.Name != tt.fileName {
					t.Errorf("expected name %s, got %s", tt.fileName, response.Name)
				}
				if response.Size != int64(len("image bytes")) {
					t.Errorf("expected size %d, got %d", len("image bytes"), response.Size)
				}
			}
		})
	}
}

func TestUploadHandler_HandleUploadJobStream(t *testing.T) {
	t.Run("unknown job", func(t *testing.T) {
		store := testutil.NewMockStorage()
		uploadMgr := upload.NewManager(t.TempDir(), store)
		handler := NewUploadHandler(store, nil, uploadMgr, testExts)

		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/files/upload/:jobId/status", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("jobId")
		c.SetParamValues("ghost-job")

		err := handler.HandleUploadJobStream(c)
		if err == nil {
			t.Fatal("expected error for unknown job")
		}
		if apiErr, ok := err.(*APIError); !ok || apiErr.Code != "NOT_FOUND" {
			t.Errorf("expected NOT_FOUND, got %v", err)
		}
	})

	t.Run("finished job sends one frame", func(t *testing.T) {
		store := testutil.NewMockStorage()
		store.SaveChunkBytes("upload-stream", 0, []byte("chunk"))
		uploadMgr := upload.NewManager(t.TempDir(), store)
		handler := NewUploadHandler(store, nil, uploadMgr, testExts)

		job := uploadMgr.StartJob("upload-stream", "menu.png", 1, 5, 5, "")
		waitForUploadJob(t, uploadMgr, job.ID)

		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/files/upload/:jobId/status", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("jobId")
		c.SetParamValues(job.ID)

		if err := handler.HandleUploadJobStream(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ct := rec.Header().Get(echo.HeaderContentType); ct != "text/event-stream" {
			t.Errorf("unexpected content type: %s", ct)
		}
		body := rec.Body.String()
		if !strings.HasPrefix(body, "data: ") {
			t.Errorf("expected SSE frame, got %s", body)
		}
		if !strings.Contains(body, `"status":"complete"`) {
			t.Errorf("expected complete status in frame, got %s", body)
		}
	})
}

// waitForUploadJob polls until the job reaches a terminal state.
func waitForUploadJob(t *testing.T, m *upload.Manager, jobID string) *upload.Job {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := m.GetJob(jobID)
		if !ok {
			t.Fatalf("job not found")
		}
		if job.Status == upload.StatusComplete || job.Status == upload.StatusError {
			return job
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job did not finish in time")
	return nil
}

func TestUploadHandler_HandleGetRecentFiles(t *testing.T) {
	tests := []struct {
		name       string
		setupFiles map[string][]byte
		wantCount  int
	}{
		{
			name:       "empty storage",
			setupFiles: map[string][]byte{},
			wantCount:  0,
		},
		{
			name: "only image files",
			setupFiles: map[string][]byte{
				"menu1.png": []byte("content1"),
				"menu2.jpg": []byte("content2"),
			},
			wantCount: 2,
		},
		{
			name: "rules and other files excluded",
			setupFiles: map[string][]byte{
				"menu.png":   []byte("image"),
				"rules.yaml": []byte("currencies:"),
				"data.csv":   []byte("a,b"),
				"photo.JPG":  []byte("image"),
			},
			wantCount: 2,
		},
		{
			name: "many files limited to 20",
			setupFiles: func() map[string][]byte {
				files := make(map[string][]byte)
				for i := 0; i < 30; i++ {
					files[fmt.Sprintf("menu%d.png", i)] = []byte("content")
				}
				return files
			}(),
			wantCount: 20,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup
			store := testutil.NewMockStorage()
			for name, data := range tt.setupFiles {
				store.AddFile(fmt.Sprintf("id-%s", name), name, data)
			}
			handler := NewUploadHandler(store, nil, nil, testExts)

			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/api/files/recent", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			// Execute
			if err := handler.HandleGetRecentFiles(c); err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}

			// Assert
			var files []models.FileInfo
			if err := json.Unmarshal(rec.Body.Bytes(), &files); err != nil {
				t.Errorf("failed to unmarshal response: %v", err)
				return
			}
			if len(files) != tt.wantCount {
				t.Errorf("expected %d files, got %d", tt.wantCount, len(files))
			}

			// Verify no rules or data files in response
			for _, f := range files {
				nameLower := strings.ToLower(f.Name)
				if strings.HasSuffix(nameLower, ".yaml") ||
					strings.HasSuffix(nameLower, ".yml") ||
					strings.HasSuffix(nameLower, ".csv") {
					t.Errorf("found excluded file type: %s", f.Name)
				}
			}
		})
	}
}

func TestUploadHandler_HandleGetFile(t *testing.T) {
	tests := []struct {
		name       string
		fileID     string
		setupFiles map[string][]byte
		wantStatus int
		wantErr    bool
		errCode    string
	}{
		{
			name:   "existing file",
			fileID: "test-id-1",
			setupFiles: map[string][]byte{
				"test-id-1": []byte("content"),
			},
			wantStatus: http.StatusOK,
			wantErr:    false,
		},
		{
			name:       "missing file id",
			fileID:     "",
			setupFiles: map[string][]byte{},
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "VALIDATION_ERROR",
		},
		{
			name:       "non-existent file",
			fileID:     "does-not-exist",
			setupFiles: map[string][]byte{},
			wantStatus: http.StatusNotFound,
			wantErr:    true,
			errCode:    "NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup
			store := testutil.NewMockStorage()
			for id, data := range tt.setupFiles {
				store.AddFile(id, "menu.png", data)
			}
			handler := NewUploadHandler(store, nil, nil, testExts)

			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/api/files/:id", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			c.SetParamNames("id")
			c.SetParamValues(tt.fileID)

			// Execute
			err := handler.HandleGetFile(c)

			// Assert
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
					return
				}
				apiErr, ok := err.(*APIError)
				if !ok {
					t.Errorf("expected APIError, got %T", err)
					return
				}
				if apiErr.Status != tt.wantStatus {
					t.Errorf("expected status %d, got %d", tt.wantStatus, apiErr.Status)
				}
				if apiErr.Code != tt.errCode {
					t.Errorf("expected error code %s, got %s", tt.errCode, apiErr.Code)
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
				if rec.Code != tt.wantStatus {
					t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
				}

				var response models.FileInfo
				if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
					t.Errorf("failed to unmarshal response: %v", err)
					return
				}
				if response.ID != tt.fileID {
					t.Errorf("expected ID %s, got %s", tt.fileID, response.ID)
				}
			}
		})
	}
}

func TestUploadHandler_HandleDeleteFile(t *testing.T) {
	tests := []struct {
		name       string
		fileID     string
		setupFiles map[string][]byte
		wantStatus int
		wantErr    bool
		errCode    string
	}{
		{
			name:   "delete existing file",
			fileID: "test-id-1",
			setupFiles: map[string][]byte{
				"test-id-1": []byte("content"),
			},
			wantStatus: http.StatusNoContent,
			wantErr:    false,
		},
		{
			name:       "delete non-existent file",
			fileID:     "does-not-exist",
			setupFiles: map[string][]byte{},
			wantStatus: http.StatusNotFound,
			wantErr:    true,
			errCode:    "NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup
			store := testutil.NewMockStorage()
			for id, data := range tt.setupFiles {
				store.AddFile(id, "menu.png", data)
			}
			sessionMgr := NewMockSessionManager()
			handler := NewUploadHandler(store, sessionMgr, nil, testExts)

			e := echo.New()
			req := httptest.NewRequest(http.MethodDelete, "/api/files/:id", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			c.SetParamNames("id")
			c.SetParamValues(tt.fileID)

			// Execute
			err := handler.HandleDeleteFile(c)

			// Assert
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
					return
				}
				apiErr, ok := err.(*APIError)
				if !ok {
					t.Errorf("expected APIError, got %T", err)
					return
				}
				if apiErr.Code != tt.errCode {
					t.Errorf("expected error code %s, got %s", tt.errCode, apiErr.Code)
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
				if rec.Code != tt.wantStatus {
					t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
				}

				// Verify file was deleted and scan results cleaned up
				if store.GetFileCount() != 0 {
					t.Error("file should have been deleted")
				}
				if len(sessionMgr.deleted) != 1 || sessionMgr.deleted[0] != tt.fileID {
					t.Errorf("expected scan cleanup for %s, got %v", tt.fileID, sessionMgr.deleted)
				}
			}
		})
	}
}

func TestUploadHandler_HandleRenameFile(t *testing.T) {
	tests := []struct {
		name       string
		fileID     string
		newName    string
		setupFiles map[string][]byte
		wantStatus int
		wantErr    bool
		errCode    string
	}{
		{
			name:    "rename existing file",
			fileID:  "test-id-1",
			newName: "renamed.png",
			setupFiles: map[string][]byte{
				"test-id-1": []byte("content"),
			},
			wantStatus: http.StatusOK,
			wantErr:    false,
		},
		{
			name:       "rename with empty name",
			fileID:     "test-id-1",
			newName:    "",
			setupFiles: map[string][]byte{},
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "VALIDATION_ERROR",
		},
		{
			name:    "rename to disallowed extension",
			fileID:  "test-id-1",
			newName: "renamed.exe",
			setupFiles: map[string][]byte{
				"test-id-1": []byte("content"),
			},
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "VALIDATION_ERROR",
		},
		{
			name:       "rename non-existent file",
			fileID:     "does-not-exist",
			newName:    "renamed.png",
			setupFiles: map[string][]byte{},
			wantStatus: http.StatusNotFound,
			wantErr:    true,
			errCode:    "NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup
			store := testutil.NewMockStorage()
			for id, data := range tt.setupFiles {
				store.AddFile(id, "old-name.png", data)
			}
			handler := NewUploadHandler(store, nil, nil, testExts)

			e := echo.New()
			body, _ := json.Marshal(renameFileRequest{Name: tt.newName})
			req := httptest.NewRequest(http.MethodPut, "/api/files/:id", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			c.SetParamNames("id")
			c.SetParamValues(tt.fileID)

			// Execute
			err := handler.HandleRenameFile(c)

			// Assert
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
					return
				}
				apiErr, ok := err.(*APIError)
				if !ok {
					t.Errorf("expected APIError, got %T", err)
					return
				}
				if apiErr.Code != tt.errCode {
					t.Errorf("expected error code %s, got %s", tt.errCode, apiErr.Code)
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
				if rec.Code != tt.wantStatus {
					t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
				}

				var response models.FileInfo
				if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
					t.Errorf("failed to unmarshal response: %v", err)
					return
				}
				if response.Name != tt.newName {
					t.Errorf("expected name %s, got %s", tt.newName, response.Name)
				}
			}
		})
	}
}

func TestAllowedFile(t *testing.T) {
	exts := []string{"png", "jpg", "jpeg"}

	tests := []struct {
		name     string
		fileName string
		want     bool
	}{
		{"simple png", "menu.png", true},
		{"uppercase extension", "MENU.PNG", true},
		{"jpeg", "photo.jpeg", true},
		{"disallowed", "doc.pdf", false},
		{"no extension", "menu", false},
		{"dotfile only", ".png", true},
		{"double extension uses last", "menu.png.txt", false},
		{"empty name", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := allowedFile(tt.fileName, exts); got != tt.want {
				t.Errorf("allowedFile(%q) = %v, want %v", tt.fileName, got, tt.want)
			}
		})
	}
}

func TestFilterImageFiles(t *testing.T) {
	tests := []struct {
		name     string
		files    []*models.FileInfo
		expected []string // expected file names
	}{
		{
			name:     "empty list",
			files:    []*models.FileInfo{},
			expected: []string{},
		},
		{
			name: "all images",
			files: []*models.FileInfo{
				{Name: "menu1.png"},
				{Name: "menu2.jpg"},
				{Name: "scan.jpeg"},
			},
			expected: []string{"menu1.png", "menu2.jpg", "scan.jpeg"},
		},
		{
			name: "mixed with rules and exports",
			files: []*models.FileInfo{
				{Name: "menu.png"},
				{Name: "rules.yaml"},
				{Name: "items.csv"},
				{Name: "photo.jpg"},
				{Name: "config.yml"},
			},
			expected: []string{"menu.png", "photo.jpg"},
		},
		{
			name: "case insensitive filtering",
			files: []*models.FileInfo{
				{Name: "RULES.YAML"},
				{Name: "MENU.PNG"},
			},
			expected: []string{"MENU.PNG"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := filterImageFiles(tt.files, testExts)

			if len(result) != len(tt.expected) {
				t.Errorf("expected %d files, got %d", len(tt.expected), len(result))
				return
			}

			for i, expected := range tt.expected {
				if result[i].Name != expected {
					t.Errorf("expected file %d to be %s, got %s", i, expected, result[i].Name)
				}
			}
		})
	}
}
