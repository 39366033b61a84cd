package api

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/ocr-menu-detector/backend/internal/menu"
	"github.com/ocr-menu-detector/backend/internal/models"
	"github.com/ocr-menu-detector/backend/internal/session"
	"github.com/ocr-menu-detector/backend/internal/storage"
)

// WebSocket message types for upload protocol
const (
	// Client -> Server messages
	MsgTypeUploadInit     = "upload:init"
	MsgTypeUploadChunk    = "upload:chunk"
	MsgTypeUploadComplete = "upload:complete"
	MsgTypeRulesUpload    = "rules:upload"
	MsgTypeScanStart      = "scan:start"
	MsgTypePing           = "ping"

	// Server -> Client messages
	MsgTypeAck        = "ack"
	MsgTypeProgress   = "progress"
	MsgTypeComplete   = "complete"
	MsgTypeError      = "error"
	MsgTypeProcessing = "processing"
	MsgTypePong       = "pong"
)

// WebSocket message structure
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Upload init payload
type UploadInitPayload struct {
	FileName    string `json:"fileName"`
	TotalChunks int    `json:"totalChunks"`
	TotalSize   int64  `json:"totalSize"`
	Encoding    string `json:"encoding,omitempty"` // "gzip", "none"
}

// Upload chunk payload
type UploadChunkPayload struct {
	UploadID   string `json:"uploadId"`
	ChunkIndex int    `json:"chunkIndex"`
	Data       string `json:"data"` // Base64 encoded chunk
	IsLast     bool   `json:"isLast,omitempty"`
}

// Upload complete payload
type UploadCompletePayload struct {
	UploadID       string `json:"uploadId"`
	FileName       string `json:"fileName"`
	TotalChunks    int    `json:"totalChunks"`
	OriginalSize   int64  `json:"originalSize"`
	CompressedSize int64  `json:"compressedSize,omitempty"`
	Encoding       string `json:"encoding,omitempty"`
}

// Rules upload payload (single message, rules files are small)
type FileUploadPayload struct {
	Name string `json:"name"`
	Data string `json:"data"` // Base64 encoded file
}

// Scan start payload
type ScanStartPayload struct {
	FileID     string `json:"fileId"`
	TargetLang string `json:"targetLang,omitempty"`
	Engine     string `json:"engine,omitempty"`
}

// WebSocket progress response
type WSProgressResponse struct {
	Type     string  `json:"type"`
	UploadID string  `json:"uploadId,omitempty"`
	Progress float64 `json:"progress"`
	Stage    string  `json:"stage,omitempty"`
	Message  string  `json:"message,omitempty"`
}

// WebSocket completion response
type WSCompleteResponse struct {
	Type     string           `json:"type"`
	UploadID string           `json:"uploadId,omitempty"`
	FileInfo *models.FileInfo `json:"fileInfo,omitempty"`
	Result   interface{}      `json:"result,omitempty"` // For rules/scan responses
}

// WebSocket error response
type WSErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// UploadSession tracks an in-progress upload over WebSocket
type UploadSession struct {
	ID             string
	FileName       string
	TotalChunks    int
	ReceivedChunks map[int]bool
	Chunks         [][]byte
	OriginalSize   int64
	Encoding       string
	CreatedAt      time.Time
}

// WebSocketHandler manages WebSocket connections for image uploads
type WebSocketHandler struct {
	store       storage.Store
	sessionMgr  SessionManager
	menu        MenuHandler
	allowedExts []string
	upgrader    websocket.Upgrader
	sessions    map[string]*UploadSession
	sessionsMu  sync.RWMutex
}

// NewWebSocketHandler creates a new WebSocket upload handler
func NewWebSocketHandler(store storage.Store, sessionMgr SessionManager, menuHandler MenuHandler, allowedExts []string) *WebSocketHandler {
	return &WebSocketHandler{
		store:       store,
		sessionMgr:  sessionMgr,
		menu:        menuHandler,
		allowedExts: allowedExts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from dev server
				return true
			},
			ReadBufferSize:  64 * 1024, // 64KB read buffer
			WriteBufferSize: 64 * 1024, // 64KB write buffer
		},
		sessions: make(map[string]*UploadSession),
	}
}

// HandleWebSocket upgrades HTTP connection to WebSocket and handles upload protocol
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	fmt.Println("[WebSocket] Client connected for upload")

	// Send welcome message
	wsh.sendMessage(ws, WSMessage{
		Type:      "connected",
		Timestamp: time.Now().UnixMilli(),
	})

	// Main message loop
	for {
		var msg WSMessage
		err := ws.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				fmt.Printf("[WebSocket] Connection error: %v\n", err)
			}
			break
		}

		// Handle message based on type
		switch msg.Type {
		case MsgTypePing:
			// Respond with pong to keep connection alive
			wsh.sendMessage(ws, WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()})
		case MsgTypeUploadInit:
			wsh.handleUploadInit(ws, msg)
		case MsgTypeUploadChunk:
			wsh.handleUploadChunk(ws, msg)
		case MsgTypeUploadComplete:
			wsh.handleUploadComplete(ws, msg)
		case MsgTypeRulesUpload:
			wsh.handleRulesUpload(ws, msg)
		case MsgTypeScanStart:
			wsh.handleScanStart(ws, msg)
		default:
			wsh.sendError(ws, "Unknown message type: "+msg.Type, "INVALID_TYPE")
		}
	}

	fmt.Println("[WebSocket] Client disconnected")
	return nil
}

// handleUploadInit initializes a new chunked upload session
func (wsh *WebSocketHandler) handleUploadInit(ws *websocket.Conn, msg WSMessage) {
	var payload UploadInitPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		wsh.sendError(ws, "Invalid init payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}

	if !allowedFile(uploadTargetName(payload.FileName, payload.Encoding), wsh.allowedExts) {
		wsh.sendError(ws, "File type not allowed: "+payload.FileName, "INVALID_TYPE")
		return
	}

	sessionID := generateUploadID()
	uploadSession := &UploadSession{
		ID:             sessionID,
		FileName:       payload.FileName,
		TotalChunks:    payload.TotalChunks,
		ReceivedChunks: make(map[int]bool),
		Chunks:         make([][]byte, payload.TotalChunks),
		OriginalSize:   payload.TotalSize,
		Encoding:       payload.Encoding,
		CreatedAt:      time.Now(),
	}

	wsh.sessionsMu.Lock()
	wsh.sessions[sessionID] = uploadSession
	wsh.sessionsMu.Unlock()

	// Send acknowledgment
	wsh.sendMessage(ws, WSMessage{
		Type:      MsgTypeAck,
		ID:        sessionID,
		Timestamp: time.Now().UnixMilli(),
	})

	fmt.Printf("[WebSocket] Upload initialized: %s (%d chunks, %d bytes)\n",
		sessionID, payload.TotalChunks, payload.TotalSize)
}

// handleUploadChunk receives and stores a chunk
func (wsh *WebSocketHandler) handleUploadChunk(ws *websocket.Conn, msg WSMessage) {
	var payload UploadChunkPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		wsh.sendError(ws, "Invalid chunk payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}

	wsh.sessionsMu.Lock()
	uploadSession, exists := wsh.sessions[payload.UploadID]
	wsh.sessionsMu.Unlock()

	if !exists {
		wsh.sendError(ws, "Upload session not found: "+payload.UploadID, "SESSION_NOT_FOUND")
		return
	}

	if payload.ChunkIndex < 0 || payload.ChunkIndex >= uploadSession.TotalChunks {
		wsh.sendError(ws, fmt.Sprintf("Chunk index out of range: %d", payload.ChunkIndex), "INVALID_CHUNK")
		return
	}

	// Decode base64 chunk
	chunkData, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		wsh.sendError(ws, "Invalid base64 data: "+err.Error(), "INVALID_DATA")
		return
	}

	// Store chunk
	uploadSession.ReceivedChunks[payload.ChunkIndex] = true
	uploadSession.Chunks[payload.ChunkIndex] = chunkData

	// Calculate progress
	received := len(uploadSession.ReceivedChunks)
	progress := float64(received) / float64(uploadSession.TotalChunks) * 100

	// Send progress update
	wsh.sendMessage(ws, WSMessage{
		Type:      MsgTypeProgress,
		ID:        payload.UploadID,
		Timestamp: time.Now().UnixMilli(),
		Payload: mustJSON(WSProgressResponse{
			Type:     MsgTypeProgress,
			UploadID: payload.UploadID,
			Progress: progress,
			Stage:    "uploading",
			Message:  fmt.Sprintf("Received chunk %d/%d", received, uploadSession.TotalChunks),
		}),
	})
}

// handleUploadComplete assembles chunks and saves the image
func (wsh *WebSocketHandler) handleUploadComplete(ws *websocket.Conn, msg WSMessage) {
	var payload UploadCompletePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		wsh.sendError(ws, "Invalid complete payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}

	wsh.sessionsMu.Lock()
	uploadSession, exists := wsh.sessions[payload.UploadID]
	wsh.sessionsMu.Unlock()

	if !exists {
		wsh.sendError(ws, "Upload session not found: "+payload.UploadID, "SESSION_NOT_FOUND")
		return
	}

	// Verify all chunks received
	if len(uploadSession.ReceivedChunks) != uploadSession.TotalChunks {
		wsh.sendError(ws, fmt.Sprintf("Missing chunks: got %d, expected %d",
			len(uploadSession.ReceivedChunks), uploadSession.TotalChunks), "INCOMPLETE_UPLOAD")
		return
	}

	// Send processing status
	wsh.sendMessage(ws, WSMessage{
		Type:      MsgTypeProcessing,
		ID:        payload.UploadID,
		Timestamp: time.Now().UnixMilli(),
		Payload: mustJSON(WSProgressResponse{
			Type:     MsgTypeProcessing,
			UploadID: payload.UploadID,
			Progress: 50,
			Stage:    "assembling",
			Message:  "Assembling file chunks...",
		}),
	})

	// Concatenate all chunks
	totalSize := 0
	for _, chunk := range uploadSession.Chunks {
		totalSize += len(chunk)
	}

	assembledData := make([]byte, 0, totalSize)
	for _, chunk := range uploadSession.Chunks {
		assembledData = append(assembledData, chunk...)
	}

	fileName := uploadSession.FileName
	if payload.FileName != "" {
		fileName = payload.FileName
	}

	// Decompress if needed
	if payload.Encoding == "gzip" || uploadSession.Encoding == "gzip" {
		wsh.sendMessage(ws, WSMessage{
			Type:      MsgTypeProcessing,
			ID:        payload.UploadID,
			Timestamp: time.Now().UnixMilli(),
			Payload: mustJSON(WSProgressResponse{
				Type:     MsgTypeProcessing,
				UploadID: payload.UploadID,
				Progress: 75,
				Stage:    "decompressing",
				Message:  "Decompressing file...",
			}),
		})

		decompressed, err := decompressGzip(assembledData)
		if err != nil {
			fmt.Printf("[WebSocket] Decompression failed, using as-is: %v\n", err)
			// Continue with assembled data
		} else {
			assembledData = decompressed
			fileName = strings.TrimSuffix(fileName, ".gz")
		}
	}

	if !allowedFile(fileName, wsh.allowedExts) {
		wsh.sendError(ws, "File type not allowed: "+fileName, "INVALID_TYPE")
		return
	}

	// Save file
	info, err := wsh.store.SaveBytes(fileName, assembledData)
	if err != nil {
		wsh.sendError(ws, "Failed to save file: "+err.Error(), "SAVE_ERROR")
		return
	}

	// Clean up session
	wsh.sessionsMu.Lock()
	delete(wsh.sessions, payload.UploadID)
	wsh.sessionsMu.Unlock()

	// Send completion
	wsh.sendMessage(ws, WSMessage{
		Type:      MsgTypeComplete,
		ID:        payload.UploadID,
		Timestamp: time.Now().UnixMilli(),
		Payload: mustJSON(WSCompleteResponse{
			Type:     MsgTypeComplete,
			UploadID: payload.UploadID,
			FileInfo: info,
		}),
	})

	fmt.Printf("[WebSocket] Upload complete: %s (%d bytes)\n", info.ID, info.Size)
}

// handleRulesUpload handles single-message rules YAML upload
func (wsh *WebSocketHandler) handleRulesUpload(ws *websocket.Conn, msg WSMessage) {
	var payload FileUploadPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		wsh.sendError(ws, "Invalid rules upload payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}

	// Decode base64
	decoded, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		wsh.sendError(ws, "Invalid base64 data: "+err.Error(), "INVALID_DATA")
		return
	}

	// Parse YAML to validate
	rules, err := menu.ParseRulesFromBytes(decoded)
	if err != nil {
		wsh.sendError(ws, "Invalid YAML format: "+err.Error(), "INVALID_YAML")
		return
	}

	// Save file
	info, err := wsh.store.SaveBytes(payload.Name, decoded)
	if err != nil {
		wsh.sendError(ws, "Failed to save rules file: "+err.Error(), "SAVE_ERROR")
		return
	}

	// Set as active rules
	if wsh.menu != nil {
		wsh.menu.SetActiveRules(info.ID, rules)
	}

	// Send completion with rules info
	wsh.sendMessage(ws, WSMessage{
		Type:      MsgTypeComplete,
		Timestamp: time.Now().UnixMilli(),
		Payload: mustJSON(WSCompleteResponse{
			Type:     MsgTypeComplete,
			FileInfo: info,
			Result: models.RulesInfo{
				ID:            info.ID,
				Name:          info.Name,
				UploadedAt:    info.UploadedAt.Format(time.RFC3339),
				CategoryCount: len(rules.Categories),
				CurrencyCount: len(rules.Currencies),
			},
		}),
	})

	fmt.Printf("[WebSocket] Rules uploaded: %s\n", info.ID)
}

// handleScanStart starts an OCR scan for an already uploaded image
func (wsh *WebSocketHandler) handleScanStart(ws *websocket.Conn, msg WSMessage) {
	var payload ScanStartPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		wsh.sendError(ws, "Invalid scan payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}

	if payload.FileID == "" {
		wsh.sendError(ws, "fileId is required", "INVALID_PAYLOAD")
		return
	}

	info, err := wsh.store.Get(payload.FileID)
	if err != nil {
		wsh.sendError(ws, "File not found: "+payload.FileID, "FILE_NOT_FOUND")
		return
	}

	path, err := wsh.store.GetFilePath(payload.FileID)
	if err != nil {
		wsh.sendError(ws, "Failed to get file path: "+err.Error(), "FILE_ERROR")
		return
	}

	req := session.Request{
		TargetLanguage: payload.TargetLang,
		Engine:         payload.Engine,
	}
	if wsh.menu != nil {
		_, req.Rules = wsh.menu.ActiveRules()
	}

	sess, err := wsh.sessionMgr.StartScan(info.ID, path, info.Name, req)
	if err != nil {
		wsh.sendError(ws, "Failed to start scan: "+err.Error(), "SCAN_ERROR")
		return
	}

	// The scan runs in the background; clients follow it over the SSE
	// progress stream using the returned session ID.
	wsh.sendMessage(ws, WSMessage{
		Type:      MsgTypeComplete,
		Timestamp: time.Now().UnixMilli(),
		Payload: mustJSON(WSCompleteResponse{
			Type: MsgTypeComplete,
			Result: map[string]interface{}{
				"sessionId": sess.ID,
				"fileId":    info.ID,
				"fileName":  info.Name,
			},
		}),
	})

	fmt.Printf("[WebSocket] Scan started: %s for file %s\n", sess.ID, info.ID)
}

// Helper methods

func (wsh *WebSocketHandler) sendMessage(ws *websocket.Conn, msg WSMessage) {
	if err := ws.WriteJSON(msg); err != nil {
		fmt.Printf("[WebSocket] Failed to send message: %v\n", err)
	}
}

func (wsh *WebSocketHandler) sendError(ws *websocket.Conn, message, code string) {
	wsh.sendMessage(ws, WSMessage{
		Type:      MsgTypeError,
		Timestamp: time.Now().UnixMilli(),
		Payload: mustJSON(WSErrorResponse{
			Type:    MsgTypeError,
			Message: message,
			Code:    code,
		}),
	})
}

// uploadTargetName is the file name an upload ends up stored under, with the
// transport .gz suffix stripped for gzipped uploads.
func uploadTargetName(name, encoding string) string {
	if encoding == "gzip" {
		return strings.TrimSuffix(name, ".gz")
	}
	return name
}

func generateUploadID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixMilli(), time.Now().Nanosecond())
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}

func decompressGzip(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}
