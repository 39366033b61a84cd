package models

// ScanStatus represents the status of a scan session.
type ScanStatus string

const (
	ScanStatusPending    ScanStatus = "pending"
	ScanStatusProcessing ScanStatus = "processing"
	ScanStatusComplete   ScanStatus = "complete"
	ScanStatusError      ScanStatus = "error"
)

// ScanSession represents an asynchronous OCR scan of one or more images.
type ScanSession struct {
	ID               string      `json:"id"`
	FileID           string      `json:"fileId"`
	FileIDs          []string    `json:"fileIds,omitempty"` // All file IDs for multi-image scans
	Status           ScanStatus  `json:"status"`
	Progress         float64     `json:"progress"` // 0-100
	Engine           string      `json:"engine,omitempty"`
	DetectedLanguage string      `json:"detectedLanguage,omitempty"`
	TargetLanguage   string      `json:"targetLanguage,omitempty"`
	Translated       bool        `json:"translated,omitempty"`
	ItemCount        int         `json:"itemCount,omitempty"`
	WordCount        int         `json:"wordCount,omitempty"`
	MeanConfidence   float64     `json:"meanConfidence,omitempty"` // 0-1
	ProcessingTimeMs int64       `json:"processingTimeMs,omitempty"`
	StartTime        int64       `json:"startTime,omitempty"` // Unix ms
	EndTime          int64       `json:"endTime,omitempty"`   // Unix ms
	Errors           []ScanError `json:"errors,omitempty"`
}

// ScanError records a problem encountered by one pipeline stage. Warnings
// (e.g. a failed translation) leave the session completable.
type ScanError struct {
	Stage   string `json:"stage"` // "setup", "decode", "preprocess", "ocr", "extract", "translate", "finalize"
	Reason  string `json:"reason"`
	Warning bool   `json:"warning,omitempty"`
}

// NewScanSession creates a new ScanSession in pending status.
func NewScanSession(id, fileID string) *ScanSession {
	return &ScanSession{
		ID:       id,
		FileID:   fileID,
		Status:   ScanStatusPending,
		Progress: 0,
		Errors:   make([]ScanError, 0),
	}
}
