package models

// ScanResult holds everything produced by running the OCR pipeline over
// one or more images of a menu.
type ScanResult struct {
	PlainText        string     `json:"plainText"`
	Words            []Word     `json:"words"`
	Items            []MenuItem `json:"items"`
	DetectedLanguage string     `json:"detectedLanguage"`
	MeanConfidence   float64    `json:"meanConfidence"` // 0-1
	Engine           string     `json:"engine"`
	Translated       bool       `json:"translated"`
}

// NewScanResult creates an empty ScanResult.
func NewScanResult() *ScanResult {
	return &ScanResult{
		Words: make([]Word, 0),
		Items: make([]MenuItem, 0),
	}
}

// Categories returns the distinct item categories in first-seen order.
func (r *ScanResult) Categories() []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, item := range r.Items {
		if item.Category == "" {
			continue
		}
		if _, ok := seen[item.Category]; ok {
			continue
		}
		seen[item.Category] = struct{}{}
		out = append(out, item.Category)
	}
	return out
}
