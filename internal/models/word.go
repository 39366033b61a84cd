package models

// Box is a pixel-space bounding box in image coordinates.
type Box struct {
	X0 int `json:"x0"`
	Y0 int `json:"y0"`
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
}

// Width returns the box width in pixels.
func (b Box) Width() int { return b.X1 - b.X0 }

// Height returns the box height in pixels.
func (b Box) Height() int { return b.Y1 - b.Y0 }

// Word is a single recognized word with its confidence and location.
type Word struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"` // 0-1
	Box        Box     `json:"box"`
	LineNo     int     `json:"lineNo"`
	Page       int     `json:"page,omitempty"`
	SourceID   string  `json:"sourceId,omitempty"`
}
