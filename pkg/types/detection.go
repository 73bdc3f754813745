package types

// Box is one face bounding box in the pixel space of the uploaded image.
// Detectors may report sub-pixel coordinates; they are rounded only when drawn.
type Box struct {
	X1    float64 `json:"x1"`
	Y1    float64 `json:"y1"`
	X2    float64 `json:"x2"`
	Y2    float64 `json:"y2"`
	Score float64 `json:"score"`
}

// Width returns x2 - x1
func (b Box) Width() float64 { return b.X2 - b.X1 }

// Height returns y2 - y1
func (b Box) Height() float64 { return b.Y2 - b.Y1 }

// DetectionResponse mirrors the JSON body returned by POST /detect.
// RecordID and Timestamp are only present when the detector stores records.
type DetectionResponse struct {
	Count     int    `json:"count"`
	Faces     []Box  `json:"faces"`
	RecordID  *int64 `json:"record_id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// DetectionEvent is what the capture loop publishes after each successful tick.
type DetectionEvent struct {
	SessionID string  `json:"session_id"`
	Seq       uint64  `json:"seq"`
	Count     int     `json:"count"`
	Faces     []Box   `json:"faces"`
	Mirrored  bool    `json:"mirrored"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	LatencyMS int64   `json:"latency_ms"`
	Timestamp float64 `json:"timestamp"`
}
