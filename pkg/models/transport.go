package models

// CaptureRequest is the form accepted by the capture endpoint. The image file
// itself travels in the multipart "image" field and is not bound here.
type CaptureRequest struct {
	BlobName     string `form:"blob"`
	ExpectedText string `form:"expected_text"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HealthResponse reports liveness plus the configured collaborators
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Time        string `json:"time"`
	ImageSource string `json:"image_source"`
	OCREngine   string `json:"ocr_engine"`
	Sessions    int    `json:"sessions"`
}
