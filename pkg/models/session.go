package models

import (
	"encoding/base64"
	"time"
)

// Phase is the coarse lifecycle position of a capture session
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseCapturing  Phase = "capturing"
	PhaseProcessing Phase = "processing"
	PhaseSettled    Phase = "settled"
)

// Image is an acquired picture owned by exactly one session
type Image struct {
	Data        []byte
	ContentType string
	Name        string
	Format      string
	Width       int
	Height      int
}

// DataURL renders the image the way a browser <img> would reference it
func (i *Image) DataURL() string {
	if i == nil || len(i.Data) == 0 {
		return ""
	}
	return "data:" + i.ContentType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Choice is one multiple-choice option recognized in the question text
type Choice struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Accuracy compares recognized text with the text the caller expected
type Accuracy struct {
	ExpectedText string  `json:"expected_text"`
	WER          float64 `json:"word_error_rate"`
	CER          float64 `json:"character_error_rate"`
	MatchScore   float64 `json:"match_score"`
}

// SessionView is the display state of a capture session
type SessionView struct {
	ID             string    `json:"id"`
	Phase          Phase     `json:"phase"`
	Image          *string   `json:"image"`
	ImageWidth     int       `json:"image_width,omitempty"`
	ImageHeight    int       `json:"image_height,omitempty"`
	RecognizedText string    `json:"recognized_text"`
	Answer         string    `json:"answer"`
	ErrorMessage   string    `json:"error_message"`
	IsProcessing   bool      `json:"is_processing"`
	CanCapture     bool      `json:"can_capture"`
	Display        string    `json:"display,omitempty"`
	Quality        []string  `json:"quality,omitempty"`
	Choices        []Choice  `json:"choices,omitempty"`
	MatchedChoice  *Choice   `json:"matched_choice,omitempty"`
	Accuracy       *Accuracy `json:"accuracy,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// AnswerRequest is the payload sent to the remote answer API
type AnswerRequest struct {
	QuestionText string `json:"question_text"`
}

// AnswerResponse is the payload returned by the remote answer API
type AnswerResponse struct {
	Answer string `json:"answer"`
}
