package validation

// QualityThresholds defines configurable thresholds for capture quality hints
type QualityThresholds struct {
	// Sharpness
	MinLaplacianVariance float64

	// Brightness on the 0-255 gray scale
	MinBrightness float64
	MaxBrightness float64

	// Standard deviation of gray levels below which the frame is treated as blank
	MinContrast float64

	// Resolution
	MinWidth  int
	MinHeight int
}

// DefaultQualityThresholds returns thresholds tuned for photos of printed
// questions
func DefaultQualityThresholds() QualityThresholds {
	return QualityThresholds{
		MinLaplacianVariance: 100.0,
		MinBrightness:        60.0,
		MaxBrightness:        235.0,
		MinContrast:          8.0,
		MinWidth:             200,
		MinHeight:            100,
	}
}

// QualityValidator turns capture metrics into advisory issues
type QualityValidator struct {
	thresholds QualityThresholds
}

// NewQualityValidator creates a new quality validator with default thresholds
func NewQualityValidator() *QualityValidator {
	return &QualityValidator{
		thresholds: DefaultQualityThresholds(),
	}
}

// NewQualityValidatorWithThresholds creates a quality validator with custom thresholds
func NewQualityValidatorWithThresholds(thresholds QualityThresholds) *QualityValidator {
	return &QualityValidator{
		thresholds: thresholds,
	}
}

// QualityIssue represents a quality validation issue
type QualityIssue struct {
	Type        string  `json:"type"`
	Message     string  `json:"message"`
	Severity    string  `json:"severity"` // "warning", "info"
	ActualValue float64 `json:"actual_value,omitempty"`
	Threshold   float64 `json:"threshold,omitempty"`
}

// CaptureMetrics are the measurements taken from an acquired image
type CaptureMetrics struct {
	Width         int
	Height        int
	LaplacianVar  float64
	Brightness    float64
	Contrast      float64
	AvgSaturation float64
}

// ValidateCapture reports issues likely to hurt text recognition. A blank
// frame suppresses the sharpness check since it has no edges to measure.
func (qv *QualityValidator) ValidateCapture(m CaptureMetrics) []QualityIssue {
	var issues []QualityIssue

	if m.Width < qv.thresholds.MinWidth || m.Height < qv.thresholds.MinHeight {
		issues = append(issues, QualityIssue{
			Type:        "low_resolution",
			Message:     "Image resolution is low. Move closer to the question.",
			Severity:    "warning",
			ActualValue: float64(m.Width * m.Height),
			Threshold:   float64(qv.thresholds.MinWidth * qv.thresholds.MinHeight),
		})
	}

	blank := m.Contrast < qv.thresholds.MinContrast
	if blank {
		issues = append(issues, QualityIssue{
			Type:        "blank",
			Message:     "Image looks blank. Make sure the question is in the frame.",
			Severity:    "warning",
			ActualValue: m.Contrast,
			Threshold:   qv.thresholds.MinContrast,
		})
	}

	if !blank && m.LaplacianVar < qv.thresholds.MinLaplacianVariance {
		issues = append(issues, QualityIssue{
			Type:        "blurriness",
			Message:     "Image is blurry. Please hold the camera steady and try again.",
			Severity:    "warning",
			ActualValue: m.LaplacianVar,
			Threshold:   qv.thresholds.MinLaplacianVariance,
		})
	}

	switch {
	case m.Brightness < qv.thresholds.MinBrightness:
		issues = append(issues, QualityIssue{
			Type:        "too_dark",
			Message:     "Image is too dark. Use more light.",
			Severity:    "warning",
			ActualValue: m.Brightness,
			Threshold:   qv.thresholds.MinBrightness,
		})
	case m.Brightness > qv.thresholds.MaxBrightness && !blank:
		issues = append(issues, QualityIssue{
			Type:        "too_bright",
			Message:     "Image is too bright. Avoid glare on the page.",
			Severity:    "warning",
			ActualValue: m.Brightness,
			Threshold:   qv.thresholds.MaxBrightness,
		})
	}

	return issues
}

// ConvertIssuesToMessages converts quality issues to simple string messages
func (qv *QualityValidator) ConvertIssuesToMessages(issues []QualityIssue) []string {
	if len(issues) == 0 {
		return nil
	}
	messages := make([]string, len(issues))
	for i, issue := range issues {
		messages[i] = issue.Message
	}
	return messages
}
