package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"go-quiz-helper/pkg/validation"
)

// Image source kinds selectable through IMAGE_SOURCE
const (
	SourceUpload = "upload"
	SourceCamera = "camera"
	SourceAzure  = "azure"
)

const DefaultAnswerAPIURL = "https://quizcracker-backend.vercel.app/api/get-answer"

type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	LogLevel           string

	// Remote answer API
	AnswerAPIURL  string
	AnswerTimeout time.Duration

	// Image acquisition
	ImageSource        string
	MaxImageSize       int64
	MaxImagePixels     int64
	CameraSnapshotURL  string
	CameraFetchTimeout time.Duration
	AzureAccount       string
	AzureKey           string
	AzureContainer     string
	AzureDefaultBlob   string

	// Recognition
	OCRLanguage    string
	OCRPageSegMode int

	// Sessions idle longer than this are dropped; zero disables expiry
	SessionTTL time.Duration
}

func (c *Config) ServerAddress() string {
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Host:               getEnvOrDefault("HOST", "0.0.0.0"),
		Port:               getEnvOrDefault("PORT", "8080"),
		RequestTimeout:     parseDurationOrDefault("REQUEST_TIMEOUT", 90*time.Second),
		MaxRequestBodySize: parseIntOrDefault("MAX_REQUEST_BODY_SIZE", 12*1024*1024), // 12MB
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),
		AnswerAPIURL:       getEnvOrDefault("ANSWER_API_URL", DefaultAnswerAPIURL),
		AnswerTimeout:      parseDurationOrDefault("ANSWER_TIMEOUT", 30*time.Second),
		ImageSource:        strings.ToLower(getEnvOrDefault("IMAGE_SOURCE", SourceUpload)),
		MaxImageSize:       parseIntOrDefault("MAX_IMAGE_SIZE", 10*1024*1024), // 10MB
		MaxImagePixels:     parseIntOrDefault("MAX_IMAGE_PIXELS", 40_000_000),
		CameraSnapshotURL:  os.Getenv("CAMERA_SNAPSHOT_URL"),
		CameraFetchTimeout: parseDurationOrDefault("CAMERA_FETCH_TIMEOUT", 15*time.Second),
		AzureAccount:       os.Getenv("AZURE_STORAGE_ACCOUNT"),
		AzureKey:           os.Getenv("AZURE_STORAGE_KEY"),
		AzureContainer:     os.Getenv("AZURE_CONTAINER"),
		AzureDefaultBlob:   os.Getenv("AZURE_DEFAULT_BLOB"),
		OCRLanguage:        getEnvOrDefault("OCR_LANGUAGE", "eng"),
		OCRPageSegMode:     int(parseIntOrDefault("OCR_PAGE_SEG_MODE", 3)),
		SessionTTL:         parseDurationOrDefault("SESSION_TTL", 30*time.Minute),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded values and the settings the selected image
// source depends on
func (c *Config) Validate() error {
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.MaxImageSize <= 0 || c.MaxImageSize > c.MaxRequestBodySize {
		return fmt.Errorf("MAX_IMAGE_SIZE must be > 0 and <= MAX_REQUEST_BODY_SIZE (got %d)", c.MaxImageSize)
	}
	if c.MaxImagePixels <= 0 {
		return fmt.Errorf("MAX_IMAGE_PIXELS must be > 0 (got %d)", c.MaxImagePixels)
	}
	if c.RequestTimeout <= 0 || c.AnswerTimeout <= 0 || c.CameraFetchTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, answer=%s, camera=%s)",
			c.RequestTimeout, c.AnswerTimeout, c.CameraFetchTimeout)
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("SESSION_TTL must be >= 0 (got %s)", c.SessionTTL)
	}
	if c.OCRPageSegMode < 0 || c.OCRPageSegMode > 13 {
		return fmt.Errorf("OCR_PAGE_SEG_MODE must be within 0-13 (got %d)", c.OCRPageSegMode)
	}
	if strings.TrimSpace(c.OCRLanguage) == "" {
		return fmt.Errorf("OCR_LANGUAGE must not be empty")
	}

	urls := validation.NewURLValidator()
	if err := urls.ValidateEndpoint(c.AnswerAPIURL); err != nil {
		return fmt.Errorf("invalid ANSWER_API_URL %q: %w", c.AnswerAPIURL, err)
	}

	switch c.ImageSource {
	case SourceUpload:
	case SourceCamera:
		if err := urls.ValidateEndpoint(c.CameraSnapshotURL); err != nil {
			return fmt.Errorf("invalid CAMERA_SNAPSHOT_URL %q: %w", c.CameraSnapshotURL, err)
		}
	case SourceAzure:
		if c.AzureAccount == "" || c.AzureKey == "" || c.AzureContainer == "" {
			return fmt.Errorf("IMAGE_SOURCE=azure requires AZURE_STORAGE_ACCOUNT, AZURE_STORAGE_KEY and AZURE_CONTAINER")
		}
	default:
		return fmt.Errorf("unsupported IMAGE_SOURCE: %q", c.ImageSource)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration >= 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
