package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/sirupsen/logrus"

	"go-quiz-helper/internal/config"
	apperrors "go-quiz-helper/internal/errors"
	"go-quiz-helper/internal/logger"
	"go-quiz-helper/internal/service"
	"go-quiz-helper/internal/source"
	"go-quiz-helper/pkg/models"
)

const version = "1.0.0"

// MetricsProvider exposes workflow counters for the metrics endpoint
type MetricsProvider interface {
	GetMetrics() map[string]interface{}
}

func NewHandler(workflow service.CaptureWorkflow, metrics MetricsProvider, cfg *config.Config) http.Handler {
	r := gin.New()

	r.Use(
		gin.Recovery(),
		requestLogger(),
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	r.GET("/health", healthCheck(workflow))
	r.GET("/metrics", metricsHandler(metrics))

	api := r.Group("/api/sessions")
	api.POST("", createSession(workflow))
	api.GET("/:id", getSession(workflow))
	api.DELETE("/:id", deleteSession(workflow))
	api.POST("/:id/capture", capture(workflow, cfg))
	api.POST("/:id/retake", retake(workflow))

	return r
}

func createSession(w service.CaptureWorkflow) gin.HandlerFunc {
	return func(c *gin.Context) {
		view := w.CreateSession()
		logger.WithField("session_id", view.ID).Info("Session created")
		c.JSON(http.StatusCreated, view)
	}
}

func getSession(w service.CaptureWorkflow) gin.HandlerFunc {
	return func(c *gin.Context) {
		view, err := w.GetSession(c.Param("id"))
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "failed to load session", err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

func deleteSession(w service.CaptureWorkflow) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := w.DeleteSession(c.Param("id")); err != nil {
			respondError(c, apperrors.GetStatusCode(err), "failed to delete session", err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func capture(w service.CaptureWorkflow, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		sessionID := c.Param("id")

		var form models.CaptureRequest
		if err := c.ShouldBindWith(&form, binding.Form); err != nil {
			status := http.StatusBadRequest
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			respondError(c, status, "invalid capture request",
				apperrors.NewValidationError("invalid capture form", err))
			return
		}

		req := source.Request{BlobName: form.BlobName}
		file, header, err := c.Request.FormFile("image")
		switch {
		case err == nil:
			defer file.Close()
			req.File = file
			req.FileName = header.Filename
			req.ContentType = header.Header.Get("Content-Type")
		case isMissingForm(err):
			// Pull sources need no file; the upload source reports a capture error
		default:
			respondError(c, http.StatusBadRequest, "invalid capture request",
				apperrors.NewValidationError("unreadable image part", err))
			return
		}

		view, err := w.Capture(ctx, sessionID, req, form.ExpectedText)

		fields := logrus.Fields{
			"session_id":         sessionID,
			"source":             w.SourceName(),
			"processing_time_ms": time.Since(startTime).Milliseconds(),
		}
		if err != nil {
			if view.ID == "" {
				respondError(c, apperrors.GetStatusCode(err), "capture failed", err)
				return
			}
			logger.WithError(err).WithFields(fields).Warn("Capture finished with error")
			c.JSON(apperrors.GetStatusCode(err), view)
			return
		}

		fields["answered"] = view.Answer != ""
		logger.WithFields(fields).Info("Capture completed")
		c.JSON(http.StatusOK, view)
	}
}

func retake(w service.CaptureWorkflow) gin.HandlerFunc {
	return func(c *gin.Context) {
		view, err := w.Retake(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "failed to reset session", err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

func healthCheck(w service.CaptureWorkflow) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.HealthResponse{
			Status:      "available",
			Version:     version,
			Time:        time.Now().UTC().Format(time.RFC3339),
			ImageSource: w.SourceName(),
			OCREngine:   w.EngineName(),
			Sessions:    w.SessionCount(),
		})
	}
}

func metricsHandler(m MetricsProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.JSON(http.StatusOK, gin.H{})
			return
		}
		c.JSON(http.StatusOK, m.GetMetrics())
	}
}

// isMissingForm reports errors that only mean the client sent no form or file
func isMissingForm(err error) bool {
	return errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart)
}

// Middleware and helper functions
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.FullPath(),
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		}).Debug("Request handled")
	}
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last()
			respondError(c, determineStatusCode(err.Err), "request processing failed", err.Err)
		}
	}
}

func determineStatusCode(err error) int {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err in full and answers with the fixed user message
func respondError(c *gin.Context, code int, message string, err error) {
	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	}).Error("Request failed")

	userMessage := apperrors.UserMessage(err)
	switch {
	case apperrors.IsType(err, apperrors.ErrorTypeNotFound),
		apperrors.IsType(err, apperrors.ErrorTypeValidation),
		apperrors.IsType(err, apperrors.ErrorTypeConflict):
		userMessage = fmt.Sprintf("%s: %s", message, appMessage(err))
	}

	c.AbortWithStatusJSON(code, models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: userMessage,
	})
}

func appMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
