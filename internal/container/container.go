package container

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go-quiz-helper/internal/answer"
	"go-quiz-helper/internal/config"
	"go-quiz-helper/internal/factory"
	"go-quiz-helper/internal/logger"
	"go-quiz-helper/internal/observer"
	"go-quiz-helper/internal/ocr"
	"go-quiz-helper/internal/ocr/tesseract"
	"go-quiz-helper/internal/repository"
	"go-quiz-helper/internal/service"
	"go-quiz-helper/internal/transport"
)

// Container holds all application dependencies
type Container struct {
	config   *config.Config
	sessions repository.SessionRepository
	engine   ocr.Engine
	metrics  *observer.MetricsObserver
	workflow service.CaptureWorkflow
	handler  http.Handler
}

// NewContainer builds the dependency graph for cfg
func NewContainer(cfg *config.Config) (*Container, error) {
	logger.SetLevel(cfg.LogLevel)

	components := factory.NewComponentFactory(cfg)
	imageSource, err := components.SourceFactory.CreateSource(cfg.ImageSource)
	if err != nil {
		return nil, fmt.Errorf("failed to create image source: %w", err)
	}

	engine, err := tesseract.New(cfg.OCRLanguage, cfg.OCRPageSegMode)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OCR engine: %w", err)
	}

	metrics := observer.NewMetricsObserver()
	events := observer.NewEventPublisher()
	events.Subscribe(observer.NewLoggingObserver(logger.Logger))
	events.Subscribe(metrics)

	sessions := repository.NewMemorySessionRepository()
	workflow := service.NewCaptureWorkflow(service.Dependencies{
		Sessions:  sessions,
		Source:    imageSource,
		Inspector: components.AnalyzerFactory.CreateInspector(),
		Engine:    engine,
		Answers:   answer.NewHTTPClient(cfg.AnswerAPIURL, cfg.AnswerTimeout),
		Events:    events,
		Language:  cfg.OCRLanguage,
	})

	return &Container{
		config:   cfg,
		sessions: sessions,
		engine:   engine,
		metrics:  metrics,
		workflow: workflow,
		handler:  transport.NewHandler(workflow, metrics, cfg),
	}, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// ExpireSessions drops idle sessions every interval until ctx is done. It is
// a no-op when SessionTTL is zero.
func (c *Container) ExpireSessions(ctx context.Context, interval time.Duration) {
	ttl := c.config.SessionTTL
	if ttl <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.sessions.ExpireIdle(ttl); n > 0 {
				logger.WithField("expired", n).WithField("remaining", c.sessions.Count()).
					Info("Expired idle sessions")
			}
		}
	}
}

// Close releases the OCR engine
func (c *Container) Close() error {
	return c.engine.Close()
}
