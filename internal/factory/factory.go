package factory

import (
	"fmt"

	"go-quiz-helper/internal/analyzer"
	"go-quiz-helper/internal/config"
	"go-quiz-helper/internal/source"
	"go-quiz-helper/pkg/validation"
)

// AnalyzerFactory creates capture quality inspectors
type AnalyzerFactory interface {
	CreateInspector() analyzer.Inspector
}

// SourceFactory creates image sources
type SourceFactory interface {
	CreateSource(sourceType string) (source.ImageSource, error)
}

type analyzerFactory struct {
	thresholds validation.QualityThresholds
}

// NewAnalyzerFactory creates a new analyzer factory
func NewAnalyzerFactory(thresholds validation.QualityThresholds) AnalyzerFactory {
	return &analyzerFactory{thresholds: thresholds}
}

func (f *analyzerFactory) CreateInspector() analyzer.Inspector {
	return analyzer.NewInspectorWithValidator(validation.NewQualityValidatorWithThresholds(f.thresholds))
}

type sourceFactory struct {
	cfg *config.Config
}

// NewSourceFactory creates a factory building sources from cfg
func NewSourceFactory(cfg *config.Config) SourceFactory {
	return &sourceFactory{cfg: cfg}
}

// CreateSource creates the image source named by sourceType
func (f *sourceFactory) CreateSource(sourceType string) (source.ImageSource, error) {
	limits := source.Limits{MaxBytes: f.cfg.MaxImageSize, MaxPixels: f.cfg.MaxImagePixels}

	switch sourceType {
	case config.SourceUpload:
		return source.NewUploadSource(limits), nil
	case config.SourceCamera:
		if f.cfg.CameraSnapshotURL == "" {
			return nil, fmt.Errorf("camera source needs a snapshot URL")
		}
		return source.NewCameraSource(f.cfg.CameraSnapshotURL, f.cfg.CameraFetchTimeout, limits), nil
	case config.SourceAzure:
		return source.NewAzureSource(
			f.cfg.AzureAccount,
			f.cfg.AzureKey,
			f.cfg.AzureContainer,
			f.cfg.AzureDefaultBlob,
			limits,
		)
	default:
		return nil, fmt.Errorf("unsupported image source: %s", sourceType)
	}
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	AnalyzerFactory AnalyzerFactory
	SourceFactory   SourceFactory
}

// NewComponentFactory creates a new component factory
func NewComponentFactory(cfg *config.Config) *ComponentFactory {
	return &ComponentFactory{
		AnalyzerFactory: NewAnalyzerFactory(validation.DefaultQualityThresholds()),
		SourceFactory:   NewSourceFactory(cfg),
	}
}
