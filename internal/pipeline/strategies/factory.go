package strategies

import (
	"fmt"

	"github.com/NarenCandy/wild-animal-detection/internal/pipeline"
)

// Create builds a detection strategy from the effective configuration
func Create(config *pipeline.EffectiveConfig) (pipeline.DetectionStrategy, error) {
	if config == nil {
		return NewIntervalStrategy(DefaultSampleEvery), nil
	}

	switch config.Mode {
	case pipeline.DetectionModeDisabled:
		return NewDisabledStrategy(), nil

	case pipeline.DetectionModeInterval, "":
		return NewIntervalStrategy(config.SampleEvery), nil

	case pipeline.DetectionModeContinuous:
		return NewContinuousStrategy(config.MinInterval), nil

	case pipeline.DetectionModeScheduled:
		return NewScheduledStrategy(config.ScheduleInterval), nil

	default:
		return nil, fmt.Errorf("unknown detection mode: %s", config.Mode)
	}
}

// CreateFromMode creates a strategy from just a mode and default settings
func CreateFromMode(mode pipeline.DetectionMode) (pipeline.DetectionStrategy, error) {
	defaults := pipeline.DefaultGlobalConfig()
	return Create(&pipeline.EffectiveConfig{
		Mode:             mode,
		SampleEvery:      defaults.SampleEvery,
		ScheduleInterval: defaults.ScheduleInterval,
		MinInterval:      defaults.MinInterval,
	})
}
