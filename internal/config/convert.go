package config

import (
	"fmt"
	"net"
	"strconv"

	"github.com/NarenCandy/wild-animal-detection/internal/detection"
	"github.com/NarenCandy/wild-animal-detection/internal/dispatch"
	"github.com/NarenCandy/wild-animal-detection/internal/engine"
	"github.com/NarenCandy/wild-animal-detection/internal/notify"
	"github.com/NarenCandy/wild-animal-detection/internal/objectstore"
	"github.com/NarenCandy/wild-animal-detection/internal/pipeline"
	"github.com/NarenCandy/wild-animal-detection/internal/pipeline/detectors"
	"github.com/NarenCandy/wild-animal-detection/internal/severity"
)

// Addr returns the listen address
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// EngineConfig returns the decision engine settings
func (c *Config) EngineConfig() (engine.Config, error) {
	classes, err := severity.ParseTable(c.Engine.Classes)
	if err != nil {
		return engine.Config{}, fmt.Errorf("invalid class table: %w", err)
	}
	cd := c.Engine.Cooldowns
	return engine.Config{
		ConfidenceThreshold: c.Engine.ConfidenceThreshold,
		ProximityThreshold:  c.Engine.ProximityThreshold,
		SimilarityThreshold: c.Engine.SimilarityThreshold,
		Cooldowns: severity.Cooldowns{
			severity.Critical: cd.Critical,
			severity.High:     cd.High,
			severity.Medium:   cd.Medium,
			severity.Low:      cd.Low,
		},
		Classes:     classes,
		HumanLabels: c.Engine.HumanLabels,
	}, nil
}

// Detection returns the global sampling settings
func (c *Config) Detection() *pipeline.GlobalDetectionConfig {
	return &pipeline.GlobalDetectionConfig{
		Mode:             pipeline.DetectionMode(c.Sampler.Mode),
		Detectors:        c.Detector.Backends,
		SampleEvery:      c.Sampler.SampleEvery,
		ScheduleInterval: c.Sampler.ScheduleInterval,
		MinInterval:      c.Sampler.MinInterval,
		DetectTimeout:    c.Sampler.DetectTimeout,
	}
}

// OneSignal is enabled when both the app id and the REST key are set
func (c *Config) OneSignal() notify.OneSignalConfig {
	o := c.Notify.OneSignal
	return notify.OneSignalConfig{
		Enabled:          o.AppID != "" && o.RESTKey != "",
		AppID:            o.AppID,
		RESTKey:          o.RESTKey,
		AndroidChannelID: o.AndroidChannelID,
	}
}

// Telegram is enabled when both the bot token and the chat id are set
func (c *Config) Telegram() notify.TelegramConfig {
	t := c.Notify.Telegram
	return notify.TelegramConfig{
		BotToken: t.BotToken,
		ChatID:   t.ChatID,
		Enabled:  t.BotToken != "" && t.ChatID != "",
	}
}

func (c *Config) ObjectStore() objectstore.Config {
	s := c.Storage
	return objectstore.Config{
		Endpoint:   s.Endpoint,
		AccessKey:  s.AccessKey,
		SecretKey:  s.SecretKey,
		Bucket:     s.Bucket,
		Secure:     s.Secure,
		PublicBase: s.PublicBase,
		Region:     s.Region,
	}
}

func (c *Config) DispatchConfig() dispatch.Config {
	return dispatch.Config{
		QueueSize:  c.Dispatch.QueueSize,
		Workers:    c.Dispatch.Workers,
		JobTimeout: c.Dispatch.JobTimeout,
	}
}

// Detectors builds a registry holding the configured backends
func (c *Config) Detectors() (*detectors.Registry, error) {
	registry := detectors.NewRegistry()
	for _, name := range c.Detector.Backends {
		var d pipeline.Detector
		switch name {
		case "yolo":
			d = detectors.NewYOLOAdapter(detection.NewYOLODetectorWithConfig(detection.YOLOConfig{
				Enabled:         true,
				ServiceEndpoint: c.Detector.YOLOEndpoint,
				ClassesFilter:   c.Detector.ClassesFilter,
				Timeout:         c.Detector.Timeout,
			}))
		case "grpc":
			gd, err := detection.NewGRPCDetector(detection.GRPCDetectorConfig{Endpoint: c.Detector.GRPCEndpoint})
			if err != nil {
				registry.Close()
				return nil, err
			}
			d = detectors.NewGRPCAdapter(gd)
		default:
			registry.Close()
			return nil, fmt.Errorf("unknown detector backend %q", name)
		}
		if err := registry.Register(d); err != nil {
			registry.Close()
			return nil, err
		}
	}
	return registry, nil
}
