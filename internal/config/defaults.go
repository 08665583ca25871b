package config

import (
	"time"

	"github.com/NarenCandy/wild-animal-detection/internal/engine"
	"github.com/NarenCandy/wild-animal-detection/internal/severity"
)

func DefaultConfig() Config {
	eng := engine.DefaultConfig()
	cooldowns := severity.DefaultCooldowns()

	classes := make(map[string]string, len(eng.Classes))
	for label, level := range eng.Classes {
		classes[label] = string(level)
	}

	return Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8000,
		},
		Database: DatabaseConfig{
			DSN:               "wildwatch.db",
			Retention:         30 * 24 * time.Hour,
			RetentionInterval: time.Hour,
		},
		Auth: AuthConfig{
			JWTExpiry: 24 * time.Hour,
		},
		Engine: EngineConfig{
			ConfidenceThreshold: eng.ConfidenceThreshold,
			ProximityThreshold:  eng.ProximityThreshold,
			SimilarityThreshold: eng.SimilarityThreshold,
			Classes:             classes,
			HumanLabels:         eng.HumanLabels,
			Cooldowns: CooldownConfig{
				Critical: cooldowns[severity.Critical],
				High:     cooldowns[severity.High],
				Medium:   cooldowns[severity.Medium],
				Low:      cooldowns[severity.Low],
			},
		},
		Sampler: SamplerConfig{
			Mode:             "interval",
			SampleEvery:      5,
			ScheduleInterval: time.Second,
			DetectTimeout:    15 * time.Second,
		},
		Camera: CameraConfig{
			ID:     "farm-cam",
			Device: "/dev/video0",
			FPS:    10,
			Width:  640,
			Height: 480,
		},
		Detector: DetectorConfig{
			Backends:     []string{"yolo"},
			YOLOEndpoint: "http://localhost:8081",
			Timeout:      15 * time.Second,
		},
		Storage: StorageConfig{
			Bucket: "wildwatch-alerts",
		},
		Kafka: KafkaConfig{
			Topic:         "wildwatch.alerts",
			ClientID:      "wildwatch",
			RelayInterval: 2 * time.Second,
		},
		Dispatch: DispatchConfig{
			QueueSize:  32,
			Workers:    2,
			JobTimeout: 30 * time.Second,
		},
		API: APIConfig{
			BaseURL:      "http://localhost:8000",
			PollInterval: 5 * time.Second,
		},
	}
}
