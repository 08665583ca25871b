package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/NarenCandy/wild-animal-detection/internal/pipeline"
	"github.com/NarenCandy/wild-animal-detection/internal/severity"
)

var knownBackends = []string{"yolo", "grpc"}

var knownModes = []pipeline.DetectionMode{
	pipeline.DetectionModeDisabled,
	pipeline.DetectionModeInterval,
	pipeline.DetectionModeContinuous,
	pipeline.DetectionModeScheduled,
}

func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server port must be 1-65535, got %d", cfg.Server.Port))
	}
	if cfg.Database.DSN == "" {
		errs = append(errs, "database dsn is required")
	}
	if cfg.Database.Retention < 0 {
		errs = append(errs, fmt.Sprintf("database retention must not be negative, got %s", cfg.Database.Retention))
	}
	if cfg.Auth.JWTExpiry <= 0 {
		errs = append(errs, fmt.Sprintf("jwt_expiry must be positive, got %s", cfg.Auth.JWTExpiry))
	}

	e := cfg.Engine
	if e.ConfidenceThreshold < 0 || e.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Sprintf("confidence_threshold must be 0-1, got %g", e.ConfidenceThreshold))
	}
	if e.ProximityThreshold < 0 {
		errs = append(errs, fmt.Sprintf("proximity_threshold must not be negative, got %g", e.ProximityThreshold))
	}
	if e.SimilarityThreshold < 0 || e.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Sprintf("similarity_threshold must be 0-1, got %g", e.SimilarityThreshold))
	}
	if _, err := severity.ParseTable(e.Classes); err != nil {
		errs = append(errs, fmt.Sprintf("classes: %v", err))
	}
	cooldowns := []struct {
		name string
		d    time.Duration
	}{
		{"critical", e.Cooldowns.Critical},
		{"high", e.Cooldowns.High},
		{"medium", e.Cooldowns.Medium},
		{"low", e.Cooldowns.Low},
	}
	for _, c := range cooldowns {
		if c.d < 0 {
			errs = append(errs, fmt.Sprintf("%s cooldown must not be negative, got %s", c.name, c.d))
		}
	}

	if !lo.Contains(knownModes, pipeline.DetectionMode(cfg.Sampler.Mode)) {
		errs = append(errs, fmt.Sprintf("sampler mode must be one of %v, got %q", knownModes, cfg.Sampler.Mode))
	}
	if cfg.Sampler.SampleEvery < 1 {
		errs = append(errs, fmt.Sprintf("sample_every must be positive, got %d", cfg.Sampler.SampleEvery))
	}

	if cfg.Camera.Device == "" {
		errs = append(errs, "camera device is required")
	}
	if cfg.Camera.FPS < 1 {
		errs = append(errs, fmt.Sprintf("camera fps must be positive, got %d", cfg.Camera.FPS))
	}

	if len(cfg.Detector.Backends) == 0 {
		errs = append(errs, "at least one detector backend is required")
	}
	for _, b := range cfg.Detector.Backends {
		if !lo.Contains(knownBackends, b) {
			errs = append(errs, fmt.Sprintf("unknown detector backend %q (valid: %s)", b, strings.Join(knownBackends, ", ")))
		}
	}
	if lo.Contains(cfg.Detector.Backends, "yolo") && cfg.Detector.YOLOEndpoint == "" {
		errs = append(errs, "yolo_endpoint is required for the yolo backend")
	}
	if lo.Contains(cfg.Detector.Backends, "grpc") && cfg.Detector.GRPCEndpoint == "" {
		errs = append(errs, "grpc_endpoint is required for the grpc backend")
	}

	if cfg.Storage.Endpoint != "" && cfg.Storage.Bucket == "" {
		errs = append(errs, "storage bucket is required when an endpoint is set")
	}
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topic == "" {
		errs = append(errs, "kafka topic is required when brokers are set")
	}

	if cfg.Dispatch.QueueSize < 1 {
		errs = append(errs, fmt.Sprintf("dispatch queue_size must be positive, got %d", cfg.Dispatch.QueueSize))
	}
	if cfg.Dispatch.Workers < 1 {
		errs = append(errs, fmt.Sprintf("dispatch workers must be positive, got %d", cfg.Dispatch.Workers))
	}

	if u, err := url.Parse(cfg.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("api base_url must be an absolute URL, got %q", cfg.API.BaseURL))
	}

	if len(errs) > 0 {
		return errors.New("config validation: " + strings.Join(errs, "; "))
	}
	return nil
}
