// Package config loads wildwatch settings from a YAML or TOML file and the
// environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Auth     AuthConfig     `yaml:"auth" toml:"auth"`
	Engine   EngineConfig   `yaml:"engine" toml:"engine"`
	Sampler  SamplerConfig  `yaml:"sampler" toml:"sampler"`
	Camera   CameraConfig   `yaml:"camera" toml:"camera"`
	Detector DetectorConfig `yaml:"detector" toml:"detector"`
	Storage  StorageConfig  `yaml:"storage" toml:"storage"`
	Notify   NotifyConfig   `yaml:"notify" toml:"notify"`
	Kafka    KafkaConfig    `yaml:"kafka" toml:"kafka"`
	Dispatch DispatchConfig `yaml:"dispatch" toml:"dispatch"`
	API      APIConfig      `yaml:"api" toml:"api"`
}

type ServerConfig struct {
	Host  string `yaml:"host" toml:"host" env:"WILDWATCH_HOST"`
	Port  int    `yaml:"port" toml:"port" env:"PORT"`
	Debug bool   `yaml:"debug" toml:"debug" env:"WILDWATCH_DEBUG"`
}

type DatabaseConfig struct {
	// DSN is a sqlite path or a postgres:// URL
	DSN               string        `yaml:"dsn" toml:"dsn" env:"DATABASE_DSN"`
	Retention         time.Duration `yaml:"retention" toml:"retention" env:"ALERT_RETENTION"`
	RetentionInterval time.Duration `yaml:"retention_interval" toml:"retention_interval" env:"ALERT_RETENTION_INTERVAL"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" toml:"jwt_secret" env:"JWT_SECRET"`
	JWTExpiry time.Duration `yaml:"jwt_expiry" toml:"jwt_expiry" env:"JWT_EXPIRY"`
}

type EngineConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold" toml:"confidence_threshold" env:"CONFIDENCE_THRESHOLD"`
	ProximityThreshold  float64 `yaml:"proximity_threshold" toml:"proximity_threshold" env:"PROXIMITY_THRESHOLD"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" toml:"similarity_threshold" env:"SIMILARITY_THRESHOLD"`
	// Classes maps model labels to alert levels, e.g. tiger: HIGH
	Classes     map[string]string `yaml:"classes" toml:"classes" env:"ALERT_CLASSES" envSeparator:"," envKeyValSeparator:":"`
	HumanLabels []string          `yaml:"human_labels" toml:"human_labels" env:"HUMAN_LABELS" envSeparator:","`
	Cooldowns   CooldownConfig    `yaml:"cooldowns" toml:"cooldowns"`
}

type CooldownConfig struct {
	Critical time.Duration `yaml:"critical" toml:"critical" env:"COOLDOWN_CRITICAL"`
	High     time.Duration `yaml:"high" toml:"high" env:"COOLDOWN_HIGH"`
	Medium   time.Duration `yaml:"medium" toml:"medium" env:"COOLDOWN_MEDIUM"`
	Low      time.Duration `yaml:"low" toml:"low" env:"COOLDOWN_LOW"`
}

type SamplerConfig struct {
	Mode             string        `yaml:"mode" toml:"mode" env:"DETECTION_MODE"`
	SampleEvery      int           `yaml:"sample_every" toml:"sample_every" env:"SAMPLE_EVERY"`
	ScheduleInterval time.Duration `yaml:"schedule_interval" toml:"schedule_interval" env:"SCHEDULE_INTERVAL"`
	MinInterval      time.Duration `yaml:"min_interval" toml:"min_interval" env:"MIN_DETECT_INTERVAL"`
	DetectTimeout    time.Duration `yaml:"detect_timeout" toml:"detect_timeout" env:"DETECT_TIMEOUT"`
}

type CameraConfig struct {
	ID     string `yaml:"id" toml:"id" env:"CAMERA_ID"`
	Device string `yaml:"device" toml:"device" env:"CAMERA_DEVICE"`
	FPS    int    `yaml:"fps" toml:"fps" env:"CAMERA_FPS"`
	Width  int    `yaml:"width" toml:"width" env:"CAMERA_WIDTH"`
	Height int    `yaml:"height" toml:"height" env:"CAMERA_HEIGHT"`
}

type DetectorConfig struct {
	// Backends lists detectors in order of preference: yolo, grpc
	Backends      []string      `yaml:"backends" toml:"backends" env:"DETECTORS" envSeparator:","`
	YOLOEndpoint  string        `yaml:"yolo_endpoint" toml:"yolo_endpoint" env:"YOLO_ENDPOINT"`
	GRPCEndpoint  string        `yaml:"grpc_endpoint" toml:"grpc_endpoint" env:"DETECTOR_GRPC_ENDPOINT"`
	ClassesFilter string        `yaml:"classes_filter" toml:"classes_filter" env:"YOLO_CLASSES_FILTER"`
	Timeout       time.Duration `yaml:"timeout" toml:"timeout" env:"DETECTOR_TIMEOUT"`
}

type StorageConfig struct {
	// Endpoint empty disables snapshot uploads
	Endpoint   string `yaml:"endpoint" toml:"endpoint" env:"MINIO_ENDPOINT"`
	AccessKey  string `yaml:"access_key" toml:"access_key" env:"MINIO_ACCESS_KEY"`
	SecretKey  string `yaml:"secret_key" toml:"secret_key" env:"MINIO_SECRET_KEY"`
	Bucket     string `yaml:"bucket" toml:"bucket" env:"MINIO_BUCKET"`
	Secure     bool   `yaml:"secure" toml:"secure" env:"MINIO_SECURE"`
	PublicBase string `yaml:"public_base" toml:"public_base" env:"MINIO_PUBLIC_BASE"`
	Region     string `yaml:"region" toml:"region" env:"MINIO_REGION"`
}

type NotifyConfig struct {
	OneSignal OneSignalConfig `yaml:"onesignal" toml:"onesignal"`
	Telegram  TelegramConfig  `yaml:"telegram" toml:"telegram"`
}

type OneSignalConfig struct {
	AppID            string `yaml:"app_id" toml:"app_id" env:"ONESIGNAL_APP_ID"`
	RESTKey          string `yaml:"rest_api_key" toml:"rest_api_key" env:"ONESIGNAL_REST_API_KEY"`
	AndroidChannelID string `yaml:"android_channel_id" toml:"android_channel_id" env:"ONESIGNAL_ANDROID_CHANNEL_ID"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token" toml:"bot_token" env:"TELEGRAM_BOT_TOKEN"`
	ChatID   string `yaml:"chat_id" toml:"chat_id" env:"TELEGRAM_CHAT_ID"`
}

type KafkaConfig struct {
	// Brokers empty disables event streaming
	Brokers       []string      `yaml:"brokers" toml:"brokers" env:"KAFKA_BROKERS" envSeparator:","`
	Topic         string        `yaml:"topic" toml:"topic" env:"KAFKA_ALERT_TOPIC"`
	ClientID      string        `yaml:"client_id" toml:"client_id" env:"KAFKA_CLIENT_ID"`
	RelayInterval time.Duration `yaml:"relay_interval" toml:"relay_interval" env:"OUTBOX_RELAY_INTERVAL"`
}

type DispatchConfig struct {
	QueueSize  int           `yaml:"queue_size" toml:"queue_size" env:"DISPATCH_QUEUE_SIZE"`
	Workers    int           `yaml:"workers" toml:"workers" env:"DISPATCH_WORKERS"`
	JobTimeout time.Duration `yaml:"job_timeout" toml:"job_timeout" env:"DISPATCH_JOB_TIMEOUT"`
}

// APIConfig is used by the standalone detector and the terminal viewer
type APIConfig struct {
	BaseURL      string        `yaml:"base_url" toml:"base_url" env:"API_BASE_URL"`
	Token        string        `yaml:"token" toml:"token" env:"API_TOKEN"`
	Email        string        `yaml:"email" toml:"email" env:"API_EMAIL"`
	Password     string        `yaml:"password" toml:"password" env:"API_PASSWORD"`
	PollInterval time.Duration `yaml:"poll_interval" toml:"poll_interval" env:"API_POLL_INTERVAL"`
}

type LoadResult struct {
	Config   Config
	Warnings []string
}

// Load reads path (which may be empty or missing), applies environment
// overrides and validates the result.
func Load(path string) (*LoadResult, error) {
	result := &LoadResult{Config: DefaultConfig()}

	if path != "" {
		warnings, err := decodeFile(path, &result.Config)
		if err != nil {
			return nil, err
		}
		result.Warnings = warnings
	}

	if err := env.Parse(&result.Config); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if err := validate(&result.Config); err != nil {
		return nil, err
	}
	return result, nil
}

func decodeFile(path string, cfg *Config) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
		var warnings []string
		for _, key := range md.Undecoded() {
			warnings = append(warnings, fmt.Sprintf("unknown config key: %q", key.String()))
		}
		return warnings, nil
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported config file type %q (want .yaml, .yml or .toml)", filepath.Ext(path))
	}
}
