package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds the S3-compatible storage settings
type Config struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Bucket     string
	Secure     bool
	PublicBase string // Optional base URL objects are served from
	Region     string
}

// Store uploads alert snapshots to an S3-compatible bucket
type Store struct {
	client *minio.Client
	bucket string
	base   string
}

// New creates a store for cfg. The bucket is not touched until EnsureBucket.
func New(cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	base := strings.TrimRight(cfg.PublicBase, "/")
	if base == "" {
		scheme := "http"
		if cfg.Secure {
			scheme = "https"
		}
		base = scheme + "://" + cfg.Endpoint
	}

	return &Store{client: client, bucket: cfg.Bucket, base: base}, nil
}

// EnsureBucket creates the bucket if it does not exist
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	log.Printf("[ObjectStore] Created bucket %s", s.bucket)
	return nil
}

// SnapshotKey returns the object key for a snapshot taken by cameraID at t
func SnapshotKey(cameraID string, t time.Time) string {
	if cameraID == "" {
		cameraID = "default"
	}
	return path.Join("alerts", cameraID, t.UTC().Format("2006/01/02"), uuid.New().String()+".jpg")
}

// PutSnapshot uploads a JPEG and returns the URL it can be fetched from
func (s *Store) PutSnapshot(ctx context.Context, key string, jpeg []byte) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(jpeg), int64(len(jpeg)),
		minio.PutObjectOptions{
			ContentType:  "image/jpeg",
			CacheControl: "public, max-age=86400",
		})
	if err != nil {
		return "", fmt.Errorf("failed to upload snapshot: %w", err)
	}
	return s.URL(key), nil
}

// URL returns the public URL of an object
func (s *Store) URL(key string) string {
	return s.base + "/" + url.PathEscape(s.bucket) + "/" + escapeKey(key)
}

// Remove deletes an object
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

// Ping checks that the bucket is reachable
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
