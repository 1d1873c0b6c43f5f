package gcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/listingtrust-backend/internal/observability"
	"github.com/yungbote/listingtrust-backend/internal/platform/ctxutil"
	"github.com/yungbote/listingtrust-backend/internal/platform/httpx"
	"github.com/yungbote/listingtrust-backend/internal/platform/logger"
)

type BucketConfig struct {
	Name         string
	CDNDomain    string
	EmulatorHost string
	Credentials  string
	// Timeout bounds each upload.
	Timeout      time.Duration
}

// ImageStore keeps verified listing images. Put returns the public URL of the copy.
type ImageStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Close() error
}

type bucketService struct {
	log       *logger.Logger
	client    *storage.Client
	bucket    string
	cdnDomain string
	emulator  string
	timeout   time.Duration
}

func NewBucketService(log *logger.Logger, cfg BucketConfig) (ImageStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, fmt.Errorf("missing GCS_BUCKET")
	}
	opts := ClientOptions(cfg.Credentials)
	emulator := strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/")
	if emulator != "" {
		if !strings.Contains(emulator, "://") {
			emulator = "http://" + emulator
		}
		opts = []option.ClientOption{
			option.WithEndpoint(emulator + "/storage/v1/"),
			option.WithoutAuthentication(),
		}
	}
	client, err := storage.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	serviceLog := log.With("service", "BucketService")
	serviceLog.Info("Object storage initialized", "bucket", cfg.Name, "emulator_host", emulator)
	return &bucketService{
		log:       serviceLog,
		client:    client,
		bucket:    cfg.Name,
		cdnDomain: strings.TrimSpace(cfg.CDNDomain),
		emulator:  emulator,
		timeout:   timeout,
	}, nil
}

func (s *bucketService) Put(ctx context.Context, key, contentType string, data []byte) (ref string, err error) {
	start := time.Now()
	defer func() {
		observability.Current().ObserveExternalCall("gcs_upload", httpx.Classify(err), time.Since(start))
	}()

	ctx, cancel := context.WithTimeout(ctxutil.Default(ctx), s.timeout)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	w.CacheControl = "public, max-age=31536000"
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs close %s: %w", key, err)
	}
	return s.PublicURL(key), nil
}

func (s *bucketService) PublicURL(key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	if s.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", s.cdnDomain, strings.TrimPrefix(escaped, "/"))
	}
	if s.emulator != "" {
		return fmt.Sprintf("%s/%s/%s", s.emulator, s.bucket, strings.TrimPrefix(escaped, "/"))
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, strings.TrimPrefix(escaped, "/"))
}

func (s *bucketService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
