// Package gcs stores the catalog document as a Google Cloud Storage object.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/clew-freshness/internal/catalog"
)

// Config captures the bucket and object holding the catalog.
type Config struct {
	Bucket string `mapstructure:"bucket"`
	Object string `mapstructure:"object"`
}

// ClientFactory creates GCS clients, allowing tests to inject a fake transport.
type ClientFactory interface {
	NewClient(ctx context.Context) (*storage.Client, error)
}

// DefaultClientFactory uses Application Default Credentials.
type DefaultClientFactory struct{}

// NewClient creates a GCS client.
func (DefaultClientFactory) NewClient(ctx context.Context) (*storage.Client, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("new storage client: %w", err)
	}
	return client, nil
}

// Store reads and writes the catalog object.
type Store struct {
	client *storage.Client
	bucket string
	object string
	logger *zap.Logger
}

// New creates a GCS-backed catalog store.
func New(ctx context.Context, factory ClientFactory, cfg Config, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if strings.TrimSpace(cfg.Object) == "" {
		return nil, fmt.Errorf("object name is required")
	}
	if factory == nil {
		factory = DefaultClientFactory{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := factory.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &Store{client: client, bucket: cfg.Bucket, object: cfg.Object, logger: logger}, nil
}

// Load downloads and decodes the catalog.
func (s *Store) Load(ctx context.Context) (*catalog.Catalog, error) {
	reader, err := s.client.Bucket(s.bucket).Object(s.object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("open gs://%s/%s: %w", s.bucket, s.object, catalog.ErrNotFound)
		}
		return nil, fmt.Errorf("open gs://%s/%s: %w", s.bucket, s.object, err)
	}
	defer func() {
		if cerr := reader.Close(); cerr != nil {
			s.logger.Warn("failed to close GCS reader", zap.Error(cerr))
		}
	}()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read gs://%s/%s: %w", s.bucket, s.object, err)
	}
	c, err := catalog.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("load gs://%s/%s: %w", s.bucket, s.object, err)
	}
	return c, nil
}

// Save uploads the encoded catalog. The object only changes once the writer
// is closed successfully, so a failed upload leaves the previous version.
func (s *Store) Save(ctx context.Context, c *catalog.Catalog) error {
	data, err := catalog.Encode(c)
	if err != nil {
		return err
	}
	writer := s.client.Bucket(s.bucket).Object(s.object).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := writer.Write(data); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close storage client: %w", err)
	}
	return nil
}
