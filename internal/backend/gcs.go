package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/Helcaraxan/formulary/internal/logger"
)

type GCS struct {
	log     *zap.Logger
	timeout time.Duration
	client  *storage.Client

	Bucket string
}

func NewGCS(ctx context.Context, logBuilder *logger.Builder, bucket string) (*GCS, error) {
	log := logBuilder.Domain(logger.GCSDomain).With(zap.String("gcs-bucket", bucket))

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := storage.NewClient(ctx, option.WithScopes(storage.ScopeReadWrite))
	if err != nil {
		log.Error("Unable to set up a GCS storage client.", zap.Error(err))
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCS{
		log:     log,
		timeout: 10 * time.Minute,
		client:  client,
		Bucket:  bucket,
	}, nil
}

func (s *GCS) String() string {
	return "gs://" + s.Bucket
}

func (s *GCS) Fetch(ctx context.Context, key string) ([]byte, error) {
	log := s.log.With(zap.String("object", key))

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	src, err := s.client.Bucket(s.Bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			log.Debug("No such object in bucket.")
			return nil, fetchError(key, ErrNotExist)
		}
		log.Error("Unable to open reader on remote GCS object.", zap.Error(err))
		return nil, fetchError(key, err)
	}
	defer func() { _ = src.Close() }()

	raw, err := io.ReadAll(src)
	if err != nil {
		log.Error("Failed to download object content.", zap.Error(err))
		return nil, fetchError(key, err)
	}
	log.Debug("Finished downloading object from GCS.")
	return raw, nil
}

// Store uploads the content unless an object already exists for the key.
func (s *GCS) Store(ctx context.Context, key string, content []byte) (err error) {
	log := s.log.With(zap.String("object", key))

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	obj := s.client.Bucket(s.Bucket).Object(key)
	if _, err = obj.Attrs(ctx); err == nil {
		log.Debug("Object is already present.")
		return nil
	} else if !errors.Is(err, storage.ErrObjectNotExist) {
		log.Error("Can not check if the object already exists.", zap.Error(err))
		return err
	}

	dst := obj.NewWriter(ctx)
	if _, err = dst.Write(content); err != nil {
		_ = dst.Close()
		log.Error("Failed to upload object.", zap.Error(err))
		return err
	}
	if err = dst.Close(); err != nil {
		log.Error("Failed to finalise object upload.", zap.Error(err))
		return err
	}
	log.Debug("Finished uploading object to GCS.")
	return nil
}
