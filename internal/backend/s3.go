package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/Helcaraxan/formulary/internal/logger"
)

type S3 struct {
	log     *zap.Logger
	timeout time.Duration
	client  *s3.Client

	Bucket string
}

// NewS3 uses the AWS SDK's default credential and region resolution.
func NewS3(ctx context.Context, logBuilder *logger.Builder, bucket string) (*S3, error) {
	log := logBuilder.Domain(logger.S3Domain).With(zap.String("s3-bucket", bucket))

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	cfg, err := aws_config.LoadDefaultConfig(ctx)
	if err != nil {
		log.Error("Failed to load AWS configuration from environment.", zap.Error(err))
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	return &S3{
		log:     log,
		timeout: 10 * time.Minute,
		client:  s3.NewFromConfig(cfg),
		Bucket:  bucket,
	}, nil
}

func (s *S3) String() string {
	return "s3://" + s.Bucket
}

func (s *S3) Fetch(ctx context.Context, key string) ([]byte, error) {
	log := s.log.With(zap.String("object", key))

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			log.Debug("No such object available in S3.")
			return nil, fetchError(key, ErrNotExist)
		}
		log.Error("Failed to lookup object on S3.", zap.Error(err))
		return nil, fetchError(key, err)
	}
	defer func() { _ = out.Body.Close() }()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		log.Error("Failed to download object content from S3.", zap.Error(err))
		return nil, fetchError(key, err)
	}
	log.Debug("Finished downloading object from S3.")
	return raw, nil
}

// Store uploads the content unless an object already exists for the key.
func (s *S3) Store(ctx context.Context, key string, content []byte) error {
	log := s.log.With(zap.String("object", key))

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		log.Debug("Object is already present.")
		return nil
	}
	var notFound *types.NotFound
	if !errors.As(err, &notFound) {
		log.Error("Failed to check if the object already exists.", zap.Error(err))
		return err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(content),
	})
	if err != nil {
		log.Error("Failed to store object in S3.", zap.Error(err))
		return err
	}
	log.Debug("Finished uploading object to S3.")
	return nil
}
