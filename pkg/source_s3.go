package metacache

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3SourceStore stats paths against an S3 bucket. The object ETag serves as
// the content hash; keys ending in "/" are treated as folders.
type S3SourceStore struct {
	client *s3.Client
	config S3SourceConfig
}

func NewS3SourceStore(ctx context.Context, config S3SourceConfig) (*S3SourceStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(config.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			config.AccessKey,
			config.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// If a custom endpoint is provided, use it
	if config.EndpointURL != "" {
		cfg.BaseEndpoint = aws.String(config.EndpointURL)
	}

	return &S3SourceStore{
		client: s3.NewFromConfig(cfg),
		config: config,
	}, nil
}

func (s *S3SourceStore) StoreType() string {
	return SourceModeS3
}

func (s *S3SourceStore) Stat(ctx context.Context, path string) (*SourceStatus, error) {
	key := strings.TrimPrefix(path, "/")

	output, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.config.BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return nil, ErrSourceNotFound
		}
		return nil, err
	}

	status := &SourceStatus{
		Path:        path,
		IsFolder:    strings.HasSuffix(path, "/"),
		StoreType:   SourceModeS3,
		ContentHash: strings.Trim(aws.ToString(output.ETag), `"`),
	}
	if output.ContentLength != nil {
		status.Length = *output.ContentLength
	}
	if output.LastModified != nil {
		status.LastModified = *output.LastModified
	}

	return status, nil
}
