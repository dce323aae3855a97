package archive

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewS3Client builds an S3 client for the given region using the default AWS
// credential chain (env vars, shared config, IAM role). Returns nil, nil when
// region is empty so callers can treat archival-without-S3 as the default.
func NewS3Client(ctx context.Context, region string) (*s3.Client, error) {
	if region == "" {
		return nil, nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}

	return s3.NewFromConfig(cfg), nil
}
