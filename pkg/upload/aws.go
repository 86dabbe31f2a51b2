// Package upload resolves AWS credential material for AMI uploads performed
// by the builder container. The upload itself happens inside the container;
// this package only locates the credentials directory to mount and runs a
// best-effort preflight against the target bucket.
package upload

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bootcdev/diskctl/pkg/errors"
)

// CredentialsDir returns the host directory holding AWS shared credentials,
// preferring an explicit override from configuration.
func CredentialsDir(override string) string {
	if override != "" {
		return override
	}
	return filepath.Dir(awsconfig.DefaultSharedCredentialsFilename())
}

// CheckBucket verifies the target bucket is reachable with the host's
// credentials. Failures are reported to the caller for logging only; an
// unreachable bucket does not block the build, because the builder container
// is the component that performs and reports the upload.
func CheckBucket(ctx context.Context, bucket, region string) error {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return errors.Wrap(err, "failed to load AWS config")
	}

	client := s3.NewFromConfig(cfg)
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return errors.Wrapf(err, "bucket %s not reachable", bucket)
	}

	slog.Info("aws_bucket_reachable", "bucket", bucket, "region", region)
	return nil
}
