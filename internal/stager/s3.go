package stager

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Stager stages files against S3 using the transfer manager, which
// splits large FASTQ/BAM objects into concurrent range requests.
type S3Stager struct {
	downloader *manager.Downloader
	uploader   *manager.Uploader

	// outBucket and outPrefix locate stage-out destinations; empty
	// outBucket disables stage-out.
	outBucket string
	outPrefix string
}

// NewS3Stager creates an S3Stager using the ambient AWS configuration
// (environment, shared config, instance role). outURI is an optional
// s3://bucket/prefix destination for stage-out.
func NewS3Stager(ctx context.Context, outURI string) (*S3Stager, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)

	st := &S3Stager{
		downloader: manager.NewDownloader(client),
		uploader:   manager.NewUploader(client),
	}
	if outURI != "" {
		bucket, prefix, err := splitS3URI(outURI)
		if err != nil {
			return nil, err
		}
		st.outBucket = bucket
		st.outPrefix = prefix
	}
	return st, nil
}

// StageIn downloads an s3:// object to destPath.
func (s *S3Stager) StageIn(ctx context.Context, location string, destPath string) error {
	bucket, key, err := splitS3URI(location)
	if err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("s3 stager: %q has no object key", location)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("s3 stager: mkdir: %w", err)
	}
	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("s3 stager: create %s: %w", destPath, err)
	}
	defer f.Close()

	_, err = s.downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 stager: download s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// StageOut uploads srcPath under the configured bucket and prefix,
// namespaced by invocation ID, and returns the s3:// URI.
func (s *S3Stager) StageOut(ctx context.Context, srcPath string, invocationID string) (string, error) {
	if s.outBucket == "" {
		return "", fmt.Errorf("s3 stager: no stage-out destination configured")
	}

	f, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("s3 stager: open %s: %w", srcPath, err)
	}
	defer f.Close()

	key := path.Join(s.outPrefix, invocationID, filepath.Base(srcPath))
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.outBucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return "", fmt.Errorf("s3 stager: upload s3://%s/%s: %w", s.outBucket, key, err)
	}
	return BuildLocation(SchemeS3, s.outBucket+"/"+key), nil
}

// splitS3URI splits s3://bucket/key into bucket and key.
func splitS3URI(uri string) (bucket, key string, err error) {
	scheme, rest := ParseScheme(uri)
	if scheme != SchemeS3 {
		return "", "", fmt.Errorf("s3 stager: not an s3 URI: %q", uri)
	}
	parts := strings.SplitN(rest, "/", 2)
	bucket = parts[0]
	if bucket == "" {
		return "", "", fmt.Errorf("s3 stager: %q has no bucket", uri)
	}
	if len(parts) == 2 {
		key = parts[1]
	}
	return bucket, key, nil
}
