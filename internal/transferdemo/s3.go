package transferdemo

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config names the bucket, region and optional static credentials an S3
// client is constructed from; permit-demo's --provider=s3 flags set only
// the bucket and region. Grounded in
// internal/cloud/providers/s3's NewS3Client, simplified: the teacher's
// version wraps an auto-refreshing Rescale credential provider, which has
// no equivalent here since this repo owns no API client of its own.
type S3Config struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Provider uploads each transfer as an S3 PutObject call.
type S3Provider struct {
	client *s3.Client
	bucket string
}

// NewS3Provider constructs an S3Provider from cfg. If AccessKeyID is set,
// static credentials are used; otherwise the SDK's default credential
// chain (environment, shared config, instance role) applies.
func NewS3Provider(ctx context.Context, cfg S3Config) (*S3Provider, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("transferdemo: S3Config.Bucket is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &S3Provider{client: s3.NewFromConfig(awsCfg), bucket: cfg.Bucket}, nil
}

// Name identifies this provider for logging/display.
func (p *S3Provider) Name() string { return "s3" }

// Upload puts t as an object keyed by its name, filled with zero bytes up
// to its declared size (this is a concurrency demo, not a transfer
// correctness test — the payload content is immaterial).
func (p *S3Provider) Upload(ctx context.Context, t Transfer) error {
	body := bytes.NewReader(make([]byte, t.Size))
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(t.Name),
		Body:   body,
	})
	return err
}
