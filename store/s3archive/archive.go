// Package s3archive copies raw webhook payloads to S3 or an S3-compatible
// service for forensic replay. It implements entitlement.RawArchive.
package s3archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dmitrymomot/paywall/pkg/entitlement"
)

var (
	ErrInvalidConfig      = errors.New("s3 archive: bucket and region are required")
	ErrFailedToLoadConfig = errors.New("s3 archive: failed to load aws config")
	ErrFailedToArchive    = errors.New("s3 archive: failed to put object")
)

// S3Client is the subset of *s3.Client used by Archive.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config is populated from ARCHIVE_S3_* environment variables.
type Config struct {
	Bucket         string        `env:"ARCHIVE_S3_BUCKET"`
	Region         string        `env:"ARCHIVE_S3_REGION" envDefault:"us-east-1"`
	Endpoint       string        `env:"ARCHIVE_S3_ENDPOINT"` // for S3-compatible services
	AccessKeyID    string        `env:"ARCHIVE_S3_ACCESS_KEY_ID"`
	SecretKey      string        `env:"ARCHIVE_S3_SECRET_KEY"`
	Prefix         string        `env:"ARCHIVE_S3_PREFIX" envDefault:"webhooks"`
	ForcePathStyle bool          `env:"ARCHIVE_S3_FORCE_PATH_STYLE" envDefault:"false"`
	Timeout        time.Duration `env:"ARCHIVE_S3_TIMEOUT" envDefault:"5s"`
}

// Enabled reports whether a bucket is configured.
func (c Config) Enabled() bool {
	return c.Bucket != ""
}

// Archive implements entitlement.RawArchive.
type Archive struct {
	client  S3Client
	bucket  string
	prefix  string
	timeout time.Duration
}

var _ entitlement.RawArchive = (*Archive)(nil)

// Option configures New.
type Option func(*options)

type options struct {
	client        S3Client
	configOptions []func(*config.LoadOptions) error
}

// WithS3Client uses a pre-configured client, mostly for tests.
func WithS3Client(client S3Client) Option {
	return func(o *options) { o.client = client }
}

// WithConfigOption adds an AWS config loading option.
func WithConfigOption(opt func(*config.LoadOptions) error) Option {
	return func(o *options) { o.configOptions = append(o.configOptions, opt) }
}

// New builds an Archive. Credentials default to the AWS chain unless static
// keys are configured.
func New(ctx context.Context, cfg Config, opts ...Option) (*Archive, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, ErrInvalidConfig
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	client := o.client
	if client == nil {
		loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
		if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
			loadOpts = append(loadOpts, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
			))
		}
		loadOpts = append(loadOpts, o.configOptions...)

		awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, errors.Join(ErrFailedToLoadConfig, err)
		}
		client = s3.NewFromConfig(awsCfg, func(so *s3.Options) {
			if cfg.Endpoint != "" {
				so.BaseEndpoint = aws.String(cfg.Endpoint)
			}
			so.UsePathStyle = cfg.ForcePathStyle
		})
	}

	return &Archive{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  cfg.Prefix,
		timeout: cfg.Timeout,
	}, nil
}

// Key returns the object key for an event: <prefix>/YYYY/MM/DD/<event id>.json.
func (a *Archive) Key(e *entitlement.WebhookEvent) string {
	day := e.ReceivedAt.UTC().Format("2006/01/02")
	return path.Join(a.prefix, day, url.PathEscape(e.EventID)+".json")
}

// Archive uploads the raw payload verbatim.
func (a *Archive) Archive(ctx context.Context, e *entitlement.WebhookEvent) error {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	metadata := map[string]string{
		"event-type":     e.EventType,
		"classification": string(e.Classification),
		"received-at":    e.ReceivedAt.UTC().Format(time.RFC3339Nano),
	}
	if e.ResolvedUserID != nil {
		metadata["user-id"] = e.ResolvedUserID.String()
	}

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(a.Key(e)),
		Body:          bytes.NewReader(e.RawPayload),
		ContentLength: aws.Int64(int64(len(e.RawPayload))),
		ContentType:   aws.String("application/json"),
		Metadata:      metadata,
	})
	if err != nil {
		return errors.Join(ErrFailedToArchive, fmt.Errorf("put %s: %w", e.EventID, err))
	}
	return nil
}
