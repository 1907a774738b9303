package publish

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	publishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gaextract_publish_total",
		Help: "Artifact uploads by outcome",
	}, []string{"status"})

	publishBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gaextract_publish_bytes",
		Help:    "Size of uploaded artifacts in bytes",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
	})
)

// ObjectPutter is the subset of *s3.Client used by S3Publisher.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config configures an S3Publisher.
type S3Config struct {
	Bucket string

	// Region overrides the region from the default AWS config chain.
	Region string

	// Endpoint points the client at an S3-compatible service (path-style addressing).
	Endpoint string

	// Compress gzips the artifact and appends ".gz" to the key.
	Compress bool

	// Metadata is attached to every uploaded object.
	Metadata map[string]string
}

// S3Publisher uploads artifacts with PutObject.
type S3Publisher struct {
	api    ObjectPutter
	cfg    S3Config
	logger zerolog.Logger
}

// NewS3Publisher creates a publisher using the default AWS configuration chain.
func NewS3Publisher(ctx context.Context, cfg S3Config, logger zerolog.Logger) (*S3Publisher, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3PublisherWithClient(client, cfg, logger), nil
}

// NewS3PublisherWithClient creates a publisher around an existing client.
func NewS3PublisherWithClient(api ObjectPutter, cfg S3Config, logger zerolog.Logger) *S3Publisher {
	return &S3Publisher{api: api, cfg: cfg, logger: logger}
}

// ObjectKey returns the key the artifact is stored under.
func (p *S3Publisher) ObjectKey(key string) string {
	if p.cfg.Compress {
		return key + ".gz"
	}
	return key
}

// Publish uploads localPath to s3://<bucket>/<key>.
func (p *S3Publisher) Publish(ctx context.Context, localPath, key string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		publishTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: read %s: %w", ErrPublishFailed, localPath, err)
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(p.cfg.Bucket),
		Key:         aws.String(p.ObjectKey(key)),
		ContentType: aws.String("text/csv"),
		Metadata:    p.cfg.Metadata,
	}

	if p.cfg.Compress {
		data, err = gzipBytes(data)
		if err != nil {
			publishTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("%w: compress %s: %w", ErrPublishFailed, localPath, err)
		}
		input.ContentEncoding = aws.String("gzip")
	}
	input.Body = bytes.NewReader(data)
	input.ContentLength = aws.Int64(int64(len(data)))

	if _, err := p.api.PutObject(ctx, input); err != nil {
		publishTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: put s3://%s/%s: %w", ErrPublishFailed, p.cfg.Bucket, *input.Key, err)
	}

	publishTotal.WithLabelValues("success").Inc()
	publishBytes.Observe(float64(len(data)))
	p.logger.Info().
		Str("bucket", p.cfg.Bucket).
		Str("key", *input.Key).
		Int("bytes", len(data)).
		Msg("Artifact uploaded")
	return nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
