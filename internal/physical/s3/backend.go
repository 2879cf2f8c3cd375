// Package s3 implements the physical.Store contract (§6.3) against an
// S3-compatible object store.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/pathindex/pathindex/internal/circuit"
	"github.com/pathindex/pathindex/internal/pathutil"
	"github.com/pathindex/pathindex/internal/physical"
	"github.com/pathindex/pathindex/pkg/logging"
)

// Config configures a Backend.
type Config struct {
	Bucket         string
	Region         string
	Endpoint       string
	ForcePathStyle bool
	MaxRetries     int
}

// Metrics tracks cumulative backend activity, read by pkg/metrics.
type Metrics struct {
	Requests        int64
	Errors          int64
	BytesUploaded   int64
	BytesDownloaded int64
}

// Backend is the S3-backed physical.Store implementation. Storage
// tokens are opaque object keys minted by Backend itself, sharded the
// same way pathutil shards fileIds so listings spread evenly across
// prefixes.
type Backend struct {
	client  *s3.Client
	bucket  string
	logger  *logging.Logger
	breaker *circuit.CircuitBreaker

	mu      sync.Mutex
	metrics Metrics
}

var _ physical.Store = (*Backend)(nil)

// NewBackend builds a Backend from Config, verifying connectivity with
// a HeadBucket call.
func NewBackend(ctx context.Context, cfg Config, logger *logging.Logger) (*Backend, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket name cannot be empty")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithRetryMaxAttempts(maxInt(cfg.MaxRetries, 3)),
	)
	if err != nil {
		return nil, fmt.Errorf("s3: failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	backend := &Backend{
		client: client,
		bucket: cfg.Bucket,
		logger: logger.WithComponent("physical.s3"),
		breaker: circuit.NewCircuitBreaker("physical.s3."+cfg.Bucket, circuit.Config{
			MaxRequests: 1,
			Interval:    30 * time.Second,
			Timeout:     15 * time.Second,
			OnStateChange: func(name string, from, to circuit.State) {
				logger.WithComponent("physical.s3").Warn("circuit breaker state change",
					logging.Fields{"breaker": name, "from": from.String(), "to": to.String()})
			},
		}),
	}

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("s3: bucket health check failed: %w", err)
	}

	return backend, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// GetFileInfo reports size and last-modified time for storage.
func (b *Backend) GetFileInfo(ctx context.Context, storage string) (*physical.Info, error) {
	var result *s3.HeadObjectOutput
	start := time.Now()
	err := b.breaker.ExecuteWithContext(ctx, func(ctx context.Context) error {
		var err error
		result, err = b.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(b.bucket), Key: aws.String(storage)})
		return err
	})
	b.record(time.Since(start), err)
	if err != nil {
		return nil, b.translate(err, "GetFileInfo", storage)
	}
	return &physical.Info{
		Storage:      storage,
		Size:         aws.ToInt64(result.ContentLength),
		LastModified: aws.ToTime(result.LastModified),
	}, nil
}

// GetOutputStream returns a writer that buffers the upload body and
// commits it to a freshly minted storage token on Close. size is kept
// as a hint only; the ContentLength sent is the buffered byte count.
func (b *Backend) GetOutputStream(ctx context.Context, size int64) (physical.Writer, error) {
	return &uploadWriter{ctx: ctx, backend: b, hintedSize: size, storage: newStorageToken()}, nil
}

// GetInputStream opens a ranged reader over an existing blob.
func (b *Backend) GetInputStream(ctx context.Context, storage string, offset int64) (io.ReadCloser, error) {
	var rangeHeader *string
	if offset > 0 {
		rangeHeader = aws.String(fmt.Sprintf("bytes=%d-", offset))
	}

	var result *s3.GetObjectOutput
	start := time.Now()
	err := b.breaker.ExecuteWithContext(ctx, func(ctx context.Context) error {
		var err error
		result, err = b.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(b.bucket), Key: aws.String(storage), Range: rangeHeader,
		})
		return err
	})
	b.record(time.Since(start), err)
	if err != nil {
		return nil, b.translate(err, "GetInputStream", storage)
	}
	return result.Body, nil
}

// Delete removes a blob, returning (false, nil) if it was already
// absent — S3's DeleteObject is idempotent and does not itself
// distinguish the two, so this checks with a HeadObject first.
func (b *Backend) Delete(ctx context.Context, storage string) (bool, error) {
	_, err := b.GetFileInfo(ctx, storage)
	if err != nil {
		if errors.Is(err, physical.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	start := time.Now()
	err = b.breaker.ExecuteWithContext(ctx, func(ctx context.Context) error {
		_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(b.bucket), Key: aws.String(storage)})
		return err
	})
	b.record(time.Since(start), err)
	if err != nil {
		return false, b.translate(err, "Delete", storage)
	}
	return true, nil
}

func (b *Backend) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.metrics
}

func (b *Backend) record(d time.Duration, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics.Requests++
	if err != nil {
		b.metrics.Errors++
	}
}

func (b *Backend) translate(err error, operation, storage string) error {
	var noSuchKey *s3types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return fmt.Errorf("%s %s: %w", operation, storage, physical.ErrNotFound)
	}
	var notFound *s3types.NotFound
	if errors.As(err, &notFound) {
		return fmt.Errorf("%s %s: %w", operation, storage, physical.ErrNotFound)
	}
	return fmt.Errorf("s3 %s failed for %s: %w", operation, storage, err)
}

// newStorageToken mints an opaque object key, sharded under the same
// four-character prefix scheme as pathutil fileIds.
func newStorageToken() string {
	id := pathutil.RandomFileID()
	return pathutil.ShardPrefix(id) + "/" + id
}

// uploadWriter buffers the body in memory and performs a single
// PutObject on Close. Large-object multipart upload is left to a
// future adapter; the contract only requires streaming semantics at
// the caller side.
type uploadWriter struct {
	ctx        context.Context
	backend    *Backend
	hintedSize int64
	storage    string
	buf        bytes.Buffer
	closed     bool
}

func (w *uploadWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, errors.New("s3: write after close")
	}
	return w.buf.Write(p)
}

func (w *uploadWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	start := time.Now()
	err := w.backend.breaker.ExecuteWithContext(w.ctx, func(ctx context.Context) error {
		_, err := w.backend.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(w.backend.bucket),
			Key:           aws.String(w.storage),
			Body:          bytes.NewReader(w.buf.Bytes()),
			ContentLength: aws.Int64(int64(w.buf.Len())),
		})
		return err
	})
	w.backend.record(time.Since(start), err)
	if err != nil {
		return w.backend.translate(err, "GetOutputStream", w.storage)
	}

	w.backend.mu.Lock()
	w.backend.metrics.BytesUploaded += int64(w.buf.Len())
	w.backend.mu.Unlock()
	return nil
}

func (w *uploadWriter) Storage() string { return w.storage }
