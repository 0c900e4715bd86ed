package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config configures the S3 backend.
type S3Config struct {
	// Region overrides the region from the default AWS config chain.
	Region string

	// Endpoint points the client at an S3-compatible service (MinIO,
	// LocalStack). Empty uses AWS.
	Endpoint string

	// UsePathStyle forces path-style addressing, needed by most
	// S3-compatible services.
	UsePathStyle bool

	// Concurrency is the number of concurrent transfer parts.
	// Default: max(4, NumCPU), capped at 16.
	Concurrency int

	// PartSize is the size of each transfer part in bytes. Default: 16MB.
	PartSize int64

	// TempDir holds downloaded objects while they are read.
	// If empty, os.TempDir() is used.
	TempDir string
}

// DefaultS3Config returns transfer defaults sized to the current machine.
func DefaultS3Config() S3Config {
	concurrency := runtime.NumCPU()
	if concurrency < 4 {
		concurrency = 4
	}
	if concurrency > 16 {
		concurrency = 16
	}
	return S3Config{
		Concurrency: concurrency,
		PartSize:    16 * 1024 * 1024,
	}
}

// listDeleteAPI is the subset of the S3 client used for listing and deletion.
type listDeleteAPI interface {
	s3.ListObjectsV2APIClient
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// S3Store is a Store backed by Amazon S3.
type S3Store struct {
	api        listDeleteAPI
	downloader *manager.Downloader
	uploader   *manager.Uploader
	tempDir    string
}

// NewS3Store creates an S3 store using the default AWS configuration chain.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewS3StoreWithClient(client, cfg), nil
}

// NewS3StoreWithClient creates an S3 store from an existing client.
func NewS3StoreWithClient(client *s3.Client, cfg S3Config) *S3Store {
	defaults := DefaultS3Config()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaults.Concurrency
	}
	if cfg.PartSize <= 0 {
		cfg.PartSize = defaults.PartSize
	}

	return &S3Store{
		api: client,
		downloader: manager.NewDownloader(client, func(d *manager.Downloader) {
			d.Concurrency = cfg.Concurrency
			d.PartSize = cfg.PartSize
			d.BufferProvider = manager.NewPooledBufferedWriterReadFromProvider(int(cfg.PartSize))
		}),
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.Concurrency = cfg.Concurrency
			u.PartSize = cfg.PartSize
		}),
		tempDir: cfg.TempDir,
	}
}

// Scheme implements Store.
func (s *S3Store) Scheme() string { return SchemeS3 }

// List implements Store.
func (s *S3Store) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(ListPageSize),
	})

	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// Open downloads the object to a temp file with the transfer manager and
// returns it for random access. The temp file is removed on Close.
func (s *S3Store) Open(ctx context.Context, bucket, key string) (Object, error) {
	tempDir := s.tempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}

	f, err := os.CreateTemp(tempDir, "s3curate-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	n, err := s.downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("download s3://%s/%s: %w", bucket, key, err)
	}

	return &tempObject{file: f, path: f.Name(), size: n}, nil
}

// Put implements Store.
func (s *S3Store) Put(ctx context.Context, bucket, key string, body io.Reader) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// DeleteAll implements Store.
func (s *S3Store) DeleteAll(ctx context.Context, bucket, prefix string) (int, error) {
	keys, err := s.List(ctx, bucket, prefix)
	if err != nil {
		return 0, err
	}

	attempted := 0
	for start := 0; start < len(keys); start += DeleteBatchSize {
		end := min(start+DeleteBatchSize, len(keys))

		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(k)})
		}

		attempted += len(ids)
		out, err := s.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return attempted, fmt.Errorf("delete s3://%s/%s: %w", bucket, prefix, err)
		}
		if len(out.Errors) > 0 {
			return attempted, deleteErrors(bucket, out.Errors)
		}
	}
	return attempted, nil
}

func deleteErrors(bucket string, errs []types.Error) error {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, fmt.Sprintf("s3://%s/%s: %s", bucket, aws.ToString(e.Key), aws.ToString(e.Message)))
	}
	return fmt.Errorf("delete failed for %d objects: %w", len(errs), errors.New(strings.Join(msgs, "; ")))
}

// tempObject is a downloaded object that removes its backing file on close.
type tempObject struct {
	file *os.File
	path string
	size int64
}

func (o *tempObject) ReadAt(p []byte, off int64) (int, error) {
	n, err := o.file.ReadAt(p, off)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("read temp file at offset %d: %w", off, err)
	}
	return n, err
}

func (o *tempObject) Size() int64 { return o.size }

func (o *tempObject) Close() error {
	err := o.file.Close()
	os.Remove(o.path)
	if err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	return nil
}
