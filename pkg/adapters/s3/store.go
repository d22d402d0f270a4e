package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	backend "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// DefaultPrefix is the object key prefix for stored patches.
const DefaultPrefix = "patches/"

const ext = ".json"

// Client is the subset of the S3 API the store uses.
type Client interface {
	PutObject(ctx context.Context, in *backend.PutObjectInput, optFns ...func(*backend.Options)) (*backend.PutObjectOutput, error)
	GetObject(ctx context.Context, in *backend.GetObjectInput, optFns ...func(*backend.Options)) (*backend.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *backend.DeleteObjectInput, optFns ...func(*backend.Options)) (*backend.DeleteObjectOutput, error)
	backend.ListObjectsV2APIClient
}

// Store implements ports.SnapshotStore on an S3 compatible bucket.
// Each patch is one JSON object under the key prefix.
type Store struct {
	client Client
	bucket string
	prefix string
}

type Option func(*Store)

// WithPrefix sets the object key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a store on an existing client.
func New(client Client, bucket string, opts ...Option) *Store {
	s := &Store{
		client: client,
		bucket: bucket,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config describes how to reach the bucket. Empty credentials fall back to
// the default AWS credential chain. Endpoint targets S3 compatible services
// (MinIO, R2) and switches to path-style addressing.
type Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Prefix    string
}

// NewFromConfig loads AWS configuration and builds a store.
func NewFromConfig(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := backend.NewFromConfig(awsCfg, func(o *backend.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	var opts []Option
	if cfg.Prefix != "" {
		opts = append(opts, WithPrefix(cfg.Prefix))
	}
	return New(client, cfg.Bucket, opts...), nil
}

func (s *Store) key(name string) string {
	return s.prefix + name + ext
}

// Save uploads the snapshot as JSON.
func (s *Store) Save(ctx context.Context, name string, snap *domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	_, err = s.client.PutObject(ctx, &backend.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(name)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put patch object: %w", err)
	}
	return nil
}

// Load downloads and decodes a snapshot.
func (s *Store) Load(ctx context.Context, name string) (*domain.Snapshot, error) {
	out, err := s.client.GetObject(ctx, &backend.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, domain.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to get patch object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read patch object: %w", err)
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Delete removes the object. S3 deletes are idempotent.
func (s *Store) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &backend.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete patch object: %w", err)
	}
	return nil
}

// List pages through the prefix and returns patch names.
func (s *Store) List(ctx context.Context) ([]string, error) {
	p := backend.NewListObjectsV2Paginator(s.client, &backend.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	names := []string{}
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list patches: %w", err)
		}
		for _, obj := range page.Contents {
			key := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			if strings.Contains(key, "/") || !strings.HasSuffix(key, ext) {
				continue
			}
			names = append(names, strings.TrimSuffix(key, ext))
		}
	}
	sort.Strings(names)
	return names, nil
}
