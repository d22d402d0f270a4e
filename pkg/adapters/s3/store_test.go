package s3_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aretw0/patchbay/pkg/adapters/s3"
	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/ports"
	"github.com/aws/aws-sdk-go-v2/aws"
	backend "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBucket is an in-memory S3 bucket. It pages listings two keys at a
// time so the paginator path is exercised.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    error
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: make(map[string][]byte)}
}

func (f *fakeBucket) PutObject(ctx context.Context, in *backend.PutObjectInput, _ ...func(*backend.Options)) (*backend.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	f.objects[aws.ToString(in.Key)] = data
	return &backend.PutObjectOutput{}, nil
}

func (f *fakeBucket) GetObject(ctx context.Context, in *backend.GetObjectInput, _ ...func(*backend.Options)) (*backend.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &backend.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeBucket) DeleteObject(ctx context.Context, in *backend.DeleteObjectInput, _ ...func(*backend.Options)) (*backend.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &backend.DeleteObjectOutput{}, nil
}

func (f *fakeBucket) ListObjectsV2(ctx context.Context, in *backend.ListObjectsV2Input, _ ...func(*backend.Options)) (*backend.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) && k > aws.ToString(in.ContinuationToken) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &backend.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	if len(keys) > 2 {
		keys = keys[:2]
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[1])
	}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func TestS3Store_Contract(t *testing.T) {
	store := s3.New(newFakeBucket(), "patches")
	ports.RunSnapshotStoreContract(t, store)
}

func TestS3Store_ListPagesAndFilters(t *testing.T) {
	bucket := newFakeBucket()
	store := s3.New(bucket, "patches", s3.WithPrefix("studio/"))
	ctx := context.Background()

	for _, name := range []string{"e", "a", "c", "d", "b"} {
		require.NoError(t, store.Save(ctx, name, &domain.Snapshot{Version: domain.SnapshotVersion, Name: name}))
	}
	bucket.objects["studio/nested/x.json"] = []byte("{}")
	bucket.objects["studio/readme.txt"] = []byte("hi")
	bucket.objects["other/z.json"] = []byte("{}")

	names, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, names)
	assert.Contains(t, bucket.objects, "studio/a.json")
}

func TestS3Store_SaveError(t *testing.T) {
	bucket := newFakeBucket()
	bucket.fail = errors.New("access denied")
	store := s3.New(bucket, "patches")

	err := store.Save(context.Background(), "x", &domain.Snapshot{})
	assert.ErrorContains(t, err, "access denied")
}

func TestNewFromConfig_RequiresBucket(t *testing.T) {
	_, err := s3.NewFromConfig(context.Background(), s3.Config{})
	assert.Error(t, err)
}
