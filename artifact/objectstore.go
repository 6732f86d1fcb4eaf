package artifact

import (
	"context"
	"fmt"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Secure    bool   `yaml:"secure"`
}

// ObjectStore mirrors run files to an S3-compatible bucket, one prefix per
// run.
type ObjectStore struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewObjectStore(cfg ObjectStoreConfig) (*ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "runs"
	}
	return &ObjectStore{client: client, bucket: cfg.Bucket, prefix: prefix}, nil
}

// EnsureBucket creates the bucket when it does not exist.
func (o *ObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := o.client.BucketExists(ctx, o.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", o.bucket, err)
	}
	if exists {
		return nil
	}
	if err := o.client.MakeBucket(ctx, o.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", o.bucket, err)
	}
	return nil
}

func (o *ObjectStore) key(runID, name string) string {
	return path.Join(o.prefix, runID, name)
}

// Upload copies the files of a run into the bucket and returns their keys.
func (o *ObjectStore) Upload(ctx context.Context, runID string, paths []string) ([]string, error) {
	keys := make([]string, 0, len(paths))
	for _, p := range paths {
		key := o.key(runID, filepath.Base(p))
		if _, err := o.client.FPutObject(ctx, o.bucket, key, p, minio.PutObjectOptions{}); err != nil {
			return keys, fmt.Errorf("failed to upload %s: %w", key, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Download fetches every file of a run into dir, where a Store can load it.
func (o *ObjectStore) Download(ctx context.Context, runID, dir string) ([]string, error) {
	var paths []string
	for obj := range o.client.ListObjects(ctx, o.bucket, minio.ListObjectsOptions{Prefix: o.key(runID, "") + "/", Recursive: true}) {
		if obj.Err != nil {
			return paths, fmt.Errorf("failed to list run %s: %w", runID, obj.Err)
		}
		dest := filepath.Join(dir, path.Base(obj.Key))
		if err := o.client.FGetObject(ctx, o.bucket, obj.Key, dest, minio.GetObjectOptions{}); err != nil {
			return paths, fmt.Errorf("failed to download %s: %w", obj.Key, err)
		}
		paths = append(paths, dest)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: %s not in bucket %s", ErrRunNotFound, runID, o.bucket)
	}
	return paths, nil
}
