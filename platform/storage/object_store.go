package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStorage implements Storage on top of a MinIO/S3 compatible backend.
type ObjectStorage struct {
	client *minio.Client
	bucket string
}

type ObjectStorageArgs struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// NewObjectStorage connects to the backend and ensures the bucket exists.
func NewObjectStorage(args ObjectStorageArgs) (Storage, error) {
	client, err := minio.New(args.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(args.AccessKey, args.SecretKey, ""),
		Secure: args.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("error initializing object storage client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, args.Bucket)
	if err != nil {
		return nil, fmt.Errorf("error checking bucket %v: %w", args.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, args.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("error creating bucket %v: %w", args.Bucket, err)
		}
	}

	slog.Info("creating new object storage", "endpoint", args.Endpoint, "bucket", args.Bucket)

	return &ObjectStorage{client: client, bucket: args.Bucket}, nil
}

func (s *ObjectStorage) Read(path string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(context.Background(), s.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		slog.Error("error reading object", "path", path, "error", err)
		return nil, fmt.Errorf("error reading file %v: %v", path, err)
	}
	return obj, nil
}

func (s *ObjectStorage) Write(path string, data io.Reader) error {
	_, err := s.client.PutObject(context.Background(), s.bucket, path, data, -1, minio.PutObjectOptions{})
	if err != nil {
		slog.Error("error writing object", "path", path, "error", err)
		return fmt.Errorf("error writing to file %v: %v", path, err)
	}
	return nil
}

func (s *ObjectStorage) Delete(path string) error {
	err := s.client.RemoveObject(context.Background(), s.bucket, path, minio.RemoveObjectOptions{})
	if err != nil {
		slog.Error("error deleting object", "path", path, "error", err)
		return fmt.Errorf("error deleting file %v: %v", path, err)
	}
	return nil
}

func (s *ObjectStorage) DeleteBatch(paths []string) error {
	var firstErr error
	for _, path := range paths {
		if err := s.Delete(path); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *ObjectStorage) List(path string) ([]string, error) {
	if len(path) > 0 && path[len(path)-1] != '/' {
		path += "/"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	paths := make([]string, 0)
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: path}) {
		if obj.Err != nil {
			slog.Error("error listing objects", "prefix", path, "error", obj.Err)
			return nil, fmt.Errorf("error listing entries at %v: %w", path, obj.Err)
		}
		paths = append(paths, obj.Key[len(path):])
	}

	return paths, nil
}

func (s *ObjectStorage) Exists(path string) (bool, error) {
	_, err := s.client.StatObject(context.Background(), s.bucket, path, minio.StatObjectOptions{})
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" {
			return false, nil
		}
		slog.Error("error checking if object exists", "path", path, "error", err)
		return false, fmt.Errorf("error checking if file %v exists: %w", path, err)
	}
	return true, nil
}

func (s *ObjectStorage) SignedURL(path string, expiry time.Duration) (string, error) {
	url, err := s.client.PresignedGetObject(context.Background(), s.bucket, path, expiry, nil)
	if err != nil {
		slog.Error("error generating signed url", "path", path, "error", err)
		return "", fmt.Errorf("error generating signed url for %v: %w", path, err)
	}
	return url.String(), nil
}

// Usage reports the bytes used in the bucket. Object storage does not expose
// capacity so TotalBytes and FreeBytes are zero.
func (s *ObjectStorage) Usage() (UsageStats, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var used uint64
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			slog.Error("error getting usage for object storage", "bucket", s.bucket, "error", obj.Err)
			return UsageStats{}, fmt.Errorf("error getting usage stats: %w", obj.Err)
		}
		used += uint64(obj.Size)
	}

	return UsageStats{UsedBytes: used}, nil
}

func (s *ObjectStorage) Location() string {
	return s.bucket
}
