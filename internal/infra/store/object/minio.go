package objectstore

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
)

// Store is the object-storage boundary: opaque keys in, bytes out. Keys are
// cleaned to stay inside the bucket.
type Store struct {
	cli      *minio.Client
	bucket   string
	endpoint string
	useSSL   bool
}

type PutInfo struct {
	Key  string
	Size int64
}

func NewMinIOStore(cli *minio.Client, bucket, endpoint string, useSSL bool) *Store {
	return &Store{
		cli:      cli,
		bucket:   bucket,
		endpoint: endpoint,
		useSSL:   useSSL,
	}
}

func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (PutInfo, error) {
	objectName, err := s.objectName(key)
	if err != nil {
		return PutInfo{}, err
	}

	putSize := size
	if putSize <= 0 {
		putSize = -1
	}

	info, err := s.cli.PutObject(ctx, s.bucket, objectName, r, putSize, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return PutInfo{}, fmt.Errorf("put object %s: %w", objectName, err)
	}

	return PutInfo{Key: objectName, Size: info.Size}, nil
}

func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	objectName, err := s.objectName(key)
	if err != nil {
		return nil, 0, err
	}

	obj, err := s.cli.GetObject(ctx, s.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, fmt.Errorf("get object %s: %w", objectName, err)
	}

	st, err := obj.Stat()
	if err != nil {
		obj.Close()
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" {
			return nil, 0, fmt.Errorf("object not found: %w", err)
		}
		return nil, 0, fmt.Errorf("stat object %s: %w", objectName, err)
	}

	return obj, st.Size, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	objectName, err := s.objectName(key)
	if err != nil {
		return err
	}

	if err := s.cli.RemoveObject(ctx, s.bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", objectName, err)
	}
	return nil
}

// URLFor returns the fully-qualified locator for a stored key:
// scheme://endpoint/bucket/key. The empty key has no locator.
func (s *Store) URLFor(key string) (string, bool) {
	objectName, err := s.objectName(key)
	if err != nil {
		return "", false
	}

	scheme := "http"
	if s.useSSL {
		scheme = "https"
	}
	return scheme + "://" + s.endpoint + "/" + s.bucket + "/" + objectName, true
}

func (s *Store) objectName(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty object key")
	}

	clean := path.Clean(key)
	if strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid object key: %s", key)
	}

	return strings.TrimLeft(clean, "/"), nil
}
