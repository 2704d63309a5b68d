package minio

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
)

// ObjectReader 支持随机读取的对象句柄
type ObjectReader interface {
	io.ReaderAt
	io.Closer
}

// MediaStore 以对象键读取媒体原件
type MediaStore struct {
	client *minio.Client
	bucket string
}

func NewMediaStore() *MediaStore {
	return &MediaStore{client: Client, bucket: MediaBucket}
}

// Open 返回对象句柄和大小，只按需拉取首尾分段
func (s *MediaStore) Open(ctx context.Context, objectKey string) (ObjectReader, int64, error) {
	info, err := s.client.StatObject(ctx, s.bucket, objectKey, minio.StatObjectOptions{})
	if err != nil {
		return nil, 0, fmt.Errorf("stat object %s: %w", objectKey, err)
	}
	obj, err := s.client.GetObject(ctx, s.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, fmt.Errorf("get object %s: %w", objectKey, err)
	}
	return obj, info.Size, nil
}

// PresignedURL 供 ffprobe 直接读取
func (s *MediaStore) PresignedURL(ctx context.Context, objectKey string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey, 15*time.Minute, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign object %s: %w", objectKey, err)
	}
	return u.String(), nil
}
