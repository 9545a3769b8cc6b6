// Package storage はアバター画像・アクセサリー画像のオブジェクトストレージを提供する。
// MinIO（S3互換）を使用する。
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore はオブジェクトストレージ操作のインターフェースを定義する。
// プロフィールのアバターアップロードおよびアクセサリー画像の取り込みで使用する。
type ObjectStore interface {
	// Put はオブジェクトをアップロードし、公開URLを返す。
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)

	// PresignGet は期限付きの署名済みGET URLを生成する。
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)

	// Delete はオブジェクトを削除する。存在しないキーの削除はエラーにならない。
	Delete(ctx context.Context, key string) error
}

// MinioStore はMinIO/S3互換ストレージに対するObjectStoreの実装。
type MinioStore struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// NewMinioStore はMinIOに接続し、バケットの存在を保証する。
// publicURLは公開URL生成のベース（例: https://cdn.example.com/voltmap）。
func NewMinioStore(endpoint, accessKey, secretKey, bucket, publicURL string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &MinioStore{
		client:    client,
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
	}, nil
}

// Put はオブジェクトをアップロードし、公開URLを返す。
func (m *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	_, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to put object: %w", err)
	}
	return m.objectURL(key), nil
}

// PresignGet は期限付きの署名済みGET URLを生成する。
func (m *MinioStore) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	url, err := m.client.PresignedGetObject(ctx, m.bucket, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign get: %w", err)
	}
	return url.String(), nil
}

// Delete はオブジェクトを削除する。
func (m *MinioStore) Delete(ctx context.Context, key string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// objectURL はオブジェクトの公開URLを組み立てる。
func (m *MinioStore) objectURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", m.publicURL, m.bucket, key)
}

var _ ObjectStore = (*MinioStore)(nil)
