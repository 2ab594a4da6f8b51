// Package storage streams cover and audio files to MinIO/S3 compatible
// object storage and reports upload progress.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ProgressFunc receives a monotonically increasing percentage in [0,100].
type ProgressFunc func(percent int)

// ObjectStore provides access to object storage.
type ObjectStore interface {
	// Put uploads r under key and returns the object's retrievable URL.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string, progress ProgressFunc) (string, error)
	Delete(ctx context.Context, key string) error
}

// Config holds the connection settings.
type Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	Region        string
	UseSSL        bool
	PublicBaseURL string
}

// MinioStore implements ObjectStore for MinIO/S3 compatible storage.
type MinioStore struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

// NewMinioStore connects to MinIO and ensures the bucket exists.
func NewMinioStore(ctx context.Context, cfg Config) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &MinioStore{client: client, bucket: cfg.Bucket, baseURL: PublicURLBase(cfg)}, nil
}

// Put uploads an object and reports progress while minio reads from r.
func (m *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string, progress ProgressFunc) (string, error) {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if progress != nil {
		opts.Progress = NewProgressReader(size, progress)
	}
	if _, err := m.client.PutObject(ctx, m.bucket, key, r, size, opts); err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return m.baseURL + "/" + key, nil
}

// Delete removes an object.
func (m *MinioStore) Delete(ctx context.Context, key string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// PublicURLBase returns the prefix of object URLs. PublicBaseURL wins over
// the path-style endpoint URL.
func PublicURLBase(cfg Config) string {
	if cfg.PublicBaseURL != "" {
		return strings.TrimRight(cfg.PublicBaseURL, "/")
	}
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
}

// Object key prefixes.
const (
	CoverPrefix = "covers"
	SongPrefix  = "songs"
)

// ObjectKey builds "{prefix}/{unixnano}-{name}" with name reduced to its
// base and stripped of characters that break URLs.
func ObjectKey(prefix, name string, now time.Time) string {
	return fmt.Sprintf("%s/%d-%s", prefix, now.UnixNano(), sanitizeName(name))
}

func sanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 || name == "." || name == "/" {
		return "file"
	}
	return b.String()
}

// ProgressReader counts bytes read through it and reports whole-percent
// steps. minio reads from PutObjectOptions.Progress as it uploads.
type ProgressReader struct {
	mu    sync.Mutex
	total int64
	done  int64
	last  int
	fn    ProgressFunc
}

// NewProgressReader reports 0 immediately and then each new percentage.
func NewProgressReader(total int64, fn ProgressFunc) *ProgressReader {
	p := &ProgressReader{total: total, last: 0, fn: fn}
	fn(0)
	return p
}

func (p *ProgressReader) Read(b []byte) (int, error) {
	p.Add(int64(len(b)))
	return len(b), nil
}

// Add records n more bytes.
func (p *ProgressReader) Add(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done += n
	pct := 100
	if p.total > 0 && p.done < p.total {
		pct = int(p.done * 100 / p.total)
	}
	if pct > p.last {
		p.last = pct
		p.fn(pct)
	}
}
