// Package storage keeps uploaded cover images and avatars in an S3-compatible
// bucket. Objects live under "<ownerID>/<kind>/" so an account's files can be
// purged with one prefix delete.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"writepad/internal/util"
)

type Kind string

const (
	KindCover  Kind = "covers"
	KindAvatar Kind = "avatars"
)

// MaxUploadBytes bounds a single upload.
const MaxUploadBytes = 5 << 20

var (
	ErrUnknownKind        = errors.New("storage kind must be covers or avatars")
	ErrUnsupportedType    = errors.New("only png, jpeg, webp and gif images are accepted")
	ErrTooLarge           = fmt.Errorf("upload exceeds %d bytes", MaxUploadBytes)
	ErrForeignKey         = errors.New("object key belongs to another account")
	allowedTypeExtensions = map[string]string{
		"image/png":  ".png",
		"image/jpeg": ".jpg",
		"image/webp": ".webp",
		"image/gif":  ".gif",
	}
)

func ParseKind(value string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case KindCover:
		return KindCover, nil
	case KindAvatar:
		return KindAvatar, nil
	default:
		return "", ErrUnknownKind
	}
}

// ExtensionFor returns the file extension for an accepted image type.
func ExtensionFor(contentType string) (string, error) {
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	ext, ok := allowedTypeExtensions[mediaType]
	if !ok {
		return "", ErrUnsupportedType
	}
	return ext, nil
}

// ObjectKey builds a fresh key for an upload by ownerID.
func ObjectKey(ownerID string, kind Kind, contentType string) (string, error) {
	ext, err := ExtensionFor(contentType)
	if err != nil {
		return "", err
	}
	return ownerID + "/" + string(kind) + "/" + util.NewID("") + ext, nil
}

// OwnerPrefix is the key prefix holding every object of an account.
func OwnerPrefix(ownerID string) string {
	return ownerID + "/"
}

// CheckOwner rejects keys outside the caller's prefix.
func CheckOwner(ownerID, key string) error {
	if !strings.HasPrefix(key, OwnerPrefix(ownerID)) || strings.Contains(key, "..") {
		return ErrForeignKey
	}
	return nil
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL is the externally reachable base for object URLs. When empty
	// URLs are built from the endpoint.
	PublicURL string
}

type Store struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// New connects to the bucket, creating it with an anonymous read policy if
// it does not exist yet.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		if err := client.SetBucketPolicy(ctx, cfg.Bucket, publicReadPolicy(cfg.Bucket)); err != nil {
			return nil, fmt.Errorf("set bucket policy: %w", err)
		}
		log.Printf("storage: created bucket %s", cfg.Bucket)
	}

	base := strings.TrimRight(cfg.PublicURL, "/")
	if base == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		base = scheme + "://" + cfg.Endpoint
	}

	return &Store{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: base + "/" + cfg.Bucket,
	}, nil
}

// Upload writes an object of known size.
func (s *Store) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if size > MaxUploadBytes {
		return ErrTooLarge
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=31536000, immutable",
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// PublicURL returns the anonymous-read URL of key.
func (s *Store) PublicURL(key string) string {
	return JoinURL(s.publicURL, key)
}

// RemovePrefix deletes every object under prefix and reports how many were
// removed.
func (s *Store) RemovePrefix(ctx context.Context, prefix string) (int, error) {
	objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})
	toRemove := make(chan minio.ObjectInfo)
	listErr := make(chan error, 1)
	removed := 0
	go func() {
		defer close(toRemove)
		for object := range objects {
			if object.Err != nil {
				listErr <- object.Err
				return
			}
			removed++
			select {
			case toRemove <- object:
			case <-ctx.Done():
				listErr <- ctx.Err()
				return
			}
		}
		listErr <- nil
	}()

	var firstErr error
	for result := range s.client.RemoveObjects(ctx, s.bucket, toRemove, minio.RemoveObjectsOptions{}) {
		if firstErr == nil && result.Err != nil {
			firstErr = fmt.Errorf("remove %s: %w", result.ObjectName, result.Err)
		}
	}
	if err := <-listErr; err != nil && firstErr == nil {
		firstErr = fmt.Errorf("list %s: %w", prefix, err)
	}
	if firstErr != nil {
		return 0, firstErr
	}
	return removed, nil
}

// JoinURL appends an escaped object key to a base URL.
func JoinURL(base, key string) string {
	segments := strings.Split(key, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segments, "/")
}

func publicReadPolicy(bucket string) string {
	return `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::` + bucket + `/*"]}]}`
}
