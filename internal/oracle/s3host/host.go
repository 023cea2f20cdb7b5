// Package s3host implements services.ImageHost on an S3 bucket. Objects are
// written under chat/ with a random key and served from a public base URL.
package s3host

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Uploader is the subset of manager.Uploader the host needs.
type Uploader interface {
	Upload(ctx context.Context, in *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Host uploads images to one bucket.
type Host struct {
	up      Uploader
	bucket  string
	baseURL string
}

// New loads the default AWS configuration for region and returns a host
// writing to bucket. baseURL is the public prefix objects are served from;
// empty means the bucket's virtual-hosted URL.
func New(ctx context.Context, region, bucket, baseURL string) (*Host, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("s3host: load aws config: %w", err)
	}
	up := manager.NewUploader(s3.NewFromConfig(cfg))
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com/", bucket, region)
	}
	return NewWithUploader(up, bucket, baseURL), nil
}

// NewWithUploader wires an existing uploader.
func NewWithUploader(up Uploader, bucket, baseURL string) *Host {
	return &Host{up: up, bucket: bucket, baseURL: strings.TrimRight(baseURL, "/") + "/"}
}

// Upload stores data and returns its public URL.
func (h *Host) Upload(ctx context.Context, data []byte, filename string) (string, error) {
	ct := http.DetectContentType(data)
	key := "chat/" + uuid.NewString() + extension(filename, ct)

	_, err := h.up.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(h.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(ct),
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload: %w", err)
	}
	return h.baseURL + key, nil
}

func extension(filename, contentType string) string {
	if ext := strings.ToLower(path.Ext(filename)); ext != "" && len(ext) <= 5 {
		return ext
	}
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	}
	return ""
}
