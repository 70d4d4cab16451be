// Package gcsuploader archives exports and flat files to Google Cloud Storage.
package gcsuploader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/dvloznov/bank-data-pipeline/internal/logger"
)

const uploadTimeout = 2 * time.Minute

// GCSArchiver writes objects into one bucket using Application Default Credentials.
type GCSArchiver struct {
	bucket string
	client *storage.Client
}

// NewGCSArchiver opens a storage client for bucket.
func NewGCSArchiver(ctx context.Context, bucket string) (*GCSArchiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("NewGCSArchiver: bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSArchiver: create storage client: %w", err)
	}
	return &GCSArchiver{bucket: bucket, client: client}, nil
}

func (a *GCSArchiver) Close() error {
	return a.client.Close()
}

// UploadBytes writes data to objectName and returns its gs:// URI.
func (a *GCSArchiver) UploadBytes(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	return a.upload(ctx, objectName, contentType, bytes.NewReader(data))
}

// UploadFile copies a local file to objectName and returns its gs:// URI.
func (a *GCSArchiver) UploadFile(ctx context.Context, objectName, filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("UploadFile: open %q: %w", filePath, err)
	}
	defer f.Close()
	return a.upload(ctx, objectName, "text/plain; charset=utf-8", f)
}

func (a *GCSArchiver) upload(ctx context.Context, objectName, contentType string, r io.Reader) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := a.client.Bucket(a.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload: copy to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("upload: finalize: %w", err)
	}

	uri := ObjectURI(a.bucket, objectName)
	log := logger.FromContext(ctx)
	log.Info().Str("uri", uri).Msg("Archived object")
	return uri, nil
}

// Download reads the object at a gs:// URI.
func (a *GCSArchiver) Download(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, fmt.Errorf("Download: %w", err)
	}
	rc, err := a.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Download: open %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Download: read: %w", err)
	}
	return data, nil
}

// ObjectURI formats a gs:// URI.
func ObjectURI(bucket, object string) string {
	return "gs://" + bucket + "/" + object
}

// ParseURI splits "gs://bucket/path/to/object".
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// ExportObjectName places filename under exports/<itemID>/<yyyy>/<mm>/.
func ExportObjectName(itemID, filename string, at time.Time) string {
	if itemID == "" {
		itemID = "unknown_item"
	}
	return path.Join("exports", itemID, at.UTC().Format("2006"), at.UTC().Format("01"), path.Base(filename))
}
