package gcsuploader

import "context"

// Archiver stores export payloads in object storage.
type Archiver interface {
	UploadBytes(ctx context.Context, objectName string, data []byte, contentType string) (string, error)
	UploadFile(ctx context.Context, objectName, filePath string) (string, error)
}

var _ Archiver = (*GCSArchiver)(nil)
