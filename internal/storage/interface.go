package storage

import (
	"context"
	"mime/multipart"
)

// MediaUploader defines the interface for uploading user media.
// This interface allows for easy mocking in tests
type MediaUploader interface {
	UploadAttachment(ctx context.Context, data []byte, userID, originalFilename string) (*UploadResult, error)
	UploadAvatar(ctx context.Context, file multipart.File, header *multipart.FileHeader, userID string) (*UploadResult, error)
	DeleteFile(ctx context.Context, key string) error
}

// Ensure S3Uploader implements MediaUploader
var _ MediaUploader = (*S3Uploader)(nil)
