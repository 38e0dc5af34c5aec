package model

import "context"

// UploadProgress describes one upload progress update from a storage backend.
type UploadProgress struct {
	Percent  int
	Speed    string
	Uploaded string
	Total    string
}

// UploadRequest describes what to upload and under which remote subfolder.
type UploadRequest struct {
	LocalPath string
	Subfolder string
}

// StorageHooks allows callers to subscribe to upload lifecycle events.
type StorageHooks struct {
	OnProgress          func(progress UploadProgress)
	OnDeleteAfterUpload func(localPath string)
}

// StorageProvider abstracts remote storage for finished downloads.
type StorageProvider interface {
	Upload(ctx context.Context, cfg *Config, req UploadRequest, hooks StorageHooks) error
	PathExists(ctx context.Context, cfg *Config, remotePath string) (bool, error)
}
