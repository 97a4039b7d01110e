// Package media stores uploaded attachments (voice notes) content-addressed on a storage provider.
package media

import (
	"fmt"
	"io"

	"github.com/containerd/errdefs"
)

// MaxAssetBytes is the default upload limit.
const MaxAssetBytes int64 = 12 << 20

// KindVoice groups recorded voice notes.
const KindVoice = "voices"

// Errors returned by the media service.
var (
	ErrProviderUnavailable = fmt.Errorf("%w: media storage not configured", errdefs.ErrUnavailable)
	ErrAssetNotFound       = fmt.Errorf("%w: media asset not found", errdefs.ErrNotFound)
	ErrAssetTooLarge       = fmt.Errorf("%w: media asset too large", errdefs.ErrInvalidArgument)
	ErrAssetEmpty          = fmt.Errorf("%w: media asset is empty", errdefs.ErrInvalidArgument)
)

// Asset is a persisted upload. ContentHash is the SHA-256 hex of its bytes.
type Asset struct {
	ContentHash string `json:"contentHash"`
	Kind        string `json:"kind"`
	Mime        string `json:"mimeType"`
	SizeBytes   int64  `json:"sizeBytes"`
	StorageKey  string `json:"storageKey"`
	URL         string `json:"url"`
}

// IngestInput carries the data needed to persist a new upload.
type IngestInput struct {
	Kind string
	Mime string
	// Filename is only used to guess the extension when Mime is unknown.
	Filename string
	// Reader provides the raw bytes; caller is responsible for closing.
	Reader io.Reader
	// MaxBytes optionally overrides the default size limit.
	MaxBytes int64
}
