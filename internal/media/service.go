package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/memohai/inboxd/internal/storage"
)

// Service persists uploads under kind/<hash prefix>/<hash><ext>, deduplicated by content.
type Service struct {
	provider storage.Provider
	logger   *slog.Logger
}

// NewService creates a media service with the given storage provider.
func NewService(log *slog.Logger, provider storage.Provider) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		provider: provider,
		logger:   log.With(slog.String("service", "media")),
	}
}

// Ingest hashes and stores the upload. An identical upload reuses the stored object.
func (s *Service) Ingest(ctx context.Context, input IngestInput) (Asset, error) {
	if s == nil || s.provider == nil {
		return Asset{}, ErrProviderUnavailable
	}
	if input.Reader == nil {
		return Asset{}, fmt.Errorf("reader is required")
	}
	kind := strings.Trim(strings.TrimSpace(input.Kind), "/")
	if kind == "" {
		kind = KindVoice
	}
	maxBytes := input.MaxBytes
	if maxBytes <= 0 {
		maxBytes = MaxAssetBytes
	}
	contentHash, sizeBytes, tempPath, err := spoolAndHashWithLimit(input.Reader, maxBytes)
	if err != nil {
		return Asset{}, err
	}
	defer func() {
		_ = os.Remove(tempPath)
	}()

	mime := normalizeMime(input.Mime)
	ext := extensionFromMime(mime)
	if ext == ".bin" {
		if guessed := strings.ToLower(path.Ext(input.Filename)); guessed != "" {
			ext = guessed
			if mime == "application/octet-stream" {
				mime = mimeFromExtension(ext)
			}
		}
	}
	storageKey := path.Join(kind, contentHash[:2], contentHash+ext)
	asset := Asset{
		ContentHash: contentHash,
		Kind:        kind,
		Mime:        mime,
		SizeBytes:   sizeBytes,
		StorageKey:  storageKey,
		URL:         s.provider.AccessPath(storageKey),
	}

	if size, statErr := s.provider.Stat(ctx, storageKey); statErr == nil && size == sizeBytes {
		return asset, nil
	}

	tempFile, err := os.Open(tempPath)
	if err != nil {
		return Asset{}, fmt.Errorf("open temp file: %w", err)
	}
	defer func() {
		_ = tempFile.Close()
	}()
	if err := s.provider.Put(ctx, storageKey, tempFile); err != nil {
		return Asset{}, fmt.Errorf("store media: %w", err)
	}
	s.logger.Info("media stored", slog.String("key", storageKey), slog.Int64("size_bytes", sizeBytes))
	return asset, nil
}

// Open returns a reader for a stored asset.
func (s *Service) Open(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	if s == nil || s.provider == nil {
		return nil, ErrProviderUnavailable
	}
	rc, err := s.provider.Open(ctx, storageKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, storageKey)
	}
	return rc, nil
}

func normalizeMime(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if mime == "" {
		return "application/octet-stream"
	}
	return mime
}

func mimeFromExtension(ext string) string {
	switch strings.ToLower(ext) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".m4a":
		return "audio/mp4"
	case ".aac":
		return "audio/aac"
	case ".amr":
		return "audio/amr"
	case ".webm":
		return "audio/webm"
	default:
		return "application/octet-stream"
	}
}

func extensionFromMime(mime string) string {
	switch mime {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/ogg", "audio/opus":
		return ".ogg"
	case "audio/mp4", "audio/x-m4a":
		return ".m4a"
	case "audio/aac":
		return ".aac"
	case "audio/amr":
		return ".amr"
	case "audio/webm", "video/webm":
		return ".webm"
	default:
		return ".bin"
	}
}

func spoolAndHashWithLimit(reader io.Reader, maxBytes int64) (string, int64, string, error) {
	tempFile, err := os.CreateTemp("", "inboxd-media-*")
	if err != nil {
		return "", 0, "", fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()
	keepFile := false
	defer func() {
		_ = tempFile.Close()
		if !keepFile {
			_ = os.Remove(tempPath)
		}
	}()

	hasher := sha256.New()
	limited := &io.LimitedReader{R: reader, N: maxBytes + 1}
	written, err := io.Copy(io.MultiWriter(tempFile, hasher), limited)
	if err != nil {
		return "", 0, "", fmt.Errorf("copy to temp file: %w", err)
	}
	if written > maxBytes {
		return "", 0, "", fmt.Errorf("%w: max %d bytes", ErrAssetTooLarge, maxBytes)
	}
	if written == 0 {
		return "", 0, "", ErrAssetEmpty
	}
	keepFile = true
	return hex.EncodeToString(hasher.Sum(nil)), written, tempPath, nil
}
