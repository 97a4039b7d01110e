package media

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/inboxd/internal/storage"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	provider, err := storage.NewLocalFS(t.TempDir(), "/uploads")
	require.NoError(t, err)
	return NewService(nil, provider)
}

func TestIngestStoresContentAddressed(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	asset, err := svc.Ingest(ctx, IngestInput{Mime: "audio/ogg; codecs=opus", Reader: strings.NewReader("OggS-voice")})
	require.NoError(t, err)
	assert.Equal(t, KindVoice, asset.Kind)
	assert.Equal(t, "audio/ogg", asset.Mime)
	assert.Equal(t, int64(len("OggS-voice")), asset.SizeBytes)
	assert.True(t, strings.HasPrefix(asset.StorageKey, "voices/"+asset.ContentHash[:2]+"/"))
	assert.True(t, strings.HasSuffix(asset.URL, asset.ContentHash+".ogg"))
	assert.True(t, strings.HasPrefix(asset.URL, "/uploads/voices/"))

	again, err := svc.Ingest(ctx, IngestInput{Mime: "audio/ogg", Reader: strings.NewReader("OggS-voice")})
	require.NoError(t, err)
	assert.Equal(t, asset.StorageKey, again.StorageKey)

	rc, err := svc.Open(ctx, asset.StorageKey)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "OggS-voice", string(data))
}

func TestIngestGuessesExtensionFromFilename(t *testing.T) {
	svc := newTestService(t)
	asset, err := svc.Ingest(context.Background(), IngestInput{Filename: "note.webm", Reader: strings.NewReader("x")})
	require.NoError(t, err)
	assert.Equal(t, "audio/webm", asset.Mime)
	assert.True(t, strings.HasSuffix(asset.StorageKey, ".webm"))
}

func TestIngestLimits(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, IngestInput{Reader: bytes.NewReader(make([]byte, 11)), MaxBytes: 10})
	assert.ErrorIs(t, err, ErrAssetTooLarge)
	assert.True(t, errdefs.IsInvalidArgument(err))

	_, err = svc.Ingest(ctx, IngestInput{Reader: strings.NewReader("")})
	assert.ErrorIs(t, err, ErrAssetEmpty)

	_, err = NewService(nil, nil).Ingest(ctx, IngestInput{Reader: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrProviderUnavailable)

	_, err = svc.Open(ctx, "voices/zz/missing.ogg")
	assert.ErrorIs(t, err, ErrAssetNotFound)
}
