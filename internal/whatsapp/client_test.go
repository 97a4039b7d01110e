package whatsapp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(nil, Config{
		BaseURL:       server.URL,
		Version:       "v20.0",
		AccessToken:   "token",
		PhoneNumberID: "PNID",
	})
}

func TestClientSendText(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v20.0/PNID/messages", r.URL.Path)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"messaging_product":"whatsapp","to":"5511999999999","type":"text","text":{"body":"oi"}}`, string(body))
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.out.1"}]}`))
	})

	res, err := client.SendText(context.Background(), "5511999999999", "oi")
	require.NoError(t, err)
	assert.Equal(t, "wamid.out.1", res.MessageID)
	assert.JSONEq(t, `{"messages":[{"id":"wamid.out.1"}]}`, string(res.Raw))
}

func TestClientSendTemplate(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "template", req["type"])
		tmpl := req["template"].(map[string]any)
		assert.Equal(t, "hello_world", tmpl["name"])
		assert.Equal(t, map[string]any{"code": "en_US"}, tmpl["language"])
		assert.NotContains(t, tmpl, "components")
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.tpl"}]}`))
	})

	res, err := client.SendTemplate(context.Background(), "5511999999999", Template{Name: "hello_world", LanguageCode: "en_US"})
	require.NoError(t, err)
	assert.Equal(t, "wamid.tpl", res.MessageID)
}

func TestClientSendAudioByLink(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"messaging_product":"whatsapp","to":"5511999999999","type":"audio","audio":{"link":"https://cdn.example/v.ogg"}}`, string(body))
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.audio"}]}`))
	})

	res, err := client.SendAudio(context.Background(), "5511999999999", "https://cdn.example/v.ogg")
	require.NoError(t, err)
	assert.Equal(t, "wamid.audio", res.MessageID)
}

func TestClientAPIErrorCarriesProviderDetails(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid OAuth access token.","code":190}}`))
	})

	_, err := client.SendText(context.Background(), "5511999999999", "oi")
	apiErr, ok := AsAPIError(err)
	require.True(t, ok, "expected APIError, got %v", err)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Invalid OAuth access token.", apiErr.Message)
	assert.JSONEq(t, `{"message":"Invalid OAuth access token.","code":190}`, string(apiErr.Details))
}

func TestClientAPIErrorWithoutJSONBody(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("upstream down"))
	})

	_, err := client.SendText(context.Background(), "5511999999999", "oi")
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "WhatsApp API error", apiErr.Message)
	assert.JSONEq(t, `"upstream down"`, string(apiErr.Details))
}

func TestClientMediaURL(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v20.0/MEDIA1", r.URL.Path)
		_, _ = w.Write([]byte(`{"url":"https://lookaside.example/media1","mime_type":"image/jpeg"}`))
	})

	got, err := client.MediaURL(context.Background(), "MEDIA1")
	require.NoError(t, err)
	assert.Equal(t, "https://lookaside.example/media1", got)
}

func TestClientWithoutCredentials(t *testing.T) {
	t.Parallel()

	client := NewClient(nil, Config{})
	_, err := client.SendText(context.Background(), "5511999999999", "oi")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.True(t, errdefs.IsUnavailable(err))

	_, err = client.MediaURL(context.Background(), "")
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)
}
