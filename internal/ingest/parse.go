package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/containerd/errdefs"

	"github.com/memohai/inboxd/internal/message"
)

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type webhookPayload struct {
	Object string         `json:"object"`
	Entry  []webhookEntry `json:"entry"`
}

type webhookEntry struct {
	ID      flexString      `json:"id"`
	Changes []webhookChange `json:"changes"`
}

type webhookChange struct {
	Field string        `json:"field"`
	Value *webhookValue `json:"value"`
}

type webhookValue struct {
	Contacts []webhookContact `json:"contacts"`
	Messages []webhookMessage `json:"messages"`
	Statuses []webhookStatus  `json:"statuses"`
}

type webhookContact struct {
	WaID    flexString `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type webhookMessage struct {
	From      flexString    `json:"from"`
	ID        flexString    `json:"id"`
	Timestamp flexString    `json:"timestamp"`
	Type      string        `json:"type"`
	Text      *webhookText  `json:"text"`
	Image     *webhookMedia `json:"image"`
	Audio     *webhookMedia `json:"audio"`
	Document  *webhookMedia `json:"document"`
	Video     *webhookMedia `json:"video"`
	Sticker   *webhookMedia `json:"sticker"`
}

type webhookText struct {
	Body string `json:"body"`
}

type webhookMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption"`
}

type webhookStatus struct {
	ID          flexString `json:"id"`
	Status      string     `json:"status"`
	Timestamp   flexString `json:"timestamp"`
	RecipientID flexString `json:"recipient_id"`
}

// ParseWebhook decodes a provider delivery into inbound events and status callbacks.
// Messages without a sender or id and statuses with an unknown state are skipped.
// now stamps events that carry no timestamp.
func ParseWebhook(body []byte, now time.Time) (Batch, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Batch{}, fmt.Errorf("%w: decode webhook: %v", errdefs.ErrInvalidArgument, err)
	}

	var batch Batch
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Value == nil {
				continue
			}
			names := make(map[string]string, len(change.Value.Contacts))
			for _, c := range change.Value.Contacts {
				if waID := strings.TrimSpace(string(c.WaID)); waID != "" {
					names[waID] = strings.TrimSpace(c.Profile.Name)
				}
			}
			for _, m := range change.Value.Messages {
				if in, ok := toInbound(m, names, now); ok {
					batch.Messages = append(batch.Messages, in)
				}
			}
			for _, s := range change.Value.Statuses {
				if st, ok := toStatus(s, now); ok {
					batch.Statuses = append(batch.Statuses, st)
				}
			}
		}
	}
	return batch, nil
}

func toInbound(m webhookMessage, names map[string]string, now time.Time) (Inbound, bool) {
	from := strings.TrimSpace(string(m.From))
	id := strings.TrimSpace(string(m.ID))
	if from == "" || id == "" {
		return nil, false
	}
	env := Envelope{
		FromWaID:          from,
		ProviderMessageID: id,
		ContactName:       names[from],
		OccurredAt:        parseUnix(m.Timestamp, now),
	}

	if m.Text != nil && m.Text.Body != "" {
		return Text{Envelope: env, Body: m.Text.Body}, true
	}
	media := []struct {
		kind message.Type
		obj  *webhookMedia
	}{
		{message.TypeImage, m.Image},
		{message.TypeAudio, m.Audio},
		{message.TypeDocument, m.Document},
		{message.TypeVideo, m.Video},
		{message.TypeSticker, m.Sticker},
	}
	for _, candidate := range media {
		if candidate.obj == nil {
			continue
		}
		return Media{
			Envelope: env,
			Kind:     candidate.kind,
			MediaID:  strings.TrimSpace(candidate.obj.ID),
			MimeType: strings.TrimSpace(candidate.obj.MimeType),
			Caption:  candidate.obj.Caption,
		}, true
	}
	return Unknown{Envelope: env, RawType: m.Type}, true
}

func toStatus(s webhookStatus, now time.Time) (StatusEvent, bool) {
	id := strings.TrimSpace(string(s.ID))
	if id == "" {
		return StatusEvent{}, false
	}
	status, ok := message.ParseStatus(strings.ToLower(strings.TrimSpace(s.Status)))
	if !ok {
		return StatusEvent{}, false
	}
	return StatusEvent{
		ProviderMessageID: id,
		Status:            status,
		RecipientWaID:     strings.TrimSpace(string(s.RecipientID)),
		OccurredAt:        parseUnix(s.Timestamp, now),
	}, true
}

// parseUnix reads a unix-seconds timestamp, falling back to now.
func parseUnix(raw flexString, now time.Time) time.Time {
	value := strings.TrimSpace(string(raw))
	if value == "" {
		return now
	}
	secs, err := strconv.ParseInt(value, 10, 64)
	if err != nil || secs <= 0 {
		return now
	}
	return time.Unix(secs, 0).UTC()
}
