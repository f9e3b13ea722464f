package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"whatshook/internal/models"
	"whatshook/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	name   string
	events chan types.Event
}

func (f *fakeSession) Name() string               { return f.name }
func (f *fakeSession) Events() <-chan types.Event { return f.events }

type fakeTokens struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeTokens) GetAccessToken(ctx context.Context) (*models.AccessToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &models.AccessToken{Value: "tok-abc", IssuedAt: time.Now(), ExpiresIn: time.Hour}, nil
}

func (f *fakeTokens) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeHoster struct {
	mu  sync.Mutex
	url string
	err error
	got [][]byte
}

func (f *fakeHoster) HostImage(ctx context.Context, image []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, image)
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

type webhookRecorder struct {
	mu       sync.Mutex
	payloads []models.WebhookPayload
	srv      *httptest.Server
}

func newWebhookRecorder(t *testing.T) *webhookRecorder {
	t.Helper()
	rec := &webhookRecorder{}
	rec.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p models.WebhookPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		rec.mu.Lock()
		rec.payloads = append(rec.payloads, p)
		rec.mu.Unlock()
	}))
	t.Cleanup(rec.srv.Close)
	return rec
}

func (w *webhookRecorder) received() []models.WebhookPayload {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]models.WebhookPayload, len(w.payloads))
	copy(out, w.payloads)
	return out
}

func newTestRelay(t *testing.T, tokens *fakeTokens, hoster *fakeHoster, webhookURL string) *InboundRelay {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	session := &fakeSession{name: "default", events: make(chan types.Event, 8)}
	return NewInboundRelay(session, tokens, hoster, webhookURL, 5*time.Second, logger)
}

func textEvent(text string, fromMe bool) types.MessageEvent {
	return types.MessageEvent{
		Message: types.InboundMessage{
			ID:        "msg-1",
			From:      "15551234567",
			Chat:      "15551234567@s.whatsapp.net",
			Text:      text,
			FromMe:    fromMe,
			Timestamp: time.Unix(1700000000, 0),
		},
	}
}

func TestRelayTextMessage(t *testing.T) {
	rec := newWebhookRecorder(t)
	tokens := &fakeTokens{}
	relay := newTestRelay(t, tokens, &fakeHoster{}, rec.srv.URL)

	relay.relayMessage(t.Context(), textEvent("hello there", false))

	got := rec.received()
	require.Len(t, got, 1)
	assert.Equal(t, "15551234567", got[0].From)
	assert.Equal(t, "hello there", got[0].Text)
	assert.Equal(t, "tok-abc", got[0].AccessToken)
	assert.Equal(t, int64(1700000000), got[0].Timestamp)
	assert.Empty(t, got[0].ImageURL)
	assert.Empty(t, got[0].Mimetype)
}

func TestRelayMediaMessage(t *testing.T) {
	rec := newWebhookRecorder(t)
	hoster := &fakeHoster{url: "https://res.example.com/whatshook/img.jpg"}
	relay := newTestRelay(t, &fakeTokens{}, hoster, rec.srv.URL)

	ev := types.MessageEvent{
		Message: types.InboundMessage{
			ID:        "msg-2",
			From:      "15551234567",
			Caption:   "look at this",
			MimeType:  "image/jpeg",
			HasMedia:  true,
			Timestamp: time.Unix(1700000000, 0),
		},
		Download: func(ctx context.Context) ([]byte, error) {
			return []byte("jpeg-bytes"), nil
		},
	}
	relay.relayMessage(t.Context(), ev)

	got := rec.received()
	require.Len(t, got, 1)
	assert.Equal(t, "https://res.example.com/whatshook/img.jpg", got[0].ImageURL)
	assert.Equal(t, "image/jpeg", got[0].Mimetype)
	assert.Equal(t, "look at this", got[0].Text)
	require.Len(t, hoster.got, 1)
	assert.Equal(t, []byte("jpeg-bytes"), hoster.got[0])
}

func TestRelayMediaWithoutCaptionUsesBody(t *testing.T) {
	rec := newWebhookRecorder(t)
	hoster := &fakeHoster{url: "https://res.example.com/whatshook/img.jpg"}
	relay := newTestRelay(t, &fakeTokens{}, hoster, rec.srv.URL)

	ev := types.MessageEvent{
		Message: types.InboundMessage{
			ID:       "msg-3",
			From:     "15551234567",
			Text:     "fallback body",
			MimeType: "image/jpeg",
			HasMedia: true,
		},
		Download: func(ctx context.Context) ([]byte, error) {
			return []byte("jpeg-bytes"), nil
		},
	}
	relay.relayMessage(t.Context(), ev)

	got := rec.received()
	require.Len(t, got, 1)
	assert.Equal(t, "fallback body", got[0].Text)
}

func TestRelaySkipsSelfOriginatedMessages(t *testing.T) {
	rec := newWebhookRecorder(t)
	tokens := &fakeTokens{}
	relay := newTestRelay(t, tokens, &fakeHoster{}, rec.srv.URL)

	relay.relayMessage(t.Context(), textEvent("me talking to myself", true))

	// no token minted, no webhook call, nothing at all
	assert.Zero(t, tokens.callCount())
	assert.Empty(t, rec.received())
}

func TestRelayTokenFailureIsSwallowed(t *testing.T) {
	rec := newWebhookRecorder(t)
	tokens := &fakeTokens{err: assert.AnError}
	relay := newTestRelay(t, tokens, &fakeHoster{}, rec.srv.URL)

	relay.relayMessage(t.Context(), textEvent("doomed", false))

	assert.Empty(t, rec.received())
}

func TestRelayHostingFailureIsSwallowed(t *testing.T) {
	rec := newWebhookRecorder(t)
	hoster := &fakeHoster{err: assert.AnError}
	relay := newTestRelay(t, &fakeTokens{}, hoster, rec.srv.URL)

	ev := types.MessageEvent{
		Message: types.InboundMessage{ID: "msg-4", From: "15551234567", HasMedia: true},
		Download: func(ctx context.Context) ([]byte, error) {
			return []byte("jpeg-bytes"), nil
		},
	}
	relay.relayMessage(t.Context(), ev)

	assert.Empty(t, rec.received())
}

func TestRelayMintsFreshTokenPerMessage(t *testing.T) {
	rec := newWebhookRecorder(t)
	tokens := &fakeTokens{}
	relay := newTestRelay(t, tokens, &fakeHoster{}, rec.srv.URL)

	relay.relayMessage(t.Context(), textEvent("first", false))
	relay.relayMessage(t.Context(), textEvent("second", false))

	assert.Equal(t, 2, tokens.callCount())
	assert.Len(t, rec.received(), 2)
}

func TestHostPairingCode(t *testing.T) {
	hoster := &fakeHoster{url: "https://res.example.com/whatshook/qr.png"}
	relay := newTestRelay(t, &fakeTokens{}, hoster, "http://unused.invalid")

	relay.hostPairingCode(t.Context(), "2@pairing-code-payload")

	require.Len(t, hoster.got, 1)
	// rendered image is a PNG
	assert.True(t, bytes.HasPrefix(hoster.got[0], []byte("\x89PNG")))
}

func TestRunDrainsEventsUntilStreamCloses(t *testing.T) {
	rec := newWebhookRecorder(t)
	tokens := &fakeTokens{}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	session := &fakeSession{name: "default", events: make(chan types.Event, 8)}
	relay := NewInboundRelay(session, tokens, &fakeHoster{}, rec.srv.URL, 5*time.Second, logger)

	session.events <- types.ReadyEvent{}
	session.events <- textEvent("via the stream", false)
	session.events <- textEvent("self", true)
	close(session.events)

	relay.Run(t.Context())

	got := rec.received()
	require.Len(t, got, 1)
	assert.Equal(t, "via the stream", got[0].Text)
}
