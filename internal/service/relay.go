package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"whatshook/internal/constants"
	"whatshook/internal/metrics"
	"whatshook/internal/models"
	"whatshook/internal/privacy"
	"whatshook/internal/tracing"
	"whatshook/pkg/whatsapp/types"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// TokenProvider mints a fresh bearer token for each relayed message
type TokenProvider interface {
	GetAccessToken(ctx context.Context) (*models.AccessToken, error)
}

// ImageHoster uploads raw image bytes and returns a public URL
type ImageHoster interface {
	HostImage(ctx context.Context, image []byte) (string, error)
}

// SessionEvents is the slice of the session manager the relay consumes
type SessionEvents interface {
	Name() string
	Events() <-chan types.Event
}

// InboundRelay forwards every non-self-originated inbound message to the
// configured webhook. Each message is handled in its own goroutine with no
// retry and no dead-letter queue: at-most-once, best-effort delivery.
// Failures are logged and never block subsequent messages.
type InboundRelay struct {
	session    SessionEvents
	tokens     TokenProvider
	hoster     ImageHoster
	webhookURL string
	client     *http.Client
	logger     *logrus.Logger

	wg sync.WaitGroup
}

// NewInboundRelay wires the relay to its collaborators
func NewInboundRelay(session SessionEvents, tokens TokenProvider, hoster ImageHoster, webhookURL string, timeout time.Duration, logger *logrus.Logger) *InboundRelay {
	return &InboundRelay{
		session:    session,
		tokens:     tokens,
		hoster:     hoster,
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Run consumes the session event stream until the context is cancelled or
// the stream closes
func (r *InboundRelay) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.wg.Wait()
			return
		case ev, ok := <-r.session.Events():
			if !ok {
				r.wg.Wait()
				return
			}
			r.handleEvent(ctx, ev)
		}
	}
}

func (r *InboundRelay) handleEvent(ctx context.Context, ev types.Event) {
	sessionLogger := r.logger.WithField(LogFieldSession, r.session.Name())

	switch v := ev.(type) {
	case types.PairingCodeEvent:
		r.hostPairingCode(ctx, v.Code)
	case types.ReadyEvent:
		sessionLogger.Info("Session ready")
		metrics.IncrementCounter("session_ready_total", nil, "Sessions that reached ready state")
	case types.AuthFailureEvent:
		sessionLogger.WithField("reason", v.Reason).Error("Session pairing rejected, session unusable until restart")
	case types.DisconnectedEvent:
		sessionLogger.WithField("reason", v.Reason).Error("Session disconnected")
	case types.SyncProgressEvent:
		sessionLogger.WithFields(logrus.Fields{
			"percent": v.Percent,
			"message": v.Message,
		}).Debug("Session sync progress")
	case types.MessageEvent:
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.relayMessage(ctx, v)
		}()
	}
}

// hostPairingCode renders the pairing artifact to a QR image and hosts it so
// the account owner can scan it. Hosting failure is non-fatal: the session
// still becomes ready once the account approves by other means.
func (r *InboundRelay) hostPairingCode(ctx context.Context, code string) {
	logger := r.logger.WithField(LogFieldSession, r.session.Name())

	png, err := qrcode.Encode(code, qrcode.Medium, constants.DefaultQRCodeSizePx)
	if err != nil {
		logger.WithError(err).Warn("Failed to render pairing code image")
		return
	}

	url, err := r.hoster.HostImage(ctx, png)
	if err != nil {
		logger.WithError(err).Warn("Failed to host pairing code image")
		return
	}

	logger.WithField(LogFieldURL, url).Info("Pairing code hosted, scan to authorize the session")
}

// relayMessage performs the full relay for one inbound message. Every
// failure is swallowed after logging; nothing is surfaced to the sender.
func (r *InboundRelay) relayMessage(ctx context.Context, ev types.MessageEvent) {
	msg := ev.Message
	if msg.FromMe {
		return
	}

	ctx, span := tracing.StartSpan(ctx, "relay_message",
		attribute.String("message.id", msg.ID),
		attribute.Bool("message.has_media", msg.HasMedia),
	)
	defer span.End()

	logger := r.logger.WithFields(logrus.Fields{
		LogFieldSession:   r.session.Name(),
		LogFieldMessageID: msg.ID,
		LogFieldChatID:    privacy.MaskChatID(msg.Chat),
	})

	payload, err := r.buildPayload(ctx, ev)
	if err != nil {
		tracing.RecordError(ctx, err)
		metrics.IncrementCounter("relay_failures_total", nil, "Inbound messages that failed to relay")
		logger.WithError(err).Error("Failed to relay inbound message")
		return
	}

	status, err := r.postWebhook(ctx, payload)
	if err != nil {
		tracing.RecordError(ctx, err)
		metrics.IncrementCounter("relay_failures_total", nil, "Inbound messages that failed to relay")
		logger.WithError(err).Error("Failed to deliver webhook")
		return
	}

	metrics.IncrementCounter("relay_messages_total", nil, "Inbound messages relayed to the webhook")
	logger.WithField(LogFieldStatusCode, status).Info("Inbound message relayed")
}

func (r *InboundRelay) buildPayload(ctx context.Context, ev types.MessageEvent) (*models.WebhookPayload, error) {
	msg := ev.Message

	token, err := r.tokens.GetAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	payload := &models.WebhookPayload{
		From:        msg.From,
		AccessToken: token.Value,
		Timestamp:   msg.Timestamp.Unix(),
	}

	if !msg.HasMedia || ev.Download == nil {
		payload.Text = msg.Text
		return payload, nil
	}

	data, err := ev.Download(ctx)
	if err != nil {
		return nil, err
	}

	url, err := r.hoster.HostImage(ctx, data)
	if err != nil {
		return nil, err
	}

	payload.ImageURL = url
	payload.Mimetype = msg.MimeType
	if msg.Caption != "" {
		payload.Text = msg.Caption
	} else {
		payload.Text = msg.Text
	}
	return payload, nil
}

func (r *InboundRelay) postWebhook(ctx context.Context, payload *models.WebhookPayload) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.webhookURL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}
