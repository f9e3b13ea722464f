package whatsapp

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"whatshook/internal/constants"
	apperrors "whatshook/internal/errors"
	"whatshook/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	watypes "go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

// OpenStore opens the local credential store the session provider persists
// between restarts
func OpenStore(ctx context.Context, path string) (*sqlstore.Container, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", path)
	return sqlstore.New(ctx, "sqlite3", dsn, waLog.Stdout("SessionStore", "ERROR", true))
}

// SessionManager owns one messaging-network session identified by a label.
// It publishes lifecycle and message events on a single stream and exposes
// the send/receive primitives. Sends are serialized; the underlying
// transport is not assumed safe for concurrent sends.
type SessionManager struct {
	name   string
	client *whatsmeow.Client
	logger *logrus.Logger

	events chan types.Event

	mu    sync.Mutex
	state types.SessionState

	sendMu sync.Mutex
}

// NewSessionManager constructs a manager for the named session, backed by
// the given credential store
func NewSessionManager(ctx context.Context, container *sqlstore.Container, name string, logger *logrus.Logger) (*SessionManager, error) {
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInit, "failed to load session device")
	}

	client := whatsmeow.NewClient(device, waLog.Stdout("Session", "ERROR", true))

	// Disconnection is terminal for a session instance; a silent transport
	// reconnect would leave the lifecycle and the socket disagreeing.
	client.EnableAutoReconnect = false

	return &SessionManager{
		name:   name,
		client: client,
		logger: logger,
		events: make(chan types.Event, constants.SessionEventBufferSize),
		state:  types.SessionUninitialized,
	}, nil
}

// Name returns the session label
func (m *SessionManager) Name() string {
	return m.name
}

// Events returns the session event stream. The stream carries lifecycle
// events and every inbound message.
func (m *SessionManager) Events() <-chan types.Event {
	return m.events
}

// State returns the current lifecycle state
func (m *SessionManager) State() types.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Initialize starts the underlying transport. When no credentials are
// stored the session enters pairing and emits pairing codes; otherwise it
// reconnects directly. The session then runs until process exit.
func (m *SessionManager) Initialize(ctx context.Context) error {
	m.client.AddEventHandler(m.handleTransportEvent)

	if m.client.Store.ID == nil {
		qrChan, err := m.client.GetQRChannel(ctx)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInit, "failed to open pairing channel")
		}
		if err := m.client.Connect(); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInit, "failed to connect transport")
		}
		m.transition(types.SessionPairing)
		go m.pairingLoop(qrChan)
		return nil
	}

	if err := m.client.Connect(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInit, "failed to connect transport")
	}
	return nil
}

// Close disconnects the transport
func (m *SessionManager) Close() {
	m.client.Disconnect()
}

func (m *SessionManager) pairingLoop(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			m.publish(types.PairingCodeEvent{Code: item.Code})
		case "success":
			// Connected event carries the ready transition
		case "timeout":
			m.transition(types.SessionAuthFailed)
			m.publish(types.AuthFailureEvent{Reason: "pairing timed out before the code was scanned"})
		default:
			reason := item.Event
			if item.Error != nil {
				reason = item.Error.Error()
			}
			m.transition(types.SessionAuthFailed)
			m.publish(types.AuthFailureEvent{Reason: reason})
		}
	}
}

func (m *SessionManager) handleTransportEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Connected:
		if m.transition(types.SessionReady) {
			m.publish(types.ReadyEvent{})
		}
	case *events.Disconnected:
		if m.transition(types.SessionDisconnected) {
			m.publish(types.DisconnectedEvent{Reason: "transport disconnected"})
		}
	case *events.LoggedOut:
		reason := fmt.Sprintf("logged out by server: %v", v.Reason)
		if m.State() == types.SessionPairing {
			m.transition(types.SessionAuthFailed)
			m.publish(types.AuthFailureEvent{Reason: reason})
			return
		}
		if m.transition(types.SessionDisconnected) {
			m.publish(types.DisconnectedEvent{Reason: reason})
		}
	case *events.PairError:
		m.transition(types.SessionAuthFailed)
		m.publish(types.AuthFailureEvent{Reason: v.Error.Error()})
	case *events.OfflineSyncPreview:
		m.publish(types.SyncProgressEvent{Percent: 0, Message: fmt.Sprintf("syncing %d missed messages", v.Messages)})
	case *events.OfflineSyncCompleted:
		m.publish(types.SyncProgressEvent{Percent: 100, Message: fmt.Sprintf("offline sync complete, %d items", v.Count)})
	case *events.Message:
		m.publish(m.messageEvent(v))
	}
}

// messageEvent converts a transport message into the normalized inbound
// form, attaching a media download closure when a payload is present
func (m *SessionManager) messageEvent(v *events.Message) types.MessageEvent {
	msg := types.InboundMessage{
		ID:        v.Info.ID,
		From:      v.Info.Sender.User,
		Chat:      v.Info.Chat.String(),
		FromMe:    v.Info.IsFromMe,
		Timestamp: v.Info.Timestamp,
	}

	if text := v.Message.GetConversation(); text != "" {
		msg.Text = text
	} else if ext := v.Message.GetExtendedTextMessage(); ext != nil {
		msg.Text = ext.GetText()
	}

	ev := types.MessageEvent{Message: msg}

	if img := v.Message.GetImageMessage(); img != nil {
		msg.HasMedia = true
		msg.MimeType = img.GetMimetype()
		msg.Caption = img.GetCaption()
		ev.Message = msg

		client := m.client
		ev.Download = func(ctx context.Context) ([]byte, error) {
			data, err := client.Download(ctx, img)
			if err != nil {
				return nil, apperrors.Wrap(err, apperrors.ErrCodeMedia, "failed to download inbound media").WithContext("message_id", msg.ID)
			}
			return data, nil
		}
	}

	return ev
}

// SendText sends a plain text message to the recipient
func (m *SessionManager) SendText(ctx context.Context, recipient, text string) error {
	jid, err := parseRecipient(recipient)
	if err != nil {
		return err
	}

	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	if m.State() != types.SessionReady {
		return apperrors.New(apperrors.ErrCodeSend, fmt.Sprintf("session %s is %s, not ready", m.name, m.State()))
	}

	msg := &waE2E.Message{Conversation: proto.String(text)}
	if _, err := m.client.SendMessage(ctx, jid, msg); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeSend, "transport rejected text send").WithContext("recipient", recipient)
	}
	return nil
}

// SendImage uploads the media payload and sends it to the recipient with an
// optional caption
func (m *SessionManager) SendImage(ctx context.Context, recipient string, media *types.MediaObject, caption string) error {
	jid, err := parseRecipient(recipient)
	if err != nil {
		return err
	}

	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	if m.State() != types.SessionReady {
		return apperrors.New(apperrors.ErrCodeSend, fmt.Sprintf("session %s is %s, not ready", m.name, m.State()))
	}

	uploaded, err := m.client.Upload(ctx, media.Data, whatsmeow.MediaImage)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeSend, "failed to upload media to transport").WithContext("recipient", recipient)
	}

	imageMsg := &waE2E.ImageMessage{
		Mimetype:      proto.String(media.MimeType),
		URL:           &uploaded.URL,
		DirectPath:    &uploaded.DirectPath,
		MediaKey:      uploaded.MediaKey,
		FileEncSHA256: uploaded.FileEncSHA256,
		FileSHA256:    uploaded.FileSHA256,
		FileLength:    &uploaded.FileLength,
	}
	if caption != "" {
		imageMsg.Caption = proto.String(caption)
	}

	msg := &waE2E.Message{ImageMessage: imageMsg}
	if _, err := m.client.SendMessage(ctx, jid, msg); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeSend, "transport rejected media send").WithContext("recipient", recipient)
	}
	return nil
}

// transition moves the lifecycle forward when the table allows it
func (m *SessionManager) transition(to types.SessionState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.CanTransition(to) {
		return false
	}

	m.logger.WithFields(logrus.Fields{
		"session": m.name,
		"from":    string(m.state),
		"to":      string(to),
	}).Info("Session state changed")

	m.state = to
	return true
}

func (m *SessionManager) publish(ev types.Event) {
	m.events <- ev
}

func parseRecipient(recipient string) (watypes.JID, error) {
	if recipient == "" {
		return watypes.JID{}, apperrors.New(apperrors.ErrCodeSend, "empty recipient")
	}
	if strings.ContainsRune(recipient, '@') {
		jid, err := watypes.ParseJID(recipient)
		if err != nil {
			return watypes.JID{}, apperrors.Wrap(err, apperrors.ErrCodeSend, "invalid recipient").WithContext("recipient", recipient)
		}
		return jid, nil
	}
	return watypes.NewJID(recipient, watypes.DefaultUserServer), nil
}
