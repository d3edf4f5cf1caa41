// Copyright 2024-2026 Aiku AI

// Package wameow adapts go.mau.fi/whatsmeow to the gateway's narrow
// transport interfaces. All protocol concerns (noise handshake, multi-device
// pairing crypto, key storage) stay inside whatsmeow; this package only maps
// its event stream onto the gateway's closed event set and exposes connect,
// send, presence and logout.
package wameow

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	_ "modernc.org/sqlite"

	"github.com/aiku/whatsapp-gateway/pkg/gateway"
)

// Dialer creates whatsmeow-backed sessions. The device store lives in a
// sqlite database inside the session directory, next to the gateway's own
// credential snapshot, so a wholesale credential delete wipes both.
type Dialer struct {
	sessionDir string
	log        zerolog.Logger
}

func NewDialer(sessionDir string, log zerolog.Logger) *Dialer {
	return &Dialer{
		sessionDir: sessionDir,
		log:        log.With().Str("component", "wameow").Logger(),
	}
}

var _ gateway.Dialer = (*Dialer)(nil)

// Dial opens the device store, registers the event handler and starts the
// connection handshake. When no device is stored, a QR pairing flow is
// started and challenges are emitted as PairingEvents.
func (d *Dialer) Dial(ctx context.Context, onEvent func(gateway.Event)) (gateway.Session, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)",
		filepath.Join(d.sessionDir, "whatsmeow.db"))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open device store: %w", err)
	}
	container := sqlstore.NewWithDB(db, "sqlite3", waLog.Zerolog(d.log.With().Str("db", "whatsmeow").Logger()))
	if err := container.Upgrade(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to upgrade device store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load device: %w", err)
	}

	cli := whatsmeow.NewClient(device, waLog.Zerolog(d.log))
	s := &session{
		cli:     cli,
		db:      db,
		onEvent: onEvent,
		log:     d.log,
	}
	s.handlerID = cli.AddEventHandler(s.handleEvent)

	if cli.Store.ID == nil {
		// Pairing flow: the QR channel must be requested before Connect.
		// Its lifetime is the pairing attempt, not the dial call, so it
		// gets its own context.
		qrChan, err := cli.GetQRChannel(context.Background())
		if err != nil {
			s.Stop()
			return nil, fmt.Errorf("failed to open QR channel: %w", err)
		}
		go s.pumpQR(qrChan)
	}

	if err := cli.Connect(); err != nil {
		s.Stop()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return s, nil
}

type session struct {
	cli       *whatsmeow.Client
	db        *sql.DB
	onEvent   func(gateway.Event)
	handlerID uint32
	stopOnce  sync.Once
	log       zerolog.Logger
}

var _ gateway.Session = (*session)(nil)

func (s *session) SendText(ctx context.Context, jid, text string) (string, error) {
	to, err := types.ParseJID(jid)
	if err != nil {
		return "", fmt.Errorf("bad JID %q: %w", jid, err)
	}
	resp, err := s.cli.SendMessage(ctx, to, textMessage(text))
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (s *session) SendPresence(jid string, composing bool) error {
	to, err := types.ParseJID(jid)
	if err != nil {
		return fmt.Errorf("bad JID %q: %w", jid, err)
	}
	state := types.ChatPresencePaused
	if composing {
		state = types.ChatPresenceComposing
	}
	return s.cli.SendChatPresence(context.Background(), to, state, types.ChatPresenceMediaText)
}

func (s *session) Logout(ctx context.Context) error {
	return s.cli.Logout(ctx)
}

func (s *session) Stop() {
	s.stopOnce.Do(func() {
		s.cli.RemoveEventHandler(s.handlerID)
		s.cli.Disconnect()
		if err := s.db.Close(); err != nil {
			s.log.Warn().Err(err).Msg("Failed to close device store")
		}
	})
}

func (s *session) OwnJID() string {
	if id := s.cli.Store.ID; id != nil {
		return id.ToNonAD().String()
	}
	return ""
}

func (s *session) pumpQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case "code":
			s.onEvent(gateway.PairingEvent{Code: item.Code})
		case "success":
			// The Connected event carries the open notification.
		default:
			s.log.Debug().Str("event", item.Event).Msg("QR channel closed")
		}
	}
}

// handleEvent translates whatsmeow events into the gateway's closed event
// set. Events are delivered in the order whatsmeow dispatches them.
func (s *session) handleEvent(raw any) {
	switch evt := raw.(type) {
	case *events.Connected:
		s.emitOpen()
	case *events.PairSuccess:
		s.emitCredentials(evt)
	case *events.LoggedOut:
		s.onEvent(gateway.CloseEvent{
			Reason:  gateway.CloseLoggedOut,
			Message: fmt.Sprintf("logged out (reason %d)", int(evt.Reason)),
		})
	case *events.StreamReplaced:
		s.onEvent(gateway.CloseEvent{
			Reason:  gateway.CloseReplaced,
			Message: "session replaced by another device",
		})
	case *events.ConnectFailure:
		s.onEvent(closeForConnectFailure(evt))
	case *events.ClientOutdated:
		s.onEvent(gateway.CloseEvent{
			Reason:  gateway.CloseBadCredentials,
			Message: "client version rejected by server",
		})
	case *events.TemporaryBan:
		s.onEvent(gateway.CloseEvent{
			Reason:  gateway.CloseUnknown,
			Message: fmt.Sprintf("temporary ban: %s", evt.String()),
		})
	case *events.Disconnected:
		s.onEvent(gateway.CloseEvent{
			Reason:  gateway.CloseNetwork,
			Message: "connection closed",
		})
	case *events.Message:
		s.emitMessage(evt)
	case *events.Contact:
		s.onEvent(gateway.ContactsUpsertEvent{Contacts: []gateway.Contact{{
			JID:  evt.JID.ToNonAD().String(),
			Name: evt.Action.GetFullName(),
		}}})
	case *events.PushName:
		s.onEvent(gateway.ContactsUpsertEvent{Contacts: []gateway.Contact{{
			JID:    evt.JID.ToNonAD().String(),
			Notify: evt.NewPushName,
		}}})
	case *events.AppStateSyncComplete:
		// A completed critical app-state sync means the contact list in the
		// device store is fresh; hand the gateway a full snapshot.
		if contacts := s.contactSnapshot(); contacts != nil {
			s.onEvent(gateway.ContactsSyncEvent{Contacts: contacts})
		}
	}
}

func closeForConnectFailure(evt *events.ConnectFailure) gateway.CloseEvent {
	if evt.Reason.IsLoggedOut() {
		return gateway.CloseEvent{
			Reason:  gateway.CloseBadCredentials,
			Message: fmt.Sprintf("connect failure %d: %s", int(evt.Reason), evt.Message),
		}
	}
	return gateway.CloseEvent{
		Reason:  gateway.CloseUnknown,
		Message: fmt.Sprintf("connect failure %d: %s", int(evt.Reason), evt.Message),
	}
}

func (s *session) emitOpen() {
	s.onEvent(gateway.OpenEvent{
		OwnJID:   s.OwnJID(),
		Contacts: s.contactSnapshot(),
	})
}

// contactSnapshot pulls the device store's contact list, dropping non-person
// entries. Returns nil when the store is unavailable.
func (s *session) contactSnapshot() []gateway.Contact {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	all, err := s.cli.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to load contact snapshot")
		return nil
	}
	contacts := make([]gateway.Contact, 0, len(all))
	for jid, info := range all {
		if jid.Server != types.DefaultUserServer {
			continue
		}
		contacts = append(contacts, gateway.Contact{
			JID:    jid.ToNonAD().String(),
			Name:   info.FullName,
			Notify: info.PushName,
		})
	}
	return contacts
}

func (s *session) emitMessage(evt *events.Message) {
	info := evt.Info
	s.onEvent(gateway.MessageEvent{
		Sender:    info.Sender.ToNonAD().String(),
		Chat:      info.Chat.ToNonAD().String(),
		FromMe:    info.IsFromMe,
		Group:     info.IsGroup || info.Chat.Server != types.DefaultUserServer,
		Text:      extractText(evt.Message),
		Timestamp: info.Timestamp,
	})
}

// storedCredential is the opaque snapshot the gateway persists on rotation.
// The heavyweight key material stays in whatsmeow's own store; this records
// which device the directory is paired as.
type storedCredential struct {
	JID          string    `json:"jid"`
	Platform     string    `json:"platform"`
	BusinessName string    `json:"businessName,omitempty"`
	PairedAt     time.Time `json:"pairedAt"`
}

func (s *session) emitCredentials(evt *events.PairSuccess) {
	blob, err := json.Marshal(storedCredential{
		JID:          evt.ID.ToNonAD().String(),
		Platform:     evt.Platform,
		BusinessName: evt.BusinessName,
		PairedAt:     time.Now().UTC(),
	})
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to encode credential snapshot")
		return
	}
	s.onEvent(gateway.CredentialsEvent{Credential: blob})
}
