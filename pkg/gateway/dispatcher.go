// Copyright 2024-2026 Aiku AI

package gateway

import (
	"time"

	"github.com/rs/zerolog"
)

// messageForwarder is the outbound side of the dispatcher. An interface so
// tests can inject a recorder instead of a live HTTP forwarder.
type messageForwarder interface {
	Forward(senderAddress, text string, ts time.Time)
}

// Dispatcher routes transport events to the components that own them. It
// holds no business logic of its own: state transitions belong to the
// supervisor, contact merging to the cache, persistence to the credential
// store and delivery to the forwarder. Events arrive in transport order;
// gen identifies the emitting session so events from a torn-down session
// are dropped at the supervisor's serialization point.
type Dispatcher struct {
	sup       *Supervisor
	contacts  *ContactCache
	creds     *CredentialStore
	forwarder messageForwarder
	log       zerolog.Logger
}

func NewDispatcher(sup *Supervisor, contacts *ContactCache, creds *CredentialStore, forwarder messageForwarder, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		sup:       sup,
		contacts:  contacts,
		creds:     creds,
		forwarder: forwarder,
		log:       log.With().Str("component", "dispatcher").Logger(),
	}
}

// Handle routes one event from session generation gen.
func (d *Dispatcher) Handle(gen uint64, evt Event) {
	switch e := evt.(type) {
	case PairingEvent:
		d.sup.onPairing(gen, e)
	case OpenEvent:
		if d.sup.onOpen(gen, e) {
			d.contacts.Upsert(e.Contacts)
		}
	case CloseEvent:
		d.sup.onClose(gen, e)
	case ContactsUpsertEvent:
		d.sup.live(gen, func() {
			d.contacts.Upsert(e.Contacts)
		})
	case ContactsSyncEvent:
		d.sup.live(gen, func() {
			d.contacts.ResetTo(e.Contacts)
		})
	case MessageEvent:
		d.handleMessage(gen, e)
	case CredentialsEvent:
		// Durable before returning to the transport's event loop: losing a
		// rotated credential forces a full re-pairing.
		d.sup.live(gen, func() {
			if err := d.creds.Save(e.Credential); err != nil {
				d.log.Error().Err(err).Msg("Failed to persist rotated credentials")
			} else {
				d.log.Debug().Msg("Rotated credentials persisted")
			}
		})
	default:
		d.log.Warn().Type("event", evt).Msg("Unhandled transport event")
	}
}

func (d *Dispatcher) handleMessage(gen uint64, e MessageEvent) {
	text, ok := screenInbound(d.sup.OwnJID(), e)
	if !ok {
		d.log.Trace().Str("chat", e.Chat).Bool("from_me", e.FromMe).Msg("Dropped inbound message")
		return
	}
	sender := NormalizeJID(e.Sender)
	d.sup.live(gen, func() {
		d.log.Debug().Str("sender", sender).Int("len", len(text)).Msg("Forwarding inbound message")
		// Fire-and-forget: the forwarder bounds itself with a timeout and
		// drops on failure, so ingestion never stalls on the webhook.
		go d.forwarder.Forward(sender, text, e.Timestamp)
	})
}

// screenInbound applies the inbound-message filter: drop echoes of our own
// sends, messages to non-person chats (groups, broadcasts) and messages with
// no extractable text. Returns the surviving text.
func screenInbound(ownJID string, e MessageEvent) (string, bool) {
	if e.FromMe {
		return "", false
	}
	sender := NormalizeJID(e.Sender)
	if ownJID != "" && sender == ownJID {
		return "", false
	}
	if e.Group || !IsPersonJID(e.Chat) {
		return "", false
	}
	if e.Text == "" {
		return "", false
	}
	return e.Text, true
}
