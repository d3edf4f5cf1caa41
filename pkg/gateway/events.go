// Copyright 2024-2026 Aiku AI

package gateway

import (
	"context"
	"time"
)

// Session is the narrow surface the gateway drives on an established
// transport connection. Everything below it (encryption, multi-device
// pairing, retries at the socket level) belongs to the protocol library.
type Session interface {
	// SendText delivers a plain text message and returns the
	// transport-assigned message ID.
	SendText(ctx context.Context, jid, text string) (string, error)
	// SendPresence signals "composing" (true) or "paused" (false) to the
	// given chat.
	SendPresence(jid string, composing bool) error
	// Logout invalidates the session's credentials server-side.
	Logout(ctx context.Context) error
	// Stop detaches the event handler and closes the local connection
	// without touching remote credentials. Safe to call more than once.
	Stop()
	// OwnJID returns the session's own normalized address, or "" before
	// pairing has completed.
	OwnJID() string
}

// Dialer creates transport sessions. Events for a session are delivered to
// onEvent in transport order, starting before Dial returns.
type Dialer interface {
	Dial(ctx context.Context, onEvent func(Event)) (Session, error)
}

// Event is the closed set of notifications a transport session emits.
// The Dispatcher routes every variant; adding one here must be matched by
// a new case in Dispatcher.Handle.
type Event interface {
	transportEvent()
}

// CloseReason classifies why a session ended.
type CloseReason int

const (
	// CloseNetwork is a connection drop. Transient.
	CloseNetwork CloseReason = iota
	// CloseUnknown is any unclassified close. Treated as transient.
	CloseUnknown
	// CloseLoggedOut means the account was logged out elsewhere. Terminal.
	CloseLoggedOut
	// CloseReplaced means another device took over the session. Terminal.
	CloseReplaced
	// CloseBadCredentials means the server rejected our credentials. Terminal.
	CloseBadCredentials
)

// Terminal reports whether the close invalidates the stored credentials.
// Terminal closes must not be retried: reconnecting with dead credentials
// only produces a rejection loop.
func (r CloseReason) Terminal() bool {
	switch r {
	case CloseLoggedOut, CloseReplaced, CloseBadCredentials:
		return true
	default:
		return false
	}
}

func (r CloseReason) String() string {
	switch r {
	case CloseNetwork:
		return "network"
	case CloseLoggedOut:
		return "logged_out"
	case CloseReplaced:
		return "replaced"
	case CloseBadCredentials:
		return "bad_credentials"
	default:
		return "unknown"
	}
}

// PairingEvent carries a fresh pairing challenge (QR payload). A newer
// challenge supersedes any previous one.
type PairingEvent struct {
	Code string
}

// OpenEvent signals a fully authenticated session. Contacts is the bulk
// snapshot offered by the transport at open time, possibly empty.
type OpenEvent struct {
	OwnJID   string
	Contacts []Contact
}

// CloseEvent signals the session ended, expectedly or not.
type CloseEvent struct {
	Reason  CloseReason
	Message string
}

// ContactsUpsertEvent carries incremental contact updates.
type ContactsUpsertEvent struct {
	Contacts []Contact
}

// ContactsSyncEvent carries a full resync; the directory is replaced.
type ContactsSyncEvent struct {
	Contacts []Contact
}

// MessageEvent is an inbound message. Text is the best-effort extracted
// plain text; interactive reply IDs (button / list selections) count as
// text. Empty Text means nothing extractable was present.
type MessageEvent struct {
	Sender    string
	Chat      string
	FromMe    bool
	Group     bool
	Text      string
	Timestamp time.Time
}

// CredentialsEvent carries a rotated credential blob that must be durable
// before the rotation is considered handled.
type CredentialsEvent struct {
	Credential []byte
}

func (PairingEvent) transportEvent()        {}
func (OpenEvent) transportEvent()           {}
func (CloseEvent) transportEvent()          {}
func (ContactsUpsertEvent) transportEvent() {}
func (ContactsSyncEvent) transportEvent()   {}
func (MessageEvent) transportEvent()        {}
func (CredentialsEvent) transportEvent()    {}
