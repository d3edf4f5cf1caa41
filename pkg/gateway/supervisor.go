// Copyright 2024-2026 Aiku AI

package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// ConnState is the session lifecycle state. Exactly one value holds at any
// instant and only the supervisor mutates it, under its mutex.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateLoggingOut
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateLoggingOut:
		return "logging_out"
	default:
		return "disconnected"
	}
}

// Status is a point-in-time snapshot of the session lifecycle.
type Status struct {
	State          ConnState
	QRCode         string
	LastDisconnect string
	Retries        int
}

// Supervisor owns the session lifecycle: it is the only component allowed to
// create or tear down a transport session, and the single serialization
// point for all mutable session state (state, pairing challenge, retry
// counter, diagnostic, the live session handle and the retry timer).
//
// Every session is stamped with a generation number. Teardown bumps the
// generation before detaching the handle, so a late callback from a replaced
// session can never corrupt the state of its successor.
type Supervisor struct {
	dialer    Dialer
	creds     *CredentialStore
	contacts  *ContactCache
	presenter Presenter
	cfg       *Config
	log       zerolog.Logger

	// dispatcher routes session events; set once during wiring.
	dispatcher *Dispatcher

	mu             sync.Mutex
	state          ConnState
	qrCode         string
	lastDisconnect string
	retries        int
	session        Session
	ownJID         string
	gen            uint64
	retry          retryTimer
}

// NewSupervisor creates a supervisor. SetDispatcher must be called before
// the first connect.
func NewSupervisor(cfg *Config, dialer Dialer, creds *CredentialStore, contacts *ContactCache, presenter Presenter, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		dialer:    dialer,
		creds:     creds,
		contacts:  contacts,
		presenter: presenter,
		cfg:       cfg,
		log:       log.With().Str("component", "supervisor").Logger(),
	}
}

// SetDispatcher wires the event dispatcher. Done post-construction because
// the dispatcher also needs a supervisor reference.
func (s *Supervisor) SetDispatcher(d *Dispatcher) {
	s.dispatcher = d
}

// Status is a pure read; it never touches the network.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		State:          s.state,
		QRCode:         s.qrCode,
		LastDisconnect: s.lastDisconnect,
		Retries:        s.retries,
	}
}

// OwnJID returns the live session's own address, or "" when not paired.
func (s *Supervisor) OwnJID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ownJID
}

// CurrentSession returns the live transport session, or ErrNotConnected.
func (s *Supervisor) CurrentSession() (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected || s.session == nil {
		return nil, ErrNotConnected
	}
	return s.session, nil
}

// RequestConnect asks for a new transport session. It is a no-op while
// already connecting or connected (concurrent calls cannot create a second
// session) and while a logout is in flight. An accepted request resets the
// retry counter, cancels any pending retry and dials asynchronously.
// The returned bool reports whether a connect was started.
func (s *Supervisor) RequestConnect() (ConnState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateDisconnected {
		return s.state, false
	}
	s.retries = 0
	s.retry.Cancel()
	s.lastDisconnect = ""
	s.state = StateConnecting
	s.log.Info().Msg("Connect requested")
	s.startConnectLocked()
	return s.state, true
}

// startConnectLocked stamps a new generation and dials in the background.
// Callers must hold s.mu and have set state to StateConnecting.
func (s *Supervisor) startConnectLocked() {
	s.gen++
	gen := s.gen
	go s.dial(gen)
}

func (s *Supervisor) dial(gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ConnectTimeout)
	defer cancel()

	sess, err := s.dialer.Dial(ctx, func(evt Event) {
		s.dispatcher.Handle(gen, evt)
	})

	s.mu.Lock()
	if gen != s.gen {
		// Superseded by a newer connect or a disconnect while dialing.
		s.mu.Unlock()
		if sess != nil {
			sess.Stop()
		}
		return
	}
	if err != nil {
		s.state = StateDisconnected
		s.lastDisconnect = fmt.Sprintf("connect failed: %v", err)
		s.scheduleRetryLocked()
		s.mu.Unlock()
		s.log.Error().Err(err).Msg("Failed to establish transport session")
		return
	}
	s.session = sess
	s.mu.Unlock()
	s.log.Debug().Uint64("gen", gen).Msg("Transport session established")
}

// RequestDisconnect tears down the session. With manual=true ("logout") the
// transport is asked to invalidate credentials server-side and the persisted
// credentials are deleted; failures there are logged but never block local
// cleanup. With manual=false ("local stop") credentials are retained for a
// later reconnect. Either way any pending retry is cancelled, the contact
// cache is cleared and the state ends in disconnected.
func (s *Supervisor) RequestDisconnect(ctx context.Context, manual bool) {
	s.mu.Lock()
	s.retry.Cancel()
	s.qrCode = ""
	s.ownJID = ""
	sess := s.session
	s.session = nil
	s.gen++ // detach: late callbacks from this session are dropped
	if manual {
		s.state = StateLoggingOut
	} else {
		s.state = StateDisconnected
		s.lastDisconnect = "stopped by operator"
	}
	s.mu.Unlock()

	s.contacts.Reset()

	if sess != nil {
		if manual {
			if err := sess.Logout(ctx); err != nil {
				s.log.Warn().Err(err).Msg("Remote logout failed, continuing local cleanup")
			}
		}
		sess.Stop()
	}

	if manual {
		if err := s.creds.Delete(); err != nil {
			s.log.Error().Err(err).Msg("Failed to delete stored credentials")
		}
		s.mu.Lock()
		s.state = StateDisconnected
		s.lastDisconnect = "logged out"
		s.mu.Unlock()
	}
	s.log.Info().Bool("manual", manual).Msg("Disconnected")
}

// live runs fn on the supervisor's serialization point if gen still refers
// to the current session. Used by the dispatcher for cache and credential
// updates so a replaced session cannot write after its teardown.
func (s *Supervisor) live(gen uint64, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}
	fn()
	return true
}

// onPairing records a pairing challenge. Only meaningful while connecting;
// a newer challenge supersedes the previous one.
func (s *Supervisor) onPairing(gen uint64, evt PairingEvent) {
	s.mu.Lock()
	if gen != s.gen || s.state != StateConnecting {
		s.mu.Unlock()
		return
	}
	s.qrCode = evt.Code
	s.mu.Unlock()
	s.log.Info().Msg("Pairing challenge received, waiting for device scan")
	if s.presenter != nil {
		s.presenter.Present(evt.Code)
	}
}

// onOpen marks the session connected: the pairing challenge is cleared, the
// retry counter resets and the diagnostic is wiped.
func (s *Supervisor) onOpen(gen uint64, evt OpenEvent) bool {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return false
	}
	s.state = StateConnected
	s.qrCode = ""
	s.retries = 0
	s.lastDisconnect = ""
	s.ownJID = NormalizeJID(evt.OwnJID)
	s.mu.Unlock()
	s.log.Info().Str("jid", evt.OwnJID).Int("contacts", len(evt.Contacts)).Msg("Session open")
	return true
}

// onClose classifies an unexpected close. Terminal reasons force a
// logout-style cleanup with no retry; transient ones schedule exactly one
// retry, bounded by the retry counter.
func (s *Supervisor) onClose(gen uint64, evt CloseEvent) {
	s.mu.Lock()
	if gen != s.gen || s.state == StateDisconnected || s.state == StateLoggingOut {
		s.mu.Unlock()
		return
	}
	s.qrCode = ""
	s.ownJID = ""
	sess := s.session
	s.session = nil
	s.gen++
	s.state = StateDisconnected
	s.lastDisconnect = fmt.Sprintf("%s: %s", evt.Reason, evt.Message)
	terminal := evt.Reason.Terminal()
	if terminal {
		s.retry.Cancel()
	} else {
		s.scheduleRetryLocked()
	}
	retries := s.retries
	s.mu.Unlock()

	s.contacts.Reset()
	if sess != nil {
		sess.Stop()
	}

	if terminal {
		s.log.Warn().Stringer("reason", evt.Reason).Str("message", evt.Message).
			Msg("Terminal close, deleting credentials")
		if err := s.creds.Delete(); err != nil {
			s.log.Error().Err(err).Msg("Failed to delete stored credentials")
		}
	} else {
		s.log.Warn().Stringer("reason", evt.Reason).Str("message", evt.Message).
			Int("retries", retries).Msg("Transient close")
	}
}

// scheduleRetryLocked arms the single retry timer unless the bound is
// exhausted. Callers must hold s.mu.
func (s *Supervisor) scheduleRetryLocked() {
	if s.retries >= s.cfg.MaxRetries {
		s.log.Warn().Int("retries", s.retries).Msg("Retry bound reached, waiting for explicit connect")
		return
	}
	s.retry.Schedule(s.cfg.RetryDelay, s.retryFire)
}

// retryFire runs when the retry timer elapses. The state is re-checked
// because a manual connect or disconnect may have superseded the timer
// between scheduling and firing.
func (s *Supervisor) retryFire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateDisconnected {
		return
	}
	if s.retries >= s.cfg.MaxRetries {
		return
	}
	s.retries++
	s.state = StateConnecting
	s.log.Info().Int("attempt", s.retries).Int("max", s.cfg.MaxRetries).Msg("Retrying connect")
	s.startConnectLocked()
}

// retryPending reports whether a retry timer is armed. Exposed for tests.
func (s *Supervisor) retryPending() bool {
	return s.retry.Pending()
}
