// Copyright 2024-2026 Aiku AI

package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeSend records one SendText call.
type fakeSend struct {
	JID  string
	Text string
}

// fakeSession is a scripted transport session.
type fakeSession struct {
	mu        sync.Mutex
	sent      []fakeSend
	presence  []string
	stopped   bool
	loggedOut bool
	sendErr   error
	nextID    string
}

func (s *fakeSession) SendText(_ context.Context, jid, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return "", s.sendErr
	}
	s.sent = append(s.sent, fakeSend{JID: jid, Text: text})
	return s.nextID, nil
}

func (s *fakeSession) SendPresence(jid string, composing bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := "paused"
	if composing {
		state = "composing"
	}
	s.presence = append(s.presence, state+":"+jid)
	return nil
}

func (s *fakeSession) Logout(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loggedOut = true
	return nil
}

func (s *fakeSession) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func (s *fakeSession) OwnJID() string { return "me@s.whatsapp.net" }

func (s *fakeSession) sentMessages() []fakeSend {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]fakeSend(nil), s.sent...)
}

func (s *fakeSession) presenceSignals() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.presence...)
}

func (s *fakeSession) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *fakeSession) isLoggedOut() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedOut
}

// fakeDialer hands out fakeSessions and keeps each session's event handler
// so tests can inject transport events.
type fakeDialer struct {
	mu       sync.Mutex
	dialErr  error
	sessions []*fakeSession
	handlers []func(Event)
}

func (d *fakeDialer) Dial(_ context.Context, onEvent func(Event)) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	s := &fakeSession{nextID: "MSG1"}
	d.sessions = append(d.sessions, s)
	d.handlers = append(d.handlers, onEvent)
	return s, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handlers)
}

func (d *fakeDialer) lastSession() *fakeSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sessions) == 0 {
		return nil
	}
	return d.sessions[len(d.sessions)-1]
}

// emit delivers an event through the most recent session's handler.
func (d *fakeDialer) emit(evt Event) {
	d.mu.Lock()
	h := d.handlers[len(d.handlers)-1]
	d.mu.Unlock()
	h(evt)
}

// handlerAt returns the handler of the i-th dialed session, for stale
// callback tests.
func (d *fakeDialer) handlerAt(i int) func(Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handlers[i]
}

// recordedForward captures one Forward call.
type recordedForward struct {
	Sender string
	Text   string
	TS     time.Time
}

// recForwarder records forwards instead of hitting a webhook.
type recForwarder struct {
	mu    sync.Mutex
	calls []recordedForward
}

func (f *recForwarder) Forward(sender, text string, ts time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedForward{Sender: sender, Text: text, TS: ts})
}

func (f *recForwarder) forwards() []recordedForward {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedForward(nil), f.calls...)
}

// testConfig returns a config tuned for fast tests.
func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.WebhookURL = "http://127.0.0.1:1/hook"
	cfg.MaxRetries = 5
	cfg.RetryDelay = 25 * time.Millisecond
	cfg.ConnectTimeout = time.Second
	cfg.SendTimeout = time.Second
	cfg.TypingDelayMin = time.Millisecond
	cfg.TypingDelayMax = 2 * time.Millisecond
	return cfg
}

// testRig is a fully wired supervisor against fakes.
type testRig struct {
	cfg       *Config
	sup       *Supervisor
	dialer    *fakeDialer
	contacts  *ContactCache
	creds     *CredentialStore
	forwarder *recForwarder
	sender    *Sender
}

func newTestRig(t *testing.T, cfg *Config) *testRig {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	creds, err := NewCredentialStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create credential store: %v", err)
	}
	log := zerolog.Nop()
	dialer := &fakeDialer{}
	contacts := NewContactCache()
	sup := NewSupervisor(cfg, dialer, creds, contacts, NopPresenter{}, log)
	fwd := &recForwarder{}
	sup.SetDispatcher(NewDispatcher(sup, contacts, creds, fwd, log))
	return &testRig{
		cfg:       cfg,
		sup:       sup,
		dialer:    dialer,
		contacts:  contacts,
		creds:     creds,
		forwarder: fwd,
		sender:    NewSender(sup, cfg, log),
	}
}

// connectAndOpen drives the rig to a connected session.
func (r *testRig) connectAndOpen(t *testing.T) {
	t.Helper()
	r.sup.RequestConnect()
	waitFor(t, "transport dialed", func() bool { return r.dialer.dialCount() > 0 })
	r.dialer.emit(OpenEvent{OwnJID: "me@s.whatsapp.net"})
	waitFor(t, "session open", func() bool { return r.sup.Status().State == StateConnected })
	waitFor(t, "session attached", func() bool {
		_, err := r.sup.CurrentSession()
		return err == nil
	})
}

// waitFor polls cond until it holds or the deadline expires.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
