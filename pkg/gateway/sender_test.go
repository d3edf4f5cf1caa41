// Copyright 2024-2026 Aiku AI

package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSendTextRejectsNonPersonAddress(t *testing.T) {
	t.Parallel()
	r := newTestRig(t, nil)
	r.connectAndOpen(t)

	for _, jid := range []string{"12345-67890@g.us", "status@broadcast", "not-a-jid", "@s.whatsapp.net"} {
		if _, err := r.sender.SendText(context.Background(), jid, "hi"); !errors.Is(err, ErrInvalidAddress) {
			t.Fatalf("SendText(%q) error = %v, want ErrInvalidAddress", jid, err)
		}
	}
	if got := r.dialer.lastSession().sentMessages(); len(got) != 0 {
		t.Fatalf("expected transport untouched on invalid address, got %+v", got)
	}
}

func TestSendTextRequiresConnection(t *testing.T) {
	t.Parallel()
	r := newTestRig(t, nil)

	_, err := r.sender.SendText(context.Background(), "27821234567@s.whatsapp.net", "hi")
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("SendText error = %v, want ErrNotConnected", err)
	}
}

func TestSendTextSimulatesTyping(t *testing.T) {
	t.Parallel()
	r := newTestRig(t, nil)
	r.connectAndOpen(t)

	msgID, err := r.sender.SendText(context.Background(), "27821234567:9@s.whatsapp.net", "hello there")
	if err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	if msgID != "MSG1" {
		t.Fatalf("message ID = %q, want MSG1", msgID)
	}

	sess := r.dialer.lastSession()
	sent := sess.sentMessages()
	if len(sent) != 1 || sent[0].JID != "27821234567@s.whatsapp.net" || sent[0].Text != "hello there" {
		t.Fatalf("unexpected sends: %+v", sent)
	}
	presence := sess.presenceSignals()
	want := []string{
		"composing:27821234567@s.whatsapp.net",
		"paused:27821234567@s.whatsapp.net",
	}
	if len(presence) != 2 || presence[0] != want[0] || presence[1] != want[1] {
		t.Fatalf("presence signals = %v, want %v", presence, want)
	}
}

func TestSendTextWrapsTransportError(t *testing.T) {
	t.Parallel()
	r := newTestRig(t, nil)
	r.connectAndOpen(t)

	sess := r.dialer.lastSession()
	transportErr := errors.New("stream closed")
	sess.mu.Lock()
	sess.sendErr = transportErr
	sess.mu.Unlock()

	_, err := r.sender.SendText(context.Background(), "27821234567@s.whatsapp.net", "hi")
	if !errors.Is(err, transportErr) {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
	if !strings.Contains(err.Error(), "27821234567@s.whatsapp.net") {
		t.Fatalf("expected recipient in error, got %q", err)
	}
	// Paused presence still goes out so the peer isn't left on "typing".
	presence := sess.presenceSignals()
	if len(presence) != 2 || !strings.HasPrefix(presence[1], "paused:") {
		t.Fatalf("presence signals = %v, want composing then paused", presence)
	}
}

func TestSendTextHonoursCancelledContext(t *testing.T) {
	t.Parallel()
	r := newTestRig(t, nil)
	r.connectAndOpen(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.sender.SendText(ctx, "27821234567@s.whatsapp.net", "hi")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := r.dialer.lastSession().sentMessages(); len(got) != 0 {
		t.Fatalf("expected no send on cancelled context, got %+v", got)
	}
}
