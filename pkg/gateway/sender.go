// Copyright 2024-2026 Aiku AI

package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrNotConnected is returned when a send is attempted without a live
	// session.
	ErrNotConnected = errors.New("not connected")
	// ErrInvalidAddress is returned for recipients that are not well-formed
	// person addresses.
	ErrInvalidAddress = errors.New("invalid recipient address")
)

// Sender wraps the transport's send operation with precondition checks,
// presence simulation and error normalization. Sends are never retried here;
// the caller decides what to do with a failure.
type Sender struct {
	sup *Supervisor
	cfg *Config
	log zerolog.Logger
}

func NewSender(sup *Supervisor, cfg *Config, log zerolog.Logger) *Sender {
	return &Sender{
		sup: sup,
		cfg: cfg,
		log: log.With().Str("component", "sender").Logger(),
	}
}

// SendText delivers text to jid and returns the transport-assigned message
// ID. The session must be connected and jid must be a person address, else
// the call fails without touching the transport. A "composing" presence is
// signalled before the send and "paused" after, with a short randomized
// delay in between so the indicator has time to propagate.
func (s *Sender) SendText(ctx context.Context, jid, text string) (string, error) {
	jid = NormalizeJID(jid)
	if !IsPersonJID(jid) {
		return "", fmt.Errorf("%w: %s", ErrInvalidAddress, jid)
	}
	sess, err := s.sup.CurrentSession()
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()

	if err := sess.SendPresence(jid, true); err != nil {
		s.log.Debug().Err(err).Str("jid", jid).Msg("Failed to send composing presence")
	}
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("send to %s: %w", jid, ctx.Err())
	case <-time.After(s.typingDelay()):
	}

	msgID, err := sess.SendText(ctx, jid, text)
	if perr := sess.SendPresence(jid, false); perr != nil {
		s.log.Debug().Err(perr).Str("jid", jid).Msg("Failed to send paused presence")
	}
	if err != nil {
		return "", fmt.Errorf("send to %s: %w", jid, err)
	}
	s.log.Info().Str("jid", jid).Str("message_id", msgID).Msg("Message sent")
	return msgID, nil
}

// typingDelay picks a random duration in [TypingDelayMin, TypingDelayMax].
func (s *Sender) typingDelay() time.Duration {
	min, max := s.cfg.TypingDelayMin, s.cfg.TypingDelayMax
	if max <= min {
		return min
	}
	return min + rand.N(max-min)
}
