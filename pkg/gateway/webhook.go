// Copyright 2024-2026 Aiku AI

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/util/jsontime"
)

// Replier delivers decision-service responses back to the original sender.
// Satisfied by *Sender.
type Replier interface {
	SendText(ctx context.Context, jid, text string) (string, error)
}

// ForwardPayload is the wire format delivered to the decision webhook.
type ForwardPayload struct {
	SenderAddress string             `json:"senderAddress"`
	Text          string             `json:"text"`
	Timestamp     jsontime.UnixMilli `json:"timestamp"`
}

// forwardReply is the optional decision-service response body.
type forwardReply struct {
	ResponsePayload string `json:"responsePayload"`
}

// Forwarder posts inbound user text to the external decision service.
// Delivery is deliberately at-most-once: no queue, no retry. A failure is
// logged with its diagnostic and the message is dropped. (An outbox with
// retries would change the consumer's dedup contract, so it stays out.)
type Forwarder struct {
	url     string
	client  *http.Client
	replier Replier
	log     zerolog.Logger
}

func NewForwarder(url string, timeout time.Duration, replier Replier, log zerolog.Logger) *Forwarder {
	return &Forwarder{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		replier: replier,
		log:     log.With().Str("component", "webhook").Logger(),
	}
}

// Forward delivers one inbound message. If the decision service answers with
// a non-empty responsePayload, it is sent back to the sender verbatim.
func (f *Forwarder) Forward(senderAddress, text string, ts time.Time) {
	body, err := json.Marshal(ForwardPayload{
		SenderAddress: senderAddress,
		Text:          text,
		Timestamp:     jsontime.UM(ts),
	})
	if err != nil {
		f.log.Error().Err(err).Msg("Failed to encode webhook payload")
		return
	}

	resp, err := f.client.Post(f.url, "application/json", bytes.NewReader(body))
	if err != nil {
		f.log.Error().Err(err).Str("sender", senderAddress).Msg("Webhook delivery failed, message dropped")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.log.Error().Int("status", resp.StatusCode).Str("sender", senderAddress).
			Msg("Webhook rejected payload, message dropped")
		return
	}

	var reply forwardReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		// An empty or non-JSON 2xx body just means "no reply".
		f.log.Trace().Err(err).Msg("No parseable webhook reply body")
		return
	}
	if reply.ResponsePayload == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.client.Timeout)
	defer cancel()
	if _, err := f.replier.SendText(ctx, senderAddress, reply.ResponsePayload); err != nil {
		f.log.Error().Err(err).Str("sender", senderAddress).Msg("Failed to deliver webhook reply")
	}
}
