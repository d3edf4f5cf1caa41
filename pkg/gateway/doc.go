// Copyright 2024-2026 Aiku AI

// Package gateway supervises a single persistent WhatsApp session and
// bridges it to an external decision service.
//
// The [Supervisor] owns the session lifecycle: it is the only component that
// creates or tears down transport sessions, and the single serialization
// point for connection state, the pairing challenge, the retry counter and
// the retry timer. Sessions are generation-stamped so callbacks from a
// replaced session are dropped instead of corrupting its successor.
//
// The [Dispatcher] routes the transport's event stream: state changes to the
// supervisor, contact updates to the [ContactCache], credential rotations to
// the [CredentialStore], and inbound user text, after filtering, to the
// [Forwarder], which posts it to the decision webhook and relays any reply
// through the [Sender].
//
// The [APIServer] is a small CORS-open HTTP surface (/status, /connect,
// /disconnect, /contacts, /send) for the hosting process.
//
// # Inbound filtering
//
// Only messages that (a) do not originate from the session's own address,
// (b) target an individual person chat and (c) carry extractable plain text
// or an interactive-reply selection ID are forwarded. Everything else is
// dropped before it reaches the webhook.
//
// # Delivery semantics
//
// Webhook delivery is at-most-once: failures are logged and dropped, never
// queued or retried. Sends requested via the API are likewise never retried
// automatically; the caller gets a classified error and decides.
//
// The wameow subpackage adapts go.mau.fi/whatsmeow to the narrow [Session]
// and [Dialer] interfaces this package is written against.
package gateway
