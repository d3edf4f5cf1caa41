// Copyright 2024-2026 Aiku AI

package gateway

import "strings"

// PersonServer is the JID server component of individual user addresses.
const PersonServer = "s.whatsapp.net"

// NormalizeJID canonicalizes an address: the device/agent suffix is dropped
// from the user part and the server is lowercased. "27821234567:12@S.WhatsApp.Net"
// becomes "27821234567@s.whatsapp.net". Inputs without an "@" are returned
// unchanged.
func NormalizeJID(jid string) string {
	user, server, ok := strings.Cut(jid, "@")
	if !ok {
		return jid
	}
	if idx := strings.IndexAny(user, ":."); idx >= 0 {
		user = user[:idx]
	}
	return user + "@" + strings.ToLower(server)
}

// IsPersonJID reports whether the address refers to an individual user, as
// opposed to a group, broadcast list or newsletter.
func IsPersonJID(jid string) bool {
	user, server, ok := strings.Cut(NormalizeJID(jid), "@")
	return ok && user != "" && server == PersonServer
}
