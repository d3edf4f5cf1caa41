// Copyright 2024-2026 Aiku AI

package gateway

import (
	"sort"
	"strings"
	"sync"
)

// Contact is a known correspondent, keyed by its normalized address.
type Contact struct {
	JID    string `json:"jid"`
	Name   string `json:"name,omitempty"`
	Notify string `json:"notify,omitempty"`
	ImgURL string `json:"imgUrl,omitempty"`
}

// ContactCache is the in-memory contact directory for the current session.
// It is written by the Event Dispatcher and read concurrently by the control
// API, so all access goes through the RWMutex. The directory is not
// meaningful across sessions; the supervisor resets it on every teardown.
type ContactCache struct {
	mu       sync.RWMutex
	contacts map[string]Contact
}

func NewContactCache() *ContactCache {
	return &ContactCache{contacts: make(map[string]Contact)}
}

// Upsert merges the given records by normalized address. An incoming record
// overwrites only the fields it supplies; empty fields never clear existing
// data. Applying the same batch twice is a no-op.
func (c *ContactCache) Upsert(contacts []Contact) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, in := range contacts {
		jid := NormalizeJID(in.JID)
		if jid == "" {
			continue
		}
		cur := c.contacts[jid]
		cur.JID = jid
		if in.Name != "" {
			cur.Name = in.Name
		}
		if in.Notify != "" {
			cur.Notify = in.Notify
		}
		if in.ImgURL != "" {
			cur.ImgURL = in.ImgURL
		}
		c.contacts[jid] = cur
	}
}

// ResetTo replaces the whole directory, used on full-resync events.
func (c *ContactCache) ResetTo(contacts []Contact) {
	c.mu.Lock()
	c.contacts = make(map[string]Contact, len(contacts))
	c.mu.Unlock()
	c.Upsert(contacts)
}

// Reset clears the directory.
func (c *ContactCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contacts = make(map[string]Contact)
}

// Len returns the number of cached contacts.
func (c *ContactCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.contacts)
}

// List returns a snapshot sorted by display name, falling back to
// notify-name and then address, so repeated calls present deterministically.
func (c *ContactCache) List() []Contact {
	c.mu.RLock()
	out := make([]Contact, 0, len(c.contacts))
	for _, ct := range c.contacts {
		out = append(out, ct)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := sortKey(out[i]), sortKey(out[j])
		if a != b {
			return a < b
		}
		return out[i].JID < out[j].JID
	})
	return out
}

func sortKey(c Contact) string {
	switch {
	case c.Name != "":
		return strings.ToLower(c.Name)
	case c.Notify != "":
		return strings.ToLower(c.Notify)
	default:
		return c.JID
	}
}
