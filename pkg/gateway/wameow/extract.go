// Copyright 2024-2026 Aiku AI

package wameow

import (
	"google.golang.org/protobuf/proto"

	"go.mau.fi/whatsmeow/proto/waE2E"
)

// textMessage builds a plain text outbound message.
func textMessage(text string) *waE2E.Message {
	return &waE2E.Message{Conversation: proto.String(text)}
}

// extractText pulls the best plain-text reading out of a message: direct
// conversation text, extended (link/quote) text, or the selection ID of an
// interactive button/list/template reply, which the decision service treats
// the same as typed text. Returns "" when nothing usable is present
// (media-only, reactions, protocol messages and so on).
func extractText(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if t := msg.GetConversation(); t != "" {
		return t
	}
	if t := msg.GetExtendedTextMessage().GetText(); t != "" {
		return t
	}
	if t := msg.GetButtonsResponseMessage().GetSelectedButtonID(); t != "" {
		return t
	}
	if t := msg.GetListResponseMessage().GetSingleSelectReply().GetSelectedRowID(); t != "" {
		return t
	}
	if t := msg.GetTemplateButtonReplyMessage().GetSelectedID(); t != "" {
		return t
	}
	if inner := msg.GetEphemeralMessage().GetMessage(); inner != nil {
		return extractText(inner)
	}
	return ""
}
