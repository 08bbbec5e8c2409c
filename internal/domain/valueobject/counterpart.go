package valueobject

import "strings"

// CounterpartFromConversation derives the addressable counterpart identity
// from an opaque network conversation id.
//
// Conversation ids look like "55511999887766@s.whatsapp.net" for direct
// peers, "123456-789@g.us" for groups, and may carry a ":device" routing
// suffix on the local part. The counterpart is the local part with the
// routing suffix stripped. Returns "" when nothing derivable remains.
func CounterpartFromConversation(conversationID string) string {
	local := conversationID
	if at := strings.Index(local, "@"); at >= 0 {
		local = local[:at]
	}
	if colon := strings.Index(local, ":"); colon >= 0 {
		local = local[:colon]
	}
	return strings.TrimSpace(local)
}

// Fixed placeholder strings for non-text payloads. The gateway never stores
// media bytes — only the fact that a non-text message happened.
var kindPlaceholders = map[string]string{
	"image":    "[image]",
	"video":    "[video]",
	"audio":    "[audio]",
	"voice":    "[voice note]",
	"sticker":  "[sticker]",
	"document": "[document]",
	"contact":  "[contact card]",
	"location": "[location]",
	"reaction": "[reaction]",
}

// NormalizeText maps a raw payload to its stored textual representation.
// Text payloads pass through trimmed; known non-text kinds map to fixed
// placeholders; unknown non-text kinds map to a generic placeholder.
func NormalizeText(kind, text string) string {
	trimmed := strings.TrimSpace(text)
	if kind == "" || kind == "text" {
		return trimmed
	}
	if trimmed != "" {
		// Caption on a media message: keep the placeholder prefix so the
		// dashboard can tell it apart from plain text.
		if ph, ok := kindPlaceholders[kind]; ok {
			return ph + " " + trimmed
		}
		return "[media] " + trimmed
	}
	if ph, ok := kindPlaceholders[kind]; ok {
		return ph
	}
	return "[unsupported]"
}
