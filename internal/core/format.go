package core

// Truncation bounds for quoted reply content.
const (
	replyMaxLen  = 100
	replyHeadLen = 70
	replyTailLen = 20
)

// TruncateQuote shortens quoted content for the reply preamble: content
// longer than 100 characters keeps the first 70 and last 20 around an
// ellipsis, shorter content is returned unmodified.
func TruncateQuote(content string) string {
	// Bounds are in characters, not bytes: byte slicing would split runes
	// in multibyte content.
	r := []rune(content)
	if len(r) <= replyMaxLen {
		return content
	}
	return string(r[:replyHeadLen]) + "..." + string(r[len(r)-replyTailLen:])
}

// ReplyPreamble renders the quote line prepended when relaying a reply.
// Returns "" when reply is nil so adapters can unconditionally concatenate.
func ReplyPreamble(reply *OriginalMessage) string {
	if reply == nil {
		return ""
	}
	return "Replying to " + reply.User.FullName() + ": '" + TruncateQuote(reply.Content) + "'\n"
}
