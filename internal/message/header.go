package message

import (
	"mime"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-message/charset"
)

var headerDecoder = mime.WordDecoder{CharsetReader: charset.Reader}

// DecodeHeader reverses RFC 2047 encoded words in a header value. The wire
// "NIL" token renders as an empty string. Values the decoder cannot handle
// are returned as-is rather than failing the render.
func DecodeHeader(value string) string {
	if value == "" || strings.EqualFold(value, "NIL") {
		return ""
	}
	decoded, err := headerDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

// SenderName resolves the display name for the first "from" address. When
// the personal name is absent it synthesizes mailbox@host from the address
// parts.
func SenderName(env *imap.Envelope) string {
	if env == nil || len(env.From) == 0 || env.From[0] == nil {
		return ""
	}
	addr := env.From[0]
	if name := DecodeHeader(addr.PersonalName); name != "" {
		return name
	}
	if addr.HostName == "" {
		return addr.MailboxName
	}
	return addr.MailboxName + "@" + addr.HostName
}
