package message

import (
	"fmt"
	"strings"

	"github.com/emersion/go-imap"

	"imapsh/internal/cache"
)

const (
	// DefaultDateFormat is the date column layout when the user has not
	// overridden it.
	DefaultDateFormat = "2006-01-02 15:04"

	// DefaultWidth is used when the terminal width cannot be determined.
	DefaultWidth = 80

	senderWidth  = 20
	subjectWidth = 20
)

// FormatOptions carry the user-tunable parts of a listing row.
type FormatOptions struct {
	Width      int // terminal width; <= 0 falls back to DefaultWidth
	DateFormat string
}

type fieldContext struct {
	index int
	meta  *cache.Metadata
	opts  FormatOptions
}

// The row is a closed set of named fields; fieldOrder fixes the columns and
// fieldExtractors holds one extractor per field.
var fieldOrder = []string{"index", "flags", "from", "subject", "date"}

var fieldExtractors = map[string]func(fieldContext) string{
	"index": func(c fieldContext) string {
		return fmt.Sprintf("%-5d", c.index)
	},
	"flags": func(c fieldContext) string {
		return flagIndicator(c.meta.Flags)
	},
	"from": func(c fieldContext) string {
		return pad(SenderName(c.meta.Envelope), senderWidth)
	},
	"subject": func(c fieldContext) string {
		subject := ""
		if c.meta.Envelope != nil {
			subject = DecodeHeader(c.meta.Envelope.Subject)
		}
		return pad(subject, subjectWidth)
	},
	"date": func(c fieldContext) string {
		layout := c.opts.DateFormat
		if layout == "" {
			layout = DefaultDateFormat
		}
		if c.meta.Envelope == nil || c.meta.Envelope.Date.IsZero() {
			return ""
		}
		return c.meta.Envelope.Date.Format(layout)
	},
}

// FormatLine renders one fixed-width summary row for a cached message. The
// composed line is truncated to the terminal width so it never wraps.
func FormatLine(id uint32, index int, meta *cache.Metadata, opts FormatOptions) string {
	ctx := fieldContext{index: index, meta: meta, opts: opts}
	cols := make([]string, 0, len(fieldOrder))
	for _, name := range fieldOrder {
		cols = append(cols, fieldExtractors[name](ctx))
	}

	width := opts.Width
	if width <= 0 {
		width = DefaultWidth
	}
	return truncate(strings.Join(cols, " "), width)
}

// flagIndicator renders the 4-character status column: N for unread, D for
// deleted, ! for flagged, and a reserved trailing blank.
func flagIndicator(flags []string) string {
	ind := []byte("    ")
	if !hasFlag(flags, imap.SeenFlag) {
		ind[0] = 'N'
	}
	if hasFlag(flags, imap.DeletedFlag) {
		ind[1] = 'D'
	}
	if hasFlag(flags, imap.FlaggedFlag) {
		ind[2] = '!'
	}
	return string(ind)
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}

func pad(s string, width int) string {
	return fmt.Sprintf("%-*s", width, truncate(s, width))
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width])
}
