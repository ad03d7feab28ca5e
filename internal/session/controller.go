// Package session orchestrates the browsing commands: it owns the ordered
// UID listing, the pagination cursor, the metadata cache and the rendering
// settings for one connection.
package session

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"imapsh/internal/cache"
	"imapsh/internal/message"
)

// Transport is the connection-facing surface the controller drives. It is
// satisfied by *imap.Session and by test fakes.
type Transport interface {
	cache.Source
	message.PartFetcher

	SelectFolder(name string) (uint32, error)
	SearchAndSort(terms []string, sortKey string) ([]uint32, error)
	CreateFolder(name string) error
	RenameFolder(oldName, newName string) error
	DeleteFolder(name string) error
	DeleteMessages(ids []uint32) error
	RestoreMessages(ids []uint32) error
	CopyMessages(ids []uint32, dest string) error
	ExpungeCurrentFolder() error
	ListFolders() ([]string, error)
	ListSubscribedFolders() ([]string, error)
}

// Settings are the user-tunable knobs behind the `set` command.
type Settings struct {
	DateFormat string
	PageSize   int
	SortKey    string
}

// Controller executes user commands against one transport. All listing,
// cursor and cache state lives here; command handlers never share it with
// anything else.
type Controller struct {
	transport Transport
	store     *cache.Store
	out       io.Writer
	width     func() int

	listing []uint32
	cursor  int

	settings Settings
}

func New(transport Transport, out io.Writer, width func() int, settings Settings) *Controller {
	if settings.DateFormat == "" {
		settings.DateFormat = message.DefaultDateFormat
	}
	if settings.PageSize < 1 {
		settings.PageSize = 10
	}
	if settings.SortKey == "" {
		settings.SortKey = "date"
	}
	return &Controller{
		transport: transport,
		store:     cache.New(transport),
		out:       out,
		width:     width,
		settings:  settings,
	}
}

// Select switches to the named folder. The old listing is positional state
// of the old folder, so it is discarded.
func (c *Controller) Select(folder string) error {
	if _, err := c.transport.SelectFolder(folder); err != nil {
		return err
	}
	c.listing = nil
	c.cursor = 0
	return nil
}

// Search replaces the listing wholesale with the search result, resets the
// pagination cursor, and renders the first page.
func (c *Controller) Search(terms []string) error {
	ids, err := c.transport.SearchAndSort(terms, c.settings.SortKey)
	if err != nil {
		return err
	}
	c.listing = ids
	c.cursor = 0
	fmt.Fprintf(c.out, "%d messages\n", len(ids))
	return c.List()
}

// List renders one page of the listing starting at the pagination cursor.
// The cursor does not move; Advance does that, so repeated `list` calls show
// the same page.
func (c *Controller) List() error {
	if len(c.listing) == 0 {
		fmt.Fprintln(c.out, "no messages")
		return nil
	}

	start := c.cursor
	end := start + c.settings.PageSize
	if end > len(c.listing) {
		end = len(c.listing)
	}
	if start >= end {
		fmt.Fprintln(c.out, "no more messages")
		return nil
	}

	return c.render(c.listing[start:end], start+1)
}

// Advance moves the pagination cursor one page forward, wrapping back to the
// top once it passes the end of the listing.
func (c *Controller) Advance() {
	c.cursor += c.settings.PageSize
	if c.cursor >= len(c.listing) {
		c.cursor = 0
	}
}

func (c *Controller) render(ids []uint32, firstIndex int) error {
	if err := c.store.EnsurePopulated(ids); err != nil {
		return err
	}
	opts := message.FormatOptions{
		Width:      c.width(),
		DateFormat: c.settings.DateFormat,
	}
	for i, id := range ids {
		meta, err := c.store.Get(id)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, message.FormatLine(id, firstIndex+i, meta, opts))
	}
	return nil
}

// View renders the plain-text body of each referenced message.
func (c *Controller) View(ref string) error {
	start, ids, err := resolveRef(ref, c.listing)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(c.out, "no such message")
		return nil
	}
	if err := c.store.EnsurePopulated(ids); err != nil {
		return err
	}

	for i, id := range ids {
		meta, err := c.store.Get(id)
		if err != nil {
			return err
		}
		c.printHeader(start+i, meta)
		text, err := message.ExtractPlainText(c.transport, id, meta.Structure)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, text)
	}
	return nil
}

func (c *Controller) printHeader(index int, meta *cache.Metadata) {
	subject, date := "", ""
	if meta.Envelope != nil {
		subject = message.DecodeHeader(meta.Envelope.Subject)
		if !meta.Envelope.Date.IsZero() {
			date = meta.Envelope.Date.Format(c.settings.DateFormat)
		}
	}
	fmt.Fprintf(c.out, "Message %d\n", index)
	fmt.Fprintf(c.out, "From: %s\n", message.SenderName(meta.Envelope))
	fmt.Fprintf(c.out, "Subject: %s\n", subject)
	fmt.Fprintf(c.out, "Date: %s\n\n", date)
}

// Folders prints the folder list, optionally restricted to subscribed ones.
func (c *Controller) Folders(subscribedOnly bool) error {
	var folders []string
	var err error
	if subscribedOnly {
		folders, err = c.transport.ListSubscribedFolders()
	} else {
		folders, err = c.transport.ListFolders()
	}
	if err != nil {
		return err
	}
	for _, folder := range folders {
		fmt.Fprintln(c.out, folder)
	}
	return nil
}

func (c *Controller) CreateFolder(name string) error {
	return c.transport.CreateFolder(name)
}

func (c *Controller) RenameFolder(oldName, newName string) error {
	return c.transport.RenameFolder(oldName, newName)
}

// Copy copies the referenced messages into the destination folder.
func (c *Controller) Copy(ref, dest string) error {
	_, ids, err := resolveRef(ref, c.listing)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(c.out, "nothing to copy")
		return nil
	}
	return c.transport.CopyMessages(ids, dest)
}

// Delete marks messages deleted when the argument parses as a reference and
// deletes the named folder otherwise. After a message delete the flags are
// re-fetched so the next listing shows the D marker.
func (c *Controller) Delete(arg string) error {
	_, ids, err := resolveRef(arg, c.listing)
	if err != nil {
		if errors.Is(err, ErrMalformedReference) {
			return c.transport.DeleteFolder(arg)
		}
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(c.out, "nothing to delete")
		return nil
	}
	if err := c.transport.DeleteMessages(ids); err != nil {
		return err
	}
	return c.store.RefreshFlags(ids)
}

// Restore clears the deleted mark from the referenced messages.
func (c *Controller) Restore(ref string) error {
	_, ids, err := resolveRef(ref, c.listing)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(c.out, "nothing to restore")
		return nil
	}
	if err := c.transport.RestoreMessages(ids); err != nil {
		return err
	}
	return c.store.RefreshFlags(ids)
}

// Expunge permanently removes deleted messages. Positions in the listing are
// meaningless afterwards, so it is cleared; cached metadata stays valid
// because UIDs are never reused within a generation.
func (c *Controller) Expunge() error {
	if err := c.transport.ExpungeCurrentFolder(); err != nil {
		return err
	}
	c.listing = nil
	c.cursor = 0
	return nil
}

// Sync drops the cached metadata for the current folder. The server offers
// no push notification, so this is how the user picks up concurrent changes.
func (c *Controller) Sync() {
	c.store.Invalidate()
}

// Set updates one runtime setting.
func (c *Controller) Set(key, value string) error {
	switch strings.ToLower(key) {
	case "dateformat":
		c.settings.DateFormat = value
	case "pagesize":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("pagesize must be a positive integer, got %q", value)
		}
		c.settings.PageSize = n
	case "sort":
		c.settings.SortKey = value
	default:
		return fmt.Errorf("unknown setting %q (want dateformat, pagesize, or sort)", key)
	}
	return nil
}
