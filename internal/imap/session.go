package imap

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"imapsh/internal/cache"
	"imapsh/internal/config"

	"github.com/emersion/go-imap"
)

// Session is the transport collaborator for one logged-in connection. It
// tracks the selected folder and its UIDVALIDITY, and fails each operation
// with the operation's name so the shell can report it verbatim. Nothing is
// retried here.
type Session struct {
	client  Client
	account string
	server  string

	folder     string
	generation uint32
}

func NewSession(client Client, cfg config.Config) *Session {
	return &Session{
		client:  client,
		account: cfg.Auth.Username,
		server:  cfg.IMAP.Host,
	}
}

func (s *Session) Close() error {
	return s.client.Logout()
}

func (s *Session) Account() string    { return s.account }
func (s *Session) Server() string     { return s.server }
func (s *Session) Folder() string     { return s.folder }
func (s *Session) Generation() uint32 { return s.generation }

// Identity keys the cache partition for the selected folder.
func (s *Session) Identity() cache.Key {
	return cache.Key{Account: s.account, Server: s.server, Generation: s.generation}
}

// SelectFolder selects the named folder and returns its UIDVALIDITY.
func (s *Session) SelectFolder(name string) (uint32, error) {
	status, err := s.client.Select(name, false)
	if err != nil {
		return 0, fmt.Errorf("select %s: %w", name, err)
	}
	s.folder = name
	s.generation = status.UidValidity
	return status.UidValidity, nil
}

// SearchAndSort runs a UID search over the selected folder and returns the
// ids ordered by the sort key. Sorting happens client-side by UID, which
// tracks arrival order; a leading "-" reverses it.
func (s *Session) SearchAndSort(terms []string, sortKey string) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	if len(terms) > 0 {
		criteria.Text = terms
	}

	uids, err := s.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	descending := strings.HasPrefix(sortKey, "-")
	sort.Slice(uids, func(i, j int) bool {
		if descending {
			return uids[i] > uids[j]
		}
		return uids[i] < uids[j]
	})
	return uids, nil
}

// FetchMetadataBatch fetches envelope, body structure and flags for the
// given ids in one request.
func (s *Session) FetchMetadataBatch(ids []uint32) (map[uint32]cache.Metadata, error) {
	out := make(map[uint32]cache.Metadata, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchBodyStructure, imap.FetchFlags, imap.FetchUid}

	ch := make(chan *imap.Message, len(ids))
	done := make(chan error, 1)
	go func() {
		done <- s.client.UidFetch(seqset, items, ch)
	}()
	for msg := range ch {
		if msg == nil {
			continue
		}
		out[msg.Uid] = cache.Metadata{
			Envelope:  msg.Envelope,
			Structure: msg.BodyStructure,
			Flags:     msg.Flags,
		}
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch metadata: %w", err)
	}
	return out, nil
}

// FetchFlagsBatch fetches only the flags for the given ids.
func (s *Session) FetchFlagsBatch(ids []uint32) (map[uint32][]string, error) {
	out := make(map[uint32][]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)
	items := []imap.FetchItem{imap.FetchFlags, imap.FetchUid}

	ch := make(chan *imap.Message, len(ids))
	done := make(chan error, 1)
	go func() {
		done <- s.client.UidFetch(seqset, items, ch)
	}()
	for msg := range ch {
		if msg == nil {
			continue
		}
		out[msg.Uid] = msg.Flags
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch flags: %w", err)
	}
	return out, nil
}

// FetchBodyPart retrieves the raw bytes of one body part without setting
// \Seen.
func (s *Session) FetchBodyPart(id uint32, path []int) ([]byte, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(id)
	section := &imap.BodySectionName{
		BodyPartName: imap.BodyPartName{Path: path},
		Peek:         true,
	}
	items := []imap.FetchItem{section.FetchItem()}

	ch := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.client.UidFetch(seqset, items, ch)
	}()

	var raw []byte
	var readErr error
	for msg := range ch {
		if msg == nil {
			continue
		}
		if body := msg.GetBody(section); body != nil {
			raw, readErr = io.ReadAll(body)
		}
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch body part: %w", err)
	}
	if readErr != nil {
		return nil, fmt.Errorf("fetch body part: %w", readErr)
	}
	if raw == nil {
		return nil, fmt.Errorf("fetch body part: message %d part %v not returned", id, path)
	}
	return raw, nil
}

func (s *Session) CreateFolder(name string) error {
	if err := s.client.Create(name); err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	return nil
}

func (s *Session) RenameFolder(oldName, newName string) error {
	if err := s.client.Rename(oldName, newName); err != nil {
		return fmt.Errorf("rename %s to %s: %w", oldName, newName, err)
	}
	return nil
}

func (s *Session) DeleteFolder(name string) error {
	if err := s.client.Delete(name); err != nil {
		return fmt.Errorf("delete folder %s: %w", name, err)
	}
	return nil
}

// DeleteMessages marks the given ids \Deleted. Expunge makes it permanent.
func (s *Session) DeleteMessages(ids []uint32) error {
	return s.storeFlag(ids, imap.AddFlags, imap.DeletedFlag, "delete")
}

// RestoreMessages clears \Deleted from the given ids.
func (s *Session) RestoreMessages(ids []uint32) error {
	return s.storeFlag(ids, imap.RemoveFlags, imap.DeletedFlag, "restore")
}

func (s *Session) storeFlag(ids []uint32, op imap.FlagsOp, flag string, opName string) error {
	if len(ids) == 0 {
		return nil
	}
	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)
	item := imap.FormatFlagsOp(op, true)
	if err := s.client.UidStore(seqset, item, []interface{}{flag}, nil); err != nil {
		return fmt.Errorf("%s: %w", opName, err)
	}
	return nil
}

func (s *Session) CopyMessages(ids []uint32, dest string) error {
	if len(ids) == 0 {
		return nil
	}
	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)
	if err := s.client.UidCopy(seqset, dest); err != nil {
		return fmt.Errorf("copy to %s: %w", dest, err)
	}
	return nil
}

func (s *Session) ExpungeCurrentFolder() error {
	expunged := make(chan uint32)
	done := make(chan error, 1)
	go func() {
		done <- s.client.Expunge(expunged)
	}()
	for range expunged {
	}
	if err := <-done; err != nil {
		return fmt.Errorf("expunge: %w", err)
	}
	return nil
}

func (s *Session) ListFolders() ([]string, error) {
	return s.listFolders(s.client.List, "list folders")
}

func (s *Session) ListSubscribedFolders() ([]string, error) {
	return s.listFolders(s.client.Lsub, "list subscribed folders")
}

func (s *Session) listFolders(list func(ref, name string, ch chan *imap.MailboxInfo) error, opName string) ([]string, error) {
	ch := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- list("", "*", ch)
	}()
	var folders []string
	for mbox := range ch {
		folders = append(folders, mbox.Name)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("%s: %w", opName, err)
	}
	sort.Strings(folders)
	return folders, nil
}
