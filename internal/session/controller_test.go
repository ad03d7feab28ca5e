package session

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap"

	"imapsh/internal/cache"
)

type fakeTransport struct {
	key cache.Key

	searchResult []uint32
	searchErr    error

	metadata map[uint32]cache.Metadata
	flags    map[uint32][]string
	bodies   map[uint32][]byte

	metadataCalls int
	flagsCalls    int

	deleted       []uint32
	restored      []uint32
	copied        []uint32
	copiedDest    string
	deletedFolder string
	expunged      bool
	folders       []string
	selected      string
}

func newFakeTransport(ids ...uint32) *fakeTransport {
	ft := &fakeTransport{
		key:      cache.Key{Account: "user@example.com", Server: "imap.example.com", Generation: 1},
		metadata: make(map[uint32]cache.Metadata),
		flags:    make(map[uint32][]string),
		bodies:   make(map[uint32][]byte),
		folders:  []string{"INBOX", "Archive"},
	}
	for _, id := range ids {
		ft.searchResult = append(ft.searchResult, id)
		ft.metadata[id] = cache.Metadata{
			Envelope: &imap.Envelope{
				Subject: fmt.Sprintf("message %d", id),
				Date:    time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
				From:    []*imap.Address{{MailboxName: "sender", HostName: "example.com"}},
			},
			Structure: &imap.BodyStructure{MIMEType: "text", MIMESubType: "plain"},
			Flags:     []string{imap.SeenFlag},
		}
		ft.flags[id] = []string{imap.SeenFlag}
		ft.bodies[id] = []byte(fmt.Sprintf("body of %d\r\n", id))
	}
	return ft
}

func (f *fakeTransport) Identity() cache.Key { return f.key }

func (f *fakeTransport) FetchMetadataBatch(ids []uint32) (map[uint32]cache.Metadata, error) {
	f.metadataCalls++
	out := make(map[uint32]cache.Metadata, len(ids))
	for _, id := range ids {
		if meta, ok := f.metadata[id]; ok {
			out[id] = meta
		}
	}
	return out, nil
}

func (f *fakeTransport) FetchFlagsBatch(ids []uint32) (map[uint32][]string, error) {
	f.flagsCalls++
	out := make(map[uint32][]string, len(ids))
	for _, id := range ids {
		if flags, ok := f.flags[id]; ok {
			out[id] = flags
		}
	}
	return out, nil
}

func (f *fakeTransport) FetchBodyPart(id uint32, path []int) ([]byte, error) {
	body, ok := f.bodies[id]
	if !ok {
		return nil, fmt.Errorf("no body for %d", id)
	}
	return body, nil
}

func (f *fakeTransport) SelectFolder(name string) (uint32, error) {
	f.selected = name
	return f.key.Generation, nil
}

func (f *fakeTransport) SearchAndSort(terms []string, sortKey string) ([]uint32, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return append([]uint32(nil), f.searchResult...), nil
}

func (f *fakeTransport) CreateFolder(name string) error { return nil }

func (f *fakeTransport) RenameFolder(oldName, newName string) error { return nil }

func (f *fakeTransport) DeleteFolder(name string) error {
	f.deletedFolder = name
	return nil
}

func (f *fakeTransport) DeleteMessages(ids []uint32) error {
	f.deleted = append(f.deleted, ids...)
	for _, id := range ids {
		f.flags[id] = []string{imap.SeenFlag, imap.DeletedFlag}
	}
	return nil
}

func (f *fakeTransport) RestoreMessages(ids []uint32) error {
	f.restored = append(f.restored, ids...)
	for _, id := range ids {
		f.flags[id] = []string{imap.SeenFlag}
	}
	return nil
}

func (f *fakeTransport) CopyMessages(ids []uint32, dest string) error {
	f.copied = append(f.copied, ids...)
	f.copiedDest = dest
	return nil
}

func (f *fakeTransport) ExpungeCurrentFolder() error {
	f.expunged = true
	return nil
}

func (f *fakeTransport) ListFolders() ([]string, error) { return f.folders, nil }

func (f *fakeTransport) ListSubscribedFolders() ([]string, error) { return f.folders[:1], nil }

func newTestController(ft *fakeTransport) (*Controller, *bytes.Buffer) {
	var buf bytes.Buffer
	ctrl := New(ft, &buf, func() int { return 80 }, Settings{})
	return ctrl, &buf
}

func TestSearchRendersFirstPage(t *testing.T) {
	ft := newFakeTransport(101, 102, 103)
	ctrl, out := newTestController(ft)

	if err := ctrl.Search([]string{"report"}); err != nil {
		t.Fatalf("search: %v", err)
	}
	if !strings.Contains(out.String(), "3 messages") {
		t.Fatalf("expected message count, got %q", out.String())
	}
	if !strings.Contains(out.String(), "message 101") {
		t.Fatalf("expected first row rendered, got %q", out.String())
	}
	if ft.metadataCalls != 1 {
		t.Fatalf("expected one metadata fetch, got %d", ft.metadataCalls)
	}
}

func TestListDoesNotAdvanceCursor(t *testing.T) {
	ids := make([]uint32, 25)
	for i := range ids {
		ids[i] = uint32(200 + i)
	}
	ft := newFakeTransport(ids...)
	ctrl, out := newTestController(ft)

	if err := ctrl.Search(nil); err != nil {
		t.Fatalf("search: %v", err)
	}
	out.Reset()

	if err := ctrl.List(); err != nil {
		t.Fatalf("list: %v", err)
	}
	first := out.String()
	out.Reset()

	if err := ctrl.List(); err != nil {
		t.Fatalf("list again: %v", err)
	}
	if out.String() != first {
		t.Fatalf("repeated list must render the same page")
	}
	if !strings.Contains(first, "message 200") || strings.Contains(first, "message 210") {
		t.Fatalf("expected rows 1-10 only, got %q", first)
	}
}

func TestAdvanceMovesPageAndWraps(t *testing.T) {
	ids := make([]uint32, 25)
	for i := range ids {
		ids[i] = uint32(200 + i)
	}
	ft := newFakeTransport(ids...)
	ctrl, out := newTestController(ft)

	if err := ctrl.Search(nil); err != nil {
		t.Fatalf("search: %v", err)
	}

	ctrl.Advance()
	out.Reset()
	if err := ctrl.List(); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out.String(), "message 210") {
		t.Fatalf("expected second page, got %q", out.String())
	}

	ctrl.Advance() // page 3 (rows 21-25)
	ctrl.Advance() // past the end: wraps to the top
	out.Reset()
	if err := ctrl.List(); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out.String(), "message 200") {
		t.Fatalf("expected wrap to first page, got %q", out.String())
	}
}

func TestListUsesCacheOnRepeat(t *testing.T) {
	ft := newFakeTransport(101, 102)
	ctrl, _ := newTestController(ft)

	if err := ctrl.Search(nil); err != nil {
		t.Fatalf("search: %v", err)
	}
	if err := ctrl.List(); err != nil {
		t.Fatalf("list: %v", err)
	}
	if ft.metadataCalls != 1 {
		t.Fatalf("expected repeat list to hit the cache, got %d fetches", ft.metadataCalls)
	}
}

func TestViewRendersBody(t *testing.T) {
	ft := newFakeTransport(101, 102, 103)
	ctrl, out := newTestController(ft)

	if err := ctrl.Search(nil); err != nil {
		t.Fatalf("search: %v", err)
	}
	out.Reset()

	if err := ctrl.View("2"); err != nil {
		t.Fatalf("view: %v", err)
	}
	if !strings.Contains(out.String(), "body of 102\n") {
		t.Fatalf("expected body with LF endings, got %q", out.String())
	}
	if !strings.Contains(out.String(), "Subject: message 102") {
		t.Fatalf("expected header block, got %q", out.String())
	}
}

func TestViewPastEndIsNotAnError(t *testing.T) {
	ft := newFakeTransport(101)
	ctrl, out := newTestController(ft)

	if err := ctrl.Search(nil); err != nil {
		t.Fatalf("search: %v", err)
	}
	out.Reset()

	if err := ctrl.View("7"); err != nil {
		t.Fatalf("view past end must not error, got %v", err)
	}
	if !strings.Contains(out.String(), "no such message") {
		t.Fatalf("expected empty-result notice, got %q", out.String())
	}
}

func TestDeleteReferenceRefreshesFlags(t *testing.T) {
	ft := newFakeTransport(101, 102, 103)
	ctrl, _ := newTestController(ft)

	if err := ctrl.Search(nil); err != nil {
		t.Fatalf("search: %v", err)
	}
	if err := ctrl.Delete("1-2"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if len(ft.deleted) != 2 || ft.deleted[0] != 101 || ft.deleted[1] != 102 {
		t.Fatalf("expected 101,102 deleted, got %v", ft.deleted)
	}
	if ft.flagsCalls != 1 {
		t.Fatalf("expected one flag refresh, got %d", ft.flagsCalls)
	}

	// The refreshed flags must not trigger a metadata re-fetch on render.
	if err := ctrl.render([]uint32{101}, 1); err != nil {
		t.Fatalf("render: %v", err)
	}
	if ft.metadataCalls != 1 {
		t.Fatalf("flag refresh must not trigger metadata re-fetch, got %d", ft.metadataCalls)
	}
}

func TestDeleteFolderNameFallsThrough(t *testing.T) {
	ft := newFakeTransport(101)
	ctrl, _ := newTestController(ft)

	if err := ctrl.Delete("Old-Projects"); err != nil {
		t.Fatalf("delete folder: %v", err)
	}
	if ft.deletedFolder != "Old-Projects" {
		t.Fatalf("expected folder delete, got %q", ft.deletedFolder)
	}
	if len(ft.deleted) != 0 {
		t.Fatalf("no messages should be deleted, got %v", ft.deleted)
	}
}

func TestRestoreClearsDeleted(t *testing.T) {
	ft := newFakeTransport(101)
	ctrl, _ := newTestController(ft)

	if err := ctrl.Search(nil); err != nil {
		t.Fatalf("search: %v", err)
	}
	if err := ctrl.Delete("1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := ctrl.Restore("1"); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if len(ft.restored) != 1 || ft.restored[0] != 101 {
		t.Fatalf("expected 101 restored, got %v", ft.restored)
	}
}

func TestCopyReference(t *testing.T) {
	ft := newFakeTransport(101, 102, 103)
	ctrl, _ := newTestController(ft)

	if err := ctrl.Search(nil); err != nil {
		t.Fatalf("search: %v", err)
	}
	if err := ctrl.Copy("2-3", "Archive"); err != nil {
		t.Fatalf("copy: %v", err)
	}
	if len(ft.copied) != 2 || ft.copiedDest != "Archive" {
		t.Fatalf("expected 2 ids copied to Archive, got %v -> %q", ft.copied, ft.copiedDest)
	}
}

func TestExpungeClearsListing(t *testing.T) {
	ft := newFakeTransport(101, 102)
	ctrl, out := newTestController(ft)

	if err := ctrl.Search(nil); err != nil {
		t.Fatalf("search: %v", err)
	}
	if err := ctrl.Expunge(); err != nil {
		t.Fatalf("expunge: %v", err)
	}
	if !ft.expunged {
		t.Fatalf("expected transport expunge")
	}

	out.Reset()
	if err := ctrl.List(); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out.String(), "no messages") {
		t.Fatalf("expected empty listing after expunge, got %q", out.String())
	}
}

func TestSyncForcesRefetch(t *testing.T) {
	ft := newFakeTransport(101)
	ctrl, _ := newTestController(ft)

	if err := ctrl.Search(nil); err != nil {
		t.Fatalf("search: %v", err)
	}
	ctrl.Sync()
	if err := ctrl.List(); err != nil {
		t.Fatalf("list: %v", err)
	}
	if ft.metadataCalls != 2 {
		t.Fatalf("expected re-fetch after sync, got %d calls", ft.metadataCalls)
	}
}

func TestSearchErrorLeavesListingIntact(t *testing.T) {
	ft := newFakeTransport(101, 102)
	ctrl, _ := newTestController(ft)

	if err := ctrl.Search(nil); err != nil {
		t.Fatalf("search: %v", err)
	}
	ft.searchErr = errors.New("connection dropped")

	if err := ctrl.Search([]string{"again"}); err == nil {
		t.Fatalf("expected search error")
	}
	if len(ctrl.listing) != 2 {
		t.Fatalf("failed search must not clobber the listing, got %v", ctrl.listing)
	}
}

func TestSetValidation(t *testing.T) {
	ft := newFakeTransport(101)
	ctrl, _ := newTestController(ft)

	if err := ctrl.Set("pagesize", "5"); err != nil {
		t.Fatalf("set pagesize: %v", err)
	}
	if ctrl.settings.PageSize != 5 {
		t.Fatalf("expected page size 5, got %d", ctrl.settings.PageSize)
	}
	if err := ctrl.Set("pagesize", "zero"); err == nil {
		t.Fatalf("expected error for bad pagesize")
	}
	if err := ctrl.Set("dateformat", "02 Jan"); err != nil {
		t.Fatalf("set dateformat: %v", err)
	}
	if err := ctrl.Set("bogus", "x"); err == nil {
		t.Fatalf("expected error for unknown key")
	}
}

func TestSelectResetsListing(t *testing.T) {
	ft := newFakeTransport(101, 102)
	ctrl, _ := newTestController(ft)

	if err := ctrl.Search(nil); err != nil {
		t.Fatalf("search: %v", err)
	}
	if err := ctrl.Select("Archive"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if ft.selected != "Archive" {
		t.Fatalf("expected Archive selected, got %q", ft.selected)
	}
	if len(ctrl.listing) != 0 || ctrl.cursor != 0 {
		t.Fatalf("select must clear listing and cursor")
	}
}
