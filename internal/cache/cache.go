// Package cache keeps per-mailbox message metadata so that repeated listing
// and rendering does not re-fetch envelopes from the server.
package cache

import (
	"errors"
	"fmt"

	"github.com/emersion/go-imap"
)

// Key identifies one cache partition. It pairs the account and server with
// the mailbox's UIDVALIDITY, so a generation change lands in a fresh
// partition without any explicit invalidation step.
type Key struct {
	Account    string
	Server     string
	Generation uint32
}

// Metadata is everything the browser keeps about one message. An entry is
// either absent or carries all three fields from the same fetch.
type Metadata struct {
	Envelope  *imap.Envelope
	Structure *imap.BodyStructure
	Flags     []string
}

// ErrNotCached reports a Get on an id that was never populated. Hitting it
// means the caller skipped EnsurePopulated.
var ErrNotCached = errors.New("message not cached")

// Source is the transport surface the cache consumes. Identity is recomputed
// on every access, so a folder change on the source transparently switches
// partitions.
type Source interface {
	Identity() Key
	FetchMetadataBatch(ids []uint32) (map[uint32]Metadata, error)
	FetchFlagsBatch(ids []uint32) (map[uint32][]string, error)
}

type Store struct {
	src        Source
	partitions map[Key]map[uint32]*Metadata
}

func New(src Source) *Store {
	return &Store{
		src:        src,
		partitions: make(map[Key]map[uint32]*Metadata),
	}
}

func (s *Store) active() map[uint32]*Metadata {
	key := s.src.Identity()
	part, ok := s.partitions[key]
	if !ok {
		part = make(map[uint32]*Metadata)
		s.partitions[key] = part
	}
	return part
}

// EnsurePopulated fetches metadata for the given ids that are not already
// cached, in a single batched request. Ids already present are left alone;
// freshness is the caller's responsibility. The batch is all-or-nothing: if
// the transport fails or omits an id, nothing is inserted.
func (s *Store) EnsurePopulated(ids []uint32) error {
	part := s.active()

	var missing []uint32
	for _, id := range ids {
		if _, ok := part[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	fetched, err := s.src.FetchMetadataBatch(missing)
	if err != nil {
		return err
	}
	for _, id := range missing {
		if _, ok := fetched[id]; !ok {
			return fmt.Errorf("fetch metadata: message %d missing from response", id)
		}
	}
	for _, id := range missing {
		meta := fetched[id]
		part[id] = &meta
	}
	return nil
}

func (s *Store) Get(id uint32) (*Metadata, error) {
	meta, ok := s.active()[id]
	if !ok {
		return nil, fmt.Errorf("message %d: %w", id, ErrNotCached)
	}
	return meta, nil
}

// RefreshFlags re-fetches only the flags for the given ids and overwrites
// the cached Flags field in place. Envelope and body structure are never
// touched. Used after flag-mutating commands (delete, restore).
func (s *Store) RefreshFlags(ids []uint32) error {
	if len(ids) == 0 {
		return nil
	}

	flags, err := s.src.FetchFlagsBatch(ids)
	if err != nil {
		return err
	}

	part := s.active()
	for id, f := range flags {
		if meta, ok := part[id]; ok {
			meta.Flags = f
		}
	}
	return nil
}

// Invalidate drops the active partition. The server offers no push
// notification of concurrent changes, so this backs the explicit sync
// command.
func (s *Store) Invalidate() {
	delete(s.partitions, s.src.Identity())
}
