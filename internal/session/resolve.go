package session

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// defaultSpan is the positional range used when a command takes no explicit
// reference: positions 1-16, the shortcut span shared by search, copy and
// delete.
const defaultSpan = 16

// ErrMalformedReference reports a user-typed reference that is neither a
// positive index nor an n-m range.
var ErrMalformedReference = errors.New("malformed message reference")

// resolveRef maps a user-typed reference onto the current listing and
// returns the 1-based start position together with the addressed ids.
//
// A range's upper bound is clamped to the listing length; asking past the
// end is not an error, the excess is dropped. A single index past the end
// yields an empty result, also without error. The listing is never mutated.
func resolveRef(ref string, listing []uint32) (int, []uint32, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return 1, slicePositions(listing, 1, defaultSpan), nil
	}

	if first, second, ok := strings.Cut(ref, "-"); ok {
		n, err1 := parseIndex(first)
		m, err2 := parseIndex(second)
		if err1 != nil || err2 != nil {
			return 0, nil, fmt.Errorf("%w: %q", ErrMalformedReference, ref)
		}
		return n, slicePositions(listing, n, m), nil
	}

	n, err := parseIndex(ref)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %q", ErrMalformedReference, ref)
	}
	return n, slicePositions(listing, n, n), nil
}

func parseIndex(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("index %d out of range", n)
	}
	return n, nil
}

// slicePositions returns listing positions n..m (1-based, inclusive), with m
// clamped to the listing length. A start past the end, or an inverted range,
// yields nothing.
func slicePositions(listing []uint32, n, m int) []uint32 {
	if m > len(listing) {
		m = len(listing)
	}
	if n < 1 || n > m {
		return nil
	}
	return listing[n-1 : m]
}
