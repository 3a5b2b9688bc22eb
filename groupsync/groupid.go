package groupsync

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	v1Prefix  = "__textsecure_group__!"
	mmsPrefix = "__signal_mms_group__!"
	v2Prefix  = "__signal_group__v2__!"

	v1Len = 16
	v2Len = 32
)

// GroupID is the textual form of a group identifier: a version prefix
// followed by the hex encoded identifier bytes.
type GroupID string

// ParseGroupID validates s and returns it as a GroupID.
func ParseGroupID(s string) (GroupID, error) {
	var body string
	var want int
	switch {
	case strings.HasPrefix(s, v2Prefix):
		body, want = s[len(v2Prefix):], v2Len
	case strings.HasPrefix(s, mmsPrefix):
		body, want = s[len(mmsPrefix):], v1Len
	case strings.HasPrefix(s, v1Prefix):
		body, want = s[len(v1Prefix):], v1Len
	default:
		return "", fmt.Errorf("%w: unknown prefix in %q", ErrInvalidGroupID, s)
	}
	raw, err := hex.DecodeString(body)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidGroupID, s, err)
	}
	if len(raw) != want {
		return "", fmt.Errorf("%w: %q: want %d bytes, got %d", ErrInvalidGroupID, s, want, len(raw))
	}
	return GroupID(s), nil
}

// String returns the encoded ID.
func (g GroupID) String() string { return string(g) }

// IsV2 reports whether g names a v2 group.
func (g GroupID) IsV2() bool { return strings.HasPrefix(string(g), v2Prefix) }

// IsMMS reports whether g names an MMS group.
func (g GroupID) IsMMS() bool { return strings.HasPrefix(string(g), mmsPrefix) }

// RequireV2 returns g if it identifies a V2 group.
func (g GroupID) RequireV2() (GroupID, error) {
	if !g.IsV2() {
		return "", fmt.Errorf("%w: %q is not a v2 group", ErrInvalidGroupID, string(g))
	}
	return g, nil
}

// MasterKey is the secret shared by the members of a V2 group.
type MasterKey [32]byte

// ParseMasterKey decodes a hex encoded master key.
func ParseMasterKey(s string) (MasterKey, error) {
	var k MasterKey
	raw, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("groupsync: master key: %w", err)
	}
	if len(raw) != len(k) {
		return k, fmt.Errorf("groupsync: master key: want %d bytes, got %d", len(k), len(raw))
	}
	copy(k[:], raw)
	return k, nil
}

func (k MasterKey) String() string { return hex.EncodeToString(k[:]) }

// GroupID derives the V2 identifier of the group the key belongs to.
func (k MasterKey) GroupID() GroupID {
	sum := sha256.Sum256(k[:])
	return GroupID(v2Prefix + hex.EncodeToString(sum[:]))
}
