package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Domain prefixes for content-addressed identity.
// The version suffix allows a future algorithm change.
const (
	DomainPunch    = "sportorg/punch/v1"
	DomainSnapshot = "sportorg/snapshot/v1"
	DomainReview   = "sportorg/review/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// PunchID computes the content address of a punch.
//
// Identity is (card id, control code, timestamp). Source reader and arrival
// sequence are deliberately excluded: the same read relayed by two readers,
// or retransmitted by one, is one punch.
func PunchID(cardID, code string, t time.Duration) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"card": cardID,
		"code": code,
		"time": t.Milliseconds(),
	})
	if err != nil {
		return "", fmt.Errorf("PunchID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainPunch, canonical), nil
}

// MustPunchID is PunchID for inputs that are known to be valid.
// Only strings and integers are hashed, so it cannot fail in practice.
func MustPunchID(cardID, code string, t time.Duration) string {
	id, err := PunchID(cardID, code, t)
	if err != nil {
		panic(err)
	}
	return id
}

// NewPunch builds a punch with its content address filled in.
func NewPunch(cardID, code string, t time.Duration, source string) Punch {
	return Punch{
		ID:     MustPunchID(cardID, code, t),
		CardID: cardID,
		Code:   code,
		Time:   t,
		Source: source,
	}
}

// Digest returns a content hash of an arbitrary canonical value, used to
// detect whether two derived views are identical.
func Digest(v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}
	return hashWithDomain(DomainSnapshot, canonical), nil
}

// ReviewID derives a stable review item id from its kind and the ids it
// refers to, so re-deriving the same situation does not queue it twice.
func ReviewID(kind ReviewKind, refs ...string) string {
	items := make([]any, len(refs))
	for i, r := range refs {
		items[i] = r
	}
	canonical, err := MarshalCanonical(map[string]any{
		"kind": string(kind),
		"refs": items,
	})
	if err != nil {
		panic(fmt.Sprintf("ReviewID: %v", err))
	}
	return hashWithDomain(DomainReview, canonical)[:20]
}
