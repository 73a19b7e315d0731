package event

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DeriveMessageID computes the deterministic dedup identifier for a fact
// emission: sha256 over kind, origin shard, logical time, and a digest of
// the canonical payload. Every peer copy of one emission shares this ID,
// and re-emission of an identical fact at the same logical time collapses
// to the same ID on redelivery.
func DeriveMessageID(kind FactKind, origin string, logicalTime int64, payload string) string {
	payloadDigest := sha256.Sum256([]byte(payload))

	h := sha256.New()
	h.Write([]byte(kind.String()))
	h.Write([]byte{0})
	h.Write([]byte(origin))
	h.Write([]byte{0})
	h.Write([]byte(fmt.Sprintf("%d", logicalTime)))
	h.Write([]byte{0})
	h.Write(payloadDigest[:])

	return hex.EncodeToString(h.Sum(nil))
}

// NewMessage builds the per-peer delivery for a fact emission.
func NewMessage(fact Fact, origin, target string, logicalTime int64) Message {
	return Message{
		ID:          DeriveMessageID(fact.Kind(), origin, logicalTime, fact.DedupPayload()),
		Origin:      origin,
		Target:      target,
		LogicalTime: logicalTime,
		Fact:        fact,
	}
}
