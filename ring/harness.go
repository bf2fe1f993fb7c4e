package ring

import (
	"sync/atomic"

	"github.com/shmbus/shmbus/common/go/bitset"
)

// The accessors in this file exist for property-based tests (spec.md §8)
// that need to reach into slot/ring state no ordinary publisher or
// subscriber touches directly. They are real exported API, not a
// build-tag-gated internal surface, because this module has no cgo
// boundary to hide them behind the way the teacher's C-struct-backed ring
// did (modules/pdump/controlplane/ring_test.go reached into C.struct_ring_buffer
// fields directly from Go test code for the same reason).

// SlotSeq returns the raw Seq word of the slot at idx, for verifying
// invariant P1 ((seq-1) mod slot_count == idx) independent of any
// Subscriber's interpretation of it.
func (t *Topic) SlotSeq(idx uint32) uint64 {
	return atomic.LoadUint64(&t.slotHeader(idx).Seq)
}

// WriteHead returns the raw write-head counter.
func (t *Topic) WriteHead() uint64 {
	return atomic.LoadUint64(&t.desc.WriteHead)
}

// ForceSlotSeq overwrites a slot's Seq word directly, bypassing the
// publish path entirely. It exists to inject torn-write/crash scenarios
// in tests (e.g. simulating an MWMR writer that reserved a sequence and
// then died before committing it, per spec.md §5 "Cancellation") and must
// never be called outside tests.
func (t *Topic) ForceSlotSeq(idx uint32, seq uint64) {
	atomic.StoreUint64(&t.slotHeader(idx).Seq, seq)
}

// SlotPayload returns the raw payload bytes of the slot at idx, sized to
// the slot's full payload capacity regardless of the last committed
// PayloadLen. Tests use this to inspect bytes a Consume call would
// otherwise truncate or never expose.
func (t *Topic) SlotPayload(idx uint32) []byte {
	return t.slotPayload(idx)
}

// SlotPayloadLen returns the PayloadLen currently recorded in the slot's
// header, read non-atomically like every other non-Seq header field
// (spec.md §5: "every other field in a slot is protected solely by the
// seqlock invariant").
func (t *Topic) SlotPayloadLen(idx uint32) uint32 {
	return t.slotHeader(idx).PayloadLen
}

// VisitedSlots is a fixed-capacity set of slot indices, used by property
// tests to track which physical slots have been observed during a P1-style
// sweep. It is a thin, ring-flavored wrapper over
// common/go/bitset.TinyBitset (up to 1024 bits, matching every slot count
// exercised by this package's tests), reusing the teacher's bit-packed set
// instead of a fresh map[uint32]struct{} per test.
type VisitedSlots struct {
	set bitset.TinyBitset
}

// Mark records idx as visited. Panics if idx >= 1024, TinyBitset's own
// bound.
func (v *VisitedSlots) Mark(idx uint32) { v.set.Insert(idx) }

// Count returns how many distinct indices have been marked.
func (v *VisitedSlots) Count() int { return int(v.set.Count()) }

// AsSlice returns the visited indices in ascending order.
func (v *VisitedSlots) AsSlice() []uint32 { return v.set.AsSlice() }
