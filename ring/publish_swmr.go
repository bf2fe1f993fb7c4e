package ring

import (
	"sync/atomic"
	"time"
)

// Publisher is the common capability both ring variants expose: reserve a
// sequence number, write the payload, commit it. SWMRPublisher and
// MWMRPublisher both satisfy it; spec.md §9 models this as "two variants
// of a common capability set... sharing a trait-like interface" rather
// than inheritance, which Go expresses naturally as an interface instead
// of a base/derived publisher hierarchy.
type Publisher interface {
	Publish(payload []byte, publisherID uint16) (seq uint64, code Code, err error)
}

// SWMRPublisher is the single-producer append path (C4). Exactly one
// goroutine/process may call Publish concurrently on a given topic; the
// zero value is not usable, use NewSWMRPublisher.
type SWMRPublisher struct {
	topic *Topic
}

// NewSWMRPublisher attaches a single-writer publisher to topic. It is the
// caller's responsibility to ensure no other writer publishes to the same
// topic concurrently (spec.md §4.3 preconditions); the topic's Kind is not
// enforced at runtime, matching the spec's framing of SWMR/MWMR as
// publisher-selected variants rather than a region-enforced mode.
func NewSWMRPublisher(topic *Topic) *SWMRPublisher {
	return &SWMRPublisher{topic: topic}
}

// Publish appends one message, wait-free, per spec.md §4.3.
func (p *SWMRPublisher) Publish(payload []byte, publisherID uint16) (uint64, Code, error) {
	t := p.topic
	capacity := t.PayloadCapacity()
	if uint32(len(payload)) > capacity {
		return 0, PayloadTooLarge, nil
	}

	// Step 2: fetch-and-add the write head; acq-rel reservation.
	old := atomic.AddUint64(&t.desc.WriteHead, 1) - 1
	commitSeq := old + 1

	// Step 3: compute the physical slot.
	idx := uint32(commitSeq-1) & (t.desc.SlotCount - 1)
	hdr := t.slotHeader(idx)
	dst := t.slotPayload(idx)

	// Step 4: plain payload/header writes. These must not be reordered
	// past the release-store of Seq below (step 5-6); the atomic release
	// store acts as the compiler/CPU fence Go's memory model guarantees
	// relative to later atomic loads of the same word.
	copy(dst, payload)
	hdr.PayloadLen = uint32(len(payload))
	hdr.PublisherID = publisherID
	hdr.TimestampNs = uint64(time.Now().UnixNano())

	// Step 5-6: release fence + publish the sequence number.
	atomic.StoreUint64(&hdr.Seq, commitSeq)

	return commitSeq, Ok, nil
}
