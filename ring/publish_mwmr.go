package ring

import (
	"runtime"
	"sync/atomic"
	"time"
)

// MWMRSpinCap is the iteration cap the generation-wait loop aborts after,
// returning Timeout (spec.md §4.4: "must be >= 1e5 to tolerate realistic
// scheduling hiccups").
const MWMRSpinCap = 200_000

// mwmrRelaxPhase is how many iterations the generation-wait loop spins
// before it switches to yielding via runtime.Gosched. The spin phase is a
// bare busy loop: it issues no CPU relax/pause instruction.
const mwmrRelaxPhase = 64

// MWMRPublisher is the multi-producer append path (C5). Any number of
// goroutines/processes may call Publish concurrently on the same topic.
type MWMRPublisher struct {
	topic *Topic
}

// NewMWMRPublisher attaches a multi-writer publisher to topic.
func NewMWMRPublisher(topic *Topic) *MWMRPublisher {
	return &MWMRPublisher{topic: topic}
}

// Publish appends one message. Unlike SWMRPublisher.Publish, this can
// block (bounded) on the generation-wait spin described in spec.md §4.4,
// and can return Timeout if MWMRSpinCap iterations pass without the slot
// becoming free.
//
// This loop is intentionally a raw busy/yield spin, not built on a
// third-party backoff library: it must stay allocation-free and
// lock-free, and cenkalti/backoff/v5 (wired elsewhere in this module for
// the opt-in idle-subscriber helper in poll.go) allocates per retry and
// is not suited to a hot reservation path.
func (p *MWMRPublisher) Publish(payload []byte, publisherID uint16) (uint64, Code, error) {
	t := p.topic
	capacity := t.PayloadCapacity()
	if uint32(len(payload)) > capacity {
		return 0, PayloadTooLarge, nil
	}

	commitSeq := atomic.AddUint64(&t.desc.WriteHead, 1)
	idx := uint32(commitSeq-1) & (t.desc.SlotCount - 1)
	hdr := t.slotHeader(idx)

	myGeneration := commitSeq / uint64(t.desc.SlotCount)

	for iter := 0; ; iter++ {
		current := atomic.LoadUint64(&hdr.Seq)
		if current == 0 || current/uint64(t.desc.SlotCount) < myGeneration {
			break
		}
		if iter >= MWMRSpinCap {
			return commitSeq, Timeout, nil
		}
		if iter >= mwmrRelaxPhase {
			// Slower writer is still mid-commit; stop busy-spinning and
			// give the scheduler a chance to run it.
			runtime.Gosched()
		}
	}

	dst := t.slotPayload(idx)
	copy(dst, payload)
	hdr.PayloadLen = uint32(len(payload))
	hdr.PublisherID = publisherID
	hdr.TimestampNs = uint64(time.Now().UnixNano())

	atomic.StoreUint64(&hdr.Seq, commitSeq)

	return commitSeq, Ok, nil
}
