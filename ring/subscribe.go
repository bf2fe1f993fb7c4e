package ring

import "sync/atomic"

// Subscriber owns a private cursor into a topic's ring (spec.md §4.5). It
// is not safe for concurrent use by multiple goroutines — spec.md's
// Non-goals exclude subscriber coordination, so a second reader wanting
// its own independent view simply constructs its own Subscriber with
// NewSubscriber, starting fresh or resuming from a saved Cursor.
//
// This is the generalization of the teacher's workerArea.read: the same
// "compare the shared position to our private position, detect the writer
// lapping us, discard what's now invalid" shape, narrowed from a
// byte-stream reader to the spec's one-message-per-call Consume with an
// explicit seqlock torn-read check.
type Subscriber struct {
	topic   *Topic
	lastSeq uint64
	skipped uint64
}

// NewSubscriber attaches a subscriber to topic, starting from the
// beginning of whatever is still present (spec.md §4.5: "starts at 0").
func NewSubscriber(topic *Topic) *Subscriber {
	return &Subscriber{topic: topic}
}

// Cursor is the serializable half of Subscriber's state, for a caller that
// wants to persist and resume a subscriber's position across restarts of
// its own process (the region itself guarantees no durability — spec.md
// Non-goals — but nothing stops an external caller from checkpointing the
// cursor value itself).
type Cursor struct {
	LastSeq uint64
	Skipped uint64
}

// NewSubscriberFromCursor resumes a subscriber at a previously saved
// position.
func NewSubscriberFromCursor(topic *Topic, c Cursor) *Subscriber {
	return &Subscriber{topic: topic, lastSeq: c.LastSeq, skipped: c.Skipped}
}

// Save snapshots the subscriber's current cursor.
func (s *Subscriber) Save() Cursor {
	return Cursor{LastSeq: s.lastSeq, Skipped: s.skipped}
}

// LastSeq returns the last sequence number this subscriber has
// successfully delivered or skipped past.
func (s *Subscriber) LastSeq() uint64 { return s.lastSeq }

// Skipped returns the cumulative count of messages this subscriber has
// lost to lag jumps or torn-read retries (spec.md §7, "skipped_count").
func (s *Subscriber) Skipped() uint64 { return s.skipped }

// Consume delivers the next message into buf, per the algorithm in
// spec.md §4.5. It never blocks: NoData means "nothing ready yet, try
// again later" and the caller owns the retry policy (spec.md §5).
func (s *Subscriber) Consume(buf []byte) (payloadLen int, publisherID uint16, code Code) {
	t := s.topic
	slotCount := uint64(t.desc.SlotCount)

	// Step 1.
	w := atomic.LoadUint64(&t.desc.WriteHead)
	next := s.lastSeq + 1
	if next > w {
		return 0, 0, NoData
	}

	// Step 3: lag jump.
	if w-next >= slotCount {
		skipped := w - next
		newStart := w - slotCount + 1
		s.skipped += skipped
		s.lastSeq = newStart - 1
		next = newStart

		w = atomic.LoadUint64(&t.desc.WriteHead)
		if next > w {
			return 0, 0, NoData
		}
	}

	// Step 4.
	idx := uint32((next - 1) & (slotCount - 1))
	hdr := t.slotHeader(idx)

	// Step 5.
	seqPre := atomic.LoadUint64(&hdr.Seq)

	// Step 6.
	if seqPre == 0 || seqPre < next {
		return 0, 0, NoData
	}

	// Step 7: writer overtook us between steps 1 and 5.
	if seqPre > next {
		s.skipped += seqPre - next
		s.lastSeq = seqPre - 1
		return 0, 0, NoData
	}

	// Step 8.
	payloadLen = int(hdr.PayloadLen)
	if payloadLen > len(buf) {
		s.lastSeq = next
		return 0, 0, Truncated
	}

	// Step 9: plain payload read, bracketed by the acquire load above and
	// the acquire fence (re-load of Seq) below — the seqlock discipline.
	publisherID = hdr.PublisherID
	n := copy(buf, t.slotPayload(idx)[:payloadLen])

	// Step 10-11: acquire fence + relaxed re-check.
	seqPost := atomic.LoadUint64(&hdr.Seq)
	if seqPost != seqPre {
		s.skipped++
		s.lastSeq = atomic.LoadUint64(&t.desc.WriteHead)
		return 0, 0, NoData
	}

	// Step 12.
	s.lastSeq = next
	return n, publisherID, Ok
}
