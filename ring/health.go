package ring

import (
	"encoding/json"
	"sync/atomic"
	"time"
)

// Health derives read-only metrics from a topic's ring state, never
// mutating it (spec.md §4.6 "All metrics are derived on demand"). It is
// safe to call from any process, including one that never publishes or
// subscribes to the topic.
type Health struct {
	topic *Topic
}

// NewHealth returns a health view over topic.
func NewHealth(topic *Topic) *Health { return &Health{topic: topic} }

// TotalPublished is the ring's write head: the count of reservations ever
// made, SWMR or MWMR, acquired.
func (h *Health) TotalPublished() uint64 {
	return atomic.LoadUint64(&h.topic.desc.WriteHead)
}

// LastPublishNs returns the commit timestamp of the most recently
// published message, or 0 if that slot is still mid-commit (spec.md §4.6:
// "the slot is still being committed and the value is considered
// unknown").
func (h *Health) LastPublishNs() uint64 {
	t := h.topic
	w := atomic.LoadUint64(&t.desc.WriteHead)
	if w == 0 {
		return 0
	}
	idx := uint32((w - 1) & uint64(t.desc.SlotCount-1))
	hdr := t.slotHeader(idx)
	if atomic.LoadUint64(&hdr.Seq) != w {
		return 0
	}
	return hdr.TimestampNs
}

// Lag returns write_head - subscriber.last_seq, clamped to 0 (spec.md §4.6).
func (h *Health) Lag(sub *Subscriber) uint64 {
	w := h.TotalPublished()
	if w < sub.lastSeq {
		return 0
	}
	return w - sub.lastSeq
}

// Silent reports whether the topic has not published in longer than
// threshold, relative to now (spec.md §4.6 "liveness / inactivity").
func (h *Health) Silent(now time.Time, threshold time.Duration) bool {
	last := h.LastPublishNs()
	if last == 0 {
		return true
	}
	age := now.Sub(time.Unix(0, int64(last)))
	return age > threshold
}

// LagBreach reports whether sub's lag exceeds threshold.
func (h *Health) LagBreach(sub *Subscriber, threshold uint64) bool {
	return h.Lag(sub) > threshold
}

// Snapshot is the compact health export spec.md §6 defines: exactly the
// fields "topic", "published", "last_pub_ns", "lag", with no additional
// fields ("format stability is not guaranteed beyond these field names").
type Snapshot struct {
	Topic      string `json:"topic"`
	Published  uint64 `json:"published"`
	LastPubNs  uint64 `json:"last_pub_ns"`
	Lag        uint64 `json:"lag"`
}

// Export produces the health snapshot for sub (or a lag of 0 if sub is
// nil, for a publisher-only view of a topic).
func (h *Health) Export(sub *Subscriber) Snapshot {
	var lag uint64
	if sub != nil {
		lag = h.Lag(sub)
	}
	return Snapshot{
		Topic:     h.topic.Name(),
		Published: h.TotalPublished(),
		LastPubNs: h.LastPublishNs(),
		Lag:       lag,
	}
}

// JSONLine marshals the snapshot as a single compact UTF-8 line, per
// spec.md §6.
func (s Snapshot) JSONLine() ([]byte, error) {
	return json.Marshal(s)
}
