package ring

import (
	"fmt"

	"github.com/gobwas/glob"
)

// Topic is a handle to one ring inside a Region, obtained via Region.Topic
// or Region.Match. It is the attach point publishers and subscribers
// construct their SWMR/MWMR/Subscribe views from.
type Topic struct {
	region *Region
	entry  *TopicEntry
	desc   *RingDescriptor
}

func (r *Region) topicEntry(idx uint32) *TopicEntry {
	off := r.header().TopicTableOffset + uint64(idx)*uint64(topicEntrySize)
	return (*TopicEntry)(r.at(off))
}

// Topic performs the linear, exact-name lookup spec.md §4.2 specifies:
// O(topics), bounded by MaxTopicName, rejecting lookups against a region
// that failed magic validation (callers can only reach this point via
// Attach/CreateInMemory, both of which already validated magic, so the
// check here guards against a caller holding a stale Region across an
// Unlink+rebuild).
func (r *Region) Topic(name string) (*Topic, error) {
	if err := r.validate(); err != nil {
		return nil, usageError("topic lookup", err)
	}
	count := r.header().TopicCount
	for i := uint32(0); i < count; i++ {
		entry := r.topicEntry(i)
		if entry.topicName() == name {
			return &Topic{
				region: r,
				entry:  entry,
				desc:   (*RingDescriptor)(r.at(entry.RingDescriptorOffset)),
			}, nil
		}
	}
	return nil, usageError("topic lookup", fmt.Errorf("topic %q not found", name))
}

// Topics returns the names of every topic in the region's table, in table
// order.
func (r *Region) Topics() []string {
	count := r.header().TopicCount
	names := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		names = append(names, r.topicEntry(i).topicName())
	}
	return names
}

// Match returns every topic whose name matches the given glob pattern
// (e.g. "metrics.*"), a registry enrichment beyond spec.md §4.2's exact-name
// lookup for operational tooling that wants to attach to a family of
// topics without knowing every name up front (SPEC_FULL.md §B/§C).
func (r *Region) Match(pattern string) ([]*Topic, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, usageError("topic match", fmt.Errorf("bad glob %q: %w", pattern, err))
	}

	count := r.header().TopicCount
	var out []*Topic
	for i := uint32(0); i < count; i++ {
		entry := r.topicEntry(i)
		name := entry.topicName()
		if g.Match(name) {
			out = append(out, &Topic{
				region: r,
				entry:  entry,
				desc:   (*RingDescriptor)(r.at(entry.RingDescriptorOffset)),
			})
		}
	}
	return out, nil
}

// Name returns the topic's name.
func (t *Topic) Name() string { return t.entry.topicName() }

// Kind returns whether this topic's ring is SWMR or MWMR.
func (t *Topic) Kind() RingKind { return t.entry.Kind }

// SlotCount returns the ring's slot count (always a power of two).
func (t *Topic) SlotCount() uint32 { return t.desc.SlotCount }

// SlotSize returns the ring's fixed slot size in bytes, including header.
func (t *Topic) SlotSize() uint32 { return t.desc.SlotSize }

// PayloadCapacity returns the maximum payload a single message may carry.
func (t *Topic) PayloadCapacity() uint32 {
	return t.desc.SlotSize - uint32(slotHeaderSize)
}

func (t *Topic) slotHeader(idx uint32) *SlotHeader {
	off := t.desc.SlotsBaseOffset + uint64(idx)*uint64(t.desc.SlotSize)
	return (*SlotHeader)(t.region.at(off))
}

func (t *Topic) slotPayload(idx uint32) []byte {
	off := t.desc.SlotsBaseOffset + uint64(idx)*uint64(t.desc.SlotSize) + uint64(slotHeaderSize)
	return t.region.base[off : off+uint64(t.PayloadCapacity())]
}
