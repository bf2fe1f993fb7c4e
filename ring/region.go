package ring

import (
	"fmt"
	"unsafe"

	"github.com/hashicorp/go-multierror"

	"github.com/shmbus/shmbus/shm"
)

// MinRegionSize is the smallest region Create and CreateInMemory accept
// (spec.md §3).
const MinRegionSize = 4096

// TopicConfig describes one topic to carve out of a region at build time
// (spec.md §4.1 "Inputs").
type TopicConfig struct {
	Name         string
	SlotCount    uint32
	PayloadMax   uint32
	Kind         RingKind
}

// Region is an attached view over a shared-memory region: a RegionHeader,
// a topic table, and the ring descriptors/slots the table points into.
// All addressing inside a Region is by offset from base, computed at
// dereference time (spec.md §9 "Pointer graphs into shared memory") so the
// same Region value works regardless of where the backing bytes are
// mapped in this process's address space.
type Region struct {
	base []byte
	seg  *shm.Segment // nil if not backed by shm (e.g. built in test memory)
}

func (r *Region) header() *RegionHeader {
	return (*RegionHeader)(unsafe.Pointer(&r.base[0]))
}

func (r *Region) at(offset uint64) unsafe.Pointer {
	return unsafe.Pointer(&r.base[offset])
}

// validate checks the magic/version invariants (I1) a reader must see
// before trusting any other field.
func (r *Region) validate() error {
	if len(r.base) < int(regionHeaderSize) {
		return fmt.Errorf("region too small to hold a header")
	}
	h := r.header()
	if h.MagicWord != Magic {
		return fmt.Errorf("bad magic: got %#x want %#x", h.MagicWord, Magic)
	}
	if h.VersionWord != Version {
		return fmt.Errorf("unsupported version: got %d want %d", h.VersionWord, Version)
	}
	if h.RegionSize != uint64(len(r.base)) {
		return fmt.Errorf("region size mismatch: header says %d, mapping is %d", h.RegionSize, len(r.base))
	}
	return nil
}

// Validate checks every TopicConfig independently and returns the
// aggregate of all failures via hashicorp/go-multierror, rather than
// stopping at the first bad topic (spec.md §4.1 step 4, SPEC_FULL.md §A.2).
func Validate(topics []TopicConfig) error {
	if len(topics) == 0 {
		return newBuildError(InvalidArgs, fmt.Errorf("at least one topic is required"))
	}

	var result *multierror.Error
	seen := make(map[string]struct{}, len(topics))
	for i, t := range topics {
		if t.Name == "" {
			result = multierror.Append(result, fmt.Errorf("topic %d: empty name", i))
			continue
		}
		if len(t.Name) >= MaxTopicName {
			result = multierror.Append(result, fmt.Errorf("topic %d (%q): name exceeds %d bytes", i, t.Name, MaxTopicName-1))
		}
		if _, dup := seen[t.Name]; dup {
			result = multierror.Append(result, fmt.Errorf("topic %q: duplicate name (I7)", t.Name))
		}
		seen[t.Name] = struct{}{}
		if t.SlotCount == 0 {
			result = multierror.Append(result, fmt.Errorf("topic %q: slot count must be > 0", t.Name))
		}
		if t.PayloadMax == 0 {
			result = multierror.Append(result, fmt.Errorf("topic %q: payload max must be > 0", t.Name))
		}
	}

	if result != nil {
		return newBuildError(InvalidArgs, result.ErrorOrNil())
	}
	return nil
}

// layoutPlan is the byte-accounting pass Create and CreateInMemory run before
// touching any memory, so a too-small region fails before anything is
// written (spec.md §4.1 step 5: "must not be partially published").
type layoutPlan struct {
	topicTableOffset uint64
	entries          []plannedTopic
	totalSize        uint64
}

type plannedTopic struct {
	cfg              TopicConfig
	slotCount        uint32
	slotSize         uint32
	descriptorOffset uint64
	slotsBaseOffset  uint64
}

func planLayout(topics []TopicConfig) layoutPlan {
	cursor := alignUp(uint64(regionHeaderSize), 8)
	topicTableOffset := cursor
	cursor += uint64(len(topics)) * uint64(topicEntrySize)

	entries := make([]plannedTopic, len(topics))
	for i, cfg := range topics {
		slotCount := nextPow2(cfg.SlotCount)
		slotSize := slotSizeFor(cfg.PayloadMax)

		cursor = alignUp(cursor, Align)
		descOffset := cursor
		cursor += uint64(ringDescriptorSize)

		cursor = alignUp(cursor, Align)
		slotsBase := cursor
		cursor += uint64(slotCount) * uint64(slotSize)

		entries[i] = plannedTopic{
			cfg:              cfg,
			slotCount:        slotCount,
			slotSize:         slotSize,
			descriptorOffset: descOffset,
			slotsBaseOffset:  slotsBase,
		}
	}

	return layoutPlan{topicTableOffset: topicTableOffset, entries: entries, totalSize: cursor}
}

// Create builds a fresh region of the given name and size with the given
// topics, in order, per spec.md §4.1. On any failure the region is
// unlinked and no partial region is left behind.
func Create(name string, size uint64, topics []TopicConfig) (*Region, error) {
	if name == "" {
		return nil, newBuildError(InvalidArgs, fmt.Errorf("region name must not be empty"))
	}
	if size < MinRegionSize {
		return nil, newBuildError(InvalidArgs, fmt.Errorf("region size %d is below minimum %d", size, MinRegionSize))
	}
	if err := Validate(topics); err != nil {
		return nil, err
	}

	plan := planLayout(topics)
	if plan.totalSize > size {
		_ = shm.Unlink(name)
		return nil, newBuildError(OutOfRegion, fmt.Errorf("topics need %d bytes, region only has %d", plan.totalSize, size))
	}

	seg, err := shm.Create(name, size)
	if err != nil {
		return nil, newBuildError(CreateFailed, err)
	}

	r := &Region{base: seg.Data, seg: seg}
	if err := r.install(name, size, plan); err != nil {
		_ = seg.Unmap()
		_ = shm.Unlink(name)
		return nil, err
	}
	return r, nil
}

// install writes the header, topic table, and ring descriptors described
// by plan into the already-zeroed region bytes.
func (r *Region) install(_ string, size uint64, plan layoutPlan) error {
	h := r.header()
	h.RegionSize = size
	h.TopicTableOffset = plan.topicTableOffset
	h.TopicCount = uint32(len(plan.entries))

	for i, pt := range plan.entries {
		entryOffset := plan.topicTableOffset + uint64(i)*uint64(topicEntrySize)
		entry := (*TopicEntry)(r.at(entryOffset))
		if !entry.setName(pt.cfg.Name) {
			return newBuildError(InvalidArgs, fmt.Errorf("topic %q name too long", pt.cfg.Name))
		}
		entry.RingDescriptorOffset = pt.descriptorOffset
		entry.SlotCount = pt.slotCount
		entry.SlotSize = pt.slotSize
		entry.Kind = pt.cfg.Kind

		desc := (*RingDescriptor)(r.at(pt.descriptorOffset))
		desc.SlotCount = pt.slotCount
		desc.SlotSize = pt.slotSize
		desc.SlotsBaseOffset = pt.slotsBaseOffset
		desc.WriteHead = 0
		// Slot memory was already zeroed by shm.Create, satisfying "seq ==
		// 0 means never written" (spec.md §3) for every slot without an
		// explicit per-slot loop.
	}

	// Publish magic/version last: a reader must never observe a region
	// with a valid magic but an unfinished topic table (spec.md §4.1
	// post-condition).
	h.VersionWord = Version
	h.MagicWord = Magic
	return nil
}

// CreateInMemory builds a region over a plain heap-allocated byte slice
// instead of a named /dev/shm segment. It runs the identical layout and
// validation logic as Create and exists for tests (and for single-process
// embedding) that want the region semantics without a kernel object —
// the property tests in this package use it exclusively so they run in
// any sandbox without /dev/shm access.
func CreateInMemory(size uint64, topics []TopicConfig) (*Region, error) {
	if size < MinRegionSize {
		return nil, newBuildError(InvalidArgs, fmt.Errorf("region size %d is below minimum %d", size, MinRegionSize))
	}
	if err := Validate(topics); err != nil {
		return nil, err
	}

	plan := planLayout(topics)
	if plan.totalSize > size {
		return nil, newBuildError(OutOfRegion, fmt.Errorf("topics need %d bytes, region only has %d", plan.totalSize, size))
	}

	r := &Region{base: make([]byte, size)}
	if err := r.install("", size, plan); err != nil {
		return nil, err
	}
	return r, nil
}

// Attach opens an existing region by name and validates it (spec.md §4.2
// "Must reject on magic mismatch"). Attach is idempotent for any number of
// reader or writer processes.
func Attach(name string) (*Region, error) {
	seg, err := shm.Open(name)
	if err != nil {
		return nil, usageError("attach", err)
	}
	r := &Region{base: seg.Data, seg: seg}
	if err := r.validate(); err != nil {
		_ = seg.Unmap()
		return nil, usageError("attach", err)
	}
	return r, nil
}

// Detach unmaps this process's view of the region without affecting other
// attached processes or the region's lifetime (spec.md §5).
func (r *Region) Detach() error {
	if r.seg == nil {
		return nil
	}
	return r.seg.Unmap()
}

// Unlink removes the named region from the filesystem. It is the builder
// owner's responsibility to call this exactly once (spec.md §5).
func Unlink(name string) error {
	return shm.Unlink(name)
}

// Size returns the total region size in bytes.
func (r *Region) Size() uint64 { return r.header().RegionSize }

// TopicCount returns the number of topics in the region's table.
func (r *Region) TopicCount() uint32 { return r.header().TopicCount }
