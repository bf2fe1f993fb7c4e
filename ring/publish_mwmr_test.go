package ring

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func mwmrTopic(t *testing.T, slotCount, payloadMax uint32) *Topic {
	t.Helper()
	region, err := CreateInMemory(1<<20, []TopicConfig{
		{Name: "mwmr", SlotCount: slotCount, PayloadMax: payloadMax, Kind: KindMWMR},
	})
	require.NoError(t, err)
	topic, err := region.Topic("mwmr")
	require.NoError(t, err)
	return topic
}

// TestMWMRConcurrentWritersCoverFullSequenceSpace checks P6 as far as the
// final ring state shows it: after N concurrent writers each publish M
// payloads, the write head equals N*M and every one of the last slot_count
// sequences is present in its slot.
func TestMWMRConcurrentWritersCoverFullSequenceSpace(t *testing.T) {
	const writers = 8
	const perWriter = 200

	topic := mwmrTopic(t, 64, 16)

	var wg errgroup.Group
	for w := 0; w < writers; w++ {
		writerID := uint16(w)
		wg.Go(func() error {
			pub := NewMWMRPublisher(topic)
			for i := 0; i < perWriter; i++ {
				_, code, err := pub.Publish([]byte{byte(i)}, writerID)
				if err != nil {
					return err
				}
				if code != Ok {
					return fmt.Errorf("unexpected code: %s", code)
				}
			}
			return nil
		})
	}
	require.NoError(t, wg.Wait())

	assert.EqualValues(t, writers*perWriter, topic.WriteHead())

	seen := make(map[uint64]bool, writers*perWriter)
	slotCount := uint64(topic.SlotCount())
	for idx := uint32(0); idx < uint32(slotCount); idx++ {
		seq := topic.SlotSeq(idx)
		if seq == 0 {
			continue
		}
		seen[seq] = true
	}

	// Only the most recent generation per slot is observable at the end,
	// so this checks the final write head's worth of the tail, not every
	// sequence ever issued: the last slot_count sequences must all be
	// present, which is the strongest claim checkable without capturing a
	// publish-time log.
	w := topic.WriteHead()
	start := uint64(1)
	if w > slotCount {
		start = w - slotCount + 1
	}
	for s := start; s <= w; s++ {
		assert.True(t, seen[s], "sequence %d should be visible in its slot", s)
	}
}

// TestMWMRPayloadTooLarge mirrors the SWMR B1 boundary on the MWMR path.
func TestMWMRPayloadTooLarge(t *testing.T) {
	topic := mwmrTopic(t, 4, 16)
	pub := NewMWMRPublisher(topic)
	capacity := topic.PayloadCapacity()

	_, code, err := pub.Publish(make([]byte, capacity), 0)
	require.NoError(t, err)
	assert.Equal(t, Ok, code)

	_, code, err = pub.Publish(make([]byte, capacity+1), 0)
	require.NoError(t, err)
	assert.Equal(t, PayloadTooLarge, code)
}

// TestMWMRGenerationWaitBlocksUntilSlotFrees injects a slot holding a
// higher-generation value than the incoming reservation expects (as if a
// faster, later writer somehow committed first) and checks the
// generation-wait spin actually blocks until the slot is cleared, rather
// than racing past stale data.
func TestMWMRGenerationWaitBlocksUntilSlotFrees(t *testing.T) {
	topic := mwmrTopic(t, 1, 16)
	topic.ForceSlotSeq(0, 1000)

	pub := NewMWMRPublisher(topic)
	done := make(chan struct{})
	go func() {
		defer close(done)
		seq, code, err := pub.Publish([]byte("unblocked"), 1)
		assert.NoError(t, err)
		assert.Equal(t, Ok, code)
		assert.EqualValues(t, 1, seq)
	}()

	select {
	case <-done:
		t.Fatal("publish should have blocked on the higher-generation slot")
	case <-time.After(20 * time.Millisecond):
	}

	topic.ForceSlotSeq(0, 0)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish did not unblock after the slot was freed")
	}
}
