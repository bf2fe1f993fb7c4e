package ring

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// TestScenarioSingleWriterSingleReader is end-to-end scenario 1: a
// subscriber started before any publish must receive every sequence in
// order with no skips.
func TestScenarioSingleWriterSingleReader(t *testing.T) {
	topic := swmrTopic(t, 64, 64)
	pub := NewSWMRPublisher(topic)
	sub := NewSubscriber(topic)

	const count = 100
	buf := make([]byte, 64)
	var received []uint64
	for i := 1; i <= count; i++ {
		payload := make([]byte, 8)
		binary.BigEndian.PutUint64(payload, uint64(i))
		_, code, err := pub.Publish(payload, 0)
		require.NoError(t, err)
		require.Equal(t, Ok, code)

		// The reader keeps up with the writer, so 100 messages pass through
		// a 64-slot ring without the reader ever being lapped.
		n, _, code := sub.Consume(buf)
		require.Equal(t, Ok, code)
		received = append(received, binary.BigEndian.Uint64(buf[:n]))
	}

	want := make([]uint64, count)
	for i := range want {
		want[i] = uint64(i + 1)
	}
	assert.Equal(t, want, received)
	assert.Zero(t, sub.Skipped())
}

// TestScenarioLaggingSubscriber is end-to-end scenario 2.
func TestScenarioLaggingSubscriber(t *testing.T) {
	topic := swmrTopic(t, 16, 16)
	pub := NewSWMRPublisher(topic)

	for i := 1; i <= 160; i++ {
		_, code, err := pub.Publish([]byte{byte(i)}, 0)
		require.NoError(t, err)
		require.Equal(t, Ok, code)
	}

	sub := NewSubscriber(topic)
	buf := make([]byte, 16)
	_, _, code := sub.Consume(buf)
	require.Equal(t, Ok, code)

	assert.GreaterOrEqual(t, sub.LastSeq(), uint64(145))
	assert.LessOrEqual(t, sub.LastSeq(), uint64(160))
	assert.GreaterOrEqual(t, sub.Skipped(), uint64(144))
}

// TestScenarioTornReadStress is end-to-end scenario 3 / property P4, scaled
// down from 1e5 messages and 2 seconds to at most 20,000 messages within
// 200ms, and to at most 2,000 messages within 50ms under -short.
func TestScenarioTornReadStress(t *testing.T) {
	const headTailPayload = 64

	topic := swmrTopic(t, 1024, headTailPayload)
	sub := NewSubscriber(topic)

	deadline := 200 * time.Millisecond
	target := 20_000
	if testing.Short() {
		target = 2_000
		deadline = 50 * time.Millisecond
	}

	stop := make(chan struct{})
	var wg errgroup.Group
	wg.Go(func() error {
		pub := NewSWMRPublisher(topic)
		var counter uint64
		payload := make([]byte, headTailPayload)
		for {
			select {
			case <-stop:
				return nil
			default:
			}
			counter++
			binary.BigEndian.PutUint64(payload[:8], counter)
			binary.BigEndian.PutUint64(payload[len(payload)-8:], counter)
			if _, _, err := pub.Publish(payload, 0); err != nil {
				return err
			}
		}
	})

	buf := make([]byte, headTailPayload)
	delivered := 0
	mismatches := 0
	timer := time.NewTimer(deadline)
	defer timer.Stop()

loop:
	for delivered < target {
		select {
		case <-timer.C:
			break loop
		default:
		}
		n, _, code := sub.Consume(buf)
		if code != Ok {
			continue
		}
		if n != headTailPayload {
			mismatches++
			continue
		}
		head := binary.BigEndian.Uint64(buf[:8])
		tail := binary.BigEndian.Uint64(buf[len(buf)-8:])
		if head != tail {
			mismatches++
		}
		delivered++
	}

	close(stop)
	require.NoError(t, wg.Wait())

	assert.Zero(t, mismatches, "no delivered message should ever show a torn head/tail pair")
	assert.Greater(t, delivered, 0)
}

// TestScenarioMWMRFanIn is end-to-end scenario 4.
func TestScenarioMWMRFanIn(t *testing.T) {
	const writers = 8
	perWriter := 10_000
	if testing.Short() {
		perWriter = 500
	}

	topic := mwmrTopic(t, 1024, 8)

	var wg errgroup.Group
	for w := 0; w < writers; w++ {
		writerID := uint32(w)
		wg.Go(func() error {
			pub := NewMWMRPublisher(topic)
			payload := make([]byte, 8)
			for i := 0; i < perWriter; i++ {
				binary.BigEndian.PutUint32(payload[:4], writerID)
				binary.BigEndian.PutUint32(payload[4:], uint32(i))
				if _, code, err := pub.Publish(payload, uint16(writerID)); err != nil || code != Ok {
					if err == nil {
						err = assertErr(code)
					}
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, wg.Wait())

	total := uint64(writers * perWriter)
	assert.EqualValues(t, total, topic.WriteHead())

	// Every slot's final generation must be one of the last slot_count
	// sequences issued; the union across all slots accounts for the full
	// final cycle, the strongest "80000 distinct sequences" check
	// observable after the fact without a publish-time log.
	slotCount := uint64(topic.SlotCount())
	start := uint64(1)
	if total > slotCount {
		start = total - slotCount + 1
	}
	seen := make(map[uint64]struct{}, slotCount)
	for idx := uint32(0); idx < uint32(slotCount); idx++ {
		if seq := topic.SlotSeq(idx); seq != 0 {
			seen[seq] = struct{}{}
		}
	}
	for s := start; s <= total; s++ {
		_, ok := seen[s]
		assert.True(t, ok, "sequence %d missing from its slot", s)
	}
}

// TestScenarioRejectionOnOversize is end-to-end scenario 5.
func TestScenarioRejectionOnOversize(t *testing.T) {
	topic := swmrTopic(t, 4, 64)
	pub := NewSWMRPublisher(topic)
	capacity := topic.PayloadCapacity()
	require.EqualValues(t, 64, capacity)

	before := topic.WriteHead()
	_, code, err := pub.Publish(make([]byte, capacity+1), 0)
	require.NoError(t, err)
	assert.Equal(t, PayloadTooLarge, code)
	assert.Equal(t, before, topic.WriteHead())
}

// TestScenarioTruncatedConsume is end-to-end scenario 6.
func TestScenarioTruncatedConsume(t *testing.T) {
	topic := swmrTopic(t, 4, 128)
	pub := NewSWMRPublisher(topic)
	sub := NewSubscriber(topic)

	_, code, err := pub.Publish(make([]byte, 100), 0)
	require.NoError(t, err)
	require.Equal(t, Ok, code)

	small := make([]byte, 32)
	_, _, consumeCode := sub.Consume(small)
	assert.Equal(t, Truncated, consumeCode)

	_, _, consumeCode = sub.Consume(small)
	assert.Equal(t, NoData, consumeCode)

	_, code, err = pub.Publish(make([]byte, 10), 0)
	require.NoError(t, err)
	require.Equal(t, Ok, code)

	n, _, consumeCode := sub.Consume(small)
	assert.Equal(t, Ok, consumeCode)
	assert.EqualValues(t, 10, n)
}

func assertErr(code Code) error {
	return &Error{Code: code, Op: "publish"}
}
