// Command ringpub attaches to a region built by ringctl and publishes
// synthetic Ethernet/IPv4/UDP frames to one topic at a fixed rate, a
// stand-in producer for exercising the SWMR/MWMR publish paths without a
// real capture source.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"os"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/shmbus/shmbus/common/go/logging"
	"github.com/shmbus/shmbus/common/go/xcmd"
	"github.com/shmbus/shmbus/ring"
)

var (
	regionName  string
	topicName   string
	publisherID uint16
	rate        time.Duration
	useMWMR     bool
)

var rootCmd = &cobra.Command{
	Use:   "ringpub",
	Short: "Publish synthetic packet frames into a shmbus topic",
	RunE: func(_ *cobra.Command, _ []string) error {
		return run()
	},
}

func init() {
	_ = godotenv.Load()

	rootCmd.Flags().StringVarP(&regionName, "region", "r", "shmbus.default", "Region name to attach to")
	rootCmd.Flags().StringVarP(&topicName, "topic", "t", "default", "Topic to publish into")
	rootCmd.Flags().Uint16Var(&publisherID, "publisher-id", 1, "Publisher identity tag stamped on every slot")
	rootCmd.Flags().DurationVar(&rate, "interval", 10*time.Millisecond, "Delay between publishes")
	rootCmd.Flags().BoolVar(&useMWMR, "mwmr", false, "Use the multi-writer publish path instead of SWMR")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	log, _, err := logging.Init(&logging.Config{Level: zapcore.InfoLevel})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	region, err := ring.Attach(regionName)
	if err != nil {
		return fmt.Errorf("failed to attach region %q: %w", regionName, err)
	}
	defer region.Detach()

	topic, err := region.Topic(topicName)
	if err != nil {
		return fmt.Errorf("failed to look up topic %q: %w", topicName, err)
	}

	var pub ring.Publisher
	if useMWMR {
		pub = ring.NewMWMRPublisher(topic)
	} else {
		pub = ring.NewSWMRPublisher(topic)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		return publishLoop(ctx, log.Infow, pub)
	})
	wg.Go(func() error {
		err := xcmd.WaitInterrupted(ctx)
		log.Infow("caught signal", "err", err)
		return err
	})

	return wg.Wait()
}

func publishLoop(ctx context.Context, logw func(string, ...interface{}), pub ring.Publisher) error {
	ticker := time.NewTicker(rate)
	defer ticker.Stop()

	var sent uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			frame, err := syntheticFrame(sent)
			if err != nil {
				return fmt.Errorf("failed to build frame: %w", err)
			}

			seq, code, err := pub.Publish(frame, publisherID)
			if err != nil {
				return fmt.Errorf("publish failed: %w", err)
			}
			if code != ring.Ok {
				logw("publish rejected", "code", code.String(), "seq", seq)
				continue
			}
			sent++
		}
	}
}

// syntheticFrame builds a minimal Ethernet/IPv4/UDP frame carrying a random
// payload, using gopacket's layer serialization instead of hand-packed
// bytes.
func syntheticFrame(n uint64) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
		DstMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(10, 0, 0, 2),
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(40000),
		DstPort: layers.UDPPort(40001),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}

	payload := make([]byte, 16)
	rand.Read(payload)

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
