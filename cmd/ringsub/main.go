// Command ringsub attaches to a region and drains one topic, logging each
// delivered message and printing a periodic health snapshot, the
// operator-facing counterpart to ringpub.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/shmbus/shmbus/common/go/logging"
	"github.com/shmbus/shmbus/common/go/xcmd"
	"github.com/shmbus/shmbus/ring"
)

var (
	regionName   string
	topicName    string
	statusPeriod time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "ringsub",
	Short: "Subscribe to a shmbus topic and report health",
	RunE: func(_ *cobra.Command, _ []string) error {
		return run()
	},
}

func init() {
	rootCmd.Flags().StringVarP(&regionName, "region", "r", "shmbus.default", "Region name to attach to")
	rootCmd.Flags().StringVarP(&topicName, "topic", "t", "default", "Topic to subscribe to")
	rootCmd.Flags().DurationVar(&statusPeriod, "status-period", time.Second, "How often to print a health snapshot")
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

	sub := ring.NewSubscriber(topic)
	poller := ring.NewPoller(sub)
	health := ring.NewHealth(topic)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		return consumeLoop(ctx, poller, sub, log)
	})
	wg.Go(func() error {
		return statusLoop(ctx, health, sub)
	})
	wg.Go(func() error {
		err := xcmd.WaitInterrupted(ctx)
		log.Infow("caught signal", "err", err)
		return err
	})

	return wg.Wait()
}

func consumeLoop(ctx context.Context, poller *ring.Poller, sub *ring.Subscriber, log interface {
	Infow(string, ...interface{})
}) error {
	buf := make([]byte, 65536)
	for {
		n, publisherID, code, err := poller.Next(ctx, buf)
		if err != nil {
			return err
		}
		switch code {
		case ring.Ok:
			log.Infow("message", "bytes", n, "publisher_id", publisherID, "seq", sub.LastSeq())
		case ring.Truncated:
			log.Infow("message truncated", "seq", sub.LastSeq())
		}
	}
}

func statusLoop(ctx context.Context, health *ring.Health, sub *ring.Subscriber) error {
	ticker := time.NewTicker(statusPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			snapshot := health.Export(sub)
			line, err := snapshot.JSONLine()
			if err != nil {
				return fmt.Errorf("failed to marshal health snapshot: %w", err)
			}
			fmt.Println(string(line))
		}
	}
}
