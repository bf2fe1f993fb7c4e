// Command ringctl builds, inspects, and unlinks shmbus regions from a YAML
// config file, the operator-facing counterpart to the ring package's
// programmatic Create/Attach/Unlink.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/shmbus/shmbus/common/go/logging"
	"github.com/shmbus/shmbus/config"
	"github.com/shmbus/shmbus/ring"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ringctl",
	Short: "Build and manage shmbus shared-memory regions",
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Create a region from a config file",
	RunE: func(_ *cobra.Command, _ []string) error {
		return runBuild(configPath)
	},
}

var unlinkCmd = &cobra.Command{
	Use:   "unlink",
	Short: "Unlink a region by name",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return ring.Unlink(args[0])
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print health snapshots for every topic in a region",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return runStatus(args[0])
	},
}

func init() {
	buildCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the region config file (required)")
	buildCmd.MarkFlagRequired("config")

	rootCmd.AddCommand(buildCmd, unlinkCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}

func runBuild(path string) error {
	log, _, err := logging.Init(&logging.Config{Level: zapcore.InfoLevel})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	topics, err := cfg.RingTopics()
	if err != nil {
		return fmt.Errorf("failed to resolve topics: %w", err)
	}

	region, err := ring.Create(cfg.Region, uint64(cfg.Size.Bytes()), topics)
	if err != nil {
		var buildErr *ring.BuildError
		if errors.As(err, &buildErr) {
			return fmt.Errorf("failed to build region %q: %s: %w", cfg.Region, buildErr.Kind, buildErr.Err)
		}
		return fmt.Errorf("failed to build region %q: %w", cfg.Region, err)
	}
	defer region.Detach()

	log.Infow("region built", "region", cfg.Region, "size", cfg.Size.String(), "topics", region.TopicCount())
	for _, name := range region.Topics() {
		log.Infow("topic ready", "topic", name)
	}
	return nil
}

func runStatus(name string) error {
	region, err := ring.Attach(name)
	if err != nil {
		return fmt.Errorf("failed to attach region %q: %w", name, err)
	}
	defer region.Detach()

	for _, topicName := range region.Topics() {
		topic, err := region.Topic(topicName)
		if err != nil {
			return fmt.Errorf("failed to look up topic %q: %w", topicName, err)
		}

		health := ring.NewHealth(topic)
		snapshot := health.Export(nil)
		line, err := snapshot.JSONLine()
		if err != nil {
			return fmt.Errorf("failed to marshal health for %q: %w", topicName, err)
		}
		fmt.Println(string(line))
	}

	return nil
}
