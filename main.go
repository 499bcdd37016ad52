package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"updatestream-cdc/internal/checkpoint"
	"updatestream-cdc/internal/processor"
	"updatestream-cdc/internal/publisher"
	"updatestream-cdc/internal/updatestream"
)

func main() {
	// Setup logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetLevel(logrus.InfoLevel)

	// Load configuration
	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Set log level from config
	if level, err := logrus.ParseLevel(config.Logging.Level); err == nil {
		logger.SetLevel(level)
	}

	logger.Info("Starting update stream follower...")

	// Optional preflight against the source database
	if config.Source != nil {
		checker := NewSourceChecker(
			config.Source.Host,
			config.Source.Port,
			config.Source.User,
			config.Source.Password,
			logger,
		)
		if err := checker.CheckStreamPrerequisites(); err != nil {
			logger.Fatalf("Source preflight failed: %v", err)
		}
	}

	// Resume from the last checkpoint, falling back to the configured
	// start position.
	store := checkpoint.NewStore(config.Checkpoint.PositionFile, logger)
	groupID, err := store.Load(config.Checkpoint.StartGroupId)
	if err != nil {
		logger.Fatalf("Failed to load checkpoint: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to the update stream server
	conn := updatestream.NewStreamConn(
		config.Stream.Addr,
		config.Stream.Timeout,
		config.Stream.User,
		config.Stream.Password,
		config.Stream.Encrypted,
		config.Stream.KeyFile,
		config.Stream.CertFile,
		logger,
	)
	if err := conn.Dial(ctx); err != nil {
		logger.Fatalf("Failed to connect to update stream server: %v", err)
	}
	defer conn.Close()
	logger.Infof("Connected to update stream server at %s", config.Stream.Addr)

	// Initialize NATS publisher
	pub, err := publisher.New(
		config.NATS.URL,
		config.NATS.Subject,
		config.NATS.MaxReconnect,
		config.NATS.ReconnectWait,
		logger,
	)
	if err != nil {
		logger.Fatalf("Failed to create NATS publisher: %v", err)
	}
	defer pub.Close()

	transformer, err := processor.NewTransformer(&config.Processor, logger)
	if err != nil {
		logger.Fatalf("Failed to create transformer: %v", err)
	}

	proc := processor.New(conn, pub, transformer, store, logger)

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- proc.Run(ctx, updatestream.Position{GroupId: groupID})
	}()

	select {
	case sig := <-sigChan:
		logger.Infof("Received signal: %v, shutting down...", sig)
		cancel()
		<-errChan
	case err := <-errChan:
		if err != nil {
			logger.Errorf("Follower error: %v", err)
		}
	}

	logger.Info("Update stream follower stopped")
}
