package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raymondelooff/fpl-outage-scrubber/scrubber"
	"go.uber.org/zap"
)

const version = "1.3"

func main() {
	path := scrubber.DefaultConfigPath
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// The logger is configured from the config, so bootstrap with a production one
	bootLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("error: %v", err)
	}

	c, err := scrubber.LoadConfig(path, bootLogger.Sugar())
	if err != nil {
		bootLogger.Sugar().Fatalf("error: %v", err)
	}
	bootLogger.Sync()

	// Set up logger
	var logger *zap.Logger
	if c.Env == "dev" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("error: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	sugar.Infof("Booting FPL scrubber v%s", version)

	sink, err := scrubber.NewSink(c, sugar)
	if err != nil {
		sugar.Fatalf("error: %v", err)
	}

	s := scrubber.NewScrubber(c, scrubber.Endpoints(), scrubber.PollInterval, sink, sugar)
	s.Run(context.Background())

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)

	<-exit

	sugar.Info("scrubber: shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.Shutdown(ctx)
	sugar.Info("scrubber: shutdown OK")
}
