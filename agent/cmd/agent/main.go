package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/biomirror/biomirror/agent/internal/config"
	"github.com/biomirror/biomirror/agent/internal/sensor"
	"github.com/biomirror/biomirror/agent/internal/shipper"
)

const statsInterval = 30 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("biomirror-agent starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.Info("config loaded",
		"server_endpoint", cfg.Agent.ServerEndpoint,
		"producer_id", cfg.Agent.ProducerID,
		"sensor", cfg.Agent.Sensor.Type,
		"decimation", cfg.Agent.Sensor.Decimation,
		"batch_size", cfg.Agent.BatchSize,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stream, err := sensor.Open(ctx, cfg.Agent.Sensor)
	if err != nil {
		slog.Error("failed to open sensor", "type", cfg.Agent.Sensor.Type, "err", err)
		os.Exit(1)
	}
	defer stream.Close()

	// Hot-reload: only the decimation factor applies to a running sensor.
	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			stream.SetDecimation(updated.Agent.Sensor.Decimation)
			slog.Info("decimation updated", "decimation", updated.Agent.Sensor.Decimation)
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	// The shipper runs until ctx is cancelled.
	ship := shipper.New(cfg.Agent)
	go ship.Run(ctx)

	go func() {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				frames, kept, skipped := stream.Stats()
				shipped, dropped := ship.Stats()
				slog.Info("agent stats",
					"frames", frames,
					"kept", kept,
					"skipped", skipped,
					"shipped", shipped,
					"dropped", dropped,
				)
			}
		}
	}()

	if err := pump(ctx, stream, ship); err != nil {
		slog.Error("sensor stopped", "err", err)
	}

	<-ctx.Done()
	slog.Info("biomirror-agent shutting down")
}

// pump moves samples from src to the shipper until ctx is cancelled or the
// source ends. An exhausted replay leaves the agent idle until shutdown.
func pump(ctx context.Context, src sensor.Source, ship *shipper.Shipper) error {
	for {
		s, err := src.Next(ctx)
		switch {
		case err == nil:
			ship.Ship(s)
		case errors.Is(err, io.EOF):
			slog.Info("sensor exhausted")
			return nil
		case ctx.Err() != nil:
			return nil
		default:
			return err
		}
	}
}
