package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/biomirror/biomirror/pkg/types"
	"github.com/biomirror/biomirror/pkg/wire"
	"github.com/biomirror/biomirror/server/internal/alerts"
	"github.com/biomirror/biomirror/server/internal/api"
	"github.com/biomirror/biomirror/server/internal/auth"
	"github.com/biomirror/biomirror/server/internal/config"
	"github.com/biomirror/biomirror/server/internal/metrics"
	"github.com/biomirror/biomirror/server/internal/receiver"
	"github.com/biomirror/biomirror/server/internal/relay"
	"github.com/biomirror/biomirror/server/internal/session"
	"github.com/biomirror/biomirror/server/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("biomirror-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	sc := cfg.Server

	slog.Info("config loaded",
		"grpc_port", sc.GRPCPort,
		"http_port", sc.HTTPPort,
		"auth_mode", sc.Auth.Mode,
		"calibration", sc.Session.Calibration,
		"mqtt", sc.MQTT.Enabled(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	producers := store.NewProducers(sc.Producers.TTL)
	go producers.Run(ctx)

	series := store.NewSeries(sc.Session.SeriesLength)
	alertEngine := alerts.New(sc.Alerts)

	var (
		samples *relay.Hub
		outputs *relay.Hub
		sess    *session.Session
		m       *metrics.Metrics
	)
	m = metrics.New(func() float64 { return float64(samples.Count() + outputs.Count()) })

	// Sample relay: producers in, raw samples out to observers and the session.
	samples = relay.New(relay.Options{
		Name:             "samples",
		ClientBuffer:     sc.Relay.ClientBuffer,
		SubscriberBuffer: sc.Relay.SubscriberBuffer,
		OnDrop:           func(target string) { m.Dropped(target, 1) },
		OnPublish:        m.SampleRelayed,
	})
	go samples.Run(ctx)

	// Output hub: session events out to the presentation layer. A new
	// observer gets the current snapshot first.
	outputs = relay.New(relay.Options{
		Name:         "session",
		ClientBuffer: sc.Relay.ClientBuffer,
		OnDrop:       func(target string) { m.Dropped(target, 1) },
		OnConnect: func() (string, any) {
			return session.EventState, sess.Snapshot()
		},
	})
	go outputs.Run(ctx)

	sub := samples.Subscribe()
	sess = session.New(sub.C, session.Options{
		Params:      sc.Pipeline,
		Calibration: sc.Session.Calibration,
		DisplayRate: sc.Session.DisplayRate,
		Broadcaster: outputs,
		Recorders:   []session.Recorder{series, alertEngine, m},
		OnState:     m.SetState,
	})
	m.SetState(types.StateIdle)
	go sess.Run(ctx)

	// Hot-reload alert rules when the config file changes.
	go func() {
		err := config.Watch(ctx, *configPath, func(c *config.Config) {
			alertEngine.SetConfig(c.Server.Alerts)
			slog.Info("alert rules reloaded", "rules", len(c.Server.Alerts.Rules))
		})
		if err != nil {
			slog.Warn("config watch unavailable", "err", err)
		}
	}()

	rec := receiver.New(samples, receiver.Options{Producers: producers, OnDrop: m.Dropped})

	// gRPC server with optional API key authentication interceptor.
	authKey, authHeader := sc.Auth.Key(), sc.Auth.EffectiveHeader()
	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(auth.APIKeyInterceptor(sc.Auth.Mode, authHeader, authKey)))
	wire.RegisterSampleRelayServer(grpcSrv, rec)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", sc.GRPCPort))
	if err != nil {
		slog.Error("failed to listen on gRPC port", "port", sc.GRPCPort, "err", err)
		os.Exit(1)
	}
	go func() {
		slog.Info("gRPC receiver listening", "port", sc.GRPCPort)
		if err := grpcSrv.Serve(lis); err != nil {
			slog.Error("gRPC server stopped", "err", err)
		}
	}()

	if sc.MQTT.Enabled() {
		mqttSub := receiver.NewMQTT(receiver.MQTTConfig{
			Broker:   sc.MQTT.Broker,
			Topic:    sc.MQTT.Topic,
			ClientID: sc.MQTT.ClientID,
			QoS:      byte(sc.MQTT.QoS),
			Username: sc.MQTT.Username,
			Password: sc.MQTT.Password(),
		}, rec)
		go func() {
			if err := mqttSub.Run(ctx); err != nil {
				slog.Error("MQTT ingress stopped", "broker", sc.MQTT.Broker, "err", err)
			}
		}()
	}

	protect := func(next http.Handler) http.Handler {
		return auth.Middleware(sc.Auth.Mode, authHeader, authKey, next)
	}

	// Combined HTTP server: REST API, charts, WebSocket hubs and metrics.
	apiHandler := api.New(api.Deps{
		Session:   sess,
		Series:    series,
		Producers: producers,
		Alerts:    alertEngine,
		Observers: outputs.Count,
		Tolerance: sc.Pipeline.Tolerance,
		Protect:   protect,
	})
	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", apiHandler)
	httpMux.Handle("/charts", apiHandler)
	httpMux.Handle("/ws/samples", samples)
	httpMux.Handle("/ws/publish", protect(samples.PublishHandler()))
	httpMux.Handle("/ws/session", outputs)
	httpMux.Handle("/metrics", m.Handler())

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", sc.HTTPPort),
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", sc.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("biomirror-server shutting down")
	grpcSrv.GracefulStop()
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	alertEngine.Wait()
}
