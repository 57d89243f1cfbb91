package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/MegaGrindStone/streamchat/internal/chat"
	"github.com/MegaGrindStone/streamchat/internal/handlers"
	"github.com/MegaGrindStone/streamchat/internal/metrics"
	"github.com/MegaGrindStone/streamchat/internal/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/subosito/gotenv"
)

type flags struct {
	configPath string
	port       string
	transport  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:          "streamchat",
		Short:        "Serve a chat UI that streams answers from an upstream model",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), f)
		},
	}

	cmd.Flags().StringVar(&f.configPath, "config", "",
		"path to the config file (default <user config dir>/streamchat/config.yaml)")
	cmd.Flags().StringVar(&f.port, "port", "", "port to listen on, overrides the config")
	cmd.Flags().StringVar(&f.transport, "transport", "",
		"transport type (subscription, chunked, agent, openai, ollama), overrides the config")

	return cmd
}

func defaultConfigPath() (string, error) {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("error getting user config dir: %w", err)
	}
	return filepath.Join(cfgDir, "streamchat", "config.yaml"), nil
}

func run(ctx context.Context, f flags) error {
	// A missing .env file is fine: secrets may already be in the environment.
	_ = gotenv.Load()

	cfgPath := f.configPath
	if cfgPath == "" {
		p, err := defaultConfigPath()
		if err != nil {
			return err
		}
		cfgPath = p
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	if f.port != "" {
		cfg.Port = f.port
	}
	if f.transport != "" {
		if err := cfg.setTransportType(f.transport); err != nil {
			return err
		}
	}

	level, err := cfg.logLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	strategy, err := cfg.Transport.strategy(logger)
	if err != nil {
		return fmt.Errorf("error creating transport: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := chat.Options{
		Metrics: metrics.NewSessions(reg),
	}
	if cfg.Completer != nil {
		completer, err := cfg.Completer.completer(logger)
		if err != nil {
			return fmt.Errorf("error creating completer: %w", err)
		}
		opts.Completer = completer
	}
	if cfg.Cleanup {
		opts.Cleanup = services.Cleanup
	}

	// The controller reports changes to the handlers, which are built from the controller.
	var m handlers.Main
	opts.OnChange = func() { m.Publish() }

	ctrl := chat.NewController(strategy, chat.Params{
		Model:       cfg.Generation.Model,
		Temperature: cfg.Generation.Temperature,
		MaxTokens:   cfg.Generation.MaxTokens,
	}, logger, opts)

	m, err = handlers.NewMain(ctrl, opts.Completer != nil, logger)
	if err != nil {
		return fmt.Errorf("error creating handlers: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", m.HandleHome)
	mux.HandleFunc("/chats", m.HandleChats)
	mux.HandleFunc("/chats/complete", m.HandleComplete)
	mux.HandleFunc("/chats/abort", m.HandleAbort)
	mux.HandleFunc("/sse", m.HandleSSE)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv.RegisterOnShutdown(func() {
		if err := m.Shutdown(context.Background()); err != nil {
			logger.Error("Failed to shutdown sse server", slog.String("err", err.Error()))
		}
	})

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	go func() {
		logger.Info("Server starting",
			slog.String("addr", srv.Addr),
			slog.String("transport", strategy.Name()))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case sig := <-shutdown:
		logger.Info("Start shutdown", slog.String("signal", sig.String()))

	case <-ctx.Done():
		logger.Info("Start shutdown", slog.String("reason", ctx.Err().Error()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Gracefully shutdown the server
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Graceful shutdown failed", slog.String("err", err.Error()))
		if err := srv.Close(); err != nil {
			logger.Error("Forcing server close", slog.String("err", err.Error()))
		}
	}

	// Release the upstream connection of a response still in flight.
	ctrl.Abort()
	ctrl.Wait()

	return nil
}
