// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/quillmark/quill/internal/auth"
	"github.com/quillmark/quill/internal/blob"
	"github.com/quillmark/quill/internal/channel"
	"github.com/quillmark/quill/internal/engine"
	"github.com/quillmark/quill/internal/model"
	"github.com/quillmark/quill/internal/netmon"
	"github.com/quillmark/quill/internal/remote"
	"github.com/quillmark/quill/internal/store"
)

// superviseChannel ties the channel's lifecycle to connectivity transitions.
// The channel does not reconnect on its own: going online re-dials and starts
// a resync, going offline tears the connection down so sends fail fast. A
// dropped websocket forces the monitor offline even while HTTP probes stay
// green, so the next successful probe re-triggers connect and resync.
//
// Subscribe callbacks run on the monitor's polling goroutine, so the dial and
// resync send are detached.
func superviseChannel(ctx context.Context, monitor *netmon.Monitor, ch *channel.Channel,
	userID string, resync func(context.Context) error, logger *slog.Logger) {
	ch.SetOnDisconnect(func(error) {
		monitor.SetOnline(false)
	})
	monitor.Subscribe(func(online bool) {
		if !online {
			_ = ch.Close()
			return
		}
		go func() {
			if err := ch.Connect(ctx, userID); err != nil {
				logger.Warn("channel connect failed", slog.String("error", err.Error()))
				return
			}
			if err := resync(ctx); err != nil {
				logger.Warn("resync failed to start", slog.String("error", err.Error()))
			}
		}()
	})
}

// Run starts the sync agent with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config
	if cfg.Sync.UserID == "" {
		return fmt.Errorf("sync.user_id is required")
	}

	logger := app.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
		slog.SetDefault(logger)
	}

	logger.Info("Configuration loaded",
		slog.String("hub_base_url", cfg.Hub.BaseURL),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("blob_path", cfg.Blob.Path),
		slog.String("user_id", cfg.Sync.UserID),
		slog.String("merge_strategy", string(cfg.Sync.MergeStrategy)),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Initialize local store.
	st, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer st.Close()
	st.SetLogger(logger)

	// Initialize PDF blob store.
	blobs, err := blob.NewFS(cfg.Blob.Path)
	if err != nil {
		return fmt.Errorf("init blob store: %w", err)
	}

	// Remote gateway and realtime channel to the hub.
	gateway := remote.NewClient(cfg.Hub.BaseURL, cfg.Hub.RequestTimeout())

	// Connectivity monitor probing the hub's liveness endpoint.
	monitor := netmon.New(netmon.HTTPProbe(cfg.Hub.BaseURL), cfg.Sync.ProbeInterval(), logger)

	// The channel delivers frames to the engine and the engine sends through
	// the channel; the closure breaks the construction cycle. Frames only
	// arrive after Connect, well past engine construction.
	var eng *engine.Engine
	ch := channel.New(cfg.Hub.WSURL, func(header model.MessageHeader, raw []byte) {
		eng.HandleFrame(header, raw)
	}, logger)
	defer ch.Close()

	eng, err = engine.New(engine.Options{
		Store:         st,
		Remote:        gateway,
		Sender:        ch,
		Connectivity:  monitor,
		Identity:      &auth.Static{UserID: cfg.Sync.UserID},
		Blobs:         blobs,
		MergeStrategy: cfg.Sync.MergeStrategy,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)

	superviseChannel(gCtx, monitor, ch, cfg.Sync.UserID, eng.StartResync, logger)

	// Start connectivity probing.
	g.Go(func() error {
		return monitor.Run(gCtx)
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		_ = ch.Close()
		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Agent stopped successfully")
	return nil
}
