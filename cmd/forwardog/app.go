package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"

	"github.com/oicur0t/forwardog/internal/backend"
	"github.com/oicur0t/forwardog/internal/config"
	"github.com/oicur0t/forwardog/internal/dispatch"
	"github.com/oicur0t/forwardog/internal/history"
	"github.com/oicur0t/forwardog/internal/monitoring"
	"github.com/oicur0t/forwardog/internal/prefs"
	"github.com/oicur0t/forwardog/internal/present"
	"github.com/oicur0t/forwardog/internal/storage"
	"github.com/oicur0t/forwardog/pkg/mtls"
	"go.uber.org/zap"
)

// app holds the components shared by every subcommand
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	in      io.Reader
	out     io.Writer
	verbose bool

	kv              storage.KV
	history         *history.Store
	client          *backend.Client
	theme           prefs.Theme
	shutdownTracing func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, in io.Reader, out io.Writer, verbose bool) (*app, error) {
	kv, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	hist := history.NewStore(kv,
		history.WithMaxItems(cfg.History.MaxItems),
		history.WithLogger(logger))
	hist.Load(ctx)

	var tlsConfig *tls.Config
	if cfg.MTLS.Enabled {
		tlsConfig, err = mtls.LoadClientTLSConfig(
			cfg.MTLS.CACert,
			cfg.MTLS.ClientCert,
			cfg.MTLS.ClientKey,
			cfg.MTLS.ServerName,
		)
		if err != nil {
			kv.Close(ctx)
			return nil, fmt.Errorf("failed to load mTLS config: %w", err)
		}
	}

	shutdownTracing, err := monitoring.InitTracing(ctx, cfg.Tracing, version)
	if err != nil {
		kv.Close(ctx)
		return nil, err
	}

	return &app{
		cfg:             cfg,
		logger:          logger,
		in:              in,
		out:             out,
		verbose:         verbose,
		kv:              kv,
		history:         hist,
		client:          backend.NewClient(cfg.Backend.URL, cfg.Backend.APIKey, tlsConfig, cfg.Backend.Timeout, logger),
		theme:           prefs.LoadTheme(ctx, kv, prefs.Theme(cfg.Theme), logger),
		shutdownTracing: shutdownTracing,
	}, nil
}

// terminal returns a surface that prints to the app's output
func (a *app) terminal() *present.Terminal {
	return present.NewTerminal(a.out, a.theme, a.cfg.Feed.MaxItems, a.verbose)
}

func (a *app) terminalPalette() present.Palette {
	return present.PaletteFor(a.theme)
}

func (a *app) dispatcher(surface dispatch.Surface) *dispatch.Dispatcher {
	return dispatch.New(a.client, a.history,
		dispatch.WithSurface(surface),
		dispatch.WithLogger(a.logger))
}

// Close flushes traces and closes storage
func (a *app) Close(ctx context.Context) {
	if err := a.shutdownTracing(ctx); err != nil {
		a.logger.Warn("Failed to flush traces", zap.Error(err))
	}
	if err := a.kv.Close(ctx); err != nil {
		a.logger.Warn("Failed to close storage", zap.Error(err))
	}
}
