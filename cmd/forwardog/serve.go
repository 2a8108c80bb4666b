package main

import (
	"context"
	"errors"
	"flag"
	"net/http"

	"github.com/oicur0t/forwardog/internal/api"
	"github.com/oicur0t/forwardog/internal/present"
	"github.com/oicur0t/forwardog/pkg/mtls"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func runServe(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(a.out)
	listen := fs.String("listen", a.cfg.Serve.ListenAddress, "Address to listen on")
	if err := fs.Parse(args); err != nil {
		return err
	}

	serveCfg := a.cfg.Serve
	recorder := present.NewRecorder(a.cfg.Feed.MaxItems)
	handler := api.NewHandler(a.dispatcher(recorder), a.history, recorder, a.kv, a.client, a.theme, a.logger)

	requireClientCert := serveCfg.MTLS.Enabled && serveCfg.MTLS.ClientAuth == mtls.ClientAuthRequire
	httpServer := &http.Server{
		Addr:         *listen,
		Handler:      api.Chain(handler.Router(), a.logger, requireClientCert),
		ReadTimeout:  serveCfg.ReadTimeout,
		WriteTimeout: serveCfg.WriteTimeout,
	}

	// Load TLS configuration if mTLS is enabled
	if serveCfg.MTLS.Enabled {
		tlsConfig, err := mtls.LoadServerTLSConfig(
			serveCfg.MTLS.CACert,
			serveCfg.MTLS.ServerCert,
			serveCfg.MTLS.ServerKey,
			serveCfg.MTLS.ClientAuth,
		)
		if err != nil {
			return err
		}
		httpServer.TLSConfig = tlsConfig
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("HTTP server starting",
			zap.String("addr", *listen),
			zap.Bool("mtls", serveCfg.MTLS.Enabled))

		var err error
		if serveCfg.MTLS.Enabled {
			err = httpServer.ListenAndServeTLS("", "") // Certs loaded via TLSConfig
		} else {
			err = httpServer.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), serveCfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("Server shutdown error", zap.Error(err))
			httpServer.Close()
		}
		return nil
	})

	err := g.Wait()
	a.logger.Info("Server stopped")
	return err
}
