// Package server runs the HTTP side of the process: plain HTTP, manual TLS
// or Let's Encrypt, with graceful shutdown when the context ends.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/dalemusser/signup/config"
	"github.com/dalemusser/signup/logging"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

// WithShutdownSignals returns a context canceled on SIGINT or SIGTERM.
func WithShutdownSignals(parent context.Context, logger *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sig)
		select {
		case s := <-sig:
			logging.OrNop(logger).Info("shutdown signal received", zap.Stringer("signal", s))
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// listener is one server bound to one socket.
type listener struct {
	name string
	srv  *http.Server
	ln   net.Listener
}

func (l listener) serve() error {
	if err := l.srv.Serve(l.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", l.name, err)
	}
	return nil
}

// ListenAndServeWithContext serves handler until ctx ends or a server
// fails, then shuts every server down within cfg.HTTP.ShutdownTimeout.
// With HTTPS on, a second server on the HTTP port redirects to HTTPS and
// answers ACME challenges.
func ListenAndServeWithContext(ctx context.Context, cfg *config.CoreConfig, handler http.Handler, logger *zap.Logger) error {
	switch {
	case cfg == nil:
		return errors.New("server: nil config")
	case handler == nil:
		return errors.New("server: nil handler")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	listeners, warm, err := bind(ctx, cfg, handler, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, l := range listeners {
		logger.Info("server listening", zap.String("server", l.name), zap.String("addr", l.ln.Addr().String()))
		g.Go(l.serve)
	}
	if warm != nil {
		// The challenge is answered by the redirect server, so this runs
		// once it is serving. Failure only delays the first handshakes.
		go func() {
			if err := warm(gctx); err != nil && gctx.Err() == nil {
				logger.Warn("certificate pre-warm failed", zap.Error(err))
			}
		}()
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		var errs []error
		for _, l := range listeners {
			if err := l.srv.Shutdown(sctx); err != nil {
				errs = append(errs, fmt.Errorf("%s shutdown: %w", l.name, err))
			}
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped gracefully")
	return nil
}

// bind opens the sockets for the configured mode. On error nothing is
// left listening. warm is non-nil when a certificate should be fetched
// ahead of the first handshake.
func bind(ctx context.Context, cfg *config.CoreConfig, handler http.Handler, logger *zap.Logger) (ls []listener, warm func(context.Context) error, err error) {
	httpAddr := ":" + strconv.Itoa(cfg.HTTP.HTTPPort)
	if !cfg.HTTP.UseHTTPS {
		ln, err := net.Listen("tcp", httpAddr)
		if err != nil {
			return nil, nil, fmt.Errorf("listen http %s: %w", httpAddr, err)
		}
		return []listener{{name: "http", srv: newHTTPServer(cfg, handler, logger), ln: ln}}, nil, nil
	}

	setup, err := tlsFor(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	httpsAddr := ":" + strconv.Itoa(cfg.HTTP.HTTPSPort)
	ln, err := net.Listen("tcp", httpsAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listen https %s: %w", httpsAddr, err)
	}
	redirectLn, err := net.Listen("tcp", httpAddr)
	if err != nil {
		_ = ln.Close()
		return nil, nil, fmt.Errorf("listen http %s: %w", httpAddr, err)
	}

	srv := newHTTPServer(cfg, handler, logger)
	srv.TLSConfig = setup.config
	logger.Info("TLS configured", zap.String("mode", setup.mode), zap.String("domain", cfg.TLS.Domain))
	return []listener{
		{name: "https", srv: srv, ln: tls.NewListener(ln, setup.config)},
		{name: "redirect", srv: newHTTPServer(cfg, setup.httpHandler, logger), ln: redirectLn},
	}, setup.warm, nil
}

func newHTTPServer(cfg *config.CoreConfig, h http.Handler, logger *zap.Logger) *http.Server {
	srv := &http.Server{
		Handler:           h,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}
	if stdlog, err := zap.NewStdLogAt(logger, zapcore.WarnLevel); err == nil {
		srv.ErrorLog = stdlog
	}
	return srv
}
