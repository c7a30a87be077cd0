package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/dalemusser/signup/config"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme"
	"golang.org/x/crypto/acme/autocert"
)

// errInsecureKey marks a key file readable by group or others.
var errInsecureKey = errors.New("overly permissive permissions")

// tlsSetup is what the HTTPS mode needs besides the app handler.
type tlsSetup struct {
	mode   string
	config *tls.Config

	// httpHandler serves the plain HTTP port.
	httpHandler http.Handler

	warm func(context.Context) error
}

func tlsFor(cfg *config.CoreConfig, logger *zap.Logger) (tlsSetup, error) {
	if cfg.TLS.UseLetsEncrypt {
		return letsEncrypt(cfg), nil
	}
	return manualTLS(cfg, logger)
}

func letsEncrypt(cfg *config.CoreConfig) tlsSetup {
	m := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(cfg.TLS.Domain),
		Cache:      autocert.DirCache(cfg.TLS.LetsEncryptCacheDir),
		Email:      cfg.TLS.LetsEncryptEmail,
	}
	if cfg.TLS.ACMEDirectoryURL != "" {
		m.Client = &acme.Client{DirectoryURL: cfg.TLS.ACMEDirectoryURL}
	}
	return tlsSetup{
		mode:        "lets_encrypt",
		config:      &tls.Config{MinVersion: tls.VersionTLS12, GetCertificate: m.GetCertificate},
		httpHandler: m.HTTPHandler(httpRedirectHandler()),
		warm: func(ctx context.Context) error {
			return waitForCert(ctx, m, cfg.TLS.Domain, time.Minute)
		},
	}
}

// manualTLS loads the configured key pair. A world-readable key is fatal
// in prod and a warning elsewhere.
func manualTLS(cfg *config.CoreConfig, logger *zap.Logger) (tlsSetup, error) {
	if err := validateTLSFiles(cfg.TLS.CertFile, cfg.TLS.KeyFile); err != nil {
		if !errors.Is(err, errInsecureKey) || cfg.Env == "prod" {
			return tlsSetup{}, err
		}
		logger.Warn("TLS key file is readable by others", zap.Error(err))
	}
	cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
	if err != nil {
		return tlsSetup{}, fmt.Errorf("load TLS key pair: %w", err)
	}
	return tlsSetup{
		mode:        "manual",
		config:      &tls.Config{MinVersion: tls.VersionTLS12, Certificates: []tls.Certificate{cert}},
		httpHandler: httpRedirectHandler(),
	}, nil
}

// validateTLSFiles checks that certFile and keyFile are regular files. A
// key readable by group or others yields an error wrapping errInsecureKey.
func validateTLSFiles(certFile, keyFile string) error {
	if certFile == "" || keyFile == "" {
		return errors.New("manual TLS needs cert_file and key_file")
	}
	for _, f := range [...]struct{ kind, path string }{{"certificate", certFile}, {"key", keyFile}} {
		info, err := os.Stat(f.path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			return fmt.Errorf("TLS %s file %s does not exist", f.kind, f.path)
		case err != nil:
			return fmt.Errorf("TLS %s file %s: %w", f.kind, f.path, err)
		case info.IsDir():
			return fmt.Errorf("TLS %s path %s is a directory", f.kind, f.path)
		}
		// Permission bits mean nothing on Windows.
		if f.kind == "key" && runtime.GOOS != "windows" && info.Mode().Perm()&0o077 != 0 {
			return fmt.Errorf("TLS key file %s has %w %o, want 0600", f.path, errInsecureKey, info.Mode().Perm())
		}
	}
	return nil
}

// waitForCert polls autocert until it holds a certificate for host, the
// timeout passes or ctx ends.
func waitForCert(ctx context.Context, m *autocert.Manager, host string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		_, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: host})
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("no certificate for %q: %w", host, err)
		case <-tick.C:
		}
	}
}
