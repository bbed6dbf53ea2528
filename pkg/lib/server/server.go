package server

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/operator-framework/satfuzz/pkg/lib/filemonitor"
	"github.com/operator-framework/satfuzz/pkg/lib/profile"
)

const shutdownTimeout = 5 * time.Second

// Option applies a configuration option to the given config.
type Option func(s *serverConfig)

func WithLogger(logger logrus.FieldLogger) Option {
	return func(sc *serverConfig) {
		sc.logger = logger
	}
}

// WithTLS serves https with a key pair that is reloaded when its files
// change. Both paths must be set, or neither.
func WithTLS(crtPath, keyPath string) Option {
	return func(sc *serverConfig) {
		sc.tlsCrtPath = crtPath
		sc.tlsKeyPath = keyPath
	}
}

// WithProfiling exposes pprof endpoints under /debug/pprof/.
func WithProfiling(enabled bool) Option {
	return func(sc *serverConfig) {
		sc.profiling = enabled
	}
}

type serverConfig struct {
	logger     logrus.FieldLogger
	tlsCrtPath string
	tlsKeyPath string
	profiling  bool
}

func (sc *serverConfig) tlsEnabled() (bool, error) {
	if sc.tlsCrtPath != "" && sc.tlsKeyPath != "" {
		return true, nil
	}
	if sc.tlsCrtPath != "" || sc.tlsKeyPath != "" {
		return false, errors.New("both a TLS certificate and key must be provided for TLS to be enabled")
	}
	return false, nil
}

// Server exposes the fuzzer's health, metrics and, optionally, profiles.
type Server struct {
	config serverConfig
	addr   string
	tls    bool
	certs  *filemonitor.CertStore
	mux    *http.ServeMux
}

func New(addr string, options ...Option) (*Server, error) {
	sc := serverConfig{logger: logrus.StandardLogger()}
	for _, o := range options {
		o(&sc)
	}
	tlsEnabled, err := sc.tlsEnabled()
	if err != nil {
		return nil, err
	}

	s := &Server{config: sc, addr: addr, tls: tlsEnabled, mux: http.NewServeMux()}
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	s.mux.Handle("/metrics", promhttp.Handler())
	if sc.profiling {
		profile.RegisterHandlers(s.mux)
	}

	if tlsEnabled {
		if filepath.Dir(sc.tlsCrtPath) != filepath.Dir(sc.tlsKeyPath) {
			return nil, errors.Errorf("certificate and key are expected in the same directory, got %s and %s", sc.tlsCrtPath, sc.tlsKeyPath)
		}
		if s.certs, err = filemonitor.NewCertStore(sc.tlsCrtPath, sc.tlsKeyPath); err != nil {
			return nil, errors.Wrap(err, "certificate monitoring for metrics (https) failed")
		}
	}
	return s, nil
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", s.addr)
	}
	return s.Serve(ctx, l)
}

// Serve serves on l until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	hs := &http.Server{Handler: s.mux, ReadHeaderTimeout: shutdownTimeout}
	if s.tls {
		w, err := filemonitor.NewWatch(s.config.logger, []string{filepath.Dir(s.config.tlsCrtPath)}, s.certs.HandleFilesystemUpdate)
		if err != nil {
			l.Close()
			return errors.Wrap(err, "creating cert file watcher")
		}
		go w.Run(ctx)
		hs.TLSConfig = &tls.Config{
			GetCertificate: func(_ *tls.ClientHelloInfo) (*tls.Certificate, error) {
				return s.certs.GetCertificate(), nil
			},
			NextProtos: []string{"http/1.1"},
		}
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := hs.Shutdown(shutdownCtx); err != nil {
			s.config.logger.WithError(err).Warn("shutting down metrics server")
		}
	}()

	s.config.logger.WithField("tls", s.tls).Infof("serving metrics on %s", l.Addr())
	var err error
	if s.tls {
		err = hs.ServeTLS(l, "", "")
	} else {
		err = hs.Serve(l)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "serving metrics")
	}
	return nil
}
