package filemonitor

import (
	"crypto/tls"
	"crypto/x509"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// CertStore holds a TLS key pair that is reloaded from disk whenever
// the files change.
type CertStore struct {
	mu      sync.RWMutex
	cert    *tls.Certificate
	crtPath string
	keyPath string
}

func NewCertStore(crtPath, keyPath string) (*CertStore, error) {
	s := &CertStore{crtPath: crtPath, keyPath: keyPath}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *CertStore) load() error {
	cert, err := tls.LoadX509KeyPair(s.crtPath, s.keyPath)
	if err != nil {
		return errors.Wrap(err, "loading key pair")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cert = &cert
	return nil
}

// HandleFilesystemUpdate is an UpdateFunc for the directory holding the
// key pair. A failed reload keeps the previous pair; the certificate and
// key are often replaced one after the other.
func (s *CertStore) HandleFilesystemUpdate(logger logrus.FieldLogger, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return
	}
	if err := s.load(); err != nil {
		logger.Debugf("certificates not in sync: %v", err)
		return
	}
	info, err := x509.ParseCertificate(s.GetCertificate().Certificate[0])
	if err != nil {
		logger.Debugf("certificates refreshed, but parsing returned error: %v", err)
		return
	}
	logger.Debugf("certificates refreshed: Subject=%v NotAfter=%v", info.Subject, info.NotAfter)
}

func (s *CertStore) GetCertificate() *tls.Certificate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cert
}
