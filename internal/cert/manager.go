// Package cert loads the TLS certificate/key pair Portal uses for
// server-side TLS termination on the syslog listener.
package cert

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/ProjectMeniscus/portal/internal/logging"
)

// Manager holds the currently active server certificate and reloads it
// from disk when the underlying files change. Safe for concurrent use.
type Manager struct {
	logger *slog.Logger

	certFile, keyFile string
	cert              atomic.Pointer[tls.Certificate]

	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	watcherStop chan struct{}
}

// Config holds Manager configuration.
type Config struct {
	Logger *slog.Logger
}

// New creates an empty Manager. Call Load to populate it.
func New(cfg Config) *Manager {
	return &Manager{logger: logging.Default(cfg.Logger).With("component", "cert")}
}

// Load reads the certificate/key pair from certFile/keyFile and starts
// watching both paths for changes. Replacing Load on an already-loaded
// Manager stops the previous watch first.
func (m *Manager) Load(certFile, keyFile string) error {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return fmt.Errorf("load cert/key pair: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopWatcher()
	m.certFile, m.keyFile = certFile, keyFile
	m.cert.Store(&cert)
	m.startWatcher()
	return nil
}

// Close stops the file watcher, if any.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopWatcher()
}

// GetCertificate satisfies tls.Config.GetCertificate.
func (m *Manager) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	c := m.cert.Load()
	if c == nil {
		return nil, fmt.Errorf("cert: no certificate loaded")
	}
	return c, nil
}

// TLSConfig returns a server-side tls.Config backed by this Manager.
func (m *Manager) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: m.GetCertificate,
	}
}

// stopWatcher stops the file watcher. Caller must hold m.mu.
func (m *Manager) stopWatcher() {
	if m.watcherStop != nil {
		close(m.watcherStop)
		m.watcherStop = nil
	}
	if m.watcher != nil {
		m.watcher.Close()
		m.watcher = nil
	}
}

// startWatcher begins watching certFile/keyFile for changes. Caller must
// hold m.mu.
func (m *Manager) startWatcher() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		m.logger.Warn("fsnotify start failed", "error", err)
		return
	}
	if err := watcher.Add(m.certFile); err != nil {
		m.logger.Warn("watch cert file", "file", m.certFile, "error", err)
	}
	if err := watcher.Add(m.keyFile); err != nil {
		m.logger.Warn("watch key file", "file", m.keyFile, "error", err)
	}

	m.watcher = watcher
	m.watcherStop = make(chan struct{})
	stop := m.watcherStop

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-stop:
				return
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				m.logger.Warn("cert watcher error", "error", err)
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				m.reload()
			}
		}
	}()
}

// reload re-reads the certificate/key pair. Called from the watcher goroutine.
func (m *Manager) reload() {
	m.mu.Lock()
	certFile, keyFile := m.certFile, m.keyFile
	m.mu.Unlock()

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		m.logger.Warn("cert reload failed", "error", err)
		return
	}
	m.cert.Store(&cert)
	m.logger.Info("cert reloaded", "cert_file", certFile)
}
