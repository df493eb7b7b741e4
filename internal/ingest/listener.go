package ingest

import (
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/ProjectMeniscus/portal/internal/logging"
	"github.com/ProjectMeniscus/portal/internal/syslog"
)

// acceptPollInterval bounds how long Accept blocks before the loop rechecks
// the stop channel, the same periodic-deadline trick the teacher's RELP ingester uses to
// let an Accept-blocked goroutine observe cancellation.
const acceptPollInterval = time.Second

// Listener binds a TCP (optionally TLS-wrapped) socket and accepts
// connections until stopped, handing each accepted socket to a Connection
// bound to a freshly constructed Assembler over the shared transport.
type Listener struct {
	addr      string
	tlsConfig *tls.Config
	sender    syslog.Sender
	logger    *slog.Logger

	mu sync.Mutex
	ln net.Listener
}

// ListenerConfig holds Listener construction parameters.
type ListenerConfig struct {
	Addr      string
	TLSConfig *tls.Config // nil disables TLS
	Sender    syslog.Sender
	Logger    *slog.Logger
}

// NewListener creates a Listener. Bind does not occur until Run is called.
func NewListener(cfg ListenerConfig) *Listener {
	return &Listener{
		addr:      cfg.Addr,
		tlsConfig: cfg.TLSConfig,
		sender:    cfg.Sender,
		logger:    logging.Default(cfg.Logger).With("component", "listener"),
	}
}

// Addr returns the bound address. Only valid after Run has started
// listening.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Run binds the socket and accepts connections until stop is closed (or a
// notify.Signal's broadcast channel fires), draining all in-flight
// connection goroutines before returning.
func (l *Listener) Run(stop <-chan struct{}) error {
	tcpLn, err := net.Listen("tcp", l.addr)
	if err != nil {
		return err
	}

	// ln is what Accept is called on (TLS-wrapped if configured); deadliner
	// is always the raw TCP listener, since tls.Listener doesn't expose
	// SetDeadline and the accept-poll trick needs it regardless of TLS.
	var ln net.Listener = tcpLn
	deadliner := tcpLn.(*net.TCPListener)
	if l.tlsConfig != nil {
		ln = tls.NewListener(tcpLn, l.tlsConfig)
	}

	l.mu.Lock()
	l.ln = tcpLn
	l.mu.Unlock()

	l.logger.Info("listener started", "addr", ln.Addr().String(), "tls", l.tlsConfig != nil)

	var wg sync.WaitGroup
	defer func() {
		ln.Close()
		wg.Wait()
		l.logger.Info("listener stopped")
	}()

	for {
		select {
		case <-stop:
			return nil
		default:
		}

		deadliner.SetDeadline(time.Now().Add(acceptPollInterval))

		conn, err := ln.Accept()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			l.logger.Warn("accept error", "error", err)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			assembler := syslog.NewAssembler(l.sender, l.logger)
			NewConnection(conn, assembler, l.logger).Serve()
		}()
	}
}

// Close closes the listener socket, causing Run's accept loop to exit.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Close()
}
