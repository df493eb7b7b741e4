package ingest

import (
	"crypto/tls"
	"log/slog"
	"sync"

	"github.com/ProjectMeniscus/portal/internal/logging"
	"github.com/ProjectMeniscus/portal/internal/notify"
	"github.com/ProjectMeniscus/portal/internal/transport"
)

// Pipeline composes a Listener and a PushTransport, exposing a single
// Start/Stop lifecycle over both. Start binds the transport and begins
// accepting connections; Stop broadcasts via notify.Signal, waits for the
// accept loop and all in-flight connections to drain, then closes the
// transport. Both are idempotent.
type Pipeline struct {
	listener     *Listener
	transport    *transport.PushTransport
	transportCfg transport.Config
	logger       *slog.Logger

	stopSignal *notify.Signal
	runDone    chan struct{}
	started    bool

	startOnce sync.Once
	stopOnce  sync.Once
}

// PipelineConfig holds Pipeline construction parameters.
type PipelineConfig struct {
	SyslogAddr      string
	TLSConfig       *tls.Config // nil disables TLS on the syslog listener
	TransportConfig transport.Config
	Logger          *slog.Logger
}

// NewPipeline creates a Pipeline. Nothing is bound until Start is called.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	logger := logging.Default(cfg.Logger).With("component", "pipeline")
	tr := transport.New(logger)

	p := &Pipeline{
		transport:    tr,
		transportCfg: cfg.TransportConfig,
		logger:       logger,
		stopSignal:   notify.NewSignal(),
		runDone:      make(chan struct{}),
	}
	p.listener = NewListener(ListenerConfig{
		Addr:      cfg.SyslogAddr,
		TLSConfig: cfg.TLSConfig,
		Sender:    tr,
		Logger:    logger,
	})
	return p
}

// Start binds the transport and launches the accept loop in a background
// goroutine. A second call is a no-op.
func (p *Pipeline) Start() error {
	var startErr error
	p.startOnce.Do(func() {
		if err := p.transport.Bind(p.transportCfg); err != nil {
			startErr = err
			return
		}

		stop := p.stopSignal.C()
		p.started = true

		go func() {
			defer close(p.runDone)
			if err := p.listener.Run(stop); err != nil {
				p.logger.Error("listener exited with error", "error", err)
			}
		}()

		p.logger.Info("pipeline started")
	})
	return startErr
}

// Stop broadcasts the stop signal, waits for the accept loop and all
// in-flight connections to drain, then closes the transport. Idempotent;
// safe to call even if Start was never called or failed.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.stopSignal.Notify()
		if p.started {
			p.listener.Close()
			<-p.runDone
		}
		p.transport.Close()
		p.logger.Info("pipeline stopped")
	})
}
