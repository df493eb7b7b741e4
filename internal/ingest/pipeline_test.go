package ingest

import (
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/ProjectMeniscus/portal/internal/transport"
)

// recordingSender captures every record pushed to it instead of talking to
// a real broker, so Listener/Pipeline tests don't need a live Kafka.
type recordingSender struct {
	mu  sync.Mutex
	got [][]byte
}

func (s *recordingSender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, append([]byte(nil), data...))
	return nil
}

func (s *recordingSender) records() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.got...)
}

func TestListener_AcceptsAndParsesOneFrame(t *testing.T) {
	sender := &recordingSender{}
	l := NewListener(ListenerConfig{Addr: "127.0.0.1:0", Sender: sender})

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Run(stop)
	}()

	addr := waitForAddr(t, l)

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	payload := `<46>1 2013-04-02T14:12:04.873490-05:00 tohru rsyslogd - - - start`
	frame := itoaLen(len(payload)) + " " + payload
	if _, err := conn.Write([]byte(frame)); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for len(sender.records()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	recs := sender.records()
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	var rec map[string]any
	if err := json.Unmarshal(recs[0], &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec["hostname"] != "tohru" {
		t.Errorf("hostname = %v, want tohru", rec["hostname"])
	}

	close(stop)
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after stop signaled")
	}
}

func waitForAddr(t *testing.T, l *Listener) net.Addr {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if addr := l.Addr(); addr != nil {
			return addr
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("listener never bound")
	return nil
}

func itoaLen(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func TestPipeline_StartStopIdempotent(t *testing.T) {
	p := NewPipeline(PipelineConfig{
		SyslogAddr:      "127.0.0.1:0",
		TransportConfig: transport.Config{Brokers: []string{"127.0.0.1:9999"}},
	})

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	p.Stop()
	p.Stop()
}
