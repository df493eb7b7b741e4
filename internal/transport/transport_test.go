package transport

import "testing"

func TestPushTransport_SendBeforeBindFailsNotBound(t *testing.T) {
	tr := New(nil)
	err := tr.Send([]byte(`{}`))
	if err == nil {
		t.Fatal("expected error")
	}
	te, ok := err.(*Error)
	if !ok || te.Kind != ErrNotBound {
		t.Errorf("err = %v, want ErrNotBound", err)
	}
}

func TestPushTransport_Bind(t *testing.T) {
	tr := New(nil)
	if err := tr.Bind(Config{Brokers: []string{"127.0.0.1:9092"}}); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer tr.Close()

	if !tr.bound {
		t.Error("expected bound=true after Bind")
	}
}

func TestPushTransport_BindIsIdempotent(t *testing.T) {
	tr := New(nil)
	if err := tr.Bind(Config{Brokers: []string{"127.0.0.1:9092"}}); err != nil {
		t.Fatalf("first Bind: %v", err)
	}
	first := tr.client
	if err := tr.Bind(Config{Brokers: []string{"127.0.0.1:9093"}}); err != nil {
		t.Fatalf("second Bind: %v", err)
	}
	defer tr.Close()

	if tr.client != first {
		t.Error("expected second Bind to be a no-op, client was replaced")
	}
}

func TestPushTransport_SendAfterCloseFailsNotBound(t *testing.T) {
	tr := New(nil)
	if err := tr.Bind(Config{Brokers: []string{"127.0.0.1:9092"}}); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	err := tr.Send([]byte(`{}`))
	if err == nil {
		t.Fatal("expected error")
	}
	te, ok := err.(*Error)
	if !ok || te.Kind != ErrNotBound {
		t.Errorf("err = %v, want ErrNotBound", err)
	}
}

func TestPushTransport_CloseIsIdempotent(t *testing.T) {
	tr := New(nil)
	if err := tr.Bind(Config{Brokers: []string{"127.0.0.1:9092"}}); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
