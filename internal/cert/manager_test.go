package cert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func genCertAndKey(t *testing.T, certPath, keyPath string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test"},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	certDER, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyBytes, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes})
	if err := os.WriteFile(certPath, certPEM, 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0600); err != nil {
		t.Fatal(err)
	}
}

func TestManager_LoadAndGetCertificate(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")
	genCertAndKey(t, certPath, keyPath)

	mgr := New(Config{})
	if err := mgr.Load(certPath, keyPath); err != nil {
		t.Fatal(err)
	}

	got, err := mgr.GetCertificate(&tls.ClientHelloInfo{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Certificate) == 0 {
		t.Fatal("certificate has no chain")
	}
}

func TestManager_GetCertificate_NotLoaded(t *testing.T) {
	mgr := New(Config{})
	if _, err := mgr.GetCertificate(&tls.ClientHelloInfo{}); err == nil {
		t.Fatal("expected error when no certificate loaded")
	}
}

func TestManager_Load_BadPaths(t *testing.T) {
	mgr := New(Config{})
	if err := mgr.Load("/nonexistent/cert.pem", "/nonexistent/key.pem"); err == nil {
		t.Fatal("expected error for missing files")
	}
}

func TestManager_TLSConfig(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")
	genCertAndKey(t, certPath, keyPath)

	mgr := New(Config{})
	if err := mgr.Load(certPath, keyPath); err != nil {
		t.Fatal(err)
	}
	defer mgr.Close()

	tlsCfg := mgr.TLSConfig()
	if tlsCfg.MinVersion != tls.VersionTLS12 {
		t.Fatalf("expected TLS 1.2 minimum, got %x", tlsCfg.MinVersion)
	}
	if _, err := tlsCfg.GetCertificate(&tls.ClientHelloInfo{}); err != nil {
		t.Fatalf("GetCertificate: %v", err)
	}
}

func TestManager_Reload(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")
	genCertAndKey(t, certPath, keyPath)

	mgr := New(Config{})
	if err := mgr.Load(certPath, keyPath); err != nil {
		t.Fatal(err)
	}
	defer mgr.Close()

	first, err := mgr.GetCertificate(&tls.ClientHelloInfo{})
	if err != nil {
		t.Fatal(err)
	}

	// Loading again should replace the stored certificate and stop the
	// previous watcher without leaking goroutines.
	genCertAndKey(t, certPath, keyPath)
	if err := mgr.Load(certPath, keyPath); err != nil {
		t.Fatal(err)
	}
	second, err := mgr.GetCertificate(&tls.ClientHelloInfo{})
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatal("expected a new certificate pointer after reload")
	}
}
