package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/pem"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGenerateProducesValidP256Cert(t *testing.T) {
	pair, err := Generate([]string{"localhost", "127.0.0.1"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	block, _ := pem.Decode(pair.CertPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		t.Fatalf("cert PEM did not decode to a CERTIFICATE block")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}

	pub, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		t.Fatalf("public key type = %T, want *ecdsa.PublicKey", cert.PublicKey)
	}
	if pub.Curve != elliptic.P256() {
		t.Fatalf("curve = %v, want P256", pub.Curve)
	}

	if len(cert.DNSNames) != 1 || cert.DNSNames[0] != "localhost" {
		t.Errorf("DNSNames = %v, want [localhost]", cert.DNSNames)
	}
	wantIP := net.ParseIP("127.0.0.1")
	if len(cert.IPAddresses) != 1 || !cert.IPAddresses[0].Equal(wantIP) {
		t.Errorf("IPAddresses = %v, want [%v]", cert.IPAddresses, wantIP)
	}
}

func TestTLSCertificateRoundTrips(t *testing.T) {
	pair, err := Generate([]string{"localhost"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := pair.TLSCertificate(); err != nil {
		t.Fatalf("TLSCertificate: %v", err)
	}
}

func TestWriteFilesSetsKeyPermissions(t *testing.T) {
	dir := t.TempDir()
	pair, err := Generate([]string{"localhost"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")
	if err := pair.WriteFiles(certPath, keyPath); err != nil {
		t.Fatalf("WriteFiles: %v", err)
	}

	info, err := os.Stat(keyPath)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("key file mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestFingerprintIsStableAndFormatted(t *testing.T) {
	pair, err := Generate([]string{"localhost"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	fp := pair.Fingerprint()
	if fp == "" {
		t.Fatal("Fingerprint() returned empty string")
	}
	parts := strings.Split(fp, ":")
	if len(parts) != 32 {
		t.Fatalf("Fingerprint() = %q, want 32 colon-separated hex bytes", fp)
	}
	for _, p := range parts {
		if len(p) != 2 {
			t.Fatalf("Fingerprint() byte %q is not 2 hex chars", p)
		}
	}

	if fp != pair.Fingerprint() {
		t.Error("Fingerprint() is not stable across calls on the same pair")
	}

	other, err := Generate([]string{"localhost"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if fp == other.Fingerprint() {
		t.Error("two independently generated certs produced the same fingerprint")
	}
}

func TestLoadOrGenerateGeneratesThenReuses(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")

	first, err := LoadOrGenerate(certPath, keyPath, []string{"localhost"})
	if err != nil {
		t.Fatalf("LoadOrGenerate (first): %v", err)
	}

	second, err := LoadOrGenerate(certPath, keyPath, []string{"localhost"})
	if err != nil {
		t.Fatalf("LoadOrGenerate (second): %v", err)
	}

	if string(first.CertPEM) != string(second.CertPEM) {
		t.Errorf("LoadOrGenerate regenerated instead of reusing the persisted cert")
	}
}
