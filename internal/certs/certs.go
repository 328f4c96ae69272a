// Package certs generates a self-signed EC certificate for the dashboard's
// loopback HTTPS listener.
package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// validity is the lifetime of a generated certificate. LoadOrGenerate
// reuses a persisted pair across runs and regenerates only when a file is
// missing; an expired pair is not replaced.
const validity = 365 * 24 * time.Hour

// Pair is a generated certificate and its PEM encodings.
type Pair struct {
	CertPEM []byte
	KeyPEM  []byte
}

// Generate creates a self-signed EC (P-256, i.e. prime256v1) certificate
// valid for validity, with hosts (DNS names and/or IP addresses) as its
// Subject Alternative Names.
func Generate(hosts []string) (*Pair, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("certs: generating key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("certs: generating serial: %w", err)
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{Organization: []string{"ppg"}, CommonName: "ppg dashboard"},
		NotBefore:    now.Add(-5 * time.Minute),
		NotAfter:     now.Add(validity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IsCA:         true,
		BasicConstraintsValid: true,
	}

	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return nil, fmt.Errorf("certs: creating certificate: %w", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("certs: marshaling key: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	return &Pair{CertPEM: certPEM, KeyPEM: keyPEM}, nil
}

// WriteFiles writes the pair's PEM encodings to certPath and keyPath (key
// written with mode 0600, cert with 0644).
func (p *Pair) WriteFiles(certPath, keyPath string) error {
	if err := os.MkdirAll(filepath.Dir(certPath), 0755); err != nil {
		return fmt.Errorf("certs: creating cert dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(keyPath), 0755); err != nil {
		return fmt.Errorf("certs: creating key dir: %w", err)
	}
	if err := os.WriteFile(certPath, p.CertPEM, 0644); err != nil {
		return fmt.Errorf("certs: writing cert: %w", err)
	}
	if err := os.WriteFile(keyPath, p.KeyPEM, 0600); err != nil {
		return fmt.Errorf("certs: writing key: %w", err)
	}
	return nil
}

// TLSCertificate parses the pair into a tls.Certificate usable directly by
// an http.Server's TLSConfig.
func (p *Pair) TLSCertificate() (tls.Certificate, error) {
	return tls.X509KeyPair(p.CertPEM, p.KeyPEM)
}

// Fingerprint returns the certificate's SHA-256 fingerprint as colon-
// separated uppercase hex (e.g. "AB:CD:..."), the form a user compares
// against a browser's "view certificate" dialog when deciding whether to
// trust the self-signed cert on first connect.
func (p *Pair) Fingerprint() string {
	block, _ := pem.Decode(p.CertPEM)
	if block == nil {
		return ""
	}
	sum := sha256.Sum256(block.Bytes)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = strings.ToUpper(hex.EncodeToString([]byte{b}))
	}
	return strings.Join(parts, ":")
}

// LoadOrGenerate loads an existing cert/key pair at certPath/keyPath, or
// generates and persists a fresh one if either file is absent.
func LoadOrGenerate(certPath, keyPath string, hosts []string) (*Pair, error) {
	certBytes, certErr := os.ReadFile(certPath)
	keyBytes, keyErr := os.ReadFile(keyPath)
	if certErr == nil && keyErr == nil {
		return &Pair{CertPEM: certBytes, KeyPEM: keyBytes}, nil
	}

	pair, err := Generate(hosts)
	if err != nil {
		return nil, err
	}
	if err := pair.WriteFiles(certPath, keyPath); err != nil {
		return nil, err
	}
	return pair, nil
}
