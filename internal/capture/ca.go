// File: internal/capture/ca.go
package capture

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/xkilldash9x/gauntlet-cli/internal/config"
)

// ephemeralCA generates a throwaway certificate authority for decrypting
// HTTPS traffic during a run. Browsers launched by the harness tolerate the
// untrusted issuer because they run with certificate errors ignored.
func ephemeralCA() (certPEM, keyPEM []byte, err error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate CA key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate CA serial: %w", err)
	}

	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"Gauntlet Capture CA"},
		},
		NotBefore: time.Now().Add(-time.Hour),
		// The CA only needs to outlive a single run.
		NotAfter: time.Now().Add(24 * time.Hour),

		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create CA certificate: %w", err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derBytes})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)})
	return certPEM, keyPEM, nil
}

// loadCA resolves the CA material for the recorder's proxy. Returning nil
// material disables decryption and leaves the proxy in tunneling mode.
func loadCA(cfg config.CaptureConfig) (certPEM, keyPEM []byte, err error) {
	if !cfg.MITM {
		return nil, nil, nil
	}

	if cfg.CACertFile == "" && cfg.CAKeyFile == "" {
		return ephemeralCA()
	}
	if cfg.CACertFile == "" || cfg.CAKeyFile == "" {
		return nil, nil, errors.New("capture.ca_cert_file and capture.ca_key_file must both be set")
	}

	certPEM, err = os.ReadFile(cfg.CACertFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}
	keyPEM, err = os.ReadFile(cfg.CAKeyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CA key: %w", err)
	}
	return certPEM, keyPEM, nil
}
