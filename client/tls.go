package client

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/redoraai/redora-cli/config"
)

// LoadClientTLSConfig builds the transport TLS config. A client
// certificate is loaded only when one is configured; hosted endpoints
// accept server-side TLS with a bearer token. Returns nil when TLS is off.
func LoadClientTLSConfig(cfg *config.TLSConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	cfg.ResolvePaths()

	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.SkipVerify,
	}

	if cfg.UsesClientCert() {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if cfg.CACert != "" && !cfg.SkipVerify {
		pem, err := os.ReadFile(cfg.CACert)
		if err != nil {
			// A CertDir without ca.crt falls back to the system pool.
			if cfg.CertDir != "" && os.IsNotExist(err) {
				return tlsConfig, nil
			}
			return nil, fmt.Errorf("read CA cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("parse CA cert %s: invalid PEM", cfg.CACert)
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}

// CheckCertsExist reports the first configured certificate file that is
// missing, for a clear message before dialing.
func CheckCertsExist(cfg *config.TLSConfig) error {
	cfg.ResolvePaths()

	files := []struct {
		name string
		path string
	}{
		{"CA certificate", cfg.CACert},
	}
	if cfg.UsesClientCert() {
		files = append(files,
			struct{ name, path string }{"Client certificate", cfg.ClientCert},
			struct{ name, path string }{"Client key", cfg.ClientKey},
		)
	}

	for _, f := range files {
		if f.path == "" {
			continue
		}
		if _, err := os.Stat(f.path); os.IsNotExist(err) {
			return fmt.Errorf("%s not found: %s", f.name, f.path)
		}
	}
	return nil
}
