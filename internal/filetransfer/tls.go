package filetransfer

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"github.com/thin-edge/tedge-core/internal/tedgeerr"
)

// TLSOptions configures the file-transfer server's TLS listener.
type TLSOptions struct {
	CertFile string
	KeyFile  string

	// CADir, if set, is a directory of PEM-encoded CA certificates
	// trusted to sign client certificates. Its presence turns on
	// mutual TLS; its absence leaves the server open to any client.
	CADir string
}

// BuildTLSConfig constructs the server's tls.Config once at startup
// from opts, so every accepted connection reuses the same parsed
// certificate chain, private key, and (if configured) client CA pool
// instead of re-parsing PEM material per connection.
func BuildTLSConfig(opts TLSOptions) (*tls.Config, error) {
	cert, err := loadKeyPair(opts.CertFile, opts.KeyFile)
	if err != nil {
		return nil, err
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if opts.CADir == "" {
		return cfg, nil
	}

	pool, err := loadCAPool(opts.CADir)
	if err != nil {
		return nil, err
	}
	cfg.ClientCAs = pool
	cfg.ClientAuth = tls.RequireAndVerifyClientCert
	return cfg, nil
}

func loadKeyPair(certFile, keyFile string) (tls.Certificate, error) {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return tls.Certificate{}, &tedgeerr.ConfigError{Path: certFile, Reason: err.Error()}
	}
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return tls.Certificate{}, &tedgeerr.ConfigError{Path: keyFile, Reason: err.Error()}
	}

	var certDER [][]byte
	rest := certPEM
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			certDER = append(certDER, block.Bytes)
		}
	}
	if len(certDER) == 0 {
		return tls.Certificate{}, &tedgeerr.ConfigError{Path: certFile, Reason: "no CERTIFICATE PEM block found"}
	}

	key, err := parsePrivateKey(keyPEM)
	if err != nil {
		return tls.Certificate{}, &tedgeerr.ConfigError{Path: keyFile, Reason: err.Error()}
	}

	return tls.Certificate{Certificate: certDER, PrivateKey: key}, nil
}

// parsePrivateKey accepts PKCS#8, PKCS#1 (RSA), and SEC1 (EC) PEM
// private keys, giving a precise error naming the PEM block type when
// it is none of those.
func parsePrivateKey(pemBytes []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in private key file")
	}

	switch block.Type {
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing PKCS#8 private key: %w", err)
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("PKCS#8 key type %T is not a signing key", key)
		}
		return signer, nil
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing PKCS#1 RSA private key: %w", err)
		}
		return key, nil
	case "EC PRIVATE KEY":
		key, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing SEC1 EC private key: %w", err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("unexpected PEM block type %q for private key", block.Type)
	}
}

func loadCAPool(dir string) (*x509.CertPool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &tedgeerr.ConfigError{Path: dir, Reason: err.Error()}
	}

	pool := x509.NewCertPool()
	loaded := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &tedgeerr.ConfigError{Path: path, Reason: err.Error()}
		}
		if pool.AppendCertsFromPEM(data) {
			loaded++
		}
	}
	if loaded == 0 {
		return nil, &tedgeerr.ConfigError{Path: dir, Reason: "no trusted CA certificates found"}
	}
	return pool, nil
}
