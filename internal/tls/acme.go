package tls

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net/http"

	"golang.org/x/crypto/acme/autocert"
)

// ACMEManager obtains and renews certificates for the public link domains
// from Let's Encrypt
type ACMEManager struct {
	manager *autocert.Manager
	cache   autocert.DirCache
	domains []string
}

// NewACMEManager creates a new ACME manager
func NewACMEManager(email string, domains []string, cacheDir string) *ACMEManager {
	cache := autocert.DirCache(cacheDir)
	m := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		Email:      email,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      cache,
	}

	return &ACMEManager{
		manager: m,
		cache:   cache,
		domains: domains,
	}
}

// Domains returns the list of configured domains
func (a *ACMEManager) Domains() []string {
	return a.domains
}

// TLSConfig returns TLS configuration for use with servers
func (a *ACMEManager) TLSConfig() *tls.Config {
	cfg := a.manager.TLSConfig()
	cfg.MinVersion = tls.VersionTLS12
	return cfg
}

// HTTPHandler answers HTTP-01 challenges and passes other requests to fallback
func (a *ACMEManager) HTTPHandler(fallback http.Handler) http.Handler {
	return a.manager.HTTPHandler(fallback)
}

// CachedCertificates reads certificates from the cache without contacting
// Let's Encrypt. Domains without a cached certificate are skipped.
func (a *ACMEManager) CachedCertificates(ctx context.Context) []CertificateInfo {
	var results []CertificateInfo

	for _, domain := range a.domains {
		data, err := a.cache.Get(ctx, domain)
		if err != nil {
			continue
		}

		// autocert stores the private key and the chain in one PEM file
		pair, err := tls.X509KeyPair(data, data)
		if err != nil || len(pair.Certificate) == 0 {
			continue
		}

		leaf, err := x509.ParseCertificate(pair.Certificate[0])
		if err != nil {
			continue
		}
		results = append(results, newCertificateInfo(domain, leaf))
	}

	return results
}
