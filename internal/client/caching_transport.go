package client

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// partitionHeader carries a digest of the caller's credential through the
// cache. Responses vary on it, so one tenant's cached CRM data is never
// served to another, and the bearer token itself is never written to the
// cache.
const partitionHeader = "X-Salesboard-Cache-Partition"

// Config holds outbound HTTP client configuration for calls to the CRM.
type Config struct {
	Timeout  time.Duration
	CacheDir string
	Tracing  bool
}

// DefaultConfig returns a default client configuration
func DefaultConfig() Config {
	return Config{
		Timeout: 30 * time.Second,
	}
}

// NewCachingHTTPClient creates an HTTP client that honours Cache-Control
// headers on CRM responses. Cached entries are partitioned per Authorization
// value and requests sent with Cache-Control: no-store bypass the cache.
func NewCachingHTTPClient(cfg Config) *http.Client {
	base := http.DefaultTransport
	if cfg.Tracing {
		base = otelhttp.NewTransport(base)
	}

	var cache httpcache.Cache
	if cfg.CacheDir == "" {
		cache = httpcache.NewMemoryCache()
	} else {
		// Use disk-based cache for persistence across restarts
		cache = diskcache.New(cfg.CacheDir)
	}

	transport := httpcache.NewTransport(cache)
	transport.Transport = &varyTransport{next: base}

	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: &partitionTransport{cached: transport, direct: base},
	}
}

// partitionTransport tags authenticated requests with their cache partition
// before they reach the cache.
type partitionTransport struct {
	cached http.RoundTripper
	direct http.RoundTripper
}

func (t *partitionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if strings.Contains(strings.ToLower(req.Header.Get("Cache-Control")), "no-store") {
		return t.direct.RoundTrip(req)
	}

	auth := req.Header.Get("Authorization")
	if auth == "" {
		return t.cached.RoundTrip(req)
	}

	sum := sha256.Sum256([]byte(auth))
	req = req.Clone(req.Context())
	req.Header.Set(partitionHeader, hex.EncodeToString(sum[:]))
	return t.cached.RoundTrip(req)
}

// varyTransport sits between the cache and the network. It strips the
// partition header from the outbound request and adds it to the response
// Vary list so the cache stores one entry per partition.
type varyTransport struct {
	next http.RoundTripper
}

func (t *varyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	partition := req.Header.Get(partitionHeader)
	if partition == "" {
		return t.next.RoundTrip(req)
	}

	req = req.Clone(req.Context())
	req.Header.Del(partitionHeader)

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	resp.Header.Add("Vary", partitionHeader)
	return resp, nil
}
