package gateway

import (
	"net/http"
	"time"

	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/eddits-console/internal/logger"
)

// DefaultTimeout bounds every outbound call.
const DefaultTimeout = 30 * time.Second

// CacheOptions controls HTTP caching of GET responses.
type CacheOptions struct {
	Enabled bool

	// Dir holds the disk cache. Empty uses an in-memory cache.
	Dir string
}

// NewHTTPClient creates the client used by the gateway. Requests are logged,
// optionally served from an RFC 7234 cache, and transparently decompressed.
func NewHTTPClient(timeout time.Duration, cache CacheOptions) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var transport http.RoundTripper = gzhttp.Transport(http.DefaultTransport)

	if cache.Enabled {
		transport = newCachingTransport(cache.Dir, transport)
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: logger.NewTransport(log.Logger, transport),
	}
}

func newCachingTransport(cacheDir string, next http.RoundTripper) http.RoundTripper {
	var cache httpcache.Cache
	if cacheDir == "" {
		cache = httpcache.NewMemoryCache()
	} else {
		// persists across invocations of the CLI
		cache = diskcache.New(cacheDir)
	}

	t := httpcache.NewTransport(cache)
	t.Transport = next
	return t
}
