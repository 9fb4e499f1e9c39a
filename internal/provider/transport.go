package provider

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/rs/dnscache"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/upstream"
)

// NewTransport returns a tuned *http.Transport with connection pooling and
// optional DNS caching, shared by every adapter in the process.
func NewTransport(resolver *dnscache.Resolver) *http.Transport {
	t := &http.Transport{
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     200,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	if resolver != nil {
		t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := resolver.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(ips[0], port))
		}
	}
	return t
}

// NewHTTPClient assembles the http.Client for one adapter: the shared pooled
// transport wrapped in the auth decorator the configuration calls for.
// headerName/prefix describe how the provider expects its API key
// (e.g. "Authorization"/"Bearer " or "x-api-key"/"").
func NewHTTPClient(cfg *gateway.ProviderConfiguration, baseTransport http.RoundTripper, headerName, prefix string) *http.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var rt http.RoundTripper = baseTransport
	switch {
	case cfg.OAuthTokenURL != "":
		rt = upstream.NewClientCredentialsTransport(cfg.OAuthTokenURL, cfg.OAuthClientID, cfg.OAuthClientSecret, baseTransport)
	case cfg.APIKey != "":
		rt = &upstream.APIKeyTransport{
			Key:        cfg.APIKey,
			HeaderName: headerName,
			Prefix:     prefix,
			Base:       baseTransport,
		}
	}
	return &http.Client{Transport: rt, Timeout: timeout}
}
