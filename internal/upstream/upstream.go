// Package upstream provides http.RoundTripper decorators that inject
// authentication for upstream provider accounts (static API keys or OAuth
// client credentials).
package upstream

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// APIKeyTransport is an http.RoundTripper that injects a static API key
// header on every outbound request. HeaderName is the header to set
// (e.g. "Authorization", "x-api-key"). Prefix is prepended to Key
// (e.g. "Bearer " for Authorization headers).
type APIKeyTransport struct {
	Key        string
	HeaderName string
	Prefix     string
	Base       http.RoundTripper
}

// RoundTrip clones the request and sets the auth header.
func (t *APIKeyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r2 := r.Clone(r.Context())
	r2.Header.Set(t.HeaderName, t.Prefix+t.Key)
	return base(t.Base).RoundTrip(r2)
}

// NewClientCredentialsTransport returns a RoundTripper that fetches and
// refreshes an OAuth2 token via the client-credentials grant and injects it
// as a Bearer header. Token caching and refresh are handled by the oauth2
// package; the supplied base transport carries the token requests too.
func NewClientCredentialsTransport(tokenURL, clientID, clientSecret string, baseTransport http.RoundTripper) http.RoundTripper {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}
	// The oauth2.HTTPClient context value makes the token fetch reuse the
	// pooled transport instead of http.DefaultClient.
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Transport: base(baseTransport)})
	return &tokenTransport{src: cfg, ctx: ctx, base: base(baseTransport)}
}

type tokenTransport struct {
	src  *clientcredentials.Config
	ctx  context.Context
	base http.RoundTripper
}

func (t *tokenTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	tok, err := t.src.Token(t.ctx)
	if err != nil {
		return nil, err
	}
	r2 := r.Clone(r.Context())
	tok.SetAuthHeader(r2)
	return t.base.RoundTrip(r2)
}

func base(rt http.RoundTripper) http.RoundTripper {
	if rt != nil {
		return rt
	}
	return http.DefaultTransport
}
