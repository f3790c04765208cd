package store

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/emersion/go-webdav"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
)

// splitCredentials removes userinfo from the endpoint URL. Credentials found
// there are returned so they can be sent as basic auth instead.
func splitCredentials(raw string) (endpoint, username, password string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", "", fmt.Errorf("invalid CalDAV URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", "", "", fmt.Errorf("CalDAV URL must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "", "", "", fmt.Errorf("CalDAV URL has no host")
	}
	if u.User != nil {
		username = u.User.Username()
		password, _ = u.User.Password()
		u.User = nil
	}
	return u.String(), username, password, nil
}

// newHTTPClient builds the authenticated client shared by all calls. Requests
// are traced through otelhttp; a bearer token takes precedence over basic auth.
func newHTTPClient(base *http.Client, username, password, token string) webdav.HTTPClient {
	if base == nil {
		base = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}

	if token != "" {
		return &http.Client{
			Transport: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
				Base:   base.Transport,
			},
			Timeout: base.Timeout,
		}
	}
	if username != "" {
		return webdav.HTTPClientWithBasicAuth(base, username, password)
	}
	return base
}
