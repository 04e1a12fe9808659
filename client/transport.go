package client

import (
	"net/http"
)

// APIKeyHeader carries the app's API key on every backend request
const APIKeyHeader = "X-API-Key"

// apiKeyTransport adds the API key to requests for the backend's host. Requests
// to any other host, such as a redirect target, go out without it.
type apiKeyTransport struct {
	Base   http.RoundTripper
	APIKey string
	Host   string
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	if t.APIKey == "" || req.URL.Host != t.Host {
		if req.Header.Get(APIKeyHeader) == "" {
			return base.RoundTrip(req)
		}
		req = req.Clone(req.Context())
		req.Header.Del(APIKeyHeader)
		return base.RoundTrip(req)
	}

	req = req.Clone(req.Context())
	req.Header.Set(APIKeyHeader, t.APIKey)
	return base.RoundTrip(req)
}
