package client

import (
	"net/http"
	"time"
)

// Option configures a Client.
type Option func(*options)

type options struct {
	apiKey     string
	httpClient *http.Client
	headers    map[string]string
}

func defaultOptions() *options {
	return &options{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		headers:    make(map[string]string),
	}
}

// WithAPIKey sets the API key sent as a bearer token on every request.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithTimeout sets the HTTP client's request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if o.httpClient != nil {
			o.httpClient.Timeout = d
		}
	}
}

// WithHeader adds a custom header sent on every request.
func WithHeader(key, value string) Option {
	return func(o *options) { o.headers[key] = value }
}

func (o *options) applyHeaders(req *http.Request) {
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}
	for k, v := range o.headers {
		req.Header.Set(k, v)
	}
}
