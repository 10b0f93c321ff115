// Package proxy implements the streaming reverse proxy shared by the inway
// and outway data planes: URL composition, hop-by-hop header stripping, and
// HTTP/2 GOAWAY(NO_ERROR) retry.
//
// Grounded on original_source/src/reverse_proxy.rs and
// original_source/src/inway/reverse_proxy.rs for the header-copy /
// URL-composition shape, and on the hop-header table layout used by
// other_examples' caddyserver-caddy reverseproxy.go.
package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/http2"
)

// MaxRetries is the maximum number of attempts (including the first) made
// against the upstream when the prior attempt failed with a remote
// HTTP/2 GOAWAY(NO_ERROR).
const MaxRetries = 3

// hopHeaders is the set of headers that must never be forwarded by a
// proxy, per RFC 7230 §6.1. Comparisons are case-insensitive; Go's
// http.Header canonicalizes keys, so canonical form is used here.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailers",
	"Transfer-Encoding",
	"Upgrade",
}

func removeHopHeaders(h http.Header) {
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

// copyHeaders copies every header from src into a fresh http.Header with
// hop-by-hop headers (and Host) removed.
func copyHeaders(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for k, vs := range src {
		dst[k] = append([]string(nil), vs...)
	}
	removeHopHeaders(dst)
	dst.Del("Host")
	return dst
}

// WriteHeaders copies every header from src into dst, as used when relaying
// an upstream response's (already hop-stripped) headers onto the client
// connection's http.ResponseWriter.
func WriteHeaders(dst, src http.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

// Request is a prepared, retry-safe proxy request: method, target URL,
// headers, and body are all fixed before the retry loop starts, matching
// spec.md §4.4 ("the URI, header map, method, and body bytes are prepared
// once outside the retry loop").
type Request struct {
	Method  string
	URL     *url.URL
	Headers http.Header
	Body    []byte
}

// ComposeInwayURL builds the upstream target for an inway proxy request:
// upstream + pathTail (with a single "/" at the join when upstream ends in
// "/" and pathTail starts with one), with "?" + rawQuery appended when
// rawQuery is non-empty.
func ComposeInwayURL(upstream, pathTail, rawQuery string) (*url.URL, error) {
	return composeURL(upstream, pathTail, rawQuery)
}

// ComposeOutwayURL builds the upstream target for an outway proxy request:
// the selected inway's address, joined with the service name and the
// remaining path tail, with the original query string appended.
func ComposeOutwayURL(inwayAddress, serviceName, pathTail, rawQuery string) (*url.URL, error) {
	base := strings.TrimSuffix(inwayAddress, "/") + "/" + strings.TrimPrefix(serviceName, "/")
	return composeURL(base, pathTail, rawQuery)
}

func composeURL(upstream, pathTail, rawQuery string) (*url.URL, error) {
	if strings.HasSuffix(upstream, "/") && strings.HasPrefix(pathTail, "/") {
		pathTail = pathTail[1:]
	}
	raw := upstream + pathTail
	if rawQuery != "" {
		raw += "?" + rawQuery
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("proxy: parse upstream url %q: %w", raw, err)
	}
	return u, nil
}

// NewRequest prepares a Request from an incoming request's parts. body may
// be nil for bodyless methods. The returned Request's Headers are already
// stripped of hop-by-hop headers and Host.
func NewRequest(method string, target *url.URL, headers http.Header, body io.Reader) (*Request, error) {
	var buf []byte
	if body != nil {
		var err error
		buf, err = io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("proxy: read request body: %w", err)
		}
	}
	return &Request{
		Method:  method,
		URL:     target,
		Headers: copyHeaders(headers),
		Body:    buf,
	}, nil
}

// Proxy forwards prepared requests to their upstream target using an
// injected *http.Client, retrying on a remote HTTP/2 GOAWAY(NO_ERROR).
type Proxy struct {
	Client *http.Client
	// OnRetry, if set, is invoked once per retried attempt (for metrics).
	OnRetry func()
}

// New creates a Proxy backed by client. client's Transport should have
// HTTP/2 enabled (the default for *http.Transport against https upstreams)
// so that GOAWAY errors can be observed and retried.
func New(client *http.Client) *Proxy {
	return &Proxy{Client: client}
}

// Do issues req against the upstream, retrying up to MaxRetries total
// attempts when the previous attempt failed because the peer sent an
// HTTP/2 GOAWAY frame with error code NO_ERROR. Any other error is
// returned immediately, unretried. The caller owns closing the returned
// response's body.
func (p *Proxy) Do(ctx context.Context, req *Request) (*http.Response, error) {
	var lastErr error

	for attempt := 1; attempt <= MaxRetries; attempt++ {
		httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), bytes.NewReader(req.Body))
		if err != nil {
			return nil, fmt.Errorf("proxy: build upstream request: %w", err)
		}
		httpReq.Header = req.Headers.Clone()

		resp, err := p.Client.Do(httpReq)
		if err == nil {
			removeHopHeaders(resp.Header)
			return resp, nil
		}

		lastErr = err
		if !isRemoteGoAwayNoError(err) {
			return nil, fmt.Errorf("proxy: upstream request failed: %w", err)
		}
		if attempt < MaxRetries && p.OnRetry != nil {
			p.OnRetry()
		}
		// Retry: the prepared URL/headers/body are untouched, only a new
		// http.Request wrapper is built for the next attempt.
	}

	return nil, fmt.Errorf("proxy: exhausted %d attempts after repeated GOAWAY: %w", MaxRetries, lastErr)
}

// isRemoteGoAwayNoError reports whether err's chain contains an HTTP/2
// GoAwayError with ErrCode == NO_ERROR. Every http2.GoAwayError surfaced
// to an HTTP client represents a frame received from the peer, so "remote"
// holds by construction here.
func isRemoteGoAwayNoError(err error) bool {
	var goAway http2.GoAwayError
	if errors.As(err, &goAway) {
		return goAway.ErrCode == http2.ErrCodeNo
	}
	return false
}
