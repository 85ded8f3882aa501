package netclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	xproxy "golang.org/x/net/proxy"

	"moltfarm/internal/shared/types"
)

// Request describes one HTTP(S) exchange.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	// Cookie is the Cookie header value carried into the first hop.
	Cookie string
	// JSONBody is marshaled as JSON unless FormBody is set.
	JSONBody any
	FormBody url.Values

	Proxy *types.ProxyEndpoint

	FollowRedirects bool
	MaxRedirects    int
	Timeout         time.Duration
}

// Response is the outcome of a request after any redirect following.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	// JSON is the best-effort parsed body; nil when not parseable.
	JSON map[string]any
	// SetCookies accumulates Set-Cookie values across all hops.
	SetCookies []string
	Location   string
}

// Client performs HTTP requests with optional per-request proxying.
type Client struct {
	proxyPlainHTTP bool
}

func New(proxyPlainHTTP bool) *Client {
	return &Client{proxyPlainHTTP: proxyPlainHTTP}
}

// Do performs the request, following redirects manually when asked so that
// cookies can be merged between hops and 301/302/303 downgrade to GET.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	httpClient, err := c.buildHTTPClient(req)
	if err != nil {
		return nil, err
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	target := req.URL
	cookie := req.Cookie
	body, contentType, err := encodeBody(req)
	if err != nil {
		return nil, err
	}

	maxHops := 1
	if req.FollowRedirects {
		maxHops = req.MaxRedirects + 1
		if maxHops < 2 {
			maxHops = 2
		}
	}

	var allSetCookies []string
	started := time.Now()

	// The last allowed hop always returns its response, redirect or not.
	for hop := 0; ; hop++ {
		hreq, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("invalid request: %w", err)
		}
		for k, v := range req.Headers {
			hreq.Header.Set(k, v)
		}
		if contentType != "" && len(body) > 0 {
			hreq.Header.Set("Content-Type", contentType)
		}
		if cookie != "" {
			hreq.Header.Set("Cookie", cookie)
		}

		hresp, err := httpClient.Do(hreq)
		if err != nil {
			if isTimeout(err) || ctx.Err() == context.DeadlineExceeded {
				return nil, &TimeoutError{Elapsed: time.Since(started)}
			}
			return nil, err
		}

		raw, readErr := io.ReadAll(hresp.Body)
		hresp.Body.Close()
		if readErr != nil {
			if isTimeout(readErr) {
				return nil, &TimeoutError{Elapsed: time.Since(started)}
			}
			return nil, readErr
		}

		setCookies := hresp.Header.Values("Set-Cookie")
		allSetCookies = append(allSetCookies, setCookies...)
		location := hresp.Header.Get("Location")

		redirect := req.FollowRedirects && location != "" && isRedirect(hresp.StatusCode)
		if !redirect || hop >= maxHops-1 {
			resp := &Response{
				StatusCode: hresp.StatusCode,
				Headers:    hresp.Header,
				Body:       raw,
				SetCookies: allSetCookies,
				Location:   location,
			}
			var parsed map[string]any
			if json.Unmarshal(raw, &parsed) == nil {
				resp.JSON = parsed
			}
			return resp, nil
		}

		next, err := hreq.URL.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("bad redirect location %q: %w", location, err)
		}
		target = next.String()
		cookie = mergeCookies(cookie, setCookies)

		// 301/302/303 downgrade to GET and drop the body; 307/308 keep both.
		if hresp.StatusCode != http.StatusTemporaryRedirect && hresp.StatusCode != http.StatusPermanentRedirect {
			method = http.MethodGet
			body = nil
			contentType = ""
		}
	}
}

func (c *Client) buildHTTPClient(req Request) (*http.Client, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		IdleConnTimeout:       timeout,
		TLSHandshakeTimeout:   timeout / 2,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if p := req.Proxy; p != nil && c.shouldProxy(req.URL) {
		switch p.Scheme {
		case "socks5":
			var auth *xproxy.Auth
			if p.Username != "" {
				auth = &xproxy.Auth{User: p.Username, Password: p.Password}
			}
			socksDialer, err := xproxy.SOCKS5("tcp", fmt.Sprintf("%s:%d", p.Host, p.Port), auth, dialer)
			if err != nil {
				return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
			}
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				return socksDialer.(xproxy.ContextDialer).DialContext(ctx, network, addr)
			}
		default:
			proxyURL := &url.URL{
				Scheme: "http",
				Host:   fmt.Sprintf("%s:%d", p.Host, p.Port),
			}
			if p.Username != "" {
				proxyURL.User = url.UserPassword(p.Username, p.Password)
			}
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		// Redirects are handled by the hop loop in Do.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}, nil
}

// shouldProxy honors the proxy for plaintext targets only when configured.
func (c *Client) shouldProxy(target string) bool {
	if strings.HasPrefix(target, "http://") {
		return c.proxyPlainHTTP
	}
	return true
}

func encodeBody(req Request) ([]byte, string, error) {
	if req.FormBody != nil {
		return []byte(req.FormBody.Encode()), "application/x-www-form-urlencoded", nil
	}
	if req.JSONBody != nil {
		raw, err := json.Marshal(req.JSONBody)
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal request body: %w", err)
		}
		return raw, "application/json", nil
	}
	return nil, "", nil
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

// mergeCookies merges new Set-Cookie values into an existing Cookie header,
// later values overriding earlier ones by name.
func mergeCookies(existing string, setCookies []string) string {
	order := make([]string, 0)
	values := make(map[string]string)

	add := func(pair string) {
		pair = strings.TrimSpace(pair)
		eq := strings.Index(pair, "=")
		if eq <= 0 {
			return
		}
		name := pair[:eq]
		if _, seen := values[name]; !seen {
			order = append(order, name)
		}
		values[name] = pair[eq+1:]
	}

	for _, pair := range strings.Split(existing, ";") {
		add(pair)
	}
	for _, sc := range setCookies {
		// Only the name=value segment matters; attributes are dropped.
		if i := strings.Index(sc, ";"); i >= 0 {
			sc = sc[:i]
		}
		add(sc)
	}

	parts := make([]string, 0, len(order))
	for _, name := range order {
		parts = append(parts, name+"="+values[name])
	}
	return strings.Join(parts, "; ")
}
