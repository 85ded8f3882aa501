package proxypool

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"moltfarm/internal/shared/logger"
	"moltfarm/internal/shared/types"
)

// Pool is the ordered set of outbound proxy endpoints. An empty pool means
// every request goes out directly. The pool is stateless: assignment is
// re-derived from indices each tick, so it stays stable for a fixed list.
type Pool struct {
	endpoints []*types.ProxyEndpoint
}

// New parses proxy descriptor lines into a pool. Malformed lines are
// skipped with a warning rather than failing the whole list.
func New(lines []string) *Pool {
	l := logger.WithComponent("ProxyPool")
	p := &Pool{}
	for _, line := range lines {
		ep, err := Parse(line)
		if err != nil {
			l.Warn().Err(err).Str("proxy", line).Msg("Invalid proxy descriptor, skipping.")
			continue
		}
		p.endpoints = append(p.endpoints, ep)
	}
	return p
}

// Parse accepts bare "host:port", "host:port:user:pass", or a full URL
// (http://, https://, socks5://, with optional userinfo).
func Parse(line string) (*types.ProxyEndpoint, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, fmt.Errorf("empty proxy descriptor")
	}

	if strings.Contains(line, "://") {
		u, err := url.Parse(line)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		scheme := "http"
		switch u.Scheme {
		case "http", "https":
			scheme = "http"
		case "socks5", "socks5h":
			scheme = "socks5"
		default:
			return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
		}
		port, err := strconv.Atoi(u.Port())
		if err != nil {
			return nil, fmt.Errorf("invalid proxy port in %q", line)
		}
		ep := &types.ProxyEndpoint{Scheme: scheme, Host: u.Hostname(), Port: port}
		if u.User != nil {
			ep.Username = u.User.Username()
			ep.Password, _ = u.User.Password()
		}
		return ep, nil
	}

	parts := strings.Split(line, ":")
	switch len(parts) {
	case 2:
		port, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid proxy port in %q", line)
		}
		return &types.ProxyEndpoint{Scheme: "http", Host: parts[0], Port: port}, nil
	case 4:
		port, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid proxy port in %q", line)
		}
		return &types.ProxyEndpoint{
			Scheme:   "http",
			Host:     parts[0],
			Port:     port,
			Username: parts[2],
			Password: parts[3],
		}, nil
	default:
		return nil, fmt.Errorf("unrecognized proxy descriptor %q", line)
	}
}

// Add appends endpoints (e.g. scraped ones) to the pool.
func (p *Pool) Add(eps ...*types.ProxyEndpoint) {
	p.endpoints = append(p.endpoints, eps...)
}

func (p *Pool) Size() int {
	return len(p.endpoints)
}

// ForIndex returns the endpoint for a round-robin index, or nil when the
// pool is empty (direct connection).
func (p *Pool) ForIndex(i int) *types.ProxyEndpoint {
	if len(p.endpoints) == 0 {
		return nil
	}
	if i < 0 {
		i = -i
	}
	return p.endpoints[i%len(p.endpoints)]
}

// ForAttempt rotates to a different endpoint on every retry attempt for the
// same bot index.
func (p *Pool) ForAttempt(botIndex, attempt int) *types.ProxyEndpoint {
	return p.ForIndex(botIndex + attempt)
}
