package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"moltfarm/internal/netclient"
	"moltfarm/internal/proxypool"
	"moltfarm/internal/shared/types"
)

// apiKeyHeader carries the bot's credential on every platform call.
const apiKeyHeader = "X-API-Key"

// Gateway performs the platform-specific operations on top of the proxied
// HTTP client: claim-status check, post creation and answer verification.
// Transport failures are retried with proxy rotation; application-level
// error responses are returned as decoded results for the caller to branch
// on.
type Gateway struct {
	client *netclient.Client
	retry  netclient.RetryPolicy
	pool   *proxypool.Pool
	cfg    types.PlatformConf
}

func New(client *netclient.Client, retry netclient.RetryPolicy, pool *proxypool.Pool, cfg types.PlatformConf) *Gateway {
	return &Gateway{client: client, retry: retry, pool: pool, cfg: cfg}
}

func (g *Gateway) timeout() time.Duration {
	return time.Duration(g.cfg.RequestTimeoutSeconds) * time.Second
}

// do runs one platform request under the retry policy, rotating the proxy on
// every attempt.
func (g *Gateway) do(ctx context.Context, botIndex int, req netclient.Request) (*netclient.Response, error) {
	var resp *netclient.Response
	err := g.retry.Do(ctx, func(attempt int) error {
		req.Proxy = g.pool.ForAttempt(botIndex, attempt)
		r, err := g.client.Do(ctx, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// CheckStatus queries the bot's claim status.
func (g *Gateway) CheckStatus(ctx context.Context, bot *types.Bot, botIndex int) (*StatusResult, error) {
	resp, err := g.do(ctx, botIndex, netclient.Request{
		Method:          "GET",
		URL:             g.cfg.BaseURL + g.cfg.StatusPath,
		Headers:         map[string]string{apiKeyHeader: bot.APIKey},
		FollowRedirects: true,
		MaxRedirects:    g.cfg.MaxRedirects,
		Timeout:         g.timeout(),
	})
	if err != nil {
		return nil, err
	}

	var wire statusWire
	if err := json.Unmarshal(resp.Body, &wire); err != nil {
		return nil, fmt.Errorf("unparseable status response (http %d): %w", resp.StatusCode, err)
	}
	return &StatusResult{StatusCode: resp.StatusCode, Status: wire.Status}, nil
}

// CreatePost submits a post to the configured submolt and decodes every
// optional branch of the response (post info, verification demand, 429
// backoff, error).
func (g *Gateway) CreatePost(ctx context.Context, bot *types.Bot, botIndex int, title, content string) (*CreatePostResult, error) {
	resp, err := g.do(ctx, botIndex, netclient.Request{
		Method:  "POST",
		URL:     g.cfg.BaseURL + g.cfg.PostPath,
		Headers: map[string]string{apiKeyHeader: bot.APIKey},
		JSONBody: map[string]string{
			"submolt": g.cfg.Submolt,
			"title":   title,
			"content": content,
		},
		FollowRedirects: true,
		MaxRedirects:    g.cfg.MaxRedirects,
		Timeout:         g.timeout(),
	})
	if err != nil {
		return nil, err
	}

	result := &CreatePostResult{StatusCode: resp.StatusCode, RawBody: resp.Body}

	var wire createPostWire
	if err := json.Unmarshal(resp.Body, &wire); err != nil {
		// Non-JSON bodies are kept raw; the status code still drives the
		// scheduler's branching.
		return result, nil
	}

	result.Post = wire.Post
	result.VerificationRequired = wire.VerificationRequired
	result.RetryAfterSeconds = wire.RetryAfterSeconds
	result.RetryAfterMinutes = wire.RetryAfterMinutes
	result.Hint = wire.Hint
	result.NextMintInSeconds = wire.NextMintInSeconds
	result.Error = wire.Error

	if wire.Verification != nil {
		ch := &types.Challenge{
			Code: wire.Verification.Code,
			Text: wire.Verification.Challenge,
		}
		if t, err := time.Parse(time.RFC3339, wire.Verification.ExpiresAt); err == nil {
			ch.ExpiresAt = t
		}
		result.Verification = ch
	}
	return result, nil
}

// SubmitVerification sends a challenge answer back to the platform.
func (g *Gateway) SubmitVerification(ctx context.Context, bot *types.Bot, botIndex int, code, answer string) (*VerifyResult, error) {
	resp, err := g.do(ctx, botIndex, netclient.Request{
		Method:  "POST",
		URL:     g.cfg.BaseURL + g.cfg.VerifyPath,
		Headers: map[string]string{apiKeyHeader: bot.APIKey},
		JSONBody: map[string]string{
			"verification_code": code,
			"answer":            answer,
		},
		FollowRedirects: true,
		MaxRedirects:    g.cfg.MaxRedirects,
		Timeout:         g.timeout(),
	})
	if err != nil {
		return nil, err
	}

	var wire verifyWire
	if err := json.Unmarshal(resp.Body, &wire); err != nil {
		return nil, fmt.Errorf("unparseable verify response (http %d): %w", resp.StatusCode, err)
	}
	return &VerifyResult{
		StatusCode: resp.StatusCode,
		Success:    wire.Success,
		ContentID:  wire.ContentID,
		Error:      wire.Error,
	}, nil
}
