package platform

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"moltfarm/internal/netclient"
	"moltfarm/internal/proxypool"
	"moltfarm/internal/shared/types"
)

func newTestGateway(baseURL string) *Gateway {
	return New(
		netclient.New(true),
		netclient.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond},
		proxypool.New(nil),
		types.PlatformConf{
			BaseURL:               baseURL,
			Submolt:               "crypto",
			StatusPath:            "/api/v1/agents/status",
			PostPath:              "/api/v1/posts",
			VerifyPath:            "/api/v1/verify",
			RequestTimeoutSeconds: 5,
			MaxRedirects:          5,
		},
	)
}

var testBot = &types.Bot{Name: "alpha", APIKey: "key-alpha"}

func TestCheckStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/agents/status" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("X-API-Key"); got != "key-alpha" {
			t.Errorf("X-API-Key = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "claimed"})
	}))
	defer srv.Close()

	res, err := newTestGateway(srv.URL).CheckStatus(context.Background(), testBot, 0)
	if err != nil {
		t.Fatalf("CheckStatus() returned an error: %v", err)
	}
	if !res.Claimed() {
		t.Errorf("Claimed() = false for status %q", res.Status)
	}
}

func TestCreatePostDecodesSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req map[string]string
		json.Unmarshal(body, &req)
		if req["submolt"] != "crypto" || !strings.HasPrefix(req["title"], "mint") {
			t.Errorf("unexpected post request %v", req)
		}

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{
			"post": {"id": "p42", "url": "https://moltbook.test/p/p42"},
			"verification_required": true,
			"verification": {"code": "ch-1", "challenge": "ten plus ten", "expires_at": "2026-03-14T12:05:00Z"},
			"next_mint_in_seconds": 120
		}`))
	}))
	defer srv.Close()

	res, err := newTestGateway(srv.URL).CreatePost(context.Background(), testBot, 0, "mint MOLT 100 [abc]", `{"p":"molt-20"}`)
	if err != nil {
		t.Fatalf("CreatePost() returned an error: %v", err)
	}
	if !res.OK() {
		t.Errorf("OK() = false for status %d", res.StatusCode)
	}
	if res.Post == nil || res.Post.ID != "p42" {
		t.Errorf("Post = %+v, want id p42", res.Post)
	}
	if !res.VerificationRequired || res.Verification == nil {
		t.Fatalf("verification not decoded: %+v", res)
	}
	if res.Verification.Code != "ch-1" || res.Verification.Text != "ten plus ten" {
		t.Errorf("Verification = %+v", res.Verification)
	}
	wantExpiry := time.Date(2026, 3, 14, 12, 5, 0, 0, time.UTC)
	if !res.Verification.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("ExpiresAt = %v, want %v", res.Verification.ExpiresAt, wantExpiry)
	}
	if res.NextMintInSeconds == nil || *res.NextMintInSeconds != 120 {
		t.Errorf("NextMintInSeconds = %v, want 120", res.NextMintInSeconds)
	}
}

func TestCreatePostDecodesRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"retry_after_minutes": 5, "hint": "slow down", "error": "rate limited"}`))
	}))
	defer srv.Close()

	res, err := newTestGateway(srv.URL).CreatePost(context.Background(), testBot, 0, "t", "c")
	if err != nil {
		t.Fatalf("CreatePost() returned an error: %v", err)
	}
	if res.OK() {
		t.Error("OK() = true for a 429")
	}
	if res.RetryAfterMinutes == nil || *res.RetryAfterMinutes != 5 {
		t.Errorf("RetryAfterMinutes = %v, want 5", res.RetryAfterMinutes)
	}
	if res.RetryAfterSeconds != nil {
		t.Errorf("RetryAfterSeconds = %v, want nil when absent", res.RetryAfterSeconds)
	}
	if res.Hint != "slow down" {
		t.Errorf("Hint = %q", res.Hint)
	}
	if got := res.RetryDelay(); got != 5*time.Minute {
		t.Errorf("RetryDelay() = %v, want 5m", got)
	}
}

func TestCreatePostKeepsNonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>upstream error</html>"))
	}))
	defer srv.Close()

	res, err := newTestGateway(srv.URL).CreatePost(context.Background(), testBot, 0, "t", "c")
	if err != nil {
		t.Fatalf("CreatePost() returned an error: %v", err)
	}
	if res.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d", res.StatusCode)
	}
	if !strings.Contains(string(res.RawBody), "upstream error") {
		t.Errorf("RawBody = %q, want raw HTML preserved", res.RawBody)
	}
	if res.Post != nil || res.Verification != nil || res.RetryAfterSeconds != nil {
		t.Errorf("optional fields populated from a non-JSON body: %+v", res)
	}
}

func TestSubmitVerification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/verify" {
			t.Errorf("path = %q", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var req map[string]string
		json.Unmarshal(body, &req)
		if req["verification_code"] != "ch-1" || req["answer"] != "20.00" {
			t.Errorf("unexpected verify request %v", req)
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true, "content_id": "c9"})
	}))
	defer srv.Close()

	res, err := newTestGateway(srv.URL).SubmitVerification(context.Background(), testBot, 0, "ch-1", "20.00")
	if err != nil {
		t.Fatalf("SubmitVerification() returned an error: %v", err)
	}
	if !res.Success || res.ContentID != "c9" {
		t.Errorf("result = %+v, want success with content id c9", res)
	}
}

func TestTransportFailureExhaustsRetries(t *testing.T) {
	// A closed server guarantees connection refusals.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := newTestGateway(srv.URL).CheckStatus(context.Background(), testBot, 0)
	var exhausted *netclient.RetryExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected RetryExhaustedError, got %v", err)
	}
	if exhausted.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", exhausted.Attempts)
	}
}

func TestRetryDelayPriority(t *testing.T) {
	sec, min := 90, 5
	cases := []struct {
		name string
		res  CreatePostResult
		want time.Duration
	}{
		{"seconds win over minutes", CreatePostResult{RetryAfterSeconds: &sec, RetryAfterMinutes: &min}, 90 * time.Second},
		{"minutes alone", CreatePostResult{RetryAfterMinutes: &min}, 5 * time.Minute},
		{"default backoff", CreatePostResult{}, 1800 * time.Second},
	}
	for _, c := range cases {
		if got := c.res.RetryDelay(); got != c.want {
			t.Errorf("%s: RetryDelay() = %v, want %v", c.name, got, c.want)
		}
	}
}
