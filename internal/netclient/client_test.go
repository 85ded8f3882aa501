package netclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestDoJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"tick":"MOLT"`) {
			t.Errorf("unexpected body %q", body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(true)
	resp, err := c.Do(context.Background(), Request{
		Method:   "POST",
		URL:      srv.URL,
		JSONBody: map[string]string{"tick": "MOLT"},
	})
	if err != nil {
		t.Fatalf("Do() returned an error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if ok, _ := resp.JSON["ok"].(bool); !ok {
		t.Errorf("parsed JSON = %v, want ok:true", resp.JSON)
	}
}

func TestDoFormBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("Content-Type = %q, want form encoding", ct)
		}
		r.ParseForm()
		if got := r.PostForm.Get("user"); got != "alpha" {
			t.Errorf("form user = %q, want alpha", got)
		}
	}))
	defer srv.Close()

	c := New(true)
	_, err := c.Do(context.Background(), Request{
		Method:   "POST",
		URL:      srv.URL,
		FormBody: url.Values{"user": {"alpha"}},
	})
	if err != nil {
		t.Fatalf("Do() returned an error: %v", err)
	}
}

func TestRedirectDowngradeAndCookieMerge(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("first hop method = %q, want POST", r.Method)
		}
		w.Header().Add("Set-Cookie", "session=abc; Path=/; HttpOnly")
		w.Header().Set("Location", "/next")
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/next", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			t.Errorf("redirected method = %q, want GET (302 downgrades)", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		if len(body) != 0 {
			t.Errorf("redirected hop carried a body: %q", body)
		}
		cookie := r.Header.Get("Cookie")
		if !strings.Contains(cookie, "session=abc") || !strings.Contains(cookie, "seed=1") {
			t.Errorf("Cookie = %q, want merged seed and session", cookie)
		}
		w.Write([]byte("done"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(true)
	resp, err := c.Do(context.Background(), Request{
		Method:          "POST",
		URL:             srv.URL + "/start",
		Cookie:          "seed=1",
		JSONBody:        map[string]string{"k": "v"},
		FollowRedirects: true,
		MaxRedirects:    5,
	})
	if err != nil {
		t.Fatalf("Do() returned an error: %v", err)
	}
	if resp.StatusCode != 200 || string(resp.Body) != "done" {
		t.Errorf("final response = %d %q, want 200 done", resp.StatusCode, resp.Body)
	}
	if len(resp.SetCookies) != 1 {
		t.Errorf("SetCookies = %v, want the session cookie from hop 1", resp.SetCookies)
	}
}

func TestRedirect307PreservesMethodAndBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/next")
		w.WriteHeader(http.StatusTemporaryRedirect)
	})
	mux.HandleFunc("/next", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("redirected method = %q, want POST (307 preserves)", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"k":"v"`) {
			t.Errorf("redirected body = %q, want original JSON", body)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(true)
	_, err := c.Do(context.Background(), Request{
		Method:          "POST",
		URL:             srv.URL + "/start",
		JSONBody:        map[string]string{"k": "v"},
		FollowRedirects: true,
		MaxRedirects:    3,
	})
	if err != nil {
		t.Fatalf("Do() returned an error: %v", err)
	}
}

func TestRedirectNotFollowedByDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/elsewhere")
		w.WriteHeader(http.StatusFound)
	}))
	defer srv.Close()

	c := New(true)
	resp, err := c.Do(context.Background(), Request{Method: "GET", URL: srv.URL})
	if err != nil {
		t.Fatalf("Do() returned an error: %v", err)
	}
	if resp.StatusCode != http.StatusFound {
		t.Errorf("StatusCode = %d, want 302 passed through", resp.StatusCode)
	}
	if resp.Location != "/elsewhere" {
		t.Errorf("Location = %q, want /elsewhere", resp.Location)
	}
}

func TestRedirectLimit(t *testing.T) {
	hops := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hops++
		w.Header().Set("Location", "/loop")
		w.WriteHeader(http.StatusFound)
	}))
	defer srv.Close()

	c := New(true)
	resp, err := c.Do(context.Background(), Request{
		Method:          "GET",
		URL:             srv.URL,
		FollowRedirects: true,
		MaxRedirects:    2,
	})
	if err != nil {
		t.Fatalf("Do() returned an error: %v", err)
	}
	// The last hop's 302 is returned rather than followed.
	if resp.StatusCode != http.StatusFound {
		t.Errorf("StatusCode = %d, want 302 at the redirect limit", resp.StatusCode)
	}
	if hops != 3 {
		t.Errorf("hops = %d, want MaxRedirects+1 = 3", hops)
	}
}

func TestTimeoutErrorType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(true)
	_, err := c.Do(context.Background(), Request{
		Method:  "GET",
		URL:     srv.URL,
		Timeout: 50 * time.Millisecond,
	})
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if te.Elapsed <= 0 {
		t.Errorf("Elapsed = %v, want > 0", te.Elapsed)
	}
}

func TestMergeCookies(t *testing.T) {
	got := mergeCookies("a=1; b=2", []string{"b=3; Path=/; Secure", "c=4"})
	want := "a=1; b=3; c=4"
	if got != want {
		t.Errorf("mergeCookies = %q, want %q", got, want)
	}

	if got := mergeCookies("", []string{"s=x; HttpOnly"}); got != "s=x" {
		t.Errorf("mergeCookies from empty = %q, want s=x", got)
	}
}

func TestShouldProxy(t *testing.T) {
	if New(false).shouldProxy("http://example.com/x") {
		t.Error("plaintext target proxied with proxy_plain_http disabled")
	}
	if !New(true).shouldProxy("http://example.com/x") {
		t.Error("plaintext target not proxied with proxy_plain_http enabled")
	}
	if !New(false).shouldProxy("https://example.com/x") {
		t.Error("https target must always be proxied")
	}
}
