package solver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"moltfarm/internal/netclient"
	"moltfarm/internal/shared/types"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"loooobssterr", "lobster"},
		{"A   loOobSter has  ~~seven~~ claws!!", "a lobster has seven claws!!"},
		{"umm the total is, um, forty", "the total is, forty"},
		{"what is 100 divided by 4?", "what is 100 divided by 4?"},
		{"", ""},
	}
	for _, c := range cases {
		got := Normalize(c.in)
		if got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"a loobsterr loses THREE of its nine legs... umm how many remain?",
		"seventy times two percent of fifty",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize is not idempotent: %q -> %q -> %q", in, once, twice)
		}
	}
}

func TestCoerceAnswer(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"47", "47.00", true},
		{"47.5", "47.50", true},
		{"the answer is 47.00", "47.00", true},
		{"-3.1415 or so", "-3.14", true},
		{"result: -12", "-12.00", true},
		{"I don't know", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := CoerceAnswer(c.in)
		if ok != c.ok || got != c.want {
			t.Errorf("CoerceAnswer(%q) = (%q, %v), want (%q, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}

func oracleServer(t *testing.T, replies []string) (*httptest.Server, *int) {
	t.Helper()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected oracle path %q", r.URL.Path)
		}
		reply := replies[len(replies)-1]
		if calls < len(replies) {
			reply = replies[calls]
		}
		calls++
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": reply}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	return srv, &calls
}

func newTestSolver(endpoint string) *Solver {
	return New(netclient.New(true), types.LLMConf{
		Endpoint:       endpoint,
		Model:          "test-model",
		APIKey:         "key",
		TimeoutSeconds: 5,
	})
}

func TestSolveRetriesOnMalformedReply(t *testing.T) {
	srv, calls := oracleServer(t, []string{"I don't know", "47.00"})
	defer srv.Close()

	s := newTestSolver(srv.URL)
	answer, err := s.Solve(context.Background(), types.Challenge{Code: "c1", Text: "what is forty seven?"})
	if err != nil {
		t.Fatalf("Solve() returned an error: %v", err)
	}
	if answer != "47.00" {
		t.Errorf("Solve() = %q, want %q", answer, "47.00")
	}
	if *calls != 2 {
		t.Errorf("expected 2 oracle calls, got %d", *calls)
	}
}

func TestSolveUnsolvable(t *testing.T) {
	srv, calls := oracleServer(t, []string{"no idea", "still no idea"})
	defer srv.Close()

	s := newTestSolver(srv.URL)
	_, err := s.Solve(context.Background(), types.Challenge{Code: "c1", Text: "gibberish"})
	var unsolvable *UnsolvableChallengeError
	if !errors.As(err, &unsolvable) {
		t.Fatalf("expected UnsolvableChallengeError, got %v", err)
	}
	if unsolvable.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", unsolvable.Attempts)
	}
	if *calls != 2 {
		t.Errorf("expected 2 oracle calls, got %d", *calls)
	}
}
