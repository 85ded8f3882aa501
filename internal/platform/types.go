package platform

import (
	"time"

	"moltfarm/internal/shared/types"
)

// StatusResult is the decoded claim-status response.
type StatusResult struct {
	StatusCode int
	Status     string
}

// Claimed reports whether the platform considers the bot activated.
func (r *StatusResult) Claimed() bool {
	return r.Status == "claimed"
}

// PostInfo identifies a created post.
type PostInfo struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CreatePostResult is the decoded create-post response. Optional wire fields
// stay nil when absent; all probing happens here, once, instead of ad hoc in
// the scheduler.
type CreatePostResult struct {
	StatusCode int

	Post                 *PostInfo
	VerificationRequired bool
	Verification         *types.Challenge

	// 429 backoff fields.
	RetryAfterSeconds *int
	RetryAfterMinutes *int
	Hint              string

	// Optional server-supplied next-mint hint on success.
	NextMintInSeconds *int

	Error   string
	RawBody []byte
}

// OK reports a 2xx create-post response.
func (r *CreatePostResult) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// RetryDelay resolves the server-provided backoff for a 429 response:
// seconds preferred over minutes, defaulting to 30 minutes when absent.
func (r *CreatePostResult) RetryDelay() time.Duration {
	if r.RetryAfterSeconds != nil {
		return time.Duration(*r.RetryAfterSeconds) * time.Second
	}
	if r.RetryAfterMinutes != nil {
		return time.Duration(*r.RetryAfterMinutes) * time.Minute
	}
	return 1800 * time.Second
}

// VerifyResult is the decoded verification response.
type VerifyResult struct {
	StatusCode int
	Success    bool
	ContentID  string
	Error      string
}

// Wire shapes, decoded once at the gateway boundary.

type statusWire struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

type verificationWire struct {
	Code      string `json:"code"`
	Challenge string `json:"challenge"`
	ExpiresAt string `json:"expires_at"`
}

type createPostWire struct {
	Post                 *PostInfo         `json:"post"`
	VerificationRequired bool              `json:"verification_required"`
	Verification         *verificationWire `json:"verification"`
	RetryAfterSeconds    *int              `json:"retry_after_seconds"`
	RetryAfterMinutes    *int              `json:"retry_after_minutes"`
	Hint                 string            `json:"hint"`
	NextMintInSeconds    *int              `json:"next_mint_in_seconds"`
	Error                string            `json:"error"`
}

type verifyWire struct {
	Success   bool   `json:"success"`
	ContentID string `json:"content_id"`
	Error     string `json:"error"`
}
