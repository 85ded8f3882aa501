package types

import "time"

// Bot is the identity of one automated platform account. Loaded once from
// accounts.json and immutable afterwards.
type Bot struct {
	Name     string `json:"name"`
	APIKey   string `json:"api_key"`
	ClaimURL string `json:"claim_url,omitempty"`
}

// BotStatus is the mutable per-bot record kept in the status store, keyed by
// bot name. A record is lazily created with zero values the first time a bot
// is referenced and is never deleted.
//
// NextMintAt, when set, is authoritative over any cooldown derived from
// LastMintAttempt.
type BotStatus struct {
	Claimed         bool       `json:"claimed"`
	WalletLinked    bool       `json:"wallet_linked"`
	LastMintAttempt *time.Time `json:"last_mint_attempt,omitempty"`
	NextMintAt      *time.Time `json:"next_mint_at,omitempty"`
	LastStatusCheck *time.Time `json:"last_status_check,omitempty"`
	LastPostResult  string     `json:"last_post_result,omitempty"`
	PostIDs         []string   `json:"post_ids,omitempty"`
}

// ProxyEndpoint is one resolved outbound network path. A nil *ProxyEndpoint
// means a direct connection.
type ProxyEndpoint struct {
	// Scheme is "http" or "socks5".
	Scheme   string
	Host     string
	Port     int
	Username string
	Password string
}

// Challenge is a single verification task returned by the platform after a
// post. It is consumed by one verification attempt and never persisted.
type Challenge struct {
	Code      string    `json:"code"`
	Text      string    `json:"challenge"`
	ExpiresAt time.Time `json:"expires_at"`
}

// MintPayload is the token-operation descriptor serialized as post content.
type MintPayload struct {
	Protocol  string `json:"p"`
	Operation string `json:"op"`
	Ticker    string `json:"tick,omitempty"`
	Amount    string `json:"amt,omitempty"`
	To        string `json:"to,omitempty"`
	Wallet    string `json:"wallet,omitempty"`
}
