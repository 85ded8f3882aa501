package types

// CommonConf holds settings shared by every binary.
type CommonConf struct {
	// Crypt is the integer key used to decrypt "enc:" prefixed API keys in
	// accounts.json. 0 means keys are stored in plaintext.
	Crypt int `ini:"crypt"`
}

// LogConf contains logging specific configuration.
type LogConf struct {
	Level string `ini:"level"`
}

// PlatformConf describes the remote posting platform.
type PlatformConf struct {
	BaseURL               string `ini:"base_url"`
	Submolt               string `ini:"submolt"`
	StatusPath            string `ini:"status_path"`
	PostPath              string `ini:"post_path"`
	VerifyPath            string `ini:"verify_path"`
	RequestTimeoutSeconds int    `ini:"request_timeout_seconds"`
	MaxRedirects          int    `ini:"max_redirects"`
}

// MintConf describes the token operation posted for every mint and the
// scheduler timing knobs.
type MintConf struct {
	Ticker                 string `ini:"ticker"`
	Amount                 string `ini:"amount"`
	Wallet                 string `ini:"wallet"`
	DefaultCooldownMinutes int    `ini:"default_cooldown_minutes"`
	TickIntervalSeconds    int    `ini:"tick_interval_seconds"`
	TickFloorSeconds       int    `ini:"tick_floor_seconds"`
}

// LLMConf configures the arithmetic-challenge oracle.
type LLMConf struct {
	Endpoint       string `ini:"endpoint"`
	Model          string `ini:"model"`
	APIKey         string `ini:"api_key"`
	TimeoutSeconds int    `ini:"timeout_seconds"`
}

// RetryConf bounds proxy-rotated retries on transport failures.
type RetryConf struct {
	MaxAttempts int `ini:"max_attempts"`
	BaseDelayMs int `ini:"base_delay_ms"`
}

// ProxyConf controls how outbound proxies are applied.
type ProxyConf struct {
	// ProxyPlainHTTP controls whether proxies are also used for plaintext
	// requests. The platform is HTTPS-only in practice, but this is kept
	// configurable instead of silently dropping the proxy for http:// URLs.
	ProxyPlainHTTP bool `ini:"proxy_plain_http"`
}

// ProxyPoolConf configures the optional remote proxy-list scrapers.
type ProxyPoolConf struct {
	ScrapeURL    string `ini:"scrape_url"`     // HTML table source
	FpsScrapeURL string `ini:"fps_scrape_url"` // JS fpsList source
}

// WebConf configures the optional local status dashboard.
type WebConf struct {
	WebPort     int    `ini:"web_port"`
	WebUser     string `ini:"web_user"`
	WebPassword string `ini:"web_password"`
}

// Config is the unified behavior configuration loaded from moltfarm.ini.
type Config struct {
	CommonConf    `ini:"common"`
	LogConf       `ini:"log"`
	PlatformConf  `ini:"platform"`
	MintConf      `ini:"mint"`
	LLMConf       `ini:"llm"`
	RetryConf     `ini:"retry"`
	ProxyConf     `ini:"proxy"`
	ProxyPoolConf `ini:"proxypool"`
	WebConf       `ini:"web"`
}
