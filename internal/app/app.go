package app

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"moltfarm/internal/netclient"
	"moltfarm/internal/platform"
	"moltfarm/internal/proxypool"
	"moltfarm/internal/scheduler"
	"moltfarm/internal/service/web"
	"moltfarm/internal/shared/config"
	"moltfarm/internal/shared/logger"
	"moltfarm/internal/shared/types"
	"moltfarm/internal/solver"
	"moltfarm/internal/statusstore"
)

// App wires the whole bot farm together from a config directory:
// moltfarm.ini (behavior), accounts.json, proxies.txt and status.json.
type App struct {
	Cfg       *types.Config
	Bots      []*types.Bot
	Pool      *proxypool.Pool
	Store     *statusstore.Store
	Scheduler *scheduler.Scheduler
	Hub       *web.Hub

	waitGroup sync.WaitGroup
}

// New loads every collaborator and constructs the scheduler. withDashboard
// enables the optional web status dashboard (long-running processes only).
func New(cfg *types.Config, configDir string, withDashboard bool) (*App, error) {
	bots, err := config.LoadAccounts(filepath.Join(configDir, "accounts.json"), cfg.CommonConf.Crypt)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	if len(bots) == 0 {
		return nil, fmt.Errorf("no accounts configured in %s", filepath.Join(configDir, "accounts.json"))
	}

	proxyLines, err := config.LoadProxyLines(filepath.Join(configDir, "proxies.txt"))
	if err != nil {
		return nil, fmt.Errorf("failed to load proxies: %w", err)
	}
	pool := proxypool.New(proxyLines)
	mergeScrapedProxies(pool, cfg.ProxyPoolConf)

	logger.Info().Int("bots", len(bots)).Int("proxies", pool.Size()).Msg("Collaborators loaded.")

	store := statusstore.Load(filepath.Join(configDir, "status.json"))

	client := netclient.New(cfg.ProxyConf.ProxyPlainHTTP)
	retry := netclient.RetryPolicy{
		MaxAttempts: cfg.RetryConf.MaxAttempts,
		BaseDelay:   time.Duration(cfg.RetryConf.BaseDelayMs) * time.Millisecond,
	}
	gateway := platform.New(client, retry, pool, cfg.PlatformConf)
	challengeSolver := solver.New(client, cfg.LLMConf)

	a := &App{
		Cfg:   cfg,
		Bots:  bots,
		Pool:  pool,
		Store: store,
	}

	if withDashboard && cfg.WebConf.WebPort > 0 {
		a.Hub = web.NewHub()
		go a.Hub.Run()
		web.StartServer(&a.waitGroup, cfg.WebConf, store, a.Hub)
	}

	// The hub may be nil; the scheduler treats that as "no dashboard".
	var hub scheduler.StatusBroadcaster
	if a.Hub != nil {
		hub = a.Hub
	}
	a.Scheduler = scheduler.New(bots, gateway, challengeSolver, store, cfg.MintConf, hub)

	return a, nil
}

// mergeScrapedProxies supplements the file-based pool with endpoints from
// the configured remote sources. Scrape failures are logged, never fatal.
func mergeScrapedProxies(pool *proxypool.Pool, cfg types.ProxyPoolConf) {
	if cfg.ScrapeURL != "" {
		eps, err := proxypool.ScrapeHTMLTable(cfg.ScrapeURL)
		if err != nil {
			logger.Warn().Err(err).Str("url", cfg.ScrapeURL).Msg("Proxy list scrape failed.")
		} else {
			pool.Add(eps...)
		}
	}
	if cfg.FpsScrapeURL != "" {
		eps, err := proxypool.ScrapeFpsList(cfg.FpsScrapeURL)
		if err != nil {
			logger.Warn().Err(err).Str("url", cfg.FpsScrapeURL).Msg("fpsList proxy scrape failed.")
		} else {
			pool.Add(eps...)
		}
	}
}
