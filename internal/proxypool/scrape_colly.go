package proxypool

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"moltfarm/internal/shared/logger"
	"moltfarm/internal/shared/types"
)

// tempFpsProxy is the shape of one entry inside the page's fpsList variable.
type tempFpsProxy struct {
	IP   string `json:"ip"`
	Port string `json:"port"`
}

var fpsListRe = regexp.MustCompile(`(var|let|const)\s+fpsList\s*=\s*(\[.*?\]);`)

// ScrapeFpsList fetches a proxy source that embeds its list as a JS
// "fpsList" JSON variable and extracts the endpoints from it.
func ScrapeFpsList(pageURL string) ([]*types.ProxyEndpoint, error) {
	l := logger.WithComponent("ProxyPool/Scraper")
	l.Info().Str("url", pageURL).Msg("Starting fpsList scrape...")

	c := colly.NewCollector(
		colly.UserAgent(scrapeUserAgent),
	)
	c.SetRequestTimeout(20 * time.Second)

	var endpoints []*types.ProxyEndpoint
	var scrapeErr error
	var mu sync.Mutex

	c.OnResponse(func(r *colly.Response) {
		matches := fpsListRe.FindSubmatch(r.Body)
		if len(matches) < 3 {
			l.Warn().Str("url", r.Request.URL.String()).Msg("Could not find fpsList variable in response body.")
			return
		}

		var tempList []*tempFpsProxy
		if err := json.Unmarshal(matches[2], &tempList); err != nil {
			l.Warn().Err(err).Str("url", r.Request.URL.String()).Msg("Failed to unmarshal fpsList JSON.")
			scrapeErr = err
			return
		}

		mu.Lock()
		defer mu.Unlock()
		for _, p := range tempList {
			ip := strings.TrimSpace(p.IP)
			port, err := strconv.Atoi(strings.TrimSpace(p.Port))
			if err != nil || ip == "" {
				l.Warn().Str("ip", ip).Str("port", p.Port).Msg("Failed to parse fpsList entry, skipping.")
				continue
			}
			endpoints = append(endpoints, &types.ProxyEndpoint{
				Scheme: "http",
				Host:   ip,
				Port:   port,
			})
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		l.Error().Err(err).Int("status_code", r.StatusCode).Str("url", r.Request.URL.String()).Msg("Scrape request failed.")
		scrapeErr = err
	})

	c.Visit(pageURL)
	c.Wait()

	if len(endpoints) == 0 && scrapeErr != nil {
		return nil, scrapeErr
	}

	l.Info().Int("count", len(endpoints)).Str("url", pageURL).Msg("fpsList scrape finished.")
	return endpoints, nil
}
