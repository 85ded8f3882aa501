package proxypool

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"moltfarm/internal/shared/logger"
	"moltfarm/internal/shared/types"
)

const scrapeUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36"

// ScrapeHTMLTable fetches a free-proxy-list style page and extracts
// ip/port pairs from the first two columns of its table rows. Scraped
// endpoints supplement the file-based pool; they are plain HTTP proxies.
func ScrapeHTMLTable(pageURL string) ([]*types.ProxyEndpoint, error) {
	l := logger.WithComponent("ProxyPool/Scraper")
	l.Info().Str("url", pageURL).Msg("Starting scrape...")

	client := &http.Client{Timeout: 20 * time.Second}
	req, err := http.NewRequest("GET", pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", scrapeUserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch proxy list page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("proxy list page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse proxy list HTML: %w", err)
	}

	var endpoints []*types.ProxyEndpoint
	doc.Find("table tbody tr").Each(func(i int, sel *goquery.Selection) {
		ip := strings.TrimSpace(sel.Find("td").Eq(0).Text())
		portStr := strings.TrimSpace(sel.Find("td").Eq(1).Text())

		port, err := strconv.Atoi(portStr)
		if err != nil || ip == "" {
			l.Warn().Str("ip", ip).Str("port", portStr).Msg("Failed to parse IP/port, skipping row.")
			return
		}

		endpoints = append(endpoints, &types.ProxyEndpoint{
			Scheme: "http",
			Host:   ip,
			Port:   port,
		})
	})

	l.Info().Int("count", len(endpoints)).Str("url", pageURL).Msg("Scrape finished.")
	return endpoints, nil
}
