// Package search implements dark-web search fan-out and page retrieval over a
// Tor SOCKS proxy. Results come back deduplicated across engines as
// link/title pairs.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/umbra-intel/shrike/pkg/logging"
)

// Result is a single search hit.
type Result struct {
	Link  string `json:"link"`
	Title string `json:"title"`
}

// DefaultEngines are the onion search endpoints queried by default. The
// {query} placeholder is substituted with the URL-escaped query.
var DefaultEngines = []string{
	"http://juhanurmihxlp77nkq76byazcldy2hlmovfu2epvl5ankdibsot4csyd.onion/search/?q={query}",
	"http://3bbad7fauom4d6sgppalyqddsqbf5u5p56b5k5uk2zxsy3d6ey2jobad.onion/search?q={query}",
	"http://darkhuntyla64h75a3re5e2l3367lqn7ltmdzpgmr6b4nbz3q2iaxrid.onion/search?q={query}",
	"http://iy3544gmoeclh5de6gez2256v6pjh4omhpqdh2wpeeppjtvqmjhkfwad.onion/torgle/?query={query}",
	"http://amnesia7u5odx5xbwtpnqk3edybgud5bmiagu75bnqx2crntw5kry7ad.onion/search?query={query}",
	"http://kaizerwfvp5gxu6cppibp7jhcqptavq3iqef66wbxenh6a2fklibdvid.onion/search?q={query}",
	"http://anima4ffe27xmakwnseih3ic2y7y3l6e7fucwk4oerdn4odf7k74tbid.onion/search?q={query}",
	"http://tornadoxn3viscgz647shlysdy7ea5zqzwda7hierekeuokh5eh5b3qd.onion/search?q={query}",
	"http://tornetupfu7gcgidt33ftnungxzyfq2pygui5qdoyss34xbgx2qruzid.onion/search?q={query}",
	"http://torlbmqwtudkorme6prgfpmsnile7ug2zm4u3ejpcncxuhpu4k2j4kyd.onion/index.php?a=search&q={query}",
	"http://findtorroveq5wdnipkaojfpqulxnkhblymc7aramjzajcvpptd4rjqd.onion/search?q={query}",
	"http://2fd6cemt4gmccflhm6imvdfvli3nf7zn6rfrwpsy7uhxrgbypvwf5fad.onion/search?query={query}",
	"http://tor66sewebgixwhcqfnp5inzp5x5uohhdy3kvtnyfxc2e5mxiuh34iid.onion/search?q={query}",
	"http://haystak5njsmn2hqkewecpaxetahtwhsbsa64jom2k22z5afxhnpxfid.onion/?q={query}",
	"http://phobos2nhokhtdavdsmqwdx6prdpj3kvxkypwobpawuzwzwkk4bnxhad.onion/search?q={query}",
	"http://onionsearchengine.com/search.php?q={query}",
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:137.0) Gecko/20100101 Firefox/137.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14.7; rv:137.0) Gecko/20100101 Firefox/137.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_7_5) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.3 Safari/605.1.15",
}

// Config controls the search client.
type Config struct {
	// TorProxy is the SOCKS5 proxy URL; empty disables proxying.
	TorProxy string
	// Engines overrides DefaultEngines when non-empty.
	Engines []string
	// Timeout applies per engine request.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Client fans a query out to every configured engine through the Tor proxy.
type Client struct {
	engines   []string
	timeout   time.Duration
	torClient *http.Client
	webClient *http.Client
	logger    *slog.Logger
}

// NewClient builds a search client. A bad proxy URL falls back to direct
// connections; search must keep working in degraded form.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if len(cfg.Engines) == 0 {
		cfg.Engines = DefaultEngines
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.WithComponent("search")
	}

	torClient := &http.Client{Timeout: cfg.Timeout}
	if cfg.TorProxy != "" {
		if proxyURL, err := url.Parse(cfg.TorProxy); err == nil {
			torClient.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		} else {
			logger.Warn("invalid tor proxy url, using direct connections", "proxy", cfg.TorProxy, "error", err)
		}
	}

	return &Client{
		engines:   cfg.Engines,
		timeout:   cfg.Timeout,
		torClient: torClient,
		webClient: &http.Client{Timeout: cfg.Timeout},
		logger:    logger,
	}
}

// EngineCount reports how many engines a query fans out to.
func (c *Client) EngineCount() int {
	return len(c.engines)
}

// Search queries every engine with a bounded worker pool and returns
// deduplicated onion results. Individual engine failures are logged and
// skipped; Search itself only fails on context cancellation.
func (c *Client) Search(ctx context.Context, query string, maxResults, workers int) ([]Result, error) {
	if workers <= 0 {
		workers = 5
	}
	if maxResults <= 0 {
		maxResults = 50
	}

	jobs := make(chan string)
	hits := make(chan []Result)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for endpoint := range jobs {
				results, err := c.queryEngine(ctx, endpoint, query)
				if err != nil {
					c.logger.Debug("engine query failed", "endpoint", endpoint, "error", err)
					continue
				}
				select {
				case hits <- results:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, endpoint := range c.engines {
			select {
			case jobs <- endpoint:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(hits)
	}()

	seen := make(map[string]struct{})
	var out []Result
	for batch := range hits {
		for _, r := range batch {
			if _, dup := seen[r.Link]; dup {
				continue
			}
			seen[r.Link] = struct{}{}
			out = append(out, r)
		}
	}
	if err := ctx.Err(); err != nil && len(out) == 0 {
		return nil, err
	}
	if len(out) > maxResults {
		out = out[:maxResults]
	}
	return out, nil
}

func (c *Client) queryEngine(ctx context.Context, endpoint, query string) ([]Result, error) {
	target := strings.ReplaceAll(endpoint, "{query}", url.QueryEscape(query))

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgents[rand.Intn(len(userAgents))])

	resp, err := c.clientFor(target).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("engine returned status %d", resp.StatusCode)
	}

	return ParseResults(resp.Body)
}

func (c *Client) clientFor(target string) *http.Client {
	if strings.Contains(target, ".onion") {
		return c.torClient
	}
	return c.webClient
}
