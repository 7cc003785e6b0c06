// Package capture takes full-page screenshots of .onion pages by driving a
// headless Chrome instance through the Tor SOCKS proxy.
package capture

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/umbra-intel/shrike/pkg/logging"
)

const (
	defaultTimeout = 45 * time.Second
	defaultDir     = "screenshots"
	// defaultMaxShots bounds one batch so a link-heavy answer does not turn
	// into a minutes-long Chrome session.
	defaultMaxShots = 10
)

// Capturer renders .onion pages over Tor and stores PNG screenshots.
type Capturer struct {
	proxyURL string
	dir      string
	timeout  time.Duration
	logger   *slog.Logger
}

// Options configure the capturer. Dir defaults to "screenshots" under the
// working directory; Timeout defaults to 45s to absorb Tor latency.
type Options struct {
	ProxyURL string
	Dir      string
	Timeout  time.Duration
	Logger   *slog.Logger
}

func New(opts Options) *Capturer {
	if opts.Dir == "" {
		opts.Dir = defaultDir
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.WithComponent("capture")
	}
	return &Capturer{
		proxyURL: opts.ProxyURL,
		dir:      opts.Dir,
		timeout:  opts.Timeout,
		logger:   opts.Logger,
	}
}

// Shot is the outcome of one capture attempt. A failed attempt carries Error
// and no Path.
type Shot struct {
	URL   string `json:"url"`
	Path  string `json:"path,omitempty"`
	Title string `json:"title,omitempty"`
	Error string `json:"error,omitempty"`
}

// Capture renders url and writes a full-page PNG into the screenshot
// directory. Failures are folded into the returned Shot.
func (c *Capturer) Capture(ctx context.Context, url string) Shot {
	shot := Shot{URL: url}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		shot.Error = fmt.Sprintf("create screenshot dir: %v", err)
		return shot
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.WindowSize(1920, 1080),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("ignore-certificate-errors", true),
	)
	if c.proxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(c.proxyURL))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()
	taskCtx, timeoutCancel := context.WithTimeout(taskCtx, c.timeout)
	defer timeoutCancel()

	var buf []byte
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(url),
		// Let late-loading scripts settle before the capture.
		chromedp.Sleep(2*time.Second),
		chromedp.Title(&shot.Title),
		chromedp.FullScreenshot(&buf, 90),
	)
	if err != nil {
		c.logger.Warn("screenshot failed", "url", url, "error", err)
		shot.Error = err.Error()
		return shot
	}

	path := filepath.Join(c.dir, screenshotFilename(url, time.Now()))
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		shot.Error = fmt.Sprintf("write screenshot: %v", err)
		return shot
	}
	c.logger.Info("screenshot saved", "url", url, "path", path)
	shot.Path = path
	return shot
}

// CaptureBatch captures up to max onion URLs, skipping clearnet addresses.
// max <= 0 applies the default cap.
func (c *Capturer) CaptureBatch(ctx context.Context, urls []string, max int) []Shot {
	targets := onionTargets(urls, max)
	shots := make([]Shot, 0, len(targets))
	for _, url := range targets {
		if ctx.Err() != nil {
			break
		}
		shots = append(shots, c.Capture(ctx, url))
	}
	return shots
}

// CleanupOld removes screenshots older than maxAge and reports how many were
// deleted.
func (c *Capturer) CleanupOld(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(c.dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read screenshot dir: %w", err)
	}

	deleted := 0
	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".png") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, entry.Name())); err == nil {
			deleted++
		}
	}
	return deleted, nil
}

// onionTargets filters urls down to .onion addresses, deduplicated and capped
// at max.
func onionTargets(urls []string, max int) []string {
	if max <= 0 {
		max = defaultMaxShots
	}
	seen := make(map[string]struct{})
	var out []string
	for _, url := range urls {
		if !strings.Contains(url, ".onion") {
			continue
		}
		if _, dup := seen[url]; dup {
			continue
		}
		seen[url] = struct{}{}
		out = append(out, url)
		if len(out) == max {
			break
		}
	}
	return out
}

// screenshotFilename builds a collision-safe name from the URL hash and the
// capture time.
func screenshotFilename(url string, now time.Time) string {
	sum := md5.Sum([]byte(url))
	return fmt.Sprintf("onion_%s_%s.png",
		hex.EncodeToString(sum[:])[:12], now.Format("20060102_150405"))
}
