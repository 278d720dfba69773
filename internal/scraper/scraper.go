// Package scraper drives a headless Chromium session through the course
// portal's login and calendar-export flow and lands the exported .ics file
// in a per-user scratch directory.
package scraper

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"

	"deadline-bot/internal/retry"
)

// Selectors on the portal pages. The portal was never designed for
// automation, so these mirror the live markup and will need updating when
// the theme changes.
const (
	selIdentityProvider = `div.login-identityproviders a`
	selUsername         = `#username`
	selPassword         = `#password`
	selLoginSubmit      = `#fm1 input.waves-button-input`
	selExportAll        = `#id_events_exportevents_all`
	selRecentUpcoming   = `#id_period_timeperiod_recentupcoming`
	selExportSubmit     = `#id_export`
)

const (
	defaultStepTimeout  = 10 * time.Second
	defaultDownloadWait = 30 * time.Second
	downloadPollEvery   = 500 * time.Millisecond
)

// Fetcher owns the browser automation for one portal.
type Fetcher struct {
	exportURL    string
	baseDir      string
	headless     bool
	stepTimeout  time.Duration
	downloadWait time.Duration
}

func NewFetcher(exportURL, baseDir string, headless bool) *Fetcher {
	return &Fetcher{
		exportURL:    exportURL,
		baseDir:      baseDir,
		headless:     headless,
		stepTimeout:  defaultStepTimeout,
		downloadWait: defaultDownloadWait,
	}
}

// ScratchDir is the per-user handoff directory the export is downloaded
// into and the normalizer later drains.
func (f *Fetcher) ScratchDir(telegramID int64) string {
	return filepath.Join(f.baseDir, strconv.FormatInt(telegramID, 10))
}

// Fetch logs into the portal with the given credentials and downloads the
// calendar export for one user. The browser session is isolated (own
// profile and download directory) and torn down on every exit path.
//
// Errors: ErrInvalidCredentials when the post-login marker never appears;
// everything else is marked transient so the caller's retry policy can
// re-run the whole flow.
func (f *Fetcher) Fetch(ctx context.Context, username, password string, telegramID int64) error {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(password) == "" {
		return fmt.Errorf("empty portal credentials")
	}

	scratchDir := f.ScratchDir(telegramID)
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return fmt.Errorf("create scratch dir %q: %w", scratchDir, err)
	}

	// Separate profile per session so concurrent fetches never share
	// cookies or download state.
	profileDir, err := os.MkdirTemp("", fmt.Sprintf("deadline-bot-profile-%d-", telegramID))
	if err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(profileDir); err != nil {
			log.Printf("[warn] remove profile dir %q: %v", profileDir, err)
		}
	}()

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserDataDir(profileDir),
	}
	if f.headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	log.Printf("[info] fetching calendar export for user=%d", telegramID)

	// Route downloads into the scratch dir instead of the profile default.
	if err := f.step(browserCtx, "configure downloads",
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(scratchDir),
	); err != nil {
		return err
	}

	if err := f.step(browserCtx, "open export page",
		chromedp.Navigate(f.exportURL),
	); err != nil {
		return err
	}

	if err := f.click(browserCtx, selIdentityProvider); err != nil {
		return err
	}

	if err := f.step(browserCtx, "fill login form",
		chromedp.WaitVisible(selUsername, chromedp.ByQuery),
		chromedp.Clear(selUsername, chromedp.ByQuery),
		chromedp.SendKeys(selUsername, username, chromedp.ByQuery),
		chromedp.WaitVisible(selPassword, chromedp.ByQuery),
		chromedp.Clear(selPassword, chromedp.ByQuery),
		chromedp.SendKeys(selPassword, password, chromedp.ByQuery),
	); err != nil {
		return err
	}

	if err := f.click(browserCtx, selLoginSubmit); err != nil {
		return err
	}

	// The export-all radio only renders after a successful login. If it
	// never shows up the credentials were wrong, which is terminal.
	markerCtx, cancelMarker := context.WithTimeout(browserCtx, f.stepTimeout)
	defer cancelMarker()
	if err := chromedp.Run(markerCtx,
		chromedp.WaitVisible(selExportAll, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("%w (no export page after login: %v)", ErrInvalidCredentials, err)
	}

	for _, sel := range []string{selExportAll, selRecentUpcoming, selExportSubmit} {
		if err := f.click(browserCtx, sel); err != nil {
			return err
		}
	}

	if err := f.waitForDownload(browserCtx, scratchDir); err != nil {
		return err
	}

	log.Printf("[info] calendar export downloaded for user=%d", telegramID)
	return nil
}

// step runs a sequence of chromedp actions under the per-step timeout and
// wraps any failure as transient.
func (f *Fetcher) step(ctx context.Context, name string, actions ...chromedp.Action) error {
	stepCtx, cancel := context.WithTimeout(ctx, f.stepTimeout)
	defer cancel()
	if err := chromedp.Run(stepCtx, actions...); err != nil {
		return retry.Transient(fmt.Errorf("%s: %w", name, err))
	}
	return nil
}

// click waits for the element and clicks it. When the natural click is
// intercepted (sticky header, consent banner), it scrolls the element into
// view and clicks it from script instead.
func (f *Fetcher) click(ctx context.Context, sel string) error {
	stepCtx, cancel := context.WithTimeout(ctx, f.stepTimeout)
	defer cancel()
	err := chromedp.Run(stepCtx,
		chromedp.WaitVisible(sel, chromedp.ByQuery),
		chromedp.Click(sel, chromedp.ByQuery),
	)
	if err == nil {
		return nil
	}

	fbCtx, cancelFb := context.WithTimeout(ctx, f.stepTimeout)
	defer cancelFb()
	js := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return false;
		el.scrollIntoView({block: "center"});
		el.click();
		return true;
	})()`, sel)
	var clicked bool
	if fbErr := chromedp.Run(fbCtx, chromedp.Evaluate(js, &clicked)); fbErr != nil || !clicked {
		return retry.Transient(fmt.Errorf("click %q: %w", sel, err))
	}
	return nil
}

// waitForDownload polls the scratch directory until at least one .ics file
// lands or the window closes. Listing errors count as "nothing yet" so a
// transient I/O hiccup does not abort the wait early.
func (f *Fetcher) waitForDownload(ctx context.Context, dir string) error {
	deadline := time.Now().Add(f.downloadWait)
	ticker := time.NewTicker(downloadPollEvery)
	defer ticker.Stop()

	for {
		if hasExport(dir) {
			return nil
		}
		if time.Now().After(deadline) {
			return retry.Transient(fmt.Errorf("%w after %s", ErrDownloadTimeout, f.downloadWait))
		}
		select {
		case <-ctx.Done():
			return retry.Transient(ctx.Err())
		case <-ticker.C:
		}
	}
}

func hasExport(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".ics") {
			return true
		}
	}
	return false
}
