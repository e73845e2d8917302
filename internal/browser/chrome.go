package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/akatsuki-labs/akatsuki/internal/logging"
)

// Options configures a Chrome surface.
type Options struct {
	// RemoteURL attaches to a running browser's DevTools endpoint instead of launching one.
	RemoteURL   string
	Headless    bool
	StepTimeout time.Duration
	DownloadDir string
	Logger      *slog.Logger
}

// Chrome drives a Chromium tab through the DevTools protocol.
type Chrome struct {
	ctx         context.Context
	cancel      context.CancelFunc
	timeout     time.Duration
	downloadDir string
	logger      *slog.Logger
}

// NewChrome launches (or attaches to) a browser and opens a tab.
func NewChrome(opts Options) (*Chrome, error) {
	if opts.StepTimeout <= 0 {
		return nil, fmt.Errorf("step timeout must be positive")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if opts.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), opts.RemoteURL)
	} else {
		flags := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
			chromedp.NoSandbox,
			chromedp.DisableGPU,
			chromedp.WindowSize(1280, 900),
		)
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), flags...)
	}

	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logging.Printf(logger, "chromedp")),
		chromedp.WithErrorf(logging.Printf(logger, "chromedp error")),
	)
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	c := &Chrome{
		ctx: tabCtx,
		cancel: func() {
			tabCancel()
			allocCancel()
		},
		timeout:     opts.StepTimeout,
		downloadDir: opts.DownloadDir,
		logger:      logger,
	}
	c.acceptDialogs()
	return c, nil
}

// acceptDialogs confirms every JavaScript alert or confirm the portal raises.
func (c *Chrome) acceptDialogs() {
	chromedp.ListenTarget(c.ctx, func(ev any) {
		if _, ok := ev.(*page.EventJavascriptDialogOpening); !ok {
			return
		}
		go func() {
			if err := chromedp.Run(c.ctx, page.HandleJavaScriptDialog(true)); err != nil {
				c.logger.Warn("accept dialog failed", slog.Any("error", err))
			}
		}()
	})
}

// run executes actions bounded by the step timeout and by ctx.
func (c *Chrome) run(ctx context.Context, step string, actions ...chromedp.Action) error {
	stepCtx, cancel := context.WithTimeout(c.ctx, c.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(stepCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrStepTimeout, step)
		}
		return fmt.Errorf("%s: %w", step, err)
	}
	return nil
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	return c.run(ctx, "navigate", chromedp.Navigate(url))
}

func (c *Chrome) Click(ctx context.Context, selector string) error {
	return c.run(ctx, "click "+selector, chromedp.Click(selector, chromedp.ByQuery))
}

func (c *Chrome) ClickText(ctx context.Context, tag, text string, match Match) error {
	return c.run(ctx, "click text "+text, chromedp.Click(TextXPath(tag, text, match), chromedp.BySearch))
}

func (c *Chrome) ClickNth(ctx context.Context, selector string, index int) error {
	return c.evalBool(ctx, "click nth "+selector, fmt.Sprintf(`(() => {
  const el = document.querySelectorAll(%s)[%d];
  if (!el) return false;
  el.click();
  return true;
})()`, jsString(selector), index))
}

func (c *Chrome) Fill(ctx context.Context, selector, value string) error {
	return c.run(ctx, "fill "+selector,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

func (c *Chrome) FillNth(ctx context.Context, selector string, index int, value string) error {
	return c.evalBool(ctx, "fill nth "+selector, fmt.Sprintf(`(() => {
  const el = document.querySelectorAll(%s)[%d];
  if (!el) return false;
  el.focus();
  el.value = %s;
  el.dispatchEvent(new Event('input', {bubbles: true}));
  el.dispatchEvent(new Event('change', {bubbles: true}));
  return true;
})()`, jsString(selector), index, jsString(value)))
}

func (c *Chrome) Choose(ctx context.Context, selector, optionText string) error {
	return c.evalBool(ctx, "choose "+optionText, fmt.Sprintf(`(() => {
  const s = document.querySelector(%s);
  if (!s) return false;
  for (const o of s.options) {
    if (o.text.trim() === %s) {
      s.value = o.value;
      s.dispatchEvent(new Event('change', {bubbles: true}));
      return true;
    }
  }
  return false;
})()`, jsString(selector), jsString(optionText)))
}

func (c *Chrome) WaitVisible(ctx context.Context, selector string) error {
	return c.run(ctx, "wait "+selector, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (c *Chrome) HasText(ctx context.Context, tag, text string, match Match) (bool, error) {
	var found bool
	script := fmt.Sprintf(`document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue !== null`,
		jsString(TextXPath(tag, text, match)))
	if err := c.run(ctx, "has text "+text, chromedp.Evaluate(script, &found)); err != nil {
		return false, err
	}
	return found, nil
}

func (c *Chrome) Text(ctx context.Context, selector string) (string, error) {
	var text string
	if err := c.run(ctx, "text "+selector, chromedp.Text(selector, &text, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return text, nil
}

func (c *Chrome) Download(ctx context.Context, selector string) ([]byte, error) {
	if c.downloadDir == "" {
		return nil, fmt.Errorf("download directory not configured")
	}
	done := make(chan string, 1)
	listenCtx, stopListening := context.WithCancel(c.ctx)
	defer stopListening()
	chromedp.ListenTarget(listenCtx, func(ev any) {
		progress, ok := ev.(*cdpbrowser.EventDownloadProgress)
		if !ok || progress.State != cdpbrowser.DownloadProgressStateCompleted {
			return
		}
		select {
		case done <- progress.GUID:
		default:
		}
	})

	err := c.run(ctx, "download "+selector,
		cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(c.downloadDir).
			WithEventsEnabled(true),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case guid := <-done:
		path := filepath.Join(c.downloadDir, guid)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read download: %w", err)
		}
		_ = os.Remove(path)
		return data, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: download %s", ErrStepTimeout, selector)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Chrome) OpenWindow(ctx context.Context, tag, text string, match Match) (Surface, error) {
	opened := chromedp.WaitNewTarget(c.ctx, func(info *target.Info) bool {
		return info.Type == "page" && info.OpenerID != ""
	})
	if err := c.ClickText(ctx, tag, text, match); err != nil {
		return nil, err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case id := <-opened:
		winCtx, cancel := chromedp.NewContext(c.ctx, chromedp.WithTargetID(id))
		if err := chromedp.Run(winCtx); err != nil {
			cancel()
			return nil, fmt.Errorf("attach window: %w", err)
		}
		win := &Chrome{ctx: winCtx, cancel: cancel, timeout: c.timeout, downloadDir: c.downloadDir, logger: c.logger}
		win.acceptDialogs()
		return win, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: window for %s", ErrStepTimeout, text)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Chrome) ExportCookies(ctx context.Context) ([]byte, error) {
	var cookies []*network.Cookie
	err := c.run(ctx, "export cookies", chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	return json.Marshal(cookies)
}

func (c *Chrome) ImportCookies(ctx context.Context, blob []byte) error {
	var cookies []*network.Cookie
	if err := json.Unmarshal(blob, &cookies); err != nil {
		return fmt.Errorf("decode cookies: %w", err)
	}
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, ck := range cookies {
		p := &network.CookieParam{
			Name:     ck.Name,
			Value:    ck.Value,
			Domain:   ck.Domain,
			Path:     ck.Path,
			Secure:   ck.Secure,
			HTTPOnly: ck.HTTPOnly,
			SameSite: ck.SameSite,
		}
		if !ck.Session && ck.Expires > 0 {
			expires := cdp.TimeSinceEpoch(time.Unix(int64(ck.Expires), 0))
			p.Expires = &expires
		}
		params = append(params, p)
	}
	return c.run(ctx, "import cookies", chromedp.ActionFunc(func(ctx context.Context) error {
		return network.SetCookies(params).Do(ctx)
	}))
}

// Close shuts the tab and, for a launched browser, the browser process.
func (c *Chrome) Close() error {
	c.cancel()
	return nil
}

func (c *Chrome) evalBool(ctx context.Context, step, script string) error {
	var ok bool
	if err := c.run(ctx, step, chromedp.Evaluate(script, &ok)); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrElementMissing, step)
	}
	return nil
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
