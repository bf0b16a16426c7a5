// Package browsercheck loads a page in headless Chrome and reports what the
// injected styles and the footer script actually did there.
package browsercheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"ppcgate/internal/audit"
	"ppcgate/internal/inject"
	"ppcgate/internal/profile"
	"ppcgate/internal/styles"
)

// ErrNoBrowser is returned when no Chrome binary can be found.
var ErrNoBrowser = errors.New("browsercheck: no chrome or chromium binary found")

var browserNames = []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell", "chrome"}

// FindBrowser returns the path of the first Chrome-like binary on PATH.
func FindBrowser() (string, error) {
	for _, name := range browserNames {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", ErrNoBrowser
}

// Result is the page state observed after load.
type Result struct {
	URL         string          `json:"url"`
	Viewport    audit.Viewport  `json:"-"`
	BodyClasses []string        `json:"classes"`
	Injected    []string        `json:"injected"`
	WidgetState string          `json:"state"`
	Hidden      map[string]bool `json:"hidden"`
	Missing     []string        `json:"missing"`
}

// Options tunes one Verify call.
type Options struct {
	Viewport audit.Viewport
	Mobile   bool
	// Settle is how long to wait after the body is ready before reading the
	// page, so the footer script and the widget loader get a chance to run.
	Settle  time.Duration
	Timeout time.Duration
	// Probes are selectors whose computed display is reported.
	Probes []string
}

// Checker owns a headless Chrome allocator.
type Checker struct {
	allocator context.Context
	cancel    context.CancelFunc
	logger    logrus.FieldLogger
}

// New starts an allocator. Chrome itself is launched on the first Verify.
func New(logger logrus.FieldLogger) *Checker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-sync", true),
	)
	if path, err := FindBrowser(); err == nil {
		opts = append(opts, chromedp.ExecPath(path))
	}
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &Checker{allocator: allocCtx, cancel: cancel, logger: logger}
}

func (c *Checker) Close() {
	if c.cancel != nil {
		c.cancel()
	}
}

// Probes returns the selectors worth checking for a profile: the menu
// toggle, the widget and the first social and booking links.
func Probes(p *profile.Profile) []string {
	if p == nil {
		p = profile.Default()
	}
	out := []string{".menu-toggle", p.Widget.Selector}
	out = append(out, styles.HrefContains(".header-mobile ", p.SocialDomains...)...)
	if p.BookingDomain != "" {
		out = append(out, styles.HrefContains(".menu-btn > ", p.BookingDomain)...)
	}
	return out
}

// probeScript builds the expression evaluated in the page.
func probeScript(probes []string) (string, error) {
	arg, err := json.Marshal(probes)
	if err != nil {
		return "", err
	}
	return `(function (sels) {
  var out = {
    url: location.href,
    classes: Array.prototype.slice.call(document.body ? document.body.classList : []),
    injected: Array.prototype.map.call(document.querySelectorAll('[` + inject.MarkerAttr + `]'), function (e) {
      return e.getAttribute('` + inject.MarkerAttr + `');
    }),
    state: window.ppcgate ? window.ppcgate.state() : '',
    hidden: {},
    missing: []
  };
  sels.forEach(function (s) {
    var el = document.querySelector(s);
    if (!el) { out.missing.push(s); return; }
    out.hidden[s] = getComputedStyle(el).display === 'none';
  });
  return out;
})(` + string(arg) + `)`, nil
}

// Verify navigates to target and reads the page state.
func (c *Checker) Verify(ctx context.Context, target string, opt Options) (*Result, error) {
	if strings.TrimSpace(target) == "" {
		return nil, fmt.Errorf("browsercheck: empty target url")
	}
	if opt.Viewport == (audit.Viewport{}) {
		opt.Viewport = audit.Desktop
	}
	if opt.Timeout <= 0 {
		opt.Timeout = 30 * time.Second
	}
	expr, err := probeScript(opt.Probes)
	if err != nil {
		return nil, fmt.Errorf("browsercheck: %w", err)
	}

	taskCtx, cancelBrowser := chromedp.NewContext(c.allocator)
	defer cancelBrowser()
	if ctx != nil {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithCancel(taskCtx)
		go func() {
			select {
			case <-ctx.Done():
				cancel()
			case <-taskCtx.Done():
			}
		}()
		defer cancel()
	}
	taskCtx, cancelTimeout := context.WithTimeout(taskCtx, opt.Timeout)
	defer cancelTimeout()

	var emu []chromedp.EmulateViewportOption
	if opt.Mobile {
		emu = append(emu, chromedp.EmulateMobile, chromedp.EmulateTouch, chromedp.EmulatePortrait)
	}
	res := &Result{}
	start := time.Now()
	err = chromedp.Run(taskCtx,
		chromedp.EmulateViewport(int64(opt.Viewport.Width), int64(opt.Viewport.Height), emu...),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if !opt.Mobile {
				return nil
			}
			return emulation.SetUserAgentOverride("Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile/15E148").Do(ctx)
		}),
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(opt.Settle),
		chromedp.Evaluate(expr, res),
	)
	if err != nil {
		return nil, fmt.Errorf("browsercheck: %s: %w", target, err)
	}
	res.Viewport = opt.Viewport
	c.logger.WithFields(logrus.Fields{
		"url":      target,
		"width":    opt.Viewport.Width,
		"state":    res.WidgetState,
		"injected": len(res.Injected),
		"elapsed":  time.Since(start).Round(time.Millisecond),
	}).Info("browser check done")
	return res, nil
}

// HasClass reports whether the body carried class.
func (r *Result) HasClass(class string) bool {
	for _, c := range r.BodyClasses {
		if c == class {
			return true
		}
	}
	return false
}
