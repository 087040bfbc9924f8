package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// ChromeLauncher starts headless Chrome sessions through chromedp. Every
// session runs in its own browser process.
type ChromeLauncher struct{}

func NewChromeLauncher() *ChromeLauncher {
	return &ChromeLauncher{}
}

func (l *ChromeLauncher) Launch(ctx context.Context, opts LaunchOptions) (Session, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.NoSandbox,
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.DisableGPU,
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	// The session owns its browser; only Close tears it down.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &chromeSession{tabCtx: tabCtx, tabCancel: tabCancel, allocCancel: allocCancel}
	if err := s.start(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	return s, nil
}

type chromeSession struct {
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
}

// start allocates the browser and opens the tab. The allocating Run must get
// the tab context itself: chromedp ties the Chrome process to the context of
// the first Run, so a derived context that is later cancelled kills it. ctx
// only bounds how long we wait; giving up tears the allocator down.
func (s *chromeSession) start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(s.tabCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		s.tabCancel()
		s.allocCancel()
		<-done
		return ctx.Err()
	}
}

// run executes actions on an already started tab, bounded by the caller's
// ctx. Must not be used for the first Run, see start.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.tabCtx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func by(loc Locator) chromedp.QueryOption {
	if loc.Kind == XPath {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url))
}

func (s *chromeSession) Exists(ctx context.Context, loc Locator) (bool, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(loc.Query, &nodes, by(loc), chromedp.AtLeast(0))); err != nil {
		return false, err
	}
	return len(nodes) > 0, nil
}

func (s *chromeSession) Click(ctx context.Context, loc Locator) error {
	return s.run(ctx, chromedp.Click(loc.Query, by(loc)))
}

func (s *chromeSession) SelectValue(ctx context.Context, loc Locator, value string) error {
	return s.run(ctx, chromedp.SetValue(loc.Query, value, by(loc)))
}

func (s *chromeSession) Clear(ctx context.Context, loc Locator) error {
	return s.run(ctx, chromedp.Clear(loc.Query, by(loc)))
}

func (s *chromeSession) Type(ctx context.Context, loc Locator, text string) error {
	return s.run(ctx,
		chromedp.Focus(loc.Query, by(loc)),
		chromedp.SendKeys(loc.Query, text, by(loc)),
	)
}

func (s *chromeSession) PressEnter(ctx context.Context, loc Locator) error {
	return s.run(ctx, chromedp.SendKeys(loc.Query, kb.Enter, by(loc)))
}

func (s *chromeSession) WaitIdle(ctx context.Context, timeout time.Duration) error {
	err := s.run(ctx, chromedp.Poll(`document.readyState === "complete"`, nil,
		chromedp.WithPollingTimeout(timeout)))
	if errors.Is(err, chromedp.ErrPollingTimeout) {
		return nil
	}
	return err
}

func (s *chromeSession) Sleep(ctx context.Context, d time.Duration) error {
	return s.run(ctx, chromedp.Sleep(d))
}

func (s *chromeSession) BodyText(ctx context.Context) (string, error) {
	var text string
	err := s.run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text))
	return text, err
}

func (s *chromeSession) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *chromeSession) Close() error {
	err := chromedp.Cancel(s.tabCtx)
	s.tabCancel()
	s.allocCancel()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
