package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/chromedp"
)

const (
	// existsTimeout bounds a single non-waiting DOM query.
	existsTimeout = 3 * time.Second

	defaultStartTimeout = 30 * time.Second
)

// ChromeConfig configures the Chrome processes started by ChromeLauncher.
type ChromeConfig struct {
	ExecPath string
	Headless bool
	// Display is the X display Chrome renders into, e.g. ":99".
	Display string
	// StartTimeout bounds browser startup. Defaults to 30s.
	StartTimeout time.Duration
}

// ChromeLauncher launches Chrome through chromedp. Each session gets its own
// browser process so a failed attempt leaves nothing behind for the next one.
type ChromeLauncher struct {
	cfg ChromeConfig

	mu      sync.Mutex
	cancels []context.CancelFunc
	closed  bool
}

// NewChromeLauncher creates a launcher.
func NewChromeLauncher(cfg ChromeConfig) *ChromeLauncher {
	return &ChromeLauncher{cfg: cfg}
}

func (l *ChromeLauncher) startTimeout() time.Duration {
	if l.cfg.StartTimeout > 0 {
		return l.cfg.StartTimeout
	}
	return defaultStartTimeout
}

func (l *ChromeLauncher) allocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	width, height := opts.Width, opts.Height
	if width == 0 || height == 0 {
		width, height = 1280, 720
	}

	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts,
		chromedp.Flag("headless", l.cfg.Headless),
		chromedp.Flag("incognito", true),
		chromedp.Flag("disable-features", "IsolateOrigins,site-per-process"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("use-fake-ui-for-media-stream", true),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
		chromedp.NoSandbox,
		chromedp.UserAgent(ua),
		chromedp.WindowSize(width, height),
	)
	if l.cfg.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	if l.cfg.Display != "" {
		allocOpts = append(allocOpts, chromedp.Env("DISPLAY="+l.cfg.Display))
	}
	return allocOpts
}

// Launch starts a browser and opens a blank page with media permissions granted.
func (l *ChromeLauncher) Launch(ctx context.Context, opts Options) (Session, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrLauncherClosed
	}
	l.mu.Unlock()

	// The browser must survive cancellation of the run so teardown can still
	// stop the recording and close the page in order.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), l.allocatorOptions(opts)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	var actions []chromedp.Action
	if opts.Origin != "" {
		actions = append(actions, cdpbrowser.GrantPermissions([]cdpbrowser.PermissionType{
			cdpbrowser.PermissionTypeAudioCapture,
			cdpbrowser.PermissionTypeVideoCapture,
		}).WithOrigin(opts.Origin))
	}

	// The first Run allocates the browser and ties the process to its ctx,
	// so it must get tabCtx itself. Start is bounded from the outside instead.
	var timedOut atomic.Bool
	startTimer := time.AfterFunc(l.startTimeout(), func() {
		timedOut.Store(true)
		allocCancel()
	})
	stopOnCancel := context.AfterFunc(ctx, allocCancel)
	err := chromedp.Run(tabCtx, actions...)
	startTimer.Stop()
	stopOnCancel()
	if err != nil || tabCtx.Err() != nil {
		tabCancel()
		allocCancel()
		switch {
		case timedOut.Load():
			return nil, fmt.Errorf("start browser: timed out after %s", l.startTimeout())
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case err == nil:
			err = tabCtx.Err()
		}
		return nil, fmt.Errorf("start browser: %w", err)
	}

	l.mu.Lock()
	l.cancels = append(l.cancels, allocCancel)
	l.mu.Unlock()

	s := &chromeSession{
		tabCtx:    tabCtx,
		tabCancel: tabCancel,
		done:      make(chan struct{}),
	}
	s.page = &chromePage{tabCtx: tabCtx}

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch ev.(type) {
		case *inspector.EventDetached, *inspector.EventTargetCrashed:
			s.markDone()
		}
	})
	go func() {
		<-tabCtx.Done()
		s.markDone()
	}()

	return s, nil
}

// Shutdown kills every browser process this launcher started.
func (l *ChromeLauncher) Shutdown() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	for _, cancel := range l.cancels {
		cancel()
	}
	l.cancels = nil
	return nil
}

type chromeSession struct {
	tabCtx    context.Context
	tabCancel context.CancelFunc
	page      *chromePage

	doneOnce  sync.Once
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func (s *chromeSession) Page() Page            { return s.page }
func (s *chromeSession) Done() <-chan struct{} { return s.done }

func (s *chromeSession) markDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *chromeSession) Close() error {
	s.closeOnce.Do(func() {
		err := chromedp.Cancel(s.tabCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.closeErr = fmt.Errorf("close page: %w", err)
		}
		s.tabCancel()
		s.markDone()
	})
	return s.closeErr
}

type chromePage struct {
	tabCtx context.Context
	// root scopes queries to an iframe document when set.
	root *cdp.Node
}

func (p *chromePage) queryOpts(selector string) []chromedp.QueryOption {
	if p.root != nil {
		return []chromedp.QueryOption{chromedp.ByQuery, chromedp.FromNode(p.root)}
	}
	if IsXPath(selector) {
		return []chromedp.QueryOption{chromedp.BySearch}
	}
	return []chromedp.QueryOption{chromedp.ByQuery}
}

// run executes actions on the tab while honouring the caller's ctx and an
// optional step timeout.
func (p *chromePage) run(ctx context.Context, timeout time.Duration, target string, actions ...chromedp.Action) error {
	if p.tabCtx.Err() != nil {
		return ErrSessionClosed
	}

	runCtx, cancel := context.WithCancel(p.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, timeout)
		defer cancelTimeout()
	}

	err := chromedp.Run(runCtx, actions...)
	switch {
	case err == nil:
		return nil
	case p.tabCtx.Err() != nil:
		return ErrSessionClosed
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %s", ErrTimeout, target)
	default:
		return fmt.Errorf("%s: %w", target, err)
	}
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, 0, url, chromedp.Navigate(url))
}

func (p *chromePage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return p.run(ctx, timeout, selector, chromedp.WaitVisible(selector, p.queryOpts(selector)...))
}

func (p *chromePage) Fill(ctx context.Context, selector, value string) error {
	opts := p.queryOpts(selector)
	return p.run(ctx, existsTimeout, selector,
		chromedp.Focus(selector, opts...),
		chromedp.SetValue(selector, "", opts...),
		chromedp.SendKeys(selector, value, opts...),
	)
}

func (p *chromePage) Click(ctx context.Context, selector string) error {
	opts := append(p.queryOpts(selector), chromedp.NodeVisible)
	return p.run(ctx, existsTimeout, selector, chromedp.Click(selector, opts...))
}

func (p *chromePage) Exists(ctx context.Context, selector string) (bool, error) {
	var nodes []*cdp.Node
	opts := append(p.queryOpts(selector), chromedp.AtLeast(0))
	if err := p.run(ctx, existsTimeout, selector, chromedp.Nodes(selector, &nodes, opts...)); err != nil {
		return false, err
	}
	return len(nodes) > 0, nil
}

func (p *chromePage) Frame(ctx context.Context, selector string, timeout time.Duration) (Page, error) {
	var nodes []*cdp.Node
	opts := append(p.queryOpts(selector), chromedp.NodeReady)
	if err := p.run(ctx, timeout, selector, chromedp.Nodes(selector, &nodes, opts...)); err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, selector)
	}
	return &chromePage{tabCtx: p.tabCtx, root: nodes[0]}, nil
}
