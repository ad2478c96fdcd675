// Package browsertest provides a scripted in-memory DOM that implements the
// browser interfaces for tests.
package browsertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fentz26/meetbot/internal/browser"
)

const pollInterval = 2 * time.Millisecond

// Page is a fake document. Elements are plain selector strings that are
// either visible or not; scripts react to clicks and polls.
type Page struct {
	mu        sync.Mutex
	visible   map[string]bool
	values    map[string]string
	clicks    []string
	navs      []string
	frames    map[string]*Page
	onClick   map[string]func(*Page)
	onExists  map[string]func(n int, p *Page)
	existsN   map[string]int
	onWait    map[string]func(n int, p *Page)
	waitN     map[string]int
	done      <-chan struct{}
	navigateE error
}

// NewPage returns an empty page.
func NewPage() *Page {
	return &Page{
		visible:  make(map[string]bool),
		values:   make(map[string]string),
		frames:   make(map[string]*Page),
		onClick:  make(map[string]func(*Page)),
		onExists: make(map[string]func(int, *Page)),
		existsN:  make(map[string]int),
		onWait:   make(map[string]func(int, *Page)),
		waitN:    make(map[string]int),
	}
}

// Show makes selectors visible.
func (p *Page) Show(selectors ...string) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range selectors {
		p.visible[s] = true
	}
	return p
}

// Hide removes selectors from the page.
func (p *Page) Hide(selectors ...string) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range selectors {
		delete(p.visible, s)
	}
	return p
}

// ShowAfter makes a selector visible after d.
func (p *Page) ShowAfter(selector string, d time.Duration) *Page {
	time.AfterFunc(d, func() { p.Show(selector) })
	return p
}

// OnClick registers a script that runs after selector is clicked.
func (p *Page) OnClick(selector string, fn func(*Page)) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClick[selector] = fn
	return p
}

// OnExists registers a script that runs on every Exists poll of selector,
// receiving the 1-based poll count.
func (p *Page) OnExists(selector string, fn func(n int, p *Page)) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onExists[selector] = fn
	return p
}

// OnWait registers a script that runs at the start of every WaitVisible
// on selector, receiving the 1-based call count.
func (p *Page) OnWait(selector string, fn func(n int, p *Page)) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onWait[selector] = fn
	return p
}

// FailNavigate makes Navigate return err.
func (p *Page) FailNavigate(err error) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigateE = err
	return p
}

// AddFrame adds a visible iframe and returns its document.
func (p *Page) AddFrame(selector string) *Page {
	child := NewPage()
	p.mu.Lock()
	p.frames[selector] = child
	p.visible[selector] = true
	child.done = p.done
	p.mu.Unlock()
	return child
}

// Value returns what was filled into selector.
func (p *Page) Value(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.values[selector]
}

// Clicks returns the selectors clicked so far, in order.
func (p *Page) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

// Navigations returns the URLs navigated to.
func (p *Page) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navs...)
}

// WaitCalls returns how often WaitVisible was called for selector.
func (p *Page) WaitCalls(selector string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitN[selector]
}

// ExistsCalls returns how often selector was polled.
func (p *Page) ExistsCalls(selector string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.existsN[selector]
}

func (p *Page) bind(done <-chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = done
	for _, f := range p.frames {
		f.bind(done)
	}
}

func (p *Page) closed() bool {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return true
	default:
		return false
	}
}

func (p *Page) isVisible(selector string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible[selector]
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if p.closed() {
		return browser.ErrSessionClosed
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navs = append(p.navs, url)
	return p.navigateE
}

func (p *Page) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	p.mu.Lock()
	p.waitN[selector]++
	n := p.waitN[selector]
	fn := p.onWait[selector]
	p.mu.Unlock()
	if fn != nil {
		fn(n, p)
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if p.closed() {
			return browser.ErrSessionClosed
		}
		if p.isVisible(selector) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("%w: %s", browser.ErrTimeout, selector)
		case <-ticker.C:
		}
	}
}

func (p *Page) Fill(ctx context.Context, selector, value string) error {
	if p.closed() {
		return browser.ErrSessionClosed
	}
	if !p.isVisible(selector) {
		return fmt.Errorf("%w: %s", browser.ErrNotFound, selector)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[selector] = value
	return nil
}

func (p *Page) Click(ctx context.Context, selector string) error {
	if p.closed() {
		return browser.ErrSessionClosed
	}
	if !p.isVisible(selector) {
		return fmt.Errorf("%w: %s", browser.ErrNotFound, selector)
	}
	p.mu.Lock()
	p.clicks = append(p.clicks, selector)
	fn := p.onClick[selector]
	p.mu.Unlock()

	if fn != nil {
		fn(p)
	}
	return nil
}

func (p *Page) Exists(ctx context.Context, selector string) (bool, error) {
	if p.closed() {
		return false, browser.ErrSessionClosed
	}
	p.mu.Lock()
	p.existsN[selector]++
	n := p.existsN[selector]
	fn := p.onExists[selector]
	p.mu.Unlock()

	if fn != nil {
		fn(n, p)
	}
	return p.isVisible(selector), nil
}

func (p *Page) Frame(ctx context.Context, selector string, timeout time.Duration) (browser.Page, error) {
	if err := p.WaitVisible(ctx, selector, timeout); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	child, ok := p.frames[selector]
	if !ok {
		return nil, fmt.Errorf("%w: %s", browser.ErrNotFound, selector)
	}
	return child, nil
}

// Session is a fake browsing context around a Page.
type Session struct {
	page *Page

	mu        sync.Mutex
	done      chan struct{}
	destroyed bool
	closes    int
}

// NewSession wraps page in a live session.
func NewSession(page *Page) *Session {
	s := &Session{page: page, done: make(chan struct{})}
	page.bind(s.done)
	return s
}

func (s *Session) Page() browser.Page    { return s.page }
func (s *Session) Done() <-chan struct{} { return s.done }

// FakePage returns the scripted page behind the session.
func (s *Session) FakePage() *Page { return s.page }

// Close closes the session; repeated calls are counted but harmless.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	s.destroyLocked()
	return nil
}

// Destroy simulates the browser going away underneath the bot.
func (s *Session) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyLocked()
}

func (s *Session) destroyLocked() {
	if !s.destroyed {
		s.destroyed = true
		close(s.done)
	}
}

// Closes returns how many times Close was called.
func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// Launcher hands out sessions built by Script, one fresh page per launch.
type Launcher struct {
	// Script builds the page for each launch.
	Script func() *Page
	// LaunchErr, when set, fails every launch.
	LaunchErr error

	mu        sync.Mutex
	sessions  []*Session
	options   []browser.Options
	shutdowns int
}

// NewLauncher creates a launcher that builds pages with script.
func NewLauncher(script func() *Page) *Launcher {
	return &Launcher{Script: script}
}

func (l *Launcher) Launch(ctx context.Context, opts browser.Options) (browser.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.options = append(l.options, opts)
	if l.LaunchErr != nil {
		return nil, l.LaunchErr
	}
	page := NewPage()
	if l.Script != nil {
		page = l.Script()
	}
	s := NewSession(page)
	l.sessions = append(l.sessions, s)
	return s, nil
}

func (l *Launcher) Shutdown() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.shutdowns++
	return nil
}

// Sessions returns every session launched so far.
func (l *Launcher) Sessions() []*Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Session(nil), l.sessions...)
}

// Options returns the options passed to each launch.
func (l *Launcher) Options() []browser.Options {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]browser.Options(nil), l.options...)
}

// Shutdowns returns how many times Shutdown was called.
func (l *Launcher) Shutdowns() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.shutdowns
}
