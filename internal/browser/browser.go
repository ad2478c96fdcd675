// Package browser defines the capabilities the bot needs from an automated
// browser, so platform scripts can be driven by Chrome in production and by a
// scripted fake DOM in tests.
package browser

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Sentinel errors for browser operations.
var (
	ErrTimeout        = errors.New("timed out waiting for element")
	ErrNotFound       = errors.New("element not found")
	ErrSessionClosed  = errors.New("browser session closed")
	ErrLauncherClosed = errors.New("browser launcher shut down")
)

// Page is a document (or an iframe's document) the bot can act on.
// Selectors starting with "/" or "(" are XPath, everything else is CSS.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	// Exists reports whether the selector currently matches, without waiting.
	Exists(ctx context.Context, selector string) (bool, error)
	// Frame waits for an iframe and returns a Page scoped to its document.
	Frame(ctx context.Context, selector string, timeout time.Duration) (Page, error)
}

// Session is one isolated browsing context with a single page.
type Session interface {
	Page() Page
	// Done is closed when the browsing context goes away for any reason.
	Done() <-chan struct{}
	// Close closes the browsing context. Safe to call more than once.
	Close() error
}

// Options shape a new session.
type Options struct {
	// Origin receives the camera and microphone grants.
	Origin    string
	UserAgent string
	Width     int
	Height    int
}

// Launcher starts browsing sessions and owns the browser processes behind them.
type Launcher interface {
	Launch(ctx context.Context, opts Options) (Session, error)
	// Shutdown releases every browser process started by the launcher.
	Shutdown() error
}

// DefaultUserAgent is a desktop Chrome user agent.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// IsXPath reports whether the selector should be evaluated as XPath.
func IsXPath(selector string) bool {
	return strings.HasPrefix(selector, "/") || strings.HasPrefix(selector, "(")
}
