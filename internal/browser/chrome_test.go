package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lobbyHTML = `<!doctype html>
<html><body>
<input id="name" type="text">
<button id="join" onclick="document.body.setAttribute('data-joined', '1')">Join</button>
</body></html>`

func findChrome(t *testing.T) string {
	t.Helper()
	if p := os.Getenv("MEETBOT_CHROME"); p != "" {
		return p
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skip("no Chrome binary found")
	return ""
}

func TestLaunchAfterShutdown(t *testing.T) {
	l := NewChromeLauncher(ChromeConfig{Headless: true})
	require.NoError(t, l.Shutdown())

	_, err := l.Launch(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrLauncherClosed)
}

func TestChromeSessionOutlivesLaunch(t *testing.T) {
	chrome := findChrome(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(lobbyHTML))
	}))
	defer srv.Close()

	l := NewChromeLauncher(ChromeConfig{ExecPath: chrome, Headless: true})
	defer l.Shutdown()

	launchCtx, cancel := context.WithCancel(context.Background())
	s, err := l.Launch(launchCtx, Options{Origin: srv.URL})
	require.NoError(t, err)
	// The run context going away must not take the browser with it.
	cancel()

	select {
	case <-s.Done():
		t.Fatal("browser session ended right after Launch")
	case <-time.After(300 * time.Millisecond):
	}

	ctx, cancelOps := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelOps()

	page := s.Page()
	require.NoError(t, page.Navigate(ctx, srv.URL))
	require.NoError(t, page.WaitVisible(ctx, "#name", 10*time.Second))
	require.NoError(t, page.Fill(ctx, "#name", "Meeting Bot"))
	require.NoError(t, page.Click(ctx, "#join"))

	joined, err := page.Exists(ctx, "body[data-joined='1']")
	require.NoError(t, err)
	assert.True(t, joined)

	missing, err := page.Exists(ctx, "#leave")
	require.NoError(t, err)
	assert.False(t, missing)

	require.NoError(t, s.Close())
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Done not closed after Close")
	}

	_, err = page.Exists(ctx, "#name")
	assert.ErrorIs(t, err, ErrSessionClosed)
}
