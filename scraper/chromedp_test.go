package scraper

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

const portalPage = `<!DOCTYPE html>
<html><body>
<input id="account" type="text">
<button id="go" type="button" onclick="document.getElementById('out').innerText = 'Cuenta\n' + document.getElementById('account').value">Consultar</button>
<div id="out"></div>
</body></html>`

// findChrome returns a local Chrome binary or skips the test.
func findChrome(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping browser test in short mode (requires Chrome)")
	}
	if path := os.Getenv("CHROME_PATH"); path != "" {
		return path
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("Skipping browser test, no Chrome binary found")
	return ""
}

func TestChromeSession_SurvivesLaunchContext(t *testing.T) {
	execPath := findChrome(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(portalPage))
	}))
	defer srv.Close()

	launchCtx, cancelLaunch := context.WithTimeout(context.Background(), 30*time.Second)
	session, err := NewChromeLauncher().Launch(launchCtx, LaunchOptions{Headless: true, ExecPath: execPath})
	cancelLaunch()
	require.NoError(t, err)
	defer func() { assert.NoError(t, session.Close()) }()

	// The launch context is gone; the browser must still be usable.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, session.Navigate(ctx, srv.URL))
	require.NoError(t, session.WaitIdle(ctx, 5*time.Second))

	ok, err := session.Exists(ctx, Locator{Query: "#account"})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = session.Exists(ctx, Locator{Query: `//button[@id="go"]`, Kind: XPath})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = session.Exists(ctx, Locator{Query: "#missing"})
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, session.Type(ctx, Locator{Query: "#account"}, "1000123456"))
	require.NoError(t, session.Click(ctx, Locator{Query: "#go"}))

	text, err := session.BodyText(ctx)
	require.NoError(t, err)
	assert.Contains(t, text, "Cuenta\n1000123456")
	assert.Equal(t, "1000123456", Extract(text, []FieldSpec{Field("account", `^Cuenta$`)})["account"])

	// A cancelled action leaves the tab alive for the next one.
	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	assert.Error(t, session.Sleep(cancelled, time.Second))

	shot, err := session.Screenshot(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, shot)
}

func TestChromeLauncher_StartupBoundedByContext(t *testing.T) {
	execPath := findChrome(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewChromeLauncher().Launch(ctx, LaunchOptions{Headless: true, ExecPath: execPath})
	assert.ErrorIs(t, err, context.Canceled)
}
