package integration

import (
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	authgateBinary = "../cmd/authgate/authgate"
	gatewayAddr    = "127.0.0.1:18000"
	gatewayURL     = "http://" + gatewayAddr
	cookieSecret   = "integration-cookie-secret-0123456789abcdef"
)

// trace logs a message if TRACE environment variable is set
func trace(t *testing.T, format string, args ...any) {
	if os.Getenv("TRACE") == "1" {
		t.Logf("TRACE: "+format, args...)
	}
}

// gatewayEnv returns the environment for a gateway signing users in
// through idp and admitting allowedEmails.
func gatewayEnv(idp *FakeIdPServer, allowedEmails string) []string {
	return []string{
		"AUTHGATE_ADDR=" + gatewayAddr,
		"AUTHGATE_BASE_URL=" + gatewayURL,
		"AUTHGATE_CLIENT_ID=integration-client",
		"AUTHGATE_CLIENT_SECRET=integration-secret",
		"AUTHGATE_COOKIE_SECRET=" + cookieSecret,
		"AUTHGATE_AUTH_URL=" + idp.URL() + "/auth",
		"AUTHGATE_TOKEN_URL=" + idp.URL() + "/token",
		"AUTHGATE_USERINFO_URL=" + idp.URL() + "/userinfo",
		"ALLOWED_EMAILS=" + allowedEmails,
	}
}

// startAuthGate starts the gateway binary and waits until it serves requests
func startAuthGate(t *testing.T, env ...string) {
	t.Helper()
	cmd := exec.Command(authgateBinary)
	cmd.Env = append(os.Environ(), env...)

	if logFile := os.Getenv("AUTHGATE_TEST_LOG_FILE"); logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			cmd.Stderr = f
			cmd.Stdout = f
			t.Cleanup(func() { f.Close() })
		}
	}

	require.NoError(t, cmd.Start(), "failed to start authgate")
	t.Cleanup(func() { stopAuthGate(cmd) })
	waitForAuthGate(t)
}

// stopAuthGate stops the gateway gracefully, killing it after 5 seconds
func stopAuthGate(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}

	if err := cmd.Process.Signal(syscall.SIGINT); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}
}

func waitForAuthGate(t *testing.T) {
	t.Helper()
	for i := 0; i < 50; i++ {
		resp, err := http.Get(gatewayURL + "/")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatal("authgate failed to become ready after 5 seconds")
}

// Browser is an HTTP client that keeps cookies and never follows redirects,
// so each hop of the sign-in flow can be inspected.
type Browser struct {
	t      *testing.T
	client *http.Client
}

func NewBrowser(t *testing.T) *Browser {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &Browser{
		t: t,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
			Timeout: 10 * time.Second,
		},
	}
}

// Get fetches target (absolute or relative to the gateway) and returns the
// status, Location header and body.
func (b *Browser) Get(target string) (int, string, string) {
	b.t.Helper()
	if strings.HasPrefix(target, "/") {
		target = gatewayURL + target
	}
	trace(b.t, "GET %s", target)

	resp, err := b.client.Get(target)
	require.NoError(b.t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	return resp.StatusCode, resp.Header.Get("Location"), string(body)
}

// Cookie returns the value of the named gateway cookie, or ""
func (b *Browser) Cookie(name string) string {
	u, _ := url.Parse(gatewayURL)
	for _, c := range b.client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// SignIn walks /signin through the fake provider back to /fetch-user-info
// and returns that final response.
func (b *Browser) SignIn() (int, string, string) {
	b.t.Helper()

	status, location, _ := b.Get("/signin")
	require.Equal(b.t, http.StatusFound, status)

	status, location, _ = b.Get(location)
	require.Equal(b.t, http.StatusFound, status, "fake provider should redirect back")

	status, location, _ = b.Get(location)
	require.Equal(b.t, http.StatusFound, status, "callback should redirect")
	require.Equal(b.t, "/fetch-user-info", location)

	return b.Get(location)
}
