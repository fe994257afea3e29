// Package google implements component 4.L: the default AccessTokenSource,
// backed by an OAuth2 installed-app flow against Google's endpoints, with
// an out-of-band redirect: the user pastes the verification code. It is the only package in this repository that performs
// interactive auth; the Runtime Session Core never imports it directly,
// only the httpclient.AccessTokenSource interface it satisfies.
package google

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/atotto/clipboard"
	"github.com/pkg/browser"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"
	"golang.org/x/term"
)

// Scopes requested for Colab/Drive access.
var Scopes = []string{
	"https://www.googleapis.com/auth/drive.file",
	"https://www.googleapis.com/auth/colab-compute",
}

const tokenFileName = "token.json"

// TokenSource implements httpclient.AccessTokenSource with an installed-app
// OAuth2 flow. Concurrent Get calls coalesce into a single refresh or
// interactive flow (spec.md §5: "Access token source: called under a mutex
// that coalesces concurrent refreshes").
type TokenSource struct {
	oauthCfg *oauth2.Config
	authDir  string
	log      *logrus.Entry

	group singleflight.Group

	mu     sync.Mutex
	cached *oauth2.Token
}

// New builds a TokenSource. clientID/clientSecret identify this CLI as an
// OAuth2 installed application; authDir is where the refresh token
// persists (0600).
func New(clientID, clientSecret, authDir string, logger *logrus.Entry) *TokenSource {
	return &TokenSource{
		oauthCfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       Scopes,
			Endpoint:     google.Endpoint,
			RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
		},
		authDir: authDir,
		log:     logger,
	}
}

// Get implements httpclient.AccessTokenSource.
func (t *TokenSource) Get(ctx context.Context, forceRefresh bool) (string, error) {
	v, err, _ := t.group.Do("token", func() (any, error) {
		return t.getLocked(ctx, forceRefresh)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Valid reports whether a cached token exists and is still valid, without
// refreshing or running the interactive consent flow. Used by `colab auth
// --validate` to check credentials without side effects.
func (t *TokenSource) Valid() bool {
	tok := t.loadCached()
	return tok != nil && tok.Valid()
}

func (t *TokenSource) getLocked(ctx context.Context, forceRefresh bool) (string, error) {
	tok := t.loadCached()

	if !forceRefresh && tok != nil && tok.Valid() {
		return tok.AccessToken, nil
	}

	if tok != nil && tok.RefreshToken != "" {
		refreshed, err := t.oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: tok.RefreshToken}).Token()
		if err == nil {
			t.persist(refreshed)
			return refreshed.AccessToken, nil
		}
		t.log.Warnf("auth/google: refresh failed, falling back to interactive flow: %v", err)
	}

	fresh, err := t.interactiveFlow(ctx)
	if err != nil {
		return "", fmt.Errorf("auth/google: interactive flow failed: %w", err)
	}
	t.persist(fresh)
	return fresh.AccessToken, nil
}

// interactiveFlow implements the installed-app consent flow described in
// spec.md §4.L: open the consent URL in a browser, fall back to printing
// it (and offering a clipboard copy) for headless sessions, then read the
// verification code without echoing it to the terminal.
func (t *TokenSource) interactiveFlow(ctx context.Context) (*oauth2.Token, error) {
	authURL := t.oauthCfg.AuthCodeURL("state", oauth2.AccessTypeOffline)

	if err := browser.OpenURL(authURL); err != nil {
		t.log.Infof("auth/google: could not open a browser automatically (%v); visit this URL to authorize:", err)
		fmt.Println(authURL)
		if copyErr := clipboard.WriteAll(authURL); copyErr == nil {
			fmt.Println("(the URL has been copied to your clipboard)")
		}
	} else {
		fmt.Println("A browser window has been opened to complete authorization.")
	}

	fmt.Print("Paste the verification code: ")
	code, err := readCode()
	if err != nil {
		return nil, err
	}

	return t.oauthCfg.Exchange(ctx, code)
}

// readCode reads the verification code without echoing it when stdin is a
// terminal (golang.org/x/term), falling back to a plain line read
// otherwise (e.g. piped input in tests or scripted auth).
func readCode() (string, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		data, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read verification code: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read verification code: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (t *TokenSource) loadCached() *oauth2.Token {
	t.mu.Lock()
	if t.cached != nil {
		defer t.mu.Unlock()
		return t.cached
	}
	t.mu.Unlock()

	path := filepath.Join(t.authDir, tokenFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		t.log.Warnf("auth/google: failed to parse cached token, discarding: %v", err)
		return nil
	}
	t.mu.Lock()
	t.cached = &tok
	t.mu.Unlock()
	return &tok
}

func (t *TokenSource) persist(tok *oauth2.Token) {
	t.mu.Lock()
	t.cached = tok
	t.mu.Unlock()

	if err := os.MkdirAll(t.authDir, 0o700); err != nil {
		t.log.Warnf("auth/google: failed to create auth directory: %v", err)
		return
	}
	data, err := json.Marshal(tok)
	if err != nil {
		t.log.Warnf("auth/google: failed to encode token: %v", err)
		return
	}
	path := filepath.Join(t.authDir, tokenFileName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.log.Warnf("auth/google: failed to persist token: %v", err)
	}
}

