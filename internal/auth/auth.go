// Package auth provides OAuth2 access tokens for the Drive storage backend.
//
// The installed-app flow runs once: the operator opens the printed URL,
// approves access and pastes the returned code (or the whole redirected URL).
// The resulting token, including its refresh token, is cached on disk and
// refreshed transparently afterwards.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"

	"github.com/1ureka/drivetun/internal/util"
)

// Prompter asks the operator to visit authURL and returns what they paste.
type Prompter interface {
	Prompt(authURL string) (string, error)
}

// PromptFunc adapts a function to Prompter.
type PromptFunc func(authURL string) (string, error)

func (f PromptFunc) Prompt(authURL string) (string, error) { return f(authURL) }

// TerminalPrompter prompts on the terminal with pterm.
var TerminalPrompter Prompter = PromptFunc(func(authURL string) (string, error) {
	pterm.Info.Println("Open the following URL in a browser and approve access:")
	pterm.Println(authURL)
	pterm.Println()
	return pterm.DefaultInteractiveTextInput.
		WithDefaultText("Authorization code or redirected URL").
		Show()
})

// LoadConfig reads an installed-app client secret file.
func LoadConfig(secretFile string) (*oauth2.Config, error) {
	data, err := os.ReadFile(secretFile)
	if err != nil {
		return nil, fmt.Errorf("auth: read client secret: %w", err)
	}
	cfg, err := google.ConfigFromJSON(data, drive.DriveScope)
	if err != nil {
		return nil, fmt.Errorf("auth: parse client secret: %w", err)
	}
	return cfg, nil
}

// LoadToken reads a cached token. A missing file yields an error matching
// fs.ErrNotExist.
func LoadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("auth: decode token cache %s: %w", path, err)
	}
	return tok, nil
}

// SaveToken writes tok to path, readable by the owner only.
func SaveToken(path string, tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("auth: write token cache: %w", err)
	}
	return nil
}

// Authorize runs the authorization-code flow with PKCE and returns the
// exchanged token.
func Authorize(ctx context.Context, cfg *oauth2.Config, p Prompter) (*oauth2.Token, error) {
	if p == nil {
		p = TerminalPrompter
	}

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	authURL := cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
	)

	raw, err := p.Prompt(authURL)
	if err != nil {
		return nil, fmt.Errorf("auth: prompt: %w", err)
	}

	code, err := extractCode(raw, state)
	if err != nil {
		return nil, err
	}

	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("auth: exchange authorization code: %w", err)
	}
	return tok, nil
}

// extractCode accepts either a bare code or the redirected URL carrying it.
func extractCode(raw, state string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("auth: empty authorization code")
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return raw, nil
	}

	q := u.Query()
	if got := q.Get("state"); got != "" && got != state {
		return "", errors.New("auth: state mismatch in redirected URL")
	}
	if e := q.Get("error"); e != "" {
		return "", fmt.Errorf("auth: authorization denied: %s", e)
	}
	code := q.Get("code")
	if code == "" {
		return "", errors.New("auth: redirected URL carries no code")
	}
	return code, nil
}

// Source is a token source that refreshes on demand and keeps the on-disk
// cache in sync with the latest token.
type Source struct {
	path string

	mu   sync.Mutex
	base oauth2.TokenSource
	last string // access token last written to disk
}

// NewSource loads the cached token at tokenFile, running Authorize when no
// cache exists yet.
func NewSource(ctx context.Context, cfg *oauth2.Config, tokenFile string, p Prompter) (*Source, error) {
	tok, err := LoadToken(tokenFile)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		util.LogInfo("no cached token at %s, starting authorization", tokenFile)
		if tok, err = Authorize(ctx, cfg, p); err != nil {
			return nil, err
		}
		if err := SaveToken(tokenFile, tok); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}

	return &Source{
		path: tokenFile,
		base: cfg.TokenSource(ctx, tok),
		last: tok.AccessToken,
	}, nil
}

// Token implements oauth2.TokenSource.
func (s *Source) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, err := s.base.Token()
	if err != nil {
		return nil, fmt.Errorf("auth: refresh token: %w", err)
	}
	if tok.AccessToken != s.last {
		if err := SaveToken(s.path, tok); err != nil {
			util.LogWarning("failed to update token cache: %v", err)
		} else {
			util.LogDebug("token refreshed, cache updated")
		}
		s.last = tok.AccessToken
	}
	return tok, nil
}

// ValidToken returns a currently valid access token.
func (s *Source) ValidToken() (string, error) {
	tok, err := s.Token()
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}
