// Package garmin resumes a persisted Garmin Connect session and uploads
// activity files.
package garmin

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lucasjlepore/fitsync/pipeline"
)

var (
	// ErrNoSession means no stored token was found.
	ErrNoSession = errors.New("no stored garmin session")
	// ErrSessionExpired means the stored access token is past its expiry.
	ErrSessionExpired = errors.New("garmin session expired")
)

// TokenFile is the OAuth2 token file name in a garth token directory.
const TokenFile = "oauth2_token.json"

// OAuth2Token mirrors the token layout written by garth.
type OAuth2Token struct {
	Scope                 string `json:"scope"`
	JTI                   string `json:"jti"`
	TokenType             string `json:"token_type"`
	AccessToken           string `json:"access_token"`
	RefreshToken          string `json:"refresh_token"`
	ExpiresIn             int64  `json:"expires_in"`
	ExpiresAt             int64  `json:"expires_at"`
	RefreshTokenExpiresIn int64  `json:"refresh_token_expires_in"`
	RefreshTokenExpiresAt int64  `json:"refresh_token_expires_at"`
}

// Session is a resumed session.
type Session struct {
	Token     OAuth2Token
	ExpiresAt time.Time
	Source    string
}

var _ pipeline.Session = &Session{}

// Account identifies the session in logs without exposing the token.
func (s *Session) Account() string {
	if s.Token.JTI != "" {
		return "jti:" + s.Token.JTI
	}
	return s.Source
}

// Authorization returns the Authorization header value.
func (s *Session) Authorization() string {
	typ := s.Token.TokenType
	if typ == "" || strings.EqualFold(typ, "bearer") {
		typ = "Bearer"
	}
	return typ + " " + s.Token.AccessToken
}

// TokenAuthenticator loads a stored token. Token, when set, wins over the
// token directory and holds either an OAuth2 token object or a garth dump.
type TokenAuthenticator struct {
	TokensDir string
	Token     string
	Now       func() time.Time
}

var _ pipeline.Authenticator = &TokenAuthenticator{}

// Authenticate returns the stored session or ErrNoSession/ErrSessionExpired.
func (a *TokenAuthenticator) Authenticate(ctx context.Context) (pipeline.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tok, source, err := a.load()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: %s has no access token", ErrNoSession, source)
	}

	s := &Session{Token: tok, Source: source}
	if tok.ExpiresAt > 0 {
		s.ExpiresAt = time.Unix(tok.ExpiresAt, 0)
		now := time.Now
		if a.Now != nil {
			now = a.Now
		}
		if !now().Before(s.ExpiresAt) {
			return nil, fmt.Errorf("%w at %s", ErrSessionExpired, s.ExpiresAt.UTC().Format(time.RFC3339))
		}
	}
	return s, nil
}

func (a *TokenAuthenticator) load() (OAuth2Token, string, error) {
	if raw := strings.TrimSpace(a.Token); raw != "" {
		tok, err := ParseToken([]byte(raw))
		return tok, "config", err
	}
	if a.TokensDir == "" {
		return OAuth2Token{}, "", ErrNoSession
	}
	path := filepath.Join(a.TokensDir, TokenFile)
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return OAuth2Token{}, path, fmt.Errorf("%w: %s", ErrNoSession, path)
	}
	if err != nil {
		return OAuth2Token{}, path, fmt.Errorf("read garmin token: %w", err)
	}
	tok, err := ParseToken(raw)
	return tok, path, err
}

// ParseToken accepts an OAuth2 token object or a garth dump, which is base64
// of a JSON [oauth1, oauth2] pair.
func ParseToken(raw []byte) (OAuth2Token, error) {
	var tok OAuth2Token
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal([]byte(trimmed), &tok); err != nil {
			return tok, fmt.Errorf("decode garmin token: %w", err)
		}
		return tok, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return tok, fmt.Errorf("decode garmin token dump: %w", err)
	}
	var pair []json.RawMessage
	if err := json.Unmarshal(decoded, &pair); err != nil {
		return tok, fmt.Errorf("decode garmin token dump: %w", err)
	}
	if len(pair) != 2 {
		return tok, fmt.Errorf("decode garmin token dump: expected 2 tokens, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[1], &tok); err != nil {
		return tok, fmt.Errorf("decode garmin oauth2 token: %w", err)
	}
	return tok, nil
}
