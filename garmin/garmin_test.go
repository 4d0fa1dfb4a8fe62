package garmin

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasjlepore/fitsync/pipeline"
)

var now = time.Date(2026, 2, 27, 7, 0, 0, 0, time.UTC)

const oauth2JSON = `{"scope":"CONNECT_READ CONNECT_WRITE","jti":"abc-123","token_type":"Bearer","access_token":"secret-token","refresh_token":"r","expires_in":3600,"expires_at":1772179200}`

func writeToken(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, TokenFile), []byte(body), 0o600))
	return dir
}

func TestAuthenticateFromTokenDirectory(t *testing.T) {
	a := &TokenAuthenticator{TokensDir: writeToken(t, oauth2JSON), Now: func() time.Time { return now }}

	s, err := a.Authenticate(context.Background())
	require.NoError(t, err)
	sess := s.(*Session)
	assert.Equal(t, "jti:abc-123", s.Account())
	assert.Equal(t, "Bearer secret-token", sess.Authorization())
	assert.True(t, sess.ExpiresAt.Equal(time.Unix(1772179200, 0)))
}

func TestAuthenticateExpired(t *testing.T) {
	a := &TokenAuthenticator{
		TokensDir: writeToken(t, oauth2JSON),
		Now:       func() time.Time { return time.Unix(1772179200, 0).Add(time.Second) },
	}
	_, err := a.Authenticate(context.Background())
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestAuthenticateNoSession(t *testing.T) {
	_, err := (&TokenAuthenticator{TokensDir: t.TempDir()}).Authenticate(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = (&TokenAuthenticator{}).Authenticate(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = (&TokenAuthenticator{TokensDir: writeToken(t, `{"token_type":"Bearer"}`)}).Authenticate(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestAuthenticateFromGarthDump(t *testing.T) {
	dump := base64.StdEncoding.EncodeToString([]byte(`[{"oauth_token":"o1","oauth_token_secret":"s1"},` + oauth2JSON + `]`))
	a := &TokenAuthenticator{Token: dump, TokensDir: "/does/not/matter", Now: func() time.Time { return now }}

	s, err := a.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-token", s.(*Session).Authorization())
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	_, err := ParseToken([]byte("not-base64!"))
	assert.Error(t, err)

	_, err = ParseToken([]byte(base64.StdEncoding.EncodeToString([]byte(`[{}]`))))
	assert.Error(t, err)
}

func session() *Session {
	return &Session{Token: OAuth2Token{TokenType: "Bearer", AccessToken: "secret-token"}}
}

func TestUploadSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, UploadPath, r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))

		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		body, _ := io.ReadAll(f)
		assert.Equal(t, "MyNewActivity-3.9.1_2026-02-27_070509.fit", hdr.Filename)
		assert.Equal(t, "fit-bytes", string(body))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	status, err := NewClient(srv.URL).Upload(context.Background(), session(), "MyNewActivity-3.9.1_2026-02-27_070509.fit", []byte("fit-bytes"))
	require.NoError(t, err)
	assert.Equal(t, pipeline.UploadSuccess, status)
}

func TestUploadDuplicate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	status, err := (&Client{BaseURL: srv.URL + "/"}).Upload(context.Background(), session(), "a.fit", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, pipeline.UploadDuplicate, status)
}

func TestUploadServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Upload(context.Background(), session(), "a.fit", []byte("x"))
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
	assert.Equal(t, "maintenance", statusErr.Body)
}

type otherSession struct{}

func (otherSession) Account() string { return "other" }

func TestUploadRejectsForeignSession(t *testing.T) {
	_, err := NewClient("http://127.0.0.1:1").Upload(context.Background(), otherSession{}, "a.fit", nil)
	assert.Error(t, err)
}
