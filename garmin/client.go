package garmin

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/lucasjlepore/fitsync/pipeline"
)

// DefaultBaseURL is the Connect API host.
const DefaultBaseURL = "https://connectapi.garmin.com"

// UploadPath is the upload endpoint relative to the base URL.
const UploadPath = "/upload-service/upload"

// Client uploads activity files.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

var _ pipeline.Uploader = &Client{}

// NewClient returns a client with a bounded request timeout.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{BaseURL: baseURL, HTTP: &http.Client{Timeout: 60 * time.Second}}
}

// StatusError is a non-success upload response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("garmin upload: HTTP %d: %s", e.Code, e.Body)
}

// Upload posts data as a multipart file. A 409 Conflict means the activity
// is already on the account.
func (c *Client) Upload(ctx context.Context, s pipeline.Session, name string, data []byte) (pipeline.UploadStatus, error) {
	sess, ok := s.(*Session)
	if !ok {
		return 0, fmt.Errorf("garmin upload: unsupported session type %T", s)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return 0, fmt.Errorf("build upload form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return 0, fmt.Errorf("build upload form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return 0, fmt.Errorf("build upload form: %w", err)
	}

	url := strings.TrimRight(c.BaseURL, "/") + UploadPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return 0, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", sess.Authorization())
	req.Header.Set("User-Agent", "fitsync")

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return 0, fmt.Errorf("garmin upload: %w", err)
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	switch {
	case resp.StatusCode == http.StatusConflict:
		return pipeline.UploadDuplicate, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return pipeline.UploadSuccess, nil
	default:
		return 0, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
}
