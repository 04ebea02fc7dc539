package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tactiboard/engine/internal/handlers"
	v1 "github.com/tactiboard/engine/internal/storage/memory/export/v1"
	"github.com/tactiboard/engine/pkg/core"
)

// UploadMetadata describes an exported library file sent to the archive server.
type UploadMetadata struct {
	Sequences  int
	Tokens     int
	ExportedAt time.Time
	Tag        string
}

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.Status)
	}
	return fmt.Sprintf("server returned status %d: %s", e.Status, e.Message)
}

// Client talks to a board daemon or to the library archive server.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Healthcheck checks if the server is reachable.
func (c *Client) Healthcheck() error {
	resp, err := c.httpClient.Get(c.baseURL + "/healthcheck")
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}

// Upload sends an exported library file to the archive server.
func (c *Client) Upload(filePath string, meta UploadMetadata) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	// form is streamed from a goroutine so large exports are never buffered
	errCh := make(chan error, 1)
	go func() {
		defer pw.Close()
		defer writer.Close()

		_ = writer.WriteField("secret", c.apiKey)
		_ = writer.WriteField("filename", filepath.Base(filePath))
		_ = writer.WriteField("sequences", strconv.Itoa(meta.Sequences))
		_ = writer.WriteField("tokens", strconv.Itoa(meta.Tokens))
		_ = writer.WriteField("exportedAt", meta.ExportedAt.UTC().Format(time.RFC3339))
		_ = writer.WriteField("tag", meta.Tag)

		part, err := writer.CreateFormFile("file", filepath.Base(filePath))
		if err != nil {
			errCh <- fmt.Errorf("failed to create form file: %w", err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			errCh <- fmt.Errorf("failed to copy file: %w", err)
			return
		}
		errCh <- nil
	}()

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/v1/libraries/add", pr)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// the server may answer before reading the form; unblock the writer
		_ = pr.Close()
		return &StatusError{Status: resp.StatusCode}
	}
	return <-errCh
}

// Board fetches the live board view.
func (c *Client) Board() (handlers.BoardView, error) {
	var out handlers.BoardView
	err := c.do(http.MethodGet, "/api/board", nil, &out)
	return out, err
}

// Playback fetches the playback state.
func (c *Client) Playback() (core.PlaybackState, error) {
	var out core.PlaybackState
	err := c.do(http.MethodGet, "/api/playback", nil, &out)
	return out, err
}

// Library lists the stored sequences.
func (c *Client) Library() ([]v1.SequenceSummary, error) {
	var out []v1.SequenceSummary
	err := c.do(http.MethodGet, "/api/sequences", nil, &out)
	return out, err
}

// Sequence fetches one stored sequence with its steps.
func (c *Client) Sequence(id string) (core.AnimationSequence, error) {
	var out core.AnimationSequence
	err := c.do(http.MethodGet, "/api/sequences/"+url.PathEscape(id), nil, &out)
	return out, err
}

// DeleteSequence removes a sequence from the library.
func (c *Client) DeleteSequence(id string) error {
	return c.do(http.MethodDelete, "/api/sequences/"+url.PathEscape(id), nil, nil)
}

// Refine submits a revised sequence for id and returns the id it was stored under.
func (c *Client) Refine(id string, candidate []byte) (string, error) {
	var out RefineResponse
	err := c.do(http.MethodPost, "/api/sequences/"+url.PathEscape(id)+"/refinements", candidate, &out)
	return out.ID, err
}

// Command dispatches a board command and returns its raw JSON result.
func (c *Client) Command(command string, args ...string) (json.RawMessage, error) {
	body, err := json.Marshal(CommandRequest{Command: command, Args: args})
	if err != nil {
		return nil, err
	}
	var out struct {
		Result json.RawMessage `json:"result"`
	}
	if err := c.do(http.MethodPost, "/api/commands", body, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

func (c *Client) do(method, path string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &StatusError{Status: resp.StatusCode, Message: e.Message}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
