// Package gemini is a direct HTTP client for the Gemini API, covering the
// three calls the transcription stage needs: media file upload, streamed
// transcript generation, and file deletion.
package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alnah/go-bisub/internal/apierr"
)

// Gemini API configuration.
const (
	// API endpoint
	defaultBaseURL = "https://generativelanguage.googleapis.com"

	// Model configuration
	defaultModel = "gemini-2.0-flash"

	// HTTP timeout covers a full streamed generation over a 20-minute chunk
	defaultHTTPTimeout = 15 * time.Minute

	// File processing poll configuration
	defaultPollInterval = 2 * time.Second
	defaultPollTimeout  = 5 * time.Minute

	// Response size limit to prevent OOM from malformed responses (32MB)
	maxResponseSize = 32 * 1024 * 1024

	// A single SSE data line carrying a transcript chunk stays well under this
	maxStreamLineSize = 4 * 1024 * 1024
)

// httpDoer abstracts HTTP client for testing.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RemoteFile identifies a media file held by the service between upload and
// deletion.
type RemoteFile struct {
	Name     string // resource name, e.g. "files/abc123"
	URI      string // download URI referenced in generation requests
	MIMEType string
}

// Transcript is a fully collected streamed generation response.
type Transcript struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Client calls the Gemini API. It performs no retries itself; the
// transcription stage treats API failures as fatal for the attempt.
type Client struct {
	apiKey       string
	baseURL      string
	model        string
	httpTimeout  time.Duration
	pollInterval time.Duration
	pollTimeout  time.Duration
	httpClient   httpDoer
}

// Option configures a Client.
type Option func(*Client)

// WithModel sets the generation model.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithBaseURL sets a custom base URL (for testing or proxies).
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithHTTPTimeout sets the HTTP client timeout.
func WithHTTPTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpTimeout = timeout
		}
	}
}

// WithPollInterval sets how long to wait between file state polls.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// WithPollTimeout sets how long an uploaded file may stay in PROCESSING.
func WithPollTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.pollTimeout = timeout
		}
	}
}

// withHTTPClient sets a custom HTTP client (for testing).
func withHTTPClient(client httpDoer) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// New creates a Client. apiKey is required.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrEmptyAPIKey
	}

	c := &Client{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		model:        defaultModel,
		httpTimeout:  defaultHTTPTimeout,
		pollInterval: defaultPollInterval,
		pollTimeout:  defaultPollTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	// Create HTTP client after options are applied (timeout may be customized)
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.httpTimeout}
	}
	return c, nil
}

// Model returns the generation model name, used for cost attribution.
func (c *Client) Model() string {
	return c.model
}

// ---------------------------------------------------------------------------
// Upload - push a media file and wait until the service can read it
// ---------------------------------------------------------------------------

// Upload pushes the local media file at path and waits until the service
// has finished processing it. The returned file must be deleted by the
// caller once generation is done.
func (c *Client) Upload(ctx context.Context, path string) (RemoteFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RemoteFile{}, fmt.Errorf("failed to read media file: %w", err)
	}

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := mw.CreatePart(metaHeader)
	if err != nil {
		return RemoteFile{}, fmt.Errorf("failed to build upload metadata: %w", err)
	}
	meta := map[string]any{"file": map[string]string{"display_name": filepath.Base(path)}}
	if err := json.NewEncoder(metaPart).Encode(meta); err != nil {
		return RemoteFile{}, fmt.Errorf("failed to encode upload metadata: %w", err)
	}

	mimeType := mimeTypeFor(path)
	mediaHeader := textproto.MIMEHeader{}
	mediaHeader.Set("Content-Type", mimeType)
	mediaPart, err := mw.CreatePart(mediaHeader)
	if err != nil {
		return RemoteFile{}, fmt.Errorf("failed to build upload body: %w", err)
	}
	if _, err := mediaPart.Write(data); err != nil {
		return RemoteFile{}, fmt.Errorf("failed to write upload body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return RemoteFile{}, fmt.Errorf("failed to finish upload body: %w", err)
	}

	url := c.baseURL + "/upload/v1beta/files?uploadType=multipart"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return RemoteFile{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "multipart/related; boundary="+mw.Boundary())
	req.Header.Set("x-goog-api-key", c.apiKey)

	respBody, err := c.do(req)
	if err != nil {
		return RemoteFile{}, classifyError(err)
	}

	var result uploadResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return RemoteFile{}, fmt.Errorf("failed to parse upload response: %w", err)
	}
	if result.File.Name == "" {
		return RemoteFile{}, fmt.Errorf("upload response has no file name: %w", apierr.ErrAPIFailure)
	}

	info := result.File
	if info.MIMEType == "" {
		info.MIMEType = mimeType
	}
	return c.waitUntilActive(ctx, info)
}

// waitUntilActive polls the file resource until it leaves PROCESSING.
func (c *Client) waitUntilActive(ctx context.Context, info fileInfo) (RemoteFile, error) {
	pollCtx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	for {
		switch info.State {
		case "ACTIVE", "": // older uploads respond without a state field
			return RemoteFile{Name: info.Name, URI: info.URI, MIMEType: info.MIMEType}, nil
		case "FAILED":
			return RemoteFile{}, fmt.Errorf("service rejected %s: %w", info.Name, ErrFileProcessing)
		}

		select {
		case <-pollCtx.Done():
			return RemoteFile{}, fmt.Errorf("%s still %s after %s: %w",
				info.Name, info.State, c.pollTimeout, ErrFileProcessing)
		case <-time.After(c.pollInterval):
		}

		next, err := c.getFile(pollCtx, info.Name)
		if err != nil {
			// A poll cut short by the processing deadline is a processing
			// timeout, not an API failure.
			if pollCtx.Err() != nil && ctx.Err() == nil {
				return RemoteFile{}, fmt.Errorf("%s still %s after %s: %w",
					info.Name, info.State, c.pollTimeout, ErrFileProcessing)
			}
			return RemoteFile{}, err
		}
		if next.MIMEType == "" {
			next.MIMEType = info.MIMEType
		}
		info = next
	}
}

// getFile fetches the current state of an uploaded file.
func (c *Client) getFile(ctx context.Context, name string) (fileInfo, error) {
	url := c.baseURL + "/v1beta/" + name
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fileInfo{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)

	respBody, err := c.do(req)
	if err != nil {
		return fileInfo{}, classifyError(err)
	}

	var info fileInfo
	if err := json.Unmarshal(respBody, &info); err != nil {
		return fileInfo{}, fmt.Errorf("failed to parse file state: %w", err)
	}
	return info, nil
}

// ---------------------------------------------------------------------------
// Transcribe - streamed generation over an uploaded file
// ---------------------------------------------------------------------------

// Transcribe runs a streamed generation with the uploaded file and the
// prompt, collecting all text chunks into one transcript. Token counts come
// from the stream's usage metadata.
func (c *Client) Transcribe(ctx context.Context, file RemoteFile, prompt string) (Transcript, error) {
	reqBody := generateRequest{
		Contents: []generateContent{{
			Parts: []generatePart{
				{FileData: &fileData{MIMEType: file.MIMEType, FileURI: file.URI}},
				{Text: prompt},
			},
		}},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return Transcript{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Transcript{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Transcript{}, classifyError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if readErr != nil {
			return Transcript{}, fmt.Errorf("failed to read error response: %w", readErr)
		}
		return Transcript{}, classifyError(parseError(resp.StatusCode, respBody))
	}

	return collectStream(resp.Body)
}

// collectStream reads an SSE stream and concatenates the text of every data
// event. The last usage metadata seen wins; the service sends cumulative
// counts.
func collectStream(r io.Reader) (Transcript, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLineSize)

	var text strings.Builder
	var inputTokens, outputTokens int

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		var chunk generateResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return Transcript{}, fmt.Errorf("failed to parse stream chunk: %w", err)
		}
		for _, cand := range chunk.Candidates {
			for _, p := range cand.Content.Parts {
				text.WriteString(p.Text)
			}
		}
		if chunk.UsageMetadata != nil {
			inputTokens = chunk.UsageMetadata.PromptTokenCount
			outputTokens = chunk.UsageMetadata.CandidatesTokenCount
		}
	}
	if err := scanner.Err(); err != nil {
		return Transcript{}, fmt.Errorf("stream read failed: %w", err)
	}
	if text.Len() == 0 {
		return Transcript{}, fmt.Errorf("empty generation response: %w", apierr.ErrAPIFailure)
	}

	return Transcript{
		Text:         text.String(),
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}, nil
}

// ---------------------------------------------------------------------------
// Delete - drop the uploaded file once generation is done
// ---------------------------------------------------------------------------

// Delete removes an uploaded file from the service.
func (c *Client) Delete(ctx context.Context, file RemoteFile) error {
	url := c.baseURL + "/v1beta/" + file.Name
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)

	if _, err := c.do(req); err != nil {
		return classifyError(err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Shared plumbing
// ---------------------------------------------------------------------------

// do executes a non-streaming request and returns the response body after
// status handling.
func (c *Client) do(req *http.Request) (_ []byte, err error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close response body: %w", closeErr)
		}
	}()

	// Limit response size to prevent OOM from malformed responses
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return nil, parseError(resp.StatusCode, respBody)
	}
	return respBody, nil
}

// mimeTypeFor maps a media path to the MIME type the API expects.
func mimeTypeFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".mp3":
		return "audio/mp3"
	case ".mp4":
		return "video/mp4"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type generateRequest struct {
	Contents []generateContent `json:"contents"`
}

type generateContent struct {
	Parts []generatePart `json:"parts"`
}

type generatePart struct {
	Text     string    `json:"text,omitempty"`
	FileData *fileData `json:"file_data,omitempty"`
}

type fileData struct {
	MIMEType string `json:"mime_type,omitempty"`
	FileURI  string `json:"file_uri"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *usageMetadata `json:"usageMetadata"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type fileInfo struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType"`
	State    string `json:"state"`
}

type uploadResponse struct {
	File fileInfo `json:"file"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// apiError represents a typed Gemini API error.
type apiError struct {
	StatusCode int
	Message    string
	Status     string
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("Gemini API error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("Gemini API error %d", e.StatusCode)
}

// parseError parses an error response from the Gemini API.
func parseError(statusCode int, body []byte) *apiError {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		// If we can't parse the error, return a generic error
		return &apiError{
			StatusCode: statusCode,
			Message:    string(body),
		}
	}

	return &apiError{
		StatusCode: statusCode,
		Message:    errResp.Error.Message,
		Status:     errResp.Error.Status,
	}
}

// classifyError maps Gemini API errors to sentinel errors.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *apiError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests: // 429 - RESOURCE_EXHAUSTED covers both
			if strings.Contains(apiErr.Message, "quota") ||
				strings.Contains(apiErr.Message, "billing") {
				return fmt.Errorf("%s: %w", apiErr.Message, apierr.ErrQuotaExceeded)
			}
			return fmt.Errorf("%s: %w", apiErr.Message, apierr.ErrRateLimit)
		case http.StatusUnauthorized, http.StatusForbidden: // 401, 403
			return fmt.Errorf("%s: %w", apiErr.Message, apierr.ErrAuthFailed)
		case http.StatusRequestTimeout, http.StatusGatewayTimeout: // 408, 504
			return fmt.Errorf("%s: %w", apiErr.Message, apierr.ErrTimeout)
		case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity: // 400, 404, 422
			return fmt.Errorf("%s: %w", apiErr.Message, apierr.ErrBadRequest)
		default:
			return fmt.Errorf("%s: %w", apiErr.Error(), apierr.ErrAPIFailure)
		}
	}

	// Check for context timeout/deadline exceeded
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timed out: %w", apierr.ErrTimeout)
	}

	return err
}
