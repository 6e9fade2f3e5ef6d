// Package youtube is the Data API v3 client: multipart video upload,
// playlist lookup and attachment. It classifies API failures so the
// layers above can tell a poisoned job from an exhausted quota.
package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"time"

	"shorts-uploader/internal/config"
	"shorts-uploader/internal/executor"
	"shorts-uploader/internal/jobs"
	"shorts-uploader/pkg/log"
)

const (
	// maxUploadAttempts bounds the retry loop for transient failures.
	maxUploadAttempts = 3
	retryBaseDelay    = 2 * time.Second

	shortsTag = "#Shorts"
)

// tokenSource abstracts the Authenticator for tests.
type tokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client implements the upload and playlist calls used by the
// executor. Thread-safe for concurrent use.
type Client struct {
	cfg        config.YouTubeConfig
	tokens     tokenSource
	httpClient *http.Client
	logger     *log.Logger
	sleep      func(time.Duration)
	playlists  playlistCache
}

type ClientOption func(*Client)

// WithSleep overrides the retry backoff sleep, for tests.
func WithSleep(sleep func(time.Duration)) ClientOption {
	return func(c *Client) {
		c.sleep = sleep
	}
}

func WithLogger(logger *log.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func NewClient(cfg config.YouTubeConfig, tokens tokenSource, opts ...ClientOption) *Client {
	client := &Client{
		cfg:    cfg,
		tokens: tokens,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		logger: log.GetLogger(),
		sleep:  time.Sleep,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// videoResource is the snippet/status payload of videos.insert.
type videoResource struct {
	Snippet videoSnippet `json:"snippet"`
	Status  videoStatus  `json:"status"`
}

type videoSnippet struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	CategoryID  string   `json:"categoryId"`
}

type videoStatus struct {
	PrivacyStatus           string `json:"privacyStatus"`
	PublishAt               string `json:"publishAt,omitempty"`
	SelfDeclaredMadeForKids bool   `json:"selfDeclaredMadeForKids"`
}

// Upload performs one videos.insert call with bounded retry on
// transient failures. The returned error, when non-nil, is always a
// classified *executor.UploadError.
func (c *Client) Upload(ctx context.Context, req executor.UploadRequest) (string, error) {
	payload, err := json.Marshal(buildResource(req))
	if err != nil {
		return "", &executor.UploadError{Kind: jobs.FaultRejected, Err: err}
	}

	var lastErr *executor.UploadError
	for attempt := 1; attempt <= maxUploadAttempts; attempt++ {
		if attempt > 1 {
			delay := retryBaseDelay * time.Duration(1<<(attempt-2))
			c.logger.Warn("Retrying upload of %s in %v (attempt %d/%d)", req.File, delay, attempt, maxUploadAttempts)
			c.sleep(delay)
		}

		videoID, uploadErr := c.uploadOnce(ctx, req.File, payload)
		if uploadErr == nil {
			return videoID, nil
		}

		lastErr = uploadErr
		if uploadErr.Kind != jobs.FaultTransient {
			break
		}
		c.logger.Warn("Transient upload failure for %s: %v", req.File, uploadErr.Err)
	}

	return "", lastErr
}

func (c *Client) uploadOnce(ctx context.Context, path string, metadata []byte) (string, *executor.UploadError) {
	video, err := os.Open(path)
	if err != nil {
		return "", &executor.UploadError{Kind: jobs.FaultRejected, Err: err}
	}
	defer video.Close()

	body, contentType, err := multipartRelated(metadata, video)
	if err != nil {
		return "", &executor.UploadError{Kind: jobs.FaultTransient, Err: err}
	}

	url := c.cfg.UploadURL + "/videos?uploadType=multipart&part=snippet,status"
	respBody, uploadErr := c.do(ctx, http.MethodPost, url, contentType, body)
	if uploadErr != nil {
		return "", uploadErr
	}

	var inserted struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &inserted); err != nil || inserted.ID == "" {
		return "", &executor.UploadError{Kind: jobs.FaultTransient, Err: fmt.Errorf("upload response contains no video id"), Billed: true}
	}
	return inserted.ID, nil
}

// do issues one authenticated request and maps failures onto the fault
// taxonomy. A nil body sends an empty request.
func (c *Client) do(ctx context.Context, method, url, contentType string, body io.Reader) ([]byte, *executor.UploadError) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		// Run-fatal: no request went out, and every further job
		// would fail the same way.
		return nil, &executor.UploadError{Kind: jobs.FaultAuth, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, &executor.UploadError{Kind: jobs.FaultRejected, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The request left the process; the platform may have
		// billed it even though no response arrived.
		return nil, &executor.UploadError{Kind: jobs.FaultTransient, Err: err, Billed: true}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &executor.UploadError{Kind: jobs.FaultTransient, Err: err, Billed: true}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyResponse(resp.StatusCode, respBody)
	}
	return respBody, nil
}

// classifyResponse maps an API error response onto the fault taxonomy:
// quota reasons are run-fatal, other 4xx poison only the current job,
// everything else is worth retrying.
func classifyResponse(status int, body []byte) *executor.UploadError {
	reason, message := parseAPIError(body)
	err := fmt.Errorf("API request failed with status %d (%s): %s", status, reason, message)

	switch {
	case status == http.StatusForbidden && isQuotaReason(reason):
		return &executor.UploadError{Kind: jobs.FaultQuotaExceeded, Err: err, Billed: true}
	case status >= 400 && status < 500 && status != http.StatusTooManyRequests:
		return &executor.UploadError{Kind: jobs.FaultRejected, Err: err, Billed: true}
	default:
		return &executor.UploadError{Kind: jobs.FaultTransient, Err: err, Billed: true}
	}
}

func isQuotaReason(reason string) bool {
	switch reason {
	case "quotaExceeded", "dailyLimitExceeded", "uploadLimitExceeded":
		return true
	}
	return false
}

func parseAPIError(body []byte) (reason, message string) {
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
			Errors  []struct {
				Reason string `json:"reason"`
			} `json:"errors"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return "unknown", strings.TrimSpace(string(body))
	}
	if len(apiErr.Error.Errors) > 0 {
		reason = apiErr.Error.Errors[0].Reason
	}
	if reason == "" {
		reason = "unknown"
	}
	return reason, apiErr.Error.Message
}

// buildResource maps an upload request onto the wire payload, tagging
// the video as a Short when the metadata does not already do so.
func buildResource(req executor.UploadRequest) videoResource {
	title, description := ensureShortsTag(req.Title, req.Description)
	return videoResource{
		Snippet: videoSnippet{
			Title:       title,
			Description: description,
			Tags:        req.Tags,
			CategoryID:  req.CategoryID,
		},
		Status: videoStatus{
			PrivacyStatus: string(req.Privacy),
			PublishAt:     req.PublishAt,
		},
	}
}

// ensureShortsTag appends the Shorts marker to the description unless
// the title or description already carries it.
func ensureShortsTag(title, description string) (string, string) {
	lowerTag := strings.ToLower(shortsTag)
	if strings.Contains(strings.ToLower(title), lowerTag) ||
		strings.Contains(strings.ToLower(description), lowerTag) {
		return title, description
	}
	if description == "" {
		return title, shortsTag
	}
	return title, description + "\n\n" + shortsTag
}

// multipartRelated assembles the two-part upload body: JSON metadata
// first, then the raw video bytes.
func multipartRelated(metadata []byte, video io.Reader) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := writer.CreatePart(metaHeader)
	if err != nil {
		return nil, "", err
	}
	if _, err := metaPart.Write(metadata); err != nil {
		return nil, "", err
	}

	videoHeader := textproto.MIMEHeader{}
	videoHeader.Set("Content-Type", "video/*")
	videoPart, err := writer.CreatePart(videoHeader)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(videoPart, video); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	contentType := "multipart/related; boundary=" + writer.Boundary()
	return &buf, contentType, nil
}
