package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"shorts-uploader/internal/config"
)

// AuthError means the refresh token could not be exchanged for an
// access token. It aborts the whole run before any job is attempted:
// without credentials every upload would fail the same way.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("authentication failed (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("authentication failed: %s", e.Message)
}

// Authenticator exchanges a long-lived refresh token for short-lived
// access tokens and caches them until shortly before expiry.
// Thread-safe for concurrent use.
type Authenticator struct {
	cfg        config.YouTubeConfig
	httpClient *http.Client
	now        func() time.Time

	mu          sync.Mutex
	accessToken string
	expiry      time.Time
}

func NewAuthenticator(cfg config.YouTubeConfig) (*Authenticator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &Authenticator{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		now: time.Now,
	}, nil
}

// Token returns a valid access token, refreshing it when the cached
// one is expired or about to expire.
func (a *Authenticator) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Refresh a minute early so a token never expires mid-upload.
	if a.accessToken != "" && a.now().Add(time.Minute).Before(a.expiry) {
		return a.accessToken, nil
	}

	token, expiresIn, err := a.refresh(ctx)
	if err != nil {
		return "", err
	}

	a.accessToken = token
	a.expiry = a.now().Add(time.Duration(expiresIn) * time.Second)
	return a.accessToken, nil
}

func (a *Authenticator) refresh(ctx context.Context) (string, int, error) {
	form := url.Values{
		"client_id":     {a.cfg.ClientID},
		"client_secret": {a.cfg.ClientSecret},
		"refresh_token": {a.cfg.RefreshToken},
		"grant_type":    {"refresh_token"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, &AuthError{Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", 0, &AuthError{Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, &AuthError{StatusCode: resp.StatusCode, Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0, &AuthError{StatusCode: resp.StatusCode, Message: tokenErrorMessage(body)}
	}

	var token struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &token); err != nil {
		return "", 0, &AuthError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("invalid token response: %v", err)}
	}
	if token.AccessToken == "" {
		return "", 0, &AuthError{StatusCode: resp.StatusCode, Message: "token response contains no access_token"}
	}
	if token.ExpiresIn <= 0 {
		token.ExpiresIn = 3600
	}

	return token.AccessToken, token.ExpiresIn, nil
}

func tokenErrorMessage(body []byte) string {
	var oauthErr struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &oauthErr); err == nil && oauthErr.Error != "" {
		if oauthErr.ErrorDescription != "" {
			return fmt.Sprintf("%s: %s", oauthErr.Error, oauthErr.ErrorDescription)
		}
		return oauthErr.Error
	}
	return string(body)
}
