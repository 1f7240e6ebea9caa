package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrCredential indicates the gateway refused or failed to issue a bearer token.
var ErrCredential = errors.New("gateway credential unavailable")

// TokenConfig configures a TokenSource.
type TokenConfig struct {
	Endpoint      string
	ClientID      string
	ClientSecret  string
	ClientVersion string
	// ExpiryMargin is how much remaining lifetime a cached token must have
	// to be handed out without a refresh. Defaults to 60s.
	ExpiryMargin time.Duration
	HTTPClient   *http.Client
	Now          func() time.Time
}

type credential struct {
	token     string
	expiresAt time.Time
}

// TokenSource caches one process-wide gateway bearer token. Reads are
// lock-shared and hit no I/O while the token is fresh; refreshes collapse
// concurrent callers into a single outbound request.
type TokenSource struct {
	endpoint      string
	clientID      string
	clientSecret  string
	clientVersion string
	margin        time.Duration
	client        *http.Client
	now           func() time.Time

	group  singleflight.Group
	mu     sync.RWMutex
	cached credential
}

// NewTokenSource constructs a TokenSource with sane defaults.
func NewTokenSource(cfg TokenConfig) *TokenSource {
	margin := cfg.ExpiryMargin
	if margin <= 0 {
		margin = 60 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &TokenSource{
		endpoint:      cfg.Endpoint,
		clientID:      cfg.ClientID,
		clientSecret:  cfg.ClientSecret,
		clientVersion: cfg.ClientVersion,
		margin:        margin,
		client:        client,
		now:           now,
	}
}

// Token returns a bearer token with at least the configured margin of
// lifetime remaining, refreshing it from the gateway if needed.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	if tok, ok := s.fresh(); ok {
		return tok, nil
	}

	val, err, _ := s.group.Do("token", func() (any, error) {
		// Another caller may have refreshed while we waited for the flight.
		if tok, ok := s.fresh(); ok {
			return tok, nil
		}
		return s.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return val.(string), nil
}

func (s *TokenSource) fresh() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cached.token == "" {
		return "", false
	}
	if !s.now().Add(s.margin).Before(s.cached.expiresAt) {
		return "", false
	}
	return s.cached.token, true
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (s *TokenSource) refresh(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type":     {"client_credentials"},
		"client_id":      {s.clientID},
		"client_secret":  {s.clientSecret},
		"client_version": {s.clientVersion},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		s.clear()
		return "", fmt.Errorf("%w: %v", ErrCredential, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		s.clear()
		return "", fmt.Errorf("%w: %v", ErrCredential, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		s.clear()
		return "", fmt.Errorf("%w: read token response: %v", ErrCredential, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.clear()
		return "", fmt.Errorf("%w: token endpoint returned %d", ErrCredential, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		s.clear()
		return "", fmt.Errorf("%w: malformed token response: %v", ErrCredential, err)
	}
	if tr.AccessToken == "" {
		s.clear()
		return "", fmt.Errorf("%w: token response missing access_token", ErrCredential)
	}

	var expiresAt time.Time
	switch {
	case tr.ExpiresAt > 0:
		expiresAt = time.Unix(tr.ExpiresAt, 0)
	case tr.ExpiresIn > 0:
		expiresAt = s.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	default:
		s.clear()
		return "", fmt.Errorf("%w: token response missing expiry", ErrCredential)
	}

	s.mu.Lock()
	s.cached = credential{token: tr.AccessToken, expiresAt: expiresAt}
	s.mu.Unlock()

	return tr.AccessToken, nil
}

func (s *TokenSource) clear() {
	s.mu.Lock()
	s.cached = credential{}
	s.mu.Unlock()
}
