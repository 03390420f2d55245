// Package session maintains the bearer credential used by the subscription
// manager and bus consumer, with proactive refresh and revocation (C7).
package session

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

// refreshBuffer is subtracted from expires_in so a token is never used
// while it is about to expire mid-flight.
const refreshBuffer = 5 * time.Minute

// Config configures the session manager's auth endpoint and credentials.
type Config struct {
	AuthURL           string // https://{host}:8443/rest-gateway/rest/api/v1/auth/token
	RevocationURL     string // https://{host}:8443/rest-gateway/rest/api/v1/auth/revocation
	Username          string
	Password          string
	Timeout           time.Duration // default 30s
	RateLimit         int           // requests per minute, default 60
	InsecureSkipVerify bool
}

type token struct {
	accessToken  string
	refreshToken string
	expiry       time.Time
}

// Session holds the current bearer credential. Refresh is serialized
// under mu; CurrentToken reads the atomically-swapped pointer without
// locking once a token has been established.
type Session struct {
	cfg         Config
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	logger      *slog.Logger

	mu  sync.Mutex
	cur atomic.Pointer[token]
}

// New authenticates with client-credentials against the auth endpoint and
// returns a Session holding the initial token. Auth failure at this stage
// is fatal to the caller.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Session, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	rateLimit := cfg.RateLimit
	if rateLimit == 0 {
		rateLimit = 60
	}

	s := &Session{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify},
			},
		},
		rateLimiter: rate.NewLimiter(rate.Limit(float64(rateLimit)/60.0), 1),
		logger:      logger.With("component", "session"),
	}

	tok, err := s.authenticate(ctx)
	if err != nil {
		return nil, fmt.Errorf("initial authentication: %w", err)
	}
	s.cur.Store(tok)
	s.logger.Info("session established", "credential_fingerprint", fingerprint(tok.accessToken))
	return s, nil
}

// CurrentToken returns a valid access token, refreshing first if the held
// token has reached its expiry.
func (s *Session) CurrentToken(ctx context.Context) (string, error) {
	tok := s.cur.Load()
	if tok != nil && time.Now().Before(tok.expiry) {
		return tok.accessToken, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check after acquiring the lock: another goroutine may have
	// already refreshed while we were waiting.
	tok = s.cur.Load()
	if tok != nil && time.Now().Before(tok.expiry) {
		return tok.accessToken, nil
	}

	refreshed, err := s.refresh(ctx, tok)
	if err != nil {
		return "", err
	}
	s.cur.Store(refreshed)
	return refreshed.accessToken, nil
}

// refresh tries the refresh_token grant if a refresh token is held,
// falling back to full re-authentication on any refresh error.
func (s *Session) refresh(ctx context.Context, tok *token) (*token, error) {
	if tok != nil && tok.refreshToken != "" {
		refreshed, err := s.requestToken(ctx, map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": tok.refreshToken,
		})
		if err == nil {
			return refreshed, nil
		}
		s.logger.Warn("token refresh failed, falling back to re-authentication", "error", err)
	}
	return s.authenticate(ctx)
}

func (s *Session) authenticate(ctx context.Context) (*token, error) {
	return s.requestToken(ctx, map[string]string{"grant_type": "client_credentials"})
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (s *Session) requestToken(ctx context.Context, body map[string]string) (*token, error) {
	if err := s.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.AuthURL, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(s.cfg.Username, s.cfg.Password)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading token response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("auth endpoint returned %d: %s", resp.StatusCode, truncate(respBody, 500))
	}

	var parsed tokenResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}

	expiresIn := time.Duration(parsed.ExpiresIn) * time.Second
	return &token{
		accessToken:  parsed.AccessToken,
		refreshToken: parsed.RefreshToken,
		expiry:       time.Now().Add(expiresIn - refreshBuffer),
	}, nil
}

// Revoke calls the revocation endpoint with the currently held access
// token. Best-effort: teardown logs but does not propagate the error.
func (s *Session) Revoke(ctx context.Context) error {
	tok := s.cur.Load()
	if tok == nil {
		return nil
	}

	if err := s.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	form := url.Values{}
	form.Set("token", tok.accessToken)
	form.Set("token_type_hint", "token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.RevocationURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building revocation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.cfg.Username, s.cfg.Password)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revocation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("revocation endpoint returned %d: %s", resp.StatusCode, truncate(body, 500))
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

// fingerprint hashes a token for audit logging so the plaintext credential
// never reaches the log stream. Only the first 72 bytes of the token are
// hashed, the most bcrypt accepts. bcrypt salts every hash, so the same
// token yields a different fingerprint on each call.
func fingerprint(accessToken string) string {
	input := []byte(accessToken)
	if len(input) > 72 {
		input = input[:72]
	}
	hashed, err := bcrypt.GenerateFromPassword(input, bcrypt.DefaultCost)
	if err != nil {
		return "unavailable"
	}
	return string(hashed)
}
