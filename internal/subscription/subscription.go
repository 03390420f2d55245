// Package subscription creates, renews, and deletes the NSP-FAULT
// notification subscription (C8).
package subscription

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// TokenSource supplies the current bearer token, satisfied by *session.Session.
type TokenSource interface {
	CurrentToken(ctx context.Context) (string, error)
}

// Config configures the subscription manager's gateway base URL.
type Config struct {
	BaseURL            string // …/nbi-notification/api/v1/notifications/subscriptions
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// Manager exposes create/renew/delete against the subscription endpoint.
type Manager struct {
	cfg        Config
	httpClient *http.Client
	tokens     TokenSource
	logger     *slog.Logger
}

// New builds a subscription Manager.
func New(cfg Config, tokens TokenSource, logger *slog.Logger) *Manager {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Manager{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify},
			},
		},
		tokens: tokens,
		logger: logger.With("component", "subscription"),
	}
}

type createResponse struct {
	Response struct {
		Data struct {
			SubscriptionID string `json:"subscriptionId"`
			TopicID        string `json:"topicId"`
		} `json:"data"`
	} `json:"response"`
}

// Create POSTs the NSP-FAULT category subscription and returns the
// (subscriptionID, topicID) pair. Failure here is fatal to the supervisor.
func (m *Manager) Create(ctx context.Context) (subscriptionID, topicID string, err error) {
	body := map[string]any{
		"categories": []map[string]string{{"name": "NSP-FAULT"}},
	}

	idempotencyKey := uuid.NewString()
	var resp createResponse
	if err := m.doWithKey(ctx, http.MethodPost, m.cfg.BaseURL, idempotencyKey, body, &resp); err != nil {
		return "", "", fmt.Errorf("creating subscription: %w", err)
	}

	m.logger.Info("subscription created",
		"subscription_id", resp.Response.Data.SubscriptionID,
		"topic_id", resp.Response.Data.TopicID)
	return resp.Response.Data.SubscriptionID, resp.Response.Data.TopicID, nil
}

// Renew POSTs an empty body to the subscription's renewals endpoint.
// Called on a periodic tick by the supervisor; a failure here is logged
// and does not stop the renewal loop.
func (m *Manager) Renew(ctx context.Context, subscriptionID string) error {
	url := fmt.Sprintf("%s/%s/renewals", m.cfg.BaseURL, subscriptionID)
	if err := m.do(ctx, http.MethodPost, url, map[string]any{}, nil); err != nil {
		return fmt.Errorf("renewing subscription %s: %w", subscriptionID, err)
	}
	m.logger.Info("subscription renewed", "subscription_id", subscriptionID)
	return nil
}

// Delete DELETEs the subscription with an empty JSON body, best-effort
// during teardown.
func (m *Manager) Delete(ctx context.Context, subscriptionID string) error {
	url := fmt.Sprintf("%s/%s", m.cfg.BaseURL, subscriptionID)
	if err := m.do(ctx, http.MethodDelete, url, map[string]any{}, nil); err != nil {
		return fmt.Errorf("deleting subscription %s: %w", subscriptionID, err)
	}
	m.logger.Info("subscription deleted", "subscription_id", subscriptionID)
	return nil
}

func (m *Manager) do(ctx context.Context, method, url string, body any, out any) error {
	return m.doWithKey(ctx, method, url, "", body, out)
}

// doWithKey attaches an Idempotency-Key header when idempotencyKey is
// non-empty. The request is sent once; Create passes a fresh key on
// every call and does not retry.
func (m *Manager) doWithKey(ctx context.Context, method, url, idempotencyKey string, body any, out any) error {
	token, err := m.tokens.CurrentToken(ctx)
	if err != nil {
		return fmt.Errorf("getting bearer token: %w", err)
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("subscription endpoint returned %d: %s", resp.StatusCode, truncate(respBody, 500))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
