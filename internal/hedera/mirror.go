// Package hedera wraps the two halves of the ledger: the mirror node REST API
// for eventually-consistent reads, and the Hedera network itself for transfer
// and consensus message submission.
package hedera

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/MeridianProtocol/server/internal/circuitbreaker"
	"github.com/MeridianProtocol/server/internal/httputil"
	"github.com/MeridianProtocol/server/internal/metrics"
	"github.com/MeridianProtocol/server/internal/retry"
)

var (
	// ErrMirrorUnavailable signals that the mirror node could not be reached
	// or kept failing transiently.
	ErrMirrorUnavailable = errors.New("hedera: mirror node unavailable")

	// ErrNotFound signals a 404 from the mirror node (unknown account, topic, etc).
	ErrNotFound = errors.New("hedera: entity not found")
)

// Transaction is one mirror node transaction with its token transfer line items.
type Transaction struct {
	TransactionID      string          `json:"transaction_id"`
	ConsensusTimestamp string          `json:"consensus_timestamp"`
	Result             string          `json:"result"`
	TokenTransfers     []TokenTransfer `json:"token_transfers"`
}

// TokenTransfer is a single signed line item within a transaction.
// Amounts are tiny units; senders carry negative values.
type TokenTransfer struct {
	TokenID string `json:"token_id"`
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
}

// TopicMessage is one consensus topic message.
type TopicMessage struct {
	ConsensusTimestamp string `json:"consensus_timestamp"`
	Message            string `json:"message"` // base64 payload
	SequenceNumber     int64  `json:"sequence_number"`
}

// MirrorClient queries the Hedera mirror node REST API. The mirror node is a
// read replica: rows appear with replication lag, so callers polling for a
// specific transaction must retry rather than trust a single empty response.
type MirrorClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *circuitbreaker.Manager
	retryCfg   retry.Policy
	metrics    *metrics.Metrics
}

// MirrorOption customizes the mirror client.
type MirrorOption func(*MirrorClient)

// WithBreaker routes mirror calls through the given circuit breaker manager.
func WithBreaker(breaker *circuitbreaker.Manager) MirrorOption {
	return func(c *MirrorClient) {
		c.breaker = breaker
	}
}

// WithMetrics records mirror call observations.
func WithMetrics(m *metrics.Metrics) MirrorOption {
	return func(c *MirrorClient) {
		c.metrics = m
	}
}

// WithRetryPolicy overrides the transient-failure retry policy.
func WithRetryPolicy(p retry.Policy) MirrorOption {
	return func(c *MirrorClient) {
		c.retryCfg = p
	}
}

// NewMirrorClient creates a client for the given mirror node base URL.
func NewMirrorClient(baseURL string, timeout time.Duration, opts ...MirrorOption) *MirrorClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &MirrorClient{
		baseURL:    baseURL,
		httpClient: httputil.NewClient(timeout),
		retryCfg: retry.Policy{
			MaxAttempts:     3,
			InitialInterval: 250 * time.Millisecond,
			Multiplier:      2.0,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TokenBalance returns the account's balance of the given token in tiny
// units. An account with no relationship to the token reads as zero, not as
// an error.
func (c *MirrorClient) TokenBalance(ctx context.Context, accountID, tokenID string) (int64, error) {
	endpoint := fmt.Sprintf("/api/v1/accounts/%s/tokens", url.PathEscape(accountID))
	query := url.Values{}
	query.Set("token.id", tokenID)
	query.Set("limit", "1")

	var payload struct {
		Tokens []struct {
			TokenID string `json:"token_id"`
			Balance int64  `json:"balance"`
		} `json:"tokens"`
	}
	if err := c.getJSON(ctx, "account_tokens", endpoint, query, &payload); err != nil {
		return 0, err
	}

	for _, t := range payload.Tokens {
		if t.TokenID == tokenID {
			return t.Balance, nil
		}
	}
	return 0, nil
}

// TransactionsSince lists successful transactions involving accountID with a
// consensus timestamp at or after since, newest first.
func (c *MirrorClient) TransactionsSince(ctx context.Context, accountID string, since time.Time, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	query := url.Values{}
	query.Set("account.id", accountID)
	query.Set("timestamp", "gte:"+FormatConsensusTimestamp(since))
	query.Set("order", "desc")
	query.Set("limit", fmt.Sprintf("%d", limit))
	query.Set("transactiontype", "CRYPTOTRANSFER")
	query.Set("result", "success")

	var payload struct {
		Transactions []Transaction `json:"transactions"`
	}
	if err := c.getJSON(ctx, "transactions", "/api/v1/transactions", query, &payload); err != nil {
		return nil, err
	}
	return payload.Transactions, nil
}

// LatestTopicMessage returns the newest message on a consensus topic, or
// ErrNotFound when the topic has no messages.
func (c *MirrorClient) LatestTopicMessage(ctx context.Context, topicID string) (*TopicMessage, error) {
	endpoint := fmt.Sprintf("/api/v1/topics/%s/messages", url.PathEscape(topicID))
	query := url.Values{}
	query.Set("order", "desc")
	query.Set("limit", "1")

	var payload struct {
		Messages []TopicMessage `json:"messages"`
	}
	if err := c.getJSON(ctx, "topic_messages", endpoint, query, &payload); err != nil {
		return nil, err
	}
	if len(payload.Messages) == 0 {
		return nil, fmt.Errorf("%w: topic %s has no messages", ErrNotFound, topicID)
	}
	return &payload.Messages[0], nil
}

// getJSON performs a GET with transient-failure retries, breaker protection,
// and metrics observation, decoding the response into out.
func (c *MirrorClient) getJSON(ctx context.Context, endpointLabel, endpoint string, query url.Values, out interface{}) error {
	fullURL := c.baseURL + endpoint
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	op := func(ctx context.Context) error {
		start := time.Now()
		body, err := c.fetch(ctx, fullURL)
		if c.metrics != nil {
			c.metrics.ObserveMirrorCall(endpointLabel, time.Since(start), err)
		}
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, out); err != nil {
			return retry.Permanent{Err: fmt.Errorf("decode mirror response: %w", err)}
		}
		return nil
	}

	err := c.retryCfg.Do(ctx, op)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, retry.ErrExhausted) {
		return fmt.Errorf("%w: %v", ErrMirrorUnavailable, err)
	}
	return err
}

// fetch executes one HTTP GET through the circuit breaker and classifies the
// status code into retryable and permanent failures.
func (c *MirrorClient) fetch(ctx context.Context, fullURL string) ([]byte, error) {
	result, err := c.breaker.Execute(circuitbreaker.ServiceMirrorAPI, func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, retry.Permanent{Err: err}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, retry.Permanent{Err: ctx.Err()}
			}
			return nil, fmt.Errorf("mirror request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return nil, fmt.Errorf("read mirror response: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return body, nil
		case resp.StatusCode == http.StatusNotFound:
			return nil, retry.Permanent{Err: ErrNotFound}
		case isRetryableStatus(resp.StatusCode):
			return nil, fmt.Errorf("mirror returned status %d", resp.StatusCode)
		default:
			return nil, retry.Permanent{Err: fmt.Errorf("mirror returned status %d", resp.StatusCode)}
		}
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// isRetryableStatus reports whether an HTTP status is worth another attempt:
// timeouts, throttling, and server-side errors.
func isRetryableStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= 500
}

// FormatConsensusTimestamp renders a time in the mirror node's
// seconds.nanoseconds consensus timestamp format.
func FormatConsensusTimestamp(t time.Time) string {
	return fmt.Sprintf("%d.%09d", t.Unix(), t.Nanosecond())
}
